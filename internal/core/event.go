package core

// EventAck is the internal name of an acknowledgment reply.
const EventAck = "ack"

// Event is queued to one connection. Name is a wire event name from the
// proto package; Payload is a proto payload value, or raw JSON when the
// event arrived through the broker.
type Event struct {
	Name    string
	AckID   string
	Payload any
}
