package proto

import (
	"encoding/json"
	"time"
)

// Inbound is the envelope for messages coming from the client.
// AckID is echoed back on the acknowledgment for events that have one.
type Inbound struct {
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
	AckID string          `json:"ackId,omitempty"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	AckID string `json:"ackId,omitempty"`
	Data  any    `json:"data,omitempty"`
}

const (
	InboundTypeSendMessage = "send_message"
	InboundTypeReadMessage = "read_message"
	InboundTypeTyping      = "typing"

	OutboundTypeEvent = "event"
	OutboundTypeAck   = "ack"
)

// Server to client event names.
const (
	EventNewMessage        = "new_message"
	EventMessageRead       = "message_read"
	EventUserTyping        = "user_typing"
	EventUserStatusChanged = "user_status_changed"
	EventOnlineUsers       = "getOnlineUsers"
	EventError             = "error"
	EventSessionReplaced   = "session_replaced"
)

// Status is a presence state carried by user_status_changed.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// SendMessageData is the payload of send_message.
type SendMessageData struct {
	ReceiverID string `json:"receiverId"`
	Text       string `json:"text"`
}

// ReadMessageData is the payload of read_message.
type ReadMessageData struct {
	MessageID string `json:"messageId"`
	SenderID  string `json:"senderId"`
}

// TypingData is the payload of typing.
type TypingData struct {
	ConversationID string `json:"conversationId"`
	ReceiverID     string `json:"receiverId"`
}

// NewMessage is delivered to both parties of a send_message.
type NewMessage struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"senderId"`
	ReceiverID  string    `json:"receiverId"`
	Text        string    `json:"text"`
	IsDelivered bool      `json:"isDelivered"`
	CreatedAt   time.Time `json:"createdAt"`
}

// MessageRead notifies the original sender that a message was read.
type MessageRead struct {
	MessageID string `json:"messageId"`
}

// UserTyping tells the receiver that userID is typing. Timestamp is Unix milliseconds.
type UserTyping struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
	Timestamp      int64  `json:"timestamp"`
}

// UserStatusChanged is the presence delta broadcast to every client.
type UserStatusChanged struct {
	UserID string `json:"userId"`
	Status Status `json:"status"`
}

// ErrorData is sent to the caller's own connection only.
type ErrorData struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

const (
	AckStatusOK    = "ok"
	AckStatusError = "error"
)

// AckData answers an inbound event carrying an ackId.
// Message holds the NewMessage on success or a reason string on failure.
type AckData struct {
	Status  string `json:"status"`
	Message any    `json:"message"`
}
