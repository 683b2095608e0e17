package core

import (
	"encoding/json"

	"github.com/vovakirdan/wirechat-presence/internal/proto"
)

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandSendMessage delivers a direct message to its receiver.
	CommandSendMessage CommandKind = iota
	// CommandReadMessage tells the original sender a message was read.
	CommandReadMessage
	// CommandTyping forwards a typing signal to the receiver.
	CommandTyping
	// CommandUnknown is an inbound event name the core does not handle.
	CommandUnknown
)

// CommandKindFor maps an inbound event name to its command kind.
func CommandKindFor(eventType string) CommandKind {
	switch eventType {
	case proto.InboundTypeSendMessage:
		return CommandSendMessage
	case proto.InboundTypeReadMessage:
		return CommandReadMessage
	case proto.InboundTypeTyping:
		return CommandTyping
	default:
		return CommandUnknown
	}
}

// Command represents an action requested by a session. Payload is decoded
// and validated by the hub so shape errors follow each event's error contract.
type Command struct {
	Session *Session
	Kind    CommandKind
	Payload json.RawMessage
	AckID   string
}
