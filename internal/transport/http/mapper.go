package http

import (
	"github.com/vovakirdan/wirechat-presence/internal/core"
	"github.com/vovakirdan/wirechat-presence/internal/proto"
)

func inboundToCommand(session *core.Session, inbound proto.Inbound) *core.Command {
	return &core.Command{
		Session: session,
		Kind:    core.CommandKindFor(inbound.Type),
		Payload: inbound.Data,
		AckID:   inbound.AckID,
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	if event.Name == core.EventAck {
		return proto.Outbound{
			Type:  proto.OutboundTypeAck,
			AckID: event.AckID,
			Data:  event.Payload,
		}
	}
	return proto.Outbound{
		Type:  proto.OutboundTypeEvent,
		Event: event.Name,
		Data:  event.Payload,
	}
}

func errorFrame(code, message string) proto.Outbound {
	return proto.Outbound{
		Type:  proto.OutboundTypeEvent,
		Event: proto.EventError,
		Data:  proto.ErrorData{Code: code, Message: message},
	}
}
