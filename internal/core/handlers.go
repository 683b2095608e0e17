package core

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/vovakirdan/wirechat-presence/internal/proto"
	"github.com/vovakirdan/wirechat-presence/internal/store"
	"github.com/vovakirdan/wirechat-presence/internal/utils"
)

func (h *Hub) handleCommand(ctx context.Context, cmd *Command) {
	if cmd == nil || cmd.Session == nil {
		return
	}
	s := cmd.Session
	if s.State() != StateActive {
		h.log.Debug().
			Str("session_id", s.ID).
			Str("state", s.State().String()).
			Msg("dropping command from inactive session")
		return
	}

	switch cmd.Kind {
	case CommandSendMessage:
		h.handleSendMessage(ctx, s, cmd)
	case CommandReadMessage:
		h.handleReadMessage(ctx, s, cmd)
	case CommandTyping:
		h.handleTyping(ctx, s, cmd)
	default:
		h.sendError(s, coreError(ErrCodeUnknownEvent, "unknown event type"))
	}
}

func (h *Hub) handleSendMessage(ctx context.Context, s *Session, cmd *Command) {
	var data proto.SendMessageData
	if err := decodePayload(cmd.Payload, &data); err != nil {
		h.ackError(s, cmd.AckID, err)
		return
	}
	receiverID := strings.TrimSpace(data.ReceiverID)
	if receiverID == "" {
		h.ackError(s, cmd.AckID, invalidPayload("receiverId is required"))
		return
	}
	if strings.TrimSpace(data.Text) == "" {
		h.ackError(s, cmd.AckID, invalidPayload("text is required"))
		return
	}

	_, delivered := h.registry.Lookup(receiverID)
	msg := proto.NewMessage{
		ID:          utils.NewID(),
		SenderID:    s.UserID(),
		ReceiverID:  receiverID,
		Text:        data.Text,
		IsDelivered: delivered,
		CreatedAt:   h.now().UTC(),
	}

	// A note to self arrives once, through the echo.
	if receiverID != s.UserID() {
		h.router.ToUser(ctx, receiverID, proto.EventNewMessage, msg)
	}
	h.router.ToConnection(s.ID, proto.EventNewMessage, msg)
	h.router.Ack(s.ID, cmd.AckID, proto.AckData{Status: proto.AckStatusOK, Message: msg})

	h.log.Debug().
		Str("message_id", msg.ID).
		Str("sender_id", msg.SenderID).
		Str("receiver_id", msg.ReceiverID).
		Bool("delivered", delivered).
		Msg("message routed")

	record := &store.Message{
		ID:         msg.ID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		Body:       msg.Text,
		Delivered:  msg.IsDelivered,
		CreatedAt:  msg.CreatedAt,
	}
	h.enqueuePersist("save_message", func(ctx context.Context) error {
		return h.store.SaveMessage(ctx, record)
	})
}

func (h *Hub) handleReadMessage(ctx context.Context, s *Session, cmd *Command) {
	var data proto.ReadMessageData
	if err := decodePayload(cmd.Payload, &data); err != nil {
		h.sendError(s, err)
		return
	}
	if strings.TrimSpace(data.MessageID) == "" {
		h.sendError(s, invalidPayload("messageId is required"))
		return
	}
	senderID := strings.TrimSpace(data.SenderID)
	if senderID == "" {
		// Nobody to notify.
		return
	}

	h.router.ToUser(ctx, senderID, proto.EventMessageRead, proto.MessageRead{MessageID: data.MessageID})

	messageID, readerID, readAt := data.MessageID, s.UserID(), h.now().UTC()
	h.enqueuePersist("mark_read", func(ctx context.Context) error {
		err := h.store.MarkRead(ctx, messageID, readerID, readAt)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	})
}

func (h *Hub) handleTyping(ctx context.Context, s *Session, cmd *Command) {
	var data proto.TypingData
	if err := decodePayload(cmd.Payload, &data); err != nil {
		h.sendError(s, err)
		return
	}
	receiverID := strings.TrimSpace(data.ReceiverID)
	if receiverID == "" {
		h.sendError(s, invalidPayload("receiverId is required"))
		return
	}
	if !h.typing.allow(s.UserID(), receiverID) {
		h.metrics.EventDropped("typing_rate_limited")
		return
	}

	h.router.ToUser(ctx, receiverID, proto.EventUserTyping, proto.UserTyping{
		UserID:         s.UserID(),
		ConversationID: data.ConversationID,
		Timestamp:      h.now().UnixMilli(),
	})
}

func (h *Hub) sendError(s *Session, err error) {
	h.router.ToConnection(s.ID, proto.EventError, errorData(err))
}

// ackError answers a failed send_message. Without an ack id the failure is
// only logged; send_message never emits an error event.
func (h *Hub) ackError(s *Session, ackID string, err error) {
	h.log.Debug().Err(err).Str("session_id", s.ID).Msg("send_message rejected")
	h.router.Ack(s.ID, ackID, proto.AckData{Status: proto.AckStatusError, Message: err.Error()})
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return invalidPayload("payload is required")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return invalidPayload("malformed payload")
	}
	return nil
}

func errorData(err error) proto.ErrorData {
	var ce *CoreError
	if errors.As(err, &ce) {
		return proto.ErrorData{Code: ce.Code, Message: ce.Message}
	}
	return proto.ErrorData{Message: err.Error()}
}
