package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/wirechat-presence/internal/proto"
)

type frame struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	AckID string          `json:"ackId"`
	Data  json.RawMessage `json:"data"`
}

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

// run connects two users, sends a message from the first to the second and
// checks delivery, the sender's ack and the typing signal.
func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	sender := flag.String("sender", "smoke-a", "sending user id")
	receiver := flag.String("receiver", "smoke-b", "receiving user id")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	rconn, err := dial(ctx, *addr, *receiver)
	if err != nil {
		return err
	}
	defer rconn.Close(websocket.StatusNormalClosure, "bye")
	if _, err := waitFor(ctx, rconn, statusOf(*receiver, proto.StatusOnline)); err != nil {
		return fmt.Errorf("receiver presence: %w", err)
	}

	sconn, err := dial(ctx, *addr, *sender)
	if err != nil {
		return err
	}
	defer sconn.Close(websocket.StatusNormalClosure, "bye")
	if _, err := waitFor(ctx, sconn, statusOf(*sender, proto.StatusOnline)); err != nil {
		return fmt.Errorf("sender presence: %w", err)
	}

	if err := send(ctx, sconn, proto.InboundTypeTyping, proto.TypingData{ConversationID: "smoke", ReceiverID: *receiver}, ""); err != nil {
		return err
	}
	if _, err := waitFor(ctx, rconn, isEvent(proto.EventUserTyping)); err != nil {
		return fmt.Errorf("typing: %w", err)
	}

	if err := send(ctx, sconn, proto.InboundTypeSendMessage, proto.SendMessageData{ReceiverID: *receiver, Text: *text}, "smoke-1"); err != nil {
		return err
	}

	got, err := waitFor(ctx, rconn, isEvent(proto.EventNewMessage))
	if err != nil {
		return fmt.Errorf("new_message: %w", err)
	}
	var msg proto.NewMessage
	if err := json.Unmarshal(got.Data, &msg); err != nil {
		return fmt.Errorf("decode new_message: %w", err)
	}
	if msg.Text != *text || msg.SenderID != *sender || !msg.IsDelivered {
		return fmt.Errorf("unexpected message: %+v", msg)
	}

	ack, err := waitFor(ctx, sconn, func(f frame) bool { return f.Type == proto.OutboundTypeAck && f.AckID == "smoke-1" })
	if err != nil {
		return fmt.Errorf("ack: %w", err)
	}
	var ackData struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(ack.Data, &ackData); err != nil {
		return fmt.Errorf("decode ack: %w", err)
	}
	if ackData.Status != proto.AckStatusOK {
		return errors.New("send_message acknowledged with error")
	}

	fmt.Printf("smoke ok: %s -> %s delivered (id=%s)\n", msg.SenderID, msg.ReceiverID, msg.ID)
	return nil
}

func dial(ctx context.Context, addr, userID string) (*websocket.Conn, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("parse addr: %w", err)
	}
	q := u.Query()
	q.Set("userId", userID)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", userID, err)
	}
	return conn, nil
}

func send(ctx context.Context, conn *websocket.Conn, eventType string, data any, ackID string) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", eventType, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: eventType, Data: payload, AckID: ackID}); err != nil {
		return fmt.Errorf("send %s: %w", eventType, err)
	}
	return nil
}

func waitFor(ctx context.Context, conn *websocket.Conn, match func(frame) bool) (frame, error) {
	for {
		var f frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			return frame{}, err
		}
		if f.Event == proto.EventError {
			return frame{}, fmt.Errorf("server error: %s", f.Data)
		}
		if match(f) {
			return f, nil
		}
	}
}

func isEvent(name string) func(frame) bool {
	return func(f frame) bool { return f.Type == proto.OutboundTypeEvent && f.Event == name }
}

func statusOf(userID string, status proto.Status) func(frame) bool {
	return func(f frame) bool {
		if f.Event != proto.EventUserStatusChanged {
			return false
		}
		var ev proto.UserStatusChanged
		if err := json.Unmarshal(f.Data, &ev); err != nil {
			return false
		}
		return ev.UserID == userID && ev.Status == status
	}
}
