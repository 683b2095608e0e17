package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

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
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	user := flag.String("user", "cli-user", "user id to connect as")
	token := flag.String("token", "", "JWT sent as Authorization bearer")
	peer := flag.String("to", "", "default receiver for messages")
	flag.Parse()

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	u, err := url.Parse(*addr)
	if err != nil {
		return fmt.Errorf("parse addr: %w", err)
	}
	q := u.Query()
	q.Set("userId", *user)
	u.RawQuery = q.Encode()

	opts := &websocket.DialOptions{}
	if *token != "" {
		opts.HTTPHeader = map[string][]string{"Authorization": {"Bearer " + *token}}
	}

	conn, _, err := websocket.Dial(ctx, u.String(), opts)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	fmt.Printf("Connected to %s as %s\n", *addr, *user)
	fmt.Println("Type a message and press Enter. Prefix with @user to pick a receiver. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn, *peer)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var f frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			case 4001:
				fmt.Println("session replaced by another connection")
				return
			case 4401:
				fmt.Println("connection rejected")
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		if f.Type == proto.OutboundTypeAck {
			var ack struct {
				Status  string          `json:"status"`
				Message json.RawMessage `json:"message"`
			}
			if err := json.Unmarshal(f.Data, &ack); err != nil {
				log.Printf("unmarshal ack: %v", err)
				continue
			}
			if ack.Status != proto.AckStatusOK {
				fmt.Printf("send failed: %s\n", ack.Message)
			}
			continue
		}

		switch f.Event {
		case proto.EventNewMessage:
			var evt proto.NewMessage
			if err := json.Unmarshal(f.Data, &evt); err != nil {
				log.Printf("unmarshal new_message: %v", err)
				continue
			}
			mark := ""
			if !evt.IsDelivered {
				mark = " (offline)"
			}
			fmt.Printf("%s -> %s: %s%s\n", evt.SenderID, evt.ReceiverID, evt.Text, mark)
		case proto.EventUserStatusChanged:
			var evt proto.UserStatusChanged
			if err := json.Unmarshal(f.Data, &evt); err != nil {
				log.Printf("unmarshal user_status_changed: %v", err)
				continue
			}
			fmt.Printf("* %s is %s\n", evt.UserID, evt.Status)
		case proto.EventUserTyping:
			var evt proto.UserTyping
			if err := json.Unmarshal(f.Data, &evt); err == nil {
				fmt.Printf("* %s is typing\n", evt.UserID)
			}
		case proto.EventOnlineUsers:
			var users []string
			if err := json.Unmarshal(f.Data, &users); err == nil {
				fmt.Printf("* online: %s\n", strings.Join(users, ", "))
			}
		default:
			fmt.Printf("event=%s data=%s\n", f.Event, f.Data)
		}
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, peer string) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	seq := 0
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}

			to := peer
			if strings.HasPrefix(text, "@") {
				name, rest, _ := strings.Cut(text[1:], " ")
				to, text = name, strings.TrimSpace(rest)
			}
			if to == "" {
				fmt.Println("no receiver: use -to or prefix with @user")
				continue
			}

			payload, err := json.Marshal(proto.SendMessageData{ReceiverID: to, Text: text})
			if err != nil {
				log.Printf("marshal send_message: %v", err)
				return
			}
			seq++
			inbound := proto.Inbound{Type: proto.InboundTypeSendMessage, Data: payload, AckID: strconv.Itoa(seq)}
			if err := wsjson.Write(ctx, conn, inbound); err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}
