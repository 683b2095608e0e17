package core

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-presence/internal/broker"
	"github.com/vovakirdan/wirechat-presence/internal/proto"
)

func TestRouterDeliverSkipsOwnEnvelopes(t *testing.T) {
	registry := NewRegistry()
	router := NewRouter(registry, broker.NewMemory(), "a", nil, zerolog.Nop())

	s := NewSession("c1")
	if err := s.Authenticate("u1"); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	registry.Join("u1", s.ID)
	router.attach(s)

	own := broker.Envelope{Origin: "a", Target: "u1", Event: proto.EventUserTyping, Payload: []byte(`{}`)}
	if router.Deliver(own) {
		t.Fatal("own envelope should be skipped")
	}
	if len(s.Events) != 0 {
		t.Fatalf("own envelope delivered %d events", len(s.Events))
	}

	remote := own
	remote.Origin = "b"
	if !router.Deliver(remote) {
		t.Fatal("remote envelope should be delivered")
	}
	mustEvent(t, s.Events, proto.EventUserTyping)
}

func TestRouterToUserPrefersLocalConnection(t *testing.T) {
	registry := NewRegistry()
	shared := broker.NewMemory()
	t.Cleanup(func() { _ = shared.Close() })
	router := NewRouter(registry, shared, "a", nil, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	sub, err := shared.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	s := NewSession("c1")
	if err := s.Authenticate("u1"); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	registry.Join("u1", s.ID)
	router.attach(s)

	router.ToUser(ctx, "u1", proto.EventUserTyping, proto.UserTyping{UserID: "u2"})
	mustEvent(t, s.Events, proto.EventUserTyping)
	select {
	case env := <-sub:
		t.Fatalf("local delivery should not publish, got %+v", env)
	default:
	}

	router.ToUser(ctx, "u9", proto.EventUserTyping, proto.UserTyping{UserID: "u2"})
	select {
	case env := <-sub:
		if env.Target != "u9" || env.Origin != "a" {
			t.Fatalf("unexpected envelope: %+v", env)
		}
	default:
		t.Fatal("remote user should be published")
	}
}
