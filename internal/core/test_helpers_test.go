package core

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/wirechat-presence/internal/store"
)

func mustEvent(t *testing.T, ch <-chan *Event, name string) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Name == name {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event %q not received", name)
	return nil
}

// mustNoEvent fails if an event named name arrives within wait.
func mustNoEvent(t *testing.T, ch <-chan *Event, name string, wait time.Duration) {
	t.Helper()

	deadline := time.After(wait)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev != nil && ev.Name == name {
				t.Fatalf("unexpected event %q: %+v", name, ev.Payload)
			}
		case <-deadline:
			return
		}
	}
}

// drain discards everything currently queued.
func drain(ch <-chan *Event) {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// decodeAs converts a payload to T. Payloads that crossed a broker are raw
// JSON; local ones are the typed value.
func decodeAs[T any](t *testing.T, payload any) T {
	t.Helper()

	var out T
	if v, ok := payload.(T); ok {
		return v
	}
	raw, ok := payload.(json.RawMessage)
	if !ok {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode payload %s: %v", raw, err)
	}
	return out
}

func startHub(t *testing.T, opts Options) (*Hub, context.Context) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	hub := NewHub(opts)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub, ctx
}

func connect(t *testing.T, ctx context.Context, hub *Hub, handle, userID string) *Session {
	t.Helper()

	s := NewSession(handle)
	if err := s.Authenticate(userID); err != nil {
		t.Fatalf("authenticate %s: %v", userID, err)
	}
	if err := hub.Connect(ctx, s); err != nil {
		t.Fatalf("connect %s: %v", userID, err)
	}
	return s
}

func dispatch(t *testing.T, ctx context.Context, hub *Hub, s *Session, eventType, payload, ackID string) {
	t.Helper()

	cmd := &Command{
		Session: s,
		Kind:    CommandKindFor(eventType),
		AckID:   ackID,
	}
	if payload != "" {
		cmd.Payload = json.RawMessage(payload)
	}
	if err := hub.Dispatch(ctx, cmd); err != nil {
		t.Fatalf("dispatch %s: %v", eventType, err)
	}
}

type memoryStore struct {
	mu       sync.Mutex
	messages map[string]*store.Message
}

func newMemoryStore() *memoryStore {
	return &memoryStore{messages: make(map[string]*store.Message)}
}

func (m *memoryStore) SaveMessage(_ context.Context, msg *store.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *msg
	m.messages[msg.ID] = &cp
	return nil
}

func (m *memoryStore) MarkRead(_ context.Context, messageID, readerID string, readAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[messageID]
	if !ok || msg.ReceiverID != readerID {
		return store.ErrNotFound
	}
	if msg.ReadAt == nil {
		msg.ReadAt = &readAt
	}
	return nil
}

func (m *memoryStore) GetMessage(_ context.Context, id string) (*store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *msg
	return &cp, nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
