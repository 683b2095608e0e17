package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/vovakirdan/wirechat-presence/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewWithSetup(":memory:", func(db *sql.DB) error {
		query := `
		CREATE TABLE messages (
			id          TEXT PRIMARY KEY,
			sender_id   TEXT NOT NULL,
			receiver_id TEXT NOT NULL,
			body        TEXT NOT NULL,
			delivered   BOOLEAN NOT NULL DEFAULT 0,
			created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			read_at     DATETIME
		);
		`
		_, err := db.Exec(query)
		return err
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveAndGetMessage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	createdAt := time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)
	msg := &store.Message{
		ID:         "m1",
		SenderID:   "u1",
		ReceiverID: "u2",
		Body:       "hi",
		Delivered:  true,
		CreatedAt:  createdAt,
	}
	if err := s.SaveMessage(ctx, msg); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.GetMessage(ctx, "m1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.SenderID != "u1" || got.ReceiverID != "u2" || got.Body != "hi" || !got.Delivered {
		t.Fatalf("unexpected message: %+v", got)
	}
	if !got.CreatedAt.Equal(createdAt) {
		t.Fatalf("expected created_at %v, got %v", createdAt, got.CreatedAt)
	}
	if got.ReadAt != nil {
		t.Fatalf("new message should be unread")
	}
}

func TestSaveMessageRequiresID(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveMessage(context.Background(), &store.Message{SenderID: "u1"}); err == nil {
		t.Fatalf("expected error for message without id")
	}
}

func TestGetMessageNotFound(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.GetMessage(context.Background(), "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMarkReadOnlyByReceiver(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveMessage(ctx, &store.Message{ID: "m1", SenderID: "u1", ReceiverID: "u2", Body: "hi", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := s.MarkRead(ctx, "m1", "u3", time.Now()); err != nil {
		t.Fatalf("mark read by stranger: %v", err)
	}
	got, err := s.GetMessage(ctx, "m1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ReadAt != nil {
		t.Fatalf("stranger must not mark message read")
	}

	first := time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)
	if err := s.MarkRead(ctx, "m1", "u2", first); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if err := s.MarkRead(ctx, "m1", "u2", first.Add(time.Hour)); err != nil {
		t.Fatalf("mark read again: %v", err)
	}

	got, err = s.GetMessage(ctx, "m1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ReadAt == nil || !got.ReadAt.Equal(first) {
		t.Fatalf("expected first read time %v, got %v", first, got.ReadAt)
	}
}

func TestNewAppliesMigrations(t *testing.T) {
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.SaveMessage(ctx, &store.Message{ID: "m1", SenderID: "a", ReceiverID: "b", Body: "x", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("save after migrations: %v", err)
	}
}
