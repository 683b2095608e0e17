package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// Message represents a persisted direct message.
type Message struct {
	ID         string
	SenderID   string
	ReceiverID string
	Body       string
	Delivered  bool
	CreatedAt  time.Time
	ReadAt     *time.Time
}

// MessageStore handles message persistence.
type MessageStore interface {
	// SaveMessage persists a message to storage.
	SaveMessage(ctx context.Context, msg *Message) error

	// MarkRead records that the receiver has read the message.
	// readerID must be the message's receiver; other callers are ignored.
	MarkRead(ctx context.Context, messageID, readerID string, readAt time.Time) error

	// GetMessage retrieves a message by ID.
	GetMessage(ctx context.Context, id string) (*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
