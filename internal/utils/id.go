package utils

import "github.com/google/uuid"

// NewID returns a random UUIDv4 string used for connection handles,
// message ids and instance ids.
func NewID() string {
	return uuid.NewString()
}
