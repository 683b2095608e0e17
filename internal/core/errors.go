package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeRejectedConnection   = "rejected_connection"
	ErrCodeInvalidPayload       = "invalid_payload"
	ErrCodeUnreachableRecipient = "unreachable_recipient"
	ErrCodeUnknownEvent         = "unknown_event"
	ErrCodeSessionReplaced      = "session_replaced"
)

var (
	ErrRejectedConnection = errors.New("connection rejected")
	ErrSessionClosed      = errors.New("session closed")
	ErrHubStopped         = errors.New("hub stopped")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

func invalidPayload(msg string) *CoreError {
	return coreError(ErrCodeInvalidPayload, msg)
}
