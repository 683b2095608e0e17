package core

import (
	"strings"
	"sync/atomic"
)

const sessionEventBuffer = 256

// SessionState is a step in the lifecycle of one connection.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateAuthenticated
	StateActive
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is the server side of one transport connection.
// ID is the connection handle assigned by the transport.
//
// The transport moves a session from Connecting to Authenticated (or Closed);
// every later transition happens inside the hub loop.
type Session struct {
	ID     string
	Events chan *Event

	userID   string
	state    atomic.Int32
	closing  atomic.Bool
	replaced atomic.Bool

	// hub-owned
	eventsClosed bool
}

// NewSession creates a session in the Connecting state.
func NewSession(handle string) *Session {
	return &Session{
		ID:     handle,
		Events: make(chan *Event, sessionEventBuffer),
	}
}

// UserID returns the authenticated user, empty before authentication.
func (s *Session) UserID() string {
	return s.userID
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// Authenticate records the approved identity. An empty user identity is a
// rejected connection and closes the session.
func (s *Session) Authenticate(userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		s.Reject()
		return coreError(ErrCodeRejectedConnection, "user identity is required")
	}
	if !s.state.CompareAndSwap(int32(StateConnecting), int32(StateAuthenticated)) {
		return ErrSessionClosed
	}
	s.userID = userID
	return nil
}

// Reject closes a session that failed the handshake.
func (s *Session) Reject() {
	s.closing.Store(true)
	s.state.Store(int32(StateClosed))
}

// Replaced reports whether a newer connection for the same user evicted this one.
func (s *Session) Replaced() bool {
	return s.replaced.Load()
}

func (s *Session) setState(state SessionState) {
	s.state.Store(int32(state))
}

// enqueue queues ev without blocking. It reports false when the queue is
// full or already closed.
func (s *Session) enqueue(ev *Event) bool {
	if s.eventsClosed {
		return false
	}
	select {
	case s.Events <- ev:
		return true
	default:
		return false
	}
}

func (s *Session) closeEvents() {
	if s.eventsClosed {
		return
	}
	s.eventsClosed = true
	close(s.Events)
}
