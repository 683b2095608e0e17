package broker

import (
	"context"
	"errors"
	"sync"
)

const memorySubscriberBuffer = 1024

// ErrSubscriberFull is returned when at least one subscriber could not keep up.
var ErrSubscriberFull = errors.New("broker subscriber buffer full")

// Memory is an in-process Broker. Several hubs sharing one Memory behave like
// separate instances attached to the same channel.
type Memory struct {
	mu     sync.Mutex
	subs   map[chan Envelope]struct{}
	closed bool
}

// NewMemory returns an empty in-process broker.
func NewMemory() *Memory {
	return &Memory{subs: make(map[chan Envelope]struct{})}
}

// Publish hands env to every subscriber without blocking.
func (m *Memory) Publish(ctx context.Context, env Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	var dropped bool
	for ch := range m.subs {
		select {
		case ch <- env:
		default:
			dropped = true
		}
	}
	if dropped {
		return ErrSubscriberFull
	}
	return nil
}

// Subscribe registers a subscriber that lives until ctx is done or the broker closes.
func (m *Memory) Subscribe(ctx context.Context) (<-chan Envelope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	ch := make(chan Envelope, memorySubscriberBuffer)
	m.subs[ch] = struct{}{}

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.subs[ch]; ok {
			delete(m.subs, ch)
			close(ch)
		}
	}()

	return ch, nil
}

// Close closes every subscriber channel.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	for ch := range m.subs {
		delete(m.subs, ch)
		close(ch)
	}
	return nil
}
