// Package broker carries routed events between server instances so a user
// connected to one process can receive events raised on another.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrClosed is returned when publishing to or subscribing on a closed broker.
var ErrClosed = errors.New("broker closed")

// Envelope is one routed event on the shared channel.
// An empty Target means every connected client.
type Envelope struct {
	Origin  string          `json:"origin"`
	Target  string          `json:"target,omitempty"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Broadcast reports whether the envelope addresses every client.
func (e Envelope) Broadcast() bool {
	return e.Target == ""
}

// Broker is an append-only publish/subscribe channel shared by all instances.
// Every subscriber, including the publishing instance, receives every envelope
// in publish order.
type Broker interface {
	Publish(ctx context.Context, env Envelope) error
	Subscribe(ctx context.Context) (<-chan Envelope, error)
	Close() error
}

// Encode serialises an envelope for the wire.
func Encode(env Envelope) ([]byte, error) {
	if env.Event == "" {
		return nil, errors.New("envelope event is required")
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}

// Decode parses an envelope received from the wire.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, errors.New("decode envelope: missing event")
	}
	return env, nil
}
