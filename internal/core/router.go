package core

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-presence/internal/broker"
	"github.com/vovakirdan/wirechat-presence/internal/metrics"
)

const publishTimeout = 2 * time.Second

// Router delivers events to one user, every client, or one connection.
//
// Local connections are always served directly. With a broker, ToAll also
// publishes an envelope for the other instances, and ToUser publishes when
// the user is not connected here. Envelopes that come back to their origin
// are skipped by Deliver.
type Router struct {
	registry *Registry
	conns    map[string]*Session
	broker   broker.Broker
	origin   string
	metrics  metrics.Recorder
	log      zerolog.Logger
}

// NewRouter creates a router resolving users through registry.
// b may be nil for a single-instance deployment.
func NewRouter(registry *Registry, b broker.Broker, origin string, rec metrics.Recorder, logger zerolog.Logger) *Router {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Router{
		registry: registry,
		conns:    make(map[string]*Session),
		broker:   b,
		origin:   origin,
		metrics:  rec,
		log:      logger.With().Str("component", "router").Logger(),
	}
}

// ToUser delivers to the user's connection. An offline user is a silent no-op.
func (r *Router) ToUser(ctx context.Context, userID, event string, payload any) {
	if _, ok := r.registry.Lookup(userID); ok || r.broker == nil {
		r.deliverToUser(userID, &Event{Name: event, Payload: payload})
		return
	}
	r.publish(ctx, userID, event, payload)
}

// ToAll delivers to every connected client.
func (r *Router) ToAll(ctx context.Context, event string, payload any) {
	r.deliverToAll(&Event{Name: event, Payload: payload})
	if r.broker != nil {
		r.publish(ctx, "", event, payload)
	}
}

// ToLocal delivers to every client connected to this instance only.
func (r *Router) ToLocal(event string, payload any) {
	r.deliverToAll(&Event{Name: event, Payload: payload})
}

// ToConnection delivers to one local connection, bypassing the registry and
// the broker. It reports whether the event was queued.
func (r *Router) ToConnection(handle, event string, payload any) bool {
	s, ok := r.conns[handle]
	if !ok {
		return false
	}
	return r.deliver(s, &Event{Name: event, Payload: payload})
}

// Ack answers ackID on one local connection. Empty ack ids are ignored.
func (r *Router) Ack(handle, ackID string, payload any) bool {
	if ackID == "" {
		return false
	}
	s, ok := r.conns[handle]
	if !ok {
		return false
	}
	return r.deliver(s, &Event{Name: EventAck, AckID: ackID, Payload: payload})
}

// Deliver hands an envelope received from the broker to local connections.
// Envelopes published by this instance were already delivered locally and
// are skipped; it reports whether env was handled.
func (r *Router) Deliver(env broker.Envelope) bool {
	if env.Origin == r.origin {
		return false
	}
	ev := &Event{Name: env.Event, Payload: env.Payload}
	if env.Broadcast() {
		r.deliverToAll(ev)
		return true
	}
	r.deliverToUser(env.Target, ev)
	return true
}

// Connections returns the number of attached local connections.
func (r *Router) Connections() int {
	return len(r.conns)
}

func (r *Router) attach(s *Session) {
	r.conns[s.ID] = s
}

func (r *Router) detach(handle string) {
	delete(r.conns, handle)
}

func (r *Router) conn(handle string) (*Session, bool) {
	s, ok := r.conns[handle]
	return s, ok
}

func (r *Router) deliverToUser(userID string, ev *Event) {
	handle, ok := r.registry.Lookup(userID)
	if !ok {
		r.log.Debug().
			Str("code", ErrCodeUnreachableRecipient).
			Str("user_id", userID).
			Str("event", ev.Name).
			Msg("recipient offline, event not delivered")
		return
	}
	s, ok := r.conns[handle]
	if !ok {
		return
	}
	r.deliver(s, ev)
}

func (r *Router) deliverToAll(ev *Event) {
	for _, s := range r.conns {
		r.deliver(s, ev)
	}
}

func (r *Router) deliver(s *Session, ev *Event) bool {
	if !s.enqueue(ev) {
		r.metrics.EventDropped("queue_full")
		r.log.Warn().
			Str("session_id", s.ID).
			Str("user_id", s.UserID()).
			Str("event", ev.Name).
			Msg("session queue full or closed, dropping event")
		return false
	}
	r.metrics.EventRouted(ev.Name)
	return true
}

func (r *Router) publish(ctx context.Context, target, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		r.log.Error().Err(err).Str("event", event).Msg("marshal payload for broker")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	env := broker.Envelope{Origin: r.origin, Target: target, Event: event, Payload: data}
	if err := r.broker.Publish(ctx, env); err != nil {
		r.metrics.BrokerPublishFailed()
		r.log.Error().Err(err).Str("event", event).Str("target", target).Msg("broker publish failed")
	}
}
