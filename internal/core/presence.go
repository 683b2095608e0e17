package core

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/vovakirdan/wirechat-presence/internal/broker"
	"github.com/vovakirdan/wirechat-presence/internal/proto"
)

// Broadcaster announces presence transitions to every client.
//
// Only status deltas cross instances. Each instance builds its own snapshot
// from the local registry plus the users other instances announced online.
// The remote view is rebuilt from deltas and lost on restart.
type Broadcaster struct {
	registry *Registry
	router   *Router
	remote   map[string]string // user id -> origin instance
}

// NewBroadcaster creates a broadcaster reading snapshots from registry.
func NewBroadcaster(registry *Registry, router *Router) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		router:   router,
		remote:   make(map[string]string),
	}
}

// Announce sends the status delta and then the full online snapshot.
// The snapshot is taken after the delta is queued, so it always reflects it.
func (b *Broadcaster) Announce(ctx context.Context, userID string, status proto.Status) {
	b.router.ToAll(ctx, proto.EventUserStatusChanged, proto.UserStatusChanged{
		UserID: userID,
		Status: status,
	})
	b.router.ToLocal(proto.EventOnlineUsers, b.Snapshot())
}

// Observe applies a status delta published by another instance: local
// clients get the delta, then a snapshot that includes it.
func (b *Broadcaster) Observe(env broker.Envelope) {
	if !b.router.Deliver(env) {
		return
	}
	var delta proto.UserStatusChanged
	if err := json.Unmarshal(env.Payload, &delta); err != nil || delta.UserID == "" {
		return
	}
	switch delta.Status {
	case proto.StatusOnline:
		b.remote[delta.UserID] = env.Origin
	case proto.StatusOffline:
		// A later online from another instance wins over a stale offline.
		if b.remote[delta.UserID] == env.Origin {
			delete(b.remote, delta.UserID)
		}
	}
	b.router.ToLocal(proto.EventOnlineUsers, b.Snapshot())
}

// Snapshot returns the sorted users online here or on another instance.
func (b *Broadcaster) Snapshot() []string {
	users := b.registry.ListOnline()
	if len(b.remote) == 0 {
		return users
	}
	seen := make(map[string]struct{}, len(users)+len(b.remote))
	for _, u := range users {
		seen[u] = struct{}{}
	}
	for u := range b.remote {
		if _, ok := seen[u]; !ok {
			users = append(users, u)
		}
	}
	sort.Strings(users)
	return users
}
