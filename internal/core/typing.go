package core

import (
	"strings"

	"golang.org/x/time/rate"
)

// typingLimiter throttles typing signals per sender/receiver pair.
// A nil limiter or a zero rate allows everything.
type typingLimiter struct {
	limit   rate.Limit
	burst   int
	buckets map[string]*rate.Limiter
}

func newTypingLimiter(limit rate.Limit, burst int) *typingLimiter {
	if limit <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &typingLimiter{
		limit:   limit,
		burst:   burst,
		buckets: make(map[string]*rate.Limiter),
	}
}

func (t *typingLimiter) allow(senderID, receiverID string) bool {
	if t == nil {
		return true
	}
	key := senderID + "\x00" + receiverID
	lim, ok := t.buckets[key]
	if !ok {
		lim = rate.NewLimiter(t.limit, t.burst)
		t.buckets[key] = lim
	}
	return lim.Allow()
}

// forget drops every bucket opened by senderID.
func (t *typingLimiter) forget(senderID string) {
	if t == nil {
		return
	}
	prefix := senderID + "\x00"
	for key := range t.buckets {
		if strings.HasPrefix(key, prefix) {
			delete(t.buckets, key)
		}
	}
}
