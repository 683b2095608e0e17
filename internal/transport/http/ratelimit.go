package http

import "golang.org/x/time/rate"

// newInboundLimiter limits inbound frames per connection. A nil limiter
// allows everything.
func newInboundLimiter(perSec float64, burst int) *rate.Limiter {
	if perSec <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSec), burst)
}

func allowInbound(l *rate.Limiter) bool {
	return l == nil || l.Allow()
}
