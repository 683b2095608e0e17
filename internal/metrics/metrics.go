// Package metrics exposes Prometheus counters for presence and delivery.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the metrics surface used by the hub and transport.
type Recorder interface {
	SessionOpened()
	SessionClosed()
	SessionRejected(reason string)
	EventRouted(event string)
	EventDropped(reason string)
	BrokerPublishFailed()
	StoreFailed(op string)
}

// Collector records metrics into a Prometheus registry.
type Collector struct {
	online         prometheus.Gauge
	rejected       *prometheus.CounterVec
	routed         *prometheus.CounterVec
	dropped        *prometheus.CounterVec
	publishFailed  prometheus.Counter
	storeFailed    *prometheus.CounterVec
	sessionsOpened prometheus.Counter
}

// NewCollector creates a Collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		online: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wirechat_sessions_active",
			Help: "Sessions currently in the Active state on this instance.",
		}),
		sessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wirechat_sessions_opened_total",
			Help: "Sessions that reached the Active state.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wirechat_sessions_rejected_total",
			Help: "Handshakes rejected before activation.",
		}, []string{"reason"}),
		routed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wirechat_events_routed_total",
			Help: "Events queued to a local connection.",
		}, []string{"event"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wirechat_events_dropped_total",
			Help: "Events that were not delivered.",
		}, []string{"reason"}),
		publishFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wirechat_broker_publish_failures_total",
			Help: "Failed publishes to the fan-out broker.",
		}),
		storeFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wirechat_store_failures_total",
			Help: "Failed message store operations.",
		}, []string{"op"}),
	}

	reg.MustRegister(
		c.online,
		c.sessionsOpened,
		c.rejected,
		c.routed,
		c.dropped,
		c.publishFailed,
		c.storeFailed,
	)

	return c
}

func (c *Collector) SessionOpened() {
	c.online.Inc()
	c.sessionsOpened.Inc()
}

func (c *Collector) SessionClosed() {
	c.online.Dec()
}

func (c *Collector) SessionRejected(reason string) {
	c.rejected.WithLabelValues(reason).Inc()
}

func (c *Collector) EventRouted(event string) {
	c.routed.WithLabelValues(event).Inc()
}

func (c *Collector) EventDropped(reason string) {
	c.dropped.WithLabelValues(reason).Inc()
}

func (c *Collector) BrokerPublishFailed() {
	c.publishFailed.Inc()
}

func (c *Collector) StoreFailed(op string) {
	c.storeFailed.WithLabelValues(op).Inc()
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) SessionOpened() {}
func (Nop) SessionClosed() {}
func (Nop) SessionRejected(string) {}
func (Nop) EventRouted(string) {}
func (Nop) EventDropped(string) {}
func (Nop) BrokerPublishFailed() {}
func (Nop) StoreFailed(string) {}
