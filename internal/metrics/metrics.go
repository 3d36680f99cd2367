// Package metrics exposes the executor's in-process counters as Prometheus
// collectors and keeps a bounded rolling latency window, read through
// Snapshot.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry wraps the order-lifecycle counters the telemetry contract
// names: orders_attempted, orders_filled, orders_failed, orders_recorded.
type Registry struct {
	OrdersAttempted prometheus.Counter
	OrdersFilled    prometheus.Counter
	OrdersFailed    prometheus.Counter
	OrdersRecorded  prometheus.Counter

	mu      sync.Mutex
	window  time.Duration
	samples []latencySample
}

type latencySample struct {
	at time.Time
	ms float64
}

// NewRegistry constructs a Registry and registers its counters with reg.
func NewRegistry(reg prometheus.Registerer, window time.Duration) *Registry {
	r := &Registry{
		OrdersAttempted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_attempted", Help: "Order placements attempted.",
		}),
		OrdersFilled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_filled", Help: "Orders that reached filled status.",
		}),
		OrdersFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_failed", Help: "Orders that reached rejected status.",
		}),
		OrdersRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_recorded", Help: "Orders journaled to terminal state.",
		}),
		window: window,
	}
	reg.MustRegister(r.OrdersAttempted, r.OrdersFilled, r.OrdersFailed, r.OrdersRecorded)
	return r
}

// RecordLatency appends a latency sample and drops anything older than the
// configured window.
func (r *Registry) RecordLatency(ms float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.samples = append(r.samples, latencySample{at: now, ms: ms})
	r.evictLocked(now)
}

func (r *Registry) evictLocked(now time.Time) {
	cutoff := now.Add(-r.window)
	kept := r.samples[:0]
	for _, s := range r.samples {
		if s.at.After(cutoff) {
			kept = append(kept, s)
		}
	}
	r.samples = kept
}

// Snapshot returns the count and mean of latency samples within the
// current window.
func (r *Registry) Snapshot() (count int, meanMs float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictLocked(time.Now())
	if len(r.samples) == 0 {
		return 0, 0
	}
	var sum float64
	for _, s := range r.samples {
		sum += s.ms
	}
	return len(r.samples), sum / float64(len(r.samples))
}
