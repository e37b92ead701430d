// Package metrics exposes prometheus instrumentation for the session
// registry. The collector is optional; a nil *Collector is a valid no-op
// sink, so callers never need to guard their instrumentation calls.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the registry-level metrics. Create one with NewCollector
// and pass it to the session service configuration.
type Collector struct {
	activeSessions prometheus.Gauge
	bindsTotal     prometheus.Counter
	unbindsTotal   prometheus.Counter
	closedTotal    prometheus.Counter
	kicksTotal     prometheus.Counter
}

// NewCollector creates the session metrics and registers them with the given
// registerer. Panics if a metric with the same name is already registered.
//
// Parameters:
//   - reg: The prometheus registerer to register the metrics with
//     (e.g. prometheus.DefaultRegisterer)
//
// Returns:
//   - A new Collector
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "frontend",
			Subsystem: "session",
			Name:      "active_sessions",
			Help:      "Current number of registered sessions.",
		}),
		bindsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "frontend",
			Subsystem: "session",
			Name:      "binds_total",
			Help:      "Total successful uid binds.",
		}),
		unbindsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "frontend",
			Subsystem: "session",
			Name:      "unbinds_total",
			Help:      "Total successful uid unbinds.",
		}),
		closedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "frontend",
			Subsystem: "session",
			Name:      "closed_total",
			Help:      "Total sessions that went through the closed transition.",
		}),
		kicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "frontend",
			Subsystem: "session",
			Name:      "kicks_total",
			Help:      "Total administrative kick operations.",
		}),
	}

	reg.MustRegister(
		c.activeSessions,
		c.bindsTotal,
		c.unbindsTotal,
		c.closedTotal,
		c.kicksTotal,
	)

	return c
}

// SessionOpened increments the active session gauge.
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.activeSessions.Inc()
}

// SessionRemoved decrements the active session gauge.
func (c *Collector) SessionRemoved() {
	if c == nil {
		return
	}
	c.activeSessions.Dec()
}

// SessionClosed counts one completed closed transition.
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.closedTotal.Inc()
}

// Bound counts one successful bind.
func (c *Collector) Bound() {
	if c == nil {
		return
	}
	c.bindsTotal.Inc()
}

// Unbound counts one successful unbind.
func (c *Collector) Unbound() {
	if c == nil {
		return
	}
	c.unbindsTotal.Inc()
}

// Kicked counts one kick operation.
func (c *Collector) Kicked() {
	if c == nil {
		return
	}
	c.kicksTotal.Inc()
}
