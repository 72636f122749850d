// Package stats collects job counters (compiled, failed, rejected) the way
// the original stats.c did with a shared-memory ring, but backed by
// Prometheus counters (github.com/prometheus/client_golang) so the numbers
// are exposed in a format any modern dashboard can scrape. This package
// only owns the write side; exposing /metrics over HTTP is left to the
// out-of-scope external monitor.
package stats

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector tracks per-outcome job counts for one distccd process.
type Collector struct {
	mu       sync.Mutex
	Compiled prometheus.Counter
	Failed   prometheus.Counter
	Rejected prometheus.Counter
	Active   prometheus.Gauge
}

// NewCollector builds a Collector and registers its metrics with reg. Pass
// prometheus.NewRegistry() in tests to avoid colliding with the default
// global registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		Compiled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "distccd_jobs_compiled_total",
			Help: "Number of compile jobs that completed successfully.",
		}),
		Failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "distccd_jobs_failed_total",
			Help: "Number of compile jobs that exited non-zero or were signalled.",
		}),
		Rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "distccd_jobs_rejected_total",
			Help: "Number of connections rejected by the access filter or auth layer.",
		}),
		Active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "distccd_workers_active",
			Help: "Number of worker processes currently handling a job.",
		}),
	}
	reg.MustRegister(c.Compiled, c.Failed, c.Rejected, c.Active)
	return c
}

// RecordCompiled increments the successful-job counter.
func (c *Collector) RecordCompiled() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Compiled.Inc()
}

// RecordFailed increments the failed-job counter.
func (c *Collector) RecordFailed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Failed.Inc()
}

// RecordRejected increments the rejected-connection counter.
func (c *Collector) RecordRejected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Rejected.Inc()
}
