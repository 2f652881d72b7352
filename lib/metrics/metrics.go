// Package metrics wires the download cache's counters into
// github.com/prometheus/client_golang for introspection.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Cache holds the counters the download cache updates as it serves
// requests: hits, misses, and the queue-full and timeout warning-file
// outcomes. The error warning-file outcome is not counted.
type Cache struct {
	Hits      prometheus.Counter
	Misses    prometheus.Counter
	QueueFull prometheus.Counter
	Timeouts  prometheus.Counter
}

// NewCache registers and returns a fresh set of cache counters against the
// default Prometheus registry.
func NewCache() *Cache {
	c := &Cache{
		Hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "genbankfs",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Opens served directly from the on-disk cache.",
		}),
		Misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "genbankfs",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Opens that required resolving an origin URL.",
		}),
		QueueFull: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "genbankfs",
			Subsystem: "cache",
			Name:      "queue_full_total",
			Help:      "Opens that received the queue-full warning file.",
		}),
		Timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "genbankfs",
			Subsystem: "cache",
			Name:      "timeouts_total",
			Help:      "Opens that received the timeout warning file.",
		}),
	}
	for _, collector := range []prometheus.Collector{c.Hits, c.Misses, c.QueueFull, c.Timeouts} {
		_ = prometheus.Register(collector)
	}
	return c
}
