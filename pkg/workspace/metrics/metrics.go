// Package metrics instruments the client core with prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the client core counters.
type Metrics struct {
	ExchangesStarted   prometheus.Counter
	ExchangesCompleted prometheus.Counter
	ExchangesCancelled prometheus.Counter
	ExchangesFailed    prometheus.Counter
	Chunks             *prometheus.CounterVec
	SyncRuns           prometheus.Counter
	CacheFlushes       prometheus.Counter
}

// New registers and returns the counter set. Pass a fresh registry in
// tests to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ExchangesStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "loom_exchanges_started_total",
			Help: "Streaming exchanges opened.",
		}),
		ExchangesCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "loom_exchanges_completed_total",
			Help: "Streaming exchanges that closed normally.",
		}),
		ExchangesCancelled: factory.NewCounter(prometheus.CounterOpts{
			Name: "loom_exchanges_cancelled_total",
			Help: "Streaming exchanges stopped by the user or a session switch.",
		}),
		ExchangesFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "loom_exchanges_failed_total",
			Help: "Streaming exchanges that ended in a transport or protocol error.",
		}),
		Chunks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loom_chunks_total",
			Help: "Chunks applied, by type.",
		}, []string{"type"}),
		SyncRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "loom_sync_runs_total",
			Help: "Remote sync passes completed.",
		}),
		CacheFlushes: factory.NewCounter(prometheus.CounterOpts{
			Name: "loom_cache_flushes_total",
			Help: "Debounced cache writes flushed.",
		}),
	}
}

// NewNop returns a metrics set backed by a throwaway registry, for
// callers that do not export metrics.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
