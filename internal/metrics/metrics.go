// Package metrics exposes collabedit's Prometheus collectors: sync queue
// depth, persistence failures, and OT transform throughput, registered
// against the default registry and served at /metrics via promhttp.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector the editor service updates.
type Metrics struct {
	QueueDepth       prometheus.GaugeVec
	SyncFailuresTotal prometheus.CounterVec
	OperationsAppliedTotal prometheus.CounterVec
	TransformsTotal  prometheus.Counter
	DocumentSaveDuration prometheus.Histogram
}

var (
	instance *Metrics
	once     sync.Once
)

// Initialize creates and registers all collectors. Safe to call more than
// once; only the first call registers anything.
func Initialize() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			QueueDepth: *promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "collabedit_offline_queue_depth",
					Help: "Number of operations currently queued for a document's sync driver",
				},
				[]string{"document_id"},
			),
			SyncFailuresTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "collabedit_sync_failures_total",
					Help: "Total number of failed operation persistence attempts",
				},
				[]string{"document_id"},
			),
			OperationsAppliedTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "collabedit_operations_applied_total",
					Help: "Total number of operations applied to a document's in-memory content",
				},
				[]string{"document_id", "kind"},
			),
			TransformsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "collabedit_transforms_total",
					Help: "Total number of pairwise operation transforms performed",
				},
			),
			DocumentSaveDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "collabedit_document_save_duration_seconds",
					Help:    "Time taken to persist a document snapshot",
					Buckets: prometheus.DefBuckets,
				},
			),
		}
	})
	return instance
}

// Get returns the global metrics instance, initializing it if necessary.
func Get() *Metrics {
	if instance == nil {
		return Initialize()
	}
	return instance
}
