package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics tracks drains of the offline operation queue.
type SyncMetrics struct {
	operations *prometheus.CounterVec
	drains     prometheus.Histogram
	pending    prometheus.Gauge
}

// NewSyncMetrics registers the sync engine metrics on reg.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		return &SyncMetrics{}
	}
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sync_operations_total",
		Help:      "Replayed outbox operations by result.",
	}, []string{"result"})
	drains := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "sync_drain_duration_seconds",
		Help:      "Duration of queue drains in seconds.",
		Buckets:   prometheus.DefBuckets,
	})
	pending := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "outbox_pending_operations",
		Help:      "Operations waiting in the local outbox.",
	})
	reg.MustRegister(operations, drains, pending)
	return &SyncMetrics{
		operations: operations,
		drains:     drains,
		pending:    pending,
	}
}

// ObserveOperation counts one replay outcome (succeeded, failed, deferred).
func (s *SyncMetrics) ObserveOperation(result string) {
	if s == nil || s.operations == nil {
		return
	}
	s.operations.WithLabelValues(normalizeLabel(result)).Inc()
}

func (s *SyncMetrics) ObserveDrain(duration time.Duration) {
	if s == nil || s.drains == nil {
		return
	}
	s.drains.Observe(duration.Seconds())
}

// SetPending publishes the queue length observed after a drain or enqueue.
func (s *SyncMetrics) SetPending(count int64) {
	if s == nil || s.pending == nil {
		return
	}
	s.pending.Set(float64(count))
}
