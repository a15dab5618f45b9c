package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the audit recorder.
type Metrics struct {
	// Queue metrics
	QueueDepth     prometheus.Gauge
	EventsDropped  prometheus.Counter
	EventsEnqueued prometheus.Counter

	// Processing metrics
	RecordDuration    prometheus.Histogram
	PersistDuration   prometheus.Histogram
	PersistFailures   *prometheus.CounterVec
	EventsPersisted   *prometheus.CounterVec
	WorkerDrainEvents prometheus.Counter
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns the process-wide recorder metrics, registering them on first use.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = newMetrics(promauto.With(prometheus.DefaultRegisterer))
	})
	return defaultMetrics
}

// NewWithRegistry registers a fresh set of metrics on reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	return newMetrics(promauto.With(reg))
}

func newMetrics(f promauto.Factory) *Metrics {
	return &Metrics{
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "audittrail_recorder_queue_depth",
			Help: "Current number of events in the recorder queue",
		}),
		EventsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "audittrail_recorder_events_dropped_total",
			Help: "Total number of audit events dropped because the buffer was full or the recorder closed",
		}),
		EventsEnqueued: f.NewCounter(prometheus.CounterOpts{
			Name: "audittrail_recorder_events_enqueued_total",
			Help: "Total number of audit events successfully enqueued",
		}),
		RecordDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "audittrail_recorder_record_duration_seconds",
			Help:    "Time spent in Record (enqueue or sync write)",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
		PersistDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "audittrail_recorder_persist_duration_seconds",
			Help:    "Time taken to hand an audit event to the sink",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		PersistFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "audittrail_recorder_persist_failures_total",
			Help: "Total number of audit events the sink failed to save, by risk level",
		}, []string{"risk_level"}),
		EventsPersisted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "audittrail_recorder_events_persisted_total",
			Help: "Total number of audit events saved, by risk level",
		}, []string{"risk_level"}),
		WorkerDrainEvents: f.NewCounter(prometheus.CounterOpts{
			Name: "audittrail_recorder_drain_events_total",
			Help: "Total number of audit events drained during graceful shutdown",
		}),
	}
}
