package retention

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for retention runs.
type Metrics struct {
	RunsTotal           *prometheus.CounterVec
	EventsDeletedTotal  prometheus.Counter
	OutboxDeletedTotal  prometheus.Counter
	RunDurationSeconds  prometheus.Histogram
	LastSuccessUnixTime prometheus.Gauge
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// DefaultMetrics returns the process-wide retention metrics.
func DefaultMetrics() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "audittrail_retention_runs_total",
			Help: "Total retention runs by result (success, error)",
		}, []string{"result"}),
		EventsDeletedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "audittrail_retention_events_deleted_total",
			Help: "Total audit events removed by retention",
		}),
		OutboxDeletedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "audittrail_retention_outbox_deleted_total",
			Help: "Total processed outbox entries removed by retention",
		}),
		RunDurationSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "audittrail_retention_run_duration_seconds",
			Help:    "Duration of retention runs",
			Buckets: prometheus.DefBuckets,
		}),
		LastSuccessUnixTime: f.NewGauge(prometheus.GaugeOpts{
			Name: "audittrail_retention_last_success_timestamp_seconds",
			Help: "Unix time of the last successful retention run",
		}),
	}
}
