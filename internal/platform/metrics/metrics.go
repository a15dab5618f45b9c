package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics of the query API.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	EndpointLatency *prometheus.HistogramVec
	// Query metrics
	SearchResults    prometheus.Histogram
	AnonymizedReads  prometheus.Counter
	RetentionDeletes prometheus.Counter
}

// New registers the metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "audittrail_http_requests_total",
			Help: "Total number of HTTP requests, labeled by route, method and status",
		}, []string{"route", "method", "status"}),
		EndpointLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "audittrail_http_request_duration_seconds",
			Help:    "Latency of endpoints in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		SearchResults: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "audittrail_api_search_results",
			Help:    "Number of events returned per search page",
			Buckets: []float64{0, 1, 10, 50, 100, 500, 1000},
		}),
		AnonymizedReads: factory.NewCounter(prometheus.CounterOpts{
			Name: "audittrail_api_anonymized_reads_total",
			Help: "Total number of search responses served with anonymized actors",
		}),
		RetentionDeletes: factory.NewCounter(prometheus.CounterOpts{
			Name: "audittrail_api_retention_deleted_events_total",
			Help: "Total number of events deleted through the retention endpoint",
		}),
	}
}

// ObserveRequest records one completed request. route is the chi route pattern.
func (m *Metrics) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	m.RequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.EndpointLatency.WithLabelValues(route).Observe(elapsed.Seconds())
}

// ObserveSearch records the size of a returned search page.
func (m *Metrics) ObserveSearch(returned int, anonymized bool) {
	m.SearchResults.Observe(float64(returned))
	if anonymized {
		m.AnonymizedReads.Inc()
	}
}

func (m *Metrics) AddRetentionDeletes(n int64) {
	m.RetentionDeletes.Add(float64(n))
}
