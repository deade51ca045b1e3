package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the prometheus collectors exposed on /metrics.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	SyncPassesTotal     prometheus.Counter
	SyncRecordsTotal    prometheus.Counter
	SyncDuplicatesTotal prometheus.Counter
	SyncFailuresTotal   prometheus.Counter
}

// NewMetrics registers and returns the collector set.
func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"path", "method", "status_code"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path", "method"},
		),

		SyncPassesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sync_passes_total",
				Help: "Total number of completed feed sync passes",
			},
		),

		SyncRecordsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sync_records_total",
				Help: "Total number of feed records stored by sync passes",
			},
		),

		SyncDuplicatesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sync_duplicates_total",
				Help: "Total number of feed records rejected as duplicates",
			},
		),

		SyncFailuresTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sync_failures_total",
				Help: "Total number of sync pass failures",
			},
		),
	}
}
