package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Dispatch metrics
var (
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_deliveries_total",
			Help: "Total number of per-recipient delivery attempts",
		},
		[]string{"status"}, // sent, failed
	)

	DispatchFanoutDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_fanout_duration_seconds",
			Help:    "Duration of the fan-out to all recipients of one content",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	DispatchRecipients = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_recipients",
			Help:    "Number of active recipients resolved per dispatch run",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	ContentFinalizedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_content_finalized_total",
			Help: "Total number of content status writes by the dispatcher",
		},
		[]string{"status"}, // sent, failed, not_applied
	)

	ArchiveErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_archive_errors_total",
			Help: "Total number of failed issue archive writes",
		},
	)

	ProviderUp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dispatch_provider_up",
			Help: "Whether the delivery channel passed its last health probes (1) or not (0)",
		},
		[]string{"provider"},
	)
)

// Scheduling metrics
var (
	ScheduleEnqueueTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schedule_enqueue_total",
			Help: "Total number of dispatch jobs enqueued by source",
		},
		[]string{"source", "result"}, // source: create, update, retry, reconcile
	)
)

// API metrics
var (
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Database metrics
var (
	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		},
	)

	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)
)

// SetPoolStats records connection pool occupancy.
func SetPoolStats(acquired, idle int32) {
	DBConnectionsActive.Set(float64(acquired))
	DBConnectionsIdle.Set(float64(idle))
}
