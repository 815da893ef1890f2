package queue

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueueDepth is sampled by the dequeuers; state is delayed, ready or dlq.
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dispatch_queue_jobs",
		Help: "Dispatch jobs currently held by the queue, by state",
	}, []string{"queue", "state"})

	JobsEnqueuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_queue_enqueued_total",
		Help: "Dispatch jobs written to the queue, including retries and delay hops",
	})

	JobsSettledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_queue_settled_total",
		Help: "Delivered dispatch jobs by outcome",
	}, []string{"outcome"})

	JobsReclaimedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_queue_reclaimed_total",
		Help: "Stream entries claimed back from idle consumers",
	})

	JobHandleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dispatch_queue_handle_duration_seconds",
		Help:    "Time spent in the job handler, fan-out included",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	DeadLetteredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_queue_dead_lettered_total",
		Help: "Dispatch jobs moved to the dead letter queue",
	}, []string{"queue"})
)

func observeHandled(started time.Time, o outcome) {
	JobHandleDuration.Observe(time.Since(started).Seconds())
	JobsSettledTotal.WithLabelValues(string(o)).Inc()
}
