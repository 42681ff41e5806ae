package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsAddedTotal counts jobs accepted by AddJob
	JobsAddedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskline_jobs_added_total",
			Help: "Total number of jobs added to the queue",
		},
		[]string{"type"},
	)

	// JobsDispatchedTotal counts handler invocations
	JobsDispatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskline_jobs_dispatched_total",
			Help: "Total number of job attempts dispatched to a handler",
		},
		[]string{"type"},
	)

	// JobsCompletedTotal counts successful attempts
	JobsCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskline_jobs_completed_total",
			Help: "Total number of jobs completed successfully",
		},
		[]string{"type"},
	)

	// JobsFailedTotal counts failed attempts, including missing handlers
	JobsFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskline_jobs_failed_total",
			Help: "Total number of failed job attempts",
		},
		[]string{"type"},
	)

	// JobsRetriedTotal counts failures rescheduled with backoff
	JobsRetriedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskline_jobs_retried_total",
			Help: "Total number of failed jobs scheduled for retry",
		},
		[]string{"type"},
	)

	// JobsDeadTotal counts jobs moved to the dead letter queue
	JobsDeadTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskline_jobs_dead_total",
			Help: "Total number of jobs moved to the dead letter queue",
		},
		[]string{"type"},
	)

	// Jobs gauge for live jobs by status, plus "dead"
	Jobs = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "taskline_jobs",
			Help: "Number of jobs by status",
		},
		[]string{"status"},
	)

	// JobDuration observes successful handler run time
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskline_job_duration_seconds",
			Help:    "Handler execution time of completed jobs",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	// PersistErrors counts failed snapshot writes
	PersistErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskline_persist_errors_total",
			Help: "Total number of failed snapshot writes",
		},
		[]string{"record"},
	)

	// TicksSkipped counts scheduler ticks skipped because the previous tick was still running
	TicksSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "taskline_ticks_skipped_total",
			Help: "Total number of scheduler ticks skipped due to overlap",
		},
	)

	// RateLimitRejections counts rate limit rejections
	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskline_rate_limit_rejections_total",
			Help: "Total number of enqueue requests rejected due to rate limiting",
		},
		[]string{"type"},
	)
)
