package generation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storysync_generation_jobs_started_total",
			Help: "Total number of generation jobs started by the coordinator.",
		},
	)
	jobsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storysync_generation_jobs_finished_total",
			Help: "Total number of generation jobs that reached a terminal state, partitioned by state and cause.",
		},
		[]string{"state", "cause"},
	)
	jobsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storysync_generation_jobs_active",
			Help: "Number of generation jobs currently submitted or polling.",
		},
	)
	pollAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storysync_generation_poll_attempts_total",
			Help: "Polling rounds issued to the remote service, partitioned by outcome.",
		},
		[]string{"outcome"},
	)
	submitRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storysync_generation_submit_retries_total",
			Help: "Submission retries caused by transient network errors.",
		},
	)
	pollDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "storysync_generation_poll_duration_seconds",
			Help:    "Duration of individual poll calls to the remote service.",
			Buckets: prometheus.DefBuckets,
		},
	)
)
