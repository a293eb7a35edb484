package engine

import "github.com/prometheus/client_golang/prometheus"

var (
	backlogJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ripq_backlog_jobs",
			Help: "Number of jobs waiting in the backlog.",
		},
	)

	activeJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ripq_active_jobs",
			Help: "Number of engine processes currently running.",
		},
	)

	storedJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ripq_stored_jobs",
			Help: "Number of job records held in memory, including finished ones awaiting cleanup.",
		},
	)

	jobsSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ripq_jobs_submitted_total",
			Help: "Total number of accepted job submissions.",
		},
	)

	jobsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ripq_jobs_finished_total",
			Help: "Total number of jobs that reached a terminal state.",
		},
		[]string{"status"},
	)

	jobsPurged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ripq_jobs_purged_total",
			Help: "Total number of finished jobs removed after the retention delay.",
		},
	)

	engineDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ripq_engine_run_seconds",
			Help:    "Wall-clock duration of engine subprocess runs, in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)
)

func init() {
	prometheus.MustRegister(backlogJobs)
	prometheus.MustRegister(activeJobs)
	prometheus.MustRegister(storedJobs)
	prometheus.MustRegister(jobsSubmitted)
	prometheus.MustRegister(jobsFinished)
	prometheus.MustRegister(jobsPurged)
	prometheus.MustRegister(engineDuration)

	// Pre-initialize outcome labels so they appear in /metrics from startup.
	jobsFinished.WithLabelValues("completed")
	jobsFinished.WithLabelValues("failed")
}
