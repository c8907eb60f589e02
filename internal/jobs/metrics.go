package jobs

import "github.com/prometheus/client_golang/prometheus"

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_runs_total",
			Help: "Background job runs, by job and result.",
		},
		[]string{"job", "result"},
	)
	runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jobs_run_duration_seconds",
			Help:    "Background job run latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)
	affectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_affected_rows_total",
			Help: "Rows changed by background jobs.",
		},
		[]string{"job"},
	)
)

func init() {
	prometheus.MustRegister(runsTotal, runDuration, affectedTotal)
}
