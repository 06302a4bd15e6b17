// Package metrics exposes the process-wide Prometheus collectors for the
// ledger service. Collectors register against the default registry and are
// served by the web server's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StepsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tally_steps_recorded_total",
		Help: "The total number of step records written",
	})
	StepReplays = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tally_step_replays_total",
		Help: "The number of step writes that replaced an existing record",
	})
	SessionsFinalized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tally_sessions_finalized_total",
		Help: "The number of sessions moved to the submitted state",
	})
	BatchJobs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tally_batch_jobs_total",
		Help: "The total number of accepted batch imports",
	})
	BatchItemsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tally_batch_items_failed_total",
		Help: "The number of batch items whose processing failed",
	})
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tally_http_request_seconds",
		Help:    "Latency of API requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "code"})
)
