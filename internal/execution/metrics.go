package execution

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// RequestsTotal counts CLOB requests by operation and outcome class.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciler_clob_requests_total",
			Help: "Total CLOB requests by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	// RequestDurationSeconds tracks CLOB request latency.
	RequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reconciler_clob_request_duration_seconds",
			Help:    "Duration of CLOB requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// RateLimitWaitSeconds tracks time spent waiting on the shared request budget.
	RateLimitWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reconciler_clob_rate_limit_wait_seconds",
		Help:    "Time spent waiting for the request rate limiter",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
	})
)
