package wallet

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// PositionQueriesTotal counts Data API position lookups by outcome.
	PositionQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciler_wallet_position_queries_total",
			Help: "Total Data API position queries",
		},
		[]string{"outcome"},
	)

	// PositionQueryDuration tracks Data API latency.
	PositionQueryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reconciler_wallet_position_query_duration_seconds",
		Help:    "Duration of Data API position queries",
		Buckets: prometheus.DefBuckets,
	})
)
