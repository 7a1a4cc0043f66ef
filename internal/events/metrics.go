package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// SessionsStartedTotal tracks monitoring sessions started.
	SessionsStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconciler_sessions_started_total",
		Help: "Total number of fill monitoring sessions started",
	})

	// SessionsActive tracks sessions currently monitoring an order.
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reconciler_sessions_active",
		Help: "Number of fill monitoring sessions in progress",
	})

	// OutcomesTotal tracks terminal outcomes by kind and detection method.
	OutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciler_outcomes_total",
			Help: "Total number of session outcomes",
		},
		[]string{"kind", "method"},
	)

	// FlaggedOutcomesTotal tracks outcomes that need operator review.
	FlaggedOutcomesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconciler_flagged_outcomes_total",
		Help: "Total number of outcomes flagged for manual review",
	})

	// SessionDurationSeconds tracks time from session start to outcome.
	SessionDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reconciler_session_duration_seconds",
		Help:    "Duration of fill monitoring sessions",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	// PollsPerSession tracks status queries per session.
	PollsPerSession = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reconciler_polls_per_session",
		Help:    "Number of status polls per session",
		Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
	})

	// StatusTransitionsTotal tracks state machine transitions.
	StatusTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciler_status_transitions_total",
			Help: "Total number of session status transitions",
		},
		[]string{"from", "to"},
	)

	// RetryAttemptsTotal tracks retried broker calls by operation and error class.
	RetryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciler_retry_attempts_total",
			Help: "Total number of broker call retries",
		},
		[]string{"operation", "class"},
	)

	// FillSlippage tracks signed fill slippage (positive is adverse).
	FillSlippage = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reconciler_fill_slippage_ratio",
		Help:    "Fill slippage relative to the reference price",
		Buckets: []float64{-0.01, -0.005, -0.001, 0, 0.001, 0.005, 0.01, 0.05},
	})

	// SlippageFlaggedTotal tracks fills above the slippage warning threshold.
	SlippageFlaggedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconciler_slippage_flagged_total",
		Help: "Total number of fills with slippage above threshold",
	})

	// PositionDivergencesTotal tracks broker position mismatches.
	PositionDivergencesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconciler_position_divergences_total",
		Help: "Total number of position consistency failures",
	})

	// EventsDroppedTotal tracks events lost to a full or closed bus.
	EventsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconciler_events_dropped_total",
		Help: "Total number of events dropped by the event bus",
	})
)
