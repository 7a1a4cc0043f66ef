package events

import (
	"context"

	"github.com/mselser95/fill-reconciler/pkg/types"
)

// MetricsHandler is the only writer of the reconciliation metrics.
type MetricsHandler struct{}

// NewMetricsHandler creates a new metrics handler.
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

// HandleEvent implements Handler.
func (m *MetricsHandler) HandleEvent(_ context.Context, event types.Event) error {
	switch event.Type {
	case types.EventSessionStarted:
		SessionsStartedTotal.Inc()
		SessionsActive.Inc()

	case types.EventStatusTransition:
		StatusTransitionsTotal.WithLabelValues(event.From, event.To).Inc()

	case types.EventRetryAttempt:
		RetryAttemptsTotal.WithLabelValues(event.Operation, event.ErrorClass).Inc()

	case types.EventPositionDivergence:
		PositionDivergencesTotal.Inc()

	case types.EventSessionEnded:
		SessionsActive.Dec()
		if event.Outcome == nil {
			return nil
		}
		o := event.Outcome

		OutcomesTotal.WithLabelValues(string(o.Kind), string(o.Method)).Inc()
		SessionDurationSeconds.Observe(o.Elapsed.Seconds())
		PollsPerSession.Observe(float64(o.Polls))

		if o.Flagged {
			FlaggedOutcomesTotal.Inc()
		}
		if o.HasFill() && o.Slippage != 0 {
			FillSlippage.Observe(o.Slippage)
		}
		if o.SlippageFlagged {
			SlippageFlaggedTotal.Inc()
		}
	}

	return nil
}
