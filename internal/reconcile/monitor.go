package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mselser95/fill-reconciler/internal/broker"
	"github.com/mselser95/fill-reconciler/pkg/types"
	"go.uber.org/zap"
)

// FillMonitor drives the polling loop of a session until it reaches a terminal state.
type FillMonitor struct {
	broker     broker.Broker
	verifier   *Verifier
	scheduler  *PollScheduler
	retrier    *Retrier
	stallPolls int
	logger     *zap.Logger
}

// MonitorConfig holds configuration for the fill monitor.
type MonitorConfig struct {
	Broker                broker.Broker
	Verifier              *Verifier
	Scheduler             *PollScheduler
	Retrier               *Retrier
	PartialFillStallPolls int
	Logger                *zap.Logger
}

// NewFillMonitor creates a new fill monitor.
func NewFillMonitor(cfg *MonitorConfig) (*FillMonitor, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.Broker == nil {
		return nil, errors.New("broker cannot be nil")
	}

	if cfg.Scheduler == nil || cfg.Retrier == nil {
		return nil, errors.New("scheduler and retrier are required")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	verifier := cfg.Verifier
	if verifier == nil {
		verifier = NewVerifier()
	}

	stall := cfg.PartialFillStallPolls
	if stall < 1 {
		stall = 1
	}

	return &FillMonitor{
		broker:     cfg.Broker,
		verifier:   verifier,
		scheduler:  cfg.Scheduler,
		retrier:    cfg.Retrier,
		stallPolls: stall,
		logger:     cfg.Logger,
	}, nil
}

// Run polls until the session is terminal and returns the final state.
func (m *FillMonitor) Run(ctx context.Context, s *Session) State {
	for !s.state.Terminal() {
		m.Step(ctx, s)
	}
	return s.state
}

// Step performs one iteration of the loop. On a terminal session it does nothing.
func (m *FillMonitor) Step(ctx context.Context, s *Session) State {
	if s.state.Terminal() {
		return s.state
	}

	if ctx.Err() != nil {
		return s.transition(StateAborted, "session-aborted")
	}

	remaining := time.Until(s.Deadline)
	if remaining <= 0 {
		return s.transition(StateTimedOut, "deadline-reached")
	}

	timer := time.NewTimer(min(m.scheduler.Delay(s.polls), remaining))
	select {
	case <-ctx.Done():
		timer.Stop()
		return s.transition(StateAborted, "session-aborted")
	case <-timer.C:
	}

	if !time.Now().Before(s.Deadline) {
		return s.transition(StateTimedOut, "deadline-reached")
	}

	snapshot, err := fetchSnapshot(ctx, m.broker, m.retrier, s, "get-order-status")
	if err != nil {
		return m.handleFetchError(s, err)
	}

	s.observe(snapshot)
	m.logger.Debug("order-polled",
		zap.String("order-id", s.Intent.OrderID),
		zap.String("status", snapshot.Status.String()),
		zap.String("raw-status", snapshot.RawStatus),
		zap.Float64("filled-quantity", snapshot.FilledQuantity),
		zap.Int("poll", s.polls))

	return m.evaluate(ctx, s, snapshot)
}

func (m *FillMonitor) handleFetchError(s *Session, err error) State {
	switch ClassOf(err) {
	case broker.ClassAborted:
		return s.transition(StateAborted, "session-aborted")

	case broker.ClassPermanent:
		m.logger.Warn("order-query-permanent-failure",
			zap.String("order-id", s.Intent.OrderID),
			zap.Error(err))
		s.note = err.Error()
		return s.transition(StateRejected, "permanent-error")

	default:
		m.logger.Warn("order-query-failed-continuing",
			zap.String("order-id", s.Intent.OrderID),
			zap.Int("poll", s.polls),
			zap.Error(err))
		return s.transition(StatePolling, "retries-exhausted")
	}
}

func (m *FillMonitor) evaluate(ctx context.Context, s *Session, snapshot *types.OrderSnapshot) State {
	verdict := m.verifier.Verify(snapshot, s.Intent)

	if state, done := s.settleTerminal(snapshot, verdict, types.MethodPrimaryLoop); done {
		return state
	}

	if isPartial(snapshot, s.Intent) {
		return m.trackPartial(ctx, s, snapshot)
	}

	if verdict.Filled {
		m.logger.Info("fill-detected",
			zap.String("order-id", s.Intent.OrderID),
			zap.Strings("checks", verdict.CheckNames()),
			zap.Float64("confidence", verdict.Confidence),
			zap.Int("polls", s.polls))
		return s.markFilled(verdict, types.MethodPrimaryLoop, "fill-verified")
	}

	return s.state
}

// trackPartial cancels the remainder once the filled quantity stops growing.
func (m *FillMonitor) trackPartial(ctx context.Context, s *Session, snapshot *types.OrderSnapshot) State {
	if snapshot.FilledQuantity > s.partialQty {
		s.partialQty = snapshot.FilledQuantity
		s.partialStalls = 0
		m.logger.Info("partial-fill-progress",
			zap.String("order-id", s.Intent.OrderID),
			zap.Float64("filled-quantity", snapshot.FilledQuantity),
			zap.Float64("requested-quantity", s.Intent.Quantity))
		return s.state
	}

	s.partialStalls++
	if s.partialStalls < m.stallPolls {
		return s.state
	}

	m.logger.Info("partial-fill-stalled-canceling-remainder",
		zap.String("order-id", s.Intent.OrderID),
		zap.Float64("filled-quantity", snapshot.FilledQuantity),
		zap.Int("stalled-polls", s.partialStalls))

	return m.cancelRemainder(ctx, s)
}

func (m *FillMonitor) cancelRemainder(ctx context.Context, s *Session) State {
	s.cancelAttempted = true
	err := Do(ctx, m.retrier.WithNotify(s.retryNotifier()), "cancel-remainder", func(ctx context.Context) error {
		return m.broker.CancelOrder(ctx, s.Intent.OrderID)
	})
	if err == nil {
		return s.transition(StatePartiallyFilledRejected, "partial-fill-stalled")
	}

	s.cancelErr = err

	switch ClassOf(err) {
	case broker.ClassAborted:
		return s.transition(StateAborted, "session-aborted")

	case broker.ClassRace:
		// The remainder may have executed while we were canceling it
		snapshot, ferr := fetchSnapshot(ctx, m.broker, m.retrier, s, "verify-after-remainder-cancel")
		if ferr == nil {
			s.observe(snapshot)
			verdict := m.verifier.Verify(snapshot, s.Intent)
			if !isPartial(snapshot, s.Intent) && (verdict.Has(CheckStatus) || verdict.Has(CheckQuantity)) {
				m.logger.Info("remainder-cancel-lost-race-to-fill",
					zap.String("order-id", s.Intent.OrderID),
					zap.Error(err))
				return s.markFilled(verdict, types.MethodPostCancelRace, "remainder-filled-during-cancel")
			}
		}
		return s.transition(StatePartiallyFilledRejected, "partial-fill-stalled")

	default:
		m.logger.Error("remainder-cancel-failed",
			zap.String("order-id", s.Intent.OrderID),
			zap.Error(err))
		s.flag(fmt.Sprintf("remainder cancel failed, order may still be working: %v", err))
		return s.transition(StatePartiallyFilledRejected, "partial-fill-stalled")
	}
}

// fetchSnapshot performs one retried status query and counts it as a poll.
func fetchSnapshot(
	ctx context.Context,
	b broker.Broker,
	r *Retrier,
	s *Session,
	op string,
) (*types.OrderSnapshot, error) {
	snapshot, err := Retry(ctx, r.WithNotify(s.retryNotifier()), op, func(ctx context.Context) (*types.OrderSnapshot, error) {
		return b.GetOrderStatus(ctx, s.Intent.OrderID)
	})
	s.polls++

	if err != nil {
		return nil, err
	}

	if snapshot == nil {
		return nil, &RetryError{
			Op:        op,
			Class:     broker.ClassAmbiguous,
			Attempts:  1,
			Exhausted: true,
			Err:       broker.ErrUnexpectedResponse,
		}
	}

	if snapshot.FetchedAt.IsZero() {
		stamped := *snapshot
		stamped.FetchedAt = time.Now()
		snapshot = &stamped
	}

	return snapshot, nil
}

// retryNotifier emits a retry-attempt event for each retried call.
func (s *Session) retryNotifier() RetryNotifier {
	return func(op string, attempt int, class broker.ErrorClass, err error, wait time.Duration) {
		s.sink.Emit(types.Event{
			Type:       types.EventRetryAttempt,
			SessionID:  s.ID,
			OrderID:    s.Intent.OrderID,
			Symbol:     s.Intent.Symbol,
			Time:       time.Now(),
			Operation:  op,
			Attempt:    attempt,
			ErrorClass: class.String(),
			Error:      err.Error(),
			Backoff:    wait,
		})
	}
}

// settleTerminal classifies a snapshot the venue reports as closed but not filled.
func (s *Session) settleTerminal(snapshot *types.OrderSnapshot, verdict Verdict, method types.DetectionMethod) (State, bool) {
	if !snapshot.Status.Terminal() || snapshot.Status == types.StatusFilled {
		return s.state, false
	}

	switch {
	case snapshot.FilledQuantity >= s.Intent.Quantity:
		return s.markFilled(verdict, method, "venue-closed-fully-filled"), true
	case snapshot.FilledQuantity > 0:
		return s.transition(StatePartiallyFilledRejected, "venue-closed-partially-filled"), true
	case snapshot.Status == types.StatusRejected:
		return s.transition(StateRejected, "venue-rejected"), true
	default:
		return s.transition(StateCanceled, "venue-"+snapshot.Status.String()), true
	}
}
