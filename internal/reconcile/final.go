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

// FinalVerifier resolves a session that reached its deadline: one more check,
// then a cancel, then post-cancel verification if the cancel did not go through.
type FinalVerifier struct {
	broker       broker.Broker
	verifier     *Verifier
	retrier      *Retrier
	raceAttempts int
	raceInterval time.Duration
	logger       *zap.Logger
}

// FinalConfig holds configuration for the final verifier.
type FinalConfig struct {
	Broker             broker.Broker
	Verifier           *Verifier
	Retrier            *Retrier
	RaceVerifyAttempts int
	RaceVerifyInterval time.Duration // Pause between post-cancel checks
	Logger             *zap.Logger
}

// NewFinalVerifier creates a new final verifier.
func NewFinalVerifier(cfg *FinalConfig) (*FinalVerifier, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.Broker == nil {
		return nil, errors.New("broker cannot be nil")
	}

	if cfg.Retrier == nil {
		return nil, errors.New("retrier cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	verifier := cfg.Verifier
	if verifier == nil {
		verifier = NewVerifier()
	}

	attempts := cfg.RaceVerifyAttempts
	if attempts < 1 {
		attempts = 1
	}

	return &FinalVerifier{
		broker:       cfg.Broker,
		verifier:     verifier,
		retrier:      cfg.Retrier,
		raceAttempts: attempts,
		raceInterval: cfg.RaceVerifyInterval,
		logger:       cfg.Logger,
	}, nil
}

// Resolve settles a timed-out session. Sessions in any other state, or already
// resolved, are returned unchanged without touching the broker.
func (f *FinalVerifier) Resolve(ctx context.Context, s *Session) types.MonitorOutcome {
	if s.state != StateTimedOut || s.resolved {
		return s.Outcome()
	}
	s.resolved = true

	if f.finalCheck(ctx, s) {
		return s.Outcome()
	}

	s.cancelAttempted = true
	err := Do(ctx, f.retrier.WithNotify(s.retryNotifier()), "cancel-order", func(ctx context.Context) error {
		return f.broker.CancelOrder(ctx, s.Intent.OrderID)
	})

	if err == nil {
		if isPartial(s.last, s.Intent) {
			s.transition(StatePartiallyFilledRejected, "timeout-canceled-remainder")
		} else {
			f.logger.Info("order-canceled-at-timeout",
				zap.String("order-id", s.Intent.OrderID),
				zap.Int("polls", s.polls))
		}
		return s.Outcome()
	}

	s.cancelErr = err
	if ClassOf(err) == broker.ClassAborted {
		s.transition(StateAborted, "session-aborted")
		return s.Outcome()
	}

	f.logger.Warn("cancel-failed-verifying-fill",
		zap.String("order-id", s.Intent.OrderID),
		zap.String("class", ClassOf(err).String()),
		zap.Error(err))

	f.postCancelVerify(ctx, s)
	return s.Outcome()
}

// finalCheck does the last-chance read. It returns true when the session was settled.
func (f *FinalVerifier) finalCheck(ctx context.Context, s *Session) bool {
	snapshot, err := fetchSnapshot(ctx, f.broker, f.retrier, s, "final-check")
	if err != nil {
		if ClassOf(err) == broker.ClassAborted {
			s.transition(StateAborted, "session-aborted")
			return true
		}
		f.logger.Warn("final-check-failed",
			zap.String("order-id", s.Intent.OrderID),
			zap.Error(err))
		return false
	}

	s.observe(snapshot)
	verdict := f.verifier.Verify(snapshot, s.Intent)

	if _, done := s.settleTerminal(snapshot, verdict, types.MethodFinalCheck); done {
		return true
	}

	if verdict.Filled && !isPartial(snapshot, s.Intent) {
		f.logger.Info("fill-detected-at-final-check",
			zap.String("order-id", s.Intent.OrderID),
			zap.Strings("checks", verdict.CheckNames()))
		s.markFilled(verdict, types.MethodFinalCheck, "fill-verified-at-deadline")
		return true
	}

	return false
}

// postCancelVerify decides whether a failed cancel lost the race to a fill.
// A session aborted mid-verification ends as Aborted rather than flagged.
func (f *FinalVerifier) postCancelVerify(ctx context.Context, s *Session) {
	checks := 0
	for attempt := 1; attempt <= f.raceAttempts; attempt++ {
		if ctx.Err() != nil {
			f.abortRace(s, checks)
			return
		}

		snapshot, err := f.broker.GetOrderStatus(ctx, s.Intent.OrderID)
		checks++
		s.polls++

		switch {
		case err == nil && snapshot != nil:
			if snapshot.FetchedAt.IsZero() {
				stamped := *snapshot
				stamped.FetchedAt = time.Now()
				snapshot = &stamped
			}
			s.observe(snapshot)

			verdict := f.verifier.Verify(snapshot, s.Intent)
			if _, done := s.settleTerminal(snapshot, verdict, types.MethodPostCancelRace); done {
				return
			}
			if verdict.Filled && !isPartial(snapshot, s.Intent) {
				f.logger.Info("cancel-lost-race-to-fill",
					zap.String("order-id", s.Intent.OrderID),
					zap.Int("attempt", attempt),
					zap.Strings("checks", verdict.CheckNames()))
				s.markFilled(verdict, types.MethodPostCancelRace, "fill-verified-after-cancel")
				return
			}

		case err != nil:
			if ClassOf(err) == broker.ClassAborted || ctx.Err() != nil {
				f.abortRace(s, checks)
				return
			}
			f.logger.Warn("post-cancel-check-failed",
				zap.String("order-id", s.Intent.OrderID),
				zap.Int("attempt", attempt),
				zap.Error(err))
		}

		if attempt == f.raceAttempts {
			break
		}

		timer := time.NewTimer(f.raceInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			f.abortRace(s, checks)
			return
		case <-timer.C:
		}
	}

	note := fmt.Sprintf("cancel failed (%v) and fill could not be confirmed after %d checks",
		s.cancelErr, checks)
	f.logger.Error("cancel-fill-race-unresolved",
		zap.String("order-id", s.Intent.OrderID),
		zap.String("symbol", s.Intent.Symbol),
		zap.Error(s.cancelErr))
	s.flag(note)

	if isPartial(s.last, s.Intent) {
		s.transition(StatePartiallyFilledRejected, "timeout-cancel-unresolved")
	}
}

func (f *FinalVerifier) abortRace(s *Session, checks int) {
	f.logger.Info("post-cancel-verify-aborted",
		zap.String("order-id", s.Intent.OrderID),
		zap.Int("checks", checks))
	s.transition(StateAborted, "session-aborted")
}
