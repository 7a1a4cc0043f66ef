package reconcile

import (
	"time"

	"github.com/google/uuid"
	"github.com/mselser95/fill-reconciler/internal/events"
	"github.com/mselser95/fill-reconciler/pkg/types"
)

// State is the position of a session in the fill state machine.
type State int

const (
	StatePolling State = iota
	StateFilled
	StateRejected
	StatePartiallyFilledRejected
	StateTimedOut
	StateCanceled
	StateAborted
)

func (s State) String() string {
	switch s {
	case StatePolling:
		return "polling"
	case StateFilled:
		return "filled"
	case StateRejected:
		return "rejected"
	case StatePartiallyFilledRejected:
		return "partially_filled_rejected"
	case StateTimedOut:
		return "timed_out"
	case StateCanceled:
		return "canceled"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Terminal reports whether the monitor loop stops in this state.
func (s State) Terminal() bool {
	return s != StatePolling
}

// Session holds the mutable state of one order being monitored.
// It is owned by a single goroutine.
type Session struct {
	ID        string
	Intent    types.OrderIntent
	StartedAt time.Time
	Deadline  time.Time

	state    State
	endedAt  time.Time
	polls    int
	last     *types.OrderSnapshot
	verdict  Verdict
	method   types.DetectionMethod
	resolved bool

	partialQty    float64
	partialStalls int

	cancelAttempted bool
	cancelErr       error
	flagged         bool
	note            string

	sink events.Sink
}

// NewSession starts a session for intent that expires after timeout.
func NewSession(intent types.OrderIntent, timeout time.Duration, sink events.Sink) *Session {
	if sink == nil {
		sink = events.NopSink{}
	}

	now := time.Now()
	return &Session{
		ID:        uuid.New().String(),
		Intent:    intent,
		StartedAt: now,
		Deadline:  now.Add(timeout),
		state:     StatePolling,
		sink:      sink,
	}
}

// State returns the current state.
func (s *Session) State() State { return s.state }

// Polls returns the number of status queries made so far.
func (s *Session) Polls() int { return s.polls }

// Last returns the most recent snapshot, or nil.
func (s *Session) Last() *types.OrderSnapshot { return s.last }

// transition moves the session to next and emits the change.
func (s *Session) transition(next State, reason string) State {
	s.sink.Emit(types.Event{
		Type:      types.EventStatusTransition,
		SessionID: s.ID,
		OrderID:   s.Intent.OrderID,
		Symbol:    s.Intent.Symbol,
		Time:      time.Now(),
		From:      s.state.String(),
		To:        next.String(),
		Reason:    reason,
	})
	s.state = next
	return next
}

// observe records a snapshot and emits venue status changes.
func (s *Session) observe(snapshot *types.OrderSnapshot) {
	prev := types.StatusUnknown
	if s.last != nil {
		prev = s.last.Status
	}
	if s.last == nil || prev != snapshot.Status {
		s.sink.Emit(types.Event{
			Type:      types.EventStatusTransition,
			SessionID: s.ID,
			OrderID:   s.Intent.OrderID,
			Symbol:    s.Intent.Symbol,
			Time:      time.Now(),
			From:      "venue-" + prev.String(),
			To:        "venue-" + snapshot.Status.String(),
			Reason:    "venue-status",
		})
	}
	s.last = snapshot
}

func (s *Session) markFilled(verdict Verdict, method types.DetectionMethod, reason string) State {
	s.verdict = verdict
	s.method = method
	return s.transition(StateFilled, reason)
}

func (s *Session) flag(note string) {
	s.flagged = true
	if s.note == "" {
		s.note = note
		return
	}
	s.note = s.note + "; " + note
}

// Outcome builds the outcome for the current state. The end time is fixed by the
// first call once the session is settled.
func (s *Session) Outcome() types.MonitorOutcome {
	now := s.endedAt
	if now.IsZero() {
		now = time.Now()
		if s.state.Terminal() && (s.state != StateTimedOut || s.resolved) {
			s.endedAt = now
		}
	}

	outcome := types.MonitorOutcome{
		SessionID:       s.ID,
		OrderID:         s.Intent.OrderID,
		Symbol:          s.Intent.Symbol,
		Side:            s.Intent.Side,
		Method:          s.method,
		Polls:           s.polls,
		StartedAt:       s.StartedAt,
		EndedAt:         now,
		Elapsed:         now.Sub(s.StartedAt),
		Flagged:         s.flagged,
		Note:            s.note,
		CancelAttempted: s.cancelAttempted,
	}
	if s.cancelErr != nil {
		outcome.CancelError = s.cancelErr.Error()
	}

	switch s.state {
	case StateFilled:
		outcome.Kind = types.OutcomeFilled
		outcome.Fill = &types.FillDetails{
			Price:      s.verdict.FillPrice,
			Quantity:   s.verdict.FillQuantity,
			FilledAt:   s.verdict.FilledAt,
			Checks:     s.verdict.CheckNames(),
			Confidence: s.verdict.Confidence,
		}
	case StatePartiallyFilledRejected:
		outcome.Kind = types.OutcomePartiallyFilled
		outcome.Fill = s.partialFill()
	case StateCanceled:
		outcome.Kind = types.OutcomeCanceled
	case StateRejected:
		outcome.Kind = types.OutcomeRejected
	case StateAborted:
		outcome.Kind = types.OutcomeAborted
		outcome.Fill = s.partialFill()
	default:
		outcome.Kind = types.OutcomeTimedOutUnfilled
	}

	return outcome
}

// partialFill describes whatever quantity the last snapshot shows executed.
func (s *Session) partialFill() *types.FillDetails {
	if s.last == nil || s.last.FilledQuantity <= 0 {
		return nil
	}

	filledAt := s.last.FilledAt
	if filledAt.IsZero() {
		filledAt = s.last.FetchedAt
	}

	remaining := s.Intent.Quantity - s.last.FilledQuantity
	if remaining < 0 {
		remaining = 0
	}

	return &types.FillDetails{
		Price:             s.last.AvgFillPrice,
		Quantity:          s.last.FilledQuantity,
		RemainingQuantity: remaining,
		FilledAt:          filledAt,
	}
}
