package types

import "time"

// OutcomeKind is the terminal classification of a monitoring session.
type OutcomeKind string

const (
	OutcomeFilled           OutcomeKind = "filled"
	OutcomePartiallyFilled  OutcomeKind = "partially_filled_rejected"
	OutcomeCanceled         OutcomeKind = "canceled"
	OutcomeTimedOutUnfilled OutcomeKind = "timed_out_unfilled"
	OutcomeRejected         OutcomeKind = "rejected"
	OutcomeAborted          OutcomeKind = "aborted"
)

// DetectionMethod names the stage that produced the terminal verdict.
type DetectionMethod string

const (
	MethodPrimaryLoop    DetectionMethod = "primary-loop"
	MethodFinalCheck     DetectionMethod = "final-check"
	MethodPostCancelRace DetectionMethod = "post-cancel-race"
)

// FillDetails holds what the venue reported about an execution.
type FillDetails struct {
	Price             float64   `json:"price"`
	Quantity          float64   `json:"quantity"`
	RemainingQuantity float64   `json:"remaining_quantity,omitempty"` // Partial fills only
	FilledAt          time.Time `json:"filled_at"`
	Checks            []string  `json:"checks,omitempty"` // Verification checks that agreed
	Confidence        float64   `json:"confidence"`
}

// MonitorOutcome is the immutable result of one monitoring session.
type MonitorOutcome struct {
	SessionID string          `json:"session_id"`
	OrderID   string          `json:"order_id"`
	Symbol    string          `json:"symbol"`
	Side      Side            `json:"side"`
	Kind      OutcomeKind     `json:"kind"`
	Method    DetectionMethod `json:"method,omitempty"`
	Fill      *FillDetails    `json:"fill,omitempty"`

	Polls     int           `json:"polls"`
	Elapsed   time.Duration `json:"elapsed"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at"`

	// Flagged outcomes need operator review; Note says why.
	Flagged bool   `json:"flagged"`
	Note    string `json:"note,omitempty"`

	// Cancel attempts made by the engine for this order.
	CancelAttempted bool   `json:"cancel_attempted"`
	CancelError     string `json:"cancel_error,omitempty"`

	Slippage        float64 `json:"slippage"`
	SlippageFlagged bool    `json:"slippage_flagged"`

	Consistency *ConsistencyReport `json:"consistency,omitempty"`
}

// HasFill reports whether any quantity was executed.
func (o MonitorOutcome) HasFill() bool {
	return o.Fill != nil && o.Fill.Quantity > 0
}

// ConsistencyReport compares the internally expected position with the broker's.
type ConsistencyReport struct {
	Symbol      string    `json:"symbol"`
	Consistent  bool      `json:"consistent"`
	Expected    float64   `json:"expected"`
	Actual      float64   `json:"actual"`
	Discrepancy string    `json:"discrepancy,omitempty"`
	Err         string    `json:"error,omitempty"` // Position query failure, if any
	CheckedAt   time.Time `json:"checked_at"`
}
