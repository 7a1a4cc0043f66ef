package types

import "time"

// EventType identifies an entry in the reconciliation event stream.
type EventType string

const (
	EventSessionStarted     EventType = "session-started"
	EventStatusTransition   EventType = "status-transition"
	EventRetryAttempt       EventType = "retry-attempt"
	EventSessionEnded       EventType = "session-ended"
	EventPositionDivergence EventType = "position-divergence"
)

// Event is a single structured record emitted by a monitoring session.
// Only the fields relevant to Type are populated.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	OrderID   string    `json:"order_id"`
	Symbol    string    `json:"symbol"`
	Time      time.Time `json:"time"`

	// session-started
	Quantity float64   `json:"quantity,omitempty"`
	Deadline time.Time `json:"deadline,omitempty"`

	// status-transition
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
	Reason string `json:"reason,omitempty"`

	// retry-attempt
	Operation  string        `json:"operation,omitempty"`
	Attempt    int           `json:"attempt,omitempty"`
	ErrorClass string        `json:"error_class,omitempty"`
	Error      string        `json:"error,omitempty"`
	Backoff    time.Duration `json:"backoff,omitempty"`

	// session-ended
	Outcome *MonitorOutcome `json:"outcome,omitempty"`

	// position-divergence
	Consistency *ConsistencyReport `json:"consistency,omitempty"`
}
