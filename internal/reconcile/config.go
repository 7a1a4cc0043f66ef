// Package reconcile detects fills for submitted orders and reconciles them with the broker.
//
// A session polls the broker with an increasing interval, verifies each snapshot
// with redundant heuristics, and at the deadline performs a final check followed by a
// cancel. When the cancel loses the race to a fill, the order is re-verified before
// anything is reported. Every outcome that carries a fill is checked against the
// broker's reported position.
package reconcile

import (
	"errors"
	"time"
)

// Config holds the tunables for the reconciliation engine.
type Config struct {
	DefaultTimeout time.Duration

	PollInitialInterval  time.Duration
	PollMaxInterval      time.Duration
	PollIntervalIncrease time.Duration

	RetryMaxAttempts int // Total tries per broker call
	RetryBackoffBase time.Duration
	RetryBackoffMax  time.Duration
	RetryJitter      float64 // Randomization factor in [0, 1)

	SlippageWarnThreshold float64
	PartialFillStallPolls int
	RaceVerifyAttempts    int
	PositionTolerance     float64
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout:        60 * time.Second,
		PollInitialInterval:   500 * time.Millisecond,
		PollMaxInterval:       2 * time.Second,
		PollIntervalIncrease:  100 * time.Millisecond,
		RetryMaxAttempts:      3,
		RetryBackoffBase:      500 * time.Millisecond,
		RetryBackoffMax:       4 * time.Second,
		RetryJitter:           0.2,
		SlippageWarnThreshold: 0.005,
		PartialFillStallPolls: 2,
		RaceVerifyAttempts:    3,
		PositionTolerance:     1e-6,
	}
}

// Validate checks that the configuration can drive a session.
func (c Config) Validate() error {
	if c.DefaultTimeout <= 0 {
		return errors.New("default timeout must be positive")
	}
	if c.PollInitialInterval < 0 || c.PollIntervalIncrease < 0 {
		return errors.New("poll intervals cannot be negative")
	}
	if c.PollMaxInterval < c.PollInitialInterval {
		return errors.New("poll max interval must be >= initial interval")
	}
	if c.RetryMaxAttempts < 1 {
		return errors.New("retry max attempts must be at least 1")
	}
	if c.RetryBackoffBase <= 0 || c.RetryBackoffMax < c.RetryBackoffBase {
		return errors.New("retry backoff must be positive with max >= base")
	}
	if c.RetryJitter < 0 || c.RetryJitter >= 1 {
		return errors.New("retry jitter must be in [0, 1)")
	}
	if c.SlippageWarnThreshold < 0 {
		return errors.New("slippage warn threshold cannot be negative")
	}
	if c.PartialFillStallPolls < 1 {
		return errors.New("partial fill stall polls must be at least 1")
	}
	if c.RaceVerifyAttempts < 1 {
		return errors.New("race verify attempts must be at least 1")
	}
	if c.PositionTolerance < 0 {
		return errors.New("position tolerance cannot be negative")
	}
	return nil
}
