package reconcile

import "time"

// PollScheduler spaces status queries: initial + polls*increase, capped at max.
type PollScheduler struct {
	initial  time.Duration
	increase time.Duration
	max      time.Duration
}

// NewPollScheduler creates a scheduler. A max below initial is raised to initial.
func NewPollScheduler(initial, increase, maxInterval time.Duration) *PollScheduler {
	if maxInterval < initial {
		maxInterval = initial
	}
	return &PollScheduler{
		initial:  initial,
		increase: increase,
		max:      maxInterval,
	}
}

// Delay returns the wait before poll number polls (0-based). Non-decreasing in polls.
func (s *PollScheduler) Delay(polls int) time.Duration {
	if polls <= 0 || s.increase <= 0 {
		return s.initial
	}

	// Avoid overflow on long sessions
	if time.Duration(polls) > (s.max-s.initial)/s.increase {
		return s.max
	}

	return min(s.initial+time.Duration(polls)*s.increase, s.max)
}
