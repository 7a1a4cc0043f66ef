package reconcile

import (
	"math"
	"testing"
	"time"
)

func TestPollScheduler_Delay(t *testing.T) {
	s := NewPollScheduler(500*time.Millisecond, 100*time.Millisecond, 2*time.Second)

	tests := []struct {
		polls int
		want  time.Duration
	}{
		{polls: -1, want: 500 * time.Millisecond},
		{polls: 0, want: 500 * time.Millisecond},
		{polls: 1, want: 600 * time.Millisecond},
		{polls: 10, want: 1500 * time.Millisecond},
		{polls: 15, want: 2 * time.Second},
		{polls: 16, want: 2 * time.Second},
		{polls: math.MaxInt, want: 2 * time.Second},
	}

	for _, tt := range tests {
		if got := s.Delay(tt.polls); got != tt.want {
			t.Errorf("Delay(%d): expected %v, got %v", tt.polls, tt.want, got)
		}
	}
}

func TestPollScheduler_MonotonicAndCapped(t *testing.T) {
	configs := []struct {
		name                    string
		initial, increase, maxInterval time.Duration
	}{
		{name: "defaults", initial: 500 * time.Millisecond, increase: 100 * time.Millisecond, maxInterval: 2 * time.Second},
		{name: "no-increase", initial: time.Second, increase: 0, maxInterval: 2 * time.Second},
		{name: "max-below-initial", initial: time.Second, increase: time.Second, maxInterval: 10 * time.Millisecond},
		{name: "uneven-step", initial: 3 * time.Millisecond, increase: 7 * time.Millisecond, maxInterval: 100 * time.Millisecond},
	}

	for _, cfg := range configs {
		t.Run(cfg.name, func(t *testing.T) {
			s := NewPollScheduler(cfg.initial, cfg.increase, cfg.maxInterval)
			limit := max(cfg.maxInterval, cfg.initial)

			prev := time.Duration(0)
			for polls := 0; polls < 1000; polls++ {
				d := s.Delay(polls)
				if d < prev {
					t.Fatalf("delay decreased at poll %d: %v -> %v", polls, prev, d)
				}
				if d > limit {
					t.Fatalf("delay %v exceeds max %v at poll %d", d, limit, polls)
				}
				prev = d
			}
		})
	}
}
