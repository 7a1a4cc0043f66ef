package reconcile

import (
	"sync"
	"testing"
	"time"

	"github.com/mselser95/fill-reconciler/internal/broker"
	"github.com/mselser95/fill-reconciler/internal/testutil"
	"github.com/mselser95/fill-reconciler/pkg/types"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fastConfig() Config {
	return Config{
		DefaultTimeout:        300 * time.Millisecond,
		PollInitialInterval:   2 * time.Millisecond,
		PollMaxInterval:       10 * time.Millisecond,
		PollIntervalIncrease:  1 * time.Millisecond,
		RetryMaxAttempts:      3,
		RetryBackoffBase:      time.Millisecond,
		RetryBackoffMax:       4 * time.Millisecond,
		RetryJitter:           0,
		SlippageWarnThreshold: 0.005,
		PartialFillStallPolls: 2,
		RaceVerifyAttempts:    3,
		PositionTolerance:     1e-6,
	}
}

func newTestRetrier(t *testing.T) *Retrier {
	t.Helper()
	r, err := NewRetrier(&RetryConfig{
		MaxAttempts: 3,
		BackoffBase: time.Millisecond,
		BackoffMax:  4 * time.Millisecond,
		Logger:      zap.NewNop(),
	})
	require.NoError(t, err)
	return r
}

func newTestMonitor(t *testing.T, b broker.Broker) *FillMonitor {
	t.Helper()
	cfg := fastConfig()
	m, err := NewFillMonitor(&MonitorConfig{
		Broker:                b,
		Scheduler:             NewPollScheduler(cfg.PollInitialInterval, cfg.PollIntervalIncrease, cfg.PollMaxInterval),
		Retrier:               newTestRetrier(t),
		PartialFillStallPolls: cfg.PartialFillStallPolls,
		Logger:                zap.NewNop(),
	})
	require.NoError(t, err)
	return m
}

func newTestFinal(t *testing.T, b broker.Broker) *FinalVerifier {
	t.Helper()
	f, err := NewFinalVerifier(&FinalConfig{
		Broker:             b,
		Retrier:            newTestRetrier(t),
		RaceVerifyAttempts: 3,
		RaceVerifyInterval: time.Millisecond,
		Logger:             zap.NewNop(),
	})
	require.NoError(t, err)
	return f
}

func newTestEngine(t *testing.T, b broker.Broker, sink *eventRecorder) *Engine {
	t.Helper()
	cfg := &EngineConfig{
		Config: fastConfig(),
		Broker: b,
		Logger: zap.NewNop(),
	}
	if sink != nil {
		cfg.Sink = sink
	}
	e, err := NewEngine(cfg)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

// timedOutSession returns a session whose deadline has already passed.
func timedOutSession(intent types.OrderIntent) *Session {
	s := NewSession(intent, time.Millisecond, nil)
	s.state = StateTimedOut
	return s
}

type eventRecorder struct {
	mu     sync.Mutex
	events []types.Event
}

func (r *eventRecorder) Emit(event types.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) ofType(t types.EventType) []types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []types.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func intentWithPrice(orderID string, price float64) types.OrderIntent {
	intent := testutil.CreateTestIntent(orderID)
	intent.ReferencePrice = price
	return intent
}
