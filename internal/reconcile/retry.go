package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/mselser95/fill-reconciler/internal/broker"
	"go.uber.org/zap"
)

// RetryError is returned when a broker call did not succeed.
// Exhausted is set when retryable failures used up every attempt.
type RetryError struct {
	Op        string
	Class     broker.ErrorClass
	Attempts  int
	Exhausted bool
	Err       error
}

func (e *RetryError) Error() string {
	if e.Exhausted {
		return fmt.Sprintf("%s: gave up after %d attempts (%s): %v", e.Op, e.Attempts, e.Class, e.Err)
	}
	return fmt.Sprintf("%s: %s error on attempt %d: %v", e.Op, e.Class, e.Attempts, e.Err)
}

func (e *RetryError) Unwrap() error {
	return e.Err
}

// ClassOf returns the class recorded in a RetryError, or classifies err directly.
func ClassOf(err error) broker.ErrorClass {
	var retryErr *RetryError
	if errors.As(err, &retryErr) {
		return retryErr.Class
	}
	return broker.Classify(err)
}

// RetryNotifier observes each failed attempt that will be retried.
type RetryNotifier func(op string, attempt int, class broker.ErrorClass, err error, wait time.Duration)

// Retrier runs broker calls with classification-driven retries.
type Retrier struct {
	maxAttempts int
	base        time.Duration
	max         time.Duration
	jitter      float64
	logger      *zap.Logger
	notify      RetryNotifier
}

// RetryConfig holds configuration for the retrier.
type RetryConfig struct {
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	Jitter      float64
	Logger      *zap.Logger
}

// NewRetrier creates a new retrier.
func NewRetrier(cfg *RetryConfig) (*Retrier, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("max attempts must be at least 1, got %d", cfg.MaxAttempts)
	}

	if cfg.BackoffBase <= 0 {
		return nil, errors.New("backoff base must be positive")
	}

	maxBackoff := cfg.BackoffMax
	if maxBackoff < cfg.BackoffBase {
		maxBackoff = cfg.BackoffBase
	}

	return &Retrier{
		maxAttempts: cfg.MaxAttempts,
		base:        cfg.BackoffBase,
		max:         maxBackoff,
		jitter:      cfg.Jitter,
		logger:      cfg.Logger,
	}, nil
}

// WithNotify returns a copy of the retrier that reports retries to fn.
func (r *Retrier) WithNotify(fn RetryNotifier) *Retrier {
	clone := *r
	clone.notify = fn
	return &clone
}

func (r *Retrier) newBackOff() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     r.base,
		RandomizationFactor: r.jitter,
		Multiplier:          2,
		MaxInterval:         r.max,
	}
	b.Reset()
	return b
}

// Retry calls fn until it succeeds, fails with a non-retryable class, the context
// ends, or the attempt budget runs out. It never panics on exhaustion; the caller
// receives a *RetryError.
func Retry[T any](ctx context.Context, r *Retrier, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	b := r.newBackOff()

	var lastErr error
	var lastClass broker.ErrorClass

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return zero, &RetryError{Op: op, Class: broker.ClassAborted, Attempts: attempt - 1, Err: ctx.Err()}
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}

		class := broker.Classify(err)
		if ctx.Err() != nil {
			class = broker.ClassAborted
		}

		if !class.Retryable() {
			return zero, &RetryError{Op: op, Class: class, Attempts: attempt, Err: err}
		}

		lastErr = err
		lastClass = class

		if attempt == r.maxAttempts {
			break
		}

		wait := b.NextBackOff()
		if wait > r.max {
			wait = r.max
		}

		if class == broker.ClassAmbiguous {
			r.logger.Error("broker-call-ambiguous-error-retrying",
				zap.String("operation", op),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", wait),
				zap.Error(err))
		} else {
			r.logger.Warn("broker-call-failed-retrying",
				zap.String("operation", op),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", wait),
				zap.Error(err))
		}

		if r.notify != nil {
			r.notify(op, attempt, class, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, &RetryError{Op: op, Class: broker.ClassAborted, Attempts: attempt, Err: ctx.Err()}
		case <-timer.C:
		}
	}

	r.logger.Warn("broker-call-retries-exhausted",
		zap.String("operation", op),
		zap.Int("attempts", r.maxAttempts),
		zap.String("class", lastClass.String()),
		zap.Error(lastErr))

	return zero, &RetryError{Op: op, Class: lastClass, Attempts: r.maxAttempts, Exhausted: true, Err: lastErr}
}

// Do is Retry for calls that return only an error.
func Do(ctx context.Context, r *Retrier, op string, fn func(context.Context) error) error {
	_, err := Retry(ctx, r, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
