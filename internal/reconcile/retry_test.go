package reconcile

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/mselser95/fill-reconciler/internal/broker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewRetrier(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *RetryConfig
		wantErr bool
	}{
		{name: "nil_config", cfg: nil, wantErr: true},
		{name: "nil_logger", cfg: &RetryConfig{MaxAttempts: 3, BackoffBase: time.Millisecond}, wantErr: true},
		{name: "zero_attempts", cfg: &RetryConfig{MaxAttempts: 0, BackoffBase: time.Millisecond, Logger: zap.NewNop()}, wantErr: true},
		{name: "zero_base", cfg: &RetryConfig{MaxAttempts: 3, Logger: zap.NewNop()}, wantErr: true},
		{name: "valid_config", cfg: &RetryConfig{MaxAttempts: 3, BackoffBase: time.Millisecond, BackoffMax: time.Millisecond, Logger: zap.NewNop()}, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewRetrier(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, r)
		})
	}
}

func TestRetry_RecoversFromTransientErrors(t *testing.T) {
	r := newTestRetrier(t)

	var notified []broker.ErrorClass
	r = r.WithNotify(func(_ string, _ int, class broker.ErrorClass, _ error, _ time.Duration) {
		notified = append(notified, class)
	})

	calls := 0
	got, err := Retry(context.Background(), r, "get-order-status", func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", broker.NewAPIError(http.StatusServiceUnavailable, "try later")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []broker.ErrorClass{broker.ClassTransient, broker.ClassTransient}, notified)
}

func TestRetry_Exhaustion(t *testing.T) {
	r := newTestRetrier(t)

	calls := 0
	_, err := Retry(context.Background(), r, "get-order-status", func(context.Context) (int, error) {
		calls++
		return 0, context.DeadlineExceeded
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)

	var retryErr *RetryError
	require.True(t, errors.As(err, &retryErr))
	assert.True(t, retryErr.Exhausted)
	assert.Equal(t, 3, retryErr.Attempts)
	assert.Equal(t, broker.ClassTransient, retryErr.Class)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "gave up after 3 attempts")
}

func TestRetry_AmbiguousErrorsAreRetried(t *testing.T) {
	r := newTestRetrier(t)

	calls := 0
	_, err := Retry(context.Background(), r, "get-order-status", func(context.Context) (int, error) {
		calls++
		return 0, errors.New("venue said something odd")
	})

	assert.Equal(t, 3, calls)
	assert.Equal(t, broker.ClassAmbiguous, ClassOf(err))
}

func TestRetry_NoRetryClasses(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		class broker.ErrorClass
	}{
		{name: "permanent-not-found", err: broker.NewAPIError(http.StatusNotFound, "unknown order"), class: broker.ClassPermanent},
		{name: "permanent-auth", err: broker.ErrUnauthorized, class: broker.ClassPermanent},
		{name: "race-already-filled", err: broker.ErrAlreadyFilled, class: broker.ClassRace},
		{name: "race-not-cancelable", err: broker.ErrNotCancelable, class: broker.ClassRace},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRetrier(t)
			calls := 0
			err := Do(context.Background(), r, "cancel-order", func(context.Context) error {
				calls++
				return tt.err
			})

			assert.Equal(t, 1, calls)
			assert.Equal(t, tt.class, ClassOf(err))
			assert.ErrorIs(t, err, tt.err)

			var retryErr *RetryError
			require.True(t, errors.As(err, &retryErr))
			assert.False(t, retryErr.Exhausted)
		})
	}
}

func TestRetry_ContextCanceledDuringBackoff(t *testing.T) {
	r, err := NewRetrier(&RetryConfig{
		MaxAttempts: 5,
		BackoffBase: time.Second,
		BackoffMax:  time.Second,
		Logger:      zap.NewNop(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	start := time.Now()
	_, err = Retry(ctx, r, "get-order-status", func(context.Context) (int, error) {
		return 0, context.DeadlineExceeded
	})

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, broker.ClassAborted, ClassOf(err))
}

func TestRetry_AlreadyCanceled(t *testing.T) {
	r := newTestRetrier(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := Retry(ctx, r, "get-order-status", func(context.Context) (int, error) {
		calls++
		return 1, nil
	})

	assert.Zero(t, calls)
	assert.Equal(t, broker.ClassAborted, ClassOf(err))
}
