package broker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{name: "deadline-exceeded", err: context.DeadlineExceeded, want: ClassTransient},
		{name: "wrapped-deadline", err: fmt.Errorf("get order: %w", context.DeadlineExceeded), want: ClassTransient},
		{name: "connection-reset", err: fmt.Errorf("read: %w", syscall.ECONNRESET), want: ClassTransient},
		{name: "unexpected-eof", err: io.ErrUnexpectedEOF, want: ClassTransient},
		{name: "net-timeout", err: timeoutErr{}, want: ClassTransient},
		{name: "rate-limited", err: NewAPIError(http.StatusTooManyRequests, "slow down"), want: ClassTransient},
		{name: "server-error", err: NewAPIError(http.StatusBadGateway, "upstream"), want: ClassTransient},
		{name: "not-found", err: NewAPIError(http.StatusNotFound, "no order"), want: ClassPermanent},
		{name: "unauthorized", err: NewAPIError(http.StatusUnauthorized, "bad key"), want: ClassPermanent},
		{name: "bad-request", err: NewAPIError(http.StatusBadRequest, "bad id"), want: ClassPermanent},
		{name: "conflict", err: NewAPIError(http.StatusConflict, "conflict"), want: ClassPermanent},
		{name: "already-filled", err: fmt.Errorf("cancel: %w", ErrAlreadyFilled), want: ClassRace},
		{name: "not-cancelable", err: ErrNotCancelable, want: ClassRace},
		{name: "canceled", err: context.Canceled, want: ClassAborted},
		{name: "unknown", err: errors.New("weird"), want: ClassAmbiguous},
		{name: "nil", err: nil, want: ClassAmbiguous},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestErrorClassRetryable(t *testing.T) {
	assert.True(t, ClassTransient.Retryable())
	assert.True(t, ClassAmbiguous.Retryable())
	assert.False(t, ClassPermanent.Retryable())
	assert.False(t, ClassRace.Retryable())
	assert.False(t, ClassAborted.Retryable())
}

func TestAPIErrorUnwrap(t *testing.T) {
	err := fmt.Errorf("fetch: %w", NewAPIError(http.StatusNotFound, "missing"))

	assert.ErrorIs(t, err, ErrOrderNotFound)

	var apiErr *APIError
	assert.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Contains(t, err.Error(), "status 404")
}
