package broker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
)

var (
	// ErrOrderNotFound means the venue does not know the order ID.
	ErrOrderNotFound = errors.New("order not found")

	// ErrPositionNotFound means the venue holds nothing for the symbol.
	ErrPositionNotFound = errors.New("position not found")

	// ErrUnauthorized means credentials were rejected.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrMalformedRequest means the venue refused the request shape.
	ErrMalformedRequest = errors.New("malformed request")

	// ErrRateLimited means the venue throttled the request.
	ErrRateLimited = errors.New("rate limited")

	// ErrUnexpectedResponse means the venue replied with something we cannot interpret.
	ErrUnexpectedResponse = errors.New("unexpected response")

	// ErrAlreadyFilled means a cancel arrived after the order executed.
	ErrAlreadyFilled = errors.New("order already filled")

	// ErrNotCancelable means the venue refused a cancel for a non-fill reason
	// (order already closed, matching in progress).
	ErrNotCancelable = errors.New("order not cancelable")
)

// APIError carries a non-2xx venue response.
type APIError struct {
	StatusCode int
	Message    string
	Err        error // Sentinel for the status, if any
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// NewAPIError builds an APIError and attaches the sentinel matching the status code.
func NewAPIError(statusCode int, message string) *APIError {
	apiErr := &APIError{StatusCode: statusCode, Message: message}

	switch {
	case statusCode == http.StatusNotFound:
		apiErr.Err = ErrOrderNotFound
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		apiErr.Err = ErrUnauthorized
	case statusCode == http.StatusTooManyRequests:
		apiErr.Err = ErrRateLimited
	case statusCode == http.StatusBadRequest || statusCode == http.StatusUnprocessableEntity:
		apiErr.Err = ErrMalformedRequest
	}

	return apiErr
}

// ErrorClass tells the retry layer what to do with a failure.
type ErrorClass int

const (
	// ClassAmbiguous is anything we cannot positively place. Retried, logged loudly.
	ClassAmbiguous ErrorClass = iota
	// ClassTransient failures are retried with backoff.
	ClassTransient
	// ClassPermanent failures end the operation immediately.
	ClassPermanent
	// ClassRace marks a cancel that collided with a fill.
	ClassRace
	// ClassAborted means the caller's context was canceled.
	ClassAborted
)

func (c ErrorClass) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassPermanent:
		return "permanent"
	case ClassRace:
		return "race"
	case ClassAborted:
		return "aborted"
	default:
		return "ambiguous"
	}
}

// Retryable reports whether an operation failing with this class may be attempted again.
func (c ErrorClass) Retryable() bool {
	return c == ClassTransient || c == ClassAmbiguous
}

// Classify places an error into an ErrorClass.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassAmbiguous
	}

	switch {
	case errors.Is(err, context.Canceled):
		return ClassAborted
	case errors.Is(err, ErrAlreadyFilled), errors.Is(err, ErrNotCancelable):
		return ClassRace
	case errors.Is(err, ErrOrderNotFound),
		errors.Is(err, ErrPositionNotFound),
		errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrMalformedRequest):
		return ClassPermanent
	case errors.Is(err, ErrRateLimited),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.EPIPE):
		return ClassTransient
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode >= 500:
			return ClassTransient
		case apiErr.StatusCode >= 400:
			return ClassPermanent
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTransient
	}

	return ClassAmbiguous
}
