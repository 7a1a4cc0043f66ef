// Package storage journals settled reconciliation outcomes.
package storage

import (
	"context"
	"errors"

	"github.com/mselser95/fill-reconciler/pkg/types"
)

// ErrOutcomeNotFound means no outcome is recorded for the order.
var ErrOutcomeNotFound = errors.New("outcome not found")

// Storage is the interface for recording reconciliation outcomes.
type Storage interface {
	// StoreOutcome records a settled outcome.
	StoreOutcome(ctx context.Context, outcome *types.MonitorOutcome) error

	// Close closes the storage connection.
	Close() error
}

// Reader looks up the latest outcome recorded for an order.
type Reader interface {
	LatestOutcome(ctx context.Context, orderID string) (*types.MonitorOutcome, error)
}
