// Package broker defines the venue boundary used by the reconciliation engine.
package broker

import (
	"context"

	"github.com/mselser95/fill-reconciler/pkg/types"
)

// Broker is the read/cancel surface the engine needs from a trading venue.
// Implementations must be safe for concurrent use by many sessions.
type Broker interface {
	// GetOrderStatus returns the venue's current view of an order.
	GetOrderStatus(ctx context.Context, orderID string) (*types.OrderSnapshot, error)

	// CancelOrder requests cancellation. A cancel that lost the race to a fill
	// returns an error wrapping ErrAlreadyFilled or ErrNotCancelable.
	CancelOrder(ctx context.Context, orderID string) error

	// GetPosition returns the current holding for a symbol.
	// A flat book may return ErrPositionNotFound.
	GetPosition(ctx context.Context, symbol string) (*types.Position, error)
}
