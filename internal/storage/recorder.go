package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/mselser95/fill-reconciler/pkg/types"
	"go.uber.org/zap"
)

// Recorder is an event handler that persists each session-ended outcome to
// every configured store.
type Recorder struct {
	stores []Storage
	logger *zap.Logger
}

// NewRecorder creates a recorder writing to stores.
func NewRecorder(logger *zap.Logger, stores ...Storage) (*Recorder, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if len(stores) == 0 {
		return nil, errors.New("at least one store is required")
	}

	return &Recorder{stores: stores, logger: logger}, nil
}

// HandleEvent stores outcomes carried by session-ended events and ignores the rest.
func (r *Recorder) HandleEvent(ctx context.Context, event types.Event) error {
	if event.Type != types.EventSessionEnded || event.Outcome == nil {
		return nil
	}

	var errs []error
	for _, store := range r.stores {
		err := store.StoreOutcome(ctx, event.Outcome)
		if err != nil {
			r.logger.Error("outcome-store-failed",
				zap.String("order-id", event.Outcome.OrderID),
				zap.String("store", fmt.Sprintf("%T", store)),
				zap.Error(err))
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Close closes every store.
func (r *Recorder) Close() error {
	var errs []error
	for _, store := range r.stores {
		errs = append(errs, store.Close())
	}
	return errors.Join(errs...)
}
