package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mselser95/fill-reconciler/pkg/cache"
	"github.com/mselser95/fill-reconciler/pkg/types"
)

// RecentOutcomes keeps the latest outcome per order in a bounded cache so
// operators can look up a settlement without a database round trip.
type RecentOutcomes struct {
	cache cache.Cache
	ttl   time.Duration
}

// NewRecentOutcomes wraps c. Entries expire after ttl; zero uses the cache default.
func NewRecentOutcomes(c cache.Cache, ttl time.Duration) (*RecentOutcomes, error) {
	if c == nil {
		return nil, errors.New("cache cannot be nil")
	}
	return &RecentOutcomes{cache: c, ttl: ttl}, nil
}

// StoreOutcome implements Storage.
func (r *RecentOutcomes) StoreOutcome(_ context.Context, outcome *types.MonitorOutcome) error {
	stored := *outcome
	if !r.cache.Set(outcome.OrderID, &stored, r.ttl) {
		return fmt.Errorf("order %s: outcome not admitted to cache", outcome.OrderID)
	}
	r.cache.Wait()
	return nil
}

// LatestOutcome implements Reader.
func (r *RecentOutcomes) LatestOutcome(_ context.Context, orderID string) (*types.MonitorOutcome, error) {
	value, ok := r.cache.Get(orderID)
	if !ok {
		return nil, fmt.Errorf("order %s: %w", orderID, ErrOutcomeNotFound)
	}

	outcome, ok := value.(*types.MonitorOutcome)
	if !ok {
		return nil, fmt.Errorf("order %s: unexpected cached type %T", orderID, value)
	}

	result := *outcome
	return &result, nil
}

// Close releases the cache.
func (r *RecentOutcomes) Close() error {
	r.cache.Close()
	return nil
}

// ChainReader tries each reader in order and returns the first hit.
type ChainReader []Reader

// LatestOutcome implements Reader.
func (c ChainReader) LatestOutcome(ctx context.Context, orderID string) (*types.MonitorOutcome, error) {
	for _, reader := range c {
		outcome, err := reader.LatestOutcome(ctx, orderID)
		if err == nil {
			return outcome, nil
		}
		if !errors.Is(err, ErrOutcomeNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("order %s: %w", orderID, ErrOutcomeNotFound)
}
