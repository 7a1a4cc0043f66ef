package testutil

import (
	"context"
	"sync"

	"github.com/mselser95/fill-reconciler/pkg/types"
)

// MockStorage is an in-memory storage implementation for testing.
type MockStorage struct {
	Outcomes []*types.MonitorOutcome
	mu       sync.Mutex
}

// NewMockStorage creates a new mock storage.
func NewMockStorage() *MockStorage {
	return &MockStorage{
		Outcomes: make([]*types.MonitorOutcome, 0),
	}
}

// StoreOutcome stores an outcome in memory.
func (m *MockStorage) StoreOutcome(_ context.Context, outcome *types.MonitorOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	outcomeCopy := *outcome
	m.Outcomes = append(m.Outcomes, &outcomeCopy)
	return nil
}

// Close is a no-op for mock storage.
func (m *MockStorage) Close() error {
	return nil
}

// GetOutcomes returns all stored outcomes.
func (m *MockStorage) GetOutcomes() []*types.MonitorOutcome {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]*types.MonitorOutcome, len(m.Outcomes))
	copy(result, m.Outcomes)
	return result
}
