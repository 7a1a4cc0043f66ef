package testutil

import (
	"context"
	"sync"

	"github.com/mselser95/fill-reconciler/pkg/types"
)

// StatusResponse is one scripted reply to GetOrderStatus.
type StatusResponse struct {
	Snapshot *types.OrderSnapshot
	Err      error
}

// MockBroker is a scripted broker for testing.
// Status replies are consumed in order and the last one repeats.
type MockBroker struct {
	mu sync.Mutex

	statuses    []StatusResponse
	afterCancel []StatusResponse
	cancelErrs  []error
	position    *types.Position
	positionErr error

	statusCalls   int
	cancelCalls   int
	positionCalls int
}

// NewMockBroker creates a mock broker that reports nothing until scripted.
func NewMockBroker() *MockBroker {
	return &MockBroker{}
}

// QueueStatus appends snapshots to the status script.
func (m *MockBroker) QueueStatus(snapshots ...*types.OrderSnapshot) *MockBroker {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range snapshots {
		m.statuses = append(m.statuses, StatusResponse{Snapshot: s})
	}
	return m
}

// QueueStatusError appends failing replies to the status script.
func (m *MockBroker) QueueStatusError(err error, times int) *MockBroker {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < times; i++ {
		m.statuses = append(m.statuses, StatusResponse{Err: err})
	}
	return m
}

// SetAfterCancel replaces the status script once CancelOrder has been called.
func (m *MockBroker) SetAfterCancel(responses ...StatusResponse) *MockBroker {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.afterCancel = responses
	return m
}

// SetCancelErrors scripts CancelOrder results; the last one repeats.
func (m *MockBroker) SetCancelErrors(errs ...error) *MockBroker {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelErrs = errs
	return m
}

// SetPosition scripts GetPosition.
func (m *MockBroker) SetPosition(pos *types.Position, err error) *MockBroker {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.position = pos
	m.positionErr = err
	return m
}

// GetOrderStatus implements broker.Broker.
func (m *MockBroker) GetOrderStatus(ctx context.Context, orderID string) (*types.OrderSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.statusCalls++

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(m.statuses) == 0 {
		return &types.OrderSnapshot{OrderID: orderID, Status: types.StatusPending, RawStatus: "LIVE"}, nil
	}

	resp := m.statuses[0]
	if len(m.statuses) > 1 {
		m.statuses = m.statuses[1:]
	}

	if resp.Err != nil {
		return nil, resp.Err
	}

	snapshot := *resp.Snapshot
	if snapshot.OrderID == "" {
		snapshot.OrderID = orderID
	}
	return &snapshot, nil
}

// CancelOrder implements broker.Broker.
func (m *MockBroker) CancelOrder(ctx context.Context, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cancelCalls++

	if err := ctx.Err(); err != nil {
		return err
	}

	if len(m.afterCancel) > 0 {
		m.statuses = m.afterCancel
		m.afterCancel = nil
	}

	if len(m.cancelErrs) == 0 {
		return nil
	}

	err := m.cancelErrs[0]
	if len(m.cancelErrs) > 1 {
		m.cancelErrs = m.cancelErrs[1:]
	}
	return err
}

// GetPosition implements broker.Broker.
func (m *MockBroker) GetPosition(ctx context.Context, symbol string) (*types.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.positionCalls++

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if m.positionErr != nil {
		return nil, m.positionErr
	}

	if m.position == nil {
		return &types.Position{Symbol: symbol, Side: types.SideBuy}, nil
	}

	pos := *m.position
	return &pos, nil
}

// StatusCalls returns the number of GetOrderStatus calls.
func (m *MockBroker) StatusCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusCalls
}

// CancelCalls returns the number of CancelOrder calls.
func (m *MockBroker) CancelCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelCalls
}

// PositionCalls returns the number of GetPosition calls.
func (m *MockBroker) PositionCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.positionCalls
}
