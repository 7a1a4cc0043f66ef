package testutil

import (
	"time"

	"github.com/mselser95/fill-reconciler/pkg/types"
)

// TestSymbol is the token used by fixtures.
const TestSymbol = "71321045679252212594626385532706912750332728571942532289631379312455583992563"

// CreateTestIntent returns a 10-share buy at 0.50 submitted a second ago.
func CreateTestIntent(orderID string) types.OrderIntent {
	return types.OrderIntent{
		OrderID:        orderID,
		Symbol:         TestSymbol,
		Quantity:       10,
		Side:           types.SideBuy,
		ReferencePrice: 0.50,
		SubmittedAt:    time.Now().Add(-time.Second),
	}
}

// PendingSnapshot is a resting order with nothing executed.
func PendingSnapshot() *types.OrderSnapshot {
	return &types.OrderSnapshot{Status: types.StatusPending, RawStatus: "LIVE"}
}

// FilledSnapshot reports a complete fill through every field.
func FilledSnapshot(quantity, price float64) *types.OrderSnapshot {
	return &types.OrderSnapshot{
		Status:         types.StatusFilled,
		RawStatus:      "MATCHED",
		FilledQuantity: quantity,
		AvgFillPrice:   price,
		FilledAt:       time.Now(),
	}
}

// PartialSnapshot reports quantity executed while the order keeps working.
func PartialSnapshot(quantity, price float64) *types.OrderSnapshot {
	return &types.OrderSnapshot{
		Status:         types.StatusPartiallyFilled,
		RawStatus:      "LIVE",
		FilledQuantity: quantity,
		AvgFillPrice:   price,
	}
}

// CreateTestOutcome returns an outcome of the given kind for orderID. Only
// filled outcomes carry fill details.
func CreateTestOutcome(orderID string, kind types.OutcomeKind) *types.MonitorOutcome {
	now := time.Now()
	outcome := &types.MonitorOutcome{
		SessionID: "session-" + orderID,
		OrderID:   orderID,
		Symbol:    TestSymbol,
		Side:      types.SideBuy,
		Kind:      kind,
		Polls:     3,
		Elapsed:   1500 * time.Millisecond,
		StartedAt: now.Add(-1500 * time.Millisecond),
		EndedAt:   now,
	}

	if kind == types.OutcomeFilled {
		outcome.Method = types.MethodPrimaryLoop
		outcome.Fill = &types.FillDetails{
			Price:      0.51,
			Quantity:   10,
			FilledAt:   now,
			Checks:     []string{"status-field", "quantity", "price", "timestamp"},
			Confidence: 1,
		}
		outcome.Slippage = 0.02
	}

	return outcome
}
