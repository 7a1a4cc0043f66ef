package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type vendorStatus int

func (v vendorStatus) String() string {
	if v == 1 {
		return "OrderStatus.FILLED"
	}
	return "OrderStatus.NEW"
}

func TestParseOrderStatus(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want OrderStatus
	}{
		{name: "upper", raw: "FILLED", want: StatusFilled},
		{name: "title", raw: "Filled", want: StatusFilled},
		{name: "enum-dump", raw: "OrderStatus.FILLED", want: StatusFilled},
		{name: "polymarket-matched", raw: "MATCHED", want: StatusFilled},
		{name: "polymarket-live", raw: "LIVE", want: StatusPending},
		{name: "hyphen", raw: "partially-filled", want: StatusPartiallyFilled},
		{name: "spaces", raw: " Partially Filled ", want: StatusPartiallyFilled},
		{name: "british-canceled", raw: "Cancelled", want: StatusCanceled},
		{name: "invalid-is-rejected", raw: "INVALID", want: StatusRejected},
		{name: "expired", raw: "expired", want: StatusExpired},
		{name: "stringer", raw: vendorStatus(1), want: StatusFilled},
		{name: "stringer-pending", raw: vendorStatus(0), want: StatusPending},
		{name: "int-code", raw: 3, want: StatusFilled},
		{name: "int-out-of-range", raw: 42, want: StatusUnknown},
		{name: "typed", raw: StatusCanceled, want: StatusCanceled},
		{name: "nil", raw: nil, want: StatusUnknown},
		{name: "garbage", raw: "teleported", want: StatusUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseOrderStatus(tt.raw))
		})
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	assert.True(t, StatusFilled.Terminal())
	assert.True(t, StatusExpired.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusPartiallyFilled.Terminal())
	assert.False(t, StatusUnknown.Terminal())
}

func TestOrderIntentValidate(t *testing.T) {
	valid := OrderIntent{OrderID: "o-1", Symbol: "AAPL", Quantity: 10, Side: SideBuy, ReferencePrice: 100}

	tests := []struct {
		name    string
		mutate  func(*OrderIntent)
		wantErr bool
	}{
		{name: "valid", mutate: func(*OrderIntent) {}, wantErr: false},
		{name: "empty-order-id", mutate: func(i *OrderIntent) { i.OrderID = "" }, wantErr: true},
		{name: "empty-symbol", mutate: func(i *OrderIntent) { i.Symbol = "" }, wantErr: true},
		{name: "zero-quantity", mutate: func(i *OrderIntent) { i.Quantity = 0 }, wantErr: true},
		{name: "bad-side", mutate: func(i *OrderIntent) { i.Side = "HOLD" }, wantErr: true},
		{name: "negative-ref", mutate: func(i *OrderIntent) { i.ReferencePrice = -1 }, wantErr: true},
		{name: "zero-ref-allowed", mutate: func(i *OrderIntent) { i.ReferencePrice = 0 }, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent := valid
			tt.mutate(&intent)
			err := intent.Validate()
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidIntent))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseSide(t *testing.T) {
	side, err := ParseSide("buy")
	assert.NoError(t, err)
	assert.Equal(t, SideBuy, side)

	side, err = ParseSide("SELL")
	assert.NoError(t, err)
	assert.Equal(t, SideSell, side)

	_, err = ParseSide("hold")
	assert.Error(t, err)
}

func TestPositionSigned(t *testing.T) {
	assert.Equal(t, 5.0, Position{Quantity: 5, Side: SideBuy}.Signed())
	assert.Equal(t, -5.0, Position{Quantity: 5, Side: SideSell}.Signed())
}
