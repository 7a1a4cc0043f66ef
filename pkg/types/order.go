package types

import (
	"fmt"
	"strings"
	"time"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide accepts BUY/SELL in any case (also "b"/"s", "long"/"short").
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "b", "long":
		return SideBuy, nil
	case "sell", "s", "short":
		return SideSell, nil
	default:
		return "", fmt.Errorf("unknown side %q", s)
	}
}

// Sign returns +1 for buys and -1 for sells.
func (s Side) Sign() float64 {
	if s == SideSell {
		return -1
	}
	return 1
}

// OrderIntent describes an order that has already been submitted to the venue.
// It is created once by the caller and never mutated.
type OrderIntent struct {
	OrderID        string    `json:"order_id"`
	Symbol         string    `json:"symbol"`
	Quantity       float64   `json:"quantity"`
	Side           Side      `json:"side"`
	ReferencePrice float64   `json:"reference_price"` // Expected price used for slippage
	SubmittedAt    time.Time `json:"submitted_at"`

	// PositionBefore is the signed position the caller held before submitting.
	// When nil and the symbol has no ledger entry yet, the baseline is derived
	// from the broker after the fill.
	PositionBefore *float64 `json:"position_before,omitempty"`
}

// Validate checks the fields the engine relies on.
func (i OrderIntent) Validate() error {
	if i.OrderID == "" {
		return fmt.Errorf("%w: order id is empty", ErrInvalidIntent)
	}
	if i.Symbol == "" {
		return fmt.Errorf("%w: symbol is empty", ErrInvalidIntent)
	}
	if i.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive, got %f", ErrInvalidIntent, i.Quantity)
	}
	if i.Side != SideBuy && i.Side != SideSell {
		return fmt.Errorf("%w: side must be BUY or SELL, got %q", ErrInvalidIntent, i.Side)
	}
	if i.ReferencePrice < 0 {
		return fmt.Errorf("%w: reference price cannot be negative", ErrInvalidIntent)
	}
	return nil
}

// OrderStatus is the venue order status normalized to a closed set.
type OrderStatus int

const (
	StatusUnknown OrderStatus = iota
	StatusPending
	StatusPartiallyFilled
	StatusFilled
	StatusCanceled
	StatusRejected
	StatusExpired
)

func (s OrderStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusPartiallyFilled:
		return "partially_filled"
	case StatusFilled:
		return "filled"
	case StatusCanceled:
		return "canceled"
	case StatusRejected:
		return "rejected"
	case StatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// MarshalText renders the status as its lowercase name.
func (s OrderStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses any vendor spelling of a status.
func (s *OrderStatus) UnmarshalText(text []byte) error {
	*s = ParseOrderStatus(string(text))
	return nil
}

// Terminal reports whether the venue will not change the order any further.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusRejected, StatusExpired:
		return true
	default:
		return false
	}
}

//nolint:gochecknoglobals // lookup table
var statusAliases = map[string]OrderStatus{
	"filled":            StatusFilled,
	"fill":              StatusFilled,
	"matched":           StatusFilled,
	"complete":          StatusFilled,
	"completed":         StatusFilled,
	"executed":          StatusFilled,
	"done":              StatusFilled,
	"partially_filled":  StatusPartiallyFilled,
	"partiallyfilled":   StatusPartiallyFilled,
	"partial_fill":      StatusPartiallyFilled,
	"partial":           StatusPartiallyFilled,
	"partially_matched": StatusPartiallyFilled,
	"new":               StatusPending,
	"open":              StatusPending,
	"live":              StatusPending,
	"pending":           StatusPending,
	"pending_new":       StatusPending,
	"pending_cancel":    StatusPending,
	"presubmitted":      StatusPending,
	"submitted":         StatusPending,
	"accepted":          StatusPending,
	"working":           StatusPending,
	"delayed":           StatusPending,
	"unmatched":         StatusPending,
	"canceled":          StatusCanceled,
	"cancelled":         StatusCanceled,
	"rejected":          StatusRejected,
	"invalid":           StatusRejected,
	"failed":            StatusRejected,
	"expired":           StatusExpired,
}

// ParseOrderStatus normalizes a vendor status into OrderStatus.
// It accepts strings in any case ("FILLED", "Filled", "OrderStatus.FILLED",
// "partially-filled"), OrderStatus values, fmt.Stringer enums and integer codes
// that match OrderStatus. Anything unrecognized becomes StatusUnknown.
func ParseOrderStatus(raw any) OrderStatus {
	switch v := raw.(type) {
	case nil:
		return StatusUnknown
	case OrderStatus:
		return v
	case *OrderStatus:
		if v == nil {
			return StatusUnknown
		}
		return *v
	case string:
		return parseStatusString(v)
	case fmt.Stringer:
		return parseStatusString(v.String())
	case int:
		return statusFromCode(int64(v))
	case int32:
		return statusFromCode(int64(v))
	case int64:
		return statusFromCode(v)
	case uint8:
		return statusFromCode(int64(v))
	default:
		return parseStatusString(fmt.Sprint(v))
	}
}

func statusFromCode(code int64) OrderStatus {
	if code < int64(StatusUnknown) || code > int64(StatusExpired) {
		return StatusUnknown
	}
	return OrderStatus(code)
}

func parseStatusString(s string) OrderStatus {
	s = strings.TrimSpace(s)
	// Enum dumps such as "OrderStatus.FILLED"
	if idx := strings.LastIndex(s, "."); idx >= 0 {
		s = s[idx+1:]
	}
	s = strings.ToLower(s)
	s = strings.NewReplacer("-", "_", " ", "_").Replace(s)

	if status, ok := statusAliases[s]; ok {
		return status
	}
	return StatusUnknown
}

// OrderSnapshot is one read of the venue's view of an order.
// Zero numeric or time fields mean the venue did not report them.
type OrderSnapshot struct {
	OrderID        string      `json:"order_id"`
	Status         OrderStatus `json:"status"`
	RawStatus      string      `json:"raw_status"`
	FilledQuantity float64     `json:"filled_quantity"`
	AvgFillPrice   float64     `json:"avg_fill_price"`
	FilledAt       time.Time   `json:"filled_at"`
	FetchedAt      time.Time   `json:"fetched_at"`
}

// Position is the broker's reported holding for a symbol.
type Position struct {
	Symbol   string  `json:"symbol"`
	Quantity float64 `json:"quantity"` // Unsigned
	Side     Side    `json:"side"`
}

// Signed returns the quantity with short positions negative.
func (p Position) Signed() float64 {
	return p.Quantity * p.Side.Sign()
}
