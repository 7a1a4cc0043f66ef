// Package paper provides a simulated venue for running the reconciler without credentials.
package paper

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/mselser95/fill-reconciler/internal/broker"
	"github.com/mselser95/fill-reconciler/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrDuplicateOrder is returned when an order id is submitted twice.
var ErrDuplicateOrder = errors.New("order already submitted")

// Config holds paper venue configuration.
type Config struct {
	FillDelay       time.Duration // Time from submission to full fill
	FillProbability float64       // Chance an order fills at all
	PartialFraction float64       // Fraction executed at half the delay; 0 disables partials
	SlippageBps     float64       // Adverse price move applied to fills
	Seed            int64
	Logger          *zap.Logger
}

// DefaultConfig returns default paper venue config.
func DefaultConfig() Config {
	return Config{
		FillDelay:       2 * time.Second,
		FillProbability: 0.9,
		PartialFraction: 0,
		SlippageBps:     5,
		Seed:            time.Now().UnixNano(),
	}
}

type order struct {
	intent     types.OrderIntent
	fillAt     time.Time
	partialAt  time.Time
	willFill   bool
	fillPrice  float64
	canceled   bool
	canceledAt time.Time
	settled    float64 // Quantity already applied to positions
}

// Broker implements broker.Broker against an in-memory order book.
type Broker struct {
	cfg    Config
	logger *zap.Logger

	mu        sync.Mutex
	rng       *rand.Rand
	orders    map[string]*order
	positions map[string]decimal.Decimal
}

// NewBroker creates a new paper venue.
func NewBroker(cfg *Config) (*Broker, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.FillProbability < 0 || cfg.FillProbability > 1 {
		return nil, fmt.Errorf("fill probability must be in [0, 1], got %f", cfg.FillProbability)
	}

	if cfg.PartialFraction < 0 || cfg.PartialFraction >= 1 {
		return nil, fmt.Errorf("partial fraction must be in [0, 1), got %f", cfg.PartialFraction)
	}

	return &Broker{
		cfg:       *cfg,
		logger:    cfg.Logger,
		rng:       rand.New(rand.NewSource(cfg.Seed)), //nolint:gosec // simulation only
		orders:    make(map[string]*order),
		positions: make(map[string]decimal.Decimal),
	}, nil
}

// Submit registers an order with the venue. Fill timing starts at SubmittedAt.
func (b *Broker) Submit(intent types.OrderIntent) error {
	err := intent.Validate()
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.orders[intent.OrderID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateOrder, intent.OrderID)
	}

	submitted := intent.SubmittedAt
	if submitted.IsZero() {
		submitted = time.Now()
	}

	o := &order{
		intent:    intent,
		fillAt:    submitted.Add(b.cfg.FillDelay),
		willFill:  b.rng.Float64() < b.cfg.FillProbability,
		fillPrice: b.fillPrice(intent),
	}
	if b.cfg.PartialFraction > 0 {
		o.partialAt = submitted.Add(b.cfg.FillDelay / 2)
	}
	b.orders[intent.OrderID] = o

	b.logger.Info("paper-order-submitted",
		zap.String("order-id", intent.OrderID),
		zap.String("symbol", intent.Symbol),
		zap.Bool("will-fill", o.willFill),
		zap.Time("fill-at", o.fillAt))

	return nil
}

func (b *Broker) fillPrice(intent types.OrderIntent) float64 {
	if intent.ReferencePrice <= 0 {
		return 0
	}

	ref := decimal.NewFromFloat(intent.ReferencePrice)
	move := ref.Mul(decimal.NewFromFloat(b.cfg.SlippageBps)).Div(decimal.NewFromInt(10000))
	if intent.Side == types.SideSell {
		return ref.Sub(move).InexactFloat64()
	}
	return ref.Add(move).InexactFloat64()
}

// filledAt returns the quantity executed for o at now.
func (b *Broker) filledAt(o *order, now time.Time) float64 {
	cutoff := now
	if o.canceled {
		cutoff = o.canceledAt
	}

	switch {
	case o.willFill && !cutoff.Before(o.fillAt):
		return o.intent.Quantity
	case !o.partialAt.IsZero() && !cutoff.Before(o.partialAt):
		return o.intent.Quantity * b.cfg.PartialFraction
	default:
		return 0
	}
}

// settle applies newly executed quantity to positions. Caller holds the lock.
func (b *Broker) settle(now time.Time) {
	for _, o := range b.orders {
		filled := b.filledAt(o, now)
		if filled <= o.settled {
			continue
		}
		delta := decimal.NewFromFloat(filled - o.settled).Mul(decimal.NewFromFloat(o.intent.Side.Sign()))
		b.positions[o.intent.Symbol] = b.positions[o.intent.Symbol].Add(delta)
		o.settled = filled
	}
}

// GetOrderStatus implements broker.Broker.
func (b *Broker) GetOrderStatus(ctx context.Context, orderID string) (*types.OrderSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("get order %s: %w", orderID, broker.ErrOrderNotFound)
	}

	now := time.Now()
	b.settle(now)

	filled := b.filledAt(o, now)
	snapshot := &types.OrderSnapshot{
		OrderID:        orderID,
		FilledQuantity: filled,
		FetchedAt:      now,
	}
	if filled > 0 {
		snapshot.AvgFillPrice = o.fillPrice
	}

	switch {
	case filled >= o.intent.Quantity:
		snapshot.Status = types.StatusFilled
		snapshot.RawStatus = "MATCHED"
		snapshot.FilledAt = o.fillAt
	case o.canceled:
		snapshot.Status = types.StatusCanceled
		snapshot.RawStatus = "CANCELED"
	case filled > 0:
		snapshot.Status = types.StatusPartiallyFilled
		snapshot.RawStatus = "LIVE"
	default:
		snapshot.Status = types.StatusPending
		snapshot.RawStatus = "LIVE"
	}

	return snapshot, nil
}

// CancelOrder implements broker.Broker.
func (b *Broker) CancelOrder(ctx context.Context, orderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.orders[orderID]
	if !ok {
		return fmt.Errorf("cancel order %s: %w", orderID, broker.ErrOrderNotFound)
	}

	now := time.Now()
	b.settle(now)

	if b.filledAt(o, now) >= o.intent.Quantity {
		return fmt.Errorf("cancel order %s: %w", orderID, broker.ErrAlreadyFilled)
	}

	if o.canceled {
		return fmt.Errorf("cancel order %s: %w", orderID, broker.ErrNotCancelable)
	}

	o.canceled = true
	o.canceledAt = now

	b.logger.Info("paper-order-canceled",
		zap.String("order-id", orderID),
		zap.Float64("filled-quantity", o.settled))

	return nil
}

// GetPosition implements broker.Broker.
func (b *Broker) GetPosition(ctx context.Context, symbol string) (*types.Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.settle(time.Now())

	qty, ok := b.positions[symbol]
	if !ok {
		return nil, fmt.Errorf("position %s: %w", symbol, broker.ErrPositionNotFound)
	}

	side := types.SideBuy
	if qty.IsNegative() {
		side = types.SideSell
	}

	return &types.Position{
		Symbol:   symbol,
		Quantity: qty.Abs().InexactFloat64(),
		Side:     side,
	}, nil
}
