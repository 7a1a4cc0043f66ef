package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mselser95/fill-reconciler/internal/broker"
	"github.com/mselser95/fill-reconciler/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ConsistencyChecker compares an expected signed position with the broker's.
// It reports mismatches and never corrects them.
type ConsistencyChecker struct {
	broker    broker.Broker
	retrier   *Retrier
	tolerance decimal.Decimal
	logger    *zap.Logger
}

// ConsistencyConfig holds configuration for the consistency checker.
type ConsistencyConfig struct {
	Broker    broker.Broker
	Retrier   *Retrier
	Tolerance float64
	Logger    *zap.Logger
}

// NewConsistencyChecker creates a new consistency checker.
func NewConsistencyChecker(cfg *ConsistencyConfig) (*ConsistencyChecker, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.Broker == nil {
		return nil, errors.New("broker cannot be nil")
	}

	if cfg.Retrier == nil {
		return nil, errors.New("retrier cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	return &ConsistencyChecker{
		broker:    cfg.Broker,
		retrier:   cfg.Retrier,
		tolerance: decimal.NewFromFloat(cfg.Tolerance),
		logger:    cfg.Logger,
	}, nil
}

// Actual returns the broker's signed position for symbol. No position counts as flat.
func (c *ConsistencyChecker) Actual(ctx context.Context, symbol string) (float64, error) {
	pos, err := Retry(ctx, c.retrier, "get-position", func(ctx context.Context) (*types.Position, error) {
		return c.broker.GetPosition(ctx, symbol)
	})
	if errors.Is(err, broker.ErrPositionNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if pos == nil {
		return 0, nil
	}
	return pos.Signed(), nil
}

// Allowance widens the accepted range around an expected position.
// Above and Below are non-negative quantities that other in-flight orders
// on the same symbol may have added to or removed from the broker's view.
type Allowance struct {
	Above float64
	Below float64
}

// Check queries the broker once (with retries) and compares against expected.
func (c *ConsistencyChecker) Check(ctx context.Context, symbol string, expected float64) types.ConsistencyReport {
	actual, err := c.Actual(ctx, symbol)
	if err != nil {
		c.logger.Warn("position-check-failed",
			zap.String("symbol", symbol),
			zap.Error(err))
		return types.ConsistencyReport{
			Symbol:    symbol,
			Expected:  expected,
			Err:       err.Error(),
			CheckedAt: time.Now(),
		}
	}
	return c.Compare(symbol, expected, actual, Allowance{})
}

// Compare checks an already observed broker position against expected.
// The position is consistent when actual lies within
// [expected-Below-tolerance, expected+Above+tolerance].
func (c *ConsistencyChecker) Compare(symbol string, expected, actual float64, allowance Allowance) types.ConsistencyReport {
	report := types.ConsistencyReport{
		Symbol:    symbol,
		Expected:  expected,
		Actual:    actual,
		CheckedAt: time.Now(),
	}

	diff := decimal.NewFromFloat(actual).Sub(decimal.NewFromFloat(expected))
	upper := c.tolerance.Add(decimal.NewFromFloat(allowance.Above))
	lower := c.tolerance.Add(decimal.NewFromFloat(allowance.Below)).Neg()
	if diff.LessThanOrEqual(upper) && diff.GreaterThanOrEqual(lower) {
		report.Consistent = true
		return report
	}

	report.Discrepancy = fmt.Sprintf("expected %s, broker reports %s (diff %s)",
		decimal.NewFromFloat(expected).String(),
		decimal.NewFromFloat(actual).String(),
		diff.String())

	c.logger.Error("position-divergence",
		zap.String("symbol", symbol),
		zap.Float64("expected", expected),
		zap.Float64("actual", actual),
		zap.String("diff", diff.String()),
		zap.Float64("in-flight-above", allowance.Above),
		zap.Float64("in-flight-below", allowance.Below))

	return report
}
