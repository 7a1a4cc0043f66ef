package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mselser95/fill-reconciler/pkg/types"
	"go.uber.org/zap"
)

const rule = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

// ConsoleStorage implements Storage by pretty-printing to console.
type ConsoleStorage struct {
	out    io.Writer
	logger *zap.Logger
}

// NewConsoleStorage creates a new console storage writing to stdout.
func NewConsoleStorage(logger *zap.Logger) *ConsoleStorage {
	logger.Info("console-storage-initialized")
	return &ConsoleStorage{
		out:    os.Stdout,
		logger: logger,
	}
}

// StoreOutcome pretty-prints an outcome.
func (c *ConsoleStorage) StoreOutcome(_ context.Context, outcome *types.MonitorOutcome) error {
	var b strings.Builder

	b.WriteString("\n" + rule + "\n")
	fmt.Fprintf(&b, "ORDER OUTCOME: %s\n", strings.ToUpper(string(outcome.Kind)))
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "Order:    %s\n", outcome.OrderID)
	fmt.Fprintf(&b, "Symbol:   %s\n", outcome.Symbol)
	fmt.Fprintf(&b, "Side:     %s\n", outcome.Side)
	fmt.Fprintf(&b, "Session:  %s\n", outcome.SessionID)
	fmt.Fprintf(&b, "Elapsed:  %s (%d polls)\n", outcome.Elapsed, outcome.Polls)
	if outcome.Method != "" {
		fmt.Fprintf(&b, "Detected: %s\n", outcome.Method)
	}

	if outcome.Fill != nil {
		b.WriteString(rule + "\n")
		fmt.Fprintf(&b, "  Quantity:   %.6f\n", outcome.Fill.Quantity)
		if outcome.Fill.RemainingQuantity > 0 {
			fmt.Fprintf(&b, "  Remaining:  %.6f\n", outcome.Fill.RemainingQuantity)
		}
		fmt.Fprintf(&b, "  Price:      %.6f\n", outcome.Fill.Price)
		if len(outcome.Fill.Checks) > 0 {
			fmt.Fprintf(&b, "  Checks:     %s (confidence %.2f)\n",
				strings.Join(outcome.Fill.Checks, ", "), outcome.Fill.Confidence)
		}
		if outcome.Slippage != 0 {
			fmt.Fprintf(&b, "  Slippage:   %.4f%%\n", outcome.Slippage*100)
		}
	}

	if outcome.Consistency != nil {
		b.WriteString(rule + "\n")
		switch {
		case outcome.Consistency.Err != "":
			fmt.Fprintf(&b, "  Position:   check failed: %s\n", outcome.Consistency.Err)
		case outcome.Consistency.Consistent:
			fmt.Fprintf(&b, "  Position:   %.6f (consistent)\n", outcome.Consistency.Actual)
		default:
			fmt.Fprintf(&b, "  Position:   DIVERGED, %s\n", outcome.Consistency.Discrepancy)
		}
	}

	if outcome.Flagged {
		b.WriteString(rule + "\n")
		fmt.Fprintf(&b, "  REVIEW:     %s\n", outcome.Note)
	}
	b.WriteString(rule + "\n")

	_, err := io.WriteString(c.out, b.String())
	if err != nil {
		return fmt.Errorf("write outcome: %w", err)
	}

	return nil
}

// Close is a no-op for console storage.
func (c *ConsoleStorage) Close() error {
	c.logger.Info("closing-console-storage")
	return nil
}
