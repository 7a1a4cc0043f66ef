package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mselser95/fill-reconciler/internal/app"
	"github.com/mselser95/fill-reconciler/internal/reconcile"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var positionCmd = &cobra.Command{
	Use:   "position",
	Short: "Compare the broker position for a symbol with an expected one",
	Long: `Queries the broker position for a symbol (with retries) and compares it
with the expected signed quantity using POSITION_TOLERANCE.

Exits non-zero when the positions diverge. Nothing is corrected.

Examples:
  go run . position --symbol 7132... --expected 25
  go run . position --symbol 7132... --expected -10`,
	RunE: runPosition,
}

//nolint:gochecknoglobals // Cobra boilerplate
var (
	positionSymbol   string
	positionExpected float64
)

// errPositionDiverged is returned so the command exits non-zero.
var errPositionDiverged = errors.New("position diverged")

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(positionCmd)
	positionCmd.Flags().StringVar(&positionSymbol, "symbol", "", "Instrument / token id (required)")
	positionCmd.Flags().Float64Var(&positionExpected, "expected", 0, "Expected signed position")
	_ = positionCmd.MarkFlagRequired("symbol")
}

func runPosition(cmd *cobra.Command, args []string) (err error) {
	cfg, logger, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	venue, _, err := app.NewBroker(cfg, logger)
	if err != nil {
		return err
	}

	retrier, err := newRetrier(cfg, logger)
	if err != nil {
		return fmt.Errorf("create retrier: %w", err)
	}

	checker, err := reconcile.NewConsistencyChecker(&reconcile.ConsistencyConfig{
		Broker:    venue,
		Retrier:   retrier,
		Tolerance: cfg.PositionTolerance,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("create consistency checker: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	report := checker.Check(ctx, positionSymbol, positionExpected)

	fmt.Printf("=== Position %s ===\n\n", report.Symbol)
	fmt.Printf("Expected:  %.6f\n", report.Expected)
	if report.Err != "" {
		fmt.Printf("Actual:    unavailable (%s)\n", report.Err)
		return fmt.Errorf("query position: %s", report.Err)
	}
	fmt.Printf("Actual:    %.6f\n", report.Actual)

	if !report.Consistent {
		fmt.Printf("Status:    DIVERGED - %s\n", report.Discrepancy)
		return errPositionDiverged
	}

	fmt.Printf("Status:    consistent\n")
	return nil
}
