package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/mselser95/fill-reconciler/internal/app"
	"github.com/mselser95/fill-reconciler/internal/reconcile"
	"github.com/mselser95/fill-reconciler/pkg/types"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Fetch an order's venue status and run the fill checks once",
	Long: `Queries the broker for a single order and runs the multi-check fill
verification against the given intent, without starting a session.

Useful for inspecting an order that ended flagged for review.`,
	RunE: runStatus,
}

//nolint:gochecknoglobals // Cobra boilerplate
var statusIntent intentFlags

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(statusCmd)
	statusIntent.register(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) (err error) {
	cfg, logger, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	intent, err := statusIntent.intent()
	if err != nil {
		return err
	}

	venue, _, err := app.NewBroker(cfg, logger)
	if err != nil {
		return err
	}

	retrier, err := newRetrier(cfg, logger)
	if err != nil {
		return fmt.Errorf("create retrier: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	snapshot, err := reconcile.Retry(ctx, retrier, "get-order-status",
		func(ctx context.Context) (*types.OrderSnapshot, error) {
			return venue.GetOrderStatus(ctx, intent.OrderID)
		})
	if err != nil {
		return fmt.Errorf("get order status: %w", err)
	}

	verdict := reconcile.NewVerifier().Verify(snapshot, intent)
	printStatus(snapshot, verdict)

	return nil
}

func printStatus(snapshot *types.OrderSnapshot, verdict reconcile.Verdict) {
	fmt.Printf("=== Order %s ===\n\n", snapshot.OrderID)
	fmt.Printf("Venue status:     %s (raw %q)\n", snapshot.Status, snapshot.RawStatus)
	fmt.Printf("Filled quantity:  %.6f\n", snapshot.FilledQuantity)
	fmt.Printf("Avg fill price:   %.6f\n", snapshot.AvgFillPrice)
	if !snapshot.FilledAt.IsZero() {
		fmt.Printf("Filled at:        %s\n", snapshot.FilledAt.Format(time.RFC3339))
	}
	fmt.Printf("Fetched at:       %s\n\n", snapshot.FetchedAt.Format(time.RFC3339))

	fmt.Printf("Verdict:          filled=%t confidence=%.2f\n", verdict.Filled, verdict.Confidence)
	for _, check := range []reconcile.Check{
		reconcile.CheckStatus,
		reconcile.CheckQuantity,
		reconcile.CheckPrice,
		reconcile.CheckTimestamp,
	} {
		mark := "✗"
		if verdict.Has(check) {
			mark = "✓"
		}
		fmt.Printf("  %s %s\n", mark, check)
	}
}
