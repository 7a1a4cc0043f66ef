package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mselser95/fill-reconciler/internal/app"
	"github.com/mselser95/fill-reconciler/internal/reconcile"
	"github.com/mselser95/fill-reconciler/internal/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

//nolint:gochecknoglobals // Cobra boilerplate
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Monitor one submitted order until it is classified",
	Long: `Runs a single reconciliation session in the foreground and prints the outcome.

In paper mode the order is first placed on the simulated venue, so this is a
quick way to watch the state machine end to end.

Examples:
  # Follow a live order for up to 2 minutes
  go run . reconcile --order-id 0xabc --symbol 7132... --quantity 25 --side buy \
    --reference-price 0.42 --timeout 2m

  # Emit the outcome as JSON
  go run . reconcile --order-id paper-1 --symbol TOKEN --quantity 10 --json`,
	RunE: runReconcile,
}

//nolint:gochecknoglobals // Cobra boilerplate
var (
	reconcileIntent  intentFlags
	reconcileTimeout time.Duration
	reconcileJSON    bool
)

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(reconcileCmd)
	reconcileIntent.register(reconcileCmd)
	reconcileCmd.Flags().DurationVarP(&reconcileTimeout, "timeout", "t", 0,
		"Session timeout (default: RECONCILE_TIMEOUT)")
	reconcileCmd.Flags().BoolVar(&reconcileJSON, "json", false, "Print the outcome as JSON")
}

func runReconcile(cmd *cobra.Command, args []string) (err error) {
	cfg, logger, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	intent, err := reconcileIntent.intent()
	if err != nil {
		return err
	}

	venue, paperVenue, err := app.NewBroker(cfg, logger)
	if err != nil {
		return err
	}

	if paperVenue != nil {
		err = paperVenue.Submit(intent)
		if err != nil {
			return fmt.Errorf("submit to paper venue: %w", err)
		}
	}

	engine, err := reconcile.NewEngine(&reconcile.EngineConfig{
		Config: cfg.ReconcileConfig(),
		Broker: venue,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	defer engine.Close()

	// Ctrl-C aborts the session without canceling the order
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	outcome, err := engine.Reconcile(ctx, intent, reconcileTimeout)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}

	if reconcileJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(outcome)
	}

	err = storage.NewConsoleStorage(logger).StoreOutcome(ctx, &outcome)
	if err != nil {
		logger.Warn("outcome-print-failed", zap.Error(err))
	}

	return nil
}
