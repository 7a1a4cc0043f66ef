package cmd

import (
	"fmt"

	"github.com/mselser95/fill-reconciler/internal/app"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the reconciliation service",
	Long: `Starts the fill reconciler as a long-running service, which will:
1. Accept already-submitted orders on POST /api/reconcile
2. Poll the broker until each order is classified or times out
3. Cancel timed-out orders and verify the cancel did not race a fill
4. Check the broker position after every fill
5. Record outcomes (console or Postgres) and publish events (optional NATS)

BROKER_MODE=paper runs against a simulated venue; BROKER_MODE=live uses the
Polymarket CLOB with the POLYMARKET_* credentials.`,
	RunE: runService,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(runCmd)
}

func runService(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	application, err := app.New(cfg, logger, nil)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}

	err = application.Run()
	if err != nil {
		return fmt.Errorf("run app: %w", err)
	}

	return nil
}
