package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/mselser95/fill-reconciler/internal/reconcile"
	"github.com/mselser95/fill-reconciler/pkg/config"
	"github.com/mselser95/fill-reconciler/pkg/types"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "fill-reconciler",
	Short: "Detect fills and reconcile positions for submitted orders",
	Long: `Fill reconciler monitors orders that were already submitted to a venue,
decides whether each one filled, partially filled, was canceled or timed out,
and checks the broker's position against the expected one afterwards.

Run it as a service with "run", or use the one-shot tools to reconcile,
inspect or position-check a single order.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// loadEnvironment reads .env (if present), the configuration and a logger.
func loadEnvironment() (*config.Config, *zap.Logger, error) {
	err := godotenv.Load()
	if err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: could not load .env: %v\n", err)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := config.NewLoggerAt(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}

	return cfg, logger, nil
}

// intentFlags are the order flags shared by the one-shot commands.
type intentFlags struct {
	orderID        string
	symbol         string
	quantity       float64
	side           string
	referencePrice float64
	submittedAt    string
}

func (f *intentFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.orderID, "order-id", "", "Venue order id (required)")
	cmd.Flags().StringVar(&f.symbol, "symbol", "", "Instrument / token id (required)")
	cmd.Flags().Float64VarP(&f.quantity, "quantity", "q", 0, "Requested quantity (required)")
	cmd.Flags().StringVar(&f.side, "side", "buy", "Order side: buy or sell")
	cmd.Flags().Float64Var(&f.referencePrice, "reference-price", 0, "Expected fill price; 0 skips price checks")
	cmd.Flags().StringVar(&f.submittedAt, "submitted-at", "", "Submission time (RFC3339); defaults to now")

	_ = cmd.MarkFlagRequired("order-id")
	_ = cmd.MarkFlagRequired("symbol")
	_ = cmd.MarkFlagRequired("quantity")
}

func (f *intentFlags) intent() (intent types.OrderIntent, err error) {
	side, err := types.ParseSide(f.side)
	if err != nil {
		return intent, err
	}

	submittedAt := time.Now()
	if f.submittedAt != "" {
		submittedAt, err = time.Parse(time.RFC3339, f.submittedAt)
		if err != nil {
			return intent, fmt.Errorf("parse --submitted-at: %w", err)
		}
	}

	intent = types.OrderIntent{
		OrderID:        f.orderID,
		Symbol:         f.symbol,
		Quantity:       f.quantity,
		Side:           side,
		ReferencePrice: f.referencePrice,
		SubmittedAt:    submittedAt,
	}

	err = intent.Validate()
	if err != nil {
		return intent, err
	}

	return intent, nil
}

// newRetrier builds the retry policy the engine would use from cfg.
func newRetrier(cfg *config.Config, logger *zap.Logger) (*reconcile.Retrier, error) {
	return reconcile.NewRetrier(&reconcile.RetryConfig{
		MaxAttempts: cfg.RetryMaxAttempts,
		BackoffBase: cfg.RetryBackoffBase,
		BackoffMax:  cfg.RetryBackoffMax,
		Jitter:      cfg.RetryJitter,
		Logger:      logger,
	})
}
