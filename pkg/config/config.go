package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mselser95/fill-reconciler/internal/reconcile"
)

// Config holds all application configuration.
type Config struct {
	// Application
	LogLevel string
	HTTPPort string

	// Reconciliation
	ReconcileTimeout      time.Duration
	PollInitialInterval   time.Duration
	PollMaxInterval       time.Duration
	PollIntervalIncrease  time.Duration
	RetryMaxAttempts      int
	RetryBackoffBase      time.Duration
	RetryBackoffMax       time.Duration
	RetryJitter           float64
	SlippageWarnThreshold float64
	PartialFillStallPolls int
	RaceVerifyAttempts    int
	PositionTolerance     float64
	ResyncOnDivergence    bool

	// Broker
	BrokerMode      string // "paper" or "live"
	BrokerRateLimit float64
	BrokerBurst     int

	// Polymarket API
	PolymarketCLOBURL    string
	PolymarketDataAPIURL string
	PolymarketAPIKey     string
	PolymarketSecret     string
	PolymarketPassphrase string
	PolymarketPrivateKey string
	PolymarketAddress    string
	PolymarketProxy      string

	// Paper venue
	PaperFillDelay       time.Duration
	PaperFillProbability float64
	PaperPartialFraction float64
	PaperSlippageBps     float64

	// Events
	EventBufferSize int
	NATSURL         string
	NATSStream      string
	NATSSubject     string

	// Storage
	StorageMode      string // "postgres" or "console"
	RecentOutcomes   int
	RecentOutcomeTTL time.Duration
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPass     string
	PostgresDB       string
	PostgresSSL      string
}

// LoadFromEnv loads configuration from environment variables with defaults.
func LoadFromEnv() (*Config, error) {
	defaults := reconcile.DefaultConfig()

	cfg := &Config{
		// Application defaults
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
		HTTPPort: getEnvOrDefault("HTTP_PORT", "8080"),

		// Reconciliation defaults
		ReconcileTimeout:      getDurationOrDefault("RECONCILE_TIMEOUT", defaults.DefaultTimeout),
		PollInitialInterval:   getDurationOrDefault("POLL_INITIAL_INTERVAL", defaults.PollInitialInterval),
		PollMaxInterval:       getDurationOrDefault("POLL_MAX_INTERVAL", defaults.PollMaxInterval),
		PollIntervalIncrease:  getDurationOrDefault("POLL_INTERVAL_INCREASE", defaults.PollIntervalIncrease),
		RetryMaxAttempts:      getIntOrDefault("RETRY_MAX_ATTEMPTS", defaults.RetryMaxAttempts),
		RetryBackoffBase:      getDurationOrDefault("RETRY_BACKOFF_BASE", defaults.RetryBackoffBase),
		RetryBackoffMax:       getDurationOrDefault("RETRY_BACKOFF_MAX", defaults.RetryBackoffMax),
		RetryJitter:           getFloat64OrDefault("RETRY_JITTER", defaults.RetryJitter),
		SlippageWarnThreshold: getFloat64OrDefault("SLIPPAGE_WARN_THRESHOLD", defaults.SlippageWarnThreshold),
		PartialFillStallPolls: getIntOrDefault("PARTIAL_FILL_STALL_POLLS", defaults.PartialFillStallPolls),
		RaceVerifyAttempts:    getIntOrDefault("RACE_VERIFY_ATTEMPTS", defaults.RaceVerifyAttempts),
		PositionTolerance:     getFloat64OrDefault("POSITION_TOLERANCE", defaults.PositionTolerance),
		ResyncOnDivergence:    getBoolOrDefault("RESYNC_ON_DIVERGENCE", false),

		// Broker defaults
		BrokerMode:      getEnvOrDefault("BROKER_MODE", "paper"),
		BrokerRateLimit: getFloat64OrDefault("BROKER_RATE_LIMIT", 10),
		BrokerBurst:     getIntOrDefault("BROKER_BURST", 5),

		// Polymarket API defaults
		PolymarketCLOBURL:    getEnvOrDefault("POLYMARKET_CLOB_URL", "https://clob.polymarket.com"),
		PolymarketDataAPIURL: getEnvOrDefault("POLYMARKET_DATA_API_URL", "https://data-api.polymarket.com"),
		PolymarketAPIKey:     os.Getenv("POLYMARKET_API_KEY"),
		PolymarketSecret:     os.Getenv("POLYMARKET_SECRET"),
		PolymarketPassphrase: os.Getenv("POLYMARKET_PASSPHRASE"),
		PolymarketPrivateKey: os.Getenv("POLYMARKET_PRIVATE_KEY"),
		PolymarketAddress:    os.Getenv("POLYMARKET_ADDRESS"),
		PolymarketProxy:      os.Getenv("POLYMARKET_PROXY_ADDRESS"),

		// Paper venue defaults
		PaperFillDelay:       getDurationOrDefault("PAPER_FILL_DELAY", 2*time.Second),
		PaperFillProbability: getFloat64OrDefault("PAPER_FILL_PROBABILITY", 0.9),
		PaperPartialFraction: getFloat64OrDefault("PAPER_PARTIAL_FRACTION", 0),
		PaperSlippageBps:     getFloat64OrDefault("PAPER_SLIPPAGE_BPS", 5),

		// Event defaults
		EventBufferSize: getIntOrDefault("EVENT_BUFFER_SIZE", 1024),
		NATSURL:         os.Getenv("NATS_URL"),
		NATSStream:      getEnvOrDefault("NATS_STREAM", "RECONCILER_EVENTS"),
		NATSSubject:     getEnvOrDefault("NATS_SUBJECT_PREFIX", "reconciler.events"),

		// Storage defaults
		StorageMode:      getEnvOrDefault("STORAGE_MODE", "console"),
		RecentOutcomes:   getIntOrDefault("RECENT_OUTCOMES", 10000),
		RecentOutcomeTTL: getDurationOrDefault("RECENT_OUTCOME_TTL", 24*time.Hour),
		PostgresHost:     getEnvOrDefault("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnvOrDefault("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnvOrDefault("POSTGRES_USER", "reconciler"),
		PostgresPass:     getEnvOrDefault("POSTGRES_PASSWORD", "reconciler"),
		PostgresDB:       getEnvOrDefault("POSTGRES_DB", "fill_reconciler"),
		PostgresSSL:      getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
	}

	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// ReconcileConfig returns the engine tunables.
func (c *Config) ReconcileConfig() reconcile.Config {
	return reconcile.Config{
		DefaultTimeout:        c.ReconcileTimeout,
		PollInitialInterval:   c.PollInitialInterval,
		PollMaxInterval:       c.PollMaxInterval,
		PollIntervalIncrease:  c.PollIntervalIncrease,
		RetryMaxAttempts:      c.RetryMaxAttempts,
		RetryBackoffBase:      c.RetryBackoffBase,
		RetryBackoffMax:       c.RetryBackoffMax,
		RetryJitter:           c.RetryJitter,
		SlippageWarnThreshold: c.SlippageWarnThreshold,
		PartialFillStallPolls: c.PartialFillStallPolls,
		RaceVerifyAttempts:    c.RaceVerifyAttempts,
		PositionTolerance:     c.PositionTolerance,
	}
}

// Validate checks that configuration values are valid.
func (c *Config) Validate() error {
	if c.HTTPPort == "" {
		return fmt.Errorf("HTTP_PORT cannot be empty")
	}

	err := c.ReconcileConfig().Validate()
	if err != nil {
		return fmt.Errorf("reconcile settings: %w", err)
	}

	switch c.BrokerMode {
	case "paper":
		if c.PaperFillProbability < 0 || c.PaperFillProbability > 1 {
			return fmt.Errorf("PAPER_FILL_PROBABILITY must be between 0 and 1, got %f", c.PaperFillProbability)
		}
		if c.PaperPartialFraction < 0 || c.PaperPartialFraction >= 1 {
			return fmt.Errorf("PAPER_PARTIAL_FRACTION must be in [0, 1), got %f", c.PaperPartialFraction)
		}
	case "live":
		if c.PolymarketAPIKey == "" || c.PolymarketSecret == "" || c.PolymarketPassphrase == "" {
			return fmt.Errorf("POLYMARKET_API_KEY, POLYMARKET_SECRET and POLYMARKET_PASSPHRASE are required in live mode")
		}
		if c.PolymarketAddress == "" && c.PolymarketPrivateKey == "" {
			return fmt.Errorf("POLYMARKET_ADDRESS or POLYMARKET_PRIVATE_KEY is required in live mode")
		}
	default:
		return fmt.Errorf("BROKER_MODE must be 'paper' or 'live', got %q", c.BrokerMode)
	}

	if c.BrokerRateLimit <= 0 {
		return fmt.Errorf("BROKER_RATE_LIMIT must be positive, got %f", c.BrokerRateLimit)
	}

	if c.BrokerBurst < 1 {
		return fmt.Errorf("BROKER_BURST must be at least 1, got %d", c.BrokerBurst)
	}

	if c.EventBufferSize < 1 {
		return fmt.Errorf("EVENT_BUFFER_SIZE must be at least 1, got %d", c.EventBufferSize)
	}

	if c.StorageMode != "console" && c.StorageMode != "postgres" {
		return fmt.Errorf("STORAGE_MODE must be 'console' or 'postgres', got %q", c.StorageMode)
	}

	if c.RecentOutcomes < 1 {
		return fmt.Errorf("RECENT_OUTCOMES must be at least 1, got %d", c.RecentOutcomes)
	}

	return nil
}

func getEnvOrDefault(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getFloat64OrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}

	return floatVal
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return boolVal
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}
