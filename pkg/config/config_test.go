package config

import (
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		HTTPPort:              "8080",
		ReconcileTimeout:      60 * time.Second,
		PollInitialInterval:   500 * time.Millisecond,
		PollMaxInterval:       2 * time.Second,
		PollIntervalIncrease:  100 * time.Millisecond,
		RetryMaxAttempts:      3,
		RetryBackoffBase:      500 * time.Millisecond,
		RetryBackoffMax:       4 * time.Second,
		RetryJitter:           0.2,
		SlippageWarnThreshold: 0.005,
		PartialFillStallPolls: 2,
		RaceVerifyAttempts:    3,
		PositionTolerance:     1e-6,
		BrokerMode:            "paper",
		BrokerRateLimit:       10,
		BrokerBurst:           5,
		PaperFillProbability:  0.9,
		EventBufferSize:       1024,
		StorageMode:           "console",
		RecentOutcomes:        100,
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.ReconcileTimeout != 60*time.Second {
		t.Errorf("expected default timeout 60s, got %v", cfg.ReconcileTimeout)
	}
	if cfg.PollInitialInterval != 500*time.Millisecond {
		t.Errorf("expected default initial interval 500ms, got %v", cfg.PollInitialInterval)
	}
	if cfg.RetryMaxAttempts != 3 {
		t.Errorf("expected default retry attempts 3, got %d", cfg.RetryMaxAttempts)
	}
	if cfg.PositionTolerance != 1e-6 {
		t.Errorf("expected default tolerance 1e-6, got %v", cfg.PositionTolerance)
	}
	if cfg.BrokerMode != "paper" {
		t.Errorf("expected default broker mode paper, got %q", cfg.BrokerMode)
	}
	if cfg.ResyncOnDivergence {
		t.Error("expected resync to be off by default")
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("RECONCILE_TIMEOUT", "15s")
	t.Setenv("POLL_MAX_INTERVAL", "3s")
	t.Setenv("RETRY_MAX_ATTEMPTS", "5")
	t.Setenv("SLIPPAGE_WARN_THRESHOLD", "0.01")
	t.Setenv("RESYNC_ON_DIVERGENCE", "true")
	t.Setenv("PARTIAL_FILL_STALL_POLLS", "not-a-number")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	rc := cfg.ReconcileConfig()
	if rc.DefaultTimeout != 15*time.Second {
		t.Errorf("expected timeout 15s, got %v", rc.DefaultTimeout)
	}
	if rc.PollMaxInterval != 3*time.Second {
		t.Errorf("expected max interval 3s, got %v", rc.PollMaxInterval)
	}
	if rc.RetryMaxAttempts != 5 {
		t.Errorf("expected 5 attempts, got %d", rc.RetryMaxAttempts)
	}
	if rc.SlippageWarnThreshold != 0.01 {
		t.Errorf("expected threshold 0.01, got %v", rc.SlippageWarnThreshold)
	}
	if rc.PartialFillStallPolls != 2 {
		t.Errorf("expected unparsable value to fall back to 2, got %d", rc.PartialFillStallPolls)
	}
	if !cfg.ResyncOnDivergence {
		t.Error("expected resync enabled")
	}
}

func TestLoadFromEnv_InvalidRejected(t *testing.T) {
	t.Setenv("RETRY_JITTER", "1.5")

	_, err := LoadFromEnv()
	if err == nil {
		t.Fatal("expected error for jitter >= 1, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid_paper",
			mutate: func(*Config) {},
		},
		{
			name: "valid_live_with_address",
			mutate: func(c *Config) {
				c.BrokerMode = "live"
				c.PolymarketAPIKey = "k"
				c.PolymarketSecret = "s"
				c.PolymarketPassphrase = "p"
				c.PolymarketAddress = "0x1234567890123456789012345678901234567890"
			},
		},
		{
			name:    "empty_port",
			mutate:  func(c *Config) { c.HTTPPort = "" },
			wantErr: "HTTP_PORT cannot be empty",
		},
		{
			name:    "bad_broker_mode",
			mutate:  func(c *Config) { c.BrokerMode = "sim" },
			wantErr: `BROKER_MODE must be 'paper' or 'live', got "sim"`,
		},
		{
			name: "live_without_credentials",
			mutate: func(c *Config) {
				c.BrokerMode = "live"
				c.PolymarketAddress = "0x1234567890123456789012345678901234567890"
			},
			wantErr: "POLYMARKET_API_KEY, POLYMARKET_SECRET and POLYMARKET_PASSPHRASE are required in live mode",
		},
		{
			name: "live_without_identity",
			mutate: func(c *Config) {
				c.BrokerMode = "live"
				c.PolymarketAPIKey = "k"
				c.PolymarketSecret = "s"
				c.PolymarketPassphrase = "p"
			},
			wantErr: "POLYMARKET_ADDRESS or POLYMARKET_PRIVATE_KEY is required in live mode",
		},
		{
			name:    "paper_probability_out_of_range",
			mutate:  func(c *Config) { c.PaperFillProbability = 1.5 },
			wantErr: "PAPER_FILL_PROBABILITY must be between 0 and 1, got 1.500000",
		},
		{
			name:    "zero_rate_limit",
			mutate:  func(c *Config) { c.BrokerRateLimit = 0 },
			wantErr: "BROKER_RATE_LIMIT must be positive, got 0.000000",
		},
		{
			name:    "bad_storage_mode",
			mutate:  func(c *Config) { c.StorageMode = "s3" },
			wantErr: `STORAGE_MODE must be 'console' or 'postgres', got "s3"`,
		},
		{
			name:    "max_interval_below_initial",
			mutate:  func(c *Config) { c.PollMaxInterval = 100 * time.Millisecond },
			wantErr: "reconcile settings: poll max interval must be >= initial interval",
		},
		{
			name:    "zero_stall_polls",
			mutate:  func(c *Config) { c.PartialFillStallPolls = 0 },
			wantErr: "reconcile settings: partial fill stall polls must be at least 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error %q, got nil", tt.wantErr)
			}
			if err.Error() != tt.wantErr {
				t.Errorf("expected error %q, got %q", tt.wantErr, err.Error())
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	logger, err := NewLogger()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger")
	}

	t.Setenv("LOG_LEVEL", "loud")
	if _, err := NewLogger(); err == nil {
		t.Error("expected error for invalid level")
	}
}
