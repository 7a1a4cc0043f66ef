package app

import (
	"context"
	"fmt"
	"time"

	"github.com/mselser95/fill-reconciler/internal/broker"
	"github.com/mselser95/fill-reconciler/internal/broker/paper"
	"github.com/mselser95/fill-reconciler/internal/events"
	"github.com/mselser95/fill-reconciler/internal/execution"
	"github.com/mselser95/fill-reconciler/internal/reconcile"
	"github.com/mselser95/fill-reconciler/internal/storage"
	"github.com/mselser95/fill-reconciler/pkg/cache"
	"github.com/mselser95/fill-reconciler/pkg/config"
	"github.com/mselser95/fill-reconciler/pkg/healthprobe"
	"github.com/mselser95/fill-reconciler/pkg/httpserver"
	"github.com/mselser95/fill-reconciler/pkg/wallet"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// New creates a new application instance.
func New(cfg *config.Config, logger *zap.Logger, opts *Options) (a *App, err error) {
	if opts == nil {
		opts = &Options{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Undo partial construction on failure
	var closers []func()
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
			cancel()
		}
	}()

	healthChecker := setupHealthChecker()

	venue := opts.Broker
	var paperVenue *paper.Broker
	if venue == nil {
		venue, paperVenue, err = NewBroker(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("setup broker: %w", err)
		}
	}

	bus, err := events.NewBus(&events.BusConfig{
		BufferSize: cfg.EventBufferSize,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("setup event bus: %w", err)
	}
	bus.Subscribe(events.NewMetricsHandler())

	recorder, reader, err := setupStorage(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("setup storage: %w", err)
	}
	closers = append(closers, func() { _ = recorder.Close() })
	bus.Subscribe(recorder)

	publisher, err := setupPublisher(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("setup nats publisher: %w", err)
	}
	if publisher != nil {
		closers = append(closers, func() { _ = publisher.Close() })
		bus.Subscribe(publisher)
	}

	engine, err := setupEngine(cfg, logger, venue, bus)
	if err != nil {
		return nil, fmt.Errorf("setup engine: %w", err)
	}
	closers = append(closers, engine.Close)
	healthChecker.SetSessionCounter(engine)

	sessions, err := NewSessionManager(ctx, engine, paperVenue, logger)
	if err != nil {
		return nil, fmt.Errorf("setup session manager: %w", err)
	}

	httpServer, err := httpserver.New(&httpserver.Config{
		Port:          cfg.HTTPPort,
		Logger:        logger,
		HealthChecker: healthChecker,
		Sessions:      sessions,
		Outcomes:      reader,
	})
	if err != nil {
		return nil, fmt.Errorf("setup http server: %w", err)
	}

	return &App{
		cfg:           cfg,
		logger:        logger,
		healthChecker: healthChecker,
		httpServer:    httpServer,
		broker:        venue,
		paper:         paperVenue,
		bus:           bus,
		recorder:      recorder,
		publisher:     publisher,
		engine:        engine,
		sessions:      sessions,
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

func setupHealthChecker() *healthprobe.HealthChecker {
	return healthprobe.New()
}

// NewBroker builds the venue selected by BROKER_MODE. The paper venue is also
// returned on its own so callers can place orders on it.
func NewBroker(cfg *config.Config, logger *zap.Logger) (broker.Broker, *paper.Broker, error) {
	if cfg.BrokerMode == "paper" {
		venue, err := paper.NewBroker(&paper.Config{
			FillDelay:       cfg.PaperFillDelay,
			FillProbability: cfg.PaperFillProbability,
			PartialFraction: cfg.PaperPartialFraction,
			SlippageBps:     cfg.PaperSlippageBps,
			Seed:            time.Now().UnixNano(),
			Logger:          logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create paper broker: %w", err)
		}
		logger.Info("broker-mode-paper",
			zap.Duration("fill-delay", cfg.PaperFillDelay),
			zap.Float64("fill-probability", cfg.PaperFillProbability))
		return venue, venue, nil
	}

	// One request budget for the CLOB and the Data API
	limiter := rate.NewLimiter(rate.Limit(cfg.BrokerRateLimit), cfg.BrokerBurst)

	positions, err := wallet.NewClient(&wallet.ClientConfig{
		BaseURL: cfg.PolymarketDataAPIURL,
		Limiter: limiter,
		Logger:  logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create wallet client: %w", err)
	}

	client, err := execution.NewOrderClient(&execution.OrderClientConfig{
		BaseURL:      cfg.PolymarketCLOBURL,
		APIKey:       cfg.PolymarketAPIKey,
		Secret:       cfg.PolymarketSecret,
		Passphrase:   cfg.PolymarketPassphrase,
		PrivateKey:   cfg.PolymarketPrivateKey,
		Address:      cfg.PolymarketAddress,
		ProxyAddress: cfg.PolymarketProxy,
		Positions:    positions,
		Limiter:      limiter,
		Logger:       logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create order client: %w", err)
	}

	logger.Info("broker-mode-live",
		zap.String("clob-url", cfg.PolymarketCLOBURL),
		zap.String("owner", client.Owner().Hex()),
		zap.Float64("rate-limit", cfg.BrokerRateLimit))

	return client, nil, nil
}

// setupStorage builds the outcome recorder and the reader used for lookups.
// Recent outcomes are always kept in memory; Postgres is added when enabled.
func setupStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*storage.Recorder, storage.Reader, error) {
	recentCache, err := cache.NewRistrettoCache(&cache.RistrettoConfig{
		Name:        "recent-outcomes",
		NumCounters: int64(cfg.RecentOutcomes) * 10,
		MaxCost:     int64(cfg.RecentOutcomes),
		BufferItems: 64,
		DefaultTTL:  cfg.RecentOutcomeTTL,
		Logger:      logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create outcome cache: %w", err)
	}

	recent, err := storage.NewRecentOutcomes(recentCache, cfg.RecentOutcomeTTL)
	if err != nil {
		recentCache.Close()
		return nil, nil, err
	}

	if cfg.StorageMode != "postgres" {
		recorder, err := storage.NewRecorder(logger, recent, storage.NewConsoleStorage(logger))
		if err != nil {
			_ = recent.Close()
			return nil, nil, err
		}
		return recorder, recent, nil
	}

	pg, err := storage.NewPostgresStorage(ctx, &storage.PostgresConfig{
		Host:     cfg.PostgresHost,
		Port:     cfg.PostgresPort,
		User:     cfg.PostgresUser,
		Password: cfg.PostgresPass,
		Database: cfg.PostgresDB,
		SSLMode:  cfg.PostgresSSL,
		Logger:   logger,
	})
	if err != nil {
		_ = recent.Close()
		return nil, nil, fmt.Errorf("create postgres storage: %w", err)
	}

	recorder, err := storage.NewRecorder(logger, recent, pg)
	if err != nil {
		_ = recent.Close()
		_ = pg.Close()
		return nil, nil, err
	}

	return recorder, storage.ChainReader{recent, pg}, nil
}

func setupPublisher(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*events.NATSPublisher, error) {
	if cfg.NATSURL == "" {
		return nil, nil
	}

	return events.NewNATSPublisher(ctx, &events.NATSConfig{
		URL:           cfg.NATSURL,
		Stream:        cfg.NATSStream,
		SubjectPrefix: cfg.NATSSubject,
		Logger:        logger,
	})
}

func setupEngine(cfg *config.Config, logger *zap.Logger, venue broker.Broker, sink events.Sink) (*reconcile.Engine, error) {
	ledger := reconcile.NewLedger()

	var resyncer reconcile.Resyncer
	if cfg.ResyncOnDivergence {
		resyncer = ledger
	}

	return reconcile.NewEngine(&reconcile.EngineConfig{
		Config:   cfg.ReconcileConfig(),
		Broker:   venue,
		Sink:     sink,
		Ledger:   ledger,
		Resyncer: resyncer,
		Logger:   logger,
	})
}
