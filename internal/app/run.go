package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

// Run starts the application and blocks until shutdown.
func (a *App) Run() error {
	a.logger.Info("application-starting",
		zap.String("broker-mode", a.cfg.BrokerMode),
		zap.String("storage-mode", a.cfg.StorageMode),
		zap.Duration("reconcile-timeout", a.cfg.ReconcileTimeout),
		zap.String("log-level", a.cfg.LogLevel))

	err := a.Start()
	if err != nil {
		return err
	}

	a.logger.Info("application-ready",
		zap.String("http-addr", ":"+a.cfg.HTTPPort),
		zap.Bool("nats-enabled", a.publisher != nil))

	return a.waitForShutdown()
}

// Start launches the event bus and HTTP server and marks the app ready.
func (a *App) Start() error {
	if a.ctx.Err() != nil {
		return fmt.Errorf("start: %w", a.ctx.Err())
	}

	a.wg.Add(1)
	go a.runEventBus()

	a.wg.Add(1)
	go a.runHTTPServer()

	a.healthChecker.SetReady(true)
	return nil
}

func (a *App) runEventBus() {
	defer a.wg.Done()
	err := a.bus.Run(a.ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("event-bus-error", zap.Error(err))
	}
}

func (a *App) runHTTPServer() {
	defer a.wg.Done()
	err := a.httpServer.Start()
	if err != nil {
		a.logger.Error("http-server-error", zap.Error(err))
	}
}

func (a *App) waitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		a.logger.Info("shutdown-signal-received", zap.String("signal", sig.String()))
	case <-a.ctx.Done():
		a.logger.Info("context-cancelled")
	}

	return a.Shutdown()
}
