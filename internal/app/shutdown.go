package app

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Shutdown gracefully shuts down the application. Active sessions are aborted
// and their outcomes are flushed to storage before stores are closed.
func (a *App) Shutdown() error {
	var err error
	a.shutdownOnce.Do(func() {
		err = a.shutdown()
	})
	return err
}

func (a *App) shutdown() error {
	a.logger.Info("application-shutting-down",
		zap.Int("active-sessions", a.engine.ActiveCount()))

	a.healthChecker.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	var errs []error

	// Stop accepting API requests first
	err := a.httpServer.Shutdown(shutdownCtx)
	if err != nil {
		a.logger.Error("http-server-shutdown-error", zap.Error(err))
		errs = append(errs, err)
	}

	// Sessions emit their final events while closing
	a.engine.Close()

	// Run returns once the buffered events are delivered
	a.bus.Close()
	a.wg.Wait()

	err = a.recorder.Close()
	if err != nil {
		a.logger.Error("storage-close-error", zap.Error(err))
		errs = append(errs, err)
	}

	if a.publisher != nil {
		err = a.publisher.Close()
		if err != nil {
			a.logger.Error("nats-publisher-close-error", zap.Error(err))
			errs = append(errs, err)
		}
	}

	a.cancel()

	a.logger.Info("application-shutdown-complete")

	return errors.Join(errs...)
}
