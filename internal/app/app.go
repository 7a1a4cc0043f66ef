package app

import (
	"context"
	"sync"

	"github.com/mselser95/fill-reconciler/internal/broker"
	"github.com/mselser95/fill-reconciler/internal/broker/paper"
	"github.com/mselser95/fill-reconciler/internal/events"
	"github.com/mselser95/fill-reconciler/internal/reconcile"
	"github.com/mselser95/fill-reconciler/internal/storage"
	"github.com/mselser95/fill-reconciler/pkg/config"
	"github.com/mselser95/fill-reconciler/pkg/healthprobe"
	"github.com/mselser95/fill-reconciler/pkg/httpserver"
	"go.uber.org/zap"
)

// App is the main application orchestrator.
type App struct {
	cfg           *config.Config
	logger        *zap.Logger
	healthChecker *healthprobe.HealthChecker
	httpServer    *httpserver.Server
	broker        broker.Broker
	paper         *paper.Broker // Set in paper mode only
	bus           *events.Bus
	recorder      *storage.Recorder
	publisher     *events.NATSPublisher // Optional
	engine        *reconcile.Engine
	sessions      *SessionManager
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	shutdownOnce  sync.Once
}

// Options holds application options.
type Options struct {
	Broker broker.Broker // Overrides the broker selected by BROKER_MODE
}

// Engine returns the reconciliation engine.
func (a *App) Engine() *reconcile.Engine {
	return a.engine
}

// Sessions returns the session manager backing the HTTP API.
func (a *App) Sessions() *SessionManager {
	return a.sessions
}
