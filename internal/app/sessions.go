package app

import (
	"context"
	"errors"
	"time"

	"github.com/mselser95/fill-reconciler/internal/broker/paper"
	"github.com/mselser95/fill-reconciler/internal/reconcile"
	"github.com/mselser95/fill-reconciler/pkg/types"
	"go.uber.org/zap"
)

// SessionManager runs API-submitted sessions in the background under the
// application context. Outcomes reach storage through the event bus.
type SessionManager struct {
	ctx    context.Context
	engine *reconcile.Engine
	paper  *paper.Broker
	logger *zap.Logger
}

// NewSessionManager creates a session manager. venue is optional; when set,
// each intent is placed on the paper venue before monitoring starts.
func NewSessionManager(ctx context.Context, engine *reconcile.Engine, venue *paper.Broker, logger *zap.Logger) (*SessionManager, error) {
	if engine == nil {
		return nil, errors.New("engine cannot be nil")
	}

	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	return &SessionManager{ctx: ctx, engine: engine, paper: venue, logger: logger}, nil
}

// Submit starts a session for intent and returns once it is registered.
func (m *SessionManager) Submit(intent types.OrderIntent, timeout time.Duration) (reconcile.SessionInfo, error) {
	if m.paper != nil {
		err := m.paper.Submit(intent)
		if err != nil && !errors.Is(err, paper.ErrDuplicateOrder) {
			return reconcile.SessionInfo{}, err
		}
	}

	info, done, err := m.engine.Start(m.ctx, intent, timeout)
	if err != nil {
		return info, err
	}

	go func() {
		outcome := <-done
		m.logger.Debug("api-session-finished",
			zap.String("session-id", outcome.SessionID),
			zap.String("order-id", outcome.OrderID),
			zap.String("kind", string(outcome.Kind)))
	}()

	return info, nil
}

// ActiveSessions implements httpserver.SessionManager.
func (m *SessionManager) ActiveSessions() []reconcile.SessionInfo {
	return m.engine.ActiveSessions()
}

// Abort implements httpserver.SessionManager.
func (m *SessionManager) Abort(orderID string) bool {
	return m.engine.Abort(orderID)
}
