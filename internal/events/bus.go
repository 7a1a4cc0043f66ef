// Package events carries the reconciliation event stream from sessions to consumers.
package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/mselser95/fill-reconciler/pkg/types"
	"go.uber.org/zap"
)

// Sink receives events from monitoring sessions. Emit must not block.
type Sink interface {
	Emit(event types.Event)
}

// NopSink discards every event.
type NopSink struct{}

// Emit implements Sink.
func (NopSink) Emit(types.Event) {}

// SinkFunc adapts a function to Sink.
type SinkFunc func(event types.Event)

// Emit implements Sink.
func (f SinkFunc) Emit(event types.Event) { f(event) }

// Handler consumes events delivered by the Bus.
type Handler interface {
	HandleEvent(ctx context.Context, event types.Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event types.Event) error

// HandleEvent implements Handler.
func (f HandlerFunc) HandleEvent(ctx context.Context, event types.Event) error {
	return f(ctx, event)
}

// Bus is a buffered fan-out from sessions to handlers.
// Sessions only Emit; handlers run on the Bus goroutine.
type Bus struct {
	events   chan types.Event
	handlers []Handler
	logger   *zap.Logger

	mu     sync.RWMutex
	closed bool

	// dropped counts events lost since the buffer last accepted one.
	dropped atomic.Int64
}

// BusConfig holds configuration for the event bus.
type BusConfig struct {
	BufferSize int
	Logger     *zap.Logger
}

// NewBus creates a new event bus.
func NewBus(cfg *BusConfig) (*Bus, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	size := cfg.BufferSize
	if size <= 0 {
		size = 1024
	}

	return &Bus{
		events: make(chan types.Event, size),
		logger: cfg.Logger,
	}, nil
}

// Subscribe registers a handler. Must be called before Run.
func (b *Bus) Subscribe(h Handler) {
	b.handlers = append(b.handlers, h)
}

// Emit enqueues an event without blocking. Events are dropped when the buffer is full
// or the bus is closed.
func (b *Bus) Emit(event types.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		EventsDroppedTotal.Inc()
		return
	}

	select {
	case b.events <- event:
		if n := b.dropped.Swap(0); n > 0 {
			b.logger.Info("event-buffer-recovered", zap.Int64("dropped", n))
		}
	default:
		EventsDroppedTotal.Inc()
		// Only the first drop of a burst is logged; the counter tracks the rest.
		if b.dropped.Add(1) == 1 {
			b.logger.Warn("event-dropped-buffer-full",
				zap.String("type", string(event.Type)),
				zap.String("order-id", event.OrderID))
		}
	}
}

// Run dispatches events until the context is canceled or the bus is closed.
func (b *Bus) Run(ctx context.Context) error {
	b.logger.Info("event-bus-started", zap.Int("handlers", len(b.handlers)))

	for {
		select {
		case <-ctx.Done():
			b.drain()
			b.logger.Info("event-bus-stopped")
			return ctx.Err()
		case event, ok := <-b.events:
			if !ok {
				b.logger.Info("event-bus-closed")
				return nil
			}
			b.dispatch(ctx, event)
		}
	}
}

// drain delivers buffered events left at shutdown.
func (b *Bus) drain() {
	for {
		select {
		case event, ok := <-b.events:
			if !ok {
				return
			}
			b.dispatch(context.Background(), event)
		default:
			return
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, event types.Event) {
	for _, h := range b.handlers {
		err := h.HandleEvent(ctx, event)
		if err != nil {
			b.logger.Warn("event-handler-failed",
				zap.String("type", string(event.Type)),
				zap.String("order-id", event.OrderID),
				zap.Error(err))
		}
	}
}

// Close stops accepting events. Run returns once the buffer is consumed.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	close(b.events)
}
