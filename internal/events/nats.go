package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mselser95/fill-reconciler/pkg/types"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

// jsPublisher is the slice of jetstream.JetStream the publisher uses.
type jsPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// NATSPublisher forwards events to a JetStream stream.
// Subjects follow {prefix}.{event_type}.
type NATSPublisher struct {
	nc     *nats.Conn
	js     jsPublisher
	prefix string
	logger *zap.Logger
}

// NATSConfig holds configuration for the NATS publisher.
type NATSConfig struct {
	URL           string
	Stream        string
	SubjectPrefix string
	Logger        *zap.Logger
}

// NewNATSPublisher connects to NATS and ensures the event stream exists.
func NewNATSPublisher(ctx context.Context, cfg *NATSConfig) (p *NATSPublisher, err error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.URL == "" {
		return nil, errors.New("NATS URL cannot be empty")
	}

	logger := cfg.Logger
	nc, err := nats.Connect(cfg.URL,
		nats.Name("fill-reconciler"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats-disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats-reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      cfg.Stream,
		Subjects:  []string{cfg.SubjectPrefix + ".>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create event stream: %w", err)
	}

	logger.Info("nats-publisher-ready",
		zap.String("stream", cfg.Stream),
		zap.String("subject-prefix", cfg.SubjectPrefix))

	return &NATSPublisher{
		nc:     nc,
		js:     js,
		prefix: cfg.SubjectPrefix,
		logger: logger,
	}, nil
}

// Subject returns the subject an event is published on.
func (p *NATSPublisher) Subject(event types.Event) string {
	return fmt.Sprintf("%s.%s", p.prefix, event.Type)
}

// HandleEvent implements Handler.
func (p *NATSPublisher) HandleEvent(ctx context.Context, event types.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	_, err = p.js.Publish(ctx, p.Subject(event), data)
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}

	return nil
}

// Close drains the NATS connection.
func (p *NATSPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}
