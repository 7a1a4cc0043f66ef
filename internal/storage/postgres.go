package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/lib/pq"
	"github.com/mselser95/fill-reconciler/pkg/types"
	"go.uber.org/zap"
)

const schema = `
CREATE TABLE IF NOT EXISTS order_outcomes (
	session_id        UUID PRIMARY KEY,
	order_id          TEXT NOT NULL,
	symbol            TEXT NOT NULL,
	side              TEXT NOT NULL,
	kind              TEXT NOT NULL,
	method            TEXT NOT NULL DEFAULT '',
	fill_price        DOUBLE PRECISION,
	fill_quantity     DOUBLE PRECISION,
	remaining         DOUBLE PRECISION,
	filled_at         TIMESTAMPTZ,
	checks            TEXT[],
	confidence        DOUBLE PRECISION,
	polls             INTEGER NOT NULL,
	started_at        TIMESTAMPTZ NOT NULL,
	ended_at          TIMESTAMPTZ NOT NULL,
	flagged           BOOLEAN NOT NULL DEFAULT FALSE,
	note              TEXT NOT NULL DEFAULT '',
	cancel_attempted  BOOLEAN NOT NULL DEFAULT FALSE,
	cancel_error      TEXT NOT NULL DEFAULT '',
	slippage          DOUBLE PRECISION NOT NULL DEFAULT 0,
	slippage_flagged  BOOLEAN NOT NULL DEFAULT FALSE,
	consistency       JSONB
);
CREATE INDEX IF NOT EXISTS order_outcomes_order_id_idx ON order_outcomes (order_id, ended_at DESC);
`

// PostgresStorage implements Storage using PostgreSQL.
type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

// PostgresConfig holds PostgreSQL configuration.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
	Logger   *zap.Logger
}

// NewPostgresStorage creates a new PostgreSQL storage and ensures the schema exists.
func NewPostgresStorage(ctx context.Context, cfg *PostgresConfig) (*PostgresStorage, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.PingContext(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	storage := &PostgresStorage{db: db, logger: cfg.Logger}

	err = storage.Migrate(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}

	cfg.Logger.Info("postgres-storage-connected",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database))

	return storage, nil
}

// Migrate creates the outcome table if it does not exist.
func (p *PostgresStorage) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// StoreOutcome inserts an outcome. Re-storing a session is a no-op.
func (p *PostgresStorage) StoreOutcome(ctx context.Context, outcome *types.MonitorOutcome) error {
	var (
		price, quantity, remaining, confidence sql.NullFloat64
		filledAt                               sql.NullTime
		checks                                 []string
		consistency                            []byte
	)

	if outcome.Fill != nil {
		filledAt = sql.NullTime{Time: outcome.Fill.FilledAt, Valid: !outcome.Fill.FilledAt.IsZero()}
		price = sql.NullFloat64{Float64: outcome.Fill.Price, Valid: true}
		quantity = sql.NullFloat64{Float64: outcome.Fill.Quantity, Valid: true}
		remaining = sql.NullFloat64{Float64: outcome.Fill.RemainingQuantity, Valid: true}
		confidence = sql.NullFloat64{Float64: outcome.Fill.Confidence, Valid: true}
		checks = outcome.Fill.Checks
	}

	if outcome.Consistency != nil {
		var err error
		consistency, err = json.Marshal(outcome.Consistency)
		if err != nil {
			return fmt.Errorf("marshal consistency report: %w", err)
		}
	}

	query := `
		INSERT INTO order_outcomes (
			session_id, order_id, symbol, side, kind, method,
			fill_price, fill_quantity, remaining, filled_at, checks, confidence,
			polls, started_at, ended_at, flagged, note,
			cancel_attempted, cancel_error, slippage, slippage_flagged, consistency
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22
		)
		ON CONFLICT (session_id) DO NOTHING
	`

	_, err := p.db.ExecContext(ctx, query,
		outcome.SessionID,
		outcome.OrderID,
		outcome.Symbol,
		string(outcome.Side),
		string(outcome.Kind),
		string(outcome.Method),
		price,
		quantity,
		remaining,
		filledAt,
		pq.Array(checks),
		confidence,
		outcome.Polls,
		outcome.StartedAt,
		outcome.EndedAt,
		outcome.Flagged,
		outcome.Note,
		outcome.CancelAttempted,
		outcome.CancelError,
		outcome.Slippage,
		outcome.SlippageFlagged,
		consistency,
	)
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}

	p.logger.Debug("outcome-stored",
		zap.String("session-id", outcome.SessionID),
		zap.String("order-id", outcome.OrderID),
		zap.String("kind", string(outcome.Kind)))

	return nil
}

// LatestOutcome returns the most recent outcome recorded for orderID.
func (p *PostgresStorage) LatestOutcome(ctx context.Context, orderID string) (*types.MonitorOutcome, error) {
	query := `
		SELECT session_id, order_id, symbol, side, kind, method,
			fill_price, fill_quantity, remaining, filled_at, checks, confidence,
			polls, started_at, ended_at, flagged, note,
			cancel_attempted, cancel_error, slippage, slippage_flagged, consistency
		FROM order_outcomes
		WHERE order_id = $1
		ORDER BY ended_at DESC
		LIMIT 1
	`

	var (
		outcome                                types.MonitorOutcome
		side, kind, method                     string
		price, quantity, remaining, confidence sql.NullFloat64
		filledAt                               sql.NullTime
		checks                                 []string
		consistency                            []byte
	)

	err := p.db.QueryRowContext(ctx, query, orderID).Scan(
		&outcome.SessionID,
		&outcome.OrderID,
		&outcome.Symbol,
		&side,
		&kind,
		&method,
		&price,
		&quantity,
		&remaining,
		&filledAt,
		pq.Array(&checks),
		&confidence,
		&outcome.Polls,
		&outcome.StartedAt,
		&outcome.EndedAt,
		&outcome.Flagged,
		&outcome.Note,
		&outcome.CancelAttempted,
		&outcome.CancelError,
		&outcome.Slippage,
		&outcome.SlippageFlagged,
		&consistency,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", orderID, ErrOutcomeNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query outcome: %w", err)
	}

	outcome.Side = types.Side(side)
	outcome.Kind = types.OutcomeKind(kind)
	outcome.Method = types.DetectionMethod(method)
	outcome.Elapsed = outcome.EndedAt.Sub(outcome.StartedAt)

	if quantity.Valid {
		outcome.Fill = &types.FillDetails{
			Price:             price.Float64,
			Quantity:          quantity.Float64,
			RemainingQuantity: remaining.Float64,
			Checks:            checks,
			Confidence:        confidence.Float64,
			FilledAt:          filledAt.Time,
		}
	}

	if len(consistency) > 0 {
		var report types.ConsistencyReport
		err = json.Unmarshal(consistency, &report)
		if err != nil {
			return nil, fmt.Errorf("decode consistency report: %w", err)
		}
		outcome.Consistency = &report
	}

	return &outcome, nil
}

// Close closes the database connection.
func (p *PostgresStorage) Close() error {
	p.logger.Info("closing-postgres-storage")
	return p.db.Close()
}
