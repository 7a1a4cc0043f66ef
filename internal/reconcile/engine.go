package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mselser95/fill-reconciler/internal/broker"
	"github.com/mselser95/fill-reconciler/internal/events"
	"github.com/mselser95/fill-reconciler/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	// ErrSessionExists is returned when an order is already being monitored.
	ErrSessionExists = errors.New("session already active for order")

	// ErrEngineClosed is returned by Reconcile after Close.
	ErrEngineClosed = errors.New("engine closed")
)

// SessionInfo describes an active session.
type SessionInfo struct {
	SessionID string     `json:"session_id"`
	OrderID   string     `json:"order_id"`
	Symbol    string     `json:"symbol"`
	Side      types.Side `json:"side"`
	Quantity  float64    `json:"quantity"`
	StartedAt time.Time  `json:"started_at"`
	Deadline  time.Time  `json:"deadline"`
}

type activeSession struct {
	info   SessionInfo
	cancel context.CancelFunc
	// precounted is set when a baseline derived by another session on the
	// same symbol may already include this session's fill.
	precounted bool
}

// Engine is the entry point for reconciling submitted orders.
// Reconcile runs on the caller's goroutine; Start runs the session in the background.
type Engine struct {
	cfg      Config
	monitor  *FillMonitor
	final    *FinalVerifier
	checker  *ConsistencyChecker
	ledger   *Ledger
	resyncer Resyncer
	sink     events.Sink
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*activeSession
	closed   bool
	wg       sync.WaitGroup
}

// EngineConfig holds the dependencies of the engine.
type EngineConfig struct {
	Config   Config
	Broker   broker.Broker
	Sink     events.Sink // Optional
	Ledger   *Ledger     // Optional, a fresh ledger is used if nil
	Resyncer Resyncer    // Optional
	Logger   *zap.Logger
}

// NewEngine creates a new reconciliation engine.
func NewEngine(cfg *EngineConfig) (e *Engine, err error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.Broker == nil {
		return nil, errors.New("broker cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	err = cfg.Config.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c := cfg.Config

	retrier, err := NewRetrier(&RetryConfig{
		MaxAttempts: c.RetryMaxAttempts,
		BackoffBase: c.RetryBackoffBase,
		BackoffMax:  c.RetryBackoffMax,
		Jitter:      c.RetryJitter,
		Logger:      cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create retrier: %w", err)
	}

	verifier := NewVerifier()

	monitor, err := NewFillMonitor(&MonitorConfig{
		Broker:                cfg.Broker,
		Verifier:              verifier,
		Scheduler:             NewPollScheduler(c.PollInitialInterval, c.PollIntervalIncrease, c.PollMaxInterval),
		Retrier:               retrier,
		PartialFillStallPolls: c.PartialFillStallPolls,
		Logger:                cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create fill monitor: %w", err)
	}

	final, err := NewFinalVerifier(&FinalConfig{
		Broker:             cfg.Broker,
		Verifier:           verifier,
		Retrier:            retrier,
		RaceVerifyAttempts: c.RaceVerifyAttempts,
		RaceVerifyInterval: c.PollInitialInterval,
		Logger:             cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create final verifier: %w", err)
	}

	checker, err := NewConsistencyChecker(&ConsistencyConfig{
		Broker:    cfg.Broker,
		Retrier:   retrier,
		Tolerance: c.PositionTolerance,
		Logger:    cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create consistency checker: %w", err)
	}

	sink := cfg.Sink
	if sink == nil {
		sink = events.NopSink{}
	}

	ledger := cfg.Ledger
	if ledger == nil {
		ledger = NewLedger()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Engine{
		cfg:      c,
		monitor:  monitor,
		final:    final,
		checker:  checker,
		ledger:   ledger,
		resyncer: cfg.Resyncer,
		sink:     sink,
		logger:   cfg.Logger,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*activeSession),
	}, nil
}

// Reconcile monitors a submitted order until it is classified and returns the outcome.
// The error is non-nil only for an invalid intent, a duplicate session or a closed
// engine; broker failures are reported inside the outcome.
func (e *Engine) Reconcile(ctx context.Context, intent types.OrderIntent, timeout time.Duration) (outcome types.MonitorOutcome, err error) {
	run, _, err := e.begin(ctx, intent, timeout)
	if err != nil {
		return outcome, err
	}
	return run(), nil
}

// Start registers a session and runs it on its own goroutine. The outcome is
// sent on the returned channel, which is then closed. ctx bounds the whole
// session, so it must outlive the caller's request.
func (e *Engine) Start(ctx context.Context, intent types.OrderIntent, timeout time.Duration) (SessionInfo, <-chan types.MonitorOutcome, error) {
	run, info, err := e.begin(ctx, intent, timeout)
	if err != nil {
		return SessionInfo{}, nil, err
	}

	done := make(chan types.MonitorOutcome, 1)
	go func() {
		done <- run()
		close(done)
	}()

	return info, done, nil
}

// begin validates and registers a session and returns the function that drives it.
func (e *Engine) begin(ctx context.Context, intent types.OrderIntent, timeout time.Duration) (func() types.MonitorOutcome, SessionInfo, error) {
	err := intent.Validate()
	if err != nil {
		return nil, SessionInfo{}, err
	}

	if timeout <= 0 {
		timeout = e.cfg.DefaultTimeout
	}

	s := NewSession(intent, timeout, e.sink)

	sessCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(e.ctx, cancel)

	info, err := e.register(s, cancel)
	if err != nil {
		stop()
		cancel()
		return nil, SessionInfo{}, err
	}

	run := func() types.MonitorOutcome {
		defer e.release(intent.OrderID)
		defer stop()
		defer cancel()
		return e.run(sessCtx, s, timeout)
	}

	return run, info, nil
}

func (e *Engine) run(ctx context.Context, s *Session, timeout time.Duration) types.MonitorOutcome {
	intent := s.Intent

	e.sink.Emit(types.Event{
		Type:      types.EventSessionStarted,
		SessionID: s.ID,
		OrderID:   intent.OrderID,
		Symbol:    intent.Symbol,
		Time:      s.StartedAt,
		Quantity:  intent.Quantity,
		Deadline:  s.Deadline,
	})
	e.logger.Info("session-started",
		zap.String("session-id", s.ID),
		zap.String("order-id", intent.OrderID),
		zap.String("symbol", intent.Symbol),
		zap.String("side", string(intent.Side)),
		zap.Float64("quantity", intent.Quantity),
		zap.Duration("timeout", timeout))

	e.monitor.Run(ctx, s)
	outcome := e.final.Resolve(ctx, s)

	e.applySlippage(&outcome, intent)

	if outcome.HasFill() && outcome.Kind != types.OutcomeAborted {
		e.checkPosition(ctx, intent, &outcome)
	}

	e.logOutcome(outcome)

	ended := outcome
	e.sink.Emit(types.Event{
		Type:      types.EventSessionEnded,
		SessionID: s.ID,
		OrderID:   intent.OrderID,
		Symbol:    intent.Symbol,
		Time:      outcome.EndedAt,
		Outcome:   &ended,
	})

	return outcome
}

// checkPosition compares the ledger, advanced by this fill, with the broker.
// Other sessions in flight on the same symbol widen the accepted range by
// their requested quantities.
func (e *Engine) checkPosition(ctx context.Context, intent types.OrderIntent, outcome *types.MonitorOutcome) {
	unlock := e.ledger.Lock(intent.Symbol)
	defer unlock()

	delta := intent.Side.Sign() * outcome.Fill.Quantity

	base, known := e.ledger.Get(intent.Symbol)
	if !known && intent.PositionBefore != nil {
		e.ledger.Seed(intent.Symbol, *intent.PositionBefore)
		base, known = *intent.PositionBefore, true
	}

	actual, err := e.checker.Actual(ctx, intent.Symbol)
	if err != nil {
		e.logger.Warn("position-check-failed",
			zap.String("symbol", intent.Symbol),
			zap.Error(err))
		report := types.ConsistencyReport{
			Symbol:    intent.Symbol,
			Err:       err.Error(),
			CheckedAt: time.Now(),
		}
		if known {
			report.Expected = e.ledger.Apply(intent.Symbol, delta)
		}
		outcome.Consistency = &report
		return
	}

	if !known {
		e.deriveBaseline(intent, outcome, actual, delta)
		return
	}

	allowance := e.inFlight(intent.Symbol, intent.OrderID)
	report := e.checker.Compare(intent.Symbol, base+delta, actual, allowance)
	if !report.Consistent && e.takePrecounted(intent.OrderID) {
		counted := e.checker.Compare(intent.Symbol, base, actual, allowance)
		if counted.Consistent {
			outcome.Consistency = &counted
			return
		}
	}

	e.ledger.Apply(intent.Symbol, delta)
	outcome.Consistency = &report

	if report.Consistent {
		return
	}

	e.sink.Emit(types.Event{
		Type:        types.EventPositionDivergence,
		SessionID:   outcome.SessionID,
		OrderID:     intent.OrderID,
		Symbol:      intent.Symbol,
		Time:        report.CheckedAt,
		Consistency: &report,
	})

	if e.resyncer == nil {
		return
	}

	err = e.resyncer.Resync(ctx, report)
	if err != nil {
		e.logger.Error("position-resync-failed",
			zap.String("symbol", intent.Symbol),
			zap.Error(err))
	}
}

// deriveBaseline adopts the broker position as the ledger entry for a symbol
// seen for the first time. The broker already reflects this fill, and possibly
// fills of other sessions still in flight, so those are marked as counted.
func (e *Engine) deriveBaseline(intent types.OrderIntent, outcome *types.MonitorOutcome, actual, delta float64) {
	e.ledger.Seed(intent.Symbol, actual)
	e.markPrecounted(intent.Symbol, intent.OrderID)

	report := e.checker.Compare(intent.Symbol, actual, actual, Allowance{})
	outcome.Consistency = &report

	e.logger.Info("position-baseline-derived",
		zap.String("symbol", intent.Symbol),
		zap.String("order-id", intent.OrderID),
		zap.Float64("position", actual),
		zap.Float64("before-fill", actual-delta))
}

// inFlight sums the requested quantities of other active sessions on symbol.
func (e *Engine) inFlight(symbol, orderID string) Allowance {
	e.mu.Lock()
	defer e.mu.Unlock()

	var allowance Allowance
	for id, active := range e.sessions {
		if id == orderID || active.info.Symbol != symbol {
			continue
		}
		if active.info.Side.Sign() > 0 {
			allowance.Above += active.info.Quantity
		} else {
			allowance.Below += active.info.Quantity
		}
	}
	return allowance
}

func (e *Engine) markPrecounted(symbol, orderID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for id, active := range e.sessions {
		if id != orderID && active.info.Symbol == symbol {
			active.precounted = true
		}
	}
}

func (e *Engine) takePrecounted(orderID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	active, ok := e.sessions[orderID]
	if !ok || !active.precounted {
		return false
	}
	active.precounted = false
	return true
}

func (e *Engine) applySlippage(outcome *types.MonitorOutcome, intent types.OrderIntent) {
	if !outcome.HasFill() {
		return
	}

	slippage, flagged, ok := Slippage(intent.Side, intent.ReferencePrice, outcome.Fill.Price, e.cfg.SlippageWarnThreshold)
	if !ok {
		return
	}

	outcome.Slippage = slippage
	outcome.SlippageFlagged = flagged

	if flagged {
		e.logger.Warn("slippage-above-threshold",
			zap.String("order-id", intent.OrderID),
			zap.Float64("reference-price", intent.ReferencePrice),
			zap.Float64("fill-price", outcome.Fill.Price),
			zap.Float64("slippage", slippage),
			zap.Float64("threshold", e.cfg.SlippageWarnThreshold))
	}
}

// Slippage returns the side-signed slippage of fill against reference (positive is
// adverse) and whether it exceeds threshold. ok is false when either price is missing.
func Slippage(side types.Side, reference, fill, threshold float64) (slippage float64, flagged bool, ok bool) {
	if reference <= 0 || fill <= 0 {
		return 0, false, false
	}

	ref := decimal.NewFromFloat(reference)
	px := decimal.NewFromFloat(fill)

	diff := px.Sub(ref)
	if side == types.SideSell {
		diff = ref.Sub(px)
	}

	ratio := diff.Div(ref)
	return ratio.InexactFloat64(), ratio.GreaterThan(decimal.NewFromFloat(threshold)), true
}

func (e *Engine) logOutcome(outcome types.MonitorOutcome) {
	fields := []zap.Field{
		zap.String("session-id", outcome.SessionID),
		zap.String("order-id", outcome.OrderID),
		zap.String("kind", string(outcome.Kind)),
		zap.String("method", string(outcome.Method)),
		zap.Int("polls", outcome.Polls),
		zap.Duration("elapsed", outcome.Elapsed),
	}
	if outcome.Fill != nil {
		fields = append(fields,
			zap.Float64("fill-price", outcome.Fill.Price),
			zap.Float64("fill-quantity", outcome.Fill.Quantity))
	}

	if outcome.Flagged {
		e.logger.Error("session-ended-flagged-for-review", append(fields, zap.String("note", outcome.Note))...)
		return
	}
	e.logger.Info("session-ended", fields...)
}

func (e *Engine) register(s *Session, cancel context.CancelFunc) (SessionInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return SessionInfo{}, ErrEngineClosed
	}

	if _, exists := e.sessions[s.Intent.OrderID]; exists {
		return SessionInfo{}, fmt.Errorf("%w: %s", ErrSessionExists, s.Intent.OrderID)
	}

	info := SessionInfo{
		SessionID: s.ID,
		OrderID:   s.Intent.OrderID,
		Symbol:    s.Intent.Symbol,
		Side:      s.Intent.Side,
		Quantity:  s.Intent.Quantity,
		StartedAt: s.StartedAt,
		Deadline:  s.Deadline,
	}
	e.sessions[s.Intent.OrderID] = &activeSession{info: info, cancel: cancel}
	e.wg.Add(1)
	return info, nil
}

func (e *Engine) release(orderID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.sessions, orderID)
	e.wg.Done()
}

// Abort stops the session for orderID. No cancel is sent to the broker.
func (e *Engine) Abort(orderID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	active, ok := e.sessions[orderID]
	if !ok {
		return false
	}
	active.cancel()
	return true
}

// ActiveSessions lists sessions in progress, oldest first.
func (e *Engine) ActiveSessions() []SessionInfo {
	e.mu.Lock()
	infos := make([]SessionInfo, 0, len(e.sessions))
	for _, active := range e.sessions {
		infos = append(infos, active.info)
	}
	e.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].StartedAt.Before(infos[j].StartedAt)
	})
	return infos
}

// ActiveCount returns the number of sessions in progress.
func (e *Engine) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

// Close aborts every active session and waits for them to finish.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	e.cancel()
	e.wg.Wait()
}
