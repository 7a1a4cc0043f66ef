package reconcile

import (
	"context"
	"sync"

	"github.com/mselser95/fill-reconciler/pkg/types"
	"github.com/shopspring/decimal"
)

// Resyncer is invoked when the broker's position diverges from the expected one.
type Resyncer interface {
	Resync(ctx context.Context, report types.ConsistencyReport) error
}

// Ledger is the internal view of signed positions per symbol.
type Ledger struct {
	mu        sync.Mutex
	positions map[string]decimal.Decimal
	symbols   map[string]*sync.Mutex
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		positions: make(map[string]decimal.Decimal),
		symbols:   make(map[string]*sync.Mutex),
	}
}

// Lock serializes read-compare-apply sequences on symbol until unlock is called.
func (l *Ledger) Lock(symbol string) (unlock func()) {
	l.mu.Lock()
	m, ok := l.symbols[symbol]
	if !ok {
		m = &sync.Mutex{}
		l.symbols[symbol] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// Get returns the tracked position and whether the symbol is known.
func (l *Ledger) Get(symbol string) (float64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[symbol]
	return pos.InexactFloat64(), ok
}

// Seed sets a baseline for symbol unless one already exists.
func (l *Ledger) Seed(symbol string, quantity float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.positions[symbol]; !ok {
		l.positions[symbol] = decimal.NewFromFloat(quantity)
	}
}

// Set overwrites the position for symbol.
func (l *Ledger) Set(symbol string, quantity float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.positions[symbol] = decimal.NewFromFloat(quantity)
}

// Apply adds a signed delta and returns the new position.
func (l *Ledger) Apply(symbol string, delta float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.positions[symbol].Add(decimal.NewFromFloat(delta))
	l.positions[symbol] = next
	return next.InexactFloat64()
}

// Resync adopts the broker's position after a divergence.
func (l *Ledger) Resync(_ context.Context, report types.ConsistencyReport) error {
	l.Set(report.Symbol, report.Actual)
	return nil
}
