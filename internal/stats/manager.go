// Package stats is the Statistics Manager: on each fill and
// mark-price update it recomputes a rolling per-strategy snapshot using
// closed-form incremental math, grounded on
// internal/trading/engine/engine_v1/stats's StatsTracker/StatsAccumulator
// but generalized to decimal precision and to many
// strategies sharing one manager instance.
package stats

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rxtech-lab/argo-trading/internal/clock"
	"github.com/rxtech-lab/argo-trading/pkg/errors"
)

// accumulator is one strategy's running statistics. Unlike
// StatsAccumulator this has no daily/cumulative split — no
// date-boundary reset, only a single rolling window for the strategy's
// lifetime.
type accumulator struct {
	initialCash   decimal.Decimal
	realizedPnL   decimal.Decimal
	unrealizedPnL decimal.Decimal
	totalFees     decimal.Decimal
	peakEquity    decimal.Decimal
	maxDrawdown   decimal.Decimal
	totalTrades   int
	winningTrades int
	losingTrades  int
	updatedAt     time.Time
}

// Snapshot is the consistent, torn-read-free view of a strategy's
// statistics returned to readers.
type Snapshot struct {
	StrategyID    string
	RealizedPnL   decimal.Decimal
	UnrealizedPnL decimal.Decimal
	TotalPnL      decimal.Decimal
	TotalFees     decimal.Decimal
	Equity        decimal.Decimal
	TotalReturn   decimal.Decimal
	PeakEquity    decimal.Decimal
	Drawdown      decimal.Decimal
	TradeCount    int
	WinCount      int
	LossCount     int
	WinRate       decimal.Decimal
	UpdatedAt     time.Time
}

// Manager tracks a Snapshot per strategy, updated incrementally so a
// reader never observes a torn combination of fields.
type Manager struct {
	mu   sync.RWMutex
	accs map[string]*accumulator
	clk  clock.Clock
}

// NewManager creates an empty Statistics Manager.
func NewManager(clk clock.Clock) *Manager {
	return &Manager{accs: make(map[string]*accumulator), clk: clk}
}

// Open seeds a strategy's accumulator with its allocated starting cash.
func (m *Manager) Open(strategyID string, initialCash decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.accs[strategyID] = &accumulator{
		initialCash: initialCash,
		peakEquity:  initialCash,
		updatedAt:   m.clk.Now(),
	}
}

// RecordFill folds one fill's fee and (if the fill closed or reduced a
// position) its realized P&L delta into the strategy's accumulator. A
// zero realizedDelta means the fill only opened or increased a position
// and is not itself counted as a win/loss trade.
func (m *Manager) RecordFill(strategyID string, fee decimal.Decimal, realizedDelta decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accs[strategyID]
	if !ok {
		return errors.Newf(errors.ErrCodeStrategyNotFound, "no statistics accumulator for strategy %s", strategyID)
	}

	acc.totalFees = acc.totalFees.Add(fee)

	if !realizedDelta.IsZero() {
		acc.totalTrades++
		acc.realizedPnL = acc.realizedPnL.Add(realizedDelta)

		if realizedDelta.IsPositive() {
			acc.winningTrades++
		} else {
			acc.losingTrades++
		}
	}

	m.recomputeEquity(acc)

	return nil
}

// MarkUnrealized updates a strategy's unrealized P&L from the latest mark
// prices, recomputing equity and drawdown.
func (m *Manager) MarkUnrealized(strategyID string, unrealizedPnL decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accs[strategyID]
	if !ok {
		return errors.Newf(errors.ErrCodeStrategyNotFound, "no statistics accumulator for strategy %s", strategyID)
	}

	acc.unrealizedPnL = unrealizedPnL
	m.recomputeEquity(acc)

	return nil
}

// recomputeEquity updates equity-derived fields; must be called with mu
// held.
func (m *Manager) recomputeEquity(acc *accumulator) {
	equity := acc.initialCash.Add(acc.realizedPnL).Sub(acc.totalFees).Add(acc.unrealizedPnL)

	if equity.GreaterThan(acc.peakEquity) {
		acc.peakEquity = equity
	}

	drawdown := acc.peakEquity.Sub(equity)
	if drawdown.GreaterThan(acc.maxDrawdown) {
		acc.maxDrawdown = drawdown
	}

	acc.updatedAt = m.clk.Now()
}

// Snapshot returns strategyID's current statistics.
func (m *Manager) Snapshot(strategyID string) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	acc, ok := m.accs[strategyID]
	if !ok {
		return Snapshot{}, errors.Newf(errors.ErrCodeStrategyNotFound, "no statistics accumulator for strategy %s", strategyID)
	}

	return buildSnapshot(strategyID, acc), nil
}

func buildSnapshot(strategyID string, acc *accumulator) Snapshot {
	equity := acc.initialCash.Add(acc.realizedPnL).Sub(acc.totalFees).Add(acc.unrealizedPnL)

	totalReturn := decimal.Zero
	if !acc.initialCash.IsZero() {
		totalReturn = equity.Sub(acc.initialCash).Div(acc.initialCash)
	}

	winRate := decimal.Zero
	if acc.totalTrades > 0 {
		winRate = decimal.NewFromInt(int64(acc.winningTrades)).Div(decimal.NewFromInt(int64(acc.totalTrades)))
	}

	return Snapshot{
		StrategyID:    strategyID,
		RealizedPnL:   acc.realizedPnL,
		UnrealizedPnL: acc.unrealizedPnL,
		TotalPnL:      acc.realizedPnL.Add(acc.unrealizedPnL),
		TotalFees:     acc.totalFees,
		Equity:        equity,
		TotalReturn:   totalReturn,
		PeakEquity:    acc.peakEquity,
		Drawdown:      acc.maxDrawdown,
		TradeCount:    acc.totalTrades,
		WinCount:      acc.winningTrades,
		LossCount:     acc.losingTrades,
		WinRate:       winRate,
		UpdatedAt:     acc.updatedAt,
	}
}

// Close finalizes a strategy's accumulator on STOPPED. The accumulator is
// retained, not deleted: the statistics endpoint keeps returning this last
// known snapshot for a stopped strategy until it is explicitly removed
// from the registry.
func (m *Manager) Close(strategyID string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accs[strategyID]
	if !ok {
		return Snapshot{}, errors.Newf(errors.ErrCodeStrategyNotFound, "no statistics accumulator for strategy %s", strategyID)
	}

	return buildSnapshot(strategyID, acc), nil
}

// Remove deletes a strategy's accumulator entirely, once its record has
// been explicitly removed from the registry.
func (m *Manager) Remove(strategyID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.accs, strategyID)
}
