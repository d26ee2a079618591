// Package portfolio is the Portfolio Manager: converts
// abstract sizing intents into concrete order quantities subject to
// broker capability constraints, and is the single writer of every
// strategy's sub-ledger.
package portfolio

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/rxtech-lab/argo-trading/internal/types"
	"github.com/rxtech-lab/argo-trading/pkg/errors"
)

// ledgerBook holds every strategy's sub-ledger plus the aggregate view
// (Ledger). Single writer: the Manager; readers (Statistics,
// Supervisor snapshots) get copies, never references into live state.
type ledgerBook struct {
	mu sync.RWMutex
	books map[string]*types.SubLedger
}

func newLedgerBook() *ledgerBook {
	return &ledgerBook{books: make(map[string]*types.SubLedger)}
}

func (l *ledgerBook) open(strategyID string, initialCash decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.books[strategyID] = &types.SubLedger{
		StrategyID: strategyID,
		InitialCash: initialCash,
		Cash: initialCash,
		Positions: make(map[string]types.Position),
		RealizedPnL: decimal.Zero,
		Fills: nil,
	}
}

func (l *ledgerBook) get(strategyID string) (*types.SubLedger, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	sl, ok := l.books[strategyID]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeStrategyNotFound, "no sub-ledger for strategy %s", strategyID)
	}

	return sl, nil
}

// Snapshot returns a deep-enough copy of a strategy's sub-ledger safe for
// concurrent reading.
func (l *ledgerBook) Snapshot(strategyID string) (types.SubLedger, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	sl, ok := l.books[strategyID]
	if !ok {
		return types.SubLedger{}, errors.Newf(errors.ErrCodeStrategyNotFound, "no sub-ledger for strategy %s", strategyID)
	}

	cp := *sl
	cp.Positions = make(map[string]types.Position, len(sl.Positions))

	for k, v := range sl.Positions {
		cp.Positions[k] = v
	}

	cp.Fills = append([]types.AppliedFill(nil), sl.Fills...)

	return cp, nil
}

// Aggregate sums every sub-ledger's cash and position market value. The
// sum is <= the broker's actual account totals; the surplus is
// unallocated house cash (Ledger invariant).
func (l *ledgerBook) Aggregate() (cash decimal.Decimal, positionValue decimal.Decimal) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	cash = decimal.Zero
	positionValue = decimal.Zero

	for _, sl := range l.books {
		cash = cash.Add(sl.Cash)

		for _, p := range sl.Positions {
			positionValue = positionValue.Add(p.MarketValue)
		}
	}

	return cash, positionValue
}
