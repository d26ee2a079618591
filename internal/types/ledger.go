package types

import "github.com/shopspring/decimal"

// SubLedger is a per-strategy slice of the overall portfolio ledger: cash,
// positions, realised P&L, and a bounded fill history.
type SubLedger struct {
	StrategyID string
	InitialCash decimal.Decimal
	Cash decimal.Decimal
	Positions map[string]Position
	RealizedPnL decimal.Decimal
	Fills []AppliedFill
}

// AppliedFill records a fill already applied to a sub-ledger, for
// idempotence checks and the retention window.
type AppliedFill struct {
	Fill Fill
	StrategyID string
	Symbol string
	Side Side
}
