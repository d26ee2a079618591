package types

import "github.com/shopspring/decimal"

// Position is a symbol's current holding. Quantity sign encodes long/short.
type Position struct {
	Symbol string
	Quantity decimal.Decimal
	AverageCost decimal.Decimal
	MarketValue decimal.Decimal
}

// IsFlat reports whether the position has zero quantity.
func (p Position) IsFlat() bool {
	return p.Quantity.IsZero()
}

// IsLong reports whether the position quantity is positive.
func (p Position) IsLong() bool {
	return p.Quantity.Sign() > 0
}

// IsShort reports whether the position quantity is negative.
func (p Position) IsShort() bool {
	return p.Quantity.Sign() < 0
}
