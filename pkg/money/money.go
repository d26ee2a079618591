// Package money provides precision-preserving decimal types for prices,
// quantities, and cash figures shared across the trading runtime.
//
// Every value that participates in sizing, fills, or ledger arithmetic is a
// decimal.Decimal under the hood: rounding only happens at broker-interface
// boundaries (step_size / min_lot_size) and at display boundaries, never in
// the middle of a P&L computation.
package money

import (
	"github.com/shopspring/decimal"
)

// Money represents a cash amount (account currency).
type Money struct {
	decimal.Decimal
}

// Quantity represents a signed instrument quantity (shares, contracts, coins).
type Quantity struct {
	decimal.Decimal
}

// Price represents a per-unit instrument price. Must be > 0 wherever used
// to size or fill an order.
type Price struct {
	decimal.Decimal
}

func NewMoney(d decimal.Decimal) Money { return Money{d} }
func NewQuantity(d decimal.Decimal) Quantity { return Quantity{d} }
func NewPrice(d decimal.Decimal) Price { return Price{d} }

func MoneyFromFloat(v float64) Money { return Money{decimal.NewFromFloat(v)} }
func QuantityFromFloat(v float64) Quantity { return Quantity{decimal.NewFromFloat(v)} }
func PriceFromFloat(v float64) Price { return Price{decimal.NewFromFloat(v)} }

var Zero = decimal.Zero

// Notional returns qty * price as Money.
func Notional(qty Quantity, price Price) Money {
	return Money{qty.Decimal.Mul(price.Decimal)}
}

// RoundToStep rounds q down to the nearest multiple of step (floor toward
// zero), matching the sign of q. A zero step is treated as "no rounding".
func RoundToStep(q decimal.Decimal, step decimal.Decimal) decimal.Decimal {
	if step.IsZero() {
		return q
	}

	units := q.Div(step)

	var rounded decimal.Decimal
	if q.IsNegative() {
		rounded = units.Ceil()
	} else {
		rounded = units.Floor()
	}

	return rounded.Mul(step)
}

// FloorToInteger truncates toward zero to a whole unit; used when a broker
// does not support fractional shares.
func FloorToInteger(q decimal.Decimal) decimal.Decimal {
	if q.IsNegative() {
		return q.Ceil()
	}

	return q.Floor()
}

// IsPositive reports whether d is strictly greater than zero.
func IsPositive(d decimal.Decimal) bool {
	return d.Sign() > 0
}
