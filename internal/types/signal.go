package types

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rxtech-lab/argo-trading/pkg/errors"
)

// SignalType is the engine-agnostic trading intent produced by a
// SignalEvaluator.
type SignalType string

const (
	SignalBuy SignalType = "BUY"
	SignalSell SignalType = "SELL"
	SignalHold SignalType = "HOLD"
	SignalClose SignalType = "CLOSE"
	SignalLimitBuy SignalType = "LIMIT_BUY"
	SignalLimitSell SignalType = "LIMIT_SELL"
	SignalStopBuy SignalType = "STOP_BUY"
	SignalStopSell SignalType = "STOP_SELL"
	SignalStopLimitBuy SignalType = "STOP_LIMIT_BUY"
	SignalStopLimitSell SignalType = "STOP_LIMIT_SELL"
)

// SizingKind names the shape of a SizingIntent. At most one intent is set
// on a Signal.
type SizingKind string

const (
	SizingNone SizingKind = "none"
	SizingUnits SizingKind = "units"
	SizingNotional SizingKind = "notional"
	SizingEquityPct SizingKind = "equity_pct"
	SizingTargetUnits SizingKind = "target_units"
	SizingTargetNotional SizingKind = "target_notional"
	SizingTargetEquity SizingKind = "target_equity_pct"
	SizingLegacyFraction SizingKind = "legacy_fraction"
)

// SizingIntent is an abstract quantity specification resolved to a
// concrete order quantity by the Portfolio Manager.
type SizingIntent struct {
	Kind SizingKind
	Value decimal.Decimal
}

// TimeInForce mirrors common broker TIF semantics for limit/stop orders.
type TimeInForce string

const (
	TimeInForceGTC TimeInForce = "GTC"
	TimeInForceIOC TimeInForce = "IOC"
	TimeInForceDAY TimeInForce = "DAY"
)

// Signal is the engine-agnostic output of a SignalEvaluator call.
type Signal struct {
	Type SignalType
	Price decimal.Decimal
	Timestamp time.Time
	Sizing SizingIntent
	LimitPrice *decimal.Decimal
	StopPrice *decimal.Decimal
	TimeInForce TimeInForce
	Symbol string
	Metadata map[string]string
}

var limitStopRequired = map[SignalType]struct{ limit, stop bool }{
	SignalLimitBuy: {limit: true, stop: false},
	SignalLimitSell: {limit: true, stop: false},
	SignalStopBuy: {limit: false, stop: true},
	SignalStopSell: {limit: false, stop: true},
	SignalStopLimitBuy: {limit: true, stop: true},
	SignalStopLimitSell: {limit: true, stop: true},
}

// Validate enforces: price > 0 (HOLD excepted), limit/stop prices required
// for the matching signal types, at most one sizing intent set.
func (s Signal) Validate() error {
	if s.Type != SignalHold && !s.Price.GreaterThan(decimal.Zero) {
		return errors.Newf(errors.ErrCodeInvalidSignal, "signal %s: price must be > 0, got %s", s.Type, s.Price)
	}

	if req, ok := limitStopRequired[s.Type]; ok {
		if req.limit && s.LimitPrice == nil {
			return errors.Newf(errors.ErrCodeInvalidSignal, "signal %s: limit_price required", s.Type)
		}

		if req.stop && s.StopPrice == nil {
			return errors.Newf(errors.ErrCodeInvalidSignal, "signal %s: stop_price required", s.Type)
		}
	}

	return nil
}

// IsBuySide reports whether the signal's directional side is a buy.
func (s Signal) IsBuySide() bool {
	switch s.Type {
	case SignalBuy, SignalLimitBuy, SignalStopBuy, SignalStopLimitBuy:
		return true
	default:
		return false
	}
}

// IsSellSide reports whether the signal's directional side is a sell.
func (s Signal) IsSellSide() bool {
	switch s.Type {
	case SignalSell, SignalLimitSell, SignalStopSell, SignalStopLimitSell:
		return true
	default:
		return false
	}
}
