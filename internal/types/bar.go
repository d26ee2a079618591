package types

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rxtech-lab/argo-trading/pkg/errors"
)

// Bar is a timestamped OHLCV record for (symbol, granularity). Immutable
// once admitted to a buffer.
type Bar struct {
	Symbol      string          `json:"symbol" yaml:"symbol"`
	Granularity string          `json:"granularity" yaml:"granularity"`
	Timestamp   time.Time       `json:"timestamp" yaml:"timestamp"`
	Open        decimal.Decimal `json:"open" yaml:"open"`
	High        decimal.Decimal `json:"high" yaml:"high"`
	Low         decimal.Decimal `json:"low" yaml:"low"`
	Close       decimal.Decimal `json:"close" yaml:"close"`
	Volume      decimal.Decimal `json:"volume" yaml:"volume"`
	// IsFinal marks the bar as the canonical close of its period, as
	// opposed to an in-progress partial update some providers stream.
	IsFinal bool `json:"is_final" yaml:"is_final"`
}

// Validate enforces the Bar invariants from the data model:
// low <= {open,close} <= high, low <= high, volume >= 0.
func (b Bar) Validate() error {
	if b.Low.GreaterThan(b.High) {
		return errors.Newf(errors.ErrCodeInvalidParameter, "bar %s@%s: low %s > high %s", b.Symbol, b.Timestamp, b.Low, b.High)
	}

	if b.Open.LessThan(b.Low) || b.Open.GreaterThan(b.High) {
		return errors.Newf(errors.ErrCodeInvalidParameter, "bar %s@%s: open %s outside [low,high]", b.Symbol, b.Timestamp, b.Open)
	}

	if b.Close.LessThan(b.Low) || b.Close.GreaterThan(b.High) {
		return errors.Newf(errors.ErrCodeInvalidParameter, "bar %s@%s: close %s outside [low,high]", b.Symbol, b.Timestamp, b.Close)
	}

	if b.Volume.IsNegative() {
		return errors.Newf(errors.ErrCodeInvalidParameter, "bar %s@%s: negative volume %s", b.Symbol, b.Timestamp, b.Volume)
	}

	return nil
}
