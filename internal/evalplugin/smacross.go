// Package evalplugin holds the runtime's built-in SignalEvaluator
// implementations — reference engines a strategy can select by name
// without shipping its own plugin, in the style of
// internal/indicator's moving-average calculations, regrounded onto the
// SignalEvaluator interface instead of the old IndicatorContext/
// MarketData coupling.
package evalplugin

import (
	"context"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/rxtech-lab/argo-trading/internal/evaluator"
	"github.com/rxtech-lab/argo-trading/internal/types"
	"github.com/rxtech-lab/argo-trading/pkg/errors"
)

// smaCrossState is threaded between Evaluate calls to detect a crossing
// rather than re-emitting a signal every tick the fast average stays
// above (or below) the slow one.
type smaCrossState struct {
	lastFastAboveSlow bool
	initialized bool
}

// SMACross is a two-moving-average crossover evaluator: BUY when the fast
// SMA crosses above the slow SMA, CLOSE on the opposite cross, HOLD
// otherwise. Params: "fast_period", "slow_period" (both default if
// missing or unparsable), "equity_pct" (fraction of equity to size into,
// default 0.10 if missing or unparsable).
type SMACross struct{}

const (
	defaultFastPeriod = 10
	defaultSlowPeriod = 30
)

func (SMACross) Name() string { return "sma_cross" }

func (SMACross) Evaluate(ctx context.Context, window []types.Bar, params map[string]string, state evaluator.State) (types.Signal, evaluator.State, error) {
	fastPeriod := intParam(params, "fast_period", defaultFastPeriod)
	slowPeriod := intParam(params, "slow_period", defaultSlowPeriod)

	if slowPeriod <= fastPeriod {
		return types.Signal{Type: types.SignalHold}, state, errors.Newf(errors.ErrCodeInvalidParameter, "sma_cross: slow_period %d must exceed fast_period %d", slowPeriod, fastPeriod)
	}

	if len(window) < slowPeriod {
		return types.Signal{Type: types.SignalHold}, state, nil
	}

	fast := sma(window, fastPeriod)
	slow := sma(window, slowPeriod)

	cur, _ := state.(smaCrossState)
	fastAboveSlow := fast.GreaterThan(slow)

	last := window[len(window)-1]

	signal := types.Signal{Type: types.SignalHold, Symbol: last.Symbol, Price: last.Close, Timestamp: last.Timestamp}

	if cur.initialized && fastAboveSlow != cur.lastFastAboveSlow {
		if fastAboveSlow {
			signal.Type = types.SignalBuy
			signal.Sizing = types.SizingIntent{Kind: types.SizingEquityPct, Value: equityPctParam(params)}
		} else {
			signal.Type = types.SignalClose
			signal.Sizing = types.SizingIntent{Kind: types.SizingTargetUnits}
		}
	}

	return signal, smaCrossState{lastFastAboveSlow: fastAboveSlow, initialized: true}, nil
}

func sma(window []types.Bar, period int) decimal.Decimal {
	start := len(window) - period
	sum := decimal.Zero

	for _, bar := range window[start:] {
		sum = sum.Add(bar.Close)
	}

	return sum.Div(decimal.NewFromInt(int64(period)))
}

func intParam(params map[string]string, key string, def int) int {
	raw, ok := params[key]
	if !ok {
		return def
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}

	return v
}

func equityPctParam(params map[string]string) decimal.Decimal {
	raw, ok := params["equity_pct"]
	if !ok {
		return decimal.NewFromFloat(0.10)
	}

	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.NewFromFloat(0.10)
	}

	return v
}
