package evalplugin

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/rxtech-lab/argo-trading/internal/evaluator"
	"github.com/rxtech-lab/argo-trading/internal/types"
)

// Threshold is a stateless evaluator that buys once price closes above
// "buy_above" and closes the position once price closes below
// "sell_below". Missing or unparsable thresholds hold forever, which is
// intentional: a misconfigured threshold should do nothing rather than
// guess.
type Threshold struct{}

func (Threshold) Name() string { return "threshold" }

func (Threshold) Evaluate(ctx context.Context, window []types.Bar, params map[string]string, state evaluator.State) (types.Signal, evaluator.State, error) {
	if len(window) == 0 {
		return types.Signal{Type: types.SignalHold}, state, nil
	}

	last := window[len(window)-1]
	signal := types.Signal{Type: types.SignalHold, Symbol: last.Symbol, Price: last.Close, Timestamp: last.Timestamp}

	if buyAbove, ok := decimalParam(params, "buy_above"); ok && last.Close.GreaterThan(buyAbove) {
		signal.Type = types.SignalBuy
		signal.Sizing = types.SizingIntent{Kind: types.SizingEquityPct, Value: equityPctParam(params)}

		return signal, state, nil
	}

	if sellBelow, ok := decimalParam(params, "sell_below"); ok && last.Close.LessThan(sellBelow) {
		signal.Type = types.SignalClose
		signal.Sizing = types.SizingIntent{Kind: types.SizingTargetUnits}

		return signal, state, nil
	}

	return signal, state, nil
}

func decimalParam(params map[string]string, key string) (decimal.Decimal, bool) {
	raw, ok := params[key]
	if !ok {
		return decimal.Zero, false
	}

	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false
	}

	return v, true
}
