// Package evaluator is the Signal Engine: a thin, stateless
// dispatcher over a pluggable SignalEvaluator. The evaluator threads its
// own per-strategy state, encapsulating the adapter's notion of "strategy
// context" — the core stays engine-agnostic.
package evaluator

import (
	"context"
	"time"

	"github.com/rxtech-lab/argo-trading/internal/types"
	"github.com/rxtech-lab/argo-trading/pkg/errors"
)

// DefaultTimeout is the default evaluator call timeout.
const DefaultTimeout = 5 * time.Second

// State is opaque per-strategy state threaded between evaluator calls.
type State any

// SignalEvaluator is the out-of-scope backtest-engine adapter interface:
// given a window of bars and strategy parameters, return a Signal. The
// evaluator may carry opaque per-strategy state across calls; the engine
// treats it as inert.
type SignalEvaluator interface {
	// Name identifies the engine for logging and registry lookup.
	Name() string
	// Evaluate is called with a bounded historical window (oldest first)
	// and the strategy's raw parameters. Calls for a single strategy are
	// serial.
	Evaluate(ctx context.Context, window []types.Bar, params map[string]string, state State) (types.Signal, State, error)
}

// Engine dispatches evaluator calls under a timeout. It is itself
// stateless; all state lives in the caller-supplied State value.
type Engine struct {
	timeout time.Duration
}

// NewEngine creates a Signal Engine with the given per-call timeout. A
// zero timeout uses DefaultTimeout.
func NewEngine(timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Engine{timeout: timeout}
}

// result carries an Evaluate call's outcome across the timeout select.
type result struct {
	signal types.Signal
	state State
	err error
}

// Evaluate runs evaluator.Evaluate under the engine's timeout. On timeout
// it returns ErrCodeEvaluatorTimeout and the caller should record the
// tick as ERRORED and skip it.
func (e *Engine) Evaluate(ctx context.Context, ev SignalEvaluator, window []types.Bar, params map[string]string, state State) (types.Signal, State, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	ch := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{signal: types.Signal{}, state: state, err: errors.Newf(errors.ErrCodeEvaluatorPanicked, "evaluator %s panicked: %v", ev.Name(), r)}
			}
		}()

		sig, next, err := ev.Evaluate(ctx, window, params, state)
		ch <- result{signal: sig, state: next, err: err}
	}()

	select {
	case <-ctx.Done():
		return types.Signal{}, state, errors.Newf(errors.ErrCodeEvaluatorTimeout, "evaluator %s timed out after %s", ev.Name(), e.timeout)
	case r := <-ch:
		if r.err != nil {
			return types.Signal{}, r.state, errors.Wrapf(errors.ErrCodeEvaluatorErrored, r.err, "evaluator %s errored", ev.Name())
		}

		return r.signal, r.state, nil
	}
}
