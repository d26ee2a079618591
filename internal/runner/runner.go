// Package runner is the Strategy Runner: a per-strategy state
// machine that composes the Data Manager, Signal Engine, Portfolio
// Manager, Order Gateway, and Statistics Manager into a single tick loop.
// Grounded on LiveTradingEngineV1's run loop
// (live_trading_v1.go), which composes these ad hoc; here the same
// composition is expressed as an explicit finite-state machine.
package runner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rxtech-lab/argo-trading/internal/clock"
	"github.com/rxtech-lab/argo-trading/internal/data"
	"github.com/rxtech-lab/argo-trading/internal/evaluator"
	"github.com/rxtech-lab/argo-trading/internal/gateway"
	"github.com/rxtech-lab/argo-trading/internal/logging"
	"github.com/rxtech-lab/argo-trading/internal/portfolio"
	"github.com/rxtech-lab/argo-trading/internal/stats"
	"github.com/rxtech-lab/argo-trading/internal/types"
	"github.com/rxtech-lab/argo-trading/pkg/errors"
)

// maxConsecutiveEvaluatorErrors is N in "after N consecutive errors the
// runner transitions to ERRORED".
const maxConsecutiveEvaluatorErrors = 5

// StopOptions controls the STOPPING -> STOPPED transition.
type StopOptions struct {
	// Liquidate drives the gateway to submit closing market orders for
	// every open position before completing the stop.
	Liquidate bool
	// Force cancels open orders immediately instead of waiting for them
	// to reach a terminal state.
	Force bool
}

// Deps bundles a Runner's collaborators; all are shared across runners
// except the per-strategy evaluator and data handle.
type Deps struct {
	Clock clock.Clock
	Log *logging.Logger
	DataHandle *data.Handle
	Engine *evaluator.Engine
	Evaluator evaluator.SignalEvaluator
	Portfolio *portfolio.Manager
	Gateway *gateway.Gateway
	Stats *stats.Manager
	Caps types.BrokerCapabilities
}

// Runner drives one strategy's tick loop. It is the single writer of its
// own StrategyRecord.
type Runner struct {
	mu sync.Mutex
	record types.StrategyRecord
	deps Deps

	params map[string]string
	lookback int
	symbol string
	evalState evaluator.State
	ticking atomic.Bool
	droppedTicks atomic.Int64
	consecutiveErrors int // touched only from the single-flighted tick goroutine

	tickCancel context.CancelFunc
}

// New creates a Runner for a validated StrategyRecord, INITIALIZING.
func New(record types.StrategyRecord, symbol string, lookback int, params map[string]string, deps Deps) *Runner {
	record.Status = types.StatusInitializing
	return &Runner{record: record, deps: deps, params: params, lookback: lookback, symbol: symbol}
}

// Snapshot returns a copy of the runner's current StrategyRecord.
func (r *Runner) Snapshot() types.StrategyRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.record
}

// Start transitions INITIALIZING -> RUNNING and begins consuming ticks
// from tickCh. History warmup is the caller's responsibility via the
// data handle's readiness before calling Start.
func (r *Runner) Start(ctx context.Context, tickCh <-chan time.Time) error {
	r.mu.Lock()

	if r.record.Status != types.StatusInitializing {
		r.mu.Unlock()
		return errors.Newf(errors.ErrCodeInvalidParameter, "cannot start strategy %s from status %s", r.record.ID, r.record.Status)
	}

	now := r.deps.Clock.Now()
	r.record.Status = types.StatusRunning
	r.record.StartedAt = &now
	r.mu.Unlock()

	tickCtx, cancel := context.WithCancel(ctx)
	r.tickCancel = cancel

	go r.loop(tickCtx, tickCh)

	return nil
}

// loop consumes ticks until tickCh is closed or ctx is cancelled. It
// single-flights: a tick that arrives while the previous tick is still
// executing is dropped, not queued (concurrency contract).
func (r *Runner) loop(ctx context.Context, tickCh <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return

		case err := <-r.deps.DataHandle.Errors():
			r.fail(err)
			return

		case tick, ok := <-tickCh:
			if !ok {
				return
			}

			if r.Snapshot().Status != types.StatusRunning {
				continue
			}

			if !r.ticking.CompareAndSwap(false, true) {
				r.droppedTicks.Add(1)
				r.deps.Log.Warn("tick dropped, previous tick still executing", zap.String("strategy_id", r.record.ID))

				continue
			}

			go func() {
				r.runTick(ctx, tick)
				r.ticking.Store(false)
			}()
		}
	}
}

// runTick executes one iteration of the RUNNING tick loop.
// tick is the scheduled boundary time, used only for log correlation.
func (r *Runner) runTick(ctx context.Context, tick time.Time) {
	r.deps.Log.Debug("tick", zap.String("strategy_id", r.record.ID), zap.Time("tick", tick))

	r.updateStale()

	window, err := r.deps.DataHandle.Snapshot(r.lookback)
	if err != nil {
		if errors.HasCode(err, errors.ErrCodeBufferNotReady) {
			return
		}

		r.fail(err)

		return
	}

	r.markPrice(window[len(window)-1].Close)

	signal, nextState, err := r.deps.Engine.Evaluate(ctx, r.deps.Evaluator, window, r.params, r.evalState)
	r.evalState = nextState

	if err != nil {
		r.consecutiveErrors++

		r.deps.Log.Error("evaluator failed",
			zap.String("strategy_id", r.record.ID),
			zap.Int("consecutive_errors", r.consecutiveErrors),
			zap.Error(err),
		)

		if r.consecutiveErrors >= maxConsecutiveEvaluatorErrors {
			r.fail(errors.Wrapf(errors.ErrCodeTooManyConsecutive, err, "%d consecutive evaluator errors", r.consecutiveErrors))
		}

		return
	}

	r.consecutiveErrors = 0

	if signal.Type == types.SignalHold {
		r.recordSignal(signal)
		return
	}

	order, rejection, err := r.deps.Portfolio.Propose(r.record.ID, r.symbol, signal, r.deps.Caps)
	if err != nil {
		r.fail(err)
		return
	}

	if rejection != nil {
		r.deps.Log.Info("order rejected by gate",
			zap.String("strategy_id", r.record.ID),
			zap.Int("code", int(rejection.Code)),
			zap.String("message", rejection.Message),
		)

		return
	}

	if order == nil {
		return
	}

	if err := r.deps.Gateway.Submit(ctx, order); err != nil {
		r.deps.Log.Error("order submission failed", zap.String("strategy_id", r.record.ID), zap.Error(err))
		return
	}

	r.recordSignal(signal)
}

// updateStale refreshes the record's Stale flag from the data handle's own
// gap check ahead of each tick's evaluation.
func (r *Runner) updateStale() {
	stale := r.deps.DataHandle.Stale()

	r.mu.Lock()
	r.record.Stale = stale
	r.mu.Unlock()

	if stale {
		r.deps.Log.Warn("data feed stale", zap.String("strategy_id", r.record.ID))
	}
}

// markPrice marks the strategy's position to the latest observed bar close
// and pushes the resulting unrealized P&L to the Statistics Manager, so a
// strategy's snapshot moves between fills, not only on them.
func (r *Runner) markPrice(price decimal.Decimal) {
	if err := r.deps.Portfolio.MarkPrice(r.record.ID, r.symbol, price); err != nil {
		r.deps.Log.Warn("mark price failed", zap.String("strategy_id", r.record.ID), zap.Error(err))
		return
	}

	unrealized, err := r.deps.Portfolio.UnrealizedPnL(r.record.ID)
	if err != nil {
		r.deps.Log.Warn("unrealized pnl lookup failed", zap.String("strategy_id", r.record.ID), zap.Error(err))
		return
	}

	if err := r.deps.Stats.MarkUnrealized(r.record.ID, unrealized); err != nil {
		r.deps.Log.Warn("mark unrealized failed", zap.String("strategy_id", r.record.ID), zap.Error(err))
	}
}

func (r *Runner) recordSignal(signal types.Signal) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.deps.Clock.Now()
	r.record.LastSignalTS = &now
	r.record.LastSignalType = signal.Type
}

// Pause transitions RUNNING -> PAUSED: stop consuming ticks, keep
// subscriptions and open orders untouched.
func (r *Runner) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.record.Status != types.StatusRunning {
		return errors.Newf(errors.ErrCodeInvalidParameter, "cannot pause strategy %s from status %s", r.record.ID, r.record.Status)
	}

	r.record.Status = types.StatusPaused

	return nil
}

// Resume transitions PAUSED -> RUNNING.
func (r *Runner) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.record.Status != types.StatusPaused {
		return errors.Newf(errors.ErrCodeInvalidParameter, "cannot resume strategy %s from status %s", r.record.ID, r.record.Status)
	}

	r.record.Status = types.StatusRunning

	return nil
}

// fail transitions any non-terminal state to ERRORED.
func (r *Runner) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.record.Status == types.StatusStopped || r.record.Status == types.StatusErrored {
		return
	}

	r.record.Status = types.StatusErrored
	r.record.ErrorMessage = err.Error()

	r.deps.Log.Error("strategy errored", zap.String("strategy_id", r.record.ID), zap.Error(err))
}

// Stop transitions * -> STOPPING -> STOPPED: cancel the tick source,
// refuse new signals, wait for open orders to terminate (or cancel them
// immediately under Force), optionally liquidate, then release resources
// and emit a final statistics snapshot.
func (r *Runner) Stop(ctx context.Context, opts StopOptions) (stats.Snapshot, error) {
	r.mu.Lock()

	if r.record.Status == types.StatusStopped {
		r.mu.Unlock()
		return stats.Snapshot{}, nil
	}

	r.record.Status = types.StatusStopping
	r.mu.Unlock()

	if r.tickCancel != nil {
		r.tickCancel()
	}

	open := r.deps.Gateway.OpenOrders()

	if opts.Force {
		for _, o := range open {
			if o.StrategyID != r.record.ID {
				continue
			}

			_ = r.deps.Gateway.Cancel(ctx, o.ID)
		}
	} else {
		r.waitForTerminal(ctx, open)
	}

	if opts.Liquidate {
		if err := r.liquidate(ctx); err != nil {
			r.deps.Log.Error("liquidation failed", zap.String("strategy_id", r.record.ID), zap.Error(err))
		}
	}

	r.deps.DataHandle.Close()

	snap, err := r.deps.Stats.Close(r.record.ID)

	r.mu.Lock()
	r.record.Status = types.StatusStopped
	r.mu.Unlock()

	return snap, err
}

// waitForTerminal blocks until every open order belonging to this
// strategy reaches a terminal state, or ctx is cancelled (STOPPING always
// waits unless Force is set, per the pinned Open Question decision).
func (r *Runner) waitForTerminal(ctx context.Context, open []*types.Order) {
	ids := make(map[string]struct{}, len(open))

	for _, o := range open {
		if o.StrategyID == r.record.ID {
			ids[o.ID] = struct{}{}
		}
	}

	ticker := r.deps.Clock.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for len(ids) > 0 {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			for id := range ids {
				o, err := r.deps.Gateway.Order(id)
				if err != nil || o.State.IsTerminal() {
					delete(ids, id)
				}
			}
		}
	}
}

// liquidate submits closing market orders for every non-flat position in
// this strategy's sub-ledger.
func (r *Runner) liquidate(ctx context.Context) error {
	sl, err := r.deps.Portfolio.Snapshot(r.record.ID)
	if err != nil {
		return err
	}

	for symbol, pos := range sl.Positions {
		if pos.IsFlat() {
			continue
		}

		signal := types.Signal{
			Type: types.SignalClose,
			Price: pos.MarketValue.Div(pos.Quantity).Abs(),
			Timestamp: r.deps.Clock.Now(),
			Symbol: symbol,
			Sizing: types.SizingIntent{Kind: types.SizingTargetUnits},
		}

		order, rejection, err := r.deps.Portfolio.Propose(r.record.ID, symbol, signal, r.deps.Caps)
		if err != nil {
			return err
		}

		if rejection != nil || order == nil {
			continue
		}

		if err := r.deps.Gateway.Submit(ctx, order); err != nil {
			return err
		}
	}

	return nil
}

// DroppedTicks reports how many ticks were skipped because the previous
// tick was still executing.
func (r *Runner) DroppedTicks() int64 {
	return r.droppedTicks.Load()
}
