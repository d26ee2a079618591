// Package supervisor is the Supervisor / Control Plane: the
// authoritative registry of deployed strategies, the sole writer to that
// registry, and the fan-out point for readers who want a consistent
// snapshot stream. Grounded on the LiveTradingEngine interface
// (internal/trading/engine/engine.go) and cmd/trading/main.go's wiring
// style, generalized from one strategy per process to a registry of many.
package supervisor

import (
	"context"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rxtech-lab/argo-trading/internal/clock"
	"github.com/rxtech-lab/argo-trading/internal/data"
	"github.com/rxtech-lab/argo-trading/internal/evaluator"
	"github.com/rxtech-lab/argo-trading/internal/gateway"
	"github.com/rxtech-lab/argo-trading/internal/logging"
	"github.com/rxtech-lab/argo-trading/internal/portfolio"
	"github.com/rxtech-lab/argo-trading/internal/runner"
	"github.com/rxtech-lab/argo-trading/internal/stats"
	"github.com/rxtech-lab/argo-trading/internal/types"
	"github.com/rxtech-lab/argo-trading/pkg/errors"
)

// DeploySpec is the validated input to Deploy (deploy spec
// fields, parsed from YAML by internal/config before reaching here).
type DeploySpec struct {
	Name string
	SourcePath string
	Engine string
	Provider string
	Symbol string
	Granularity string
	Lookback int
	Allocation types.Allocation
	Mode types.Mode
	Params map[string]string
}

type deployment struct {
	runner *runner.Runner
	cancel context.CancelFunc
}

// Supervisor owns the strategy registry.
type Supervisor struct {
	mu sync.Mutex
	deployments map[string]*deployment

	clk clock.Clock
	log *logging.Logger
	scheduler *clock.Scheduler
	dataMgr *data.Manager
	portfolio *portfolio.Manager
	gateway *gateway.Gateway
	statsMgr *stats.Manager
	evaluators map[string]evaluator.SignalEvaluator
	engine *evaluator.Engine
	caps types.BrokerCapabilities

	accountEquity types.AccountInfo
	allocatedFraction float64
	allocatedAbsolute float64

	subsMu sync.Mutex
	subs []chan []types.StrategyRecord
}

// Config bundles the shared collaborators every deployed strategy uses.
type Config struct {
	Clock clock.Clock
	Log *logging.Logger
	DataMgr *data.Manager
	Portfolio *portfolio.Manager
	Gateway *gateway.Gateway
	Stats *stats.Manager
	Evaluators map[string]evaluator.SignalEvaluator
	Caps types.BrokerCapabilities
	Account types.AccountInfo
}

// New creates an empty Supervisor.
func New(cfg Config) *Supervisor {
	return &Supervisor{
		deployments: make(map[string]*deployment),
		clk: cfg.Clock,
		log: cfg.Log.Component("supervisor"),
		scheduler: clock.NewScheduler(cfg.Clock),
		dataMgr: cfg.DataMgr,
		portfolio: cfg.Portfolio,
		gateway: cfg.Gateway,
		statsMgr: cfg.Stats,
		evaluators: cfg.Evaluators,
		engine: evaluator.NewEngine(evaluator.DefaultTimeout),
		caps: cfg.Caps,
		accountEquity: cfg.Account,
	}
}

// Deploy validates the deploy spec, opens the strategy's sub-ledger and
// statistics accumulator, subscribes its data feed, and starts its runner.
func (s *Supervisor) Deploy(ctx context.Context, spec DeploySpec) (string, error) {
	if err := s.validateDeploy(spec); err != nil {
		return "", err
	}

	granDur, err := clock.Granularity(spec.Granularity).Duration()
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidParameter, "invalid granularity", err)
	}

	allocatedCash := s.resolveAllocation(spec.Allocation)

	if err := s.checkAndReserveAllocation(spec.Allocation); err != nil {
		return "", err
	}

	id := uuid.New().String()

	strategyCtx, cancel := context.WithCancel(ctx)

	handle, err := s.dataMgr.Subscribe(strategyCtx, spec.Provider, spec.Symbol, spec.Granularity, granDur, spec.Lookback)
	if err != nil {
		cancel()
		return "", err
	}

	s.portfolio.OpenStrategy(id, allocatedCash)
	s.statsMgr.Open(id, allocatedCash)

	now := s.clk.Now()
	record := types.StrategyRecord{
		ID: id,
		Name: spec.Name,
		SourcePath: spec.SourcePath,
		Engine: spec.Engine,
		Symbols: []string{spec.Symbol},
		Granularity: spec.Granularity,
		Lookback: spec.Lookback,
		Allocation: spec.Allocation,
		Mode: spec.Mode,
		CreatedAt: now,
		Params: spec.Params,
	}

	deps := runner.Deps{
		Clock: s.clk,
		Log: s.log,
		DataHandle: handle,
		Engine: s.engine,
		Evaluator: s.evaluators[spec.Engine],
		Portfolio: s.portfolio,
		Gateway: s.gateway,
		Stats: s.statsMgr,
		Caps: s.caps,
	}

	r := runner.New(record, spec.Symbol, spec.Lookback, spec.Params, deps)

	tickCh, err := s.scheduler.TickSource(strategyCtx, clock.Granularity(spec.Granularity))
	if err != nil {
		cancel()
		return "", err
	}

	if err := r.Start(strategyCtx, tickCh); err != nil {
		cancel()
		return "", err
	}

	s.mu.Lock()
	s.deployments[id] = &deployment{runner: r, cancel: cancel}
	s.mu.Unlock()

	s.broadcast()

	s.log.Info("strategy deployed", zap.String("strategy_id", id), zap.String("name", spec.Name))

	return id, nil
}

func (s *Supervisor) validateDeploy(spec DeploySpec) error {
	if spec.SourcePath != "" {
		if _, err := os.Stat(spec.SourcePath); err != nil {
			return errors.Wrapf(errors.ErrCodeStrategyFileNotFound, err, "strategy source %s not found", spec.SourcePath)
		}
	}

	if _, ok := s.evaluators[spec.Engine]; !ok {
		return errors.Newf(errors.ErrCodeUnknownEngine, "unknown engine %q", spec.Engine)
	}

	if spec.Allocation.IsFraction {
		if spec.Allocation.Fraction <= 0 || spec.Allocation.Fraction > 1 {
			return errors.Newf(errors.ErrCodeInvalidParameter, "allocation fraction %v out of (0,1]", spec.Allocation.Fraction)
		}
	} else if spec.Allocation.Absolute <= 0 {
		return errors.Newf(errors.ErrCodeInvalidParameter, "absolute allocation must be > 0")
	}

	return nil
}

// checkAndReserveAllocation validates alloc against the account's remaining
// headroom and books it in a single critical section, so two concurrent
// Deploy calls can't both pass the check against the same totals before
// either reserves.
func (s *Supervisor) checkAndReserveAllocation(alloc types.Allocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkAllocationFits(alloc); err != nil {
		return err
	}

	return s.reserveAllocation(alloc)
}

// checkAllocationFits must be called with mu held.
func (s *Supervisor) checkAllocationFits(alloc types.Allocation) error {
	equity, _ := s.accountEquity.Equity.Float64()

	fractionAdd, absoluteAdd := allocationParts(alloc, equity)

	remainingFraction := 1.0 - s.allocatedFraction
	remainingAbsolute := equity - s.allocatedAbsolute

	if fractionAdd > remainingFraction+1e-9 {
		return errors.Newf(errors.ErrCodeAllocationExceeded, "allocation %.4f exceeds remaining %.4f", fractionAdd, remainingFraction)
	}

	if absoluteAdd > remainingAbsolute+1e-9 {
		return errors.Newf(errors.ErrCodeAllocationExceeded, "allocation %.2f exceeds remaining %.2f", absoluteAdd, remainingAbsolute)
	}

	return nil
}

func allocationParts(alloc types.Allocation, equity float64) (fraction float64, absolute float64) {
	if alloc.IsFraction {
		return alloc.Fraction, alloc.Fraction * equity
	}

	if equity == 0 {
		return 0, alloc.Absolute
	}

	return alloc.Absolute / equity, alloc.Absolute
}

// reserveAllocation must be called with mu held; it books the allocation
// against the running totals once validation has passed.
func (s *Supervisor) reserveAllocation(alloc types.Allocation) error {
	equity, _ := s.accountEquity.Equity.Float64()

	fraction, absolute := allocationParts(alloc, equity)
	s.allocatedFraction += fraction
	s.allocatedAbsolute += absolute

	return nil
}

// resolveAllocation converts an Allocation into an absolute cash amount.
// Fraction and absolute forms are both normalized against the broker's
// account equity at deploy time and held constant thereafter.
func (s *Supervisor) resolveAllocation(alloc types.Allocation) decimal.Decimal {
	if alloc.IsFraction {
		return decimal.NewFromFloat(alloc.Fraction).Mul(s.accountEquity.Equity)
	}

	return decimal.NewFromFloat(alloc.Absolute)
}

// Pause transitions a strategy RUNNING -> PAUSED.
func (s *Supervisor) Pause(id string) error {
	d, err := s.get(id)
	if err != nil {
		return err
	}

	return d.runner.Pause()
}

// Resume transitions a strategy PAUSED -> RUNNING.
func (s *Supervisor) Resume(id string) error {
	d, err := s.get(id)
	if err != nil {
		return err
	}

	return d.runner.Resume()
}

// StopOptions mirrors runner.StopOptions for the control-plane surface.
type StopOptions = runner.StopOptions

// Stop transitions a strategy to STOPPED, releasing its resources. The
// record and its final statistics snapshot remain queryable in the
// registry afterward; stopping an already-stopped strategy is a no-op
// that returns the same final snapshot rather than an error.
func (s *Supervisor) Stop(ctx context.Context, id string, opts StopOptions) (stats.Snapshot, error) {
	d, err := s.get(id)
	if err != nil {
		return stats.Snapshot{}, err
	}

	if d.runner.Snapshot().Status == types.StatusStopped {
		return s.statsMgr.Snapshot(id)
	}

	snap, err := d.runner.Stop(ctx, opts)
	if err != nil {
		return snap, err
	}

	d.cancel()

	s.broadcast()

	return snap, nil
}

// List returns a snapshot of every deployed strategy's record.
func (s *Supervisor) List() []types.StrategyRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.StrategyRecord, 0, len(s.deployments))
	for _, d := range s.deployments {
		out = append(out, d.runner.Snapshot())
	}

	return out
}

// Get returns one strategy's current record.
func (s *Supervisor) Get(id string) (types.StrategyRecord, error) {
	d, err := s.get(id)
	if err != nil {
		return types.StrategyRecord{}, err
	}

	return d.runner.Snapshot(), nil
}

func (s *Supervisor) get(id string) (*deployment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.deployments[id]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeStrategyNotFound, "no deployed strategy %s", id)
	}

	return d, nil
}

// Subscribe returns a channel that receives the full registry snapshot
// whenever it changes. The channel is buffered by 1 and drops stale
// snapshots rather than blocking the writer.
func (s *Supervisor) Subscribe() <-chan []types.StrategyRecord {
	ch := make(chan []types.StrategyRecord, 1)

	s.subsMu.Lock()
	s.subs = append(s.subs, ch)
	s.subsMu.Unlock()

	ch <- s.List()

	return ch
}

func (s *Supervisor) broadcast() {
	snapshot := s.List()

	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}

		select {
		case ch <- snapshot:
		default:
		}
	}
}
