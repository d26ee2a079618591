package runner

import (
	"context"
	"iter"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

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

type fakeProvider struct {
	bars []types.Bar
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) HistoryFetch(ctx context.Context, symbol, granularity string, lookback int) ([]types.Bar, error) {
	return p.bars, nil
}

func (p *fakeProvider) Stream(ctx context.Context, symbols []string, granularity string) iter.Seq2[types.Bar, error] {
	return func(yield func(types.Bar, error) bool) {
		<-ctx.Done()
	}
}

type fixedSignalEvaluator struct {
	signal types.Signal
}

func (e fixedSignalEvaluator) Name() string { return "fixed" }

func (e fixedSignalEvaluator) Evaluate(ctx context.Context, window []types.Bar, params map[string]string, state evaluator.State) (types.Signal, evaluator.State, error) {
	return e.signal, nil, nil
}

// failingEvaluator always returns an error, for exercising the consecutive
// evaluator-error counter.
type failingEvaluator struct{}

func (failingEvaluator) Name() string { return "failing" }

func (failingEvaluator) Evaluate(ctx context.Context, window []types.Bar, params map[string]string, state evaluator.State) (types.Signal, evaluator.State, error) {
	return types.Signal{}, state, errors.Newf(errors.ErrCodeEvaluatorErrored, "evaluator boom")
}

type fakeBroker struct {
	nextID int
}

func (b *fakeBroker) Name() string { return "fake-broker" }
func (b *fakeBroker) Capabilities(ctx context.Context) (types.BrokerCapabilities, error) {
	return types.BrokerCapabilities{}, nil
}

func (b *fakeBroker) SubmitOrder(ctx context.Context, order types.Order) (string, error) {
	b.nextID++
	return "b-order", nil
}

func (b *fakeBroker) CancelOrder(ctx context.Context, brokerOrderID string) error { return nil }

func (b *fakeBroker) PollFills(ctx context.Context, sinceCursor string) ([]types.Fill, string, error) {
	return nil, sinceCursor, nil
}

func (b *fakeBroker) Fills(ctx context.Context) (<-chan types.Fill, error) {
	ch := make(chan types.Fill)
	return ch, nil
}

func (b *fakeBroker) AccountInfo(ctx context.Context) (types.AccountInfo, error) {
	return types.AccountInfo{}, nil
}

type RunnerTestSuite struct {
	suite.Suite
	clk *clock.FakeClock
	log *logging.Logger
	cancel context.CancelFunc
	ctx context.Context
	dataMgr *data.Manager
	handle *data.Handle
	pf *portfolio.Manager
	statsMgr *stats.Manager
	broker *fakeBroker
	gw *gateway.Gateway
	record types.StrategyRecord
	caps types.BrokerCapabilities
}

func TestRunnerSuite(t *testing.T) {
	suite.Run(t, new(RunnerTestSuite))
}

func (suite *RunnerTestSuite) SetupTest() {
	suite.clk = clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	log, err := logging.NewDevelopment()
	suite.Require().NoError(err)
	suite.log = log

	suite.ctx, suite.cancel = context.WithCancel(context.Background())

	bars := []types.Bar{
		{Symbol: "AAPL", Granularity: "1d", Timestamp: suite.clk.Now().Add(-2 * 24 * time.Hour), Open: decimal.NewFromInt(100), High: decimal.NewFromInt(101), Low: decimal.NewFromInt(99), Close: decimal.NewFromInt(100), Volume: decimal.NewFromInt(1000), IsFinal: true},
		{Symbol: "AAPL", Granularity: "1d", Timestamp: suite.clk.Now().Add(-1 * 24 * time.Hour), Open: decimal.NewFromInt(100), High: decimal.NewFromInt(102), Low: decimal.NewFromInt(99), Close: decimal.NewFromInt(101), Volume: decimal.NewFromInt(1000), IsFinal: true},
		{Symbol: "AAPL", Granularity: "1d", Timestamp: suite.clk.Now(), Open: decimal.NewFromInt(101), High: decimal.NewFromInt(103), Low: decimal.NewFromInt(100), Close: decimal.NewFromInt(102), Volume: decimal.NewFromInt(1000), IsFinal: true},
	}

	provider := &fakeProvider{bars: bars}
	suite.dataMgr = data.NewManager(suite.clk, suite.log, map[string]data.ProviderAdapter{"fake": provider})

	handle, err := suite.dataMgr.Subscribe(suite.ctx, "fake", "AAPL", "1d", 24*time.Hour, 3)
	suite.Require().NoError(err)
	suite.handle = handle

	suite.pf = portfolio.NewManager(suite.clk, nil)
	suite.pf.OpenStrategy("s1", decimal.NewFromInt(10000))

	suite.statsMgr = stats.NewManager(suite.clk)
	suite.statsMgr.Open("s1", decimal.NewFromInt(10000))

	suite.broker = &fakeBroker{}
	suite.gw = gateway.NewGateway(suite.broker, suite.clk, suite.log, nil)

	suite.caps = types.BrokerCapabilities{
		MinNotional: decimal.Zero,
		MinLotSize: decimal.Zero,
		StepSize: decimal.Zero,
		FractionalShares: true,
		ShortSellingAllowed: false,
		SupportedOrderTypes: []types.OrderType{types.OrderTypeMarket},
	}

	suite.record = types.StrategyRecord{ID: "s1", Symbols: []string{"AAPL"}, Granularity: "1d"}
}

func (suite *RunnerTestSuite) TearDownTest() {
	suite.cancel()
}

func (suite *RunnerTestSuite) newRunner(ev evaluator.SignalEvaluator) *Runner {
	deps := Deps{
		Clock: suite.clk,
		Log: suite.log,
		DataHandle: suite.handle,
		Engine: evaluator.NewEngine(0),
		Evaluator: ev,
		Portfolio: suite.pf,
		Gateway: suite.gw,
		Stats: suite.statsMgr,
		Caps: suite.caps,
	}

	return New(suite.record, "AAPL", 3, nil, deps)
}

func (suite *RunnerTestSuite) TestRunTickHoldRecordsSignalNoOrder() {
	ev := fixedSignalEvaluator{signal: types.Signal{Type: types.SignalHold, Price: decimal.NewFromInt(102), Symbol: "AAPL", Timestamp: suite.clk.Now()}}
	r := suite.newRunner(ev)

	r.runTick(suite.ctx, suite.clk.Now())

	snap := r.Snapshot()
	suite.Equal(types.SignalHold, snap.LastSignalType)
	suite.Empty(suite.gw.OpenOrders())
}

func (suite *RunnerTestSuite) TestRunTickBuySubmitsOrder() {
	ev := fixedSignalEvaluator{signal: types.Signal{
		Type: types.SignalBuy, Price: decimal.NewFromInt(102), Symbol: "AAPL", Timestamp: suite.clk.Now(),
		Sizing: types.SizingIntent{Kind: types.SizingUnits, Value: decimal.NewFromInt(1)},
	}}
	r := suite.newRunner(ev)

	r.runTick(suite.ctx, suite.clk.Now())

	orders := suite.gw.OpenOrders()
	suite.Require().Len(orders, 1)
	suite.Equal(types.SideBuy, orders[0].Side)
	suite.True(orders[0].Qty.Equal(decimal.NewFromInt(1)))

	snap := r.Snapshot()
	suite.Equal(types.SignalBuy, snap.LastSignalType)
}

func (suite *RunnerTestSuite) TestStartPauseResumeStop() {
	ev := fixedSignalEvaluator{signal: types.Signal{Type: types.SignalHold, Price: decimal.NewFromInt(102), Symbol: "AAPL", Timestamp: suite.clk.Now()}}
	r := suite.newRunner(ev)

	tickCh := make(chan time.Time)
	suite.Require().NoError(r.Start(suite.ctx, tickCh))
	suite.Equal(types.StatusRunning, r.Snapshot().Status)

	suite.Require().NoError(r.Pause())
	suite.Equal(types.StatusPaused, r.Snapshot().Status)

	suite.Require().NoError(r.Resume())
	suite.Equal(types.StatusRunning, r.Snapshot().Status)

	snap, err := r.Stop(suite.ctx, StopOptions{Force: true})
	suite.Require().NoError(err)
	suite.Equal("s1", snap.StrategyID)
	suite.Equal(types.StatusStopped, r.Snapshot().Status)
}

func (suite *RunnerTestSuite) TestConsecutiveEvaluatorErrorsTransitionToErrored() {
	r := suite.newRunner(failingEvaluator{})

	for i := 0; i < maxConsecutiveEvaluatorErrors-1; i++ {
		r.runTick(suite.ctx, suite.clk.Now())
		suite.Equal(types.StatusInitializing, r.Snapshot().Status)
	}

	r.runTick(suite.ctx, suite.clk.Now())

	snap := r.Snapshot()
	suite.Equal(types.StatusErrored, snap.Status)
	suite.NotEmpty(snap.ErrorMessage)
}

func (suite *RunnerTestSuite) TestEvaluatorSuccessResetsConsecutiveErrorCount() {
	r := suite.newRunner(failingEvaluator{})

	for i := 0; i < maxConsecutiveEvaluatorErrors-1; i++ {
		r.runTick(suite.ctx, suite.clk.Now())
	}

	suite.Equal(maxConsecutiveEvaluatorErrors-1, r.consecutiveErrors)

	ok := fixedSignalEvaluator{signal: types.Signal{Type: types.SignalHold, Price: decimal.NewFromInt(102), Symbol: "AAPL", Timestamp: suite.clk.Now()}}
	r.deps.Evaluator = ok
	r.runTick(suite.ctx, suite.clk.Now())

	suite.Equal(0, r.consecutiveErrors)
	suite.Equal(types.StatusInitializing, r.Snapshot().Status)
}

func (suite *RunnerTestSuite) TestStaleFlagReflectsDataHandle() {
	ev := fixedSignalEvaluator{signal: types.Signal{Type: types.SignalHold, Price: decimal.NewFromInt(102), Symbol: "AAPL", Timestamp: suite.clk.Now()}}
	r := suite.newRunner(ev)

	r.runTick(suite.ctx, suite.clk.Now())
	suite.False(r.Snapshot().Stale)

	suite.clk.Advance(5 * 24 * time.Hour)
	r.runTick(suite.ctx, suite.clk.Now())
	suite.True(r.Snapshot().Stale)
}

func (suite *RunnerTestSuite) TestFatalDataHandleErrorTransitionsToErrored() {
	ev := fixedSignalEvaluator{signal: types.Signal{Type: types.SignalHold, Price: decimal.NewFromInt(102), Symbol: "AAPL", Timestamp: suite.clk.Now()}}
	r := suite.newRunner(ev)

	tickCh := make(chan time.Time)
	suite.Require().NoError(r.Start(suite.ctx, tickCh))

	suite.dataMgr.PublishFatalForTest("fake", "AAPL", "1d", errors.Newf(errors.ErrCodeInvalidSymbol, "symbol rejected"))

	suite.Eventually(func() bool {
		return r.Snapshot().Status == types.StatusErrored
	}, time.Second, 10*time.Millisecond)
}

func (suite *RunnerTestSuite) TestStopWithLiquidateClosesOpenPosition() {
	ev := fixedSignalEvaluator{signal: types.Signal{Type: types.SignalHold, Price: decimal.NewFromInt(102), Symbol: "AAPL", Timestamp: suite.clk.Now()}}
	r := suite.newRunner(ev)

	order := &types.Order{
		ID: "o1", StrategyID: "s1", Symbol: "AAPL", Side: types.SideBuy, Type: types.OrderTypeMarket,
		Qty: decimal.NewFromInt(10), State: types.OrderWorking, SubmitTS: suite.clk.Now(),
	}
	fill := types.Fill{BrokerOrderID: "b-order", Sequence: 1, Qty: decimal.NewFromInt(10), Price: decimal.NewFromInt(100), Timestamp: suite.clk.Now()}

	_, err := suite.pf.ApplyFill(order, fill)
	suite.Require().NoError(err)

	sl, err := suite.pf.Snapshot("s1")
	suite.Require().NoError(err)
	suite.False(sl.Positions["AAPL"].IsFlat())

	snap, err := r.Stop(suite.ctx, StopOptions{Force: true, Liquidate: true})
	suite.Require().NoError(err)
	suite.Equal("s1", snap.StrategyID)

	orders := suite.gw.OpenOrders()
	suite.Require().Len(orders, 1)
	suite.Equal(types.SideSell, orders[0].Side)
	suite.True(orders[0].Qty.Equal(decimal.NewFromInt(10)))
}

func (suite *RunnerTestSuite) TestCannotStartTwice() {
	ev := fixedSignalEvaluator{signal: types.Signal{Type: types.SignalHold, Price: decimal.NewFromInt(102), Symbol: "AAPL", Timestamp: suite.clk.Now()}}
	r := suite.newRunner(ev)

	tickCh := make(chan time.Time)
	suite.Require().NoError(r.Start(suite.ctx, tickCh))
	suite.Error(r.Start(suite.ctx, tickCh))
}
