package portfolio

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rxtech-lab/argo-trading/internal/clock"
	"github.com/rxtech-lab/argo-trading/internal/fatal"
	"github.com/rxtech-lab/argo-trading/internal/types"
	"github.com/rxtech-lab/argo-trading/pkg/errors"
	"github.com/rxtech-lab/argo-trading/pkg/money"
)

// ledgerEpsilon absorbs decimal rounding noise in the ledger identity
// check; anything beyond it means the bookkeeping itself has drifted.
var ledgerEpsilon = decimal.NewFromFloat(0.000001)

// defaultEquityPct is the sizing fallback for SizingNone: 10% of equity.
var defaultEquityPct = decimal.NewFromFloat(0.10)

// Rejection is a sizing/gate outcome that is not an error: it is a normal,
// loggable event surfaced to the Strategy Runner and Statistics Manager
// (gates "reject as an observability event, not a crash").
type Rejection struct {
	Code errors.ErrorCode
	Message string
}

// Manager is the Portfolio Manager: single writer of every
// strategy's sub-ledger, resolver of sizing intents into concrete order
// quantities, and enforcer of the ordered broker-capability gates.
type Manager struct {
	book *ledgerBook
	clk clock.Clock
	fatal *fatal.Reporter
}

// NewManager creates an empty Portfolio Manager. fatalReporter receives
// any InvariantViolation detected in a sub-ledger; a nil reporter is
// replaced with one nobody reads, for callers (mostly tests) that don't
// care to observe it.
func NewManager(clk clock.Clock, fatalReporter *fatal.Reporter) *Manager {
	if fatalReporter == nil {
		fatalReporter = fatal.NewReporter()
	}

	return &Manager{book: newLedgerBook(), clk: clk, fatal: fatalReporter}
}

// OpenStrategy seeds a fresh sub-ledger with the strategy's allocated cash.
func (m *Manager) OpenStrategy(strategyID string, initialCash decimal.Decimal) {
	m.book.open(strategyID, initialCash)
}

// Snapshot returns a strategy's sub-ledger, safe for concurrent readers.
func (m *Manager) Snapshot(strategyID string) (types.SubLedger, error) {
	return m.book.Snapshot(strategyID)
}

// Aggregate returns the sum of every sub-ledger's cash and position value.
func (m *Manager) Aggregate() (cash decimal.Decimal, positionValue decimal.Decimal) {
	return m.book.Aggregate()
}

// Equity returns cash + Σ position market value for a strategy.
func (m *Manager) Equity(strategyID string) (decimal.Decimal, error) {
	sl, err := m.book.get(strategyID)
	if err != nil {
		return decimal.Zero, err
	}

	equity := sl.Cash
	for _, p := range sl.Positions {
		equity = equity.Add(p.MarketValue)
	}

	return equity, nil
}

// MarkPrice updates a symbol's position market value to qty*price, keeping
// the ledger consistent with the latest observed price (ledger
// invariant: cash + Σ market_value == initial_cash + realized + unrealized).
func (m *Manager) MarkPrice(strategyID, symbol string, price decimal.Decimal) error {
	sl, err := m.book.get(strategyID)
	if err != nil {
		return err
	}

	m.book.mu.Lock()
	defer m.book.mu.Unlock()

	pos, ok := sl.Positions[symbol]
	if !ok {
		return nil
	}

	pos.MarketValue = pos.Quantity.Mul(price)
	sl.Positions[symbol] = pos

	if err := checkLedgerInvariant(sl); err != nil {
		m.fatal.Report(err)
		return err
	}

	return nil
}

var orderTypeForSignal = map[types.SignalType]types.OrderType{
	types.SignalBuy: types.OrderTypeMarket,
	types.SignalSell: types.OrderTypeMarket,
	types.SignalClose: types.OrderTypeMarket,
	types.SignalLimitBuy: types.OrderTypeLimit,
	types.SignalLimitSell: types.OrderTypeLimit,
	types.SignalStopBuy: types.OrderTypeStop,
	types.SignalStopSell: types.OrderTypeStop,
	types.SignalStopLimitBuy: types.OrderTypeStopLimit,
	types.SignalStopLimitSell: types.OrderTypeStopLimit,
}

// Propose resolves signal's sizing intent into a concrete Order against
// symbol, running the ordered gates from. A nil order with a
// non-nil Rejection means "no order, log and move on"; a non-nil error
// means the intent itself was malformed (a coding/config bug, not a
// runtime rejection).
func (m *Manager) Propose(strategyID, symbol string, signal types.Signal, caps types.BrokerCapabilities) (*types.Order, *Rejection, error) {
	if signal.Type == types.SignalHold {
		return nil, nil, nil
	}

	sl, err := m.book.get(strategyID)
	if err != nil {
		return nil, nil, err
	}

	m.book.mu.RLock()
	currentQty := sl.Positions[symbol].Quantity
	equity := sl.Cash
	cash := sl.Cash

	for _, p := range sl.Positions {
		equity = equity.Add(p.MarketValue)
	}

	m.book.mu.RUnlock()

	side, qty, err := resolveSizing(signal, currentQty, equity, caps)
	if err != nil {
		return nil, nil, err
	}

	if !money.IsPositive(qty) {
		return nil, nil, nil
	}

	orderType, ok := orderTypeForSignal[signal.Type]
	if !ok {
		return nil, nil, errors.Newf(errors.ErrCodeInvalidSignal, "no order type mapping for signal %s", signal.Type)
	}

	if rej := gateOrderType(orderType, caps); rej != nil {
		return nil, rej, nil
	}

	notional := qty.Mul(signal.Price)

	if rej := gateMinNotional(notional, caps); rej != nil {
		return nil, rej, nil
	}

	if rej := gateSufficiency(side, qty, notional, currentQty, cash, caps); rej != nil {
		return nil, rej, nil
	}

	if rej := gateMaxPositionSize(side, qty, currentQty, caps); rej != nil {
		return nil, rej, nil
	}

	if rej := gateMinLot(qty, caps); rej != nil {
		return nil, rej, nil
	}

	order := &types.Order{
		ID: uuid.New().String(),
		StrategyID: strategyID,
		Symbol: symbol,
		Side: side,
		Type: orderType,
		Qty: qty,
		LimitPrice: signal.LimitPrice,
		StopPrice: signal.StopPrice,
		TimeInForce: signal.TimeInForce,
		State: types.OrderPending,
		FilledQty: decimal.Zero,
		AvgFillPrice: decimal.Zero,
		SubmitTS: m.clk.Now(),
	}

	if err := order.Validate(); err != nil {
		return nil, nil, err
	}

	return order, nil, nil
}

// resolveSizing implements the intent -> quantity table.
// legacy_fraction is treated as equity_pct (see DESIGN.md).
func resolveSizing(signal types.Signal, currentQty decimal.Decimal, equity decimal.Decimal, caps types.BrokerCapabilities) (types.Side, decimal.Decimal, error) {
	if signal.Type == types.SignalClose {
		return deltaToSideQty(decimal.Zero, currentQty, caps)
	}

	kind := signal.Sizing.Kind
	value := signal.Sizing.Value

	if kind == types.SizingNone {
		kind = types.SizingEquityPct
		value = defaultEquityPct
	}

	if kind == types.SizingLegacyFraction {
		kind = types.SizingEquityPct
	}

	price := signal.Price
	if !money.IsPositive(price) {
		return "", decimal.Zero, errors.Newf(errors.ErrCodeInvalidSizingIntent, "cannot size against non-positive price %s", price)
	}

	switch kind {
	case types.SizingUnits:
		return directionalQty(signal, value, caps)

	case types.SizingNotional:
		qty := value.Div(price)
		return directionalQty(signal, qty, caps)

	case types.SizingEquityPct:
		qty := value.Mul(equity).Div(price)
		return directionalQty(signal, qty, caps)

	case types.SizingTargetUnits:
		return deltaToSideQty(value, currentQty, caps)

	case types.SizingTargetNotional:
		target := value.Div(price)
		return deltaToSideQty(target, currentQty, caps)

	case types.SizingTargetEquity:
		targetNotional := value.Mul(equity)
		target := targetNotional.Div(price)
		return deltaToSideQty(target, currentQty, caps)

	default:
		return "", decimal.Zero, errors.Newf(errors.ErrCodeInvalidSizingIntent, "unknown sizing kind %q", kind)
	}
}

// directionalQty rounds a magnitude to the broker's step size / lot
// granularity and pairs it with the signal's directional side.
func directionalQty(signal types.Signal, magnitude decimal.Decimal, caps types.BrokerCapabilities) (types.Side, decimal.Decimal, error) {
	qty := roundQty(magnitude, caps)

	switch {
	case signal.IsBuySide():
		return types.SideBuy, qty, nil
	case signal.IsSellSide():
		return types.SideSell, qty, nil
	default:
		return "", decimal.Zero, errors.Newf(errors.ErrCodeInvalidSignal, "signal %s has no directional side for absolute sizing", signal.Type)
	}
}

// deltaToSideQty converts a target position quantity into a signed order:
// side is the direction of travel from currentQty to target, and the
// magnitude is the rounded absolute delta.
func deltaToSideQty(target decimal.Decimal, currentQty decimal.Decimal, caps types.BrokerCapabilities) (types.Side, decimal.Decimal, error) {
	delta := target.Sub(currentQty)

	side := types.SideBuy
	if delta.Sign() < 0 {
		side = types.SideSell
	}

	qty := roundQty(delta.Abs(), caps)

	return side, qty, nil
}

func roundQty(qty decimal.Decimal, caps types.BrokerCapabilities) decimal.Decimal {
	qty = money.RoundToStep(qty, caps.StepSize)
	if !caps.FractionalShares {
		qty = money.FloorToInteger(qty)
	}

	return qty
}

func gateOrderType(ot types.OrderType, caps types.BrokerCapabilities) *Rejection {
	if !caps.Supports(ot) {
		return &Rejection{Code: errors.ErrCodeUnsupportedOrder, Message: "order type " + string(ot) + " not supported by broker"}
	}

	return nil
}

func gateMinNotional(notional decimal.Decimal, caps types.BrokerCapabilities) *Rejection {
	if notional.LessThan(caps.MinNotional) {
		return &Rejection{Code: errors.ErrCodeBelowMinNotional, Message: "order notional " + notional.String() + " below broker minimum " + caps.MinNotional.String()}
	}

	return nil
}

// gateSufficiency checks the strategy's own sub-ledger can support the
// order: sufficient cash for buys, sufficient held shares for sells unless
// short selling is allowed by the broker.
func gateSufficiency(side types.Side, qty decimal.Decimal, notional decimal.Decimal, currentQty decimal.Decimal, cash decimal.Decimal, caps types.BrokerCapabilities) *Rejection {
	switch side {
	case types.SideBuy:
		if notional.GreaterThan(cash) {
			return &Rejection{Code: errors.ErrCodeInsufficientCash, Message: "insufficient cash: need " + notional.String() + ", have " + cash.String()}
		}

	case types.SideSell:
		resulting := currentQty.Sub(qty)
		if resulting.IsNegative() && !caps.ShortSellingAllowed {
			return &Rejection{Code: errors.ErrCodeShortingDisabled, Message: "sell would open a short position, but broker disallows short selling"}
		}
	}

	return nil
}

func gateMaxPositionSize(side types.Side, qty decimal.Decimal, currentQty decimal.Decimal, caps types.BrokerCapabilities) *Rejection {
	if caps.MaxPositionSize == nil {
		return nil
	}

	resulting := currentQty
	if side == types.SideBuy {
		resulting = resulting.Add(qty)
	} else {
		resulting = resulting.Sub(qty)
	}

	if resulting.Abs().GreaterThan(*caps.MaxPositionSize) {
		return &Rejection{Code: errors.ErrCodeMaxPositionSize, Message: "resulting position " + resulting.String() + " exceeds broker maximum " + caps.MaxPositionSize.String()}
	}

	return nil
}

func gateMinLot(qty decimal.Decimal, caps types.BrokerCapabilities) *Rejection {
	if qty.LessThan(caps.MinLotSize) {
		return &Rejection{Code: errors.ErrCodeBelowMinLot, Message: "order quantity " + qty.String() + " below broker minimum lot " + caps.MinLotSize.String()}
	}

	return nil
}

// ApplyFill atomically updates a strategy's sub-ledger for one fill (spec
// §4.5 invariant: at-most-once via Fill.Key idempotence, checked by the
// caller before invoking this). Cash moves by qty*price plus fee; realized
// P&L is booked on the reducing portion of a fill using average cost, and
// average cost is recomputed on the increasing portion. Returns the realized
// P&L delta booked by this fill (zero for a purely increasing fill), for the
// caller to feed into the Statistics Manager.
func (m *Manager) ApplyFill(order *types.Order, fill types.Fill) (decimal.Decimal, error) {
	sl, err := m.book.get(order.StrategyID)
	if err != nil {
		return decimal.Zero, err
	}

	m.book.mu.Lock()
	defer m.book.mu.Unlock()

	if err := checkFillOrdering(sl, fill); err != nil {
		m.fatal.Report(err)
		return decimal.Zero, err
	}

	signedFillQty := fill.Qty
	if order.Side == types.SideSell {
		signedFillQty = signedFillQty.Neg()
	}

	pos := sl.Positions[order.Symbol]

	cost := fill.Qty.Mul(fill.Price).Add(fill.Fee)
	if order.Side == types.SideBuy {
		sl.Cash = sl.Cash.Sub(cost)
	} else {
		sl.Cash = sl.Cash.Add(fill.Qty.Mul(fill.Price)).Sub(fill.Fee)
	}

	sameDirection := pos.Quantity.Sign() == 0 || sameSign(pos.Quantity, signedFillQty)
	realizedDelta := decimal.Zero

	switch {
	case sameDirection:
		// Increasing (or opening) fill: recompute weighted average cost.
		totalCost := pos.AverageCost.Mul(pos.Quantity.Abs()).Add(fill.Price.Mul(fill.Qty))
		newQty := pos.Quantity.Add(signedFillQty)

		if !newQty.IsZero() {
			pos.AverageCost = totalCost.Div(newQty.Abs())
		}

		pos.Quantity = newQty

	default:
		// Reducing (or flipping) fill: realize P&L on the reduced portion at
		// average cost, then handle any excess that flips the position.
		reduceQty := decimal.Min(fill.Qty, pos.Quantity.Abs())

		var pnlPerUnit decimal.Decimal
		if pos.Quantity.Sign() > 0 {
			pnlPerUnit = fill.Price.Sub(pos.AverageCost)
		} else {
			pnlPerUnit = pos.AverageCost.Sub(fill.Price)
		}

		realizedDelta = pnlPerUnit.Mul(reduceQty)
		sl.RealizedPnL = sl.RealizedPnL.Add(realizedDelta)

		remaining := fill.Qty.Sub(reduceQty)
		newQty := pos.Quantity.Add(signedFillQty)

		if remaining.Sign() > 0 {
			// The fill exceeded the held size and flips the position; the
			// excess opens a fresh position at this fill's price.
			pos.AverageCost = fill.Price
		}

		pos.Quantity = newQty
	}

	if pos.Quantity.IsZero() {
		pos.AverageCost = decimal.Zero
		pos.MarketValue = decimal.Zero
	} else {
		pos.MarketValue = pos.Quantity.Mul(fill.Price)
	}

	sl.Positions[order.Symbol] = pos
	sl.Fills = append(sl.Fills, types.AppliedFill{
		Fill: fill,
		StrategyID: order.StrategyID,
		Symbol: order.Symbol,
		Side: order.Side,
	})

	if err := checkLedgerInvariant(sl); err != nil {
		m.fatal.Report(err)
		return realizedDelta, err
	}

	return realizedDelta, nil
}

// checkFillOrdering rejects a fill this sub-ledger has already applied
// (same broker order and sequence) or one that arrives out of sequence
// behind a fill already recorded for the same order.
func checkFillOrdering(sl *types.SubLedger, fill types.Fill) error {
	for _, af := range sl.Fills {
		if af.Fill.BrokerOrderID != fill.BrokerOrderID {
			continue
		}

		switch {
		case af.Fill.Sequence == fill.Sequence:
			return errors.Newf(errors.ErrCodeDuplicateFill, "duplicate fill %s/%d already applied to strategy %s", fill.BrokerOrderID, fill.Sequence, sl.StrategyID)
		case af.Fill.Sequence > fill.Sequence:
			return errors.Newf(errors.ErrCodeOrderingViolation, "fill %s/%d arrived after already-applied fill %s/%d for strategy %s", fill.BrokerOrderID, fill.Sequence, af.Fill.BrokerOrderID, af.Fill.Sequence, sl.StrategyID)
		}
	}

	return nil
}

// checkLedgerInvariant verifies cash + Σ market_value == initial_cash +
// realized + Σ unrealized, the identity ApplyFill and MarkPrice must
// jointly preserve; a violation means the ledger arithmetic itself has a
// bug, not a rejected order.
func checkLedgerInvariant(sl *types.SubLedger) error {
	equity := sl.Cash
	unrealized := decimal.Zero

	for _, p := range sl.Positions {
		equity = equity.Add(p.MarketValue)
		unrealized = unrealized.Add(p.MarketValue.Sub(p.Quantity.Mul(p.AverageCost)))
	}

	expected := sl.InitialCash.Add(sl.RealizedPnL).Add(unrealized)

	if equity.Sub(expected).Abs().GreaterThan(ledgerEpsilon) {
		return errors.Newf(errors.ErrCodeLedgerInvariant, "ledger invariant violated for strategy %s: cash+positions %s != initial+realized+unrealized %s", sl.StrategyID, equity, expected)
	}

	return nil
}

// UnrealizedPnL sums a strategy's open positions' unrealized P&L: each
// position's market value against its quantity valued at average cost.
func (m *Manager) UnrealizedPnL(strategyID string) (decimal.Decimal, error) {
	sl, err := m.book.get(strategyID)
	if err != nil {
		return decimal.Zero, err
	}

	m.book.mu.RLock()
	defer m.book.mu.RUnlock()

	total := decimal.Zero
	for _, p := range sl.Positions {
		total = total.Add(p.MarketValue.Sub(p.Quantity.Mul(p.AverageCost)))
	}

	return total, nil
}

func sameSign(a, b decimal.Decimal) bool {
	return a.Sign() == b.Sign() || a.IsZero() || b.IsZero()
}
