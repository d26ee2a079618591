package gateway

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rxtech-lab/argo-trading/internal/clock"
	"github.com/rxtech-lab/argo-trading/internal/logging"
	"github.com/rxtech-lab/argo-trading/internal/types"
	"github.com/rxtech-lab/argo-trading/pkg/errors"
)

// SubmissionTimeout bounds how long the gateway waits for a broker to
// acknowledge an order before marking it ERRORED for reconciliation
// (failure semantics).
const SubmissionTimeout = 10 * time.Second

// PollInterval is the reconciliation backstop cadence when push fill
// delivery is silent (Open Question: push is authoritative,
// polling only fills gaps).
const PollInterval = 1 * time.Second

// FillHandler is invoked once per newly-admitted fill, after the fill has
// been applied to the order table but before ApplyFill's caller-supplied
// side effects run. Mirrors the engine.go LiveTradingCallbacks
// convention — a callback error is logged, not fatal.
type FillHandler func(order *types.Order, fill types.Fill) error

// Gateway is the Order Gateway.
type Gateway struct {
	broker BrokerAdapter
	table *orderTable
	clk clock.Clock
	log *logging.Logger
	onFill FillHandler
	cursor string
}

// NewGateway wraps a BrokerAdapter with an order table and fill dedup.
func NewGateway(broker BrokerAdapter, clk clock.Clock, log *logging.Logger, onFill FillHandler) *Gateway {
	return &Gateway{
		broker: broker,
		table: newOrderTable(),
		clk: clk,
		log: log.Component("order_gateway"),
		onFill: onFill,
	}
}

// Submit registers order in the table and submits it to the broker under
// SubmissionTimeout. A timeout leaves the order ERRORED for the next
// reconciliation pass rather than assuming failure, since the order may
// or may not have reached the broker.
func (g *Gateway) Submit(ctx context.Context, order *types.Order) error {
	if order.State == "" {
		order.State = types.OrderPending
	}

	if err := order.Validate(); err != nil {
		return err
	}

	g.table.put(order)

	submitCtx, cancel := context.WithTimeout(ctx, SubmissionTimeout)
	defer cancel()

	brokerID, err := g.broker.SubmitOrder(submitCtx, *order)
	if err != nil {
		if submitCtx.Err() != nil {
			order.State = types.OrderErrored
			order.RejectReason = "submission timed out, pending reconciliation"

			g.log.Warn("order submission timed out", zap.String("order_id", order.ID))

			return nil
		}

		order.State = types.OrderRejected
		order.RejectReason = err.Error()

		return errors.Wrapf(errors.ErrCodeOrderFailed, err, "order %s rejected by broker", order.ID)
	}

	order.BrokerOrderID = brokerID
	order.State = types.OrderWorking
	g.table.linkBrokerID(order.ID, brokerID)

	return nil
}

// Cancel requests cancellation of a working order.
func (g *Gateway) Cancel(ctx context.Context, localID string) error {
	order, err := g.table.get(localID)
	if err != nil {
		return err
	}

	if order.State.IsTerminal() {
		return nil
	}

	if order.BrokerOrderID == "" {
		return errors.Newf(errors.ErrCodeOrderFailed, "order %s has no broker id yet, cannot cancel", localID)
	}

	if err := g.broker.CancelOrder(ctx, order.BrokerOrderID); err != nil {
		return errors.Wrapf(errors.ErrCodeOrderFailed, err, "cancel order %s failed", localID)
	}

	return nil
}

// Order returns a snapshot's order by local id.
func (g *Gateway) Order(localID string) (*types.Order, error) {
	return g.table.get(localID)
}

// OpenOrders returns every order not yet in a terminal state.
func (g *Gateway) OpenOrders() []*types.Order {
	return g.table.open()
}

// Run drives push fill consumption and the polling reconciliation
// backstop until ctx is cancelled.
func (g *Gateway) Run(ctx context.Context) error {
	fillCh, err := g.broker.Fills(ctx)
	if err != nil {
		return errors.Wrap(errors.ErrCodeOrderFailed, "subscribing to broker fills failed", err)
	}

	ticker := g.clk.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case fill, ok := <-fillCh:
			if !ok {
				fillCh = nil
				continue
			}

			g.ingest(fill)

		case <-ticker.C():
			g.reconcile(ctx)
		}
	}
}

// ingest applies a fill exactly once, keyed by (broker_id, sequence).
func (g *Gateway) ingest(fill types.Fill) {
	if !g.table.admitFill(fill) {
		return
	}

	order, err := g.table.getByBrokerID(fill.BrokerOrderID)
	if err != nil {
		g.log.Warn("fill for unknown order", zap.String("broker_order_id", fill.BrokerOrderID))
		return
	}

	applyFillToOrder(order, fill)

	if g.onFill == nil {
		return
	}

	if err := g.onFill(order, fill); err != nil {
		g.log.Error("fill handler failed", zap.String("order_id", order.ID), zap.Error(err))
	}
}

// reconcile polls the broker for fills since the last cursor, applying
// any the push channel missed. Polling is the backstop, not the primary
// delivery path.
func (g *Gateway) reconcile(ctx context.Context) {
	fills, cursor, err := g.broker.PollFills(ctx, g.cursor)
	if err != nil {
		g.log.Warn("poll fills failed", zap.Error(err))
		return
	}

	g.cursor = cursor

	for _, fill := range fills {
		g.ingest(fill)
	}
}

// applyFillToOrder folds a fill into an order's fill-quantity/avg-price
// state and advances its lifecycle state (invariant: fill
// quantity/avg-price consistency).
func applyFillToOrder(order *types.Order, fill types.Fill) {
	totalCost := order.AvgFillPrice.Mul(order.FilledQty).Add(fill.Price.Mul(fill.Qty))
	order.FilledQty = order.FilledQty.Add(fill.Qty)

	if !order.FilledQty.IsZero() {
		order.AvgFillPrice = totalCost.Div(order.FilledQty)
	}

	switch {
	case order.FilledQty.GreaterThanOrEqual(order.Qty):
		order.State = types.OrderFilled

		now := fill.Timestamp
		order.TerminalTS = &now

	default:
		order.State = types.OrderPartial
	}
}
