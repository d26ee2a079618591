// Package paper is a simulated BrokerAdapter for paper trading: it fills
// orders immediately against a caller-fed last-trade price, applies a
// flat commission, and tracks cash (not positions) the same way
// internal/trading/provider/binance.go tracks account state, but entirely
// in memory. Grounded on that file's shape (PlaceOrder/GetPositions/
// GetAccountInfo/GetOpenOrders surface) adapted to the
// gateway.BrokerAdapter interface.
package paper

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/rxtech-lab/argo-trading/internal/clock"
	"github.com/rxtech-lab/argo-trading/internal/types"
	"github.com/rxtech-lab/argo-trading/pkg/errors"
)

// CommissionRate is the flat taker fee applied to every simulated fill.
var CommissionRate = decimal.NewFromFloat(0.001)

// Broker is an in-memory simulated BrokerAdapter. Orders fill immediately
// at LastPrice for the order's symbol; callers feed prices via SetPrice
// as bars arrive.
type Broker struct {
	mu sync.Mutex
	caps types.BrokerCapabilities
	cash decimal.Decimal
	prices map[string]decimal.Decimal
	orders map[string]*types.Order // brokerOrderID -> order snapshot
	nextID atomic.Int64
	nextSeq atomic.Int64
	fillCh chan types.Fill
	clk clock.Clock
}

// New creates a paper Broker seeded with startingCash and the given
// static capabilities.
func New(clk clock.Clock, startingCash decimal.Decimal, caps types.BrokerCapabilities) *Broker {
	return &Broker{
		caps: caps,
		cash: startingCash,
		prices: make(map[string]decimal.Decimal),
		orders: make(map[string]*types.Order),
		fillCh: make(chan types.Fill, 64),
		clk: clk,
	}
}

// SetPrice updates the last-trade price used to fill new orders; callers
// call this once per bar close.
func (b *Broker) SetPrice(symbol string, price decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.prices[symbol] = price
}

func (b *Broker) Name() string { return "paper" }

func (b *Broker) Capabilities(ctx context.Context) (types.BrokerCapabilities, error) {
	return b.caps, nil
}

// SubmitOrder simulates an immediate fill at the order's symbol's last
// known price. Orders for a symbol with no known price are rejected, as
// are order types this broker doesn't support: the supported-order-types
// gate happens earlier in the Portfolio Manager, but a well-behaved
// adapter still checks its own contract.
func (b *Broker) SubmitOrder(ctx context.Context, order types.Order) (string, error) {
	if !b.caps.Supports(order.Type) {
		return "", errors.Newf(errors.ErrCodeUnsupportedOrder, "paper broker does not support %s orders", order.Type)
	}

	b.mu.Lock()
	price, ok := b.prices[order.Symbol]
	if !ok {
		b.mu.Unlock()
		return "", errors.Newf(errors.ErrCodeInvalidOrder, "no known price for %s", order.Symbol)
	}

	fillPrice := price
	if order.Type == types.OrderTypeLimit && order.LimitPrice != nil {
		fillPrice = *order.LimitPrice
	}

	notional := order.Qty.Mul(fillPrice)
	fee := notional.Mul(CommissionRate)

	if order.Side == types.SideBuy && notional.Add(fee).GreaterThan(b.cash) {
		b.mu.Unlock()
		return "", errors.Newf(errors.ErrCodeInsufficientCash, "paper broker: insufficient cash for %s", order.ID)
	}

	brokerID := "paper-" + strconv.FormatInt(b.nextID.Add(1), 10)

	snapshot := order
	snapshot.BrokerOrderID = brokerID
	b.orders[brokerID] = &snapshot

	if order.Side == types.SideBuy {
		b.cash = b.cash.Sub(notional).Sub(fee)
	} else {
		b.cash = b.cash.Add(notional).Sub(fee)
	}
	b.mu.Unlock()

	fill := types.Fill{
		BrokerOrderID: brokerID,
		Sequence: b.nextSeq.Add(1),
		Qty: order.Qty,
		Price: fillPrice,
		Fee: fee,
		Timestamp: b.clk.Now(),
	}

	select {
	case b.fillCh <- fill:
	case <-ctx.Done():
		return brokerID, ctx.Err()
	}

	return brokerID, nil
}

// CancelOrder is a no-op: paper orders fill synchronously in SubmitOrder,
// so by the time a cancel request could arrive there is nothing left
// open.
func (b *Broker) CancelOrder(ctx context.Context, brokerOrderID string) error {
	return nil
}

// PollFills always returns empty: this broker only delivers fills over
// the push channel, matching the pinned Open Question decision that push
// is authoritative and polling is a reconciliation backstop for brokers
// that need it.
func (b *Broker) PollFills(ctx context.Context, sinceCursor string) ([]types.Fill, string, error) {
	return nil, sinceCursor, nil
}

func (b *Broker) Fills(ctx context.Context) (<-chan types.Fill, error) {
	return b.fillCh, nil
}

func (b *Broker) AccountInfo(ctx context.Context) (types.AccountInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return types.AccountInfo{Cash: b.cash, Equity: b.cash}, nil
}
