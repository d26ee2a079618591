// Package binance is a live BrokerAdapter over the Binance spot REST API.
// Grounded on
// internal/trading/provider/binance.go: the same BinanceClient interface
// wrapping *binance.Client behind small per-call service interfaces so
// tests substitute a fake without touching the network, the same
// side/order-type mapping switch, and the same
// errors.Wrap(ErrCodeOrderFailed, ...) style on every API call. Adapted
// from the TradingSystemProvider surface (PlaceOrder/GetAccountInfo/...)
// to gateway.BrokerAdapter.
package binance

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"

	"github.com/rxtech-lab/argo-trading/internal/types"
	"github.com/rxtech-lab/argo-trading/pkg/errors"
)

// QuoteAssets are the assets summed into AccountInfo.Cash/Equity, mirroring
// internal/trading/provider/binance.go's own USDT/BUSD/USD assumption for
// a spot account balance.
var QuoteAssets = []string{"USDT", "BUSD", "USD"}

// CreateOrderService is the subset of binance.CreateOrderService this
// adapter calls, extracted so tests can substitute a fake.
type CreateOrderService interface {
	Symbol(symbol string) CreateOrderService
	Side(side binance.SideType) CreateOrderService
	Type(orderType binance.OrderType) CreateOrderService
	Quantity(quantity string) CreateOrderService
	Price(price string) CreateOrderService
	TimeInForce(tif binance.TimeInForceType) CreateOrderService
	Do(ctx context.Context) (*binance.CreateOrderResponse, error)
}

// GetAccountService is the subset of binance.GetAccountService this
// adapter calls.
type GetAccountService interface {
	Do(ctx context.Context) (*binance.Account, error)
}

// ListOpenOrdersService is the subset of binance.ListOpenOrdersService
// this adapter calls.
type ListOpenOrdersService interface {
	Symbol(symbol string) ListOpenOrdersService
	Do(ctx context.Context) ([]*binance.Order, error)
}

// CancelOrderService is the subset of binance.CancelOrderService this
// adapter calls.
type CancelOrderService interface {
	Symbol(symbol string) CancelOrderService
	OrderID(orderID int64) CancelOrderService
	Do(ctx context.Context) (*binance.CancelOrderResponse, error)
}

// ListTradesService is the subset of binance.ListTradesService this
// adapter calls to poll for fills, since Binance's trade history is
// scoped per symbol rather than account-wide.
type ListTradesService interface {
	Symbol(symbol string) ListTradesService
	StartTime(startTime int64) ListTradesService
	Do(ctx context.Context) ([]*binance.TradeV3, error)
}

// Client abstracts the Binance client for testing.
type Client interface {
	NewCreateOrderService() CreateOrderService
	NewGetAccountService() GetAccountService
	NewListOpenOrdersService() ListOpenOrdersService
	NewCancelOrderService() CancelOrderService
	NewListTradesService() ListTradesService
}

type realClient struct{ c *binance.Client }

func (r *realClient) NewCreateOrderService() CreateOrderService {
	return &realCreateOrderService{s: r.c.NewCreateOrderService()}
}
func (r *realClient) NewGetAccountService() GetAccountService {
	return &realGetAccountService{s: r.c.NewGetAccountService()}
}
func (r *realClient) NewListOpenOrdersService() ListOpenOrdersService {
	return &realListOpenOrdersService{s: r.c.NewListOpenOrdersService()}
}
func (r *realClient) NewCancelOrderService() CancelOrderService {
	return &realCancelOrderService{s: r.c.NewCancelOrderService()}
}
func (r *realClient) NewListTradesService() ListTradesService {
	return &realListTradesService{s: r.c.NewListTradesService()}
}

type realCreateOrderService struct{ s *binance.CreateOrderService }

func (s *realCreateOrderService) Symbol(v string) CreateOrderService {
	s.s = s.s.Symbol(v)
	return s
}
func (s *realCreateOrderService) Side(v binance.SideType) CreateOrderService {
	s.s = s.s.Side(v)
	return s
}
func (s *realCreateOrderService) Type(v binance.OrderType) CreateOrderService {
	s.s = s.s.Type(v)
	return s
}
func (s *realCreateOrderService) Quantity(v string) CreateOrderService {
	s.s = s.s.Quantity(v)
	return s
}
func (s *realCreateOrderService) Price(v string) CreateOrderService {
	s.s = s.s.Price(v)
	return s
}
func (s *realCreateOrderService) TimeInForce(v binance.TimeInForceType) CreateOrderService {
	s.s = s.s.TimeInForce(v)
	return s
}
func (s *realCreateOrderService) Do(ctx context.Context) (*binance.CreateOrderResponse, error) {
	return s.s.Do(ctx)
}

type realGetAccountService struct{ s *binance.GetAccountService }

func (s *realGetAccountService) Do(ctx context.Context) (*binance.Account, error) { return s.s.Do(ctx) }

type realListOpenOrdersService struct{ s *binance.ListOpenOrdersService }

func (s *realListOpenOrdersService) Symbol(v string) ListOpenOrdersService {
	s.s = s.s.Symbol(v)
	return s
}
func (s *realListOpenOrdersService) Do(ctx context.Context) ([]*binance.Order, error) {
	return s.s.Do(ctx)
}

type realCancelOrderService struct{ s *binance.CancelOrderService }

func (s *realCancelOrderService) Symbol(v string) CancelOrderService {
	s.s = s.s.Symbol(v)
	return s
}
func (s *realCancelOrderService) OrderID(v int64) CancelOrderService {
	s.s = s.s.OrderID(v)
	return s
}
func (s *realCancelOrderService) Do(ctx context.Context) (*binance.CancelOrderResponse, error) {
	return s.s.Do(ctx)
}

type realListTradesService struct{ s *binance.ListTradesService }

func (s *realListTradesService) Symbol(v string) ListTradesService {
	s.s = s.s.Symbol(v)
	return s
}
func (s *realListTradesService) StartTime(v int64) ListTradesService {
	s.s = s.s.StartTime(v)
	return s
}
func (s *realListTradesService) Do(ctx context.Context) ([]*binance.TradeV3, error) {
	return s.s.Do(ctx)
}

// Broker is a live BrokerAdapter over the Binance spot REST API.
type Broker struct {
	client Client
	caps types.BrokerCapabilities

	mu sync.Mutex
	symbols map[string]struct{} // symbols this process has traded, for PollFills
}

// New creates a Broker using real credentials. If useTestnet is true it
// connects to Binance's testnet.
func New(apiKey, secretKey string, useTestnet bool) *Broker {
	if useTestnet {
		binance.UseTestnet = true
	}

	return newWithClient(&realClient{c: binance.NewClient(apiKey, secretKey)})
}

func newWithClient(client Client) *Broker {
	return &Broker{
		client: client,
		caps: types.BrokerCapabilities{
			FractionalShares: true,
			SupportedOrderTypes: []types.OrderType{types.OrderTypeMarket, types.OrderTypeLimit},
		},
		symbols: make(map[string]struct{}),
	}
}

func (b *Broker) Name() string { return "binance" }

func (b *Broker) Capabilities(ctx context.Context) (types.BrokerCapabilities, error) {
	return b.caps, nil
}

func (b *Broker) SubmitOrder(ctx context.Context, order types.Order) (string, error) {
	var side binance.SideType

	switch order.Side {
	case types.SideBuy:
		side = binance.SideTypeBuy
	case types.SideSell:
		side = binance.SideTypeSell
	default:
		return "", errors.Newf(errors.ErrCodeInvalidOrder, "unsupported order side %q", order.Side)
	}

	var orderType binance.OrderType

	switch order.Type {
	case types.OrderTypeMarket:
		orderType = binance.OrderTypeMarket
	case types.OrderTypeLimit:
		orderType = binance.OrderTypeLimit
	default:
		return "", errors.Newf(errors.ErrCodeUnsupportedOrder, "binance broker does not support %s orders", order.Type)
	}

	svc := b.client.NewCreateOrderService().
		Symbol(order.Symbol).
		Side(side).
		Type(orderType).
		Quantity(order.Qty.String())

	if order.Type == types.OrderTypeLimit && order.LimitPrice != nil {
		svc = svc.Price(order.LimitPrice.String()).TimeInForce(binance.TimeInForceTypeGTC)
	}

	resp, err := svc.Do(ctx)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeOrderFailed, "binance: create order", err)
	}

	b.mu.Lock()
	b.symbols[order.Symbol] = struct{}{}
	b.mu.Unlock()

	return strconv.FormatInt(resp.OrderID, 10), nil
}

// CancelOrder cancels an order. Binance's cancel endpoint is keyed by
// (symbol, orderID); since BrokerAdapter only carries the broker order
// id, this scans open orders across every symbol this process has
// traded to find a match, mirroring internal/trading/provider/binance.go's
// own CancelOrder-via-GetOpenOrders workaround.
func (b *Broker) CancelOrder(ctx context.Context, brokerOrderID string) error {
	orderID, err := strconv.ParseInt(brokerOrderID, 10, 64)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidOrder, err, "binance: invalid broker order id %q", brokerOrderID)
	}

	b.mu.Lock()
	symbols := make([]string, 0, len(b.symbols))
	for s := range b.symbols {
		symbols = append(symbols, s)
	}
	b.mu.Unlock()

	for _, symbol := range symbols {
		open, err := b.client.NewListOpenOrdersService().Symbol(symbol).Do(ctx)
		if err != nil {
			continue
		}

		for _, o := range open {
			if o.OrderID == orderID {
				_, err := b.client.NewCancelOrderService().Symbol(symbol).OrderID(orderID).Do(ctx)
				if err != nil {
					return errors.Wrap(errors.ErrCodeOrderFailed, "binance: cancel order", err)
				}

				return nil
			}
		}
	}

	return errors.Newf(errors.ErrCodeInvalidOrder, "binance: order %s not found among open orders", brokerOrderID)
}

// PollFills lists trades for every symbol this process has traded since
// sinceCursor (a Unix-millisecond timestamp, or empty for "since the
// epoch"), returning the fills and the new cursor. This is the
// reconciliation backstop; Fills below has no push transport wired, so
// the Gateway relies on this exclusively for this adapter.
func (b *Broker) PollFills(ctx context.Context, sinceCursor string) ([]types.Fill, string, error) {
	var startMillis int64

	if sinceCursor != "" {
		parsed, err := strconv.ParseInt(sinceCursor, 10, 64)
		if err != nil {
			return nil, sinceCursor, errors.Wrapf(errors.ErrCodeInvalidParameter, err, "binance: invalid cursor %q", sinceCursor)
		}

		startMillis = parsed
	}

	b.mu.Lock()
	symbols := make([]string, 0, len(b.symbols))
	for s := range b.symbols {
		symbols = append(symbols, s)
	}
	b.mu.Unlock()

	var fills []types.Fill

	newCursor := startMillis

	for _, symbol := range symbols {
		trades, err := b.client.NewListTradesService().Symbol(symbol).StartTime(startMillis).Do(ctx)
		if err != nil {
			return nil, sinceCursor, errors.Wrap(errors.ErrCodeUpstreamDisconnected, "binance: list trades", err)
		}

		for _, t := range trades {
			price, _ := decimal.NewFromString(t.Price)
			qty, _ := decimal.NewFromString(t.Quantity)
			fee, _ := decimal.NewFromString(t.Commission)

			fills = append(fills, types.Fill{
				BrokerOrderID: strconv.FormatInt(t.OrderID, 10),
				Sequence: t.ID,
				Qty: qty,
				Price: price,
				Fee: fee,
				Timestamp: time.UnixMilli(t.Time),
			})

			if t.Time > newCursor {
				newCursor = t.Time
			}
		}
	}

	return fills, strconv.FormatInt(newCursor, 10), nil
}

// Fills has no push transport wired for this adapter: a real deployment
// would drive this from Binance's user data websocket stream, but that
// requires a listen-key lifecycle beyond this broker's scope. A nil
// channel tells the Gateway to rely on PollFills exclusively.
func (b *Broker) Fills(ctx context.Context) (<-chan types.Fill, error) {
	return nil, nil
}

func (b *Broker) AccountInfo(ctx context.Context) (types.AccountInfo, error) {
	account, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return types.AccountInfo{}, errors.Wrap(errors.ErrCodeOrderFailed, "binance: get account", err)
	}

	cash := decimal.Zero

	for _, balance := range account.Balances {
		if !isQuoteAsset(balance.Asset) {
			continue
		}

		free, _ := decimal.NewFromString(balance.Free)
		locked, _ := decimal.NewFromString(balance.Locked)
		cash = cash.Add(free).Add(locked)
	}

	// Spot accounts have no margin/leverage, so equity equals cash balance
	// in the quote currency (internal/trading/provider/binance.go's
	// GetAccountInfo makes the same assumption).
	return types.AccountInfo{Cash: cash, Equity: cash}, nil
}

func isQuoteAsset(asset string) bool {
	for _, q := range QuoteAssets {
		if asset == q {
			return true
		}
	}

	return false
}
