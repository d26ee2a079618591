package binance

import (
	"context"
	"testing"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/rxtech-lab/argo-trading/internal/types"
	"github.com/rxtech-lab/argo-trading/pkg/errors"
)

type fakeCreateOrderService struct {
	symbol, side, orderType, qty, price string
	tif binance.TimeInForceType
	resp *binance.CreateOrderResponse
	err error
}

func (s *fakeCreateOrderService) Symbol(v string) CreateOrderService { s.symbol = v; return s }
func (s *fakeCreateOrderService) Side(v binance.SideType) CreateOrderService { s.side = string(v); return s }
func (s *fakeCreateOrderService) Type(v binance.OrderType) CreateOrderService { s.orderType = string(v); return s }
func (s *fakeCreateOrderService) Quantity(v string) CreateOrderService { s.qty = v; return s }
func (s *fakeCreateOrderService) Price(v string) CreateOrderService { s.price = v; return s }
func (s *fakeCreateOrderService) TimeInForce(v binance.TimeInForceType) CreateOrderService {
	s.tif = v
	return s
}
func (s *fakeCreateOrderService) Do(ctx context.Context) (*binance.CreateOrderResponse, error) {
	return s.resp, s.err
}

type fakeGetAccountService struct {
	account *binance.Account
	err error
}

func (s *fakeGetAccountService) Do(ctx context.Context) (*binance.Account, error) {
	return s.account, s.err
}

type fakeListOpenOrdersService struct {
	orders map[string][]*binance.Order
	symbol string
}

func (s *fakeListOpenOrdersService) Symbol(v string) ListOpenOrdersService { s.symbol = v; return s }
func (s *fakeListOpenOrdersService) Do(ctx context.Context) ([]*binance.Order, error) {
	return s.orders[s.symbol], nil
}

type fakeCancelOrderService struct {
	symbol string
	orderID int64
	canceled *int64
}

func (s *fakeCancelOrderService) Symbol(v string) CancelOrderService { s.symbol = v; return s }
func (s *fakeCancelOrderService) OrderID(v int64) CancelOrderService { s.orderID = v; return s }
func (s *fakeCancelOrderService) Do(ctx context.Context) (*binance.CancelOrderResponse, error) {
	*s.canceled = s.orderID
	return &binance.CancelOrderResponse{}, nil
}

type fakeListTradesService struct {
	symbol string
	trades map[string][]*binance.TradeV3
}

func (s *fakeListTradesService) Symbol(v string) ListTradesService { s.symbol = v; return s }
func (s *fakeListTradesService) StartTime(v int64) ListTradesService { return s }
func (s *fakeListTradesService) Do(ctx context.Context) ([]*binance.TradeV3, error) {
	return s.trades[s.symbol], nil
}

type fakeClient struct {
	createOrder *fakeCreateOrderService
	account *fakeGetAccountService
	openOrders *fakeListOpenOrdersService
	cancelOrder *fakeCancelOrderService
	trades *fakeListTradesService
}

func (c *fakeClient) NewCreateOrderService() CreateOrderService { return c.createOrder }
func (c *fakeClient) NewGetAccountService() GetAccountService { return c.account }
func (c *fakeClient) NewListOpenOrdersService() ListOpenOrdersService { return c.openOrders }
func (c *fakeClient) NewCancelOrderService() CancelOrderService { return c.cancelOrder }
func (c *fakeClient) NewListTradesService() ListTradesService { return c.trades }

type BinanceBrokerTestSuite struct {
	suite.Suite
	client *fakeClient
	broker *Broker
}

func TestBinanceBrokerSuite(t *testing.T) {
	suite.Run(t, new(BinanceBrokerTestSuite))
}

func (suite *BinanceBrokerTestSuite) SetupTest() {
	suite.client = &fakeClient{
		createOrder: &fakeCreateOrderService{},
		account: &fakeGetAccountService{},
		openOrders: &fakeListOpenOrdersService{orders: map[string][]*binance.Order{}},
		cancelOrder: &fakeCancelOrderService{canceled: new(int64)},
		trades: &fakeListTradesService{trades: map[string][]*binance.TradeV3{}},
	}
	suite.broker = newWithClient(suite.client)
}

func (suite *BinanceBrokerTestSuite) TestSubmitOrderReturnsBrokerAssignedID() {
	suite.client.createOrder.resp = &binance.CreateOrderResponse{OrderID: 42}

	id, err := suite.broker.SubmitOrder(context.Background(), types.Order{
		ID: "o1", StrategyID: "s1", Symbol: "BTCUSDT", Side: types.SideBuy,
		Type: types.OrderTypeMarket, Qty: decimal.NewFromFloat(0.01),
	})

	suite.Require().NoError(err)
	suite.Equal("42", id)
	suite.Equal("BTCUSDT", suite.client.createOrder.symbol)
}

func (suite *BinanceBrokerTestSuite) TestSubmitOrderRejectsUnsupportedType() {
	_, err := suite.broker.SubmitOrder(context.Background(), types.Order{
		ID: "o1", StrategyID: "s1", Symbol: "BTCUSDT", Side: types.SideBuy,
		Type: types.OrderTypeStop, Qty: decimal.NewFromFloat(0.01),
	})

	suite.Require().Error(err)
	suite.Equal(errors.ErrCodeUnsupportedOrder, errors.GetCode(err))
}

func (suite *BinanceBrokerTestSuite) TestCancelOrderFindsOrderAcrossTradedSymbols() {
	suite.client.createOrder.resp = &binance.CreateOrderResponse{OrderID: 7}
	_, err := suite.broker.SubmitOrder(context.Background(), types.Order{
		ID: "o1", StrategyID: "s1", Symbol: "ETHUSDT", Side: types.SideSell,
		Type: types.OrderTypeMarket, Qty: decimal.NewFromFloat(1),
	})
	suite.Require().NoError(err)

	suite.client.openOrders.orders["ETHUSDT"] = []*binance.Order{{OrderID: 7}}

	suite.Require().NoError(suite.broker.CancelOrder(context.Background(), "7"))
	suite.EqualValues(7, *suite.client.cancelOrder.canceled)
}

func (suite *BinanceBrokerTestSuite) TestAccountInfoSumsQuoteAssetBalances() {
	suite.client.account.account = &binance.Account{
		Balances: []binance.Balance{
			{Asset: "USDT", Free: "1000", Locked: "50"},
			{Asset: "BTC", Free: "1", Locked: "0"},
		},
	}

	info, err := suite.broker.AccountInfo(context.Background())
	suite.Require().NoError(err)
	suite.True(info.Cash.Equal(decimal.NewFromInt(1050)))
	suite.True(info.Equity.Equal(decimal.NewFromInt(1050)))
}

func (suite *BinanceBrokerTestSuite) TestPollFillsReturnsTradesAndAdvancesCursor() {
	suite.client.createOrder.resp = &binance.CreateOrderResponse{OrderID: 9}
	_, err := suite.broker.SubmitOrder(context.Background(), types.Order{
		ID: "o1", StrategyID: "s1", Symbol: "AAPLUSD", Side: types.SideBuy,
		Type: types.OrderTypeMarket, Qty: decimal.NewFromFloat(1),
	})
	suite.Require().NoError(err)

	suite.client.trades.trades["AAPLUSD"] = []*binance.TradeV3{
		{ID: 1, OrderID: 9, Price: "100.50", Quantity: "1", Commission: "0.1", Time: 1000},
	}

	fills, cursor, err := suite.broker.PollFills(context.Background(), "")
	suite.Require().NoError(err)
	suite.Require().Len(fills, 1)
	suite.Equal("9", fills[0].BrokerOrderID)
	suite.Equal("1000", cursor)
}
