package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"iter"
	"mime/multipart"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/rxtech-lab/argo-trading/internal/clock"
	"github.com/rxtech-lab/argo-trading/internal/credentials"
	"github.com/rxtech-lab/argo-trading/internal/data"
	"github.com/rxtech-lab/argo-trading/internal/evaluator"
	"github.com/rxtech-lab/argo-trading/internal/gateway"
	"github.com/rxtech-lab/argo-trading/internal/logging"
	"github.com/rxtech-lab/argo-trading/internal/portfolio"
	"github.com/rxtech-lab/argo-trading/internal/stats"
	"github.com/rxtech-lab/argo-trading/internal/supervisor"
	"github.com/rxtech-lab/argo-trading/internal/types"
)

type fakeProvider struct{ bars []types.Bar }

func (p *fakeProvider) Name() string { return "fake" }
func (p *fakeProvider) HistoryFetch(ctx context.Context, symbol, granularity string, lookback int) ([]types.Bar, error) {
	return p.bars, nil
}
func (p *fakeProvider) Stream(ctx context.Context, symbols []string, granularity string) iter.Seq2[types.Bar, error] {
	return func(yield func(types.Bar, error) bool) { <-ctx.Done() }
}

type fixedSignalEvaluator struct{ signal types.Signal }

func (e fixedSignalEvaluator) Name() string { return "fixed" }
func (e fixedSignalEvaluator) Evaluate(ctx context.Context, window []types.Bar, params map[string]string, state evaluator.State) (types.Signal, evaluator.State, error) {
	return e.signal, nil, nil
}

type fakeBroker struct{}

func (b *fakeBroker) Name() string { return "fake-broker" }
func (b *fakeBroker) Capabilities(ctx context.Context) (types.BrokerCapabilities, error) {
	return types.BrokerCapabilities{}, nil
}
func (b *fakeBroker) SubmitOrder(ctx context.Context, order types.Order) (string, error) {
	return "b-order", nil
}
func (b *fakeBroker) CancelOrder(ctx context.Context, brokerOrderID string) error { return nil }
func (b *fakeBroker) PollFills(ctx context.Context, sinceCursor string) ([]types.Fill, string, error) {
	return nil, sinceCursor, nil
}
func (b *fakeBroker) Fills(ctx context.Context) (<-chan types.Fill, error) {
	return make(chan types.Fill), nil
}
func (b *fakeBroker) AccountInfo(ctx context.Context) (types.AccountInfo, error) {
	return types.AccountInfo{}, nil
}

type HTTPAPITestSuite struct {
	suite.Suite
	server *Server
}

func TestHTTPAPISuite(t *testing.T) {
	suite.Run(t, new(HTTPAPITestSuite))
}

func (suite *HTTPAPITestSuite) SetupTest() {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	log, err := logging.NewDevelopment()
	suite.Require().NoError(err)

	bars := []types.Bar{{Symbol: "AAPL", Granularity: "1d", Timestamp: clk.Now(), Open: decimal.NewFromInt(100), High: decimal.NewFromInt(101), Low: decimal.NewFromInt(99), Close: decimal.NewFromInt(100), Volume: decimal.NewFromInt(1), IsFinal: true}}
	dataMgr := data.NewManager(clk, log, map[string]data.ProviderAdapter{"fake": &fakeProvider{bars: bars}})

	pf := portfolio.NewManager(clk, nil)
	statsMgr := stats.NewManager(clk)
	gw := gateway.NewGateway(&fakeBroker{}, clk, log, nil)

	evaluators := map[string]evaluator.SignalEvaluator{"fixed": fixedSignalEvaluator{signal: types.Signal{Type: types.SignalHold}}}

	sup := supervisor.New(supervisor.Config{
		Clock: clk, Log: log, DataMgr: dataMgr, Portfolio: pf, Gateway: gw, Stats: statsMgr,
		Evaluators: evaluators,
		Caps: types.BrokerCapabilities{FractionalShares: true, SupportedOrderTypes: []types.OrderType{types.OrderTypeMarket}},
		Account: types.AccountInfo{Cash: decimal.NewFromInt(100000), Equity: decimal.NewFromInt(100000)},
	})

	credStore := credentials.NewStore(suite.T().TempDir()+"/credentials.yaml", log)

	suite.server = New(sup, evaluators, statsMgr, credStore, suite.T().TempDir(), log)
}

func (suite *HTTPAPITestSuite) deploySpecBody() []byte {
	body, _ := json.Marshal(map[string]any{
		"name": "momentum", "engine": "fixed", "provider": "fake", "symbol": "AAPL",
		"granularity": "1d", "lookback": 1, "allocation_fraction": 0.5, "mode": "paper",
	})

	return body
}

func (suite *HTTPAPITestSuite) TestDeployValidateAccepts() {
	req := httptest.NewRequest("POST", "/deploy/validate", bytes.NewReader(suite.deploySpecBody()))
	rr := httptest.NewRecorder()
	suite.server.ServeHTTP(rr, req)
	suite.Equal(200, rr.Code)
}

func (suite *HTTPAPITestSuite) TestDeployStartAndList() {
	req := httptest.NewRequest("POST", "/deploy/start", bytes.NewReader(suite.deploySpecBody()))
	rr := httptest.NewRecorder()
	suite.server.ServeHTTP(rr, req)
	suite.Equal(201, rr.Code)

	var resp map[string]string
	suite.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &resp))
	suite.NotEmpty(resp["id"])

	listReq := httptest.NewRequest("GET", "/strategies", nil)
	listRR := httptest.NewRecorder()
	suite.server.ServeHTTP(listRR, listReq)
	suite.Equal(200, listRR.Code)

	var listResp listStrategiesResponse
	suite.Require().NoError(json.Unmarshal(listRR.Body.Bytes(), &listResp))
	suite.Len(listResp.Strategies, 1)
}

func (suite *HTTPAPITestSuite) TestGetUnknownStrategyReturns404() {
	req := httptest.NewRequest("GET", "/strategies/nope", nil)
	rr := httptest.NewRecorder()
	suite.server.ServeHTTP(rr, req)
	suite.Equal(404, rr.Code)
}

func (suite *HTTPAPITestSuite) TestUploadStrategySavesFile() {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "momentum.py")
	suite.Require().NoError(err)
	_, err = part.Write([]byte("def evaluate(): pass"))
	suite.Require().NoError(err)
	suite.Require().NoError(writer.Close())

	req := httptest.NewRequest("POST", "/upload_strategy", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	rr := httptest.NewRecorder()
	suite.server.ServeHTTP(rr, req)
	suite.Equal(201, rr.Code)

	var resp uploadStrategyResponse
	suite.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &resp))

	saved, err := os.ReadFile(resp.Path)
	suite.Require().NoError(err)
	suite.Equal("def evaluate(): pass", string(saved))
}

func (suite *HTTPAPITestSuite) TestConfigPersistsCredential() {
	payload, _ := json.Marshal(configRequest{Provider: "binance", Key: "api_key", Value: "secret"})

	req := httptest.NewRequest("POST", "/config", bytes.NewReader(payload))
	rr := httptest.NewRecorder()
	suite.server.ServeHTTP(rr, req)
	suite.Equal(200, rr.Code)

	value, err := suite.server.credStore.Get("binance", "api_key")
	suite.Require().NoError(err)
	suite.Equal("secret", value)
}

func (suite *HTTPAPITestSuite) TestEnginesListsRegisteredEvaluators() {
	req := httptest.NewRequest("GET", "/engines", nil)
	rr := httptest.NewRecorder()
	suite.server.ServeHTTP(rr, req)
	suite.Equal(200, rr.Code)

	var enginesResp enginesResponse
	suite.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &enginesResp))
	suite.Require().Len(enginesResp.Engines, 1)
	suite.Equal("fixed", enginesResp.Engines[0].Name)
	suite.True(enginesResp.Engines[0].Available)
}
