package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/rxtech-lab/argo-trading/internal/broker/binance"
	"github.com/rxtech-lab/argo-trading/internal/broker/paper"
	"github.com/rxtech-lab/argo-trading/internal/clock"
	"github.com/rxtech-lab/argo-trading/internal/config"
	"github.com/rxtech-lab/argo-trading/internal/credentials"
	"github.com/rxtech-lab/argo-trading/internal/data"
	"github.com/rxtech-lab/argo-trading/internal/evalplugin"
	"github.com/rxtech-lab/argo-trading/internal/evaluator"
	"github.com/rxtech-lab/argo-trading/internal/fatal"
	"github.com/rxtech-lab/argo-trading/internal/gateway"
	"github.com/rxtech-lab/argo-trading/internal/httpapi"
	"github.com/rxtech-lab/argo-trading/internal/logging"
	"github.com/rxtech-lab/argo-trading/internal/metrics"
	"github.com/rxtech-lab/argo-trading/internal/portfolio"
	"github.com/rxtech-lab/argo-trading/internal/provider/simfeed"
	"github.com/rxtech-lab/argo-trading/internal/stats"
	"github.com/rxtech-lab/argo-trading/internal/supervisor"
	"github.com/rxtech-lab/argo-trading/internal/types"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name: "run",
		Usage: "start the trading daemon and its control-plane HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to strateq.toml process config", Value: "strateq.toml"},
			&cli.FloatFlag{Name: "starting-cash", Usage: "paper broker starting cash", Value: 100000},
			&cli.BoolFlag{Name: "live", Usage: "route orders to Binance instead of the paper broker (requires binance credentials)"},
			&cli.BoolFlag{Name: "testnet", Usage: "when --live, connect to Binance's testnet"},
			&cli.BoolFlag{Name: "dev", Usage: "use a human-readable development logger instead of production JSON logging"},
		},
		Action: runAction,
	}
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	procCfg, err := config.LoadProcessConfig(cmd.String("config"))
	if err != nil {
		return fmt.Errorf("loading process config: %w", err)
	}

	var log *logging.Logger
	if cmd.Bool("dev") {
		log, err = logging.NewDevelopment()
	} else {
		log, err = logging.NewLogger()
	}

	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}

	clk := clock.New()

	credStore := credentials.NewStore(procCfg.CredentialsPath, log)
	if err := credStore.Load(); err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	providers := map[string]data.ProviderAdapter{}

	sim := simfeed.NewGenerator("sim", clk, 1, decimal.NewFromInt(100), decimal.NewFromFloat(0.01), time.Minute)
	providers["sim"] = sim

	for name, dp := range procCfg.DataProviders {
		if dp.WsURL == "" {
			continue
		}

		providers[name] = simfeed.NewWSFeed(name, dp.WsURL, log, sim.HistoryFetch)
	}

	dataMgr := data.NewManager(clk, log, providers)
	fatalReporter := fatal.NewReporter()
	portfolioMgr := portfolio.NewManager(clk, fatalReporter)
	statsMgr := stats.NewManager(clk)

	var broker gateway.BrokerAdapter

	if cmd.Bool("live") {
		apiKey, err := credStore.Get("binance", "api_key")
		if err != nil {
			return fmt.Errorf("loading binance credentials: %w", err)
		}

		secretKey, err := credStore.Get("binance", "secret_key")
		if err != nil {
			return fmt.Errorf("loading binance credentials: %w", err)
		}

		broker = binance.New(apiKey, secretKey, cmd.Bool("testnet"))
		log.Component("run").Info("live broker enabled", zap.Bool("testnet", cmd.Bool("testnet")))
	} else {
		paperBroker := paper.New(clk, decimal.NewFromFloat(cmd.Float("starting-cash")), types.BrokerCapabilities{
			FractionalShares: true,
			SupportedOrderTypes: []types.OrderType{types.OrderTypeMarket, types.OrderTypeLimit},
		})
		paperBroker.SetPrice("AAPL", decimal.NewFromInt(100))
		broker = paperBroker
	}

	metricsReg := metrics.New()

	gw := gateway.NewGateway(broker, clk, log, func(order *types.Order, fill types.Fill) error {
		metricsReg.ObserveFill(order.StrategyID)

		realizedDelta, err := portfolioMgr.ApplyFill(order, fill)
		if err != nil {
			return fmt.Errorf("applying fill to sub-ledger: %w", err)
		}

		if err := statsMgr.RecordFill(order.StrategyID, fill.Fee, realizedDelta); err != nil {
			return fmt.Errorf("recording fill statistics: %w", err)
		}

		if err := portfolioMgr.MarkPrice(order.StrategyID, order.Symbol, fill.Price); err != nil {
			return fmt.Errorf("marking fill price: %w", err)
		}

		unrealized, err := portfolioMgr.UnrealizedPnL(order.StrategyID)
		if err != nil {
			return fmt.Errorf("computing unrealized pnl: %w", err)
		}

		return statsMgr.MarkUnrealized(order.StrategyID, unrealized)
	})

	go func() {
		if err := gw.Run(ctx); err != nil && ctx.Err() == nil {
			log.Component("run").Error("gateway loop exited", zap.Error(err))
		}
	}()

	evaluators := map[string]evaluator.SignalEvaluator{
		"sma_cross": evalplugin.SMACross{},
		"threshold": evalplugin.Threshold{},
	}

	caps, err := broker.Capabilities(ctx)
	if err != nil {
		return fmt.Errorf("reading broker capabilities: %w", err)
	}

	account, err := broker.AccountInfo(ctx)
	if err != nil {
		return fmt.Errorf("reading broker account info: %w", err)
	}

	sup := supervisor.New(supervisor.Config{
		Clock: clk, Log: log, DataMgr: dataMgr, Portfolio: portfolioMgr, Gateway: gw, Stats: statsMgr,
		Evaluators: evaluators, Caps: caps, Account: account,
	})

	apiServer := httpapi.New(sup, evaluators, statsMgr, credStore, procCfg.StrategiesDir, log)

	httpSrv := &http.Server{Addr: procCfg.HTTP.ListenAddr, Handler: apiServer}

	go func() {
		log.Component("run").Info("control-plane listening", zap.String("addr", procCfg.HTTP.ListenAddr))

		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Component("run").Error("control-plane server exited", zap.Error(err))
		}
	}()

	var metricsSrv *http.Server

	if procCfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", metricsReg.Handler())
		metricsSrv = &http.Server{Addr: procCfg.Metrics.ListenAddr, Handler: metricsMux}

		go func() {
			log.Component("run").Info("metrics listening", zap.String("addr", procCfg.Metrics.ListenAddr))

			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Component("run").Error("metrics server exited", zap.Error(err))
			}
		}()
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-sigCtx.Done():
		log.Component("run").Info("shutting down")
	case invariantErr := <-fatalReporter.C():
		// InvariantViolation: ledger arithmetic or fill ordering has
		// drifted from what ApplyFill guarantees. zap's Fatal level logs
		// and then terminates the process; there is no safe way to keep
		// serving strategies against a sub-ledger that failed its own
		// consistency check.
		log.Component("run").Fatal("invariant violation, shutting down", zap.Error(invariantErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpSrv.Shutdown(shutdownCtx)

	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}

	return nil
}
