// Package simfeed provides concrete DataProviderAdapter implementations:
// a deterministic synthetic random-walk generator for local development
// and tests, and (in ws.go) a push-model realtime feed over
// gorilla/websocket. Grounded on
// e2e/trading/mockserver/server.go's MarketDataGeneratorConfig, which the
// teacher uses to drive its mock Binance server's price stream.
package simfeed

import (
	"context"
	"iter"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rxtech-lab/argo-trading/internal/clock"
	"github.com/rxtech-lab/argo-trading/internal/types"
)

// Generator is a deterministic synthetic ProviderAdapter driving a
// random-walk price series, in the style of
// mocks.GeneratorConfig but adapted to the Bar/iter.Seq2 shape.
type Generator struct {
	name string
	clk clock.Clock
	rng *rand.Rand
	startPrice decimal.Decimal
	volatility decimal.Decimal
	tickPeriod time.Duration
	prices map[string]decimal.Decimal
}

// NewGenerator creates a Generator seeded for reproducible test runs.
func NewGenerator(name string, clk clock.Clock, seed int64, startPrice, volatility decimal.Decimal, tickPeriod time.Duration) *Generator {
	return &Generator{
		name: name,
		clk: clk,
		rng: rand.New(rand.NewSource(seed)),
		startPrice: startPrice,
		volatility: volatility,
		tickPeriod: tickPeriod,
		prices: make(map[string]decimal.Decimal),
	}
}

func (g *Generator) Name() string { return g.name }

func (g *Generator) priceFor(symbol string) decimal.Decimal {
	p, ok := g.prices[symbol]
	if !ok {
		p = g.startPrice
		g.prices[symbol] = p
	}

	return p
}

func (g *Generator) nextBar(symbol, granularity string, ts time.Time) types.Bar {
	open := g.priceFor(symbol)

	move := decimal.NewFromFloat(g.rng.NormFloat64()).Mul(g.volatility).Mul(open)
	closePrice := open.Add(move)

	if closePrice.Sign() <= 0 {
		closePrice = open
	}

	high := decimal.Max(open, closePrice)
	low := decimal.Min(open, closePrice)
	spread := high.Sub(low).Mul(decimal.NewFromFloat(0.25))
	high = high.Add(spread)
	low = low.Sub(spread)

	if low.Sign() <= 0 {
		low = decimal.NewFromFloat(0.01)
	}

	g.prices[symbol] = closePrice

	return types.Bar{
		Symbol: symbol,
		Granularity: granularity,
		Timestamp: ts,
		Open: open,
		High: high,
		Low: low,
		Close: closePrice,
		Volume: decimal.NewFromFloat(100 + g.rng.Float64()*900),
		IsFinal: true,
	}
}

// HistoryFetch synthesizes `lookback` consecutive bars ending at the
// generator's clock's current time.
func (g *Generator) HistoryFetch(ctx context.Context, symbol, granularity string, lookback int) ([]types.Bar, error) {
	if lookback <= 0 {
		return nil, nil
	}

	now := g.clk.Now()
	bars := make([]types.Bar, 0, lookback)

	start := now.Add(-time.Duration(lookback) * g.tickPeriod)
	for i := 0; i < lookback; i++ {
		ts := start.Add(time.Duration(i) * g.tickPeriod)
		bars = append(bars, g.nextBar(symbol, granularity, ts))
	}

	return bars, nil
}

// Stream yields one synthetic bar per symbol every tickPeriod until ctx
// is cancelled.
func (g *Generator) Stream(ctx context.Context, symbols []string, granularity string) iter.Seq2[types.Bar, error] {
	return func(yield func(types.Bar, error) bool) {
		ticker := g.clk.NewTicker(g.tickPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return

			case <-ticker.C():
				for _, symbol := range symbols {
					bar := g.nextBar(symbol, granularity, g.clk.Now())
					if !yield(bar, nil) {
						return
					}
				}
			}
		}
	}
}
