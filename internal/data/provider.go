package data

import (
	"context"
	"iter"

	"github.com/rxtech-lab/argo-trading/internal/types"
)

// ProviderAdapter is the out-of-scope collaborator interface a concrete
// market-data provider (Alpaca, Binance, Polygon, ...) implements. The
// Data Manager consumes only this interface; the adapter's wire protocol
// is opaque.
type ProviderAdapter interface {
	// Name identifies the provider for logging and de-duplication.
	Name() string
	// HistoryFetch returns up to `lookback` most-recent bars for symbol at
	// granularity, oldest first.
	HistoryFetch(ctx context.Context, symbol string, granularity string, lookback int) ([]types.Bar, error)
	// Stream yields realtime bars for the given symbols/granularity until
	// ctx is cancelled or the feed terminates. Mirrors
	// pkg/marketdata/provider's iter.Seq2[MarketData, error] streaming
	// shape, generalized to Bar.
	Stream(ctx context.Context, symbols []string, granularity string) iter.Seq2[types.Bar, error]
}
