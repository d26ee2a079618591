package simfeed

import (
	"context"
	"encoding/json"
	"iter"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/rxtech-lab/argo-trading/internal/logging"
	"github.com/rxtech-lab/argo-trading/internal/types"
	"github.com/rxtech-lab/argo-trading/pkg/errors"
)

// wireBar is the JSON frame this feed expects on the wire, one per
// message, matching the field names e2e/trading/mockserver emits over
// its own WebSocket stream.
type wireBar struct {
	Symbol string `json:"symbol"`
	Granularity string `json:"granularity"`
	Timestamp int64 `json:"timestamp"`
	Open float64 `json:"open"`
	High float64 `json:"high"`
	Low float64 `json:"low"`
	Close float64 `json:"close"`
	Volume float64 `json:"volume"`
	IsFinal bool `json:"is_final"`
}

func (w wireBar) toBar() types.Bar {
	return types.Bar{
		Symbol: w.Symbol,
		Granularity: w.Granularity,
		Timestamp: time.UnixMilli(w.Timestamp).UTC(),
		Open: decimal.NewFromFloat(w.Open),
		High: decimal.NewFromFloat(w.High),
		Low: decimal.NewFromFloat(w.Low),
		Close: decimal.NewFromFloat(w.Close),
		Volume: decimal.NewFromFloat(w.Volume),
		IsFinal: w.IsFinal,
	}
}

// WSFeed is a push-model ProviderAdapter over a WebSocket connection
// (realtime feed adapter). HistoryFetch is served by a
// caller-supplied backfill function since a raw push feed has no history
// endpoint of its own; Stream dials the socket and decodes one wireBar
// per text message.
type WSFeed struct {
	name string
	url string
	log *logging.Logger
	dialer *websocket.Dialer
	backfill func(ctx context.Context, symbol, granularity string, lookback int) ([]types.Bar, error)
}

// NewWSFeed creates a WSFeed dialing url on Stream. backfill supplies
// HistoryFetch's answer (e.g. from a REST endpoint of the same venue);
// pass nil to always return an empty history.
func NewWSFeed(name, url string, log *logging.Logger, backfill func(ctx context.Context, symbol, granularity string, lookback int) ([]types.Bar, error)) *WSFeed {
	return &WSFeed{
		name: name,
		url: url,
		log: log.Component("simfeed_ws"),
		dialer: websocket.DefaultDialer,
		backfill: backfill,
	}
}

func (f *WSFeed) Name() string { return f.name }

func (f *WSFeed) HistoryFetch(ctx context.Context, symbol, granularity string, lookback int) ([]types.Bar, error) {
	if f.backfill == nil {
		return nil, nil
	}

	return f.backfill(ctx, symbol, granularity, lookback)
}

// Stream dials the WebSocket endpoint and yields decoded bars until ctx
// is cancelled or the connection drops. A dropped connection surfaces as
// a single error and the sequence ends; the Data Manager's own reconnect
// loop is responsible for calling Stream again.
func (f *WSFeed) Stream(ctx context.Context, symbols []string, granularity string) iter.Seq2[types.Bar, error] {
	return func(yield func(types.Bar, error) bool) {
		conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
		if err != nil {
			yield(types.Bar{}, errors.Wrap(errors.ErrCodeUpstreamDisconnected, "websocket dial failed", err))
			return
		}
		defer conn.Close()

		done := make(chan struct{})
		go func() {
			<-ctx.Done()
			_ = conn.Close()
			close(done)
		}()

		wanted := make(map[string]bool, len(symbols))
		for _, s := range symbols {
			wanted[s] = true
		}

		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				select {
				case <-done:
					return
				default:
				}

				yield(types.Bar{}, errors.Wrap(errors.ErrCodeUpstreamDisconnected, "websocket read failed", err))

				return
			}

			var wb wireBar
			if err := json.Unmarshal(message, &wb); err != nil {
				f.log.Warn("dropping malformed feed message")
				continue
			}

			if !wanted[wb.Symbol] || wb.Granularity != granularity {
				continue
			}

			if !yield(wb.toBar(), nil) {
				return
			}
		}
	}
}
