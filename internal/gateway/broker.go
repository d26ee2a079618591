// Package gateway is the Order Gateway: the single interface
// boundary between the runtime and a broker's wire protocol, and the
// keeper of the order table with at-most-once fill application.
package gateway

import (
	"context"

	"github.com/rxtech-lab/argo-trading/internal/types"
)

// BrokerAdapter is the out-of-scope collaborator interface a concrete
// broker (Binance, Alpaca, a paper simulator, ...) implements. Mirrors
// the shape of TradingSystemProvider, generalized to the runtime's Order
// model and given an explicit Context on every blocking call.
type BrokerAdapter interface {
	// Name identifies the broker for logging and registry lookup.
	Name() string
	// Capabilities returns the broker's static trading constraints.
	Capabilities(ctx context.Context) (types.BrokerCapabilities, error)
	// SubmitOrder places order and returns the broker-assigned order id.
	SubmitOrder(ctx context.Context, order types.Order) (brokerOrderID string, err error)
	// CancelOrder cancels a previously submitted order.
	CancelOrder(ctx context.Context, brokerOrderID string) error
	// PollFills returns fills reported since the given cursor, used as the
	// reconciliation backstop when push delivery drops a fill (// Open Question: push is authoritative, poll fills gaps).
	PollFills(ctx context.Context, sinceCursor string) ([]types.Fill, string, error)
	// Fills returns a channel of pushed fill notifications, closed when the
	// broker connection is torn down. A nil channel means the adapter has
	// no push transport and relies solely on PollFills.
	Fills(ctx context.Context) (<-chan types.Fill, error)
	// AccountInfo returns the broker's current cash/equity view.
	AccountInfo(ctx context.Context) (types.AccountInfo, error)
}
