package gateway

import (
	"sync"

	"github.com/rxtech-lab/argo-trading/internal/types"
	"github.com/rxtech-lab/argo-trading/pkg/errors"
)

// orderTable is the runtime's order book, keyed primarily by the local id
// assigned at Propose time, with a secondary index by broker order id once
// the broker acknowledges submission.
type orderTable struct {
	mu         sync.Mutex
	byID       map[string]*types.Order
	byBrokerID map[string]string
	seenFills  map[string]struct{}
}

func newOrderTable() *orderTable {
	return &orderTable{
		byID:       make(map[string]*types.Order),
		byBrokerID: make(map[string]string),
		seenFills:  make(map[string]struct{}),
	}
}

func (t *orderTable) put(order *types.Order) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.byID[order.ID] = order
}

func (t *orderTable) linkBrokerID(localID, brokerOrderID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.byBrokerID[brokerOrderID] = localID
}

func (t *orderTable) get(localID string) (*types.Order, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	o, ok := t.byID[localID]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeDataNotFound, "no order with id %s", localID)
	}

	return o, nil
}

func (t *orderTable) getByBrokerID(brokerOrderID string) (*types.Order, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	localID, ok := t.byBrokerID[brokerOrderID]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeDataNotFound, "no order with broker id %s", brokerOrderID)
	}

	o, ok := t.byID[localID]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeDataNotFound, "no order with id %s", localID)
	}

	return o, nil
}

// admitFill records fill's key for at-most-once application (// invariant 5). Returns false if the fill was already applied.
func (t *orderTable) admitFill(fill types.Fill) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := fill.Key()
	if _, seen := t.seenFills[key]; seen {
		return false
	}

	t.seenFills[key] = struct{}{}

	return true
}

// open returns every order not yet in a terminal state, used for
// reconciliation on reconnect.
func (t *orderTable) open() []*types.Order {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*types.Order, 0)

	for _, o := range t.byID {
		if !o.State.IsTerminal() {
			out = append(out, o)
		}
	}

	return out
}
