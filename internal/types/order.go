package types

import (
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/rxtech-lab/argo-trading/pkg/errors"
)

// Side is the directional side of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType is the execution style requested for an order.
type OrderType string

const (
	OrderTypeMarket    OrderType = "MARKET"
	OrderTypeLimit     OrderType = "LIMIT"
	OrderTypeStop      OrderType = "STOP"
	OrderTypeStopLimit OrderType = "STOP_LIMIT"
)

// OrderState is the order lifecycle state:
// PENDING -> WORKING -> (PARTIAL)* -> (FILLED | CANCELED | REJECTED | EXPIRED).
type OrderState string

const (
	OrderPending  OrderState = "PENDING"
	OrderWorking  OrderState = "WORKING"
	OrderPartial  OrderState = "PARTIAL"
	OrderFilled   OrderState = "FILLED"
	OrderCanceled OrderState = "CANCELED"
	OrderRejected OrderState = "REJECTED"
	OrderExpired  OrderState = "EXPIRED"
	OrderErrored  OrderState = "ERRORED"
)

// IsTerminal reports whether the state is one of the terminal states.
func (s OrderState) IsTerminal() bool {
	switch s {
	case OrderFilled, OrderCanceled, OrderRejected, OrderExpired:
		return true
	default:
		return false
	}
}

// Order is the runtime's view of a submitted order, keyed by a local id
// assigned at submission; BrokerOrderID is populated once the broker
// acknowledges it.
type Order struct {
	ID            string            `validate:"required"`
	BrokerOrderID string
	StrategyID    string            `validate:"required"`
	Symbol        string            `validate:"required"`
	Side          Side              `validate:"required,oneof=BUY SELL"`
	Type          OrderType         `validate:"required,oneof=MARKET LIMIT STOP STOP_LIMIT"`
	Qty           decimal.Decimal   `validate:"required"`
	LimitPrice    *decimal.Decimal
	StopPrice     *decimal.Decimal
	TimeInForce   TimeInForce
	State         OrderState        `validate:"required"`
	FilledQty     decimal.Decimal
	AvgFillPrice  decimal.Decimal
	SubmitTS      time.Time         `validate:"required"`
	TerminalTS    *time.Time
	RejectReason  string
}

// Validate validates the Order struct's required fields.
func (o *Order) Validate() error {
	if err := validator.New().Struct(o); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidOrder, "invalid order", err)
	}

	if o.Qty.Sign() <= 0 {
		return errors.Newf(errors.ErrCodeInvalidOrder, "order %s: qty must be > 0, got %s", o.ID, o.Qty)
	}

	return nil
}

// Fill is one broker execution report applied to an Order.
type Fill struct {
	BrokerOrderID string
	Sequence      int64
	Qty           decimal.Decimal
	Price         decimal.Decimal
	Fee           decimal.Decimal
	Timestamp     time.Time
}

// Key uniquely identifies a fill for at-most-once application (,
// invariant 5): applying the same (broker_id, sequence) twice is a no-op.
func (f Fill) Key() string {
	return f.BrokerOrderID + "#" + strconv.FormatInt(f.Sequence, 10)
}
