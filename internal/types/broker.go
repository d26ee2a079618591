package types

import "github.com/shopspring/decimal"

// BrokerCapabilities is static per broker instance for the runtime's
// lifetime.
type BrokerCapabilities struct {
	MinNotional decimal.Decimal
	MaxPositionSize *decimal.Decimal
	MinLotSize decimal.Decimal
	StepSize decimal.Decimal
	FractionalShares bool
	ShortSellingAllowed bool
	SupportedOrderTypes []OrderType
}

// Supports reports whether ot is in the broker's supported order types.
func (c BrokerCapabilities) Supports(ot OrderType) bool {
	for _, t := range c.SupportedOrderTypes {
		if t == ot {
			return true
		}
	}

	return false
}

// AccountInfo is the broker's view of account-level balance/equity state,
// used by the Supervisor to normalize mixed allocation forms at deploy
// time.
type AccountInfo struct {
	Cash decimal.Decimal
	Equity decimal.Decimal
}
