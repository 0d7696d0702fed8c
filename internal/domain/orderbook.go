package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PriceLevel struct {
	Price  decimal.Decimal `json:"price"`
	Volume decimal.Decimal `json:"volume"`
}

// OrderBook is a point-in-time copy of one symbol's book. Bids are ordered
// highest price first and asks lowest price first.
type OrderBook struct {
	Symbol    string       `json:"symbol"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Updates   uint64       `json:"updates"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Levels returns the side a market order of the given side consumes, in fill order.
func (ob OrderBook) Levels(side SideEnum) []PriceLevel {
	if side == Bid {
		return ob.Bids
	}
	return ob.Asks
}

func (ob OrderBook) Depth(side SideEnum) decimal.Decimal {
	total := decimal.Zero
	for _, level := range ob.Levels(side) {
		total = total.Add(level.Volume)
	}
	return total
}
