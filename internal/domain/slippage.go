package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type SlippageResult struct {
	Side             SideEnum        `json:"side"`
	Volume           decimal.Decimal `json:"volume"`
	QuotePrice       decimal.Decimal `json:"quote_price"`
	QuoteTotal       decimal.Decimal `json:"quote_total"`
	ActualTotal      decimal.Decimal `json:"actual_total"`
	SlippageCost     decimal.Decimal `json:"slippage_cost"`
	SlippageFraction decimal.Decimal `json:"slippage_fraction"`
	FilledVolume     decimal.Decimal `json:"filled_volume"`
	Insufficient     bool            `json:"insufficient_liquidity"`
}

type SlippageSample struct {
	Symbol   string          `json:"symbol"`
	Side     SideEnum        `json:"side"`
	Notional decimal.Decimal `json:"notional"`
	Result   *SlippageResult `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
	Time     time.Time       `json:"time"`
}
