package slippage

import (
	"fmt"

	"crypto-orderbook-slippage/internal/domain"

	"github.com/shopspring/decimal"
)

// Compute prices a market order of volume against levels, which must already
// be in fill order for side. When the levels run out before volume is filled,
// the partial result is returned together with an *InsufficientLiquidityError.
// Cost and fraction are always measured against QuoteTotal, the full volume at
// the quote price, so a short book shows the unfilled part as cost.
func Compute(levels []domain.PriceLevel, volume decimal.Decimal, side domain.SideEnum) (domain.SlippageResult, error) {
	result := domain.SlippageResult{Side: side, Volume: volume}

	if !volume.IsPositive() {
		return result, fmt.Errorf("%w: %s", domain.ErrInvalidVolume, volume)
	}
	quotePrice, err := QuotePrice(levels)
	if err != nil {
		return result, err
	}

	filled, actualTotal := walk(levels, volume)

	result.QuotePrice = quotePrice
	result.QuoteTotal = volume.Mul(quotePrice)
	result.ActualTotal = actualTotal
	result.FilledVolume = filled

	result.Insufficient = filled.LessThan(volume)
	if result.QuoteTotal.IsZero() {
		return result, fmt.Errorf("%w: zero quote total", domain.ErrEmptyBook)
	}
	result.SlippageCost = result.QuoteTotal.Sub(actualTotal).Abs()
	result.SlippageFraction = result.SlippageCost.Div(result.QuoteTotal)

	if result.Insufficient {
		return result, &domain.InsufficientLiquidityError{Requested: volume, Available: filled}
	}
	return result, nil
}

// walk consumes levels until volume is filled; the last level is only charged
// for the remainder.
func walk(levels []domain.PriceLevel, volume decimal.Decimal) (filled, total decimal.Decimal) {
	filled, total = decimal.Zero, decimal.Zero
	for _, level := range levels {
		remaining := volume.Sub(filled)
		if !remaining.IsPositive() {
			break
		}
		take := decimal.Min(level.Volume, remaining)
		total = total.Add(take.Mul(level.Price))
		filled = filled.Add(take)
	}
	return filled, total
}

// QuotePrice is the best price of a fill-ordered side.
func QuotePrice(levels []domain.PriceLevel) (decimal.Decimal, error) {
	if len(levels) == 0 {
		return decimal.Zero, domain.ErrEmptyBook
	}
	return levels[0].Price, nil
}

// VolumeForNotional converts an amount of quote currency into base volume at
// the best price.
func VolumeForNotional(levels []domain.PriceLevel, notional decimal.Decimal) (decimal.Decimal, error) {
	if !notional.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: notional %s", domain.ErrInvalidVolume, notional)
	}
	price, err := QuotePrice(levels)
	if err != nil {
		return decimal.Zero, err
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: quote price %s", domain.ErrEmptyBook, price)
	}
	return notional.Div(price), nil
}
