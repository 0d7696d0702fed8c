package slippage

import (
	"fmt"

	"crypto-orderbook-slippage/internal/domain"

	"github.com/shopspring/decimal"
)

type BookReader interface {
	// LevelsInFillOrder returns a copy of one side of a synchronized book.
	LevelsInFillOrder(symbol string, side domain.SideEnum) ([]domain.PriceLevel, bool)
}

// Estimator runs Compute against live books.
type Estimator struct {
	books BookReader
}

func NewEstimator(books BookReader) *Estimator {
	return &Estimator{books: books}
}

func (e *Estimator) ComputeSlippage(symbol string, side domain.SideEnum, volume decimal.Decimal) (domain.SlippageResult, error) {
	levels, ok := e.books.LevelsInFillOrder(symbol, side)
	if !ok {
		return domain.SlippageResult{Side: side, Volume: volume}, fmt.Errorf("%w: %s", domain.ErrBookNotFound, symbol)
	}
	return Compute(levels, volume, side)
}

// ComputeForNotional sizes the order as notional / best price, then prices it
// against the same copy of the book.
func (e *Estimator) ComputeForNotional(symbol string, side domain.SideEnum, notional decimal.Decimal) (domain.SlippageResult, error) {
	levels, ok := e.books.LevelsInFillOrder(symbol, side)
	if !ok {
		return domain.SlippageResult{Side: side}, fmt.Errorf("%w: %s", domain.ErrBookNotFound, symbol)
	}
	volume, err := VolumeForNotional(levels, notional)
	if err != nil {
		return domain.SlippageResult{Side: side}, err
	}
	return Compute(levels, volume, side)
}
