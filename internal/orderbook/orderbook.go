package orderbook

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"crypto-orderbook-slippage/internal/domain"

	"github.com/shopspring/decimal"
)

// Change is one normalized level update: a zero volume removes the level.
type Change struct {
	Side   domain.SideEnum
	Price  decimal.Decimal
	Volume decimal.Decimal
}

// OrderBook holds both sides of one symbol. Every batch is applied under the
// write lock, so readers never see half of a snapshot or update.
type OrderBook struct {
	mu        sync.RWMutex
	symbol    string
	bids      *Levels
	asks      *Levels
	updates   uint64
	updatedAt time.Time
}

func New(symbol string) *OrderBook {
	return &OrderBook{
		symbol: symbol,
		bids:   NewLevels(domain.Bid),
		asks:   NewLevels(domain.Ask),
	}
}

func (ob *OrderBook) Symbol() string { return ob.symbol }

// Apply inserts, replaces or removes a single level.
func (ob *OrderBook) Apply(side domain.SideEnum, price, volume decimal.Decimal) error {
	return ob.ApplyBatch([]Change{{Side: side, Price: price, Volume: volume}})
}

// ApplyBatch applies all changes atomically with respect to readers. Changes
// that cannot be stored are skipped and reported; the others still apply.
func (ob *OrderBook) ApplyBatch(changes []Change) error {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	return ob.applyLocked(changes)
}

// Replace clears the book and loads changes as its new content, atomically.
func (ob *OrderBook) Replace(changes []Change) error {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	ob.bids = NewLevels(domain.Bid)
	ob.asks = NewLevels(domain.Ask)
	return ob.applyLocked(changes)
}

func (ob *OrderBook) applyLocked(changes []Change) error {
	var errs []error
	for _, change := range changes {
		if err := ob.applyOne(change); err != nil {
			errs = append(errs, err)
		}
	}
	ob.updates++
	ob.updatedAt = time.Now()
	return errors.Join(errs...)
}

func (ob *OrderBook) applyOne(change Change) error {
	levels, opposite := ob.side(change.Side), ob.side(change.Side.Opposite())

	switch change.Volume.Sign() {
	case -1:
		return fmt.Errorf("%w: negative volume %s at %s", domain.ErrMalformedUpdate, change.Volume, change.Price)
	case 0:
		// absent levels are fine, the feed repeats deletions
		levels.Delete(change.Price)
		return nil
	}

	var err error
	if opposite.Delete(change.Price) {
		err = fmt.Errorf("%w: %s moved from %s to %s", domain.ErrCrossedLevel, change.Price, change.Side.Opposite(), change.Side)
	}
	levels.Set(change.Price, change.Volume)
	return err
}

func (ob *OrderBook) side(side domain.SideEnum) *Levels {
	if side == domain.Bid {
		return ob.bids
	}
	return ob.asks
}

// LevelsInFillOrder returns a copy of one side: bids highest first, asks lowest first.
func (ob *OrderBook) LevelsInFillOrder(side domain.SideEnum) []domain.PriceLevel {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	return ob.side(side).FillOrder(0)
}

func (ob *OrderBook) Len(side domain.SideEnum) int {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	return ob.side(side).Len()
}

// Snapshot copies both sides under one read lock. depth <= 0 copies every level.
func (ob *OrderBook) Snapshot(depth int) domain.OrderBook {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	return domain.OrderBook{
		Symbol:    ob.symbol,
		Bids:      ob.bids.FillOrder(depth),
		Asks:      ob.asks.FillOrder(depth),
		Updates:   ob.updates,
		UpdatedAt: ob.updatedAt,
	}
}
