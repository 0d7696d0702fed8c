package orderbook

import (
	"crypto-orderbook-slippage/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"
)

// Levels is the price -> volume map for one side of a book. The tree is
// ordered in fill order, so a plain scan walks the side the way a market
// order would consume it.
type Levels struct {
	tree *btree.BTreeG[domain.PriceLevel]
}

func NewLevels(side domain.SideEnum) *Levels {
	return &Levels{tree: btree.NewBTreeG(fillOrderLess(side))}
}

func fillOrderLess(side domain.SideEnum) func(a, b domain.PriceLevel) bool {
	if side == domain.Bid {
		return func(a, b domain.PriceLevel) bool { return a.Price.GreaterThan(b.Price) }
	}
	return func(a, b domain.PriceLevel) bool { return a.Price.LessThan(b.Price) }
}

func (l *Levels) Len() int { return l.tree.Len() }

// Set stores volume at price. Volume must be positive.
func (l *Levels) Set(price, volume decimal.Decimal) {
	l.tree.Set(domain.PriceLevel{Price: price, Volume: volume})
}

// Delete removes price and reports whether it was present.
func (l *Levels) Delete(price decimal.Decimal) bool {
	_, ok := l.tree.Delete(domain.PriceLevel{Price: price})
	return ok
}

// FillOrder copies up to limit levels in fill order; limit <= 0 copies all.
func (l *Levels) FillOrder(limit int) []domain.PriceLevel {
	n := l.tree.Len()
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.PriceLevel, 0, n)
	l.tree.Scan(func(level domain.PriceLevel) bool {
		out = append(out, level)
		return len(out) < n
	})
	return out
}
