package feed

import (
	"sort"
	"sync"

	"crypto-orderbook-slippage/internal/domain"
	"crypto-orderbook-slippage/internal/orderbook"
)

type bookEntry struct {
	book  *orderbook.OrderBook
	state domain.BookStateEnum
	owner string
}

// Books is the symbol -> book collection shared between the feed sessions
// that write it and any number of readers. Readers only ever see books that
// reached the synchronized state, and always through copies.
type Books struct {
	mu      sync.RWMutex
	entries map[string]*bookEntry
}

func NewBooks() *Books {
	return &Books{entries: make(map[string]*bookEntry)}
}

// attach gives symbol a fresh empty book owned by session.
func (b *Books) attach(symbol, session string) *orderbook.OrderBook {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry := &bookEntry{book: orderbook.New(symbol), state: domain.Subscribed, owner: session}
	b.entries[symbol] = entry
	return entry.book
}

// owned returns the book and state for symbol if session still owns it.
func (b *Books) owned(symbol, session string) (*orderbook.OrderBook, domain.BookStateEnum, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entry, ok := b.entries[symbol]
	if !ok || entry.owner != session {
		return nil, domain.Uninitialized, false
	}
	return entry.book, entry.state, true
}

func (b *Books) markSynchronized(symbol, session string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if entry, ok := b.entries[symbol]; ok && entry.owner == session {
		entry.state = domain.Synchronized
	}
}

// detach drops symbol's book if session still owns it.
func (b *Books) detach(symbol, session string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[symbol]
	if !ok || entry.owner != session {
		return false
	}
	delete(b.entries, symbol)
	return true
}

func (b *Books) synchronized(symbol string) (*orderbook.OrderBook, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entry, ok := b.entries[symbol]
	if !ok || entry.state != domain.Synchronized {
		return nil, false
	}
	return entry.book, true
}

// Get returns a copy of symbol's book, depth levels per side (all when
// depth <= 0), or false while the book is not synchronized.
func (b *Books) Get(symbol string, depth int) (domain.OrderBook, bool) {
	book, ok := b.synchronized(symbol)
	if !ok {
		return domain.OrderBook{}, false
	}
	return book.Snapshot(depth), true
}

func (b *Books) LevelsInFillOrder(symbol string, side domain.SideEnum) ([]domain.PriceLevel, bool) {
	book, ok := b.synchronized(symbol)
	if !ok {
		return nil, false
	}
	return book.LevelsInFillOrder(side), true
}

func (b *Books) State(symbol string) domain.BookStateEnum {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if entry, ok := b.entries[symbol]; ok {
		return entry.state
	}
	return domain.Uninitialized
}

// States lists every known symbol with its state.
func (b *Books) States() map[string]domain.BookStateEnum {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string]domain.BookStateEnum, len(b.entries))
	for symbol, entry := range b.entries {
		out[symbol] = entry.state
	}
	return out
}

func (b *Books) Symbols() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, 0, len(b.entries))
	for symbol := range b.entries {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}
