package feed

import (
	"fmt"
	"sync"

	"crypto-orderbook-slippage/internal/domain"
)

// Registry maps the channel ids assigned on one connection to their symbols.
// Entries are only added; a new connection starts with a new Registry.
type Registry struct {
	mu       sync.RWMutex
	channels map[int64]string
}

func NewRegistry() *Registry {
	return &Registry{channels: make(map[int64]string)}
}

// Register records an acknowledgement. Repeating the same pair is harmless,
// reusing an id for another symbol is not.
func (r *Registry) Register(channelID int64, symbol string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.channels[channelID]; ok {
		if existing == symbol {
			return nil
		}
		return fmt.Errorf("%w: channel %d is %s, not %s", domain.ErrChannelRegistered, channelID, existing, symbol)
	}
	r.channels[channelID] = symbol
	return nil
}

func (r *Registry) Lookup(channelID int64) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	symbol, ok := r.channels[channelID]
	return symbol, ok
}

func (r *Registry) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.channels))
	for _, symbol := range r.channels {
		out = append(out, symbol)
	}
	return out
}
