package database

import (
	"context"
	"sync"
	"time"

	"crypto-orderbook-slippage/internal/domain"
	"crypto-orderbook-slippage/internal/platform/metrics"

	"go.uber.org/zap"
)

const DefaultJournalBuffer = 256

// Journal writes feed events to the database from its own goroutine so
// feed loops never wait on disk. Events are dropped when the buffer is full.
type Journal struct {
	db     Service
	logger *zap.Logger
	events chan domain.FeedEvent

	closeOnce sync.Once
	done      chan struct{}
	mu        sync.RWMutex
	closed    bool
}

func NewJournal(db Service, logger *zap.Logger, buffer int) *Journal {
	if buffer <= 0 {
		buffer = DefaultJournalBuffer
	}
	j := &Journal{
		db:     db,
		logger: logger,
		events: make(chan domain.FeedEvent, buffer),
		done:   make(chan struct{}),
	}
	go j.run()
	return j
}

func (j *Journal) Record(event domain.FeedEvent) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return
	}

	select {
	case j.events <- event:
	default:
		metrics.JournalDroppedTotal.Inc()
		j.logger.Warn("Journal buffer full, dropping event", zap.String("kind", string(event.Kind)), zap.String("symbol", event.Symbol))
	}
}

func (j *Journal) Recent(ctx context.Context, limit int) ([]domain.FeedEvent, error) {
	return j.db.Recent(ctx, limit)
}

func (j *Journal) run() {
	defer close(j.done)
	for event := range j.events {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if _, err := j.db.InsertEvent(ctx, event); err != nil {
			j.logger.Error("Failed to write feed event", zap.Error(err))
		}
		cancel()
	}
}

// Close flushes queued events. It does not close the database.
func (j *Journal) Close() {
	j.closeOnce.Do(func() {
		j.mu.Lock()
		j.closed = true
		close(j.events)
		j.mu.Unlock()
	})
	<-j.done
}
