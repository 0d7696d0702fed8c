package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"crypto-orderbook-slippage/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInsertAndRecent(t *testing.T) {
	db := newTestService(t)
	ctx := context.Background()

	created := time.UnixMilli(1700000000000)
	for i, kind := range []domain.FeedEventKind{domain.EventSubscribed, domain.EventInfo, domain.EventReconnect} {
		_, err := db.InsertEvent(ctx, domain.FeedEvent{
			SessionID: "s1",
			Symbol:    "tBTCUSD",
			ChannelID: 7,
			Kind:      kind,
			Code:      20051 + i,
			Message:   string(kind),
			CreatedAt: created,
		})
		require.NoError(t, err)
	}

	events, err := db.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventReconnect, events[0].Kind)
	assert.Equal(t, domain.EventInfo, events[1].Kind)
	assert.Equal(t, 20052, events[1].Code)
	assert.Equal(t, int64(7), events[0].ChannelID)
	assert.True(t, created.Equal(events[0].CreatedAt))
}

func TestHealth(t *testing.T) {
	db := newTestService(t)
	stats := db.Health()
	assert.Equal(t, "up", stats["status"])
}

func TestJournalFlushesOnClose(t *testing.T) {
	db := newTestService(t)
	journal := NewJournal(db, zap.NewNop(), 16)

	for i := 0; i < 10; i++ {
		journal.Record(domain.FeedEvent{Kind: domain.EventInfo, Code: i})
	}
	journal.Close()
	journal.Record(domain.FeedEvent{Kind: domain.EventError})

	events, err := journal.Recent(context.Background(), 100)
	require.NoError(t, err)
	assert.Len(t, events, 10)
	assert.Equal(t, 9, events[0].Code)
}
