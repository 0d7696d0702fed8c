package feed

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"crypto-orderbook-slippage/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

const symbol = "tBTCUSD"

type memoryRecorder struct {
	mu     sync.Mutex
	events []domain.FeedEvent
}

func (r *memoryRecorder) Record(event domain.FeedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *memoryRecorder) kinds() []domain.FeedEventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.FeedEventKind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

func triple(price, count, amount string) []any {
	return []any{json.Number(price), json.Number(count), json.Number(amount)}
}

func subscribed(chanID int64, sym string) domain.EventMessage {
	return domain.EventMessage{Event: "subscribed", Channel: "book", ChannelID: chanID, Symbol: sym, Platform: -1}
}

func snapshot(chanID int64, entries ...[]any) domain.DataMessage {
	raw := make([]any, 0, len(entries))
	for _, e := range entries {
		raw = append(raw, e)
	}
	return domain.DataMessage{ChannelID: chanID, Snapshot: true, Entries: raw}
}

func update(chanID int64, entry any) domain.DataMessage {
	return domain.DataMessage{ChannelID: chanID, Entries: []any{entry}}
}

func newMachine(t *testing.T, opts ...Option) (*Machine, *memoryRecorder) {
	recorder := &memoryRecorder{}
	opts = append([]Option{WithRecorder(recorder)}, opts...)
	return NewMachine(NewBooks(), zaptest.NewLogger(t), opts...), recorder
}

func volumes(levels []domain.PriceLevel) map[string]string {
	out := make(map[string]string, len(levels))
	for _, l := range levels {
		out[l.Price.String()] = l.Volume.String()
	}
	return out
}

func TestSnapshotThenDeleteBid(t *testing.T) {
	m, _ := newMachine(t)
	s := m.NewSession()

	require.NoError(t, s.Handle(subscribed(17, symbol)))
	assert.Equal(t, domain.Subscribed, m.Books().State(symbol))
	_, ok := m.Books().Get(symbol, 0)
	assert.False(t, ok, "subscribed book is not visible before its snapshot")

	require.NoError(t, s.Handle(snapshot(17, triple("100", "1", "1"), triple("101", "1", "-1"))))
	book, ok := m.Books().Get(symbol, 0)
	require.True(t, ok)
	assert.Equal(t, map[string]string{"100": "1"}, volumes(book.Bids))
	assert.Equal(t, map[string]string{"101": "1"}, volumes(book.Asks))
	assert.Equal(t, domain.Synchronized, m.Books().State(symbol))

	require.NoError(t, s.Handle(update(17, triple("100", "0", "1"))))
	book, _ = m.Books().Get(symbol, 0)
	assert.Empty(t, book.Bids)
	assert.Len(t, book.Asks, 1)
}

func TestDeleteAskUsesNegativeFlag(t *testing.T) {
	m, _ := newMachine(t)
	s := m.NewSession()
	require.NoError(t, s.Handle(subscribed(1, symbol)))
	require.NoError(t, s.Handle(snapshot(1, triple("100", "1", "1"), triple("101", "1", "-1"))))

	require.NoError(t, s.Handle(update(1, triple("101", "0", "-1"))))
	book, _ := m.Books().Get(symbol, 0)
	assert.Empty(t, book.Asks)
	assert.Len(t, book.Bids, 1)

	// repeated deletion is a no-op
	require.NoError(t, s.Handle(update(1, triple("101", "0", "-1"))))
	again, _ := m.Books().Get(symbol, 0)
	assert.Equal(t, book.Bids, again.Bids)
	assert.Empty(t, again.Asks)
}

func TestUpdateStoresAbsoluteVolume(t *testing.T) {
	m, _ := newMachine(t)
	s := m.NewSession()
	require.NoError(t, s.Handle(subscribed(1, symbol)))
	require.NoError(t, s.Handle(snapshot(1)))

	require.NoError(t, s.Handle(update(1, triple("102.5", "3", "-0.75"))))
	require.NoError(t, s.Handle(update(1, []any{99.5, 2.0, 1.25})))

	book, _ := m.Books().Get(symbol, 0)
	assert.Equal(t, map[string]string{"102.5": "0.75"}, volumes(book.Asks))
	assert.Equal(t, map[string]string{"99.5": "1.25"}, volumes(book.Bids))
}

func TestDataOnUnknownChannel(t *testing.T) {
	m, _ := newMachine(t)
	s := m.NewSession()

	err := s.Handle(update(99, triple("100", "1", "1")))
	var orderingErr *domain.ProtocolOrderingError
	require.True(t, errors.As(err, &orderingErr))
	assert.Equal(t, int64(99), orderingErr.ChannelID)
	assert.Empty(t, m.Books().Symbols())
}

func TestUpdateBeforeSnapshotIsDropped(t *testing.T) {
	m, _ := newMachine(t)
	s := m.NewSession()
	require.NoError(t, s.Handle(subscribed(5, symbol)))

	err := s.Handle(update(5, triple("100", "1", "1")))
	assert.ErrorIs(t, err, domain.ErrProtocolOrdering)
	assert.Equal(t, domain.Subscribed, m.Books().State(symbol))

	require.NoError(t, s.Handle(snapshot(5, triple("101", "1", "-1"))))
	book, ok := m.Books().Get(symbol, 0)
	require.True(t, ok)
	assert.Empty(t, book.Bids)
}

func TestHeartbeatLeavesBookAlone(t *testing.T) {
	m, _ := newMachine(t)
	s := m.NewSession()
	require.NoError(t, s.Handle(subscribed(5, symbol)))
	require.NoError(t, s.Handle(domain.DataMessage{ChannelID: 5, Heartbeat: true}))
	assert.Equal(t, domain.Subscribed, m.Books().State(symbol))

	assert.ErrorIs(t, s.Handle(domain.DataMessage{ChannelID: 6, Heartbeat: true}), domain.ErrProtocolOrdering)
}

func TestRepeatedOrderingErrorsRequireResubscribe(t *testing.T) {
	m, recorder := newMachine(t, WithOrderingErrorThreshold(3))
	s := m.NewSession()
	require.NoError(t, s.Handle(subscribed(5, symbol)))

	for i := 0; i < 2; i++ {
		err := s.Handle(update(5, triple("100", "1", "1")))
		require.ErrorIs(t, err, domain.ErrProtocolOrdering)
		require.NotErrorIs(t, err, domain.ErrResubscribeRequired)
	}
	err := s.Handle(update(5, triple("100", "1", "1")))
	assert.ErrorIs(t, err, domain.ErrResubscribeRequired)
	assert.ErrorIs(t, err, domain.ErrProtocolOrdering)
	assert.Contains(t, recorder.kinds(), domain.EventResubscribe)
}

func TestMalformedEntriesAreSkipped(t *testing.T) {
	m, _ := newMachine(t)
	s := m.NewSession()
	require.NoError(t, s.Handle(subscribed(1, symbol)))

	err := s.Handle(snapshot(1,
		triple("100", "1", "1"),
		[]any{json.Number("101"), json.Number("1")},
		[]any{"abc", json.Number("1"), json.Number("1")},
		triple("102", "1", "0"),
		triple("103", "2", "-4"),
	))
	require.Error(t, err)

	var malformed *domain.MalformedUpdateError
	require.True(t, errors.As(err, &malformed))
	assert.Equal(t, 1, malformed.Index)

	book, ok := m.Books().Get(symbol, 0)
	require.True(t, ok)
	assert.Equal(t, map[string]string{"100": "1"}, volumes(book.Bids))
	assert.Equal(t, map[string]string{"103": "4"}, volumes(book.Asks))

	assert.ErrorIs(t, s.Handle(update(1, "not a triple")), domain.ErrMalformedUpdate)
}

func TestSnapshotOnSynchronizedBookReplacesIt(t *testing.T) {
	m, _ := newMachine(t)
	s := m.NewSession()
	require.NoError(t, s.Handle(subscribed(1, symbol)))
	require.NoError(t, s.Handle(snapshot(1, triple("100", "1", "1"), triple("101", "1", "-1"))))

	require.NoError(t, s.Handle(snapshot(1, triple("200", "1", "-2"))))
	book, _ := m.Books().Get(symbol, 0)
	assert.Empty(t, book.Bids)
	assert.Equal(t, map[string]string{"200": "2"}, volumes(book.Asks))
}

func TestCrossedLevelIsReported(t *testing.T) {
	m, _ := newMachine(t)
	s := m.NewSession()
	require.NoError(t, s.Handle(subscribed(1, symbol)))
	require.NoError(t, s.Handle(snapshot(1, triple("100", "1", "1"))))

	err := s.Handle(update(1, triple("100", "1", "-3")))
	assert.ErrorIs(t, err, domain.ErrCrossedLevel)

	book, _ := m.Books().Get(symbol, 0)
	assert.Empty(t, book.Bids)
	assert.Equal(t, map[string]string{"100": "3"}, volumes(book.Asks))
}

func TestInfoEventsTrackMaintenance(t *testing.T) {
	m, recorder := newMachine(t)
	s := m.NewSession()

	require.NoError(t, s.Handle(domain.EventMessage{Event: "info", Version: 2, Platform: 0}))
	assert.True(t, m.Maintenance())

	require.NoError(t, s.Handle(domain.EventMessage{Event: "info", Version: 2, Platform: 1}))
	assert.False(t, m.Maintenance())

	require.NoError(t, s.Handle(domain.EventMessage{Event: "info", Code: domain.InfoMaintenanceStart, HasCode: true, Platform: -1}))
	assert.True(t, m.Maintenance())

	require.NoError(t, s.Handle(domain.EventMessage{Event: "info", Code: domain.InfoMaintenanceEnd, HasCode: true, Platform: -1}))
	assert.False(t, m.Maintenance())

	require.NoError(t, s.Handle(domain.EventMessage{Event: "info", Code: domain.InfoReconnect, HasCode: true, Platform: -1}))
	assert.Len(t, recorder.kinds(), 5)
}

func TestErrorEventRejectsSubscription(t *testing.T) {
	m, recorder := newMachine(t)
	s := m.NewSession()

	err := s.Handle(domain.EventMessage{Event: "error", Msg: "symbol: invalid", Code: 10300, Platform: -1})
	assert.ErrorIs(t, err, domain.ErrSubscriptionRejected)
	assert.Equal(t, []domain.FeedEventKind{domain.EventError}, recorder.kinds())

	assert.NoError(t, s.Handle(domain.EventMessage{Event: "pong", Platform: -1}))
}

func TestRegistryRejectsReusedChannel(t *testing.T) {
	m, _ := newMachine(t)
	s := m.NewSession()
	require.NoError(t, s.Handle(subscribed(1, symbol)))
	assert.ErrorIs(t, s.Handle(subscribed(1, "tETHUSD")), domain.ErrChannelRegistered)
}

func TestRepeatedSubscribedKeepsBook(t *testing.T) {
	m, recorder := newMachine(t)
	s := m.NewSession()
	require.NoError(t, s.Handle(subscribed(1, symbol)))
	require.NoError(t, s.Handle(snapshot(1, triple("100", "1", "1"), triple("101", "1", "-1"))))

	require.NoError(t, s.Handle(subscribed(1, symbol)))

	assert.Equal(t, domain.Synchronized, m.Books().State(symbol))
	book, ok := m.Books().Get(symbol, 0)
	require.True(t, ok)
	assert.Equal(t, map[string]string{"100": "1"}, volumes(book.Bids))
	assert.Equal(t, map[string]string{"101": "1"}, volumes(book.Asks))
	assert.Equal(t, []domain.FeedEventKind{domain.EventSubscribed}, recorder.kinds())

	require.NoError(t, s.Handle(update(1, triple("102", "1", "-2"))))
}

func TestSnapshotSkipsMalformedFirstEntry(t *testing.T) {
	m, _ := newMachine(t)
	s := m.NewSession()
	require.NoError(t, s.Handle(subscribed(1, symbol)))

	err := s.Handle(domain.DataMessage{ChannelID: 1, Snapshot: true, Entries: []any{
		nil,
		triple("100", "1", "1"),
		triple("101", "1", "-1"),
	}})
	assert.ErrorIs(t, err, domain.ErrMalformedUpdate)
	assert.NotErrorIs(t, err, domain.ErrProtocolOrdering)

	book, ok := m.Books().Get(symbol, 0)
	require.True(t, ok)
	assert.Equal(t, map[string]string{"100": "1"}, volumes(book.Bids))
	assert.Equal(t, map[string]string{"101": "1"}, volumes(book.Asks))
}

func TestCloseDetachesOnlyOwnBooks(t *testing.T) {
	m := NewMachine(NewBooks(), zap.NewNop())
	first := m.NewSession()
	require.NoError(t, first.Handle(subscribed(1, symbol)))
	require.NoError(t, first.Handle(snapshot(1, triple("100", "1", "1"))))
	require.NoError(t, first.Handle(subscribed(2, "tETHUSD")))
	require.NoError(t, first.Handle(snapshot(2, triple("10", "1", "1"))))

	second := m.NewSession()
	require.NoError(t, second.Handle(subscribed(7, symbol)))
	require.NoError(t, second.Handle(snapshot(7, triple("300", "1", "-1"))))

	first.Close()

	book, ok := m.Books().Get(symbol, 0)
	require.True(t, ok, "the newer session keeps its book")
	assert.True(t, book.Asks[0].Price.Equal(decimal.NewFromInt(300)))

	_, ok = m.Books().Get("tETHUSD", 0)
	assert.False(t, ok)
	assert.Equal(t, domain.Uninitialized, m.Books().State("tETHUSD"))

	assert.ErrorIs(t, first.Handle(update(1, triple("100", "1", "1"))), domain.ErrProtocolOrdering)
}

func TestOneSymbolErrorsDoNotTouchOthers(t *testing.T) {
	m, _ := newMachine(t)
	s := m.NewSession()
	require.NoError(t, s.Handle(subscribed(1, symbol)))
	require.NoError(t, s.Handle(snapshot(1, triple("100", "1", "1"))))
	require.NoError(t, s.Handle(subscribed(2, "tETHUSD")))

	assert.Error(t, s.Handle(update(2, triple("10", "1", "1"))))
	assert.Error(t, s.Handle(update(1, []any{"bad"})))

	book, ok := m.Books().Get(symbol, 0)
	require.True(t, ok)
	assert.Len(t, book.Bids, 1)
}
