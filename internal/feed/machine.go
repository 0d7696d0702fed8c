package feed

import (
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"crypto-orderbook-slippage/internal/domain"
	"crypto-orderbook-slippage/internal/orderbook"
	"crypto-orderbook-slippage/internal/platform/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultOrderingErrorThreshold = 10

// EventRecorder receives lifecycle events. Record must not block.
type EventRecorder interface {
	Record(event domain.FeedEvent)
}

// Recorders fans one event out to several recorders.
type Recorders []EventRecorder

func (rs Recorders) Record(event domain.FeedEvent) {
	for _, r := range rs {
		r.Record(event)
	}
}

type Option func(*Machine)

func WithRecorder(recorder EventRecorder) Option {
	return func(m *Machine) { m.recorder = recorder }
}

func WithStateLogger(logger *zap.Logger) Option {
	return func(m *Machine) { m.stateLogger = logger }
}

func WithOrderingErrorThreshold(n int) Option {
	return func(m *Machine) {
		if n > 0 {
			m.orderingErrorThreshold = n
		}
	}
}

// Machine turns decoded feed messages into book mutations. It owns the write
// side of Books; every connection gets its own Session.
type Machine struct {
	books                  *Books
	logger                 *zap.Logger
	stateLogger            *zap.Logger
	recorder               EventRecorder
	orderingErrorThreshold int
	maintenance            atomic.Bool
}

func NewMachine(books *Books, logger *zap.Logger, opts ...Option) *Machine {
	m := &Machine{
		books:                  books,
		logger:                 logger,
		stateLogger:            zap.NewNop(),
		recorder:               Recorders{},
		orderingErrorThreshold: DefaultOrderingErrorThreshold,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Machine) Books() *Books { return m.books }

// Maintenance reports whether the exchange last announced a maintenance window.
func (m *Machine) Maintenance() bool { return m.maintenance.Load() }

func (m *Machine) NewSession() *Session {
	return &Session{
		id:             uuid.NewString(),
		machine:        m,
		registry:       NewRegistry(),
		orderingErrors: make(map[int64]int),
	}
}

// Session is the state of one connection. It is driven by a single
// goroutine; only the books it writes are shared.
type Session struct {
	id             string
	machine        *Machine
	registry       *Registry
	orderingErrors map[int64]int
}

func (s *Session) ID() string { return s.id }

// Handle applies one message. Errors about single entries or single messages
// are returned for logging and leave the session usable, except
// ErrResubscribeRequired and ErrSubscriptionRejected which end it.
func (s *Session) Handle(msg domain.Message) error {
	switch msg := msg.(type) {
	case domain.EventMessage:
		return s.handleEvent(msg)
	case domain.DataMessage:
		return s.handleData(msg)
	default:
		return fmt.Errorf("unsupported message %T", msg)
	}
}

// Close releases every book this session still owns.
func (s *Session) Close() {
	for _, symbol := range s.registry.Symbols() {
		if s.machine.books.detach(symbol, s.id) {
			metrics.BookLevels.DeleteLabelValues(symbol, domain.Bid.String())
			metrics.BookLevels.DeleteLabelValues(symbol, domain.Ask.String())
			s.machine.logger.Info("Book detached", zap.String("symbol", symbol), zap.String("session", s.id))
		}
	}
}

func (s *Session) handleEvent(msg domain.EventMessage) error {
	logger := s.machine.logger

	switch msg.Event {
	case "subscribed":
		if msg.Channel != "" && msg.Channel != "book" {
			return nil
		}
		existing, known := s.registry.Lookup(msg.ChannelID)
		if err := s.registry.Register(msg.ChannelID, msg.Symbol); err != nil {
			return err
		}
		if known && existing == msg.Symbol {
			if _, _, owned := s.machine.books.owned(msg.Symbol, s.id); owned {
				logger.Debug("Repeated subscription ack", zap.String("symbol", msg.Symbol), zap.Int64("chanId", msg.ChannelID))
				return nil
			}
		}
		s.machine.books.attach(msg.Symbol, s.id)
		s.orderingErrors[msg.ChannelID] = 0
		s.record(domain.FeedEvent{Kind: domain.EventSubscribed, Symbol: msg.Symbol, ChannelID: msg.ChannelID})
		logger.Info("Subscribed to book channel", zap.String("symbol", msg.Symbol), zap.Int64("chanId", msg.ChannelID))

	case "info":
		s.handleInfo(msg)

	case "error":
		s.record(domain.FeedEvent{Kind: domain.EventError, Symbol: msg.Symbol, Code: msg.Code, Message: msg.Msg})
		return fmt.Errorf("%w: %s (code %d)", domain.ErrSubscriptionRejected, msg.Msg, msg.Code)

	default:
		logger.Debug("Ignoring event", zap.String("event", msg.Event))
	}
	return nil
}

func (s *Session) handleInfo(msg domain.EventMessage) {
	logger := s.machine.logger

	if msg.Version != 0 {
		maintenance := msg.Platform == domain.PlatformMaintenance
		s.machine.maintenance.Store(maintenance)
		s.record(domain.FeedEvent{Kind: domain.EventInfo, Code: msg.Platform, Message: "version " + strconv.Itoa(msg.Version)})
		logger.Info("Connected to feed", zap.Int("version", msg.Version), zap.Bool("maintenance", maintenance))
	}
	if !msg.HasCode {
		return
	}

	metrics.InfoEventsTotal.WithLabelValues(strconv.Itoa(msg.Code)).Inc()
	s.record(domain.FeedEvent{Kind: domain.EventInfo, Code: msg.Code, Message: msg.Msg})

	switch msg.Code {
	case domain.InfoReconnect:
		logger.Warn("Exchange asked clients to reconnect", zap.String("msg", msg.Msg))
	case domain.InfoMaintenanceStart:
		s.machine.maintenance.Store(true)
		logger.Warn("Exchange maintenance started", zap.String("msg", msg.Msg))
	case domain.InfoMaintenanceEnd:
		s.machine.maintenance.Store(false)
		logger.Info("Exchange maintenance ended", zap.String("msg", msg.Msg))
	default:
		logger.Info("Info event", zap.Int("code", msg.Code), zap.String("msg", msg.Msg))
	}
}

func (s *Session) handleData(msg domain.DataMessage) error {
	symbol, ok := s.registry.Lookup(msg.ChannelID)
	if !ok {
		return s.orderingError(msg.ChannelID, "", "unknown channel")
	}
	if msg.Heartbeat {
		return nil
	}

	book, state, ok := s.machine.books.owned(symbol, s.id)
	if !ok {
		return s.orderingError(msg.ChannelID, symbol, "book is not attached to this connection")
	}
	if !msg.Snapshot && state != domain.Synchronized {
		return s.orderingError(msg.ChannelID, symbol, "update before snapshot")
	}
	s.orderingErrors[msg.ChannelID] = 0

	changes, parseErr := parseEntries(msg.Entries)
	if skipped := len(msg.Entries) - len(changes); skipped > 0 {
		metrics.MalformedEntriesTotal.WithLabelValues(symbol).Add(float64(skipped))
	}

	var applyErr error
	if msg.Snapshot {
		applyErr = book.Replace(changes)
		s.synchronized(symbol, book, state)
	} else {
		applyErr = book.ApplyBatch(changes)
		metrics.BookUpdatesTotal.WithLabelValues(symbol, "update").Inc()
	}
	if crossed := countMatching(applyErr, domain.ErrCrossedLevel); crossed > 0 {
		metrics.CrossedLevelsTotal.WithLabelValues(symbol).Add(float64(crossed))
	}
	metrics.BookLevels.WithLabelValues(symbol, domain.Bid.String()).Set(float64(book.Len(domain.Bid)))
	metrics.BookLevels.WithLabelValues(symbol, domain.Ask.String()).Set(float64(book.Len(domain.Ask)))

	return errors.Join(parseErr, applyErr)
}

func (s *Session) synchronized(symbol string, book *orderbook.OrderBook, previous domain.BookStateEnum) {
	metrics.BookUpdatesTotal.WithLabelValues(symbol, "snapshot").Inc()
	if previous == domain.Synchronized {
		metrics.BookRebuildsTotal.WithLabelValues(symbol).Inc()
		s.machine.logger.Info("Book rebuilt from snapshot", zap.String("symbol", symbol))
	} else {
		s.machine.books.markSynchronized(symbol, s.id)
		s.machine.logger.Info("Book synchronized", zap.String("symbol", symbol),
			zap.Int("bids", book.Len(domain.Bid)), zap.Int("asks", book.Len(domain.Ask)))
	}
	s.machine.stateLogger.Info("Current internal state for "+symbol, zap.Any("book", book.Snapshot(0)))
}

func (s *Session) orderingError(channelID int64, symbol, reason string) error {
	metrics.OrderingErrorsTotal.Inc()
	s.orderingErrors[channelID]++

	err := &domain.ProtocolOrderingError{ChannelID: channelID, Symbol: symbol, Reason: reason}
	if s.orderingErrors[channelID] >= s.machine.orderingErrorThreshold {
		s.orderingErrors[channelID] = 0
		s.record(domain.FeedEvent{Kind: domain.EventResubscribe, Symbol: symbol, ChannelID: channelID, Message: reason})
		return fmt.Errorf("%w: %w", domain.ErrResubscribeRequired, err)
	}
	return err
}

func (s *Session) record(event domain.FeedEvent) {
	event.SessionID = s.id
	event.CreatedAt = time.Now()
	s.machine.recorder.Record(event)
}

func countMatching(err, target error) int {
	if err == nil {
		return 0
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		n := 0
		for _, e := range joined.Unwrap() {
			n += countMatching(e, target)
		}
		return n
	}
	if errors.Is(err, target) {
		return 1
	}
	return 0
}
