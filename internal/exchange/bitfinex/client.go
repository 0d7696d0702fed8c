package bitfinex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"crypto-orderbook-slippage/internal/domain"
	"crypto-orderbook-slippage/internal/feed"
	"crypto-orderbook-slippage/internal/platform/metrics"

	"github.com/coder/websocket"
	"github.com/jpillora/backoff"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	Endpoint      string
	Subscriptions []domain.Subscription
	// ReadTimeout bounds the wait for any frame, heartbeats included. Zero disables it.
	ReadTimeout   time.Duration
	MinBackoff    time.Duration
	MaxBackoff    time.Duration
	Factor        float64
	// MaxAttempts consecutive connections that never reach streaming give up the symbol. Zero retries forever.
	MaxAttempts   int
}

type ClientOption func(*BitfinexClient)

func WithRecorder(recorder feed.EventRecorder) ClientOption {
	return func(c *BitfinexClient) { c.recorder = recorder }
}

// BitfinexClient keeps one websocket connection per subscribed symbol and
// feeds every frame into the feed machine.
type BitfinexClient struct {
	cfg      Config
	machine  *feed.Machine
	recorder feed.EventRecorder
	logger   *zap.Logger

	mu     sync.RWMutex
	status map[string]*domain.ConnStatus
}

func NewClient(cfg Config, machine *feed.Machine, logger *zap.Logger, opts ...ClientOption) *BitfinexClient {
	if cfg.Endpoint == "" {
		cfg.Endpoint = bitfinexWebsocketUrl
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = time.Second
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = cfg.MinBackoff
	}
	if cfg.Factor < 1 {
		cfg.Factor = 2
	}

	c := &BitfinexClient{
		cfg:      cfg,
		machine:  machine,
		recorder: feed.Recorders{},
		logger:   logger,
		status:   make(map[string]*domain.ConnStatus),
	}
	for _, opt := range opts {
		opt(c)
	}
	for _, sub := range cfg.Subscriptions {
		c.status[sub.Symbol] = &domain.ConnStatus{Symbol: sub.Symbol, State: domain.Closed, Since: time.Now()}
	}

	logger.Info("Bitfinex client created", zap.String("endpoint", cfg.Endpoint), zap.Int("symbols", len(cfg.Subscriptions)))
	return c
}

// Run blocks until ctx is done. It fails with ErrConnection only when every
// symbol has given up reconnecting.
func (c *BitfinexClient) Run(ctx context.Context) error {
	if len(c.cfg.Subscriptions) == 0 {
		return fmt.Errorf("%w: no symbols to subscribe", domain.ErrConnection)
	}

	var g errgroup.Group
	var gaveUp atomic.Int32
	errs := make([]error, len(c.cfg.Subscriptions))
	for i, sub := range c.cfg.Subscriptions {
		g.Go(func() error {
			if err := c.runSymbol(ctx, sub); err != nil {
				errs[i] = err
				gaveUp.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	if int(gaveUp.Load()) == len(c.cfg.Subscriptions) {
		return errors.Join(errs...)
	}
	return nil
}

func (c *BitfinexClient) runSymbol(ctx context.Context, sub domain.Subscription) error {
	b := &backoff.Backoff{
		Min:    c.cfg.MinBackoff,
		Max:    c.cfg.MaxBackoff,
		Factor: c.cfg.Factor,
		Jitter: true,
	}
	failures := 0

	for {
		if ctx.Err() != nil {
			c.setState(sub.Symbol, domain.Closed, "", nil)
			return nil
		}

		c.setState(sub.Symbol, domain.Connecting, "", nil)
		streamed, err := c.stream(ctx, sub)
		metrics.WSConnected.WithLabelValues(sub.Symbol).Set(0)

		if ctx.Err() != nil {
			c.setState(sub.Symbol, domain.Closed, "", nil)
			c.logger.Info("Bitfinex feed stopped", zap.String("symbol", sub.Symbol))
			return nil
		}

		if streamed {
			failures = 0
			b.Reset()
		} else {
			failures++
		}
		if c.cfg.MaxAttempts > 0 && failures >= c.cfg.MaxAttempts {
			c.setState(sub.Symbol, domain.Closed, "", err)
			c.record(domain.FeedEvent{Kind: domain.EventConnectGiveUp, Symbol: sub.Symbol, Message: errString(err)})
			c.logger.Error("Giving up on symbol", zap.String("symbol", sub.Symbol), zap.Int("attempts", failures), zap.Error(err))
			return fmt.Errorf("%w: %s after %d attempts: %w", domain.ErrConnection, sub.Symbol, failures, err)
		}

		delay := b.Duration()
		reason := reconnectReason(err)
		metrics.WSReconnectsTotal.WithLabelValues(sub.Symbol, reason).Inc()
		c.setState(sub.Symbol, domain.Backoff, "", err)
		c.record(domain.FeedEvent{Kind: domain.EventReconnect, Symbol: sub.Symbol, Message: reason + ": " + errString(err)})
		c.logger.Warn("Bitfinex connection lost, reconnecting",
			zap.String("symbol", sub.Symbol), zap.Duration("delay", delay), zap.String("reason", reason), zap.Error(err))

		select {
		case <-ctx.Done():
			c.setState(sub.Symbol, domain.Closed, "", nil)
			return nil
		case <-time.After(delay):
		}
	}
}

// stream runs one connection until it fails. streamed reports whether the
// subscription was acknowledged on it.
func (c *BitfinexClient) stream(ctx context.Context, sub domain.Subscription) (streamed bool, err error) {
	dialCtx := ctx
	if c.cfg.ReadTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.cfg.ReadTimeout)
		defer cancel()
	}

	conn, _, err := websocket.Dial(dialCtx, c.cfg.Endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("%w: dial: %w", domain.ErrConnection, err)
	}
	conn.SetReadLimit(-1) //Disable read limit
	defer conn.Close(websocket.StatusNormalClosure, "")

	session := c.machine.NewSession()
	defer session.Close()

	c.setState(sub.Symbol, domain.Subscribing, session.ID(), nil)
	if err := c.subscribe(ctx, conn, sub); err != nil {
		return false, err
	}

	for {
		data, err := c.read(ctx, conn)
		if err != nil {
			return streamed, fmt.Errorf("%w: read: %w", domain.ErrConnection, err)
		}

		msg, err := Decode(data)
		if err != nil {
			c.logger.Warn("Failed to decode Bitfinex frame", zap.String("symbol", sub.Symbol), zap.Error(err))
			continue
		}

		err = session.Handle(msg)
		if event, ok := msg.(domain.EventMessage); ok && event.Event == "subscribed" && event.Symbol == sub.Symbol && err == nil {
			streamed = true
			metrics.WSConnected.WithLabelValues(sub.Symbol).Set(1)
			c.setState(sub.Symbol, domain.Streaming, session.ID(), nil)
		}
		if err == nil {
			continue
		}
		if errors.Is(err, domain.ErrResubscribeRequired) || errors.Is(err, domain.ErrSubscriptionRejected) {
			return streamed, err
		}
		c.logger.Warn("Dropped part of Bitfinex message", zap.String("symbol", sub.Symbol), zap.Error(err))
	}
}

func (c *BitfinexClient) subscribe(ctx context.Context, conn *websocket.Conn, sub domain.Subscription) error {
	request, err := json.Marshal(newSubscribeRequest(sub))
	if err != nil {
		return fmt.Errorf("failed to marshal subscribe request: %w", err)
	}

	c.logger.Info("Subscribing to Bitfinex book", zap.String("symbol", sub.Symbol), zap.String("prec", sub.Prec), zap.String("len", sub.Len))
	if err := conn.Write(ctx, websocket.MessageText, request); err != nil {
		return fmt.Errorf("%w: subscribe: %w", domain.ErrConnection, err)
	}
	return nil
}

func (c *BitfinexClient) read(ctx context.Context, conn *websocket.Conn) ([]byte, error) {
	for {
		readCtx, cancel := ctx, context.CancelFunc(func() {})
		if c.cfg.ReadTimeout > 0 {
			readCtx, cancel = context.WithTimeout(ctx, c.cfg.ReadTimeout)
		}
		messageType, data, err := conn.Read(readCtx)
		cancel()
		if err != nil {
			return nil, err
		}
		if messageType == websocket.MessageText {
			return data, nil
		}
		c.logger.Warn("Received non-text frame from Bitfinex", zap.Int("type", int(messageType)))
	}
}

// Status lists every symbol's connection state, sorted by symbol.
func (c *BitfinexClient) Status() []domain.ConnStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]domain.ConnStatus, 0, len(c.status))
	for _, s := range c.status {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (c *BitfinexClient) setState(symbol string, state domain.ConnStateEnum, sessionID string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.status[symbol]
	if !ok {
		s = &domain.ConnStatus{Symbol: symbol}
		c.status[symbol] = s
	}
	switch state {
	case domain.Connecting:
		s.Attempts++
	case domain.Streaming:
		s.Attempts = 0
	case domain.Backoff:
		s.Reconnects++
	}
	if sessionID != "" {
		s.SessionID = sessionID
	}
	if err != nil {
		s.LastError = err.Error()
	}
	s.State = state
	s.Since = time.Now()
}

func (c *BitfinexClient) record(event domain.FeedEvent) {
	event.CreatedAt = time.Now()
	c.recorder.Record(event)
}

func reconnectReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrResubscribeRequired):
		return "resubscribe"
	case errors.Is(err, domain.ErrSubscriptionRejected):
		return "rejected"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "disconnect"
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
