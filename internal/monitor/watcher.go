package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"crypto-orderbook-slippage/internal/domain"
	"crypto-orderbook-slippage/internal/platform/metrics"

	"github.com/gammazero/deque"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Estimator interface {
	ComputeForNotional(symbol string, side domain.SideEnum, notional decimal.Decimal) (domain.SlippageResult, error)
}

type WatcherConfig struct {
	Symbols     []string
	Side        domain.SideEnum
	Notional    decimal.Decimal
	Interval    time.Duration
	HistorySize int
}

// SlippageScheduledWatcher prices a fixed-notional market order against every
// symbol on each tick, keeps a short history per symbol and pushes each
// tick's samples to subscribers.
type SlippageScheduledWatcher struct {
	cfg            WatcherConfig
	estimator      Estimator
	alerter        *Alerter
	logger         *zap.Logger
	slippageLogger *zap.Logger

	mu          sync.RWMutex
	history     map[string]*deque.Deque[domain.SlippageSample]
	latest      []domain.SlippageSample
	subscribers map[int]chan []domain.SlippageSample
	nextID      int
}

func NewSlippageScheduledWatcher(cfg WatcherConfig, estimator Estimator, alerter *Alerter, logger, slippageLogger *zap.Logger) *SlippageScheduledWatcher {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 20
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	return &SlippageScheduledWatcher{
		cfg:            cfg,
		estimator:      estimator,
		alerter:        alerter,
		logger:         logger,
		slippageLogger: slippageLogger,
		history:        make(map[string]*deque.Deque[domain.SlippageSample]),
		subscribers:    make(map[int]chan []domain.SlippageSample),
	}
}

func (watcher *SlippageScheduledWatcher) Side() domain.SideEnum { return watcher.cfg.Side }

// Start blocks until ctx is done.
func (watcher *SlippageScheduledWatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(watcher.cfg.Interval)
	defer ticker.Stop()

	watcher.logger.Info("Start watching slippage every "+watcher.cfg.Interval.String(),
		zap.Strings("symbols", watcher.cfg.Symbols), zap.String("notional", watcher.cfg.Notional.String()))

	// Run immediately first time
	watcher.Tick(time.Now())

	// Then run on ticker
	for {
		select {
		case <-ctx.Done():
			watcher.logger.Info("Stop watching slippage")
			return
		case now := <-ticker.C:
			watcher.Tick(now)
		}
	}
}

// Tick samples every symbol once. Symbols whose book is not synchronized yet
// are skipped.
func (watcher *SlippageScheduledWatcher) Tick(now time.Time) []domain.SlippageSample {
	samples := make([]domain.SlippageSample, 0, len(watcher.cfg.Symbols))
	for _, symbol := range watcher.cfg.Symbols {
		sample, ok := watcher.sample(symbol, now)
		if ok {
			samples = append(samples, sample)
		}
	}

	watcher.mu.Lock()
	for _, sample := range samples {
		h, ok := watcher.history[sample.Symbol]
		if !ok {
			h = deque.New[domain.SlippageSample](watcher.cfg.HistorySize)
			watcher.history[sample.Symbol] = h
		}
		if h.Len() == watcher.cfg.HistorySize {
			h.PopFront()
		}
		h.PushBack(sample)
	}
	watcher.latest = samples
	for _, ch := range watcher.subscribers {
		select {
		case ch <- samples:
		default:
		}
	}
	watcher.mu.Unlock()

	if len(samples) > 0 {
		jsonBytes, err := json.Marshal(samples)
		if err != nil {
			watcher.logger.Error("Failed to marshal slippage samples: " + err.Error())
		} else {
			watcher.slippageLogger.Info(string(jsonBytes))
		}
	}
	return samples
}

func (watcher *SlippageScheduledWatcher) sample(symbol string, now time.Time) (domain.SlippageSample, bool) {
	side := watcher.cfg.Side
	sample := domain.SlippageSample{Symbol: symbol, Side: side, Notional: watcher.cfg.Notional, Time: now}

	result, err := watcher.estimator.ComputeForNotional(symbol, side, watcher.cfg.Notional)
	switch {
	case err == nil:
		sample.Result = &result
		metrics.SlippageFraction.WithLabelValues(symbol, side.String()).Set(result.SlippageFraction.InexactFloat64())
	case errors.Is(err, domain.ErrBookNotFound):
		watcher.logger.Debug("Book not ready", zap.String("symbol", symbol))
		return sample, false
	case errors.Is(err, domain.ErrInsufficientLiquidity):
		sample.Result = &result
		sample.Error = err.Error()
		metrics.InsufficientLiquidity.WithLabelValues(symbol, side.String()).Inc()
		watcher.logger.Warn("Insufficient liquidity", zap.String("symbol", symbol), zap.Error(err))
	default:
		sample.Error = err.Error()
		watcher.logger.Warn("Failed to compute slippage", zap.String("symbol", symbol), zap.Error(err))
	}

	if watcher.alerter != nil {
		watcher.alerter.Sample(sample)
	}
	return sample, true
}

// History returns up to HistorySize samples for symbol, oldest first.
func (watcher *SlippageScheduledWatcher) History(symbol string) []domain.SlippageSample {
	watcher.mu.RLock()
	defer watcher.mu.RUnlock()

	h, ok := watcher.history[symbol]
	if !ok {
		return []domain.SlippageSample{}
	}
	out := make([]domain.SlippageSample, 0, h.Len())
	for i := 0; i < h.Len(); i++ {
		out = append(out, h.At(i))
	}
	return out
}

func (watcher *SlippageScheduledWatcher) Latest() []domain.SlippageSample {
	watcher.mu.RLock()
	defer watcher.mu.RUnlock()

	return append([]domain.SlippageSample(nil), watcher.latest...)
}

// Subscribe returns a channel receiving every tick's samples. Slow readers
// miss ticks instead of stalling the watcher. Call the returned func to
// unsubscribe.
func (watcher *SlippageScheduledWatcher) Subscribe() (<-chan []domain.SlippageSample, func()) {
	watcher.mu.Lock()
	defer watcher.mu.Unlock()

	id := watcher.nextID
	watcher.nextID++
	ch := make(chan []domain.SlippageSample, 1)
	watcher.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			watcher.mu.Lock()
			delete(watcher.subscribers, id)
			watcher.mu.Unlock()
			close(ch)
		})
	}
}
