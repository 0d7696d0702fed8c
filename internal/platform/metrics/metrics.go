package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	BookUpdatesTotal      = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "book_updates_total", Help: "Applied book messages by symbol and kind"}, []string{"symbol", "kind"})
	BookRebuildsTotal     = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "book_rebuilds_total", Help: "Snapshots that replaced a synchronized book"}, []string{"symbol"})
	BookLevels            = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "book_levels", Help: "Resting levels by symbol and side"}, []string{"symbol", "side"})
	MalformedEntriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "malformed_entries_total", Help: "Skipped book entries"}, []string{"symbol"})
	CrossedLevelsTotal    = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "crossed_levels_total", Help: "Levels moved between sides"}, []string{"symbol"})
	OrderingErrorsTotal   = prometheus.NewCounter(prometheus.CounterOpts{Name: "ordering_errors_total", Help: "Data messages dropped for protocol ordering"})
	InfoEventsTotal       = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "info_events_total", Help: "Info events by code"}, []string{"code"})

	WSReconnectsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ws_reconnects_total", Help: "WS reconnects by symbol and reason"}, []string{"symbol", "reason"})
	WSConnected       = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "ws_connected", Help: "1 while a symbol is streaming"}, []string{"symbol"})

	SlippageFraction      = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "slippage_fraction", Help: "Last computed slippage fraction"}, []string{"symbol", "side"})
	InsufficientLiquidity = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "insufficient_liquidity_total", Help: "Samples that exhausted the book"}, []string{"symbol", "side"})
	JournalDroppedTotal   = prometheus.NewCounter(prometheus.CounterOpts{Name: "journal_dropped_total", Help: "Feed events dropped because the journal buffer was full"})
)

func Init(logger *zap.Logger) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	toRegister := []prometheus.Collector{
		BookUpdatesTotal, BookRebuildsTotal, BookLevels, MalformedEntriesTotal, CrossedLevelsTotal,
		OrderingErrorsTotal, InfoEventsTotal,
		WSReconnectsTotal, WSConnected,
		SlippageFraction, InsufficientLiquidity, JournalDroppedTotal,
		collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}
	register(reg, logger, toRegister...)
	logger.Info("Prometheus metrics initialized")
	return reg
}

// register logs collectors the registry refuses and returns how many it refused.
func register(reg prometheus.Registerer, logger *zap.Logger, toRegister ...prometheus.Collector) int {
	failed := 0
	for _, c := range toRegister {
		if err := reg.Register(c); err != nil {
			failed++
			logger.Error("Failed to register prometheus collector", zap.Error(err))
		}
	}
	return failed
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
