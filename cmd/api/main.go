package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crypto-orderbook-slippage/internal/database"
	"crypto-orderbook-slippage/internal/exchange/bitfinex"
	"crypto-orderbook-slippage/internal/feed"
	"crypto-orderbook-slippage/internal/monitor"
	"crypto-orderbook-slippage/internal/platform/config"
	"crypto-orderbook-slippage/internal/platform/logger"
	"crypto-orderbook-slippage/internal/platform/metrics"
	"crypto-orderbook-slippage/internal/server"
	"crypto-orderbook-slippage/internal/slippage"

	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"
)

// feedStatus joins connection state from the client with the exchange
// maintenance flag from the machine.
type feedStatus struct {
	*bitfinex.BitfinexClient
	*feed.Machine
}

func gracefulShutdown(ctx context.Context, fiberServer *server.FiberServer, done chan bool) {
	// Listen for the interrupt signal.
	<-ctx.Done()

	Logger := logger.Get()
	Logger.Info("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fiberServer.ShutdownWithContext(ctx); err != nil {
		Logger.Error("Server forced to shutdown with error", zap.Error(err))
	}

	Logger.Info("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {
	cfg := config.GetConfig()
	Logger := logger.Get()
	defer logger.Sync()

	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	registry := metrics.Init(Logger)

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		Logger.Fatal("Failed to open event database", zap.Error(err))
	}
	defer db.Close()

	journal := database.NewJournal(db, Logger, cfg.Database.JournalBuffer)
	alerter := monitor.NewAlerter(cfg.Discord.WebhookUrl, cfg.Discord.AlertInterval.Duration, cfg.Slippage.AlertFraction, Logger)
	recorder := feed.Recorders{journal, alerter}

	books := feed.NewBooks()
	machine := feed.NewMachine(books, Logger,
		feed.WithRecorder(recorder),
		feed.WithStateLogger(logger.GetStateLogger()),
		feed.WithOrderingErrorThreshold(cfg.Feed.OrderingErrorThreshold),
	)

	subscriptions := cfg.Subscriptions()
	symbols := make([]string, 0, len(subscriptions))
	for _, sub := range subscriptions {
		symbols = append(symbols, sub.Symbol)
	}

	client := bitfinex.NewClient(bitfinex.Config{
		Endpoint:      cfg.Feed.Endpoint,
		Subscriptions: subscriptions,
		ReadTimeout:   cfg.Feed.ReadTimeout.Duration,
		MinBackoff:    cfg.Reconnect.MinBackoff.Duration,
		MaxBackoff:    cfg.Reconnect.MaxBackoff.Duration,
		Factor:        cfg.Reconnect.Factor,
		MaxAttempts:   cfg.Reconnect.MaxAttempts,
	}, machine, Logger, bitfinex.WithRecorder(recorder))

	estimator := slippage.NewEstimator(books)
	watcher := monitor.NewSlippageScheduledWatcher(monitor.WatcherConfig{
		Symbols:     symbols,
		Side:        cfg.Slippage.Side,
		Notional:    cfg.Slippage.Notional,
		Interval:    cfg.Slippage.Interval.Duration,
		HistorySize: cfg.Slippage.HistorySize,
	}, estimator, alerter, Logger, logger.GetSlippageLogger())

	fiberServer := server.New(server.Deps{
		Symbols:   symbols,
		Books:     books,
		Estimator: estimator,
		Watcher:   watcher,
		Feed:      feedStatus{client, machine},
		Events:    journal,
		DB:        db,
		Registry:  registry,
		Logger:    Logger,
	})
	fiberServer.RegisterFiberRoutes()

	feedDone := make(chan error, 1)
	go func() {
		err := client.Run(ctx)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		if err != nil {
			Logger.Error("Feed stopped", zap.Error(err))
			cancel()
		}
		feedDone <- err
	}()

	go watcher.Start(ctx)

	go func() {
		err := fiberServer.Listen(fmt.Sprintf(":%d", cfg.Server.Port))
		if err != nil {
			Logger.Error("http server error", zap.Error(err))
			cancel()
		}
	}()

	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(ctx, fiberServer, done)

	// Wait for the graceful shutdown to complete
	<-done
	feedErr := <-feedDone

	journal.Close()
	alerter.Wait()
	Logger.Info("Graceful shutdown complete.")

	if feedErr != nil {
		db.Close()
		logger.Sync()
		os.Exit(1)
	}
}
