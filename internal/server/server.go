package server

import (
	"context"

	"crypto-orderbook-slippage/internal/database"
	"crypto-orderbook-slippage/internal/domain"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type BookReader interface {
	Get(symbol string, depth int) (domain.OrderBook, bool)
	States() map[string]domain.BookStateEnum
}

type SlippageEstimator interface {
	ComputeSlippage(symbol string, side domain.SideEnum, volume decimal.Decimal) (domain.SlippageResult, error)
	ComputeForNotional(symbol string, side domain.SideEnum, notional decimal.Decimal) (domain.SlippageResult, error)
}

type SlippageWatcher interface {
	Side() domain.SideEnum
	History(symbol string) []domain.SlippageSample
	Latest() []domain.SlippageSample
	Subscribe() (<-chan []domain.SlippageSample, func())
}

type FeedStatus interface {
	Status() []domain.ConnStatus
	Maintenance() bool
}

type EventReader interface {
	Recent(ctx context.Context, limit int) ([]domain.FeedEvent, error)
}

type Deps struct {
	Symbols   []string
	Books     BookReader
	Estimator SlippageEstimator
	Watcher   SlippageWatcher
	Feed      FeedStatus
	Events    EventReader
	DB        database.Service
	Registry  *prometheus.Registry
	Logger    *zap.Logger
}

type FiberServer struct {
	*fiber.App

	db        database.Service
	symbols   []string
	books     BookReader
	estimator SlippageEstimator
	watcher   SlippageWatcher
	feed      FeedStatus
	events    EventReader
	registry  *prometheus.Registry
	logger    *zap.Logger
}

func New(deps Deps) *FiberServer {
	server := &FiberServer{
		App: fiber.New(fiber.Config{
			ServerHeader:          "crypto-orderbook-slippage",
			AppName:               "crypto-orderbook-slippage",
			DisableStartupMessage: true,
		}),

		db:        deps.DB,
		symbols:   deps.Symbols,
		books:     deps.Books,
		estimator: deps.Estimator,
		watcher:   deps.Watcher,
		feed:      deps.Feed,
		events:    deps.Events,
		registry:  deps.Registry,
		logger:    deps.Logger,
	}

	return server
}
