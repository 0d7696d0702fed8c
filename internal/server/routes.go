package server

import (
	"errors"
	"sort"
	"strconv"

	"crypto-orderbook-slippage/internal/domain"
	"crypto-orderbook-slippage/internal/platform/metrics"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

func (s *FiberServer) RegisterFiberRoutes() {
	s.App.Get("/health", s.healthHandler)

	api := s.App.Group("/api")
	api.Get("/books", s.booksHandler)
	api.Get("/books/:symbol", s.bookHandler)
	api.Get("/slippage/:symbol", s.slippageHandler)
	api.Get("/slippage/:symbol/history", s.historyHandler)
	api.Get("/feed/status", s.feedStatusHandler)
	api.Get("/events", s.eventsHandler)

	s.App.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.App.Get("/ws/slippage", websocket.New(s.slippageStreamHandler))

	if s.registry != nil {
		s.App.Get("/metrics", adaptor.HTTPHandler(metrics.Handler(s.registry)))
	}
}

func errorResponse(c *fiber.Ctx, status int, err error) error {
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

func (s *FiberServer) healthHandler(c *fiber.Ctx) error {
	resp := fiber.Map{"status": "up"}
	if s.db != nil {
		resp["database"] = s.db.Health()
	}
	if s.feed != nil {
		resp["maintenance"] = s.feed.Maintenance()
	}
	return c.JSON(resp)
}

type bookState struct {
	Symbol   string               `json:"symbol"`
	State    domain.BookStateEnum `json:"state"`
	BidDepth *decimal.Decimal     `json:"bid_depth,omitempty"`
	AskDepth *decimal.Decimal     `json:"ask_depth,omitempty"`
}

func (s *FiberServer) booksHandler(c *fiber.Ctx) error {
	states := s.books.States()
	for _, symbol := range s.symbols {
		if _, ok := states[symbol]; !ok {
			states[symbol] = domain.Uninitialized
		}
	}

	out := make([]bookState, 0, len(states))
	for symbol, state := range states {
		entry := bookState{Symbol: symbol, State: state}
		if book, ok := s.books.Get(symbol, 0); ok {
			bidDepth, askDepth := book.Depth(domain.Bid), book.Depth(domain.Ask)
			entry.BidDepth, entry.AskDepth = &bidDepth, &askDepth
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return c.JSON(out)
}

func (s *FiberServer) bookHandler(c *fiber.Ctx) error {
	symbol := c.Params("symbol")
	depth := c.QueryInt("depth", 0)
	if depth < 0 {
		return errorResponse(c, fiber.StatusBadRequest, errors.New("depth must not be negative"))
	}

	book, ok := s.books.Get(symbol, depth)
	if !ok {
		return errorResponse(c, fiber.StatusNotFound, domain.ErrBookNotFound)
	}
	return c.JSON(book)
}

type slippageResponse struct {
	Symbol string                 `json:"symbol"`
	Result *domain.SlippageResult `json:"result,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

func (s *FiberServer) slippageHandler(c *fiber.Ctx) error {
	symbol := c.Params("symbol")

	side := s.watcher.Side()
	if raw := c.Query("side"); raw != "" {
		parsed, err := domain.ParseSide(raw)
		if err != nil {
			return errorResponse(c, fiber.StatusBadRequest, err)
		}
		side = parsed
	}

	volumeRaw, notionalRaw := c.Query("volume"), c.Query("notional")
	if (volumeRaw == "") == (notionalRaw == "") {
		return errorResponse(c, fiber.StatusBadRequest, errors.New("exactly one of volume or notional is required"))
	}

	var (
		result domain.SlippageResult
		err    error
	)
	if volumeRaw != "" {
		volume, parseErr := decimal.NewFromString(volumeRaw)
		if parseErr != nil {
			return errorResponse(c, fiber.StatusBadRequest, parseErr)
		}
		result, err = s.estimator.ComputeSlippage(symbol, side, volume)
	} else {
		notional, parseErr := decimal.NewFromString(notionalRaw)
		if parseErr != nil {
			return errorResponse(c, fiber.StatusBadRequest, parseErr)
		}
		result, err = s.estimator.ComputeForNotional(symbol, side, notional)
	}

	resp := slippageResponse{Symbol: symbol}
	switch {
	case err == nil:
		resp.Result = &result
		return c.JSON(resp)
	case errors.Is(err, domain.ErrInsufficientLiquidity):
		resp.Result = &result
		resp.Error = err.Error()
		return c.Status(fiber.StatusConflict).JSON(resp)
	case errors.Is(err, domain.ErrInvalidVolume):
		return errorResponse(c, fiber.StatusBadRequest, err)
	case errors.Is(err, domain.ErrBookNotFound), errors.Is(err, domain.ErrEmptyBook):
		return errorResponse(c, fiber.StatusNotFound, err)
	default:
		s.logger.Error("Failed to compute slippage", zap.String("symbol", symbol), zap.Error(err))
		return errorResponse(c, fiber.StatusInternalServerError, err)
	}
}

func (s *FiberServer) historyHandler(c *fiber.Ctx) error {
	return c.JSON(s.watcher.History(c.Params("symbol")))
}

func (s *FiberServer) feedStatusHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"connections": s.feed.Status(),
		"maintenance": s.feed.Maintenance(),
		"books":       s.books.States(),
	})
}

func (s *FiberServer) eventsHandler(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultEventLimit)
	if limit <= 0 || limit > maxEventLimit {
		return errorResponse(c, fiber.StatusBadRequest, errors.New("limit must be between 1 and "+strconv.Itoa(maxEventLimit)))
	}

	events, err := s.events.Recent(c.UserContext(), limit)
	if err != nil {
		s.logger.Error("Failed to read feed events", zap.Error(err))
		return errorResponse(c, fiber.StatusInternalServerError, err)
	}
	return c.JSON(events)
}

// slippageStreamHandler pushes the latest samples on connect, then every tick.
func (s *FiberServer) slippageStreamHandler(conn *websocket.Conn) {
	samples, unsubscribe := s.watcher.Subscribe()
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if latest := s.watcher.Latest(); len(latest) > 0 {
		if err := conn.WriteJSON(latest); err != nil {
			return
		}
	}

	for {
		select {
		case <-closed:
			return
		case batch, ok := <-samples:
			if !ok {
				return
			}
			if err := conn.WriteJSON(batch); err != nil {
				s.logger.Debug("Slippage stream closed", zap.Error(err))
				return
			}
		}
	}
}
