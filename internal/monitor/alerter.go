package monitor

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"crypto-orderbook-slippage/internal/domain"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/webhook"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	colorRed    = 0xff0000
	colorOrange = 0xffa500
	colorGreen  = 0x00ff00
)

// Alerter posts to a Discord webhook. Each alert key (symbol and reason) is
// limited to one message per interval. With no webhook URL it only logs.
type Alerter struct {
	webhookUrl    string
	interval      time.Duration
	alertFraction decimal.Decimal
	logger        *zap.Logger
	send          func(ctx context.Context, embed discord.Embed) error

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	wg       sync.WaitGroup
}

// NewAlerter builds an alerter. alertFraction <= 0 disables slippage threshold alerts.
func NewAlerter(webhookUrl string, interval time.Duration, alertFraction decimal.Decimal, logger *zap.Logger) *Alerter {
	a := &Alerter{
		webhookUrl:    webhookUrl,
		interval:      interval,
		alertFraction: alertFraction,
		logger:        logger,
		limiters:      make(map[string]*rate.Limiter),
	}
	a.send = a.sendDiscord
	return a
}

func (a *Alerter) Enabled() bool { return a.webhookUrl != "" }

// Record implements feed.EventRecorder for maintenance and give-up events.
func (a *Alerter) Record(event domain.FeedEvent) {
	switch {
	case event.Kind == domain.EventInfo && event.Code == domain.InfoMaintenanceStart:
		a.alert("maintenance", discord.NewEmbedBuilder().
			SetTitle("Exchange maintenance started").
			SetColor(colorOrange).
			AddField("Code", strconv.Itoa(event.Code), true).
			AddField("Message", orDash(event.Message), true).
			Build())
	case event.Kind == domain.EventInfo && event.Code == domain.InfoMaintenanceEnd:
		a.alert("maintenance-end", discord.NewEmbedBuilder().
			SetTitle("Exchange maintenance ended").
			SetColor(colorGreen).
			AddField("Code", strconv.Itoa(event.Code), true).
			Build())
	case event.Kind == domain.EventConnectGiveUp:
		a.alert("give-up:"+event.Symbol, discord.NewEmbedBuilder().
			SetTitle("Feed gave up reconnecting").
			SetColor(colorRed).
			AddField("Symbol", event.Symbol, true).
			AddField("Error", orDash(event.Message), false).
			Build())
	}
}

// Sample alerts on exhausted books and on slippage above the threshold.
func (a *Alerter) Sample(sample domain.SlippageSample) {
	if sample.Result == nil {
		return
	}
	result := sample.Result

	if result.Insufficient {
		a.alert("liquidity:"+sample.Symbol+":"+sample.Side.String(), discord.NewEmbedBuilder().
			SetTitle("Insufficient liquidity").
			SetColor(colorRed).
			AddField("Symbol", sample.Symbol, true).
			AddField("Side", sample.Side.String(), true).
			AddField("\u200B", "\u200B", false).
			AddField("Requested Volume", result.Volume.String(), true).
			AddField("Available Volume", result.FilledVolume.String(), true).
			Build())
		return
	}

	if a.alertFraction.IsPositive() && result.SlippageFraction.GreaterThan(a.alertFraction) {
		a.alert("slippage:"+sample.Symbol+":"+sample.Side.String(), discord.NewEmbedBuilder().
			SetTitle("Slippage above threshold").
			SetColor(colorOrange).
			AddField("Symbol", sample.Symbol, true).
			AddField("Side", sample.Side.String(), true).
			AddField("Notional", sample.Notional.String(), true).
			AddField("\u200B", "\u200B", false).
			AddField("Quote Price", result.QuotePrice.String(), true).
			AddField("Slippage Cost", result.SlippageCost.StringFixed(2), true).
			AddField("Slippage", result.SlippageFraction.Mul(decimal.NewFromInt(100)).StringFixed(4)+"%", true).
			Build())
	}
}

func (a *Alerter) allow(key string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	limiter, ok := a.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(a.interval), 1)
		a.limiters[key] = limiter
	}
	return limiter.Allow()
}

func (a *Alerter) alert(key string, embed discord.Embed) {
	if !a.allow(key) {
		return
	}
	if !a.Enabled() {
		a.logger.Info("Alert (discord disabled): " + embed.Title)
		return
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.send(ctx, embed); err != nil {
			a.logger.Error("Failed to send message to discord: " + err.Error())
		}
	}()
}

// Wait blocks until in-flight alerts are sent.
func (a *Alerter) Wait() {
	a.wg.Wait()
}

func (a *Alerter) sendDiscord(ctx context.Context, embed discord.Embed) error {
	client, err := webhook.NewWithURL(a.webhookUrl)
	if err != nil {
		return fmt.Errorf("failed to create discord session: %w", err)
	}
	defer client.Close(ctx)

	_, err = client.CreateEmbeds([]discord.Embed{embed})
	return err
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
