package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"crypto-orderbook-slippage/internal/domain"

	"github.com/shopspring/decimal"
)

const defaultPath = "config.json"

type Config struct {
	Feed      FeedConfig
	Reconnect ReconnectConfig
	Slippage  SlippageConfig
	Server    ServerConfig
	Database  DatabaseConfig
	Discord   DiscordConfig
}

type FeedConfig struct {
	Endpoint               string
	Symbols                map[string]SymbolConfig
	OrderingErrorThreshold int
	ReadTimeout            Duration
}

// SymbolConfig values are passed to the exchange untouched.
type SymbolConfig struct {
	Enabled bool
	Prec    string
	Freq    string
	Len     string
}

type ReconnectConfig struct {
	MinBackoff  Duration
	MaxBackoff  Duration
	Factor      float64
	MaxAttempts int
}

type SlippageConfig struct {
	Notional    decimal.Decimal // quote currency
	Side        domain.SideEnum
	Interval    Duration
	HistorySize int

	// AlertFraction triggers an alert when a sample's slippage fraction exceeds it; zero disables.
	AlertFraction decimal.Decimal
}

type ServerConfig struct {
	Port int
}

type DatabaseConfig struct {
	Path          string
	JournalBuffer int
}

type DiscordConfig struct {
	WebhookUrl    string
	AlertInterval Duration
}

// Duration reads "1.5s" style strings or plain nanoseconds.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		d.Duration = parsed
	default:
		return fmt.Errorf("invalid duration %s", b)
	}
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

var once sync.Once
var config *Config

// GetConfig loads config.json (or CONFIG_PATH) once. A missing file means
// defaults; an unreadable or invalid one panics.
func GetConfig() *Config {
	once.Do(func() {
		path := os.Getenv("CONFIG_PATH")
		if path == "" {
			path = defaultPath
		}
		c, err := Load(path)
		if err != nil {
			panic(err)
		}
		config = c
	})

	return config
}

// Load reads path over the defaults, then applies environment overrides.
func Load(path string) (*Config, error) {
	c := Default()

	configBytes, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	default:
		// an explicit symbol list replaces the default one
		c.Feed.Symbols = nil
		if err := json.Unmarshal(configBytes, c); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		if c.Feed.Symbols == nil {
			c.Feed.Symbols = Default().Feed.Symbols
		}
	}

	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	c.fillDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func Default() *Config {
	return &Config{
		Feed: FeedConfig{
			Endpoint: "wss://api-pub.bitfinex.com/ws/2",
			Symbols: map[string]SymbolConfig{
				"tBTCUSD": {Enabled: true, Prec: "P0", Freq: "F1", Len: "25"},
				"tETHUSD": {Enabled: true, Prec: "P0", Freq: "F1", Len: "25"},
			},
			OrderingErrorThreshold: 10,
			ReadTimeout:            Duration{30 * time.Second},
		},
		Reconnect: ReconnectConfig{
			MinBackoff:  Duration{time.Second},
			MaxBackoff:  Duration{time.Minute},
			Factor:      2,
			MaxAttempts: 10,
		},
		Slippage: SlippageConfig{
			Notional:    decimal.NewFromInt(50000),
			Side:        domain.Ask,
			Interval:    Duration{time.Second},
			HistorySize: 20,
		},
		Server:   ServerConfig{Port: 8080},
		Database: DatabaseConfig{Path: "feed_events.db", JournalBuffer: 256},
		Discord:  DiscordConfig{AlertInterval: Duration{time.Minute}},
	}
}

func (c *Config) applyEnv() error {
	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", port, err)
		}
		c.Server.Port = p
	}
	if endpoint := os.Getenv("FEED_ENDPOINT"); endpoint != "" {
		c.Feed.Endpoint = endpoint
	}
	if path := os.Getenv("DATABASE_PATH"); path != "" {
		c.Database.Path = path
	}
	if url := os.Getenv("DISCORD_WEBHOOK_URL"); url != "" {
		c.Discord.WebhookUrl = url
	}
	return nil
}

func (c *Config) fillDefaults() {
	d := Default()
	if c.Feed.OrderingErrorThreshold <= 0 {
		c.Feed.OrderingErrorThreshold = d.Feed.OrderingErrorThreshold
	}
	if c.Reconnect.MinBackoff.Duration <= 0 {
		c.Reconnect.MinBackoff = d.Reconnect.MinBackoff
	}
	if c.Reconnect.MaxBackoff.Duration < c.Reconnect.MinBackoff.Duration {
		c.Reconnect.MaxBackoff = c.Reconnect.MinBackoff
	}
	if c.Reconnect.Factor < 1 {
		c.Reconnect.Factor = d.Reconnect.Factor
	}
	if c.Slippage.Interval.Duration <= 0 {
		c.Slippage.Interval = d.Slippage.Interval
	}
	if c.Slippage.HistorySize <= 0 {
		c.Slippage.HistorySize = d.Slippage.HistorySize
	}
	if c.Database.JournalBuffer <= 0 {
		c.Database.JournalBuffer = d.Database.JournalBuffer
	}
	if c.Discord.AlertInterval.Duration <= 0 {
		c.Discord.AlertInterval = d.Discord.AlertInterval
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.Feed.Endpoint == "" {
		errs = append(errs, errors.New("feed endpoint is empty"))
	}
	if len(c.Subscriptions()) == 0 {
		errs = append(errs, errors.New("no enabled symbols"))
	}
	if !c.Slippage.Notional.IsPositive() {
		errs = append(errs, fmt.Errorf("slippage notional must be positive, got %s", c.Slippage.Notional))
	}
	if c.Slippage.Side != domain.Bid && c.Slippage.Side != domain.Ask {
		errs = append(errs, fmt.Errorf("unknown slippage side %d", c.Slippage.Side))
	}
	if c.Slippage.AlertFraction.IsNegative() {
		errs = append(errs, errors.New("alert fraction must not be negative"))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Server.Port))
	}
	if c.Reconnect.MaxAttempts < 0 {
		errs = append(errs, errors.New("max attempts must not be negative"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Subscriptions returns the enabled symbols, sorted.
func (c *Config) Subscriptions() []domain.Subscription {
	subs := make([]domain.Subscription, 0, len(c.Feed.Symbols))
	for symbol, s := range c.Feed.Symbols {
		if !s.Enabled {
			continue
		}
		subs = append(subs, domain.Subscription{Symbol: symbol, Prec: s.Prec, Freq: s.Freq, Len: s.Len})
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].Symbol < subs[j].Symbol })
	return subs
}
