package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"crypto-orderbook-slippage/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	assert.Equal(t, "wss://api-pub.bitfinex.com/ws/2", c.Feed.Endpoint)
	assert.Equal(t, []domain.Subscription{
		{Symbol: "tBTCUSD", Prec: "P0", Freq: "F1", Len: "25"},
		{Symbol: "tETHUSD", Prec: "P0", Freq: "F1", Len: "25"},
	}, c.Subscriptions())
	assert.Equal(t, "50000", c.Slippage.Notional.String())
	assert.Equal(t, time.Second, c.Slippage.Interval.Duration)
	assert.Equal(t, 10, c.Feed.OrderingErrorThreshold)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `{
		"Feed": {
			"Symbols": {
				"tBTCUSD": {"Enabled": true, "Prec": "P1", "Freq": "F0", "Len": "100"},
				"tETHUSD": {"Enabled": false}
			},
			"ReadTimeout": "15s"
		},
		"Reconnect": {"MinBackoff": "500ms", "MaxBackoff": "10s", "MaxAttempts": 3},
		"Slippage": {"Notional": "1000.5", "Side": "bid", "HistorySize": 5, "AlertFraction": 0.01},
		"Discord": {"WebhookUrl": "https://discord.com/api/webhooks/1/abc"}
	}`)

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []domain.Subscription{{Symbol: "tBTCUSD", Prec: "P1", Freq: "F0", Len: "100"}}, c.Subscriptions())
	assert.Equal(t, 15*time.Second, c.Feed.ReadTimeout.Duration)
	assert.Equal(t, 500*time.Millisecond, c.Reconnect.MinBackoff.Duration)
	assert.Equal(t, 2.0, c.Reconnect.Factor)
	assert.Equal(t, 3, c.Reconnect.MaxAttempts)
	assert.Equal(t, "1000.5", c.Slippage.Notional.String())
	assert.Equal(t, domain.Bid, c.Slippage.Side)
	assert.Equal(t, "0.01", c.Slippage.AlertFraction.String())
	assert.Equal(t, 5, c.Slippage.HistorySize)
	assert.Equal(t, time.Minute, c.Discord.AlertInterval.Duration)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("FEED_ENDPOINT", "ws://localhost:1234")
	t.Setenv("DATABASE_PATH", "/tmp/x.db")
	t.Setenv("DISCORD_WEBHOOK_URL", "https://example.invalid/hook")

	c, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, 9090, c.Server.Port)
	assert.Equal(t, "ws://localhost:1234", c.Feed.Endpoint)
	assert.Equal(t, "/tmp/x.db", c.Database.Path)
	assert.Equal(t, "https://example.invalid/hook", c.Discord.WebhookUrl)

	t.Setenv("PORT", "eighty")
	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "no enabled symbols", body: `{"Feed": {"Symbols": {"tBTCUSD": {"Enabled": false}}}}`},
		{name: "zero notional", body: `{"Slippage": {"Notional": 0}}`},
		{name: "unknown side", body: `{"Slippage": {"Side": "middle"}}`},
		{name: "bad duration", body: `{"Feed": {"ReadTimeout": "soon"}}`},
		{name: "not json", body: `Feed = 1`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}
