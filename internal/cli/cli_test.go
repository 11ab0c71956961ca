package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aitrader/internal/market"
)

func TestParseTimeFlag(t *testing.T) {
	got, err := parseTimeFlag("from", "")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = parseTimeFlag("from", "2025-01-01T10:00:00Z")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Equal(time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)))

	_, err = parseTimeFlag("to", "yesterday")
	assert.ErrorContains(t, err, "--to")
}

func TestParseCoins(t *testing.T) {
	coins, err := parseCoins([]string{"btc", " SOL "})
	require.NoError(t, err)
	assert.Equal(t, []market.Coin{market.BTC, market.SOL}, coins)

	_, err = parseCoins([]string{"DOGE"})
	assert.Error(t, err)
}

func TestParseDecimalFlag(t *testing.T) {
	d, err := parseDecimalFlag("daily-limit", "12.5")
	require.NoError(t, err)
	assert.Equal(t, "12.5", d.String())

	_, err = parseDecimalFlag("daily-limit", "lots")
	assert.ErrorContains(t, err, "--daily-limit")
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "simulate", "orders", "stats", "audit", "verify", "export", "migrate", "permit", "version"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}
