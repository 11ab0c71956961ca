package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aitrader/internal/config"
	"aitrader/internal/market"
	"aitrader/internal/risk"
)

func TestDecodeState(t *testing.T) {
	exp := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	state, err := decodeState([]byte(`{"account_id":"a","coin":"SOL","expires_at":"2025-02-01T10:00:00Z","risk_level":"P1"}`))
	require.NoError(t, err)
	assert.Equal(t, risk.CooldownState{AccountID: "a", Coin: market.SOL, ExpiresAt: exp, RiskLevel: market.P1}, state)

	_, err = decodeState([]byte("not json"))
	assert.Error(t, err)
}

func TestNewClientRequiresAddr(t *testing.T) {
	_, err := NewClient(context.Background(), config.RedisConfig{})
	assert.Error(t, err)
}

// Runs against a real server when AITRADER_TEST_REDIS_ADDR is set.
func TestCooldownsRoundTrip(t *testing.T) {
	addr := os.Getenv("AITRADER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("AITRADER_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client, err := NewClient(ctx, config.RedisConfig{Addr: addr})
	require.NoError(t, err)
	defer client.Close()

	store := NewCooldowns(client, nil)
	account := "test-" + time.Now().Format("150405.000000")
	defer client.Del(ctx, risk.CooldownKey(account, market.BTC))

	require.NoError(t, store.Start(ctx, risk.CooldownState{
		AccountID: account,
		Coin:      market.BTC,
		ExpiresAt: time.Now().Add(time.Minute),
		RiskLevel: market.P0,
	}))

	state, active, err := store.Active(ctx, account, market.BTC)
	require.NoError(t, err)
	assert.True(t, active)
	assert.Equal(t, market.P0, state.RiskLevel)

	// a shorter cooldown leaves the longer one in place
	require.NoError(t, store.Start(ctx, risk.CooldownState{
		AccountID: account,
		Coin:      market.BTC,
		ExpiresAt: time.Now().Add(10 * time.Second),
		RiskLevel: market.P2,
	}))
	state, active, err = store.Active(ctx, account, market.BTC)
	require.NoError(t, err)
	assert.True(t, active)
	assert.Equal(t, market.P0, state.RiskLevel)

	_, active, err = store.Active(ctx, account, market.ETH)
	require.NoError(t, err)
	assert.False(t, active)
}
