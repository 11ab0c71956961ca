package risk

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aitrader/internal/market"
)

func TestDetermineRiskLevelCascade(t *testing.T) {
	engine := NewEngine(Thresholds{}, zerolog.Nop())

	cases := []struct {
		name    string
		signals Signals
		want    market.RiskLevel
	}{
		{"price spike", Signals{PriceChange5mPct: 3.5}, market.P0},
		{"depth drop", Signals{OrderbookDepthDropPct: 51}, market.P0},
		{"whale p0", Signals{WhaleScore: 86}, market.P0},
		{"flash move", Signals{FlashMove: true, StructureBreakout: true}, market.P0},
		{"breakout", Signals{StructureBreakout: true}, market.P1},
		{"atr", Signals{ATRMultiplier: 2.1}, market.P1},
		{"whale lower bound", Signals{WhaleScore: 60}, market.P1},
		{"whale upper bound", Signals{WhaleScore: 85}, market.P1},
		{"regime shift", Signals{RegimeShift: true}, market.P1},
		{"calm", Signals{PriceChange5mPct: 3, OrderbookDepthDropPct: 50, WhaleScore: 59.9, ATRMultiplier: 2}, market.P2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, engine.DetermineRiskLevel(tc.signals))
		})
	}
}

func TestActionsLookup(t *testing.T) {
	engine := NewEngine(DefaultThresholds(), zerolog.Nop())

	p0 := engine.Actions(market.P0)
	assert.Equal(t, 3.0, p0.MaxPositionPct)
	assert.Equal(t, 3, p0.BatchCount)
	assert.Equal(t, 10*time.Second, p0.BatchInterval)
	assert.Equal(t, 300*time.Second, p0.Cooldown)
	assert.True(t, p0.CanOverrideCooldown)
	assert.True(t, p0.NotifyAllChannels)

	assert.Equal(t, 2, engine.Actions(market.P1).BatchCount)
	assert.Equal(t, 8.0, engine.Actions(market.P2).MaxPositionPct)
	assert.Equal(t, engine.Actions(market.P2), engine.Actions("P9"))
}

func TestValidateConfidenceFloor(t *testing.T) {
	engine := NewEngine(Thresholds{MinConfidence: 0.2, WhaleP0: 85}, zerolog.Nop())

	assert.True(t, engine.Validate(market.Hold, 0, market.P0))
	assert.False(t, engine.Validate(market.Buy, 0.59, market.P2))
	assert.False(t, engine.Validate(market.Sell, 0.5, market.P0))
	assert.True(t, engine.Validate(market.Sell, 0.6, market.P1))
}

func TestSignalsFromSnapshot(t *testing.T) {
	s := SignalsFromSnapshot(market.Snapshot{
		Summary:          market.Summary{WhaleScore: 70, FlashMove: true, BreakStructure5m: true, RegimeShift: true},
		PriceChange5mPct: 1.2,
		ATRMultiplier:    1.8,
	})
	assert.Equal(t, Signals{
		PriceChange5mPct:  1.2,
		WhaleScore:        70,
		FlashMove:         true,
		StructureBreakout: true,
		ATRMultiplier:     1.8,
		RegimeShift:       true,
	}, s)
}

func TestMemoryCooldowns(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryCooldowns(func() time.Time { return now })
	ctx := context.Background()

	_, active, err := store.Active(ctx, "acct-1", market.BTC)
	require.NoError(t, err)
	assert.False(t, active)

	require.NoError(t, store.Start(ctx, CooldownState{AccountID: "acct-1", Coin: market.BTC, ExpiresAt: now.Add(time.Minute), RiskLevel: market.P1}))

	state, active, err := store.Active(ctx, "acct-1", market.BTC)
	require.NoError(t, err)
	assert.True(t, active)
	assert.Equal(t, market.P1, state.RiskLevel)

	_, active, _ = store.Active(ctx, "acct-1", market.ETH)
	assert.False(t, active)

	now = now.Add(time.Minute)
	_, active, _ = store.Active(ctx, "acct-1", market.BTC)
	assert.False(t, active)
}

func TestMemoryCooldownsKeepLaterExpiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryCooldowns(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, store.Start(ctx, CooldownState{AccountID: "acct-1", Coin: market.BTC, ExpiresAt: now.Add(900 * time.Second), RiskLevel: market.P2}))
	require.NoError(t, store.Start(ctx, CooldownState{AccountID: "acct-1", Coin: market.BTC, ExpiresAt: now.Add(300 * time.Second), RiskLevel: market.P0}))

	state, active, err := store.Active(ctx, "acct-1", market.BTC)
	require.NoError(t, err)
	require.True(t, active)
	assert.Equal(t, now.Add(900*time.Second), state.ExpiresAt)
	assert.Equal(t, market.P2, state.RiskLevel)

	require.NoError(t, store.Start(ctx, CooldownState{AccountID: "acct-1", Coin: market.BTC, ExpiresAt: now.Add(time.Hour), RiskLevel: market.P1}))
	state, _, _ = store.Active(ctx, "acct-1", market.BTC)
	assert.Equal(t, now.Add(time.Hour), state.ExpiresAt)
}
