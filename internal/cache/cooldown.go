// Package cache stores cooldowns in Redis so several runners share them.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"aitrader/internal/config"
	"aitrader/internal/market"
	"aitrader/internal/risk"
)

// NewClient dials Redis and verifies connectivity.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis.addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Cooldowns is a risk.CooldownStore keyed by account and coin. Expiry is
// enforced by the key TTL.
type Cooldowns struct {
	client *redis.Client
	now    func() time.Time
}

// NewCooldowns wraps client. now may be nil.
func NewCooldowns(client *redis.Client, now func() time.Time) *Cooldowns {
	if now == nil {
		now = time.Now
	}
	return &Cooldowns{client: client, now: now}
}

// Active loads the pair's cooldown if its key still exists.
func (c *Cooldowns) Active(ctx context.Context, accountID string, coin market.Coin) (risk.CooldownState, bool, error) {
	raw, err := c.client.Get(ctx, risk.CooldownKey(accountID, coin)).Bytes()
	if errors.Is(err, redis.Nil) {
		return risk.CooldownState{}, false, nil
	}
	if err != nil {
		return risk.CooldownState{}, false, fmt.Errorf("get cooldown: %w", err)
	}
	state, err := decodeState(raw)
	if err != nil {
		return risk.CooldownState{}, false, err
	}
	if !c.now().Before(state.ExpiresAt) {
		return risk.CooldownState{}, false, nil
	}
	return state, true, nil
}

// Start writes the cooldown with a TTL that ends at ExpiresAt, unless the
// pair already has one that ends later.
func (c *Cooldowns) Start(ctx context.Context, state risk.CooldownState) error {
	ttl := state.ExpiresAt.Sub(c.now())
	if ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode cooldown: %w", err)
	}
	key := risk.CooldownKey(state.AccountID, state.Coin)
	if err := startCooldown.Run(ctx, c.client, []string{key}, payload, ttl.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("set cooldown: %w", err)
	}
	return nil
}

// startCooldown sets KEYS[1] unless its remaining TTL already exceeds ARGV[2] ms.
var startCooldown = redis.NewScript(`
local remaining = redis.call("PTTL", KEYS[1])
if remaining > tonumber(ARGV[2]) then
  return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
return 1
`)

func decodeState(raw []byte) (risk.CooldownState, error) {
	var state risk.CooldownState
	if err := json.Unmarshal(raw, &state); err != nil {
		return risk.CooldownState{}, fmt.Errorf("decode cooldown: %w", err)
	}
	return state, nil
}

var _ risk.CooldownStore = (*Cooldowns)(nil)
