package risk

import (
	"context"
	"sync"
	"time"

	"aitrader/internal/market"
)

// CooldownState blocks new orders for an account/coin pair until ExpiresAt.
type CooldownState struct {
	AccountID string           `json:"account_id"`
	Coin      market.Coin      `json:"coin"`
	ExpiresAt time.Time        `json:"expires_at"`
	RiskLevel market.RiskLevel `json:"risk_level"`
}

// CooldownStore tracks active cooldowns.
type CooldownStore interface {
	Active(ctx context.Context, accountID string, coin market.Coin) (CooldownState, bool, error)
	Start(ctx context.Context, state CooldownState) error
}

// MemoryCooldowns is a process-local CooldownStore.
type MemoryCooldowns struct {
	mu     sync.Mutex
	now    func() time.Time
	states map[string]CooldownState
}

// NewMemoryCooldowns constructs an in-memory store. now may be nil.
func NewMemoryCooldowns(now func() time.Time) *MemoryCooldowns {
	if now == nil {
		now = time.Now
	}
	return &MemoryCooldowns{now: now, states: make(map[string]CooldownState)}
}

// CooldownKey is the storage key of an account/coin pair.
func CooldownKey(accountID string, coin market.Coin) string {
	return "cooldown:" + accountID + ":" + string(coin)
}

// Active returns the cooldown of the pair when it has not expired.
func (m *MemoryCooldowns) Active(_ context.Context, accountID string, coin market.Coin) (CooldownState, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := CooldownKey(accountID, coin)
	state, ok := m.states[key]
	if !ok {
		return CooldownState{}, false, nil
	}
	if !m.now().Before(state.ExpiresAt) {
		delete(m.states, key)
		return CooldownState{}, false, nil
	}
	return state, true, nil
}

// Start records a cooldown for the pair. An active cooldown that ends later
// is kept.
func (m *MemoryCooldowns) Start(_ context.Context, state CooldownState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := CooldownKey(state.AccountID, state.Coin)
	if prev, ok := m.states[key]; ok && prev.ExpiresAt.After(state.ExpiresAt) {
		return nil
	}
	m.states[key] = state
	return nil
}

var _ CooldownStore = (*MemoryCooldowns)(nil)
