// Package permission gates proposed orders against per-account authorisation
// records.
package permission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"aitrader/internal/market"
)

// Mode is the automation level granted to an account for one coin.
type Mode string

const (
	ModeObserve    Mode = "observe"
	ModeNotifyOnly Mode = "notify_only"
	ModeAutoBuy    Mode = "auto_buy"
	ModeAutoSell   Mode = "auto_sell"
	ModeAutoBoth   Mode = "auto_both"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeObserve, ModeNotifyOnly, ModeAutoBuy, ModeAutoSell, ModeAutoBoth:
		return true
	}
	return false
}

const (
	// MinHealthScore is the system health floor for automated trading.
	MinHealthScore = 50.0
	// MaxSlippagePct is the largest estimated slippage an order may carry.
	MaxSlippagePct = 0.5
)

// ErrRecordNotFound is returned by stores when no record exists for a pair.
var ErrRecordNotFound = errors.New("permission: record not found")

// Record is the authorisation of one account for one coin.
type Record struct {
	AccountID          string
	Coin               market.Coin
	Mode               Mode
	DailyLimit         decimal.Decimal
	SingleOrderMax     decimal.Decimal
	PositionBudget     decimal.Decimal
	CurrentDailyVolume decimal.Decimal
	CurrentDailyTrades int
	UpdatedAt          time.Time
}

// Request is one proposed order.
type Request struct {
	AccountID         string
	Coin              market.Coin
	Action            market.Action
	OrderSize         decimal.Decimal
	SlippageEstimate  float64
	SystemHealthScore float64
}

// Result is the gate decision. Denials are values, not errors.
type Result struct {
	Allowed       bool   `json:"allowed"`
	Reason        string `json:"reason,omitempty"`
	EffectiveMode Mode   `json:"effective_mode"`
}

// Store persists permission records.
// IncrementDailyStats must be atomic at the storage layer.
type Store interface {
	GetPermission(ctx context.Context, accountID string, coin market.Coin) (Record, error)
	ListPermissionsByCoin(ctx context.Context, coin market.Coin) ([]Record, error)
	IncrementDailyStats(ctx context.Context, accountID string, coin market.Coin, volume decimal.Decimal) error
	ResetDailyStats(ctx context.Context) error
}

// Engine evaluates permission checks.
type Engine struct {
	store  Store
	logger zerolog.Logger
}

// NewEngine constructs an Engine backed by store.
func NewEngine(store Store, logger zerolog.Logger) *Engine {
	return &Engine{store: store, logger: logger.With().Str("component", "permission").Logger()}
}

// Check runs the gate in order; the first failing rule decides. Only storage
// failures are returned as errors.
func (e *Engine) Check(ctx context.Context, req Request) (Result, error) {
	rec, err := e.store.GetPermission(ctx, req.AccountID, req.Coin)
	if errors.Is(err, ErrRecordNotFound) {
		return deny(ModeObserve, "no permission record"), nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("get permission: %w", err)
	}

	res := Evaluate(rec, req)
	if !res.Allowed {
		e.logger.Debug().
			Str("account_id", req.AccountID).
			Str("coin", string(req.Coin)).
			Str("action", string(req.Action)).
			Str("reason", res.Reason).
			Msg("permission denied")
	}
	return res, nil
}

// Evaluate applies the rules to a loaded record.
func Evaluate(rec Record, req Request) Result {
	mode := rec.Mode
	switch mode {
	case ModeObserve:
		return deny(mode, "observe mode")
	case ModeNotifyOnly:
		return deny(mode, "notify only mode")
	case ModeAutoBuy, ModeAutoSell, ModeAutoBoth:
	default:
		return deny(ModeObserve, fmt.Sprintf("unknown mode %q", mode))
	}

	if req.Action == market.Buy && mode == ModeAutoSell {
		return deny(mode, "buy not allowed in auto_sell mode")
	}
	if req.Action == market.Sell && mode == ModeAutoBuy {
		return deny(mode, "sell not allowed in auto_buy mode")
	}

	if req.SystemHealthScore < MinHealthScore {
		return deny(mode, "system health critical")
	}

	if rec.DailyLimit.IsPositive() && rec.CurrentDailyVolume.Add(req.OrderSize).GreaterThan(rec.DailyLimit) {
		return deny(mode, fmt.Sprintf("daily limit exceeded: %s + %s > %s",
			rec.CurrentDailyVolume.String(), req.OrderSize.String(), rec.DailyLimit.String()))
	}

	if rec.SingleOrderMax.IsPositive() && req.OrderSize.GreaterThan(rec.SingleOrderMax) {
		return deny(mode, fmt.Sprintf("order size %s exceeds single order max %s",
			req.OrderSize.String(), rec.SingleOrderMax.String()))
	}

	if req.SlippageEstimate > MaxSlippagePct {
		return deny(mode, fmt.Sprintf("slippage %.2f%% exceeds %.2f%%", req.SlippageEstimate, MaxSlippagePct))
	}

	return Result{Allowed: true, EffectiveMode: mode}
}

// UpdateDailyStats records a completed order against the pair's daily counters.
func (e *Engine) UpdateDailyStats(ctx context.Context, accountID string, coin market.Coin, volume decimal.Decimal) error {
	if err := e.store.IncrementDailyStats(ctx, accountID, coin, volume); err != nil {
		return fmt.Errorf("increment daily stats: %w", err)
	}
	return nil
}

// ResetDailyStats zeroes every daily counter.
func (e *Engine) ResetDailyStats(ctx context.Context) error {
	if err := e.store.ResetDailyStats(ctx); err != nil {
		return fmt.Errorf("reset daily stats: %w", err)
	}
	e.logger.Info().Msg("daily counters reset")
	return nil
}

// Accounts lists the records that could trade coin.
func (e *Engine) Accounts(ctx context.Context, coin market.Coin) ([]Record, error) {
	recs, err := e.store.ListPermissionsByCoin(ctx, coin)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	return recs, nil
}

func deny(mode Mode, reason string) Result {
	return Result{Allowed: false, Reason: reason, EffectiveMode: mode}
}
