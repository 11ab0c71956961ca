// Package risk classifies market conditions into severity tiers and maps each
// tier to an execution policy.
package risk

import (
	"time"

	"github.com/rs/zerolog"

	"aitrader/internal/market"
)

// Signals are the inputs of the tier cascade.
type Signals struct {
	PriceChange5mPct      float64
	OrderbookDepthDropPct float64
	WhaleScore            float64
	FlashMove             bool
	StructureBreakout     bool
	ATRMultiplier         float64
	RegimeShift           bool
}

// SignalsFromSnapshot pulls the cascade inputs out of a market snapshot.
func SignalsFromSnapshot(s market.Snapshot) Signals {
	return Signals{
		PriceChange5mPct:      s.PriceChange5mPct,
		OrderbookDepthDropPct: s.OrderbookDepthDropPct,
		WhaleScore:            s.Summary.WhaleScore,
		FlashMove:             s.Summary.FlashMove,
		StructureBreakout:     s.Summary.BreakStructure5m,
		ATRMultiplier:         s.ATRMultiplier,
		RegimeShift:           s.Summary.RegimeShift,
	}
}

// Thresholds configure the cascade.
type Thresholds struct {
	PriceChangeP0     float64 `mapstructure:"price_change_p0"`
	DepthDropP0       float64 `mapstructure:"depth_drop_p0"`
	WhaleP0           float64 `mapstructure:"whale_p0"`
	ATRP1             float64 `mapstructure:"atr_p1"`
	WhaleP1Min        float64 `mapstructure:"whale_p1"`
	MinConfidence     float64 `mapstructure:"min_confidence"`
	VolatilityUpgrade float64 `mapstructure:"volatility_upgrade"`
}

// DefaultThresholds mirror the production rule book.
func DefaultThresholds() Thresholds {
	return Thresholds{
		PriceChangeP0:     3,
		DepthDropP0:       50,
		WhaleP0:           85,
		ATRP1:             2,
		WhaleP1Min:        60,
		MinConfidence:     MinConfidenceFloor,
		VolatilityUpgrade: 1.5,
	}
}

// Action is the execution policy of one tier.
type Action struct {
	MaxPositionPct      float64       `json:"max_position_pct"`
	BatchCount          int           `json:"batch_count"`
	BatchInterval       time.Duration `json:"batch_interval"`
	Cooldown            time.Duration `json:"cooldown"`
	MaxSlippagePct      float64       `json:"max_slippage_pct"`
	NotifyAllChannels   bool          `json:"notify_all_channels"`
	CanOverrideCooldown bool          `json:"can_override_cooldown"`
}

var policies = map[market.RiskLevel]Action{
	market.P0: {
		MaxPositionPct:      3,
		BatchCount:          3,
		BatchInterval:       10 * time.Second,
		Cooldown:            300 * time.Second,
		MaxSlippagePct:      0.3,
		NotifyAllChannels:   true,
		CanOverrideCooldown: true,
	},
	market.P1: {
		MaxPositionPct: 5,
		BatchCount:     2,
		BatchInterval:  30 * time.Second,
		Cooldown:       600 * time.Second,
		MaxSlippagePct: 0.5,
	},
	market.P2: {
		MaxPositionPct: 8,
		BatchCount:     1,
		Cooldown:       900 * time.Second,
		MaxSlippagePct: 0.5,
	},
}

// Engine evaluates the tier cascade.
type Engine struct {
	thresholds Thresholds
	logger     zerolog.Logger
}

// MinConfidenceFloor cannot be relaxed by configuration.
const MinConfidenceFloor = 0.6

// NewEngine constructs a risk engine. Zero thresholds fall back to defaults.
func NewEngine(thresholds Thresholds, logger zerolog.Logger) *Engine {
	if thresholds == (Thresholds{}) {
		thresholds = DefaultThresholds()
	}
	if thresholds.MinConfidence < MinConfidenceFloor {
		thresholds.MinConfidence = MinConfidenceFloor
	}
	return &Engine{thresholds: thresholds, logger: logger.With().Str("component", "risk").Logger()}
}

// DetermineRiskLevel runs the cascade; the first matching tier wins.
func (e *Engine) DetermineRiskLevel(s Signals) market.RiskLevel {
	t := e.thresholds
	if s.PriceChange5mPct > t.PriceChangeP0 ||
		s.OrderbookDepthDropPct > t.DepthDropP0 ||
		s.WhaleScore > t.WhaleP0 ||
		s.FlashMove {
		return market.P0
	}

	if s.StructureBreakout ||
		s.ATRMultiplier > t.ATRP1 ||
		(s.WhaleScore >= t.WhaleP1Min && s.WhaleScore <= t.WhaleP0) ||
		s.RegimeShift {
		return market.P1
	}

	return market.P2
}

// Actions returns the static policy of level. Unknown levels get the P2 policy.
func (e *Engine) Actions(level market.RiskLevel) Action {
	if a, ok := policies[level]; ok {
		return a
	}
	return policies[market.P2]
}

// Validate rejects any non-hold action whose confidence is under the floor.
func (e *Engine) Validate(action market.Action, confidence float64, level market.RiskLevel) bool {
	if action == market.Hold {
		return true
	}
	if confidence < e.thresholds.MinConfidence {
		e.logger.Warn().
			Float64("confidence", confidence).
			Str("risk_level", string(level)).
			Msg("confidence too low for execution")
		return false
	}
	return true
}
