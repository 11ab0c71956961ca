package ai

import "aitrader/internal/market"

// ModelTier selects between the cheap and premium model of each provider.
type ModelTier string

const (
	TierCheap   ModelTier = "cheap"
	TierPremium ModelTier = "premium"
)

// ModelConfig names a model and its price.
type ModelConfig struct {
	Model        string  `json:"model"`
	CostPer1KTok float64 `json:"cost_per_1k_tokens"`
}

// ModelTiers holds the cheap and premium model of one provider.
type ModelTiers struct {
	Cheap   ModelConfig
	Premium ModelConfig
}

// For returns the model configured for tier.
func (m ModelTiers) For(tier ModelTier) ModelConfig {
	if tier == TierPremium {
		return m.Premium
	}
	return m.Cheap
}

// EstimateCost prices a call at tokens/1000 × cost per 1k tokens.
func EstimateCost(tokens int, model ModelConfig) float64 {
	return float64(tokens) / 1000 * model.CostPer1KTok
}

// Analysis is the structured recommendation parsed from a model reply.
type Analysis struct {
	Action             market.Action    `json:"action"`
	Confidence         float64          `json:"confidence"`
	RiskLevel          market.RiskLevel `json:"risk_level"`
	RecommendedSizePct float64          `json:"recommended_size_pct"`
	EntryPriceRange    [2]float64       `json:"entry_price_range"`
	StopLoss           float64          `json:"stop_loss"`
	TakeProfit         []float64        `json:"take_profit"`
	WhaleInfluence     string           `json:"whale_influence"`
	KeyFactors         []string         `json:"key_factors"`
}

// Output is one voter's result for one analysis cycle. A voter that failed
// or timed out produces no Output at all.
type Output struct {
	VoterID       string      `json:"voter_id"`
	Provider      string      `json:"provider"`
	Model         string      `json:"model"`
	Coin          market.Coin `json:"coin"`
	LatencyMS     int64       `json:"latency_ms"`
	TokensUsed    int         `json:"tokens_used"`
	EstimatedCost float64     `json:"estimated_cost"`
	Analysis      Analysis    `json:"analysis"`
}

// TierParams are the market conditions that drive model tier selection.
type TierParams struct {
	WhaleScore      float64
	VolatilityRatio float64
	RiskLevel       market.RiskLevel
	FlashMove       bool
	RegimeShift     bool
}

// TierThresholds configure the premium upgrade rule.
type TierThresholds struct {
	WhaleScore      float64
	VolatilityRatio float64
}

// DefaultTierThresholds upgrade above whale 60 or volatility ratio 1.5.
func DefaultTierThresholds() TierThresholds {
	return TierThresholds{WhaleScore: 60, VolatilityRatio: 1.5}
}

// Select returns premium when any upgrade condition holds.
func (t TierThresholds) Select(p TierParams) ModelTier {
	if p.WhaleScore > t.WhaleScore ||
		p.VolatilityRatio > t.VolatilityRatio ||
		p.RiskLevel == market.P0 ||
		p.RiskLevel == market.P1 ||
		p.FlashMove ||
		p.RegimeShift {
		return TierPremium
	}
	return TierCheap
}

// SelectTier applies the default thresholds.
func SelectTier(p TierParams) ModelTier {
	return DefaultTierThresholds().Select(p)
}
