package ai

import (
	"encoding/json"
	"regexp"
	"strings"

	"aitrader/internal/market"
)

var jsonBlock = regexp.MustCompile(`\{[\s\S]*\}`)

type rawAnalysis struct {
	Action             string    `json:"action"`
	Confidence         *float64  `json:"confidence"`
	RiskLevel          string    `json:"risk_level"`
	RecommendedSizePct float64   `json:"recommended_size_pct"`
	EntryPriceRange    []float64 `json:"entry_price_range"`
	StopLoss           float64   `json:"stop_loss"`
	TakeProfit         []float64 `json:"take_profit"`
	WhaleInfluence     string    `json:"whale_influence"`
	KeyFactors         []string  `json:"key_factors"`
}

func parseErrorAnalysis() Analysis {
	return Analysis{
		Action:         market.Hold,
		Confidence:     0.5,
		RiskLevel:      market.P2,
		TakeProfit:     []float64{},
		WhaleInfluence: "unknown",
		KeyFactors:     []string{"parse_error"},
	}
}

// ParseAnalysis extracts the JSON recommendation from a model reply. Replies
// that cannot be parsed become a neutral hold tagged parse_error.
func ParseAnalysis(content string) Analysis {
	body := jsonBlock.FindString(content)
	if body == "" {
		return parseErrorAnalysis()
	}

	var raw rawAnalysis
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return parseErrorAnalysis()
	}

	a := Analysis{
		Action:             market.Action(strings.ToLower(strings.TrimSpace(raw.Action))),
		Confidence:         0.5,
		RiskLevel:          market.RiskLevel(strings.ToUpper(strings.TrimSpace(raw.RiskLevel))),
		RecommendedSizePct: raw.RecommendedSizePct,
		StopLoss:           raw.StopLoss,
		TakeProfit:         raw.TakeProfit,
		WhaleInfluence:     raw.WhaleInfluence,
		KeyFactors:         raw.KeyFactors,
	}
	if !a.Action.Valid() {
		a.Action = market.Hold
	}
	if !a.RiskLevel.Valid() {
		a.RiskLevel = market.P2
	}
	if raw.Confidence != nil {
		a.Confidence = clamp01(*raw.Confidence)
	}
	if len(raw.EntryPriceRange) >= 2 {
		a.EntryPriceRange = [2]float64{raw.EntryPriceRange[0], raw.EntryPriceRange[1]}
	}
	if a.TakeProfit == nil {
		a.TakeProfit = []float64{}
	}
	if a.KeyFactors == nil {
		a.KeyFactors = []string{}
	}
	if a.WhaleInfluence == "" {
		a.WhaleInfluence = "neutral"
	}
	return a
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
