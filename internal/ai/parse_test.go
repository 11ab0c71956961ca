package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"aitrader/internal/market"
)

func TestParseAnalysisExtractsEmbeddedJSON(t *testing.T) {
	content := "Here is my view:\n```json\n{\"action\":\"BUY\",\"confidence\":1.7,\"risk_level\":\"p1\",\"entry_price_range\":[100,105],\"key_factors\":[\"breakout\"]}\n```"
	a := ParseAnalysis(content)

	assert.Equal(t, market.Buy, a.Action)
	assert.Equal(t, 1.0, a.Confidence)
	assert.Equal(t, market.P1, a.RiskLevel)
	assert.Equal(t, [2]float64{100, 105}, a.EntryPriceRange)
	assert.Equal(t, []string{"breakout"}, a.KeyFactors)
	assert.Equal(t, "neutral", a.WhaleInfluence)
}

func TestParseAnalysisFallbacks(t *testing.T) {
	garbage := ParseAnalysis("no json here")
	assert.Equal(t, market.Hold, garbage.Action)
	assert.Equal(t, 0.5, garbage.Confidence)
	assert.Equal(t, market.P2, garbage.RiskLevel)
	assert.Equal(t, []string{"parse_error"}, garbage.KeyFactors)

	broken := ParseAnalysis("{not: valid}")
	assert.Equal(t, []string{"parse_error"}, broken.KeyFactors)

	partial := ParseAnalysis(`{"action":"short","confidence":-3}`)
	assert.Equal(t, market.Hold, partial.Action)
	assert.Equal(t, 0.0, partial.Confidence)
	assert.Equal(t, market.P2, partial.RiskLevel)

	missing := ParseAnalysis(`{"action":"sell"}`)
	assert.Equal(t, 0.5, missing.Confidence)
}
