package ai

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aitrader/internal/market"
)

func reply(content string, tokens int) CallFunc {
	return func(ctx context.Context, req Request) (Completion, error) {
		return Completion{Content: content, TokensUsed: tokens}, nil
	}
}

func failing(err error) CallFunc {
	return func(ctx context.Context, req Request) (Completion, error) {
		return Completion{}, err
	}
}

func voter(id string, priority int, calls ...CallFunc) Voter {
	v := Voter{ID: id, Priority: priority}
	for i, call := range calls {
		v.Chain = append(v.Chain, Provider{
			Name:   id + "-p" + string(rune('0'+i)),
			Models: DefaultModels["openai"],
			Call:   call,
		})
	}
	return v
}

type recordingRecorder struct {
	mu      sync.Mutex
	results map[string]bool
}

func (r *recordingRecorder) ObserveProvider(voterID, provider string, ok bool, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.results == nil {
		r.results = map[string]bool{}
	}
	r.results[provider] = ok
}

func TestAnalyzeKeepsPriorityOrderAndDropsFailures(t *testing.T) {
	voters := []Voter{
		voter("AI-3", 3, reply(`{"action":"sell","confidence":0.7}`, 100)),
		voter("AI-1", 1, reply(`{"action":"buy","confidence":0.8,"risk_level":"P1"}`, 1000)),
		voter("AI-2", 2, failing(errors.New("boom"))),
	}
	rec := &recordingRecorder{}
	engine := NewEngine(EngineOptions{Timeout: time.Second, Recorder: rec}, voters, zerolog.Nop())

	outputs, tier := engine.Analyze(context.Background(), "prompt", market.BTC, TierParams{WhaleScore: 10, VolatilityRatio: 1})

	require.Len(t, outputs, 2)
	assert.Equal(t, TierCheap, tier)
	assert.Equal(t, "AI-1", outputs[0].VoterID)
	assert.Equal(t, "AI-3", outputs[1].VoterID)
	assert.Equal(t, market.Buy, outputs[0].Analysis.Action)
	assert.Equal(t, market.P1, outputs[0].Analysis.RiskLevel)
	assert.Equal(t, "gpt-4o-mini", outputs[0].Model)
	assert.InDelta(t, 0.00015, outputs[0].EstimatedCost, 1e-12)
	assert.Equal(t, []string{"AI-1", "AI-2", "AI-3"}, engine.Voters())
	assert.False(t, rec.results["AI-2-p0"])
}

func TestAnalyzeTimeoutIsolatesSlowVoter(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	slow := func(ctx context.Context, req Request) (Completion, error) {
		<-block
		return Completion{Content: `{"action":"buy"}`}, nil
	}
	voters := []Voter{
		voter("AI-1", 1, reply(`{"action":"hold","confidence":0.4}`, 10)),
		voter("AI-2", 2, slow),
	}
	engine := NewEngine(EngineOptions{Timeout: 20 * time.Millisecond}, voters, zerolog.Nop())

	start := time.Now()
	outputs, _ := engine.Analyze(context.Background(), "prompt", market.ETH, TierParams{})
	require.Less(t, time.Since(start), time.Second)
	require.Len(t, outputs, 1)
	assert.Equal(t, "AI-1", outputs[0].VoterID)
}

func TestAnalyzeChainFallsThroughToNextProvider(t *testing.T) {
	var premiumModel string
	fallback := func(ctx context.Context, req Request) (Completion, error) {
		premiumModel = req.Model
		return Completion{Content: "```json\n{\"action\":\"sell\",\"confidence\":0.9}\n```", TokensUsed: 2000}, nil
	}
	voters := []Voter{voter("AI-3", 1, failing(errors.New("quota")), fallback)}
	engine := NewEngine(EngineOptions{Timeout: time.Second}, voters, zerolog.Nop())

	outputs, tier := engine.Analyze(context.Background(), "prompt", market.SOL, TierParams{RiskLevel: market.P0})

	require.Len(t, outputs, 1)
	assert.Equal(t, TierPremium, tier)
	assert.Equal(t, "gpt-4o", premiumModel)
	assert.Equal(t, "AI-3-p1", outputs[0].Provider)
	assert.Equal(t, market.Sell, outputs[0].Analysis.Action)
	assert.InDelta(t, 0.01, outputs[0].EstimatedCost, 1e-12)
}

func TestAnalyzeAllFailedYieldsEmpty(t *testing.T) {
	voters := []Voter{
		voter("AI-1", 1, failing(errors.New("a"))),
		{ID: "AI-2", Priority: 2},
	}
	engine := NewEngine(EngineOptions{}, voters, zerolog.Nop())
	outputs, _ := engine.Analyze(context.Background(), "prompt", market.BTC, TierParams{})
	assert.Empty(t, outputs)
}

func TestSelectTier(t *testing.T) {
	cases := []struct {
		name   string
		params TierParams
		want   ModelTier
	}{
		{"calm", TierParams{WhaleScore: 60, VolatilityRatio: 1.5, RiskLevel: market.P2}, TierCheap},
		{"whale", TierParams{WhaleScore: 60.1}, TierPremium},
		{"volatility", TierParams{VolatilityRatio: 1.51}, TierPremium},
		{"p0", TierParams{RiskLevel: market.P0}, TierPremium},
		{"p1", TierParams{RiskLevel: market.P1}, TierPremium},
		{"flash", TierParams{FlashMove: true}, TierPremium},
		{"regime", TierParams{RegimeShift: true}, TierPremium},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SelectTier(tc.params))
		})
	}
}
