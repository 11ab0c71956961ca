package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aitrader/internal/config"
	"aitrader/internal/market"
	"aitrader/internal/storage"
)

const scenarioJSON = `{
  "health": {"ws_latency": 50, "rest_api_latency": 100, "error_rate": 0, "ai_latency": 2000, "whale_data_freshness": 1, "order_success_rate": 99},
  "snapshots": [
    {"summary": {"coin": "BTC", "current_price": 97000, "whale_score": 40, "slippage_medium": 0.1}, "volatility_ratio": 1},
    {"summary": {"coin": "ETH", "current_price": 3400, "whale_score": 20, "slippage_medium": 0.1}, "volatility_ratio": 1}
  ],
  "accounts": [
    {"account_id": "acct-1", "coin": "BTC", "mode": "auto_both", "daily_limit": "100", "single_order_max": "10", "position_budget": "50"}
  ],
  "votes": {
    "BTC": [
      {"voter_id": "AI-1", "provider": "doubao", "analysis": {"action": "buy", "confidence": 0.8, "risk_level": "P2"}},
      {"voter_id": "AI-2", "provider": "gemini", "analysis": {"action": "buy", "confidence": 0.8, "risk_level": "P2"}},
      {"voter_id": "AI-3", "provider": "openai", "analysis": {"action": "buy", "confidence": 0.8, "risk_level": "P2"}}
    ],
    "ETH": [
      {"voter_id": "AI-1", "provider": "doubao", "analysis": {"action": "hold", "confidence": 0.5, "risk_level": "P2"}},
      {"voter_id": "AI-2", "provider": "gemini", "analysis": {"action": "hold", "confidence": 0.5, "risk_level": "P2"}}
    ]
  }
}`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func testApp(t *testing.T, yaml string) *App {
	t.Helper()
	cfg, err := config.Load(writeFile(t, "config.yaml", yaml))
	require.NoError(t, err)
	return NewApp(cfg, zerolog.Nop())
}

func TestSimulateRunsScriptedScenario(t *testing.T) {
	a := testApp(t, "app:\n  environment: test\n")
	var out bytes.Buffer

	err := a.Simulate(context.Background(), SimulateOptions{
		ScenarioPath: writeFile(t, "scenario.json", scenarioJSON),
		Out:          &out,
	})
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "unanimous")
	assert.Contains(t, text, "AI-3=buy")
	assert.Contains(t, text, "acct-1")
	assert.Contains(t, text, "97000.00")
	assert.Contains(t, text, "hold")
	// BTC: analysis, risk, intent, accepted, cooldown. ETH: analysis, risk.
	assert.Contains(t, text, "audit entries: 7  orders: 1")
}

func TestSimulateSingleCoin(t *testing.T) {
	a := testApp(t, "app:\n  environment: test\n")
	var out bytes.Buffer

	err := a.Simulate(context.Background(), SimulateOptions{
		ScenarioPath: writeFile(t, "scenario.json", scenarioJSON),
		Coins:        []market.Coin{market.ETH},
		Out:          &out,
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "audit entries: 2  orders: 0")
	assert.NotContains(t, out.String(), "acct-1")
}

func TestLoadSimulationRejectsBadAccounts(t *testing.T) {
	_, err := LoadSimulation(writeFile(t, "bad.json", `{"accounts":[{"account_id":"a","coin":"BTC","mode":"yolo"}]}`))
	assert.Error(t, err)

	_, err = LoadSimulation(writeFile(t, "anon.json", `{"accounts":[{"coin":"BTC","mode":"observe"}]}`))
	assert.Error(t, err)

	_, err = LoadSimulation(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestBuildVoters(t *testing.T) {
	a := testApp(t, "app:\n  environment: test\n")
	_, err := a.buildVoters()
	assert.Error(t, err, "no provider enabled")

	a = testApp(t, `ai:
  doubao:
    enabled: true
    api_key: k1
  openai:
    enabled: true
    api_key: k3
  deepseek:
    enabled: true
    api_key: k4
`)
	voters, err := a.buildVoters()
	require.NoError(t, err)
	require.Len(t, voters, 2)
	assert.Equal(t, "AI-1", voters[0].ID)
	assert.Equal(t, "doubao-pro-32k", voters[0].Chain[0].Models.Cheap.Model)
	assert.Equal(t, "AI-3", voters[1].ID)
	require.Len(t, voters[1].Chain, 2)
	assert.Equal(t, "openai", voters[1].Chain[0].Name)
	assert.Equal(t, "deepseek", voters[1].Chain[1].Name)
	assert.Equal(t, 0.005, voters[1].Chain[0].Models.Premium.CostPer1KTok)
}

func TestCommandsRequireDatabase(t *testing.T) {
	a := testApp(t, "app:\n  environment: test\n")
	ctx := context.Background()

	assert.Error(t, a.Migrate(ctx))
	assert.Error(t, a.ShowOrders(ctx, ShowOptions{Limit: 10}))
	assert.Error(t, a.VerifyAudit(ctx, 1, 10, nil))
	assert.Error(t, a.Export(ctx, ExportOptions{Coin: market.BTC, CSVPath: filepath.Join(t.TempDir(), "out.csv")}))
	assert.Error(t, a.VerifyAudit(ctx, 5, 1, nil), "inverted range")
}

func TestDownsampleAnalyses(t *testing.T) {
	records := make([]storage.AnalysisRecord, 10)
	for i := range records {
		records[i] = storage.AnalysisRecord{WhaleScore: float64(i)}
	}

	got := downsampleAnalyses(records, 4)
	require.Len(t, got, 4)
	assert.Equal(t, 0.0, got[0].WhaleScore)
	assert.Equal(t, 9.0, got[3].WhaleScore)

	assert.Len(t, downsampleAnalyses(records, 20), 10)
	assert.Equal(t, 9.0, downsampleAnalyses(records, 1)[0].WhaleScore)
}

func TestWriteAnalysesCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "btc.csv")
	records := []storage.AnalysisRecord{{
		AnalysisID:      "a-1",
		Coin:            market.BTC,
		FinalAction:     market.Buy,
		FinalConfidence: 0.88,
		RiskLevel:       market.P2,
		ConsensusType:   "unanimous",
		ModelTier:       "cheap",
		WhaleScore:      40,
		VolatilityRatio: 1,
		CreatedAt:       time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC),
	}}
	require.NoError(t, writeAnalysesCSV(path, records))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "created_at", rows[0][0])
	assert.Equal(t, []string{"2025-01-01T10:00:00Z", "a-1", "BTC", "buy", "0.8800", "P2", "unanimous", "false", "cheap", "40.00", "1.000"}, rows[1])
}

func TestFormatVotesSorted(t *testing.T) {
	got := formatVotes(map[string]market.Action{"AI-3": market.Sell, "AI-1": market.Buy, "AI-2": market.Hold})
	assert.Equal(t, "AI-1=buy AI-2=hold AI-3=sell", got)
}
