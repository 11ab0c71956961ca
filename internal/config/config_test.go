package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aitrader/internal/market"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  environment: test\n"))
	require.NoError(t, err)

	assert.Equal(t, "aitrader", cfg.App.Name)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, 30*time.Second, cfg.AI.Timeout)
	assert.Equal(t, "paper", cfg.Exchange.Mode)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second}, cfg.Execution.Backoff)
	assert.Equal(t, 85.0, cfg.Risk.Thresholds.WhaleP0)
	assert.Equal(t, 1.5, cfg.Risk.Thresholds.VolatilityUpgrade)
	assert.Equal(t, "gemini-2.0-flash", cfg.AI.Gemini.CheapModel)
	assert.Equal(t, 0.005, cfg.AI.OpenAI.PremiumCostPer1K)

	coins, err := cfg.CoinList()
	require.NoError(t, err)
	assert.Equal(t, []market.Coin{market.BTC, market.ETH, market.SOL}, coins)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("AITRADER_SCHEDULER_INTERVAL", "1m")
	t.Setenv("AITRADER_AUDIT_DURABILITY", "require_p0")

	cfg, err := Load(writeConfig(t, "market:\n  coins: [BTC]\n"))
	require.NoError(t, err)
	assert.Equal(t, time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, "require_p0", cfg.Audit.Durability)
	assert.Equal(t, []string{"BTC"}, cfg.Market.Coins)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"unknown coin":        "market:\n  coins: [DOGE]\n",
		"relaxed confidence":  "risk:\n  thresholds:\n    min_confidence: 0.4\n",
		"okx without keys":    "exchange:\n  mode: okx\n",
		"bad exchange mode":   "exchange:\n  mode: live\n",
		"bad durability":      "audit:\n  durability: sometimes\n",
		"telegram incomplete": "alerting:\n  telegram:\n    enabled: true\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := &Config{Export: ExportConfig{MaxDataPoints: 10}}
	assert.Equal(t, 10, cfg.ResolveMaxPoints(0))
	assert.Equal(t, 3, cfg.ResolveMaxPoints(3))
}
