package market

import (
	"fmt"
	"strings"
	"time"
)

const responseContract = `## Instructions
Respond ONLY with valid JSON in this exact format:
{
  "action": "buy|sell|hold",
  "confidence": 0.0-1.0,
  "risk_level": "P0|P1|P2",
  "recommended_size_pct": 1-8,
  "entry_price_range": [lower, upper],
  "stop_loss": price,
  "take_profit": [target1, target2],
  "whale_influence": "description",
  "key_factors": ["factor1", "factor2", "factor3"]
}`

// BuildPrompt renders the analysis prompt sent to every model.
func BuildPrompt(s Summary, now time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are a professional cryptocurrency trading analyst. Analyze the following %s/USDT market data and provide a trading recommendation.\n\n", s.Coin)
	fmt.Fprintf(&b, "## Market Data Summary (%s)\n\n", now.UTC().Format(time.RFC3339))

	fmt.Fprintf(&b, "**Price**: $%.2f\n", s.CurrentPrice)
	fmt.Fprintf(&b, "**Changes**: 24h: %.2f%% | 7d: %.2f%% | 30d: %.2f%%\n", s.Change24hPct, s.Change7dPct, s.Change30dPct)
	fmt.Fprintf(&b, "**Year Range**: $%.2f - $%.2f (Position: %.1f%%)\n\n", s.YearLow, s.YearHigh, s.PricePositionPct)

	b.WriteString("**Technical Indicators**:\n")
	fmt.Fprintf(&b, "- RSI(14): %.2f\n", s.RSI14)
	fmt.Fprintf(&b, "- MACD Histogram: %.4f\n", s.MACDHistogram)
	fmt.Fprintf(&b, "- ADX: %.2f\n", s.ADX)
	fmt.Fprintf(&b, "- BB Width: %.4f\n", s.BBWidth)
	fmt.Fprintf(&b, "- MA Alignment Score: %.0f/100\n\n", s.MAAlignmentScore)

	fmt.Fprintf(&b, "**Moving Averages**: EMA8=%.2f, EMA21=%.2f, EMA55=%.2f, EMA200=%.2f\n\n", s.EMA8, s.EMA21, s.EMA55, s.EMA200)
	fmt.Fprintf(&b, "**Volatility**: ATR(5m)=%.4f, ATR(1h)=%.4f, Regime=%s, RegimeShift=%t\n\n", s.ATR5m, s.ATR1h, s.VolatilityRegime, s.RegimeShift)
	fmt.Fprintf(&b, "**Order Flow**: Taker Buy Ratio(5s)=%.1f%%, Net Flow(5s)=%.2f, OB Imbalance=%.3f\n\n", s.TakerBuyRatio5s*100, s.NetFlow5s, s.OrderbookImbal)
	fmt.Fprintf(&b, "**Volume**: Volume Ratio(5m)=%.2fx\n\n", s.VolumeRatio5m)
	fmt.Fprintf(&b, "**Structure**: Trend=%s, StructureBreak(5m)=%t, FlashMove=%t\n\n", s.TrendDirection, s.BreakStructure5m, s.FlashMove)
	fmt.Fprintf(&b, "**Whale Intelligence**: Score=%.0f/100, Bias=%s\n\n", s.WhaleScore, s.WhaleBias)
	fmt.Fprintf(&b, "**Execution**: Spread=%.4f%%, Slippage(med)=%.4f%%\n\n", s.SpreadPercent, s.SlippageMedium)

	fmt.Fprintf(&b, "**Cross-Market**: BTC Trend Score=%.1f", s.BTCTrendScore)
	if s.SOLBTCCorrelation != nil {
		fmt.Fprintf(&b, ", SOL/BTC Correlation=%.3f", *s.SOLBTCCorrelation)
	}
	b.WriteString("\n\n")

	b.WriteString(responseContract)
	return b.String()
}
