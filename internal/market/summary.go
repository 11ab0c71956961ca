package market

import "time"

// Summary is the pre-computed market record supplied by the data layer.
type Summary struct {
	Coin              Coin     `json:"coin"`
	CurrentPrice      float64  `json:"current_price"`
	Change24hPct      float64  `json:"change_24h_pct"`
	Change7dPct       float64  `json:"change_7d_pct"`
	Change30dPct      float64  `json:"change_30d_pct"`
	YearHigh          float64  `json:"year_high"`
	YearLow           float64  `json:"year_low"`
	PricePositionPct  float64  `json:"price_position_pct"`
	RSI14             float64  `json:"rsi_14"`
	MACDHistogram     float64  `json:"macd_histogram"`
	ADX               float64  `json:"adx_value"`
	BBWidth           float64  `json:"bb_width"`
	EMA8              float64  `json:"ema_8"`
	EMA21             float64  `json:"ema_21"`
	EMA55             float64  `json:"ema_55"`
	EMA200            float64  `json:"ema_200"`
	MAAlignmentScore  float64  `json:"ma_alignment_score"`
	ATR5m             float64  `json:"atr_5m"`
	ATR1h             float64  `json:"atr_1h"`
	VolatilityRegime  string   `json:"volatility_regime"`
	RegimeShift       bool     `json:"regime_shift_flag"`
	VolumeRatio5m     float64  `json:"volume_ratio_5m"`
	OrderbookImbal    float64  `json:"orderbook_imbalance"`
	NetFlow5s         float64  `json:"net_flow_5s"`
	TakerBuyRatio5s   float64  `json:"taker_buy_ratio_5s"`
	WhaleScore        float64  `json:"whale_score"`
	WhaleBias         string   `json:"whale_bias"`
	TrendDirection    string   `json:"trend_direction"`
	BreakStructure5m  bool     `json:"break_structure_5m"`
	FlashMove         bool     `json:"flash_move_flag"`
	POC               float64  `json:"poc"`
	SpreadPercent     float64  `json:"spread_percent"`
	SlippageMedium    float64  `json:"slippage_medium"`
	BTCTrendScore     float64  `json:"btc_trend_score"`
	SOLBTCCorrelation *float64 `json:"sol_btc_correlation,omitempty"`
}

// Snapshot bundles a summary with the extra risk inputs the decision layer needs.
type Snapshot struct {
	Summary               Summary   `json:"summary"`
	PriceChange5mPct      float64   `json:"price_change_5m_pct"`
	OrderbookDepthDropPct float64   `json:"orderbook_depth_drop_pct"`
	ATRMultiplier         float64   `json:"atr_multiplier"`
	VolatilityRatio       float64   `json:"volatility_ratio"`
	APIDegraded           bool      `json:"api_degraded"`
	ObservedAt            time.Time `json:"observed_at"`
}
