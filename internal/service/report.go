package service

import (
	"github.com/shopspring/decimal"

	"aitrader/internal/arbitration"
	"aitrader/internal/execution"
	"aitrader/internal/health"
	"aitrader/internal/market"
	"aitrader/internal/risk"
)

// CycleReport summarises one coin's pass through the pipeline.
type CycleReport struct {
	Coin          market.Coin        `json:"coin"`
	Result        arbitration.Result `json:"result"`
	EngineRisk    market.RiskLevel   `json:"engine_risk_level"`
	EffectiveRisk market.RiskLevel   `json:"effective_risk_level"`
	Policy        risk.Action        `json:"policy"`
	Mode          health.Mode        `json:"mode"`
	Skipped       string             `json:"skipped,omitempty"`
	Accounts      []AccountOutcome   `json:"accounts,omitempty"`
}

// AccountOutcome is what happened for one account.
type AccountOutcome struct {
	AccountID string                 `json:"account_id"`
	OrderSize decimal.Decimal        `json:"order_size"`
	Allowed   bool                   `json:"allowed"`
	Reason    string                 `json:"reason,omitempty"`
	Batch     *execution.BatchResult `json:"batch,omitempty"`
}
