package storage

import (
	"encoding/json"
	"time"

	"aitrader/internal/market"
)

// AnalysisRecord is one persisted arbitration outcome.
type AnalysisRecord struct {
	AnalysisID      string
	Coin            market.Coin
	FinalAction     market.Action
	FinalConfidence float64
	RiskLevel       market.RiskLevel
	ConsensusType   string
	WhaleOverride   bool
	ModelTier       string
	WhaleScore      float64
	VolatilityRatio float64
	Payload         json.RawMessage
	CreatedAt       time.Time
}

// OrderStats counts order rows by status since a point in time.
type OrderStats struct {
	Total       int64
	Pending     int64
	Submitted   int64
	Accepted    int64
	PartialFill int64
	Filled      int64
	Cancelled   int64
	Failed      int64
}
