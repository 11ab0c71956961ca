// Package arbitration turns the votes of several models into one decision.
package arbitration

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"aitrader/internal/ai"
	"aitrader/internal/market"
)

// ConsensusType classifies a vote outcome.
type ConsensusType string

const (
	Unanimous ConsensusType = "unanimous"
	Majority  ConsensusType = "majority"
	Diverged  ConsensusType = "diverged"
)

const (
	unanimousBoost    = 1.1
	majorityPenalty   = 0.9
	whaleOverrideAt   = 85.0
	whaleEscalateAt   = 75.0
	whaleBonus        = 0.1
	highVolatilityAt  = 2.0
	volatilityPenalty = 0.7
	degradedPenalty   = 0.8
)

// Input carries everything one arbitration needs.
type Input struct {
	Outputs         []ai.Output
	Coin            market.Coin
	WhaleScore      float64
	VolatilityRatio float64
	Degraded        bool
	Tier            ai.ModelTier
}

// Result is the arbitrated decision for one coin and cycle.
type Result struct {
	AnalysisID      string                   `json:"analysis_id"`
	Coin            market.Coin              `json:"coin"`
	FinalAction     market.Action            `json:"final_action"`
	FinalConfidence float64                  `json:"final_confidence"`
	RiskLevel       market.RiskLevel         `json:"risk_level"`
	VoteBreakdown   map[string]market.Action `json:"vote_breakdown"`
	ConsensusType   ConsensusType            `json:"consensus_type"`
	WhaleOverride   bool                     `json:"whale_override"`
	ModelTier       ai.ModelTier             `json:"model_tier"`
	Reason          string                   `json:"reason,omitempty"`
	AnalysedAt      time.Time                `json:"analysed_at"`
	Outputs         []ai.Output              `json:"ai_outputs"`
}

// Arbiter tallies votes. It holds no mutable state.
type Arbiter struct {
	now    func() time.Time
	logger zerolog.Logger
}

// New constructs an Arbiter. now may be nil.
func New(now func() time.Time, logger zerolog.Logger) *Arbiter {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Arbiter{now: now, logger: logger.With().Str("component", "arbiter").Logger()}
}

// Quorum is the number of same-side votes needed for a majority among n voters.
// With three voters it is two.
func Quorum(n int) int {
	q := n/2 + 1
	if q < 2 {
		q = 2
	}
	return q
}

// Arbitrate applies the consensus rules and the whale/volatility/health adjustments.
func (a *Arbiter) Arbitrate(in Input) Result {
	n := len(in.Outputs)
	if n == 0 {
		return a.hold(in, "no outputs")
	}

	breakdown := make(map[string]market.Action, n)
	counts := map[market.Action]int{}
	for _, out := range in.Outputs {
		breakdown[out.VoterID] = out.Analysis.Action
		counts[out.Analysis.Action]++
	}

	first := in.Outputs[0].Analysis.Action
	var (
		action    market.Action
		consensus ConsensusType
		base      float64
	)
	switch {
	case n >= 3 && counts[first] == n:
		action = first
		consensus = Unanimous
		base = meanConfidence(in.Outputs, "") * unanimousBoost
	case counts[market.Buy] >= Quorum(n) || counts[market.Sell] >= Quorum(n):
		action = market.Buy
		if counts[market.Sell] > counts[market.Buy] {
			action = market.Sell
		}
		consensus = Majority
		base = meanConfidence(in.Outputs, action) * majorityPenalty
	default:
		return a.hold(in, "diverged")
	}

	confidence := math.Min(1, base)
	risk := in.Outputs[0].Analysis.RiskLevel
	if !risk.Valid() {
		risk = market.P2
	}

	whaleOverride := false
	if in.WhaleScore > whaleOverrideAt {
		whaleOverride = true
		risk = market.P0
		confidence = math.Min(1, confidence+whaleBonus)
	} else if in.WhaleScore > whaleEscalateAt && risk == market.P2 {
		risk = market.P1
	}

	if in.VolatilityRatio > highVolatilityAt {
		confidence *= volatilityPenalty
	}
	if in.Degraded {
		confidence *= degradedPenalty
	}

	return Result{
		AnalysisID:      uuid.NewString(),
		Coin:            in.Coin,
		FinalAction:     action,
		FinalConfidence: round4(confidence),
		RiskLevel:       risk,
		VoteBreakdown:   breakdown,
		ConsensusType:   consensus,
		WhaleOverride:   whaleOverride,
		ModelTier:       in.Tier,
		AnalysedAt:      a.now(),
		Outputs:         in.Outputs,
	}
}

func (a *Arbiter) hold(in Input, reason string) Result {
	a.logger.Info().Str("coin", string(in.Coin)).Str("reason", reason).Int("outputs", len(in.Outputs)).Msg("holding")
	outputs := in.Outputs
	if outputs == nil {
		outputs = []ai.Output{}
	}
	return Result{
		AnalysisID:      uuid.NewString(),
		Coin:            in.Coin,
		FinalAction:     market.Hold,
		FinalConfidence: 0,
		RiskLevel:       market.P2,
		VoteBreakdown:   map[string]market.Action{},
		ConsensusType:   Diverged,
		ModelTier:       in.Tier,
		Reason:          reason,
		AnalysedAt:      a.now(),
		Outputs:         outputs,
	}
}

// meanConfidence averages all outputs, or only those voting for action when set.
func meanConfidence(outputs []ai.Output, action market.Action) float64 {
	var sum float64
	var n int
	for _, out := range outputs {
		if action != "" && out.Analysis.Action != action {
			continue
		}
		sum += out.Analysis.Confidence
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
