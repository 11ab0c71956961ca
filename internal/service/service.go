package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"aitrader/internal/ai"
	"aitrader/internal/alerting"
	"aitrader/internal/arbitration"
	"aitrader/internal/audit"
	"aitrader/internal/clock"
	"aitrader/internal/execution"
	"aitrader/internal/fetcher"
	"aitrader/internal/health"
	"aitrader/internal/market"
	"aitrader/internal/permission"
	"aitrader/internal/risk"
	"aitrader/internal/scheduler"
	"aitrader/internal/storage"
)

// Analyzer fans a prompt out to the model voters.
type Analyzer interface {
	Analyze(ctx context.Context, prompt string, coin market.Coin, params ai.TierParams) ([]ai.Output, ai.ModelTier)
}

// Executor places a logical order as paced batches.
type Executor interface {
	ExecuteOrder(ctx context.Context, p execution.Params) execution.BatchResult
}

// AnalysisStore persists arbitration outcomes.
type AnalysisStore interface {
	SaveAnalysis(ctx context.Context, rec storage.AnalysisRecord) error
}

// Recorder observes pipeline decisions.
type Recorder interface {
	ObserveDecision(coin market.Coin, action market.Action, consensus string)
	ObserveDenial(coin market.Coin)
	SetHealthScore(score float64)
}

// Deps are the collaborators of the pipeline. Analyses, Locker and Recorder
// are optional.
type Deps struct {
	Source      fetcher.Source
	Analyzer    Analyzer
	Arbiter     *arbitration.Arbiter
	Risk        *risk.Engine
	Permissions *permission.Engine
	Executor    Executor
	Cooldowns   risk.CooldownStore
	Audit       *audit.Logger
	Health      *health.Manager
	Scorer      health.Scorer
	Notifier    alerting.Notifier
	Analyses    AnalysisStore
	Locker      storage.AdvisoryLocker
	Recorder    Recorder
	Clock       clock.Clock
}

// Options tune the pipeline.
type Options struct {
	Coins   []market.Coin
	LockKey int64
}

// Service orchestrates analysis, gating, execution and audit for each tick.
type Service struct {
	deps   Deps
	coins  []market.Coin
	lock   int64
	logger zerolog.Logger

	lastDay time.Time
}

// New constructs the trading service and subscribes to health mode changes.
func New(opts Options, deps Deps, logger zerolog.Logger) *Service {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Scorer == (health.Scorer{}) {
		deps.Scorer = health.DefaultScorer()
	}
	coins := opts.Coins
	if len(coins) == 0 {
		coins = market.SupportedCoins
	}
	s := &Service{
		deps:   deps,
		coins:  coins,
		lock:   opts.LockKey,
		logger: logger.With().Str("component", "service").Logger(),
	}
	if deps.Health != nil {
		deps.Health.OnModeChange(s.onModeChange)
	}
	return s
}

// Run begins the aligned analysis loop.
func (s *Service) Run(ctx context.Context, sched *scheduler.Scheduler) error {
	if sched == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return sched.Run(ctx, s.ProcessBucket)
}

// ProcessBucket runs one analysis tick for every configured coin. Only one
// process may run a tick at a time; the others skip it.
func (s *Service) ProcessBucket(ctx context.Context, bucket time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("bucket", bucket).Msg("skip bucket because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	if err := s.Prepare(ctx); err != nil {
		return err
	}

	var errs []error
	for _, coin := range s.coins {
		if _, err := s.ProcessCoin(ctx, coin); err != nil {
			s.logger.Error().Err(err).Str("coin", string(coin)).Time("bucket", bucket).Msg("coin cycle failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Prepare seeds the audit chain, rolls daily counters over and refreshes the
// health mode. ProcessBucket calls it before the coin cycles.
func (s *Service) Prepare(ctx context.Context) error {
	// another writer may have extended the chain since our last tick
	if err := s.deps.Audit.Init(ctx); err != nil {
		return fmt.Errorf("seed audit chain: %w", err)
	}
	s.rollover(ctx)
	s.refreshHealth(ctx)
	return nil
}

// ProcessCoin analyses one coin and, when the decision survives every gate,
// executes it for each configured account.
func (s *Service) ProcessCoin(ctx context.Context, coin market.Coin) (CycleReport, error) {
	snap, err := s.deps.Source.FetchSnapshot(ctx, coin)
	if err != nil {
		return CycleReport{}, err
	}

	now := s.deps.Clock.Now()
	signals := risk.SignalsFromSnapshot(snap)
	engineLevel := s.deps.Risk.DetermineRiskLevel(signals)

	prompt := market.BuildPrompt(snap.Summary, now)
	outputs, tier := s.deps.Analyzer.Analyze(ctx, prompt, coin, ai.TierParams{
		WhaleScore:      snap.Summary.WhaleScore,
		VolatilityRatio: snap.VolatilityRatio,
		RiskLevel:       engineLevel,
		FlashMove:       snap.Summary.FlashMove,
		RegimeShift:     snap.Summary.RegimeShift,
	})

	result := s.deps.Arbiter.Arbitrate(arbitration.Input{
		Outputs:         outputs,
		Coin:            coin,
		WhaleScore:      snap.Summary.WhaleScore,
		VolatilityRatio: snap.VolatilityRatio,
		Degraded:        s.deps.Health.Degraded() || snap.APIDegraded,
		Tier:            tier,
	})

	level := market.MoreSevere(engineLevel, result.RiskLevel)
	policy := s.deps.Risk.Actions(level)
	report := CycleReport{
		Coin:          coin,
		Result:        result,
		EngineRisk:    engineLevel,
		EffectiveRisk: level,
		Policy:        policy,
		Mode:          s.deps.Health.Mode(),
	}

	s.saveAnalysis(ctx, result, snap)
	s.record(ctx, audit.Event{
		Type:       audit.EventAnalysisCompleted,
		Coin:       coin,
		AnalysisID: result.AnalysisID,
		RiskLevel:  level,
		Data:       result,
	})
	s.record(ctx, audit.Event{
		Type:       audit.EventRiskAssessed,
		Coin:       coin,
		AnalysisID: result.AnalysisID,
		RiskLevel:  level,
		Data: map[string]any{
			"engine_risk_level":      engineLevel,
			"arbitration_risk_level": result.RiskLevel,
			"effective_risk_level":   level,
			"signals":                signals,
			"policy":                 policy,
		},
	})
	if s.deps.Recorder != nil {
		s.deps.Recorder.ObserveDecision(coin, result.FinalAction, string(result.ConsensusType))
	}

	log := s.logger.With().
		Str("coin", string(coin)).
		Str("analysis_id", result.AnalysisID).
		Str("action", string(result.FinalAction)).
		Float64("confidence", result.FinalConfidence).
		Str("risk_level", string(level)).
		Logger()

	if result.FinalAction == market.Hold {
		report.Skipped = "hold"
		log.Info().Str("reason", result.Reason).Msg("decision is hold")
		return report, nil
	}

	s.notify(ctx, alerting.Notification{
		Kind:          alerting.KindTradeSignal,
		At:            now,
		Coin:          coin,
		AnalysisID:    result.AnalysisID,
		Action:        result.FinalAction,
		Confidence:    result.FinalConfidence,
		RiskLevel:     level,
		Consensus:     string(result.ConsensusType),
		WhaleOverride: result.WhaleOverride,
		Votes:         result.VoteBreakdown,
		Urgent:        policy.NotifyAllChannels,
	})

	if !s.deps.Risk.Validate(result.FinalAction, result.FinalConfidence, level) {
		report.Skipped = "confidence below floor"
		return report, nil
	}
	if !s.deps.Health.CanExecute() {
		report.Skipped = "execution suspended in " + string(s.deps.Health.Mode()) + " mode"
		log.Warn().Str("mode", string(s.deps.Health.Mode())).Msg("execution suspended")
		return report, nil
	}

	accounts, err := s.deps.Permissions.Accounts(ctx, coin)
	if err != nil {
		return report, err
	}
	for _, rec := range accounts {
		report.Accounts = append(report.Accounts, s.executeForAccount(ctx, rec, result, level, policy, snap))
	}
	return report, nil
}

func (s *Service) executeForAccount(ctx context.Context, rec permission.Record, result arbitration.Result, level market.RiskLevel, policy risk.Action, snap market.Snapshot) AccountOutcome {
	coin := result.Coin
	out := AccountOutcome{AccountID: rec.AccountID}
	log := s.logger.With().
		Str("account_id", rec.AccountID).
		Str("coin", string(coin)).
		Str("analysis_id", result.AnalysisID).
		Logger()

	if s.deps.Cooldowns != nil {
		state, active, err := s.deps.Cooldowns.Active(ctx, rec.AccountID, coin)
		if err != nil {
			out.Reason = "cooldown lookup failed"
			log.Error().Err(err).Msg("cooldown lookup failed")
			return out
		}
		if active && !policy.CanOverrideCooldown {
			out.Reason = "cooldown active until " + state.ExpiresAt.UTC().Format(time.RFC3339)
			s.record(ctx, audit.Event{
				Type:       audit.EventCooldownActive,
				AccountID:  rec.AccountID,
				Coin:       coin,
				AnalysisID: result.AnalysisID,
				RiskLevel:  level,
				Data:       state,
			})
			return out
		}
	}

	size := OrderSize(rec.PositionBudget, policy.MaxPositionPct)
	out.OrderSize = size
	if !size.IsPositive() {
		out.Reason = "no position budget"
		return out
	}

	check, err := s.deps.Permissions.Check(ctx, permission.Request{
		AccountID:         rec.AccountID,
		Coin:              coin,
		Action:            result.FinalAction,
		OrderSize:         size,
		SlippageEstimate:  snap.Summary.SlippageMedium,
		SystemHealthScore: s.deps.Health.Score(),
	})
	if err != nil {
		out.Reason = "permission lookup failed"
		log.Error().Err(err).Msg("permission check failed")
		return out
	}
	if !check.Allowed {
		out.Reason = check.Reason
		if s.deps.Recorder != nil {
			s.deps.Recorder.ObserveDenial(coin)
		}
		s.record(ctx, audit.Event{
			Type:       audit.EventPermissionDenied,
			AccountID:  rec.AccountID,
			Coin:       coin,
			AnalysisID: result.AnalysisID,
			RiskLevel:  level,
			Data:       check,
		})
		return out
	}

	params := execution.Params{
		AccountID:      rec.AccountID,
		Coin:           coin,
		Side:           result.FinalAction,
		Size:           size,
		RiskLevel:      level,
		AnalysisID:     result.AnalysisID,
		MaxSlippagePct: policy.MaxSlippagePct,
		BatchCount:     policy.BatchCount,
		BatchInterval:  policy.BatchInterval,
	}
	if _, err := s.deps.Audit.Log(ctx, audit.Event{
		Type:       audit.EventOrderIntent,
		AccountID:  rec.AccountID,
		Coin:       coin,
		AnalysisID: result.AnalysisID,
		RiskLevel:  level,
		Data: map[string]any{
			"side":           params.Side,
			"size":           size,
			"batch_count":    params.BatchCount,
			"batch_interval": params.BatchInterval.String(),
			"max_slippage":   params.MaxSlippagePct,
			"effective_mode": check.EffectiveMode,
		},
	}); err != nil {
		out.Reason = "order intent not durable"
		log.Error().Err(err).Msg("refusing to execute without a durable intent record")
		return out
	}

	out.Allowed = true
	batch := s.deps.Executor.ExecuteOrder(ctx, params)
	out.Batch = &batch

	for _, r := range batch.Results {
		eventType := audit.EventOrderAccepted
		if r.Status == execution.StatusFailed {
			eventType = audit.EventOrderFailed
		}
		s.record(ctx, audit.Event{
			Type:       eventType,
			AccountID:  rec.AccountID,
			Coin:       coin,
			OrderID:    r.ClientOrderID,
			AnalysisID: result.AnalysisID,
			RiskLevel:  level,
			Data:       r,
		})
	}

	if batch.Committed.IsPositive() {
		if err := s.deps.Permissions.UpdateDailyStats(ctx, rec.AccountID, coin, batch.Committed); err != nil {
			log.Error().Err(err).Msg("failed to update daily stats")
		}
	}

	if batch.Success && s.deps.Cooldowns != nil {
		state := risk.CooldownState{
			AccountID: rec.AccountID,
			Coin:      coin,
			ExpiresAt: s.deps.Clock.Now().Add(policy.Cooldown),
			RiskLevel: level,
		}
		if err := s.deps.Cooldowns.Start(ctx, state); err != nil {
			log.Error().Err(err).Msg("failed to start cooldown")
		} else {
			s.record(ctx, audit.Event{
				Type:       audit.EventCooldownStarted,
				AccountID:  rec.AccountID,
				Coin:       coin,
				AnalysisID: result.AnalysisID,
				RiskLevel:  level,
				Data:       state,
			})
		}
	}

	if batch.Success {
		s.notify(ctx, alerting.Notification{
			Kind:       alerting.KindExecution,
			At:         s.deps.Clock.Now(),
			Coin:       coin,
			AnalysisID: result.AnalysisID,
			Action:     result.FinalAction,
			RiskLevel:  level,
			AccountID:  rec.AccountID,
			OrderSize:  size,
			FilledSize: batch.TotalFilled,
			AvgPrice:   batch.AvgPrice,
			Urgent:     policy.NotifyAllChannels,
		})
	}

	log.Info().
		Bool("success", batch.Success).
		Str("size", size.String()).
		Str("filled", batch.TotalFilled.String()).
		Str("avg_price", batch.AvgPrice.String()).
		Msg("execution finished")
	return out
}

// OrderSize is the account's position budget scaled by the tier's position cap.
func OrderSize(budget decimal.Decimal, maxPositionPct float64) decimal.Decimal {
	return budget.Mul(decimal.NewFromFloat(maxPositionPct)).Div(decimal.NewFromInt(100))
}

func (s *Service) refreshHealth(ctx context.Context) {
	score := health.DegradedAt
	dims, err := s.deps.Source.FetchHealth(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("health fetch failed, treating system as degraded")
	} else {
		score = s.deps.Scorer.Score(dims)
	}
	s.deps.Health.UpdateFromScore(score)
	if s.deps.Recorder != nil {
		s.deps.Recorder.SetHealthScore(score)
	}
}

// rollover resets daily counters the first time a tick lands on a new UTC day.
func (s *Service) rollover(ctx context.Context) {
	day := s.deps.Clock.Now().UTC().Truncate(24 * time.Hour)
	if s.lastDay.IsZero() {
		s.lastDay = day
		return
	}
	if !day.After(s.lastDay) {
		return
	}
	if err := s.deps.Permissions.ResetDailyStats(ctx); err != nil {
		s.logger.Error().Err(err).Msg("daily reset failed")
		return
	}
	s.record(ctx, audit.Event{
		Type: audit.EventDailyReset,
		Data: map[string]string{"previous_day": s.lastDay.Format("2006-01-02"), "day": day.Format("2006-01-02")},
	})
	s.lastDay = day
}

func (s *Service) onModeChange(prev, next health.Mode) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	score := s.deps.Health.Score()
	s.record(ctx, audit.Event{
		Type: audit.EventModeChanged,
		Data: map[string]any{"previous": prev, "current": next, "health_score": score},
	})
	// emergency silences trade notifications but not the mode alert itself
	if s.deps.Notifier != nil {
		note := alerting.Notification{
			Kind:        alerting.KindModeChange,
			At:          s.deps.Clock.Now(),
			PrevMode:    string(prev),
			NextMode:    string(next),
			HealthScore: score,
			Urgent:      true,
		}
		if err := s.deps.Notifier.Notify(ctx, note); err != nil {
			s.logger.Error().Err(err).Msg("failed to send mode change notification")
		}
	}
}

func (s *Service) saveAnalysis(ctx context.Context, result arbitration.Result, snap market.Snapshot) {
	if s.deps.Analyses == nil {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to encode analysis")
		return
	}
	rec := storage.AnalysisRecord{
		AnalysisID:      result.AnalysisID,
		Coin:            result.Coin,
		FinalAction:     result.FinalAction,
		FinalConfidence: result.FinalConfidence,
		RiskLevel:       result.RiskLevel,
		ConsensusType:   string(result.ConsensusType),
		WhaleOverride:   result.WhaleOverride,
		ModelTier:       string(result.ModelTier),
		WhaleScore:      snap.Summary.WhaleScore,
		VolatilityRatio: snap.VolatilityRatio,
		Payload:         payload,
		CreatedAt:       result.AnalysedAt,
	}
	if err := s.deps.Analyses.SaveAnalysis(ctx, rec); err != nil {
		s.logger.Error().Err(err).Str("analysis_id", result.AnalysisID).Msg("failed to persist analysis")
	}
}

// record writes a best-effort audit entry; durable events use Audit.Log directly.
func (s *Service) record(ctx context.Context, ev audit.Event) {
	if _, err := s.deps.Audit.Log(ctx, ev); err != nil {
		s.logger.Error().Err(err).Str("event_type", string(ev.Type)).Msg("audit entry not durable")
	}
}

func (s *Service) notify(ctx context.Context, note alerting.Notification) {
	if s.deps.Notifier == nil || !s.deps.Health.CanNotify() {
		return
	}
	if err := s.deps.Notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Str("kind", string(note.Kind)).Msg("failed to dispatch notification")
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lock == 0 || s.deps.Locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.deps.Locker.TryAdvisoryLock(ctx, s.lock)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
