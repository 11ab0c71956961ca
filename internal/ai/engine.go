package ai

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"aitrader/internal/market"
)

// DefaultTimeout bounds every voter call.
const DefaultTimeout = 30 * time.Second

// Request is a single completion request.
type Request struct {
	Prompt string
	Model  string
}

// Completion is the raw reply of a provider.
type Completion struct {
	Content    string
	TokensUsed int
}

// CallFunc performs one completion against a provider.
type CallFunc func(ctx context.Context, req Request) (Completion, error)

// Provider describes one model backend.
type Provider struct {
	Name   string
	Models ModelTiers
	Call   CallFunc
}

// Voter is a voting slot. Its chain is tried in order; the first provider
// that answers wins the slot.
type Voter struct {
	ID       string
	Priority int
	Chain    []Provider
}

// Recorder observes per-voter outcomes.
type Recorder interface {
	ObserveProvider(voterID, provider string, ok bool, latency time.Duration)
}

// EngineOptions tune the analysis engine.
type EngineOptions struct {
	Timeout    time.Duration
	Thresholds TierThresholds
	Recorder   Recorder
}

// Engine fans a prompt out to every voter concurrently.
type Engine struct {
	voters     []Voter
	timeout    time.Duration
	thresholds TierThresholds
	recorder   Recorder
	logger     zerolog.Logger
}

// NewEngine constructs an Engine. Voters are ordered by ascending priority.
func NewEngine(opts EngineOptions, voters []Voter, logger zerolog.Logger) *Engine {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	thresholds := opts.Thresholds
	if thresholds == (TierThresholds{}) {
		thresholds = DefaultTierThresholds()
	}

	ordered := make([]Voter, len(voters))
	copy(ordered, voters)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority < ordered[j].Priority })

	return &Engine{
		voters:     ordered,
		timeout:    timeout,
		thresholds: thresholds,
		recorder:   opts.Recorder,
		logger:     logger.With().Str("component", "ai_engine").Logger(),
	}
}

// Voters returns the configured voter ids in priority order.
func (e *Engine) Voters() []string {
	ids := make([]string, 0, len(e.voters))
	for _, v := range e.voters {
		ids = append(ids, v.ID)
	}
	return ids
}

// Analyze selects the model tier and queries every voter. Failed or timed out
// voters are left out; the result may be empty.
func (e *Engine) Analyze(ctx context.Context, prompt string, coin market.Coin, params TierParams) ([]Output, ModelTier) {
	tier := e.thresholds.Select(params)

	slots := make([]*Output, len(e.voters))
	var wg sync.WaitGroup
	for i, voter := range e.voters {
		wg.Add(1)
		go func(i int, voter Voter) {
			defer wg.Done()

			callCtx, cancel := context.WithTimeout(ctx, e.timeout)
			defer cancel()

			out, err := e.callVoter(callCtx, voter, prompt, coin, tier)
			if err != nil {
				e.logger.Warn().Err(err).
					Str("voter", voter.ID).
					Str("coin", string(coin)).
					Msg("voter failed")
				return
			}
			slots[i] = &out
		}(i, voter)
	}
	wg.Wait()

	outputs := make([]Output, 0, len(slots))
	for _, out := range slots {
		if out != nil {
			outputs = append(outputs, *out)
		}
	}

	e.logger.Info().
		Str("coin", string(coin)).
		Str("tier", string(tier)).
		Int("outputs", len(outputs)).
		Int("voters", len(e.voters)).
		Msg("ai analysis complete")
	return outputs, tier
}

func (e *Engine) callVoter(ctx context.Context, voter Voter, prompt string, coin market.Coin, tier ModelTier) (Output, error) {
	if len(voter.Chain) == 0 {
		return Output{}, errors.New("voter has no providers")
	}

	var lastErr error
	for _, p := range voter.Chain {
		model := p.Models.For(tier)
		start := time.Now()
		comp, err := raceCall(ctx, p.Call, Request{Prompt: prompt, Model: model.Model})
		latency := time.Since(start)
		e.observe(voter.ID, p.Name, err == nil, latency)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", p.Name, err)
			if ctx.Err() != nil {
				break
			}
			e.logger.Debug().Err(err).Str("voter", voter.ID).Str("provider", p.Name).Msg("provider failed, trying next")
			continue
		}

		return Output{
			VoterID:       voter.ID,
			Provider:      p.Name,
			Model:         model.Model,
			Coin:          coin,
			LatencyMS:     latency.Milliseconds(),
			TokensUsed:    comp.TokensUsed,
			EstimatedCost: EstimateCost(comp.TokensUsed, model),
			Analysis:      ParseAnalysis(comp.Content),
		}, nil
	}
	return Output{}, lastErr
}

type callResult struct {
	comp Completion
	err  error
}

// raceCall returns whichever comes first: the call result or ctx expiry.
// A late result is dropped.
func raceCall(ctx context.Context, call CallFunc, req Request) (Completion, error) {
	if call == nil {
		return Completion{}, errors.New("provider call not configured")
	}
	done := make(chan callResult, 1)
	go func() {
		comp, err := call(ctx, req)
		done <- callResult{comp: comp, err: err}
	}()

	select {
	case <-ctx.Done():
		return Completion{}, fmt.Errorf("timed out: %w", ctx.Err())
	case res := <-done:
		return res.comp, res.err
	}
}

func (e *Engine) observe(voterID, provider string, ok bool, latency time.Duration) {
	if e.recorder != nil {
		e.recorder.ObserveProvider(voterID, provider, ok, latency)
	}
}
