package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"

	"aitrader/internal/ai"
	"aitrader/internal/audit"
	"aitrader/internal/clock"
	"aitrader/internal/execution"
	"aitrader/internal/fetcher"
	"aitrader/internal/market"
	"aitrader/internal/permission"
	"aitrader/internal/service"
)

// SimulateOptions configure a dry run against a scenario file.
type SimulateOptions struct {
	ScenarioPath string
	Coins        []market.Coin
	LiveAI       bool
	Out          io.Writer
}

// Simulation is the scenario file format: market fixtures, the accounts to
// trade for and, unless live AI is requested, the scripted voter replies.
type Simulation struct {
	fetcher.Scenario
	Accounts []SimAccount                 `json:"accounts"`
	Votes    map[market.Coin][]ScriptVote `json:"votes"`
}

// SimAccount is a permission record in scenario form.
type SimAccount struct {
	AccountID      string          `json:"account_id"`
	Coin           market.Coin     `json:"coin"`
	Mode           permission.Mode `json:"mode"`
	DailyLimit     decimal.Decimal `json:"daily_limit"`
	SingleOrderMax decimal.Decimal `json:"single_order_max"`
	PositionBudget decimal.Decimal `json:"position_budget"`
}

// ScriptVote is one voter reply replayed by the simulation.
type ScriptVote struct {
	VoterID  string      `json:"voter_id"`
	Provider string      `json:"provider"`
	Analysis ai.Analysis `json:"analysis"`
}

// LoadSimulation reads and validates a scenario file.
func LoadSimulation(path string) (Simulation, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Simulation{}, fmt.Errorf("read scenario: %w", err)
	}
	var sim Simulation
	if err := json.Unmarshal(raw, &sim); err != nil {
		return Simulation{}, fmt.Errorf("decode scenario %s: %w", path, err)
	}
	for i, acct := range sim.Accounts {
		if acct.AccountID == "" {
			return Simulation{}, fmt.Errorf("accounts[%d]: account_id is required", i)
		}
		if !acct.Mode.Valid() {
			return Simulation{}, fmt.Errorf("accounts[%d]: unknown mode %q", i, acct.Mode)
		}
	}
	return sim, nil
}

func (s Simulation) records() []permission.Record {
	recs := make([]permission.Record, 0, len(s.Accounts))
	for _, acct := range s.Accounts {
		recs = append(recs, permission.Record{
			AccountID:      acct.AccountID,
			Coin:           acct.Coin,
			Mode:           acct.Mode,
			DailyLimit:     acct.DailyLimit,
			SingleOrderMax: acct.SingleOrderMax,
			PositionBudget: acct.PositionBudget,
		})
	}
	return recs
}

// scriptedAnalyzer replays the scenario votes instead of calling providers.
type scriptedAnalyzer struct {
	votes      map[market.Coin][]ScriptVote
	thresholds ai.TierThresholds
}

func (s scriptedAnalyzer) Analyze(_ context.Context, _ string, coin market.Coin, params ai.TierParams) ([]ai.Output, ai.ModelTier) {
	tier := s.thresholds.Select(params)
	votes := s.votes[coin]
	outputs := make([]ai.Output, 0, len(votes))
	for _, v := range votes {
		outputs = append(outputs, ai.Output{
			VoterID:  v.VoterID,
			Provider: v.Provider,
			Model:    "scripted",
			Coin:     coin,
			Analysis: v.Analysis,
		})
	}
	return outputs, tier
}

// Simulate runs one cycle per coin against the scenario with in-memory
// stores and the paper exchange, then prints what happened.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	sim, err := LoadSimulation(opts.ScenarioPath)
	if err != nil {
		return err
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	var analyzer service.Analyzer
	if !opts.LiveAI {
		analyzer = scriptedAnalyzer{votes: sim.Votes, thresholds: a.tierThresholds()}
	}

	auditStore := audit.NewMemoryStore()
	orders := execution.NewMemoryOrders()

	// paper fills and cooldowns stay local whatever the config says
	cfg := *a.Config
	cfg.Exchange.Mode = "paper"
	cfg.Redis.Addr = ""
	sub := &App{Config: &cfg, Logger: a.Logger}

	pipeline, closePipeline, err := sub.buildPipeline(ctx, pipelineInputs{
		Source:      fetcher.NewStatic(sim.Scenario),
		Clock:       clock.New(),
		Analyzer:    analyzer,
		Permissions: permission.NewMemoryStore(sim.records()...),
		Audit:       auditStore,
		Orders:      orders,
	})
	if err != nil {
		return err
	}
	defer closePipeline()

	if err := pipeline.Prepare(ctx); err != nil {
		return err
	}

	coins := opts.Coins
	if len(coins) == 0 {
		for _, snap := range sim.Snapshots {
			coins = append(coins, snap.Summary.Coin)
		}
	}

	reports := make([]service.CycleReport, 0, len(coins))
	for _, coin := range coins {
		report, err := pipeline.ProcessCoin(ctx, coin)
		if err != nil {
			fmt.Fprintf(out, "%s: %v\n", coin, err)
			continue
		}
		reports = append(reports, report)
	}

	renderReports(out, reports)
	fmt.Fprintf(out, "\naudit entries: %d  orders: %d\n", len(auditStore.Entries()), len(orders.Orders()))
	return nil
}

func renderReports(out io.Writer, reports []service.CycleReport) {
	table := tablewriter.NewWriter(out)
	table.Header("Coin", "Action", "Confidence", "Consensus", "Risk", "Mode", "Votes", "Outcome")
	for _, r := range reports {
		outcome := r.Skipped
		if outcome == "" {
			outcome = fmt.Sprintf("%d account(s)", len(r.Accounts))
		}
		table.Append(
			string(r.Coin),
			string(r.Result.FinalAction),
			fmt.Sprintf("%.1f%%", r.Result.FinalConfidence*100),
			string(r.Result.ConsensusType),
			string(r.EffectiveRisk),
			string(r.Mode),
			formatVotes(r.Result.VoteBreakdown),
			outcome,
		)
	}
	table.Render()

	var accounts []service.AccountOutcome
	var coins []market.Coin
	for _, r := range reports {
		for _, acct := range r.Accounts {
			accounts = append(accounts, acct)
			coins = append(coins, r.Coin)
		}
	}
	if len(accounts) == 0 {
		return
	}

	fmt.Fprintln(out)
	table = tablewriter.NewWriter(out)
	table.Header("Account", "Coin", "Size", "Allowed", "Filled", "Avg Price", "Reason")
	for i, acct := range accounts {
		filled, avg := "-", "-"
		if acct.Batch != nil {
			filled = acct.Batch.TotalFilled.String()
			avg = acct.Batch.AvgPrice.StringFixed(2)
		}
		table.Append(
			acct.AccountID,
			string(coins[i]),
			acct.OrderSize.String(),
			fmt.Sprintf("%t", acct.Allowed),
			filled,
			avg,
			acct.Reason,
		)
	}
	table.Render()
}

func formatVotes(votes map[string]market.Action) string {
	parts := make([]string, 0, len(votes))
	for _, id := range sortedKeys(votes) {
		parts = append(parts, id+"="+string(votes[id]))
	}
	return strings.Join(parts, " ")
}
