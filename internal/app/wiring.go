package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"aitrader/internal/ai"
	"aitrader/internal/alerting"
	"aitrader/internal/arbitration"
	"aitrader/internal/audit"
	"aitrader/internal/cache"
	"aitrader/internal/clock"
	"aitrader/internal/config"
	"aitrader/internal/exchange"
	"aitrader/internal/execution"
	"aitrader/internal/fetcher"
	"aitrader/internal/health"
	"aitrader/internal/market"
	"aitrader/internal/metrics"
	"aitrader/internal/permission"
	"aitrader/internal/risk"
	"aitrader/internal/service"
	"aitrader/internal/storage"
)

// pipelineInputs are the pieces that differ between run and simulate.
// Store may be nil; in-memory stores are used instead.
type pipelineInputs struct {
	Source      fetcher.Source
	Store       *storage.Store
	Metrics     *metrics.Metrics
	Clock       clock.Clock
	Analyzer    service.Analyzer
	Permissions permission.Store
	Audit       audit.Store
	Orders      execution.OrderStore
	Notifier    alerting.Notifier
}

func (a *App) newSource() (fetcher.Source, error) {
	cfg := a.Config.Market
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("market.base_url is required")
	}
	return fetcher.NewMarket(fetcher.MarketOptions{
		BaseURL:   cfg.BaseURL,
		Timeout:   cfg.RequestTimeout,
		UserAgent: cfg.UserAgent,
	}, a.Logger), nil
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Enabled && a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return alerting.NewLogNotifier(a.Logger)
}

func (a *App) clientOptions(name string, p config.ProviderConfig) ai.ClientOptions {
	return ai.ClientOptions{
		Name:              name,
		BaseURL:           p.BaseURL,
		APIKey:            p.APIKey,
		EndpointID:        p.EndpointID,
		Temperature:       a.Config.AI.Temperature,
		MaxTokens:         a.Config.AI.MaxTokens,
		Timeout:           a.Config.AI.Timeout,
		RequestsPerSecond: a.Config.AI.RequestsPerSecond,
	}
}

func modelTiers(p config.ProviderConfig) ai.ModelTiers {
	return ai.ModelTiers{
		Cheap:   ai.ModelConfig{Model: p.CheapModel, CostPer1KTok: p.CheapCostPer1K},
		Premium: ai.ModelConfig{Model: p.PremiumModel, CostPer1KTok: p.PremiumCostPer1K},
	}
}

func (a *App) chatProvider(name string, p config.ProviderConfig) ai.Provider {
	client := ai.NewChatClient(a.clientOptions(name, p), a.Logger)
	return ai.Provider{Name: name, Models: modelTiers(p), Call: client.Complete}
}

// buildVoters maps enabled providers onto the voting slots. AI-3 falls back
// from openai to deepseek.
func (a *App) buildVoters() ([]ai.Voter, error) {
	cfg := a.Config.AI
	var voters []ai.Voter

	if cfg.Doubao.Enabled {
		voters = append(voters, ai.Voter{ID: "AI-1", Priority: 1, Chain: []ai.Provider{a.chatProvider("doubao", cfg.Doubao)}})
	}
	if cfg.Gemini.Enabled {
		client := ai.NewGeminiClient(a.clientOptions("gemini", cfg.Gemini), a.Logger)
		voters = append(voters, ai.Voter{ID: "AI-2", Priority: 2, Chain: []ai.Provider{
			{Name: "gemini", Models: modelTiers(cfg.Gemini), Call: client.Complete},
		}})
	}

	var chain []ai.Provider
	if cfg.OpenAI.Enabled {
		chain = append(chain, a.chatProvider("openai", cfg.OpenAI))
	}
	if cfg.DeepSeek.Enabled {
		chain = append(chain, a.chatProvider("deepseek", cfg.DeepSeek))
	}
	if len(chain) > 0 {
		voters = append(voters, ai.Voter{ID: "AI-3", Priority: 3, Chain: chain})
	}

	if len(voters) == 0 {
		return nil, fmt.Errorf("no ai provider enabled")
	}
	return voters, nil
}

// tierThresholds reuses the P1 whale bound and the volatility upgrade ratio.
func (a *App) tierThresholds() ai.TierThresholds {
	t := a.Config.Risk.Thresholds
	return ai.TierThresholds{WhaleScore: t.WhaleP1Min, VolatilityRatio: t.VolatilityUpgrade}
}

func (a *App) newExchange(prices exchange.PriceFunc) execution.Exchange {
	cfg := a.Config.Exchange
	if cfg.Mode == "okx" {
		return exchange.NewOKX(exchange.OKXOptions{
			BaseURL:           cfg.BaseURL,
			APIKey:            cfg.APIKey,
			APISecret:         cfg.APISecret,
			Passphrase:        cfg.Passphrase,
			Timeout:           cfg.RequestTimeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
			Simulated:         cfg.Simulated,
		}, a.Logger)
	}
	return exchange.NewPaper(prices)
}

// newCooldowns returns the shared Redis store when redis.addr is set.
func (a *App) newCooldowns(ctx context.Context, clk clock.Clock) (risk.CooldownStore, func(), error) {
	if a.Config.Redis.Addr == "" {
		return risk.NewMemoryCooldowns(clk.Now), func() {}, nil
	}
	client, err := cache.NewClient(ctx, a.Config.Redis)
	if err != nil {
		return nil, nil, err
	}
	return cache.NewCooldowns(client, clk.Now), func() { _ = client.Close() }, nil
}

// buildPipeline assembles the service. The returned closer releases the
// cooldown backend.
func (a *App) buildPipeline(ctx context.Context, in pipelineInputs) (*service.Service, func(), error) {
	coins, err := a.Config.CoinList()
	if err != nil {
		return nil, nil, err
	}
	durability, err := audit.ParseDurability(a.Config.Audit.Durability)
	if err != nil {
		return nil, nil, err
	}
	if in.Clock == nil {
		in.Clock = clock.New()
	}
	if in.Metrics == nil {
		in.Metrics = metrics.New()
	}
	if in.Notifier == nil {
		in.Notifier = a.newNotifier()
	}

	if in.Analyzer == nil {
		voters, err := a.buildVoters()
		if err != nil {
			return nil, nil, err
		}
		in.Analyzer = ai.NewEngine(ai.EngineOptions{
			Timeout:    a.Config.AI.Timeout,
			Thresholds: a.tierThresholds(),
			Recorder:   in.Metrics,
		}, voters, a.Logger)
	}

	if in.Store != nil {
		if in.Permissions == nil {
			in.Permissions = in.Store
		}
		if in.Audit == nil {
			in.Audit = in.Store
		}
		if in.Orders == nil {
			in.Orders = in.Store
		}
	}
	if in.Permissions == nil {
		a.Logger.Warn().Msg("no permission store; every account is observe-only")
		in.Permissions = permission.NewMemoryStore()
	}
	if in.Audit == nil {
		in.Audit = audit.NewMemoryStore()
	}
	if in.Orders == nil {
		in.Orders = execution.NewMemoryOrders()
	}

	cooldowns, closeCooldowns, err := a.newCooldowns(ctx, in.Clock)
	if err != nil {
		return nil, nil, err
	}

	book := newPriceBook(in.Source)
	executor := execution.NewEngine(a.newExchange(book.Price), in.Orders, in.Clock, execution.EngineOptions{
		Retry: execution.RetryOptions{
			MaxAttempts: a.Config.Execution.MaxAttempts,
			Delays:      a.Config.Execution.Backoff,
		},
		Recorder: in.Metrics,
	}, a.Logger)

	deps := service.Deps{
		Source:      book,
		Analyzer:    in.Analyzer,
		Arbiter:     arbitration.New(in.Clock.Now, a.Logger),
		Risk:        risk.NewEngine(a.Config.Risk.Thresholds, a.Logger),
		Permissions: permission.NewEngine(in.Permissions, a.Logger),
		Executor:    executor,
		Cooldowns:   cooldowns,
		Audit: audit.NewLogger(in.Audit, audit.LoggerOptions{
			Durability: durability,
			Now:        in.Clock.Now,
			Recorder:   in.Metrics,
		}, a.Logger),
		Health:   health.NewManager(a.Logger),
		Notifier: in.Notifier,
		Recorder: in.Metrics,
		Clock:    in.Clock,
	}
	if in.Store != nil {
		deps.Analyses = in.Store
		deps.Locker = in.Store
	}

	svc := service.New(service.Options{
		Coins:   coins,
		LockKey: a.Config.Scheduler.AdvisoryLockKey,
	}, deps, a.Logger)
	return svc, closeCooldowns, nil
}

// priceBook remembers the last observed price per coin for paper fills.
type priceBook struct {
	fetcher.Source

	mu   sync.RWMutex
	last map[market.Coin]decimal.Decimal
}

func newPriceBook(src fetcher.Source) *priceBook {
	return &priceBook{Source: src, last: make(map[market.Coin]decimal.Decimal)}
}

func (p *priceBook) FetchSnapshot(ctx context.Context, coin market.Coin) (market.Snapshot, error) {
	snap, err := p.Source.FetchSnapshot(ctx, coin)
	if err != nil {
		return snap, err
	}
	p.mu.Lock()
	p.last[coin] = decimal.NewFromFloat(snap.Summary.CurrentPrice)
	p.mu.Unlock()
	return snap, nil
}

// Price implements exchange.PriceFunc.
func (p *priceBook) Price(coin market.Coin) (decimal.Decimal, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	px, ok := p.last[coin]
	return px, ok
}
