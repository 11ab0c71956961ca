package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"aitrader/internal/clock"
	"aitrader/internal/config"
	"aitrader/internal/metrics"
	"aitrader/internal/scheduler"
	"aitrader/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	store, err := storage.Open(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) requireStore(ctx context.Context) (*storage.Store, func(), error) {
	store, closer, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return nil, nil, fmt.Errorf("database.dsn is required for this command")
	}
	return store, closer, nil
}

// Run executes the long-running trading service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	m := metrics.New()
	if addr := a.Config.Metrics.ListenAddr; addr != "" {
		go func() {
			if err := m.Serve(ctx, addr, a.Logger); err != nil {
				a.Logger.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	source, err := a.newSource()
	if err != nil {
		return err
	}

	clk := clock.New()
	pipeline, closePipeline, err := a.buildPipeline(ctx, pipelineInputs{
		Source:  source,
		Store:   store,
		Metrics: m,
		Clock:   clk,
	})
	if err != nil {
		return err
	}
	defer closePipeline()

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, clk, a.Logger)

	a.Logger.Info().Int("coins", len(a.Config.Market.Coins)).Str("exchange", a.Config.Exchange.Mode).Msg("starting trading service")
	err = pipeline.Run(ctx, sched)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("trading service stopped")
	return nil
}
