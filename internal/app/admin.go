package app

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"aitrader/internal/market"
	"aitrader/internal/permission"
)

// PermitOptions describe one permission record to write.
type PermitOptions struct {
	AccountID      string
	Coin           market.Coin
	Mode           permission.Mode
	DailyLimit     decimal.Decimal
	SingleOrderMax decimal.Decimal
	PositionBudget decimal.Decimal
}

// Migrate creates the tables the service needs.
func (a *App) Migrate(ctx context.Context) error {
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}
	a.Logger.Info().Msg("schema up to date")
	return nil
}

// Permit creates or replaces an account's permission for one coin. Daily
// counters of an existing record are kept.
func (a *App) Permit(ctx context.Context, opts PermitOptions) error {
	if opts.AccountID == "" {
		return fmt.Errorf("account id is required")
	}
	if !opts.Mode.Valid() {
		return fmt.Errorf("unknown mode %q", opts.Mode)
	}
	for name, v := range map[string]decimal.Decimal{
		"daily limit":      opts.DailyLimit,
		"single order max": opts.SingleOrderMax,
		"position budget":  opts.PositionBudget,
	} {
		if v.IsNegative() {
			return fmt.Errorf("%s must not be negative", name)
		}
	}

	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	rec := permission.Record{
		AccountID:      opts.AccountID,
		Coin:           opts.Coin,
		Mode:           opts.Mode,
		DailyLimit:     opts.DailyLimit,
		SingleOrderMax: opts.SingleOrderMax,
		PositionBudget: opts.PositionBudget,
	}
	if err := store.UpsertPermission(ctx, rec); err != nil {
		return err
	}
	a.Logger.Info().
		Str("account_id", rec.AccountID).
		Str("coin", string(rec.Coin)).
		Str("mode", string(rec.Mode)).
		Msg("permission saved")
	return nil
}
