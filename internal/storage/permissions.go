package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"aitrader/internal/market"
	"aitrader/internal/permission"
)

const (
	permissionColumns = `account_id,
        coin,
        mode,
        daily_limit::text,
        single_order_max::text,
        position_budget::text,
        current_daily_volume::text,
        current_daily_trades,
        updated_at`

	getPermissionSQL = `SELECT ` + permissionColumns + `
    FROM trading_permissions
    WHERE account_id = $1 AND coin = $2;`

	listPermissionsByCoinSQL = `SELECT ` + permissionColumns + `
    FROM trading_permissions
    WHERE coin = $1
    ORDER BY account_id;`

	upsertPermissionSQL = `INSERT INTO trading_permissions (
        account_id,
        coin,
        mode,
        daily_limit,
        single_order_max,
        position_budget
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    ON CONFLICT (account_id, coin) DO UPDATE
    SET
        mode             = EXCLUDED.mode,
        daily_limit      = EXCLUDED.daily_limit,
        single_order_max = EXCLUDED.single_order_max,
        position_budget  = EXCLUDED.position_budget,
        updated_at       = now();`

	incrementDailyStatsSQL = `UPDATE trading_permissions
    SET current_daily_volume = current_daily_volume + $3,
        current_daily_trades = current_daily_trades + 1,
        updated_at           = now()
    WHERE account_id = $1 AND coin = $2;`

	resetDailyStatsSQL = `UPDATE trading_permissions
    SET current_daily_volume = 0,
        current_daily_trades = 0,
        updated_at           = now();`
)

// GetPermission loads the record for a pair or returns permission.ErrRecordNotFound.
func (s *Store) GetPermission(ctx context.Context, accountID string, coin market.Coin) (permission.Record, error) {
	pool, err := s.getPool()
	if err != nil {
		return permission.Record{}, err
	}
	rec, err := scanPermission(pool.QueryRow(ctx, getPermissionSQL, accountID, string(coin)))
	if errors.Is(err, pgx.ErrNoRows) {
		return permission.Record{}, permission.ErrRecordNotFound
	}
	if err != nil {
		return permission.Record{}, fmt.Errorf("get permission: %w", err)
	}
	return rec, nil
}

// ListPermissionsByCoin lists every account configured for coin.
func (s *Store) ListPermissionsByCoin(ctx context.Context, coin market.Coin) ([]permission.Record, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listPermissionsByCoinSQL, string(coin))
	if queryErr != nil {
		return nil, fmt.Errorf("list permissions: %w", queryErr)
	}
	defer rows.Close()

	recs := make([]permission.Record, 0)
	for rows.Next() {
		rec, scanErr := scanPermission(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		recs = append(recs, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return recs, nil
}

// UpsertPermission creates or reconfigures a pair. Daily counters are untouched.
func (s *Store) UpsertPermission(ctx context.Context, rec permission.Record) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if !rec.Mode.Valid() {
		return fmt.Errorf("invalid permission mode %q", rec.Mode)
	}
	if _, execErr := pool.Exec(ctx, upsertPermissionSQL,
		rec.AccountID,
		string(rec.Coin),
		string(rec.Mode),
		rec.DailyLimit.String(),
		rec.SingleOrderMax.String(),
		rec.PositionBudget.String(),
	); execErr != nil {
		return fmt.Errorf("upsert permission: %w", execErr)
	}
	return nil
}

// IncrementDailyStats adds volume and one trade in a single UPDATE.
func (s *Store) IncrementDailyStats(ctx context.Context, accountID string, coin market.Coin, volume decimal.Decimal) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	tag, execErr := pool.Exec(ctx, incrementDailyStatsSQL, accountID, string(coin), volume.String())
	if execErr != nil {
		return fmt.Errorf("increment daily stats: %w", execErr)
	}
	if tag.RowsAffected() == 0 {
		return permission.ErrRecordNotFound
	}
	return nil
}

// ResetDailyStats zeroes every counter.
func (s *Store) ResetDailyStats(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, resetDailyStatsSQL); execErr != nil {
		return fmt.Errorf("reset daily stats: %w", execErr)
	}
	return nil
}

func scanPermission(row pgx.Row) (permission.Record, error) {
	var rec permission.Record
	var coin, mode string
	var dailyLimit, singleMax, budget, volume string
	var updatedAt time.Time
	if err := row.Scan(
		&rec.AccountID,
		&coin,
		&mode,
		&dailyLimit,
		&singleMax,
		&budget,
		&volume,
		&rec.CurrentDailyTrades,
		&updatedAt,
	); err != nil {
		return permission.Record{}, err
	}

	rec.Coin = market.Coin(coin)
	rec.Mode = permission.Mode(mode)
	rec.UpdatedAt = updatedAt

	var err error
	if rec.DailyLimit, err = parseDecimal("daily limit", dailyLimit); err != nil {
		return permission.Record{}, err
	}
	if rec.SingleOrderMax, err = parseDecimal("single order max", singleMax); err != nil {
		return permission.Record{}, err
	}
	if rec.PositionBudget, err = parseDecimal("position budget", budget); err != nil {
		return permission.Record{}, err
	}
	if rec.CurrentDailyVolume, err = parseDecimal("daily volume", volume); err != nil {
		return permission.Record{}, err
	}
	return rec, nil
}
