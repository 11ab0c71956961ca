package storage

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS trading_permissions (
        account_id           TEXT        NOT NULL,
        coin                 TEXT        NOT NULL,
        mode                 TEXT        NOT NULL DEFAULT 'observe',
        daily_limit          NUMERIC     NOT NULL DEFAULT 0,
        single_order_max     NUMERIC     NOT NULL DEFAULT 0,
        position_budget      NUMERIC     NOT NULL DEFAULT 0,
        current_daily_volume NUMERIC     NOT NULL DEFAULT 0,
        current_daily_trades INTEGER     NOT NULL DEFAULT 0,
        updated_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
        PRIMARY KEY (account_id, coin)
    );`,
	`CREATE TABLE IF NOT EXISTS orders (
        id                BIGSERIAL PRIMARY KEY,
        client_order_id   TEXT        NOT NULL UNIQUE,
        exchange_order_id TEXT,
        account_id        TEXT        NOT NULL,
        coin              TEXT        NOT NULL,
        side              TEXT        NOT NULL,
        size              NUMERIC     NOT NULL,
        filled_size       NUMERIC     NOT NULL DEFAULT 0,
        avg_price         NUMERIC     NOT NULL DEFAULT 0,
        status            TEXT        NOT NULL,
        risk_level        TEXT        NOT NULL,
        analysis_id       TEXT,
        batch_index       INTEGER     NOT NULL,
        total_batches     INTEGER     NOT NULL,
        error_message     TEXT,
        created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
        updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
    );`,
	`CREATE INDEX IF NOT EXISTS orders_analysis_idx ON orders (analysis_id);`,
	`CREATE INDEX IF NOT EXISTS orders_created_idx ON orders (created_at DESC);`,
	`CREATE TABLE IF NOT EXISTS analysis_results (
        analysis_id      TEXT PRIMARY KEY,
        coin             TEXT             NOT NULL,
        final_action     TEXT             NOT NULL,
        final_confidence DOUBLE PRECISION NOT NULL,
        risk_level       TEXT             NOT NULL,
        consensus_type   TEXT             NOT NULL,
        whale_override   BOOLEAN          NOT NULL,
        model_tier       TEXT             NOT NULL,
        whale_score      DOUBLE PRECISION NOT NULL,
        volatility_ratio DOUBLE PRECISION NOT NULL,
        payload          JSONB            NOT NULL,
        created_at       TIMESTAMPTZ      NOT NULL
    );`,
	`CREATE INDEX IF NOT EXISTS analysis_results_coin_idx ON analysis_results (coin, created_at);`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
        sequence_num  BIGINT PRIMARY KEY,
        hash          TEXT        NOT NULL,
        previous_hash TEXT,
        event_type    TEXT        NOT NULL,
        account_id    TEXT,
        coin          TEXT,
        order_id      TEXT,
        analysis_id   TEXT,
        data          JSON        NOT NULL,
        created_at    TIMESTAMPTZ NOT NULL
    );`,
	`CREATE INDEX IF NOT EXISTS audit_logs_event_idx ON audit_logs (event_type, created_at);`,
}

// EnsureSchema creates the tables and indexes if they are missing.
// The audit data column is JSON rather than JSONB so stored bytes stay
// identical to the hashed payload.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
