package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"aitrader/internal/audit"
	"aitrader/internal/market"
)

const (
	auditColumns = `sequence_num,
        hash,
        previous_hash,
        event_type,
        COALESCE(account_id, ''),
        COALESCE(coin, ''),
        COALESCE(order_id, ''),
        COALESCE(analysis_id, ''),
        data,
        created_at`

	lastAuditEntrySQL = `SELECT ` + auditColumns + `
    FROM audit_logs
    ORDER BY sequence_num DESC
    LIMIT 1;`

	insertAuditEntrySQL = `INSERT INTO audit_logs (
        sequence_num,
        hash,
        previous_hash,
        event_type,
        account_id,
        coin,
        order_id,
        analysis_id,
        data,
        created_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
    );`

	auditEntriesInRangeSQL = `SELECT ` + auditColumns + `
    FROM audit_logs
    WHERE sequence_num BETWEEN $1 AND $2
    ORDER BY sequence_num;`
)

// LastAuditEntry returns the tail of the chain, if any.
func (s *Store) LastAuditEntry(ctx context.Context) (audit.Entry, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return audit.Entry{}, false, err
	}
	entry, err := scanAuditEntry(pool.QueryRow(ctx, lastAuditEntrySQL))
	if errors.Is(err, pgx.ErrNoRows) {
		return audit.Entry{}, false, nil
	}
	if err != nil {
		return audit.Entry{}, false, fmt.Errorf("last audit entry: %w", err)
	}
	return entry, true, nil
}

// InsertAuditEntry appends one link. sequence_num is the primary key, so a
// concurrent writer racing for the same number fails here.
func (s *Store) InsertAuditEntry(ctx context.Context, entry audit.Entry) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, insertAuditEntrySQL,
		entry.SequenceNum,
		entry.Hash,
		entry.PreviousHash,
		string(entry.EventType),
		nullable(entry.AccountID),
		nullable(string(entry.Coin)),
		nullable(entry.OrderID),
		nullable(entry.AnalysisID),
		[]byte(entry.Data),
		entry.CreatedAt,
	); execErr != nil {
		return fmt.Errorf("insert audit entry: %w", execErr)
	}
	return nil
}

// QueryAuditEntries applies the filter in sequence order.
func (s *Store) QueryAuditEntries(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	query, args := buildAuditQuery(f)
	return s.queryAudit(ctx, "query audit entries", query, args...)
}

// AuditEntriesInRange lists entries with startSeq <= seq <= endSeq.
func (s *Store) AuditEntriesInRange(ctx context.Context, startSeq, endSeq int64) ([]audit.Entry, error) {
	return s.queryAudit(ctx, "audit entries in range", auditEntriesInRangeSQL, startSeq, endSeq)
}

func buildAuditQuery(f audit.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.AccountID != "" {
		add("account_id = $%d", f.AccountID)
	}
	if f.Coin != "" {
		add("coin = $%d", string(f.Coin))
	}
	if f.EventType != "" {
		add("event_type = $%d", string(f.EventType))
	}
	if f.OrderID != "" {
		add("order_id = $%d", f.OrderID)
	}
	if f.AnalysisID != "" {
		add("analysis_id = $%d", f.AnalysisID)
	}
	if !f.From.IsZero() {
		add("created_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("created_at <= $%d", f.To)
	}

	var b strings.Builder
	b.WriteString("SELECT " + auditColumns + "\n    FROM audit_logs")
	if len(conds) > 0 {
		b.WriteString("\n    WHERE " + strings.Join(conds, "\n      AND "))
	}
	b.WriteString("\n    ORDER BY sequence_num")
	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&b, "\n    LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		fmt.Fprintf(&b, "\n    OFFSET $%d", len(args))
	}
	b.WriteString(";")
	return b.String(), args
}

func (s *Store) queryAudit(ctx context.Context, op, query string, args ...any) ([]audit.Entry, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, query, args...)
	if queryErr != nil {
		return nil, fmt.Errorf("%s: %w", op, queryErr)
	}
	defer rows.Close()

	entries := make([]audit.Entry, 0)
	for rows.Next() {
		entry, scanErr := scanAuditEntry(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		entries = append(entries, entry)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return entries, nil
}

func scanAuditEntry(row pgx.Row) (audit.Entry, error) {
	var e audit.Entry
	var eventType, coin string
	var data []byte
	if err := row.Scan(
		&e.SequenceNum,
		&e.Hash,
		&e.PreviousHash,
		&eventType,
		&e.AccountID,
		&coin,
		&e.OrderID,
		&e.AnalysisID,
		&data,
		&e.CreatedAt,
	); err != nil {
		return audit.Entry{}, err
	}
	e.EventType = audit.EventType(eventType)
	e.Coin = market.Coin(coin)
	e.Data = data
	e.CreatedAt = e.CreatedAt.UTC()
	return e, nil
}
