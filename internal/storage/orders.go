package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"aitrader/internal/execution"
	"aitrader/internal/market"
)

const (
	insertOrderSQL = `INSERT INTO orders (
        client_order_id,
        exchange_order_id,
        account_id,
        coin,
        side,
        size,
        filled_size,
        avg_price,
        status,
        risk_level,
        analysis_id,
        batch_index,
        total_batches,
        error_message,
        created_at,
        updated_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16
    );`

	updateOrderSQL = `UPDATE orders
    SET exchange_order_id = COALESCE($2, exchange_order_id),
        filled_size       = $3,
        avg_price         = $4,
        status            = $5,
        error_message     = $6,
        updated_at        = $7
    WHERE client_order_id = $1;`

	orderColumns = `id,
        client_order_id,
        COALESCE(exchange_order_id, ''),
        account_id,
        coin,
        side,
        size::text,
        filled_size::text,
        avg_price::text,
        status,
        risk_level,
        COALESCE(analysis_id, ''),
        batch_index,
        total_batches,
        COALESCE(error_message, ''),
        created_at,
        updated_at`

	listRecentOrdersSQL = `SELECT ` + orderColumns + `
    FROM orders
    ORDER BY created_at DESC, id DESC
    LIMIT $1;`

	listOrdersByAnalysisSQL = `SELECT ` + orderColumns + `
    FROM orders
    WHERE analysis_id = $1
    ORDER BY batch_index, id;`

	orderStatsSQL = `SELECT status, COUNT(*)
    FROM orders
    WHERE created_at >= $1
    GROUP BY status;`
)

// InsertOrder persists a new batch row. client_order_id is unique.
func (s *Store) InsertOrder(ctx context.Context, order execution.Order) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, insertOrderSQL,
		order.ClientOrderID,
		nullable(order.ExchangeOrderID),
		order.AccountID,
		string(order.Coin),
		string(order.Side),
		order.Size.String(),
		order.FilledSize.String(),
		order.AvgPrice.String(),
		string(order.Status),
		string(order.RiskLevel),
		nullable(order.AnalysisID),
		order.BatchIndex,
		order.TotalBatches,
		nullable(order.ErrorMessage),
		order.CreatedAt,
		order.UpdatedAt,
	)
	if execErr != nil {
		return fmt.Errorf("insert order: %w", execErr)
	}
	return nil
}

// UpdateOrder writes the mutable fields of a batch row.
func (s *Store) UpdateOrder(ctx context.Context, order execution.Order) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	tag, execErr := pool.Exec(ctx, updateOrderSQL,
		order.ClientOrderID,
		nullable(order.ExchangeOrderID),
		order.FilledSize.String(),
		order.AvgPrice.String(),
		string(order.Status),
		nullable(order.ErrorMessage),
		order.UpdatedAt,
	)
	if execErr != nil {
		return fmt.Errorf("update order: %w", execErr)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ListRecentOrders lists the newest orders first.
func (s *Store) ListRecentOrders(ctx context.Context, limit int) ([]execution.Order, error) {
	return s.queryOrders(ctx, "list recent orders", listRecentOrdersSQL, limit)
}

// ListOrdersByAnalysis lists the batches produced by one decision.
func (s *Store) ListOrdersByAnalysis(ctx context.Context, analysisID string) ([]execution.Order, error) {
	return s.queryOrders(ctx, "list orders by analysis", listOrdersByAnalysisSQL, analysisID)
}

// OrderStats counts orders created since since.
func (s *Store) OrderStats(ctx context.Context, since time.Time) (OrderStats, error) {
	pool, err := s.getPool()
	if err != nil {
		return OrderStats{}, err
	}

	rows, queryErr := pool.Query(ctx, orderStatsSQL, since)
	if queryErr != nil {
		return OrderStats{}, fmt.Errorf("order stats: %w", queryErr)
	}
	defer rows.Close()

	var stats OrderStats
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return OrderStats{}, err
		}
		stats.add(execution.Status(status), count)
	}
	if rows.Err() != nil {
		return OrderStats{}, rows.Err()
	}
	return stats, nil
}

func (st *OrderStats) add(status execution.Status, count int64) {
	st.Total += count
	switch status {
	case execution.StatusPending:
		st.Pending += count
	case execution.StatusSubmitted:
		st.Submitted += count
	case execution.StatusAccepted:
		st.Accepted += count
	case execution.StatusPartialFill:
		st.PartialFill += count
	case execution.StatusFilled:
		st.Filled += count
	case execution.StatusCancelled:
		st.Cancelled += count
	case execution.StatusFailed:
		st.Failed += count
	}
}

func (s *Store) queryOrders(ctx context.Context, op, query string, args ...any) ([]execution.Order, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, query, args...)
	if queryErr != nil {
		return nil, fmt.Errorf("%s: %w", op, queryErr)
	}
	defer rows.Close()

	orders := make([]execution.Order, 0)
	for rows.Next() {
		order, scanErr := scanOrder(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		orders = append(orders, order)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return orders, nil
}

func scanOrder(rows pgx.Rows) (execution.Order, error) {
	var o execution.Order
	var coin, side, status, risk string
	var size, filled, avg string
	if err := rows.Scan(
		&o.ID,
		&o.ClientOrderID,
		&o.ExchangeOrderID,
		&o.AccountID,
		&coin,
		&side,
		&size,
		&filled,
		&avg,
		&status,
		&risk,
		&o.AnalysisID,
		&o.BatchIndex,
		&o.TotalBatches,
		&o.ErrorMessage,
		&o.CreatedAt,
		&o.UpdatedAt,
	); err != nil {
		return execution.Order{}, err
	}

	o.Coin = market.Coin(coin)
	o.Side = market.Action(side)
	o.Status = execution.Status(status)
	o.RiskLevel = market.RiskLevel(risk)

	var err error
	if o.Size, err = parseDecimal("size", size); err != nil {
		return execution.Order{}, err
	}
	if o.FilledSize, err = parseDecimal("filled size", filled); err != nil {
		return execution.Order{}, err
	}
	if o.AvgPrice, err = parseDecimal("avg price", avg); err != nil {
		return execution.Order{}, err
	}
	return o, nil
}
