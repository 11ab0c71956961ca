package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aitrader/internal/audit"
	"aitrader/internal/execution"
	"aitrader/internal/market"
)

func TestUnconfiguredStore(t *testing.T) {
	var s *Store
	ctx := context.Background()

	_, err := s.GetPermission(ctx, "acct", market.BTC)
	assert.True(t, errors.Is(err, ErrNotConfigured))

	err = s.IncrementDailyStats(ctx, "acct", market.BTC, decimal.NewFromInt(1))
	assert.True(t, errors.Is(err, ErrNotConfigured))

	_, _, err = s.LastAuditEntry(ctx)
	assert.True(t, errors.Is(err, ErrNotConfigured))

	_, _, err = s.TryAdvisoryLock(ctx, 1)
	assert.True(t, errors.Is(err, ErrNotConfigured))

	assert.True(t, errors.Is(NewStore(nil).EnsureSchema(ctx), ErrNotConfigured))
	s.Close()
}

func TestBuildAuditQueryNoFilter(t *testing.T) {
	query, args := buildAuditQuery(audit.Filter{})
	assert.Empty(t, args)
	assert.NotContains(t, query, "WHERE")
	assert.NotContains(t, query, "LIMIT")
	assert.Contains(t, query, "ORDER BY sequence_num")
}

func TestBuildAuditQueryPlaceholders(t *testing.T) {
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	query, args := buildAuditQuery(audit.Filter{
		AccountID: "acct-1",
		Coin:      market.ETH,
		EventType: audit.EventOrderFailed,
		From:      from,
		Limit:     50,
		Offset:    10,
	})

	require.Len(t, args, 6)
	assert.Equal(t, []any{"acct-1", "ETH", "order_failed", from, 50, 10}, args)
	assert.Contains(t, query, "account_id = $1")
	assert.Contains(t, query, "coin = $2")
	assert.Contains(t, query, "event_type = $3")
	assert.Contains(t, query, "created_at >= $4")
	assert.Contains(t, query, "LIMIT $5")
	assert.Contains(t, query, "OFFSET $6")
}

func TestOrderStatsAdd(t *testing.T) {
	var st OrderStats
	st.add(execution.StatusFilled, 4)
	st.add(execution.StatusFailed, 2)
	st.add(execution.StatusPartialFill, 1)
	st.add(execution.StatusCancelled, 1)

	assert.Equal(t, OrderStats{Total: 8, Filled: 4, Failed: 2, PartialFill: 1, Cancelled: 1}, st)
}

func TestNullable(t *testing.T) {
	assert.Nil(t, nullable(""))
	assert.Equal(t, "x", nullable("x"))
}
