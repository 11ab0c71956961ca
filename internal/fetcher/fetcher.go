package fetcher

import (
	"context"

	"aitrader/internal/health"
	"aitrader/internal/market"
)

// SnapshotFetcher retrieves the pre-computed market snapshot of a coin.
type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context, coin market.Coin) (market.Snapshot, error)
}

// HealthFetcher retrieves the raw health dimensions of the data layer.
type HealthFetcher interface {
	FetchHealth(ctx context.Context) (health.Dimensions, error)
}

// Source provides both snapshots and health.
type Source interface {
	SnapshotFetcher
	HealthFetcher
}
