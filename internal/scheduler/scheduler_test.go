package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aitrader/internal/clock"
)

func TestRunAlignsBuckets(t *testing.T) {
	start := time.Date(2025, 1, 1, 10, 2, 30, 0, time.UTC)
	clk := clock.NewFake(start)
	s := New(Options{Interval: 5 * time.Minute, AlignToStart: true}, clk, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var buckets []time.Time
	err := s.Run(ctx, func(_ context.Context, bucket time.Time) error {
		buckets = append(buckets, bucket)
		if len(buckets) == 3 {
			cancel()
		}
		return errors.New("tick errors are logged only")
	})
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, []time.Time{
		time.Date(2025, 1, 1, 10, 5, 0, 0, time.UTC),
		time.Date(2025, 1, 1, 10, 10, 0, 0, time.UTC),
		time.Date(2025, 1, 1, 10, 15, 0, 0, time.UTC),
	}, buckets)
	assert.Equal(t, []time.Duration{150 * time.Second, 5 * time.Minute, 5 * time.Minute}, clk.Sleeps())
}

func TestRunImmediatelyWithStartupDelay(t *testing.T) {
	start := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	clk := clock.NewFake(start)
	s := New(Options{Interval: time.Minute, StartupDelay: 5 * time.Second, RunImmediately: true}, clk, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var buckets []time.Time
	_ = s.Run(ctx, func(_ context.Context, bucket time.Time) error {
		buckets = append(buckets, bucket)
		if len(buckets) == 2 {
			cancel()
		}
		return nil
	})

	require.Len(t, buckets, 2)
	assert.Equal(t, start.Add(5*time.Second), buckets[0])
	assert.Equal(t, start.Add(65*time.Second), buckets[1])
}

func TestNewRejectsZeroInterval(t *testing.T) {
	assert.Panics(t, func() { New(Options{}, nil, zerolog.Nop()) })
}
