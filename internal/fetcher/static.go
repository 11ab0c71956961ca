package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"aitrader/internal/health"
	"aitrader/internal/market"
)

// Scenario is the fixture format read by NewStaticFromFile.
type Scenario struct {
	Health    health.Dimensions `json:"health"`
	Snapshots []market.Snapshot `json:"snapshots"`
}

// Static serves fixed snapshots, for simulations and tests.
type Static struct {
	mu        sync.RWMutex
	dims      health.Dimensions
	snapshots map[market.Coin]market.Snapshot
}

// NewStatic builds a Static source from a scenario.
func NewStatic(sc Scenario) *Static {
	s := &Static{dims: sc.Health, snapshots: make(map[market.Coin]market.Snapshot, len(sc.Snapshots))}
	for _, snap := range sc.Snapshots {
		s.snapshots[snap.Summary.Coin] = snap
	}
	return s
}

// NewStaticFromFile loads a JSON scenario.
func NewStaticFromFile(path string) (*Static, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var sc Scenario
	if err := json.Unmarshal(raw, &sc); err != nil {
		return nil, fmt.Errorf("decode scenario %s: %w", path, err)
	}
	return NewStatic(sc), nil
}

// Set replaces the snapshot of its coin.
func (s *Static) Set(snap market.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.Summary.Coin] = snap
}

// SetHealth replaces the health dimensions.
func (s *Static) SetHealth(d health.Dimensions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dims = d
}

func (s *Static) FetchSnapshot(_ context.Context, coin market.Coin) (market.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[coin]
	if !ok {
		return market.Snapshot{}, fmt.Errorf("no snapshot for %s", coin)
	}
	return snap, nil
}

func (s *Static) FetchHealth(context.Context) (health.Dimensions, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dims, nil
}

var _ Source = (*Static)(nil)
