package permission

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"aitrader/internal/market"
)

// MemoryStore keeps records in process. Used by simulations and tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore seeds a store with recs.
func NewMemoryStore(recs ...Record) *MemoryStore {
	m := &MemoryStore{records: make(map[string]Record, len(recs))}
	for _, rec := range recs {
		m.Put(rec)
	}
	return m
}

// Put inserts or replaces a record.
func (m *MemoryStore) Put(rec Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key(rec.AccountID, rec.Coin)] = rec
}

func (m *MemoryStore) GetPermission(_ context.Context, accountID string, coin market.Coin) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key(accountID, coin)]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return rec, nil
}

func (m *MemoryStore) ListPermissionsByCoin(_ context.Context, coin market.Coin) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, 0)
	for _, rec := range m.records {
		if rec.Coin == coin {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out, nil
}

func (m *MemoryStore) IncrementDailyStats(_ context.Context, accountID string, coin market.Coin, volume decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(accountID, coin)
	rec, ok := m.records[k]
	if !ok {
		return ErrRecordNotFound
	}
	rec.CurrentDailyVolume = rec.CurrentDailyVolume.Add(volume)
	rec.CurrentDailyTrades++
	m.records[k] = rec
	return nil
}

func (m *MemoryStore) ResetDailyStats(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, rec := range m.records {
		rec.CurrentDailyVolume = decimal.Zero
		rec.CurrentDailyTrades = 0
		m.records[k] = rec
	}
	return nil
}

func key(accountID string, coin market.Coin) string {
	return accountID + "/" + string(coin)
}

var _ Store = (*MemoryStore)(nil)
