package audit

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store for simulations and tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries  []Entry
	fail     error
	failSeed error
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

// FailWrites makes every subsequent insert return err; nil restores writes.
func (m *MemoryStore) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

// FailSeed makes LastAuditEntry return err; nil restores reads.
func (m *MemoryStore) FailSeed(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failSeed = err
}

// Entries returns a copy of every stored entry.
func (m *MemoryStore) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

func (m *MemoryStore) LastAuditEntry(context.Context) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSeed != nil {
		return Entry{}, false, m.failSeed
	}
	if len(m.entries) == 0 {
		return Entry{}, false, nil
	}
	return m.entries[len(m.entries)-1], true, nil
}

func (m *MemoryStore) InsertAuditEntry(_ context.Context, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *MemoryStore) QueryAuditEntries(_ context.Context, f Filter) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Entry, 0)
	skipped := 0
	for _, e := range m.entries {
		if !f.matches(e) {
			continue
		}
		if skipped < f.Offset {
			skipped++
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) AuditEntriesInRange(_ context.Context, startSeq, endSeq int64) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, 0)
	for _, e := range m.entries {
		if e.SequenceNum >= startSeq && e.SequenceNum <= endSeq {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f Filter) matches(e Entry) bool {
	switch {
	case f.AccountID != "" && e.AccountID != f.AccountID:
		return false
	case f.Coin != "" && e.Coin != f.Coin:
		return false
	case f.EventType != "" && e.EventType != f.EventType:
		return false
	case f.OrderID != "" && e.OrderID != f.OrderID:
		return false
	case f.AnalysisID != "" && e.AnalysisID != f.AnalysisID:
		return false
	case !f.From.IsZero() && e.CreatedAt.Before(f.From):
		return false
	case !f.To.IsZero() && e.CreatedAt.After(f.To):
		return false
	}
	return true
}

var _ Store = (*MemoryStore)(nil)
