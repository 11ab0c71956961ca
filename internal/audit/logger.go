package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"aitrader/internal/market"
)

// Event is one thing to record.
type Event struct {
	Type       EventType
	AccountID  string
	Coin       market.Coin
	OrderID    string
	AnalysisID string
	// RiskLevel selects the durability rule; empty counts as non-P0.
	RiskLevel market.RiskLevel
	Data      any
}

// Recorder observes failed writes.
type Recorder interface {
	ObserveAuditFailure(event string)
}

// LoggerOptions tune a Logger.
type LoggerOptions struct {
	Durability Durability
	Now        func() time.Time
	Recorder   Recorder
}

// Logger is the single writer of the chain. Construct once per process, call
// Init before the first Log, and share the handle.
type Logger struct {
	mu         sync.Mutex
	store      Store
	seq        int64
	lastHash   *string
	durability Durability
	now        func() time.Time
	recorder   Recorder
	logger     zerolog.Logger
}

// NewLogger constructs an un-seeded Logger.
func NewLogger(store Store, opts LoggerOptions, logger zerolog.Logger) *Logger {
	if opts.Durability == "" {
		opts.Durability = BestEffort
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Logger{
		store:      store,
		durability: opts.Durability,
		now:        opts.Now,
		recorder:   opts.Recorder,
		logger:     logger.With().Str("component", "audit").Logger(),
	}
}

// Init seeds sequence and hash from the last persisted entry. When the store
// cannot be read, best effort keeps the current in-memory seed and returns nil;
// the stricter policies return the error.
func (l *Logger) Init(ctx context.Context) error {
	last, ok, err := l.store.LastAuditEntry(ctx)
	if err != nil {
		l.logger.Error().Err(err).Int64("sequence_num", l.Sequence()).Msg("failed to load last audit entry")
		if l.recorder != nil {
			l.recorder.ObserveAuditFailure("seed")
		}
		if l.durability == BestEffort {
			return nil
		}
		return fmt.Errorf("load last audit entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if !ok {
		l.seq = 0
		l.lastHash = nil
		return nil
	}
	hash := last.Hash
	l.seq = last.SequenceNum
	l.lastHash = &hash
	l.logger.Debug().Int64("sequence_num", l.seq).Msg("audit chain resumed")
	return nil
}

// Sequence returns the last persisted sequence number.
func (l *Logger) Sequence() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}

// Log appends ev. State advances only after the entry is stored. Failed writes
// are logged; they are returned (wrapping ErrNotDurable) only when the
// durability policy covers ev.
func (l *Logger) Log(ctx context.Context, ev Event) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, err := l.build(ev)
	if err == nil {
		err = l.store.InsertAuditEntry(ctx, entry)
	}
	if err != nil {
		l.logger.Error().
			Err(err).
			Str("event_type", string(ev.Type)).
			Int64("sequence_num", l.seq+1).
			Msg("failed to write audit log")
		if l.recorder != nil {
			l.recorder.ObserveAuditFailure(string(ev.Type))
		}
		if l.durability.requires(ev.RiskLevel) {
			return Entry{}, fmt.Errorf("%w: %v", ErrNotDurable, err)
		}
		return Entry{}, nil
	}

	hash := entry.Hash
	l.seq = entry.SequenceNum
	l.lastHash = &hash
	return entry, nil
}

func (l *Logger) build(ev Event) (Entry, error) {
	raw, err := json.Marshal(ev.Data)
	if err != nil {
		return Entry{}, fmt.Errorf("marshal audit data: %w", err)
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return Entry{}, fmt.Errorf("compact audit data: %w", err)
	}
	data := json.RawMessage(compact.Bytes())

	createdAt := l.now().UTC().Truncate(time.Millisecond)
	hash, err := ComputeHash(data, l.lastHash, createdAt)
	if err != nil {
		return Entry{}, err
	}

	var prev *string
	if l.lastHash != nil {
		p := *l.lastHash
		prev = &p
	}
	return Entry{
		SequenceNum:  l.seq + 1,
		Hash:         hash,
		PreviousHash: prev,
		EventType:    ev.Type,
		AccountID:    ev.AccountID,
		Coin:         ev.Coin,
		OrderID:      ev.OrderID,
		AnalysisID:   ev.AnalysisID,
		Data:         data,
		CreatedAt:    createdAt,
	}, nil
}
