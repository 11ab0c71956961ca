package audit

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// QueryService reads and verifies the chain.
type QueryService struct {
	store  Store
	logger zerolog.Logger
}

// NewQueryService constructs a QueryService.
func NewQueryService(store Store, logger zerolog.Logger) *QueryService {
	return &QueryService{store: store, logger: logger.With().Str("component", "audit_query").Logger()}
}

// Query returns matching entries ordered by sequence ascending.
func (q *QueryService) Query(ctx context.Context, f Filter) ([]Entry, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultQueryLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	entries, err := q.store.QueryAuditEntries(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	return entries, nil
}

// VerifyIntegrity replays [startSeq, endSeq]. Every entry after the first must
// carry its predecessor's hash and follow it without a sequence gap, and every
// stored hash must match its recomputed value. An empty range does not verify.
func (q *QueryService) VerifyIntegrity(ctx context.Context, startSeq, endSeq int64) (bool, error) {
	entries, err := q.store.AuditEntriesInRange(ctx, startSeq, endSeq)
	if err != nil {
		return false, fmt.Errorf("load audit range: %w", err)
	}
	if len(entries) == 0 {
		return false, nil
	}

	for i, entry := range entries {
		if i > 0 {
			prev := entries[i-1]
			if entry.SequenceNum != prev.SequenceNum+1 {
				q.logger.Warn().Int64("sequence_num", entry.SequenceNum).Int64("previous", prev.SequenceNum).Msg("sequence gap")
				return false, nil
			}
			if entry.PreviousHash == nil || *entry.PreviousHash != prev.Hash {
				q.logger.Warn().Int64("sequence_num", entry.SequenceNum).Msg("previous hash mismatch")
				return false, nil
			}
		}

		want, err := ComputeHash(entry.Data, entry.PreviousHash, entry.CreatedAt)
		if err != nil {
			return false, err
		}
		if want != entry.Hash {
			q.logger.Warn().Int64("sequence_num", entry.SequenceNum).Msg("hash mismatch")
			return false, nil
		}
	}
	return true, nil
}
