// Package audit keeps the append-only, hash-chained record of every decision
// and order event.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"aitrader/internal/market"
)

// EventType names an audited event.
type EventType string

const (
	EventAnalysisCompleted EventType = "analysis_completed"
	EventRiskAssessed      EventType = "risk_assessed"
	EventPermissionDenied  EventType = "permission_denied"
	EventCooldownActive    EventType = "cooldown_active"
	EventOrderIntent       EventType = "order_intent"
	EventOrderAccepted     EventType = "order_accepted"
	EventOrderFailed       EventType = "order_failed"
	EventCooldownStarted   EventType = "cooldown_started"
	EventModeChanged       EventType = "mode_changed"
	EventDailyReset        EventType = "daily_reset"
)

// Entry is one persisted link of the chain. Empty optional ids are stored as NULL.
type Entry struct {
	SequenceNum  int64           `json:"sequence_num"`
	Hash         string          `json:"hash"`
	PreviousHash *string         `json:"previous_hash"`
	EventType    EventType       `json:"event_type"`
	AccountID    string          `json:"account_id,omitempty"`
	Coin         market.Coin     `json:"coin,omitempty"`
	OrderID      string          `json:"order_id,omitempty"`
	AnalysisID   string          `json:"analysis_id,omitempty"`
	Data         json.RawMessage `json:"data"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Filter narrows a query. Zero fields are ignored.
type Filter struct {
	AccountID  string
	Coin       market.Coin
	EventType  EventType
	OrderID    string
	AnalysisID string
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}

// DefaultQueryLimit applies when Filter.Limit is zero.
const DefaultQueryLimit = 100

// Store persists audit entries.
type Store interface {
	LastAuditEntry(ctx context.Context) (Entry, bool, error)
	InsertAuditEntry(ctx context.Context, entry Entry) error
	QueryAuditEntries(ctx context.Context, filter Filter) ([]Entry, error)
	AuditEntriesInRange(ctx context.Context, startSeq, endSeq int64) ([]Entry, error)
}

// ErrNotDurable is returned by Log when the durability policy requires a
// persisted entry and the write failed.
var ErrNotDurable = errors.New("audit: entry not durable")

// Durability decides which failed writes are reported to the caller.
type Durability string

const (
	BestEffort Durability = "best_effort"
	RequireP0  Durability = "require_p0"
	RequireAll Durability = "require_all"
)

// ParseDurability validates a configured policy; empty means best effort.
func ParseDurability(v string) (Durability, error) {
	switch d := Durability(v); d {
	case "":
		return BestEffort, nil
	case BestEffort, RequireP0, RequireAll:
		return d, nil
	}
	return "", fmt.Errorf("unknown audit durability %q", v)
}

func (d Durability) requires(level market.RiskLevel) bool {
	switch d {
	case RequireAll:
		return true
	case RequireP0:
		return level == market.P0
	}
	return false
}

type hashInput struct {
	Data         json.RawMessage `json:"data"`
	PreviousHash *string         `json:"previousHash"`
	Timestamp    int64           `json:"timestamp"`
}

// ComputeHash returns hex(sha256(JSON{data, previousHash, timestamp})), the
// timestamp being unix milliseconds.
func ComputeHash(data json.RawMessage, previousHash *string, createdAt time.Time) (string, error) {
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	content, err := json.Marshal(hashInput{Data: data, PreviousHash: previousHash, Timestamp: createdAt.UnixMilli()})
	if err != nil {
		return "", fmt.Errorf("marshal hash input: %w", err)
	}
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:]), nil
}
