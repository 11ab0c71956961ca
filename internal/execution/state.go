package execution

import (
	"time"

	"github.com/rs/zerolog"
)

// Status is an order lifecycle state.
type Status string

const (
	StatusPending     Status = "pending"
	StatusSubmitted   Status = "submitted"
	StatusAccepted    Status = "accepted"
	StatusPartialFill Status = "partial_fill"
	StatusFilled      Status = "filled"
	StatusCancelled   Status = "cancelled"
	StatusFailed      Status = "failed"
)

var transitions = map[Status][]Status{
	StatusPending:     {StatusSubmitted, StatusFailed, StatusCancelled},
	StatusSubmitted:   {StatusAccepted, StatusFailed, StatusCancelled},
	StatusAccepted:    {StatusPartialFill, StatusFilled, StatusCancelled, StatusFailed},
	StatusPartialFill: {StatusFilled, StatusCancelled, StatusFailed},
	StatusFilled:      {},
	StatusCancelled:   {},
	StatusFailed:      {},
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusFilled || s == StatusCancelled || s == StatusFailed
}

// CanTransition reports whether from → to is in the table.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StatusChange is one entry of a state machine's history.
type StatusChange struct {
	Status Status    `json:"status"`
	At     time.Time `json:"at"`
}

// StateMachine tracks the lifecycle of one order. Not safe for concurrent use.
type StateMachine struct {
	clOrdID string
	state   Status
	history []StatusChange
	now     func() time.Time
	logger  zerolog.Logger
}

// NewStateMachine starts a machine in pending.
func NewStateMachine(clOrdID string, now func() time.Time, logger zerolog.Logger) *StateMachine {
	if now == nil {
		now = time.Now
	}
	return &StateMachine{
		clOrdID: clOrdID,
		state:   StatusPending,
		history: []StatusChange{{Status: StatusPending, At: now()}},
		now:     now,
		logger:  logger,
	}
}

// Transition moves to next when the table allows it. Otherwise the state is
// left unchanged and false is returned.
func (m *StateMachine) Transition(next Status) bool {
	if !CanTransition(m.state, next) {
		m.logger.Warn().
			Str("cl_ord_id", m.clOrdID).
			Str("from", string(m.state)).
			Str("to", string(next)).
			Msg("invalid order state transition")
		return false
	}
	m.state = next
	m.history = append(m.history, StatusChange{Status: next, At: m.now()})
	m.logger.Debug().Str("cl_ord_id", m.clOrdID).Str("state", string(next)).Msg("order state transition")
	return true
}

// Current returns the present state.
func (m *StateMachine) Current() Status { return m.state }

// History returns a copy of every state entered, oldest first.
func (m *StateMachine) History() []StatusChange {
	out := make([]StatusChange, len(m.history))
	copy(out, m.history)
	return out
}

// IsTerminal reports whether the order reached filled, cancelled or failed.
func (m *StateMachine) IsTerminal() bool { return m.state.Terminal() }
