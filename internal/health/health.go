// Package health scores system health and derives the operating mode used to
// veto execution and notification.
package health

import (
	"math"
	"sync"

	"github.com/rs/zerolog"
)

// Mode is the system operating state.
type Mode string

const (
	ModeActive    Mode = "active"
	ModeDegraded  Mode = "degraded"
	ModePaused    Mode = "paused"
	ModeEmergency Mode = "emergency"
)

// Score thresholds for the automatic modes.
const (
	ActiveAt   = 80.0
	DegradedAt = 50.0
)

// ModeForScore maps a 0–100 score to active, degraded or emergency.
func ModeForScore(score float64) Mode {
	switch {
	case score >= ActiveAt:
		return ModeActive
	case score >= DegradedAt:
		return ModeDegraded
	default:
		return ModeEmergency
	}
}

// Listener is called after every mode change with the previous and new mode.
type Listener func(prev, next Mode)

// Manager holds the process-wide mode. Construct once and share.
type Manager struct {
	mu        sync.RWMutex
	mode      Mode
	score     float64
	listeners []Listener
	logger    zerolog.Logger
}

// NewManager starts active with a perfect score.
func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{
		mode:   ModeActive,
		score:  100,
		logger: logger.With().Str("component", "health").Logger(),
	}
}

// OnModeChange registers l.
func (m *Manager) OnModeChange(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// SetMode switches mode and notifies listeners when it changed.
func (m *Manager) SetMode(next Mode) {
	m.mu.Lock()
	prev := m.mode
	if prev == next {
		m.mu.Unlock()
		return
	}
	m.mode = next
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	m.logger.Warn().Str("prev", string(prev)).Str("current", string(next)).Msg("system mode changed")
	for _, l := range listeners {
		l(prev, next)
	}
}

// UpdateFromScore records score and moves to the mode it implies. An operator
// pause is kept unless the score falls into emergency.
func (m *Manager) UpdateFromScore(score float64) {
	m.mu.Lock()
	m.score = score
	paused := m.mode == ModePaused
	m.mu.Unlock()

	next := ModeForScore(score)
	if paused && next != ModeEmergency {
		return
	}
	m.SetMode(next)
}

// Mode returns the current mode.
func (m *Manager) Mode() Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode
}

// Score returns the last recorded score.
func (m *Manager) Score() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.score
}

// CanExecute reports whether orders may be placed.
func (m *Manager) CanExecute() bool { return m.Mode() == ModeActive }

// CanNotify reports whether notifications may be sent.
func (m *Manager) CanNotify() bool { return m.Mode() != ModeEmergency }

// Degraded reports whether upstream data should be treated as less reliable.
func (m *Manager) Degraded() bool { return m.Mode() != ModeActive }

// Dimensions are the raw health inputs.
type Dimensions struct {
	WSLatencyMS      float64 `json:"ws_latency"`
	RESTLatencyMS    float64 `json:"rest_api_latency"`
	ErrorRatePct     float64 `json:"error_rate"`
	AILatencyMS      float64 `json:"ai_latency"`
	WhaleDataAgeMin  float64 `json:"whale_data_freshness"`
	OrderSuccessRate float64 `json:"order_success_rate"`
}

// Band is the healthy/degraded pair of one dimension.
type Band struct {
	Healthy  float64
	Degraded float64
}

// Scorer weighs the dimensions into one score.
type Scorer struct {
	WSLatency    Band
	RESTLatency  Band
	ErrorRate    Band
	AILatency    Band
	WhaleAge     Band
	OrderSuccess Band
	Weights      [6]float64
}

// DefaultScorer returns production bands and weights.
func DefaultScorer() Scorer {
	return Scorer{
		WSLatency:    Band{Healthy: 100, Degraded: 500},
		RESTLatency:  Band{Healthy: 200, Degraded: 1000},
		ErrorRate:    Band{Healthy: 1, Degraded: 5},
		AILatency:    Band{Healthy: 5000, Degraded: 15000},
		WhaleAge:     Band{Healthy: 5, Degraded: 15},
		OrderSuccess: Band{Healthy: 95, Degraded: 80},
		Weights:      [6]float64{0.15, 0.2, 0.2, 0.15, 0.1, 0.2},
	}
}

// Score returns the weighted overall score, rounded to an integer.
func (s Scorer) Score(d Dimensions) float64 {
	parts := [6]float64{
		lowerIsBetter(d.WSLatencyMS, s.WSLatency),
		lowerIsBetter(d.RESTLatencyMS, s.RESTLatency),
		lowerIsBetter(d.ErrorRatePct, s.ErrorRate),
		lowerIsBetter(d.AILatencyMS, s.AILatency),
		lowerIsBetter(d.WhaleDataAgeMin, s.WhaleAge),
		higherIsBetter(d.OrderSuccessRate, s.OrderSuccess),
	}
	var total float64
	for i, p := range parts {
		total += p * s.Weights[i]
	}
	return math.Round(total)
}

// At or under Healthy scores 100, linear down to 50 at Degraded, then decays
// to 0 at twice Degraded.
func lowerIsBetter(v float64, b Band) float64 {
	if v <= b.Healthy {
		return 100
	}
	if v <= b.Degraded {
		return 100 - (v-b.Healthy)/(b.Degraded-b.Healthy)*50
	}
	return math.Max(0, 50-(v-b.Degraded)/b.Degraded*50)
}

func higherIsBetter(v float64, b Band) float64 {
	if v >= b.Healthy {
		return 100
	}
	if v >= b.Degraded {
		return 100 - (b.Healthy-v)/(b.Healthy-b.Degraded)*50
	}
	return math.Max(0, 50-(b.Degraded-v)/b.Degraded*50)
}
