package health

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestModeForScore(t *testing.T) {
	assert.Equal(t, ModeActive, ModeForScore(80))
	assert.Equal(t, ModeDegraded, ModeForScore(79.9))
	assert.Equal(t, ModeDegraded, ModeForScore(50))
	assert.Equal(t, ModeEmergency, ModeForScore(49))
}

func TestManagerTransitionsAndListeners(t *testing.T) {
	m := NewManager(zerolog.Nop())
	var changes [][2]Mode
	m.OnModeChange(func(prev, next Mode) { changes = append(changes, [2]Mode{prev, next}) })

	assert.True(t, m.CanExecute())
	m.UpdateFromScore(85)
	assert.Empty(t, changes, "no change while staying active")

	m.UpdateFromScore(60)
	assert.Equal(t, ModeDegraded, m.Mode())
	assert.False(t, m.CanExecute())
	assert.True(t, m.CanNotify())
	assert.True(t, m.Degraded())

	m.UpdateFromScore(10)
	assert.False(t, m.CanNotify())
	assert.Equal(t, 10.0, m.Score())

	assert.Equal(t, [][2]Mode{{ModeActive, ModeDegraded}, {ModeDegraded, ModeEmergency}}, changes)
}

func TestPauseSurvivesHealthyScores(t *testing.T) {
	m := NewManager(zerolog.Nop())
	m.SetMode(ModePaused)

	m.UpdateFromScore(95)
	assert.Equal(t, ModePaused, m.Mode())
	assert.False(t, m.CanExecute())

	m.UpdateFromScore(20)
	assert.Equal(t, ModeEmergency, m.Mode())
}

func TestScorer(t *testing.T) {
	s := DefaultScorer()

	healthy := Dimensions{WSLatencyMS: 50, RESTLatencyMS: 150, ErrorRatePct: 0.5, AILatencyMS: 3000, WhaleDataAgeMin: 2, OrderSuccessRate: 99}
	assert.Equal(t, 100.0, s.Score(healthy))

	// rest latency halfway through its band scores 75
	mid := healthy
	mid.RESTLatencyMS = 600
	assert.Equal(t, 95.0, s.Score(mid))

	broken := Dimensions{WSLatencyMS: 5000, RESTLatencyMS: 5000, ErrorRatePct: 50, AILatencyMS: 60000, WhaleDataAgeMin: 120, OrderSuccessRate: 0}
	assert.Equal(t, 0.0, s.Score(broken))
	assert.Equal(t, ModeEmergency, ModeForScore(s.Score(broken)))
}
