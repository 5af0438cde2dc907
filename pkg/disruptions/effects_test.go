package disruptions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/travigo/railcontrol/pkg/config"
	"github.com/travigo/railcontrol/pkg/ctdf"
)

func TestEffects(t *testing.T) {
	sections := []*ctdf.Section{
		{PrimaryIdentifier: "A-B", FromStation: "A", ToStation: "B", LengthKm: 20, MaxSpeedKmh: 60, Capacity: 2},
		{PrimaryIdentifier: "B-C", FromStation: "B", ToStation: "C", LengthKm: 20, MaxSpeedKmh: 60, Capacity: 1},
	}

	disruptions := []*ctdf.Disruption{
		{
			PrimaryIdentifier:   "high",
			Severity:            ctdf.SeverityHigh,
			Status:              ctdf.DisruptionStatusActive,
			Sections:            []string{"A-B"},
			StartTime:           noon,
			EstimatedResolution: noon.Add(time.Hour),
		},
		{
			PrimaryIdentifier:   "closure",
			Severity:            ctdf.SeverityCritical,
			Status:              ctdf.DisruptionStatusInvestigating,
			Sections:            []string{"B-C"},
			StartTime:           noon,
			EstimatedResolution: noon.Add(2 * time.Hour),
		},
		{
			PrimaryIdentifier: "resolved",
			Severity:          ctdf.SeverityCritical,
			Status:            ctdf.DisruptionStatusResolved,
			Sections:          []string{"A-B"},
			StartTime:         noon.Add(-time.Hour),
			ActualResolution:  noon,
		},
		{
			PrimaryIdentifier: "what-if",
			Severity:          ctdf.SeverityLow,
			Status:            ctdf.DisruptionStatusSimulated,
			Sections:          []string{"A-B"},
			StartTime:         noon.Add(3 * time.Hour),
		},
	}

	effects := NewEffects(sections, config.Default().Severities, disruptions, false)

	assert.Equal(t, 2, effects.EffectiveCapacity("A-B", noon.Add(-time.Minute)))
	assert.Equal(t, 1, effects.EffectiveCapacity("A-B", noon))
	assert.Equal(t, 2, effects.EffectiveCapacity("A-B", noon.Add(time.Hour)))
	assert.Equal(t, 0, effects.EffectiveCapacity("B-C", noon.Add(30*time.Minute)))
	assert.Equal(t, 1, effects.MinCapacity("A-B", noon.Add(-time.Hour), noon.Add(time.Minute)))

	assert.Equal(t, 0.4, effects.SpeedMultiplier("A-B", noon))
	assert.Equal(t, 1.0, effects.SpeedMultiplier("A-B", noon.Add(4*time.Hour)))

	// 20 minutes nominal at 0.4 speed
	traversal, ok := effects.Traversal(sections[0], noon)
	assert.True(t, ok)
	assert.Equal(t, 50*time.Minute, traversal)

	_, ok = effects.Traversal(sections[1], noon)
	assert.False(t, ok)

	closed, reopen := effects.ClosedDuring("B-C", noon.Add(-10*time.Minute), noon.Add(10*time.Minute))
	assert.True(t, closed)
	assert.Equal(t, noon.Add(2*time.Hour), reopen)

	closed, _ = effects.ClosedDuring("B-C", noon.Add(2*time.Hour), noon.Add(3*time.Hour))
	assert.False(t, closed)

	assert.Equal(t, []time.Time{noon, noon.Add(time.Hour)}, effects.CapacityChanges("A-B"))

	simulated := NewEffects(sections, config.Default().Severities, disruptions, true)
	assert.Equal(t, 0.9, simulated.SpeedMultiplier("A-B", noon.Add(4*time.Hour)))
}

func TestTraversalAcrossRestrictionBoundary(t *testing.T) {
	section := &ctdf.Section{PrimaryIdentifier: "A-B", FromStation: "A", ToStation: "B", LengthKm: 20, MaxSpeedKmh: 60, Capacity: 1}
	restriction := &ctdf.Disruption{
		PrimaryIdentifier:   "high",
		Severity:            ctdf.SeverityHigh,
		Status:              ctdf.DisruptionStatusActive,
		Sections:            []string{"A-B"},
		StartTime:           noon,
		EstimatedResolution: noon.Add(time.Hour),
	}
	effects := NewEffects([]*ctdf.Section{section}, config.Default().Severities, []*ctdf.Disruption{restriction}, false)

	// 10 minutes at line speed, then the other half at 0.4
	traversal, ok := effects.Traversal(section, noon.Add(-10*time.Minute))
	assert.True(t, ok)
	assert.Equal(t, 35*time.Minute, traversal)

	// 10 minutes at 0.4 covers a fifth, the rest at line speed
	traversal, ok = effects.Traversal(section, noon.Add(50*time.Minute))
	assert.True(t, ok)
	assert.Equal(t, 26*time.Minute, traversal)

	traversal, ok = effects.Traversal(section, noon.Add(-time.Hour))
	assert.True(t, ok)
	assert.Equal(t, 20*time.Minute, traversal)
}
