package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travigo/railcontrol/pkg/ctdf"
)

var day = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

var section = &ctdf.Section{PrimaryIdentifier: "JUC-LDH", FromStation: "JUC", ToStation: "LDH", LengthKm: 40, MaxSpeedKmh: 120, Capacity: 1}

func TestWelford(t *testing.T) {
	var welford Welford
	assert.Equal(t, 0.0, welford.StdDev())

	for _, value := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		welford.Update(value)
	}

	assert.Equal(t, 8, welford.Count)
	assert.InDelta(t, 5.0, welford.Mean, 1e-9)
	assert.InDelta(t, 2.0, welford.StdDev(), 1e-9)
}

func TestCalculate(t *testing.T) {
	timetable := &ctdf.Timetable{
		ServiceDate: "2024-03-01",
		Version:     3,
		Entries: []ctdf.ScheduleEntry{
			{TrainID: "T1", SectionID: "JUC-LDH", PlannedEntry: at(10, 0), OptimizedEntry: at(10, 0), OptimizedExit: at(10, 20)},
			{TrainID: "T2", SectionID: "JUC-LDH", PlannedEntry: at(10, 5), OptimizedEntry: at(10, 20), OptimizedExit: at(10, 40), DelayMinutes: 15},
			{TrainID: "T3", SectionID: "LDH-UMB", OptimizedEntry: at(11, 0), OptimizedExit: at(11, 30), DelayMinutes: 60},
		},
		BaselineConflicts: []ctdf.Conflict{{
			Resource: ctdf.ResourceTypeSection, SectionID: "JUC-LDH", TrainIDs: []string{"T1", "T2"},
			Start: at(10, 5), End: at(10, 20), Capacity: 1, PeakOccupancy: 2,
		}},
		Decisions: []ctdf.Decision{
			{TrainID: "T2", SectionID: "JUC-LDH", YieldedTo: []string{"T1"}, DelayMinutes: 15},
			{TrainID: "T3", SectionID: "LDH-UMB", YieldedTo: []string{"T4"}, DelayMinutes: 60},
		},
	}

	disruptions := []*ctdf.Disruption{
		{
			PrimaryIdentifier:   "D1",
			Type:                ctdf.DisruptionTypeSignalFailure,
			Severity:            ctdf.SeverityHigh,
			Status:              ctdf.DisruptionStatusActive,
			Sections:            []string{"JUC-LDH"},
			StartTime:           at(9, 0),
			EstimatedResolution: at(12, 0),
		},
		{
			PrimaryIdentifier: "D2",
			Severity:          ctdf.SeverityCritical,
			Status:            ctdf.DisruptionStatusResolved,
			Sections:          []string{"JUC-LDH"},
		},
		{
			PrimaryIdentifier: "D3",
			Severity:          ctdf.SeverityCritical,
			Status:            ctdf.DisruptionStatusActive,
			Sections:          []string{"LDH-UMB"},
		},
	}

	sectionStats := Calculate(timetable, section, disruptions)

	assert.Equal(t, "JUC-LDH", sectionStats.SectionID)
	assert.Equal(t, uint64(3), sectionStats.TimetableVersion)
	assert.Equal(t, 2, sectionStats.Trains)
	assert.Equal(t, 1, sectionStats.ConflictsResolved)
	assert.Equal(t, 0, sectionStats.RemainingConflicts)
	assert.Equal(t, 7.5, sectionStats.AverageDelayMinutes)
	assert.Equal(t, 7.5, sectionStats.DelayStdDevMinutes)
	assert.Equal(t, 15, sectionStats.MaxDelayMinutes)
	assert.Equal(t, 0.5, sectionStats.OnTimeShare)
	assert.Equal(t, 3.0, sectionStats.ThroughputPerHour)

	require.Len(t, sectionStats.Recommendations, 1)
	assert.Equal(t, "Hold T2 for 15 minutes to let T1 clear JUC-LDH", sectionStats.Recommendations[0].Message)

	require.Len(t, sectionStats.Alerts, 1)
	assert.Equal(t, AlertLevelWarning, sectionStats.Alerts[0].Level)
	assert.Equal(t, "D1", sectionStats.Alerts[0].DisruptionID)
	assert.Equal(t, "HIGH SIGNAL FAILURE until 2024-03-01T12:00:00Z", sectionStats.Alerts[0].Message)
}

func TestCalculateAlertsOrderedBySeverity(t *testing.T) {
	timetable := &ctdf.Timetable{
		Version:   2,
		Degraded:  true,
		LastError: "optimiser panicked",
		Entries: []ctdf.ScheduleEntry{
			{TrainID: "T1", SectionID: "JUC-LDH", OptimizedEntry: at(12, 0), OptimizedExit: at(12, 20), Unresolved: true},
		},
		Conflicts: []ctdf.Conflict{{
			Resource: ctdf.ResourceTypeSection, SectionID: "JUC-LDH", TrainIDs: []string{"T1"},
			Start: at(12, 0), End: at(12, 20),
		}},
	}

	sectionStats := Calculate(timetable, section, nil)

	var types []string
	for _, alert := range sectionStats.Alerts {
		types = append(types, alert.Type)
	}
	assert.Equal(t, []string{"unresolved", "degraded", "conflict"}, types)
	assert.Equal(t, 1, sectionStats.RemainingConflicts)
	assert.Equal(t, 0, sectionStats.ConflictsResolved)
	assert.Empty(t, sectionStats.Recommendations)
}

func TestCalculateEmptySection(t *testing.T) {
	sectionStats := Calculate(&ctdf.Timetable{}, section, nil)

	assert.Equal(t, 0, sectionStats.Trains)
	assert.Equal(t, 0.0, sectionStats.AverageDelayMinutes)
	assert.NotNil(t, sectionStats.Recommendations)
	assert.NotNil(t, sectionStats.Alerts)
}
