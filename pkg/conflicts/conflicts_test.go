package conflicts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travigo/railcontrol/pkg/config"
	"github.com/travigo/railcontrol/pkg/ctdf"
	"github.com/travigo/railcontrol/pkg/disruptions"
)

var day = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func entry(trainID, sectionID string, entryTime, exitTime time.Time) ctdf.ScheduleEntry {
	return ctdf.ScheduleEntry{
		TrainID:        trainID,
		SectionID:      sectionID,
		PlannedEntry:   entryTime,
		PlannedExit:    exitTime,
		OptimizedEntry: entryTime,
		OptimizedExit:  exitTime,
	}
}

var sections = []*ctdf.Section{
	{PrimaryIdentifier: "JUC-LDH", FromStation: "JUC", ToStation: "LDH", LengthKm: 40, MaxSpeedKmh: 120, Capacity: 1},
	{PrimaryIdentifier: "LDH-UMB", FromStation: "LDH", ToStation: "UMB", LengthKm: 60, MaxSpeedKmh: 120, Capacity: 2},
}

func effects(disrupted ...*ctdf.Disruption) *disruptions.Effects {
	return disruptions.NewEffects(sections, config.Default().Severities, disrupted, false)
}

func TestTwoTrainsSingleTrack(t *testing.T) {
	conflicts := Detect([]ctdf.ScheduleEntry{
		entry("T1", "JUC-LDH", at(10, 0), at(10, 20)),
		entry("T2", "JUC-LDH", at(10, 5), at(10, 25)),
	}, effects())

	require.Len(t, conflicts, 1)
	assert.Equal(t, ctdf.ResourceTypeSection, conflicts[0].Resource)
	assert.Equal(t, "JUC-LDH", conflicts[0].SectionID)
	assert.Equal(t, []string{"T1", "T2"}, conflicts[0].TrainIDs)
	assert.Equal(t, at(10, 5), conflicts[0].Start)
	assert.Equal(t, at(10, 20), conflicts[0].End)
	assert.Equal(t, 1, conflicts[0].Capacity)
	assert.Equal(t, 2, conflicts[0].PeakOccupancy)
}

func TestBackToBackIsNotAConflict(t *testing.T) {
	conflicts := Detect([]ctdf.ScheduleEntry{
		entry("T1", "JUC-LDH", at(10, 0), at(10, 20)),
		entry("T2", "JUC-LDH", at(10, 20), at(10, 40)),
	}, effects())

	assert.Empty(t, conflicts)
}

func TestMultiTrackCapacity(t *testing.T) {
	twoTrains := []ctdf.ScheduleEntry{
		entry("A", "LDH-UMB", at(10, 0), at(10, 30)),
		entry("B", "LDH-UMB", at(10, 10), at(10, 40)),
	}
	assert.Empty(t, Detect(twoTrains, effects()))

	threeTrains := append(twoTrains, entry("C", "LDH-UMB", at(10, 20), at(10, 50)))
	conflicts := Detect(threeTrains, effects())
	require.Len(t, conflicts, 1)
	assert.Equal(t, []string{"A", "B", "C"}, conflicts[0].TrainIDs)
	assert.Equal(t, at(10, 20), conflicts[0].Start)
	assert.Equal(t, at(10, 30), conflicts[0].End)
	assert.Equal(t, 3, conflicts[0].PeakOccupancy)
}

func TestCapacityCapFromDisruption(t *testing.T) {
	high := &ctdf.Disruption{
		PrimaryIdentifier:   "D1",
		Severity:            ctdf.SeverityHigh,
		Status:              ctdf.DisruptionStatusActive,
		Sections:            []string{"LDH-UMB"},
		StartTime:           at(10, 15),
		EstimatedResolution: at(11, 0),
	}

	conflicts := Detect([]ctdf.ScheduleEntry{
		entry("A", "LDH-UMB", at(10, 0), at(10, 30)),
		entry("B", "LDH-UMB", at(10, 10), at(10, 40)),
	}, effects(high))

	// capacity drops to 1 while both are on the section
	require.Len(t, conflicts, 1)
	assert.Equal(t, at(10, 15), conflicts[0].Start)
	assert.Equal(t, at(10, 30), conflicts[0].End)
	assert.Equal(t, 1, conflicts[0].Capacity)
}

func TestClosureFlagsAnyOccupancy(t *testing.T) {
	closure := &ctdf.Disruption{
		PrimaryIdentifier:   "D1",
		Severity:            ctdf.SeverityCritical,
		Status:              ctdf.DisruptionStatusActive,
		Sections:            []string{"JUC-LDH"},
		StartTime:           at(12, 0),
		EstimatedResolution: at(14, 0),
	}

	conflicts := Detect([]ctdf.ScheduleEntry{
		entry("T1", "JUC-LDH", at(11, 50), at(12, 10)),
		entry("T2", "JUC-LDH", at(14, 0), at(14, 20)),
	}, effects(closure))

	require.Len(t, conflicts, 1)
	assert.Equal(t, []string{"T1"}, conflicts[0].TrainIDs)
	assert.Equal(t, 0, conflicts[0].Capacity)
	assert.Equal(t, at(12, 0), conflicts[0].Start)
	assert.Equal(t, at(12, 10), conflicts[0].End)
}

func TestPlatformConflicts(t *testing.T) {
	first := entry("T1", "JUC-LDH", at(10, 0), at(10, 20))
	first.ArrivalStation = "LDH"
	first.Platform = "1"
	first.DwellMinutes = 5

	second := entry("T2", "LDH-UMB", at(9, 0), at(9, 30))
	second.ArrivalStation = "UMB"

	third := entry("T3", "JUC-LDH", at(9, 30), at(10, 22))
	third.ArrivalStation = "LDH"
	third.Platform = "1"
	third.DwellMinutes = 3

	conflicts := Detect([]ctdf.ScheduleEntry{first, second, third}, effects())

	var platformConflicts []ctdf.Conflict
	for _, conflict := range conflicts {
		if conflict.Resource == ctdf.ResourceTypePlatform {
			platformConflicts = append(platformConflicts, conflict)
		}
	}
	require.Len(t, platformConflicts, 1)
	assert.Equal(t, "LDH", platformConflicts[0].StationID)
	assert.Equal(t, "1", platformConflicts[0].Platform)
	assert.Equal(t, []string{"T1", "T3"}, platformConflicts[0].TrainIDs)
	assert.Equal(t, at(10, 22), platformConflicts[0].Start)
	assert.Equal(t, at(10, 25), platformConflicts[0].End)

	// section conflicts sort ahead of platform conflicts
	assert.Equal(t, ctdf.ResourceTypeSection, conflicts[0].Resource)
}

func TestDetectIsDeterministic(t *testing.T) {
	var entries []ctdf.ScheduleEntry
	for i, trainID := range []string{"E", "D", "C", "B", "A"} {
		entries = append(entries, entry(trainID, "JUC-LDH", at(10, i*5), at(10, i*5+20)))
		entries = append(entries, entry(trainID, "LDH-UMB", at(11, i*2), at(11, i*2+30)))
	}

	first := Detect(entries, effects())
	for range 10 {
		assert.Equal(t, first, Detect(entries, effects()))
	}
}

func TestFindConflictsOnTimetable(t *testing.T) {
	tt := &ctdf.Timetable{Entries: []ctdf.ScheduleEntry{
		entry("T1", "JUC-LDH", at(10, 0), at(10, 20)),
		entry("T2", "JUC-LDH", at(10, 20), at(10, 40)),
	}}
	assert.Empty(t, FindConflicts(tt, effects()))
}

func TestTrainWaitingAtPlatformHoldsIt(t *testing.T) {
	standing := entry("A", "ASR-JUC", at(9, 0), at(10, 0))
	standing.ArrivalStation = "JUC"
	standing.Platform = "1"
	standing.DwellMinutes = 2
	standing.PlatformRelease = at(10, 20)

	arriving := entry("B", "KKR-JUC", at(9, 50), at(10, 10))
	arriving.ArrivalStation = "JUC"
	arriving.Platform = "1"
	arriving.DwellMinutes = 2

	conflicts := Detect([]ctdf.ScheduleEntry{standing, arriving}, SectionCapacities{})

	require.Len(t, conflicts, 1)
	assert.Equal(t, ctdf.ResourceTypePlatform, conflicts[0].Resource)
	assert.Equal(t, []string{"A", "B"}, conflicts[0].TrainIDs)
	assert.Equal(t, at(10, 10), conflicts[0].Start)
	assert.Equal(t, at(10, 12), conflicts[0].End)
}

func TestSectionCapacities(t *testing.T) {
	capacities := NewSectionCapacities(sections)
	assert.Equal(t, 2, capacities.EffectiveCapacity("LDH-UMB", at(10, 0)))
	assert.Equal(t, 1, capacities.EffectiveCapacity("XXX-YYY", at(10, 0)))

	tt := &ctdf.Timetable{Entries: []ctdf.ScheduleEntry{
		entry("A", "LDH-UMB", at(10, 0), at(10, 30)),
		entry("B", "LDH-UMB", at(10, 10), at(10, 40)),
	}}
	assert.Empty(t, FindConflicts(tt, capacities))

	tt.Entries = append(tt.Entries, entry("C", "LDH-UMB", at(10, 20), at(10, 50)))
	assert.Len(t, FindConflicts(tt, capacities), 1)
}

func TestDetectNeedsCapacityModel(t *testing.T) {
	assert.Panics(t, func() {
		Detect([]ctdf.ScheduleEntry{entry("T1", "JUC-LDH", at(10, 0), at(10, 20))}, nil)
	})
}
