package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travigo/railcontrol/pkg/ctdf"
	"github.com/travigo/railcontrol/pkg/disruptions"
)

var day = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

type recordingPublisher struct {
	mutex  sync.Mutex
	events []*ctdf.Event
}

func (r *recordingPublisher) Publish(events ...*ctdf.Event) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.events = append(r.events, events...)
}

func (r *recordingPublisher) types() []ctdf.EventType {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var types []ctdf.EventType
	for _, event := range r.events {
		types = append(types, event.Type)
	}
	return types
}

func scheduleEntry(trainID string, entry time.Time, delay int) ctdf.ScheduleEntry {
	planned := entry.Add(-time.Duration(delay) * time.Minute)
	return ctdf.ScheduleEntry{
		TrainID:        trainID,
		SectionID:      "JUC-LDH",
		PlannedEntry:   planned,
		PlannedExit:    planned.Add(20 * time.Minute),
		OptimizedEntry: entry,
		OptimizedExit:  entry.Add(20 * time.Minute),
		DelayMinutes:   delay,
		ArrivalStation: "LDH",
	}
}

var sectionConflict = ctdf.Conflict{
	Resource:      ctdf.ResourceTypeSection,
	SectionID:     "JUC-LDH",
	TrainIDs:      []string{"T1", "T2"},
	Start:         at(10, 5),
	End:           at(10, 20),
	Capacity:      1,
	PeakOccupancy: 2,
}

func TestFirstVersionReportsConflictsAndDelays(t *testing.T) {
	publisher := &recordingPublisher{}
	emitter := NewEmitter(publisher)

	emitted := emitter.TimetablePublished(nil, &ctdf.Timetable{
		ServiceDate: "2024-03-01",
		Version:     1,
		GeneratedAt: at(9, 0),
		Entries: []ctdf.ScheduleEntry{
			scheduleEntry("T1", at(10, 0), 0),
			scheduleEntry("T2", at(10, 20), 15),
		},
		Conflicts: []ctdf.Conflict{sectionConflict},
	})

	assert.Equal(t, []ctdf.EventType{ctdf.EventTypeDelayChanged, ctdf.EventTypeConflictDetected}, publisher.types())
	require.Len(t, emitted, 2)

	delay := emitted[0]
	assert.Equal(t, "T2", delay.TrainID)
	assert.Equal(t, uint64(1), delay.TimetableVersion)
	assert.Equal(t, ctdf.DelayChangedBody{PreviousDelayMinutes: 0, DelayMinutes: 15, Destination: "LDH"}, delay.Body)
	assert.True(t, delay.Concerns("JUC-LDH"))

	conflict := emitted[1]
	assert.Equal(t, "JUC-LDH", conflict.SectionID)
	assert.Equal(t, []string{"JUC-LDH"}, conflict.Sections)
}

func TestDiffBetweenVersions(t *testing.T) {
	previous := &ctdf.Timetable{
		ServiceDate: "2024-03-01",
		Version:     1,
		Entries: []ctdf.ScheduleEntry{
			scheduleEntry("T1", at(10, 0), 0),
			scheduleEntry("T2", at(10, 5), 0),
		},
		Conflicts: []ctdf.Conflict{sectionConflict},
	}

	departed := scheduleEntry("T1", at(10, 0), 0)
	departed.Frozen = true

	next := &ctdf.Timetable{
		ServiceDate: "2024-03-01",
		Version:     2,
		GeneratedAt: at(10, 1),
		Entries: []ctdf.ScheduleEntry{
			departed,
			scheduleEntry("T2", at(10, 20), 15),
		},
	}

	events := Diff(previous, next)
	require.Len(t, events, 3)

	assert.Equal(t, ctdf.EventTypeTrainDeparted, events[0].Type)
	assert.Equal(t, "T1", events[0].TrainID)
	assert.Equal(t, ctdf.TrainDepartedBody{Entry: departed}, events[0].Body)

	assert.Equal(t, ctdf.EventTypeDelayChanged, events[1].Type)
	assert.Equal(t, "T2", events[1].TrainID)

	assert.Equal(t, ctdf.EventTypeConflictResolved, events[2].Type)
	assert.Equal(t, ctdf.ConflictBody{Conflict: sectionConflict}, events[2].Body)

	for _, event := range events {
		assert.Equal(t, at(10, 1), event.Timestamp)
		assert.Equal(t, uint64(2), event.TimetableVersion)
	}

	// departures are only reported once
	later := *next
	later.Version = 3
	assert.Empty(t, Diff(next, &later))
}

func TestEventIDsAreStable(t *testing.T) {
	next := &ctdf.Timetable{
		Version:   4,
		Entries:   []ctdf.ScheduleEntry{scheduleEntry("T2", at(10, 20), 15)},
		Conflicts: []ctdf.Conflict{sectionConflict},
	}

	first := Diff(nil, next)
	second := Diff(nil, next)
	require.Len(t, first, 2)

	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, first[1].ID, second[1].ID)
	assert.NotEqual(t, first[0].ID, first[1].ID)

	next.Version = 5
	assert.NotEqual(t, first[0].ID, Diff(nil, next)[0].ID)
}

func TestStaleVersionsAreIgnored(t *testing.T) {
	publisher := &recordingPublisher{}
	emitter := NewEmitter(publisher)

	newer := &ctdf.Timetable{ServiceDate: "2024-03-01", Version: 3, Conflicts: []ctdf.Conflict{sectionConflict}}
	older := &ctdf.Timetable{ServiceDate: "2024-03-01", Version: 2}

	assert.Len(t, emitter.TimetablePublished(nil, newer), 1)
	assert.Nil(t, emitter.TimetablePublished(newer, older))
	assert.Nil(t, emitter.TimetablePublished(newer, newer))

	// other days are tracked separately
	otherDay := &ctdf.Timetable{ServiceDate: "2024-03-02", Version: 1, Conflicts: []ctdf.Conflict{sectionConflict}}
	assert.Len(t, emitter.TimetablePublished(nil, otherDay), 1)

	assert.Len(t, publisher.events, 2)
}

func TestPlatformConflictConcernsArrivingSections(t *testing.T) {
	first := scheduleEntry("T1", at(10, 0), 0)
	first.Platform = "1"
	first.DwellMinutes = 5
	second := scheduleEntry("T3", at(10, 2), 0)
	second.SectionID = "UMB-LDH"
	second.Platform = "1"
	second.DwellMinutes = 5
	other := scheduleEntry("T4", at(11, 0), 0)
	other.SectionID = "ASR-JUC"

	events := Diff(nil, &ctdf.Timetable{
		Version: 1,
		Entries: []ctdf.ScheduleEntry{first, second, other},
		Conflicts: []ctdf.Conflict{{
			Resource:  ctdf.ResourceTypePlatform,
			StationID: "LDH",
			Platform:  "1",
			TrainIDs:  []string{"T1", "T3"},
		}},
	})

	require.Len(t, events, 1)
	assert.Equal(t, []string{"JUC-LDH", "UMB-LDH"}, events[0].Sections)
	assert.False(t, events[0].Concerns("ASR-JUC"))
}

func TestDisruptionTransitions(t *testing.T) {
	publisher := &recordingPublisher{}
	emitter := NewEmitter(publisher)

	active := &ctdf.Disruption{
		PrimaryIdentifier:    "D1",
		Type:                 ctdf.DisruptionTypeSignalFailure,
		Severity:             ctdf.SeverityHigh,
		Status:               ctdf.DisruptionStatusActive,
		Sections:             []string{"JUC-LDH", "LDH-UMB"},
		ModificationDateTime: at(9, 0),
	}
	resolved := active.Clone()
	resolved.Status = ctdf.DisruptionStatusResolved
	investigating := active.Clone()
	investigating.Status = ctdf.DisruptionStatusInvestigating
	simulated := active.Clone()
	simulated.Status = ctdf.DisruptionStatusSimulated

	created := emitter.DisruptionChanged(disruptions.Transition{Current: active})
	require.Len(t, created, 1)
	assert.Equal(t, ctdf.EventTypeDisruptionCreated, created[0].Type)
	assert.Equal(t, "D1", created[0].DisruptionID)
	assert.True(t, created[0].Concerns("LDH-UMB"))

	assert.Empty(t, emitter.DisruptionChanged(disruptions.Transition{Previous: active, Current: investigating}))
	assert.Empty(t, emitter.DisruptionChanged(disruptions.Transition{Current: simulated}))

	closed := emitter.DisruptionChanged(disruptions.Transition{Previous: investigating, Current: resolved})
	require.Len(t, closed, 1)
	assert.Equal(t, ctdf.EventTypeDisruptionResolved, closed[0].Type)

	assert.Equal(t, []ctdf.EventType{ctdf.EventTypeDisruptionCreated, ctdf.EventTypeDisruptionResolved}, publisher.types())
}
