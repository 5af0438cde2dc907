package ctdf

import (
	"slices"
	"time"
)

// ScheduleEntry is the optimised occupancy of one section by one train.
type ScheduleEntry struct {
	TrainID   string `json:"train_id" groups:"basic"`
	SectionID string `json:"section_id" groups:"basic"`
	Sequence  int    `json:"sequence" groups:"detailed"`

	PlannedEntry   time.Time `json:"planned_entry" groups:"basic"`
	PlannedExit    time.Time `json:"planned_exit" groups:"basic"`
	OptimizedEntry time.Time `json:"optimized_entry" groups:"basic"`
	OptimizedExit  time.Time `json:"optimized_exit" groups:"basic"`
	DelayMinutes   int       `json:"delay_minutes" groups:"basic"`

	ArrivalStation string `json:"arrival_station" groups:"detailed"`
	Platform       string `json:"platform,omitempty" groups:"basic"`
	DwellMinutes   int    `json:"dwell_minutes,omitempty" groups:"detailed"`

	// PlatformRelease is when the train leaves the platform for its next
	// section. Zero at the destination.
	PlatformRelease time.Time `json:"platform_release,omitzero" groups:"detailed"`

	Frozen     bool `json:"frozen" groups:"detailed"`
	Unresolved bool `json:"unresolved,omitempty" groups:"basic"`
}

// PlatformWindow is the platform occupancy at the arrival station following
// this entry, when the train needs a platform there. The train holds the
// platform for its dwell and for as long as it waits for the next section.
func (e *ScheduleEntry) PlatformWindow() (time.Time, time.Time, bool) {
	if e.Platform == "" {
		return time.Time{}, time.Time{}, false
	}
	end := e.DwellEnd()
	if e.PlatformRelease.After(end) {
		end = e.PlatformRelease
	}
	return e.OptimizedExit, end, true
}

// DwellEnd is the end of the planned stop after this entry.
func (e *ScheduleEntry) DwellEnd() time.Time {
	return e.OptimizedExit.Add(time.Duration(e.DwellMinutes) * time.Minute)
}

// Decision records a train that lost time on a section because other trains
// held it.
type Decision struct {
	TrainID      string   `json:"train_id"`
	SectionID    string   `json:"section_id"`
	YieldedTo    []string `json:"yielded_to"`
	DelayMinutes int      `json:"delay_minutes"`
}

// OverrideViolation is a pinned ordering the scheduler could not honour:
// TrainID was pinned ahead of AheadOf on the section but entered after it.
type OverrideViolation struct {
	SectionID string `json:"section_id"`
	TrainID   string `json:"train_id"`
	AheadOf   string `json:"ahead_of"`
	Reason    string `json:"reason"`
}

// Timetable is a published, immutable version of a service day's schedule.
type Timetable struct {
	ServiceDate string    `json:"service_date" groups:"basic"`
	Version     uint64    `json:"version" groups:"basic"`
	Generation  string    `json:"generation" groups:"detailed"`
	GeneratedAt time.Time `json:"generated_at" groups:"basic"`

	Entries []ScheduleEntry `json:"entries" groups:"basic"`

	Conflicts         []Conflict `json:"conflicts" groups:"basic"`
	BaselineConflicts []Conflict `json:"baseline_conflicts" groups:"detailed"`

	Unresolved []string            `json:"unresolved" groups:"basic"`
	Decisions  []Decision          `json:"decisions" groups:"detailed"`
	Violations []OverrideViolation `json:"violations,omitempty" groups:"detailed"`

	Objective float64 `json:"objective" groups:"detailed"`

	Degraded  bool   `json:"degraded" groups:"basic"`
	LastError string `json:"last_error,omitempty" groups:"basic"`
}

func (t *Timetable) ForSection(sectionID string) []ScheduleEntry {
	var entries []ScheduleEntry
	for _, entry := range t.Entries {
		if entry.SectionID == sectionID {
			entries = append(entries, entry)
		}
	}
	return entries
}

// ForTrain returns the train's entries in route order.
func (t *Timetable) ForTrain(trainID string) []ScheduleEntry {
	var entries []ScheduleEntry
	for _, entry := range t.Entries {
		if entry.TrainID == trainID {
			entries = append(entries, entry)
		}
	}
	slices.SortFunc(entries, func(a, b ScheduleEntry) int {
		return a.Sequence - b.Sequence
	})
	return entries
}

// TrainDelays maps every train to its arrival delay in minutes.
func (t *Timetable) TrainDelays() map[string]int {
	delays := map[string]int{}
	last := map[string]int{}
	for _, entry := range t.Entries {
		if seq, ok := last[entry.TrainID]; ok && seq > entry.Sequence {
			continue
		}
		last[entry.TrainID] = entry.Sequence
		delays[entry.TrainID] = Minutes(entry.OptimizedExit.Sub(entry.PlannedExit))
	}
	return delays
}

func (t *Timetable) ConflictsFor(section *Section) []Conflict {
	var conflicts []Conflict
	for _, conflict := range t.Conflicts {
		if conflict.Involves(section) {
			conflicts = append(conflicts, conflict)
		}
	}
	return conflicts
}

func (t *Timetable) BaselineConflictsFor(section *Section) []Conflict {
	var conflicts []Conflict
	for _, conflict := range t.BaselineConflicts {
		if conflict.Involves(section) {
			conflicts = append(conflicts, conflict)
		}
	}
	return conflicts
}

// SortEntries orders entries by section, optimised entry and train.
func SortEntries(entries []ScheduleEntry) {
	slices.SortFunc(entries, func(a, b ScheduleEntry) int {
		if a.SectionID != b.SectionID {
			if a.SectionID < b.SectionID {
				return -1
			}
			return 1
		}
		if c := a.OptimizedEntry.Compare(b.OptimizedEntry); c != 0 {
			return c
		}
		if a.TrainID < b.TrainID {
			return -1
		} else if a.TrainID > b.TrainID {
			return 1
		}
		return 0
	})
}
