package disruptions

import (
	"slices"
	"time"

	"github.com/travigo/railcontrol/pkg/ctdf"
)

// Window is the span during which one disruption acts on a section.
type Window struct {
	DisruptionID string
	Start        time.Time
	End          time.Time // zero when open-ended
	Effect       ctdf.SeverityEffect
}

func (w Window) activeAt(t time.Time) bool {
	return !t.Before(w.Start) && (w.End.IsZero() || t.Before(w.End))
}

func (w Window) overlaps(from time.Time, to time.Time) bool {
	return to.After(w.Start) && (w.End.IsZero() || from.Before(w.End))
}

// Effects is an immutable view of how disruptions change section capacity
// and speed over time.
type Effects struct {
	capacities map[string]int
	windows    map[string][]Window
}

// NewEffects builds the effects of the given disruptions on top of the base
// section capacities. Disruptions that do not apply are ignored.
func NewEffects(sections []*ctdf.Section, rules map[ctdf.Severity]ctdf.SeverityEffect, disruptions []*ctdf.Disruption, simulation bool) *Effects {
	effects := &Effects{
		capacities: map[string]int{},
		windows:    map[string][]Window{},
	}

	for _, section := range sections {
		effects.capacities[section.PrimaryIdentifier] = section.Capacity
	}

	for _, disruption := range disruptions {
		if !disruption.AppliesTo(simulation) {
			continue
		}

		effect, ok := rules[disruption.Severity]
		if !ok {
			continue
		}

		for _, sectionID := range disruption.Sections {
			effects.windows[sectionID] = append(effects.windows[sectionID], Window{
				DisruptionID: disruption.PrimaryIdentifier,
				Start:        disruption.StartTime,
				End:          disruption.End(),
				Effect:       effect,
			})
		}
	}

	for sectionID := range effects.windows {
		slices.SortFunc(effects.windows[sectionID], func(a, b Window) int {
			return a.Start.Compare(b.Start)
		})
	}

	return effects
}

func (e *Effects) Windows(sectionID string) []Window {
	return e.windows[sectionID]
}

// SpeedMultiplier is the smallest multiplier in force on the section at t, 1
// when undisrupted.
func (e *Effects) SpeedMultiplier(sectionID string, t time.Time) float64 {
	multiplier := 1.0
	for _, window := range e.windows[sectionID] {
		if window.activeAt(t) && window.Effect.SpeedMultiplier < multiplier {
			multiplier = window.Effect.SpeedMultiplier
		}
	}
	return multiplier
}

// EffectiveCapacity is the section capacity at t after caps and closures.
func (e *Effects) EffectiveCapacity(sectionID string, t time.Time) int {
	capacity := e.capacities[sectionID]
	for _, window := range e.windows[sectionID] {
		if !window.activeAt(t) {
			continue
		}
		if window.Effect.Closes() {
			return 0
		}
		if window.Effect.CapacityCap > 0 && window.Effect.CapacityCap < capacity {
			capacity = window.Effect.CapacityCap
		}
	}
	return capacity
}

// MinCapacity is the lowest effective capacity anywhere in [from, to).
func (e *Effects) MinCapacity(sectionID string, from time.Time, to time.Time) int {
	capacity := e.EffectiveCapacity(sectionID, from)
	for _, window := range e.windows[sectionID] {
		if window.Start.After(from) && window.Start.Before(to) {
			capacity = min(capacity, e.EffectiveCapacity(sectionID, window.Start))
		}
	}
	return capacity
}

// CapacityChanges lists every instant the section's effective capacity may
// change, in order.
func (e *Effects) CapacityChanges(sectionID string) []time.Time {
	var changes []time.Time
	for _, window := range e.windows[sectionID] {
		changes = append(changes, window.Start)
		if !window.End.IsZero() {
			changes = append(changes, window.End)
		}
	}
	slices.SortFunc(changes, func(a, b time.Time) int {
		return a.Compare(b)
	})
	return slices.CompactFunc(changes, func(a, b time.Time) bool {
		return a.Equal(b)
	})
}

// Traversal is the time to cover the section from entry, with the speed
// multiplier changing wherever a restriction starts or ends along the way.
// It is rounded up to whole minutes. ok is false when the section is closed
// at entry. Closures later in the run do not slow the train; ClosedDuring
// reports them.
func (e *Effects) Traversal(section *ctdf.Section, entry time.Time) (time.Duration, bool) {
	sectionID := section.PrimaryIdentifier
	if e.SpeedMultiplier(sectionID, entry) <= 0 {
		return 0, false
	}

	nominal := section.NominalTraversal()
	if !e.Disrupted(sectionID) {
		return nominal, true
	}

	// remaining is measured in minutes at line speed
	remaining := nominal.Minutes()
	elapsed := 0.0
	t := entry
	for {
		multiplier := e.restrictionAt(sectionID, t)
		next := e.nextChange(sectionID, t)
		if next.IsZero() || next.Sub(t).Minutes()*multiplier >= remaining {
			elapsed += remaining / multiplier
			break
		}
		span := next.Sub(t).Minutes()
		remaining -= span * multiplier
		elapsed += span
		t = next
	}

	return ctdf.CeilMinutes(elapsed), true
}

// restrictionAt is the smallest non-closing speed multiplier in force at t.
func (e *Effects) restrictionAt(sectionID string, t time.Time) float64 {
	multiplier := 1.0
	for _, window := range e.windows[sectionID] {
		if window.Effect.Closes() || !window.activeAt(t) {
			continue
		}
		multiplier = min(multiplier, window.Effect.SpeedMultiplier)
	}
	return multiplier
}

// nextChange is the first window start or end after t, zero if there is none.
func (e *Effects) nextChange(sectionID string, t time.Time) time.Time {
	var next time.Time
	for _, change := range e.CapacityChanges(sectionID) {
		if change.After(t) {
			next = change
			break
		}
	}
	return next
}

// ClosedDuring reports whether any closure overlaps [from, to) and, if so,
// when the latest overlapping closure ends. A zero reopen time means the
// closure is open-ended.
func (e *Effects) ClosedDuring(sectionID string, from time.Time, to time.Time) (bool, time.Time) {
	closed := false
	var reopen time.Time
	for _, window := range e.windows[sectionID] {
		if !window.Effect.Closes() || !window.overlaps(from, to) {
			continue
		}
		if window.End.IsZero() {
			return true, time.Time{}
		}
		if !closed || window.End.After(reopen) {
			reopen = window.End
		}
		closed = true
	}
	return closed, reopen
}

func (e *Effects) Disrupted(sectionID string) bool {
	return len(e.windows[sectionID]) > 0
}
