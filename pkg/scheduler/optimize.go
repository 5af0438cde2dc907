// Package scheduler turns the registered trains of a service day into a
// conflict-free timetable. Optimize is a pure function; the Coordinator owns
// the published timetable and decides when to run it.
package scheduler

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"
	"github.com/travigo/railcontrol/pkg/conflicts"
	"github.com/travigo/railcontrol/pkg/ctdf"
	"github.com/travigo/railcontrol/pkg/disruptions"
)

const defaultHorizon = 24 * time.Hour

type Input struct {
	ServiceDate string
	Now         time.Time

	Trains   []*ctdf.Train
	Sections []*ctdf.Section
	Effects  *disruptions.Effects

	// Pins maps a section to the train order a controller fixed on it.
	Pins map[string][]string

	// Previous is the timetable being replaced. Its entries that started
	// before Now are kept as they are.
	Previous *ctdf.Timetable

	Horizon        time.Duration
	MaxConcurrency int
}

// Optimize places every train greedily in priority order, delaying the
// lower-priority train at each contention.
func Optimize(input Input) (*ctdf.Timetable, error) {
	sections := map[string]*ctdf.Section{}
	for _, section := range input.Sections {
		sections[section.PrimaryIdentifier] = section
	}

	for _, train := range input.Trains {
		if len(train.Route) == 0 || len(train.Schedule) != len(train.Route) {
			return nil, fmt.Errorf("train %q has no usable schedule", train.PrimaryIdentifier)
		}
		for _, sectionID := range train.Route {
			if _, ok := sections[sectionID]; !ok {
				return nil, fmt.Errorf("train %q: %w", train.PrimaryIdentifier, &ctdf.NotFoundError{Kind: "section", ID: sectionID})
			}
		}
	}

	effects := input.Effects
	if effects == nil {
		effects = disruptions.NewEffects(input.Sections, nil, nil, false)
	}

	horizon := input.Horizon
	if horizon <= 0 {
		horizon = defaultHorizon
	}

	order := priorityOrder(input.Trains)
	order = applyPins(order, input.Pins)

	frozen := frozenEntries(input.Previous, input.Now)

	maxConcurrency := input.MaxConcurrency
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}

	p := pool.NewWithResults[*placement]().WithMaxGoroutines(maxConcurrency)
	for _, component := range partition(order) {
		p.Go(func() *placement {
			planner := newPlanner(sections, effects, input.Pins, frozen, horizon)
			planner.place(component)
			return planner.result
		})
	}

	timetable := &ctdf.Timetable{
		ServiceDate: input.ServiceDate,
		GeneratedAt: input.Now,
		Entries:     []ctdf.ScheduleEntry{},
		Unresolved:  []string{},
		Decisions:   []ctdf.Decision{},
	}

	for _, result := range p.Wait() {
		timetable.Entries = append(timetable.Entries, result.entries...)
		timetable.Unresolved = append(timetable.Unresolved, result.unresolved...)
		timetable.Decisions = append(timetable.Decisions, result.decisions...)
		timetable.Violations = append(timetable.Violations, result.violations...)
	}

	ctdf.SortEntries(timetable.Entries)
	slices.Sort(timetable.Unresolved)
	slices.SortFunc(timetable.Decisions, func(a, b ctdf.Decision) int {
		if c := strings.Compare(a.TrainID, b.TrainID); c != 0 {
			return c
		}
		return strings.Compare(a.SectionID, b.SectionID)
	})
	slices.SortFunc(timetable.Violations, func(a, b ctdf.OverrideViolation) int {
		if c := strings.Compare(a.SectionID, b.SectionID); c != 0 {
			return c
		}
		return strings.Compare(a.TrainID, b.TrainID)
	})

	timetable.Conflicts = conflicts.Detect(timetable.Entries, effects)
	timetable.BaselineConflicts = conflicts.Detect(baselineEntries(input.Trains, frozen), effects)
	timetable.Objective = objective(input.Trains, timetable)

	return timetable, nil
}

// priorityOrder sorts by weight descending, then nominal departure, then id.
func priorityOrder(trains []*ctdf.Train) []*ctdf.Train {
	order := slices.Clone(trains)
	slices.SortFunc(order, func(a, b *ctdf.Train) int {
		if a.PriorityWeight != b.PriorityWeight {
			if a.PriorityWeight > b.PriorityWeight {
				return -1
			}
			return 1
		}
		if c := a.PlannedDeparture().Compare(b.PlannedDeparture()); c != 0 {
			return c
		}
		return strings.Compare(a.PrimaryIdentifier, b.PrimaryIdentifier)
	})
	return order
}

// applyPins refills the positions the pinned trains hold in the order with
// the pinned sequence. Sections are applied in id order.
func applyPins(order []*ctdf.Train, pins map[string][]string) []*ctdf.Train {
	sectionIDs := make([]string, 0, len(pins))
	for sectionID := range pins {
		sectionIDs = append(sectionIDs, sectionID)
	}
	slices.Sort(sectionIDs)

	for _, sectionID := range sectionIDs {
		byID := map[string]*ctdf.Train{}
		var positions []int
		for i, train := range order {
			if slices.Contains(pins[sectionID], train.PrimaryIdentifier) {
				byID[train.PrimaryIdentifier] = train
				positions = append(positions, i)
			}
		}

		next := 0
		for _, trainID := range pins[sectionID] {
			train, ok := byID[trainID]
			if !ok {
				continue
			}
			order[positions[next]] = train
			next++
		}
	}
	return order
}

// frozenEntries returns, per train, the prefix of its previous entries that
// had already started at now.
func frozenEntries(previous *ctdf.Timetable, now time.Time) map[string][]ctdf.ScheduleEntry {
	frozen := map[string][]ctdf.ScheduleEntry{}
	if previous == nil || now.IsZero() {
		return frozen
	}

	byTrain := map[string][]ctdf.ScheduleEntry{}
	for _, entry := range previous.Entries {
		byTrain[entry.TrainID] = append(byTrain[entry.TrainID], entry)
	}

	for trainID, entries := range byTrain {
		slices.SortFunc(entries, func(a, b ctdf.ScheduleEntry) int {
			return a.Sequence - b.Sequence
		})
		for i, entry := range entries {
			if entry.Sequence != i || !entry.OptimizedEntry.Before(now) {
				break
			}
			entry.Frozen = true
			frozen[trainID] = append(frozen[trainID], entry)
		}
	}

	return frozen
}

// baselineEntries is the plan as registered, shifted by the reported delays.
func baselineEntries(trains []*ctdf.Train, frozen map[string][]ctdf.ScheduleEntry) []ctdf.ScheduleEntry {
	var entries []ctdf.ScheduleEntry
	for _, train := range trains {
		kept := frozen[train.PrimaryIdentifier]
		route := slices.Clone(kept)

		delay := time.Duration(train.CurrentDelayMinutes) * time.Minute
		for i := len(kept); i < len(train.Route); i++ {
			passage := train.Schedule[i]
			entry := ctdf.ScheduleEntry{
				TrainID:        train.PrimaryIdentifier,
				SectionID:      passage.SectionID,
				Sequence:       i,
				PlannedEntry:   passage.Entry,
				PlannedExit:    passage.Exit,
				OptimizedEntry: passage.Entry.Add(delay),
				OptimizedExit:  passage.Exit.Add(delay),
				DelayMinutes:   train.CurrentDelayMinutes,
				ArrivalStation: train.ArrivalStation(i),
			}
			if platform, ok := train.PlatformAt(entry.ArrivalStation); ok {
				entry.Platform = platform
				entry.DwellMinutes = train.DwellMinutes
			}
			route = append(route, entry)
		}

		for i := 0; i+1 < len(route); i++ {
			if route[i].Platform != "" {
				route[i].PlatformRelease = route[i+1].OptimizedEntry
			}
		}
		entries = append(entries, route...)
	}
	return entries
}

// objective is the priority-weighted sum of arrival delays. Early arrivals
// count as zero.
func objective(trains []*ctdf.Train, timetable *ctdf.Timetable) float64 {
	delays := timetable.TrainDelays()

	total := 0.0
	for _, train := range trains {
		if delay := delays[train.PrimaryIdentifier]; delay > 0 {
			total += train.PriorityWeight * float64(delay)
		}
	}
	return total
}
