package scheduler

import (
	"maps"
	"slices"
	"time"

	"github.com/travigo/railcontrol/pkg/ctdf"
	"github.com/travigo/railcontrol/pkg/disruptions"
)

type slot struct {
	trainID string
	start   time.Time
	end     time.Time
}

func (s slot) overlaps(from time.Time, to time.Time) bool {
	return s.start.Before(to) && s.end.After(from)
}

// hold is a platform a train keeps standing at until it enters its next
// section.
type hold struct {
	trainID  string
	platform string
	from     time.Time
}

type placement struct {
	entries    []ctdf.ScheduleEntry
	unresolved []string
	decisions  []ctdf.Decision
	violations []ctdf.OverrideViolation
}

// planner places the trains of one component. It is not safe for concurrent
// use; every component gets its own.
type planner struct {
	sections map[string]*ctdf.Section
	effects  *disruptions.Effects
	pins     map[string][]string
	frozen   map[string][]ctdf.ScheduleEntry
	horizon  time.Duration

	sectionSlots  map[string][]slot
	platformSlots map[string][]slot

	// section -> train -> optimised entry
	placed map[string]map[string]time.Time

	result *placement
}

func newPlanner(sections map[string]*ctdf.Section, effects *disruptions.Effects, pins map[string][]string, frozen map[string][]ctdf.ScheduleEntry, horizon time.Duration) *planner {
	return &planner{
		sections:      sections,
		effects:       effects,
		pins:          pins,
		frozen:        frozen,
		horizon:       horizon,
		sectionSlots:  map[string][]slot{},
		platformSlots: map[string][]slot{},
		placed:        map[string]map[string]time.Time{},
		result:        &placement{},
	}
}

func (p *planner) place(trains []*ctdf.Train) {
	// Trains already under way hold their sections before anything is placed.
	for _, train := range trains {
		for _, entry := range p.frozen[train.PrimaryIdentifier] {
			p.occupy(entry)
		}
	}

	for _, train := range trains {
		p.placeTrain(train)
	}

	p.checkPins()
}

func (p *planner) occupy(entry ctdf.ScheduleEntry) {
	p.sectionSlots[entry.SectionID] = append(p.sectionSlots[entry.SectionID], slot{
		trainID: entry.TrainID,
		start:   entry.OptimizedEntry,
		end:     entry.OptimizedExit,
	})

	if p.placed[entry.SectionID] == nil {
		p.placed[entry.SectionID] = map[string]time.Time{}
	}
	p.placed[entry.SectionID][entry.TrainID] = entry.OptimizedEntry

	if start, end, ok := entry.PlatformWindow(); ok && end.After(start) {
		key := platformKey(entry.ArrivalStation, entry.Platform)
		p.platformSlots[key] = append(p.platformSlots[key], slot{
			trainID: entry.TrainID,
			start:   start,
			end:     end,
		})
	}
}

func (p *planner) placeTrain(train *ctdf.Train) {
	kept := p.frozen[train.PrimaryIdentifier]
	p.result.entries = append(p.result.entries, kept...)

	var previousExit time.Time
	previous := -1
	if len(kept) > 0 {
		previousExit = kept[len(kept)-1].OptimizedExit
		previous = len(p.result.entries) - 1
	}

	unresolved := false
	for i := len(kept); i < len(train.Route); i++ {
		section := p.sections[train.Route[i]]
		passage := train.Schedule[i]

		earliest := passage.Entry
		if i == len(kept) {
			earliest = earliest.Add(time.Duration(train.CurrentDelayMinutes) * time.Minute)
		}
		if i > 0 {
			if ready := previousExit.Add(train.DwellAfter(i - 1)); ready.After(earliest) {
				earliest = ready
			}
		}

		natural := earliest
		predecessor, hasPredecessor := p.pinnedPredecessor(section.PrimaryIdentifier, train.PrimaryIdentifier)
		if hasPredecessor {
			if entered := p.placed[section.PrimaryIdentifier][predecessor]; entered.After(earliest) {
				earliest = entered
			}
		}

		entry := ctdf.ScheduleEntry{
			TrainID:        train.PrimaryIdentifier,
			SectionID:      section.PrimaryIdentifier,
			Sequence:       i,
			PlannedEntry:   passage.Entry,
			PlannedExit:    passage.Exit,
			ArrivalStation: train.ArrivalStation(i),
		}

		var platform string
		var dwell time.Duration
		if number, ok := train.PlatformAt(entry.ArrivalStation); ok {
			entry.Platform = number
			entry.DwellMinutes = train.DwellMinutes
			platform = platformKey(entry.ArrivalStation, number)
			dwell = time.Duration(train.DwellMinutes) * time.Minute
		}

		var standing *hold
		if previous >= 0 && p.result.entries[previous].Platform != "" {
			last := p.result.entries[previous]
			standing = &hold{
				trainID:  train.PrimaryIdentifier,
				platform: platformKey(last.ArrivalStation, last.Platform),
				from:     last.DwellEnd(),
			}
		}

		start, traversal, blockers, ok := p.search(section, earliest, platform, dwell, standing)
		if !ok {
			entry.Unresolved = true
			unresolved = true
		}
		if hasPredecessor && earliest.After(natural) {
			blockers = append(blockers, predecessor)
		}

		entry.OptimizedEntry = start
		entry.OptimizedExit = start.Add(traversal)
		entry.DelayMinutes = ctdf.Minutes(start.Sub(passage.Entry))

		if ok && start.After(natural) && len(blockers) > 0 {
			slices.Sort(blockers)
			p.result.decisions = append(p.result.decisions, ctdf.Decision{
				TrainID:      train.PrimaryIdentifier,
				SectionID:    section.PrimaryIdentifier,
				YieldedTo:    slices.Compact(blockers),
				DelayMinutes: ctdf.Minutes(start.Sub(natural)),
			})
		}

		if previous >= 0 {
			p.release(previous, start)
		}

		p.occupy(entry)
		p.result.entries = append(p.result.entries, entry)
		previousExit = entry.OptimizedExit
		previous = len(p.result.entries) - 1
	}

	if unresolved {
		p.result.unresolved = append(p.result.unresolved, train.PrimaryIdentifier)
	}
}

// search finds the first entry time from earliest at which the section and
// the arrival platform can take the train. When there is none within the
// horizon the train is left at earliest and ok is false.
func (p *planner) search(section *ctdf.Section, earliest time.Time, platform string, dwell time.Duration, standing *hold) (time.Time, time.Duration, []string, bool) {
	blockers := map[string]bool{}
	limit := earliest.Add(p.horizon)

	for t := earliest; !t.After(limit); {
		traversal, next, ok := p.check(section, t, platform, dwell, standing, blockers)
		if ok {
			return t, traversal, slices.Collect(maps.Keys(blockers)), true
		}
		if !next.After(t) {
			break
		}
		t = next
	}

	traversal, open := p.effects.Traversal(section, earliest)
	if !open {
		traversal = section.NominalTraversal()
	}
	return earliest, traversal, slices.Collect(maps.Keys(blockers)), false
}

// check tests a single candidate entry time. When it fails, next is the
// earliest later time at which the outcome could differ, or zero if none.
func (p *planner) check(section *ctdf.Section, t time.Time, platform string, dwell time.Duration, standing *hold, blockers map[string]bool) (time.Duration, time.Time, bool) {
	sectionID := section.PrimaryIdentifier

	traversal, open := p.effects.Traversal(section, t)
	if !open {
		_, reopen := p.effects.ClosedDuring(sectionID, t, t.Add(time.Minute))
		return 0, reopen, false
	}

	exit := t.Add(traversal)
	if closed, reopen := p.effects.ClosedDuring(sectionID, t, exit); closed {
		return traversal, reopen, false
	}

	// Waiting any longer only extends the stand, so a clash here is final.
	if standing != nil && t.After(standing.from) {
		stuck := false
		for _, s := range p.platformSlots[standing.platform] {
			if s.trainID != standing.trainID && s.overlaps(standing.from, t) {
				blockers[s.trainID] = true
				stuck = true
			}
		}
		if stuck {
			return traversal, time.Time{}, false
		}
	}

	var next time.Time
	later := func(candidate time.Time) {
		if candidate.After(t) && (next.IsZero() || candidate.Before(next)) {
			next = candidate
		}
	}

	feasible := true

	slots := p.sectionSlots[sectionID]
	changes := p.effects.CapacityChanges(sectionID)
	if !p.fits(sectionID, slots, changes, t, exit) {
		feasible = false
		for _, s := range slots {
			if s.overlaps(t, exit) {
				blockers[s.trainID] = true
				later(s.end)
			}
		}
		for _, change := range changes {
			later(change)
		}
	}

	if platform != "" && dwell > 0 {
		for _, s := range p.platformSlots[platform] {
			if s.overlaps(exit, exit.Add(dwell)) {
				feasible = false
				blockers[s.trainID] = true
				later(s.end.Add(-traversal))
			}
		}
	}

	return traversal, next, feasible
}

// release records that the train standing at the platform after entry i
// leaves it at the given time, and resizes its platform slot to match.
func (p *planner) release(i int, at time.Time) {
	entry := &p.result.entries[i]
	if entry.Platform == "" {
		return
	}
	entry.PlatformRelease = at

	start, end, _ := entry.PlatformWindow()
	key := platformKey(entry.ArrivalStation, entry.Platform)
	for k, s := range p.platformSlots[key] {
		if s.trainID == entry.TrainID && s.start.Equal(start) {
			p.platformSlots[key][k].end = end
			return
		}
	}
	if end.After(start) {
		p.platformSlots[key] = append(p.platformSlots[key], slot{trainID: entry.TrainID, start: start, end: end})
	}
}

// fits reports whether one more train stays within the effective capacity
// at every instant of [from, to). Occupancy only rises at slot starts and
// capacity only drops at change points, so those are the instants checked.
func (p *planner) fits(sectionID string, slots []slot, changes []time.Time, from time.Time, to time.Time) bool {
	instants := []time.Time{from}
	for _, s := range slots {
		if s.start.After(from) && s.start.Before(to) {
			instants = append(instants, s.start)
		}
	}
	for _, change := range changes {
		if change.After(from) && change.Before(to) {
			instants = append(instants, change)
		}
	}

	for _, instant := range instants {
		occupied := 0
		for _, s := range slots {
			if !instant.Before(s.start) && instant.Before(s.end) {
				occupied++
			}
		}
		if occupied+1 > p.effects.EffectiveCapacity(sectionID, instant) {
			return false
		}
	}
	return true
}

// pinnedPredecessor is the closest train ahead of trainID in the pinned
// order for the section that has already been placed there.
func (p *planner) pinnedPredecessor(sectionID string, trainID string) (string, bool) {
	order := p.pins[sectionID]
	position := slices.Index(order, trainID)
	for k := position - 1; k >= 0; k-- {
		if _, ok := p.placed[sectionID][order[k]]; ok {
			return order[k], true
		}
	}
	return "", false
}

func (p *planner) checkPins() {
	for sectionID, order := range p.pins {
		entered := p.placed[sectionID]

		var present []string
		for _, trainID := range order {
			if _, ok := entered[trainID]; ok {
				present = append(present, trainID)
			}
		}

		for k := 0; k+1 < len(present); k++ {
			ahead, behind := present[k], present[k+1]
			if entered[ahead].After(entered[behind]) {
				p.result.violations = append(p.result.violations, ctdf.OverrideViolation{
					SectionID: sectionID,
					TrainID:   ahead,
					AheadOf:   behind,
					Reason:    "could not enter before its pinned successor",
				})
			}
		}
	}
}
