// Package conflicts finds schedule entries that claim a section or platform
// beyond its effective capacity. Detection is a pure function of the entries
// and the capacity model.
package conflicts

import (
	"container/heap"
	"slices"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"
	"github.com/travigo/railcontrol/pkg/ctdf"
)

// CapacityModel gives the effective capacity of a section over time.
type CapacityModel interface {
	EffectiveCapacity(sectionID string, t time.Time) int
	CapacityChanges(sectionID string) []time.Time
}

// SectionCapacities is the nominal capacity of each section with nothing
// disrupted. Unknown sections have a capacity of one.
type SectionCapacities map[string]int

func NewSectionCapacities(sections []*ctdf.Section) SectionCapacities {
	capacities := SectionCapacities{}
	for _, section := range sections {
		capacities[section.PrimaryIdentifier] = section.Capacity
	}
	return capacities
}

func (c SectionCapacities) EffectiveCapacity(sectionID string, _ time.Time) int {
	if capacity, ok := c[sectionID]; ok && capacity > 0 {
		return capacity
	}
	return 1
}

func (c SectionCapacities) CapacityChanges(string) []time.Time {
	return nil
}

const platformCapacity = 1

const maxConcurrentSweeps = 8

type occupancy struct {
	trainID string
	start   time.Time
	end     time.Time
}

type resource struct {
	kind      ctdf.ResourceType
	sectionID string
	stationID string
	platform  string

	occupancies []occupancy
}

// FindConflicts reports the conflicts remaining in a timetable.
func FindConflicts(tt *ctdf.Timetable, capacity CapacityModel) []ctdf.Conflict {
	return Detect(tt.Entries, capacity)
}

// Detect sweeps every section and required platform claimed by the entries.
// The result is sorted by resource then start time. capacity must not be nil.
func Detect(entries []ctdf.ScheduleEntry, capacity CapacityModel) []ctdf.Conflict {
	if capacity == nil {
		panic("conflicts: nil CapacityModel")
	}

	resources := groupResources(entries)

	p := pool.NewWithResults[[]ctdf.Conflict]().WithMaxGoroutines(maxConcurrentSweeps)
	for _, r := range resources {
		p.Go(func() []ctdf.Conflict {
			return r.sweep(capacity)
		})
	}

	var conflicts []ctdf.Conflict
	for _, found := range p.Wait() {
		conflicts = append(conflicts, found...)
	}

	SortConflicts(conflicts)

	return conflicts
}

func SortConflicts(conflicts []ctdf.Conflict) {
	slices.SortFunc(conflicts, func(a, b ctdf.Conflict) int {
		if c := strings.Compare(string(a.Resource), string(b.Resource)); c != 0 {
			return -c
		}
		if c := strings.Compare(a.ResourceID(), b.ResourceID()); c != 0 {
			return c
		}
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return strings.Compare(strings.Join(a.TrainIDs, ","), strings.Join(b.TrainIDs, ","))
	})
}

func groupResources(entries []ctdf.ScheduleEntry) []*resource {
	sections := map[string]*resource{}
	platforms := map[string]*resource{}

	for _, entry := range entries {
		if entry.OptimizedExit.After(entry.OptimizedEntry) {
			r, ok := sections[entry.SectionID]
			if !ok {
				r = &resource{kind: ctdf.ResourceTypeSection, sectionID: entry.SectionID}
				sections[entry.SectionID] = r
			}
			r.occupancies = append(r.occupancies, occupancy{trainID: entry.TrainID, start: entry.OptimizedEntry, end: entry.OptimizedExit})
		}

		if start, end, ok := entry.PlatformWindow(); ok && end.After(start) {
			key := entry.ArrivalStation + "\x00" + entry.Platform
			r, ok := platforms[key]
			if !ok {
				r = &resource{kind: ctdf.ResourceTypePlatform, stationID: entry.ArrivalStation, platform: entry.Platform}
				platforms[key] = r
			}
			r.occupancies = append(r.occupancies, occupancy{trainID: entry.TrainID, start: start, end: end})
		}
	}

	var resources []*resource
	for _, r := range sections {
		resources = append(resources, r)
	}
	for _, r := range platforms {
		resources = append(resources, r)
	}

	return resources
}

func (r *resource) capacityAt(capacity CapacityModel, t time.Time) int {
	if r.kind == ctdf.ResourceTypePlatform {
		return platformCapacity
	}
	return capacity.EffectiveCapacity(r.sectionID, t)
}

// endHeap is a min-heap of active occupancies keyed by their end.
type endHeap []occupancy

func (h endHeap) Len() int           { return len(h) }
func (h endHeap) Less(i, j int) bool { return h[i].end.Before(h[j].end) }
func (h endHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *endHeap) Push(x any)        { *h = append(*h, x.(occupancy)) }
func (h *endHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// sweep walks every instant where occupancy or capacity changes. Each
// contiguous run of instants where more trains are active than the capacity
// allows becomes one conflict naming every train active during it.
func (r *resource) sweep(capacity CapacityModel) []ctdf.Conflict {
	slices.SortFunc(r.occupancies, func(a, b occupancy) int {
		if c := a.start.Compare(b.start); c != 0 {
			return c
		}
		return strings.Compare(a.trainID, b.trainID)
	})

	var instants []time.Time
	for _, o := range r.occupancies {
		instants = append(instants, o.start, o.end)
	}
	if r.kind == ctdf.ResourceTypeSection {
		instants = append(instants, capacity.CapacityChanges(r.sectionID)...)
	}
	slices.SortFunc(instants, func(a, b time.Time) int { return a.Compare(b) })
	instants = slices.CompactFunc(instants, func(a, b time.Time) bool { return a.Equal(b) })

	var conflicts []ctdf.Conflict
	var current *ctdf.Conflict
	var currentTrains map[string]bool

	active := &endHeap{}
	next := 0

	closeEpisode := func(end time.Time) {
		current.End = end
		for trainID := range currentTrains {
			current.TrainIDs = append(current.TrainIDs, trainID)
		}
		slices.Sort(current.TrainIDs)
		conflicts = append(conflicts, *current)
		current = nil
		currentTrains = nil
	}

	for _, instant := range instants {
		for active.Len() > 0 && !(*active)[0].end.After(instant) {
			heap.Pop(active)
		}
		for next < len(r.occupancies) && !r.occupancies[next].start.After(instant) {
			heap.Push(active, r.occupancies[next])
			next++
		}

		limit := r.capacityAt(capacity, instant)
		if active.Len() > 0 && active.Len() > limit {
			if current == nil {
				current = &ctdf.Conflict{
					Resource:  r.kind,
					SectionID: r.sectionID,
					StationID: r.stationID,
					Platform:  r.platform,
					Start:     instant,
					Capacity:  limit,
				}
				currentTrains = map[string]bool{}
			}
			current.Capacity = min(current.Capacity, limit)
			current.PeakOccupancy = max(current.PeakOccupancy, active.Len())
			for _, o := range *active {
				currentTrains[o.trainID] = true
			}
		} else if current != nil {
			closeEpisode(instant)
		}
	}

	if current != nil {
		closeEpisode(instants[len(instants)-1])
	}

	return conflicts
}
