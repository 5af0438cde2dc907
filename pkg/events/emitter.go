package events

import (
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/travigo/railcontrol/pkg/ctdf"
	"github.com/travigo/railcontrol/pkg/disruptions"
	"github.com/travigo/railcontrol/pkg/util"
)

type Publisher interface {
	Publish(events ...*ctdf.Event)
}

// Emitter turns timetable publishes and disruption transitions into events.
// It never blocks the caller on delivery; that is the publisher's job.
type Emitter struct {
	publisher Publisher

	mutex  sync.Mutex
	latest map[string]uint64
}

func NewEmitter(publisher Publisher) *Emitter {
	return &Emitter{
		publisher: publisher,
		latest:    map[string]uint64{},
	}
}

// TimetablePublished emits the difference between two consecutive versions
// of a service day. A version older than one already seen is ignored.
func (e *Emitter) TimetablePublished(previous *ctdf.Timetable, next *ctdf.Timetable) []*ctdf.Event {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if next.Version <= e.latest[next.ServiceDate] {
		log.Debug().
			Str("date", next.ServiceDate).
			Uint64("version", next.Version).
			Uint64("latest", e.latest[next.ServiceDate]).
			Msg("Ignoring stale timetable version")
		return nil
	}
	e.latest[next.ServiceDate] = next.Version

	events := Diff(previous, next)
	if len(events) > 0 {
		e.publisher.Publish(events...)
	}
	return events
}

func (e *Emitter) DisruptionChanged(transition disruptions.Transition) []*ctdf.Event {
	current := transition.Current
	if current.Status == ctdf.DisruptionStatusSimulated {
		return nil
	}

	var eventType ctdf.EventType
	switch {
	case transition.Created():
		eventType = ctdf.EventTypeDisruptionCreated
	case current.IsResolved() && !transition.Previous.IsResolved():
		eventType = ctdf.EventTypeDisruptionResolved
	default:
		return nil
	}

	event := &ctdf.Event{
		ID:           eventID(eventType, "disruption/"+current.PrimaryIdentifier, 0),
		Type:         eventType,
		Timestamp:    current.ModificationDateTime,
		DisruptionID: current.PrimaryIdentifier,
		Sections:     slices.Clone(current.Sections),
		Body:         ctdf.DisruptionBody{Disruption: *current},
	}
	if len(current.Sections) > 0 {
		event.SectionID = current.Sections[0]
	}

	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.publisher.Publish(event)
	return []*ctdf.Event{event}
}

// Diff classifies what changed between two versions of a timetable. previous
// may be nil for the first version.
func Diff(previous *ctdf.Timetable, next *ctdf.Timetable) []*ctdf.Event {
	if previous == nil {
		previous = &ctdf.Timetable{}
	}

	var events []*ctdf.Event

	previousTrains := entriesByTrain(previous.Entries)
	nextTrains := entriesByTrain(next.Entries)

	trainIDs := make([]string, 0, len(nextTrains))
	for trainID := range nextTrains {
		trainIDs = append(trainIDs, trainID)
	}
	slices.Sort(trainIDs)

	for _, trainID := range trainIDs {
		first := nextTrains[trainID][0]
		if first.Sequence != 0 || !first.Frozen {
			continue
		}
		if before, ok := previousTrains[trainID]; ok && before[0].Sequence == 0 && before[0].Frozen {
			continue
		}

		event := newTimetableEvent(ctdf.EventTypeTrainDeparted, "train/"+trainID, next)
		event.TrainID = trainID
		event.SectionID = first.SectionID
		event.Sections = []string{first.SectionID}
		event.Body = ctdf.TrainDepartedBody{Entry: first}
		events = append(events, event)
	}

	previousDelays := previous.TrainDelays()
	nextDelays := next.TrainDelays()
	for _, trainID := range trainIDs {
		delay := nextDelays[trainID]
		before, known := previousDelays[trainID]
		if (known && before == delay) || (!known && delay == 0) {
			continue
		}

		entries := nextTrains[trainID]
		event := newTimetableEvent(ctdf.EventTypeDelayChanged, "train/"+trainID, next)
		event.TrainID = trainID
		event.Sections = sectionsOf(entries)
		event.Body = ctdf.DelayChangedBody{
			PreviousDelayMinutes: before,
			DelayMinutes:         delay,
			Destination:          entries[len(entries)-1].ArrivalStation,
		}
		events = append(events, event)
	}

	previousConflicts := conflictKeys(previous.Conflicts)
	nextConflicts := conflictKeys(next.Conflicts)

	for _, conflict := range next.Conflicts {
		if _, ok := previousConflicts[conflict.Key()]; !ok {
			events = append(events, conflictEvent(ctdf.EventTypeConflictDetected, conflict, next, next.Entries))
		}
	}
	for _, conflict := range previous.Conflicts {
		if _, ok := nextConflicts[conflict.Key()]; !ok {
			events = append(events, conflictEvent(ctdf.EventTypeConflictResolved, conflict, next, previous.Entries))
		}
	}

	return events
}

func newTimetableEvent(eventType ctdf.EventType, entity string, timetable *ctdf.Timetable) *ctdf.Event {
	return &ctdf.Event{
		ID:               eventID(eventType, entity, timetable.Version),
		Type:             eventType,
		Timestamp:        timetable.GeneratedAt,
		ServiceDate:      timetable.ServiceDate,
		TimetableVersion: timetable.Version,
	}
}

func conflictEvent(eventType ctdf.EventType, conflict ctdf.Conflict, timetable *ctdf.Timetable, entries []ctdf.ScheduleEntry) *ctdf.Event {
	event := newTimetableEvent(eventType, "conflict/"+conflict.Key(), timetable)
	event.Body = ctdf.ConflictBody{Conflict: conflict}

	if conflict.Resource == ctdf.ResourceTypeSection {
		event.SectionID = conflict.SectionID
		event.Sections = []string{conflict.SectionID}
		return event
	}

	// a platform conflict concerns the sections its trains arrive on
	var sections []string
	for _, entry := range entries {
		if entry.ArrivalStation == conflict.StationID && entry.Platform == conflict.Platform && slices.Contains(conflict.TrainIDs, entry.TrainID) {
			sections = append(sections, entry.SectionID)
		}
	}
	event.Sections = util.RemoveDuplicateStrings(sections, nil)
	slices.Sort(event.Sections)
	return event
}

// eventID is stable for the same change so redelivered events can be
// deduplicated downstream.
func eventID(eventType ctdf.EventType, entity string, version uint64) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("railcontrol/%s/%s/%d", eventType, entity, version))).String()
}

func entriesByTrain(entries []ctdf.ScheduleEntry) map[string][]ctdf.ScheduleEntry {
	byTrain := map[string][]ctdf.ScheduleEntry{}
	for _, entry := range entries {
		byTrain[entry.TrainID] = append(byTrain[entry.TrainID], entry)
	}
	for _, trainEntries := range byTrain {
		slices.SortFunc(trainEntries, func(a, b ctdf.ScheduleEntry) int {
			return a.Sequence - b.Sequence
		})
	}
	return byTrain
}

func sectionsOf(entries []ctdf.ScheduleEntry) []string {
	sections := make([]string, 0, len(entries))
	for _, entry := range entries {
		sections = append(sections, entry.SectionID)
	}
	return sections
}

func conflictKeys(conflicts []ctdf.Conflict) map[string]struct{} {
	keys := make(map[string]struct{}, len(conflicts))
	for _, conflict := range conflicts {
		keys[conflict.Key()] = struct{}{}
	}
	return keys
}
