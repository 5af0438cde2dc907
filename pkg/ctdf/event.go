package ctdf

import (
	"slices"
	"time"
)

type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	ServiceDate      string `json:"service_date,omitempty"`
	SectionID        string `json:"section_id,omitempty"`
	TrainID          string `json:"train_id,omitempty"`
	DisruptionID     string `json:"disruption_id,omitempty"`
	TimetableVersion uint64 `json:"timetable_version,omitempty"`

	// Sections lists every section the event concerns, for subscription filters.
	Sections []string `json:"sections,omitempty"`

	Body interface{} `json:"body"`
}

type EventType string

const (
	EventTypeTrainDeparted      EventType = "train_departed"
	EventTypeDelayChanged       EventType = "delay_changed"
	EventTypeConflictDetected   EventType = "conflict_detected"
	EventTypeConflictResolved   EventType = "conflict_resolved"
	EventTypeDisruptionCreated  EventType = "disruption_created"
	EventTypeDisruptionResolved EventType = "disruption_resolved"
)

// EntityKey is the train, section or disruption the event is about. Events for
// the same entity are delivered in emission order.
func (e *Event) EntityKey() string {
	switch {
	case e.TrainID != "":
		return "train/" + e.TrainID
	case e.DisruptionID != "":
		return "disruption/" + e.DisruptionID
	default:
		return "section/" + e.SectionID
	}
}

func (e *Event) Concerns(sectionID string) bool {
	return slices.Contains(e.Sections, sectionID)
}

type TrainDepartedBody struct {
	Entry ScheduleEntry `json:"entry"`
}

type DelayChangedBody struct {
	PreviousDelayMinutes int    `json:"previous_delay_minutes"`
	DelayMinutes         int    `json:"delay_minutes"`
	Destination          string `json:"destination"`
}

type ConflictBody struct {
	Conflict Conflict `json:"conflict"`
}

type DisruptionBody struct {
	Disruption Disruption `json:"disruption"`
}
