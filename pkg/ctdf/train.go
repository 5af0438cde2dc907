package ctdf

import (
	"maps"
	"slices"
	"time"
)

type TrainType string

const (
	TrainTypeExpress   TrainType = "EXPRESS"
	TrainTypePassenger TrainType = "PASSENGER"
	TrainTypeFreight   TrainType = "FREIGHT"
)

func (t TrainType) IsValid() bool {
	switch t {
	case TrainTypeExpress, TrainTypePassenger, TrainTypeFreight:
		return true
	}
	return false
}

// PlannedPassage is the nominal entry/exit of a train on one section of its route.
type PlannedPassage struct {
	SectionID string    `json:"section_id" groups:"basic"`
	Entry     time.Time `json:"entry" groups:"basic"`
	Exit      time.Time `json:"exit" groups:"basic"`
}

type Train struct {
	PrimaryIdentifier string `json:"id" groups:"basic"`
	ServiceDate       string `json:"service_date" groups:"basic"`

	Type           TrainType `json:"type" groups:"basic"`
	PriorityWeight float64   `json:"priority" groups:"basic"`

	Origin      string `json:"origin" groups:"basic"`
	Destination string `json:"destination" groups:"basic"`

	// Route is the ordered list of section ids and Stations the stations it
	// passes through, so len(Stations) == len(Route)+1.
	Route    []string         `json:"route" groups:"detailed"`
	Stations []string         `json:"stations" groups:"detailed"`
	Schedule []PlannedPassage `json:"schedule" groups:"detailed"`

	PlatformNeed bool              `json:"platform_need" groups:"basic"`
	Platforms    map[string]string `json:"platforms,omitempty" groups:"detailed"`
	DwellMinutes int               `json:"dwell_minutes" groups:"detailed"`

	CurrentDelayMinutes int       `json:"current_delay_minutes" groups:"basic"`
	DelayReportedAt     time.Time `json:"delay_reported_at,omitzero" groups:"detailed"`

	CreationDateTime time.Time `json:"created_at" groups:"detailed"`
}

func (t *Train) PlannedDeparture() time.Time {
	if len(t.Schedule) == 0 {
		return time.Time{}
	}
	return t.Schedule[0].Entry
}

func (t *Train) PlannedArrival() time.Time {
	if len(t.Schedule) == 0 {
		return time.Time{}
	}
	return t.Schedule[len(t.Schedule)-1].Exit
}

// RouteIndex returns the position of sectionID in the route or -1.
func (t *Train) RouteIndex(sectionID string) int {
	return slices.Index(t.Route, sectionID)
}

// ArrivalStation is the station reached at the end of the route section at index i.
func (t *Train) ArrivalStation(i int) string {
	if i+1 >= len(t.Stations) {
		return ""
	}
	return t.Stations[i+1]
}

// PlatformAt returns the platform the train occupies at stationID, if it needs one there.
func (t *Train) PlatformAt(stationID string) (string, bool) {
	if !t.PlatformNeed || t.Platforms == nil {
		return "", false
	}
	platform, ok := t.Platforms[stationID]
	return platform, ok && platform != ""
}

// DwellAfter is the planned stop after the route section at index i: the
// dwell when the train needs a platform at an intermediate station, else zero.
func (t *Train) DwellAfter(i int) time.Duration {
	if i+1 >= len(t.Route) {
		return 0
	}
	if _, ok := t.PlatformAt(t.ArrivalStation(i)); !ok {
		return 0
	}
	return time.Duration(t.DwellMinutes) * time.Minute
}

// Clone returns a copy that shares nothing mutable with t.
func (t *Train) Clone() *Train {
	clone := *t
	clone.Route = slices.Clone(t.Route)
	clone.Stations = slices.Clone(t.Stations)
	clone.Schedule = slices.Clone(t.Schedule)
	clone.Platforms = maps.Clone(t.Platforms)
	return &clone
}
