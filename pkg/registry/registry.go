// Package registry keeps the trains registered for one service day. Routes
// are immutable once registered; only the reported delay changes afterwards.
package registry

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"github.com/rs/zerolog/log"
	"github.com/travigo/railcontrol/pkg/config"
	"github.com/travigo/railcontrol/pkg/ctdf"
	"github.com/travigo/railcontrol/pkg/track"
	"github.com/travigo/railcontrol/pkg/util"
)

type TrainSpec struct {
	ID          string         `json:"id"`
	ServiceDate string         `json:"service_date"`
	Type        ctdf.TrainType `json:"type"`

	// PriorityWeight overrides the weight configured for the train type when positive.
	PriorityWeight float64 `json:"priority"`

	Origin      string   `json:"origin"`
	Destination string   `json:"destination"`
	Route       []string `json:"route"`

	// Departure is used to derive the planned schedule when Schedule is empty.
	Departure time.Time             `json:"departure"`
	Schedule  []ctdf.PlannedPassage `json:"schedule"`

	PlatformNeed bool              `json:"platform_need"`
	Platforms    map[string]string `json:"platforms"`
	DwellMinutes *int              `json:"dwell_minutes"`
}

// ChangeListener is told which sections lost their optimised schedule.
type ChangeListener func(trainID string, sections []string, reason string)

type Registry struct {
	serviceDate string

	track  *track.Model
	config *config.Config

	mutex  sync.RWMutex
	trains map[string]*ctdf.Train

	listenersMutex sync.Mutex
	listeners      []ChangeListener
}

func New(serviceDate string, model *track.Model, cfg *config.Config) *Registry {
	return &Registry{
		serviceDate: serviceDate,
		track:       model,
		config:      cfg,
		trains:      map[string]*ctdf.Train{},
	}
}

func (r *Registry) ServiceDate() string {
	return r.serviceDate
}

func (r *Registry) OnChange(listener ChangeListener) {
	r.listenersMutex.Lock()
	defer r.listenersMutex.Unlock()

	r.listeners = append(r.listeners, listener)
}

func (r *Registry) notify(trainID string, sections []string, reason string) {
	r.listenersMutex.Lock()
	listeners := slices.Clone(r.listeners)
	r.listenersMutex.Unlock()

	for _, listener := range listeners {
		listener(trainID, sections, reason)
	}
}

// RegisterTrain validates the spec, derives the planned schedule and stores
// the train. It returns the train id.
func (r *Registry) RegisterTrain(spec TrainSpec) (string, error) {
	train := &ctdf.Train{}
	if err := copier.Copy(train, &spec); err != nil {
		return "", err
	}

	train.PrimaryIdentifier = spec.ID
	if train.PrimaryIdentifier == "" {
		train.PrimaryIdentifier = uuid.NewString()
	}

	if spec.ServiceDate == "" {
		train.ServiceDate = r.serviceDate
	} else if spec.ServiceDate != r.serviceDate {
		return "", &ctdf.ValidationError{Field: "service_date", Reason: fmt.Sprintf("%s does not match registry day %s", spec.ServiceDate, r.serviceDate)}
	}

	if !spec.Type.IsValid() {
		return "", &ctdf.ValidationError{Field: "type", Reason: fmt.Sprintf("unknown train type %q", spec.Type)}
	}

	train.PriorityWeight = r.config.PriorityWeight(spec.Type)
	if spec.PriorityWeight > 0 {
		train.PriorityWeight = spec.PriorityWeight
	}

	train.DwellMinutes = r.config.DefaultDwellMinutes
	if spec.DwellMinutes != nil {
		if *spec.DwellMinutes < 0 {
			return "", &ctdf.ValidationError{Field: "dwell_minutes", Reason: "must not be negative"}
		}
		train.DwellMinutes = *spec.DwellMinutes
	}

	stations, err := r.resolveRoute(train.PrimaryIdentifier, spec)
	if err != nil {
		return "", err
	}
	train.Route = slices.Clone(spec.Route)
	train.Stations = stations
	train.Origin = stations[0]
	train.Destination = stations[len(stations)-1]

	train.Platforms = map[string]string{}
	for stationID, platform := range spec.Platforms {
		if !slices.Contains(stations[1:], stationID) {
			return "", &ctdf.ValidationError{Field: "platforms", Reason: fmt.Sprintf("station %q is not an arrival station of the route", stationID)}
		}
		station, err := r.track.GetStation(stationID)
		if err != nil {
			return "", err
		}
		if len(station.Platforms) > 0 && !station.HasPlatform(platform) {
			return "", &ctdf.ValidationError{Field: "platforms", Reason: fmt.Sprintf("station %q has no platform %q", stationID, platform)}
		}
		train.Platforms[stationID] = platform
	}

	if len(spec.Schedule) > 0 {
		train.Schedule, err = r.validateSchedule(train, spec.Schedule)
	} else {
		train.Schedule, err = r.deriveSchedule(train, spec.Departure)
	}
	if err != nil {
		return "", err
	}

	train.CurrentDelayMinutes = 0
	train.CreationDateTime = time.Now()

	r.mutex.Lock()
	if _, exists := r.trains[train.PrimaryIdentifier]; exists {
		r.mutex.Unlock()
		return "", &ctdf.ValidationError{Field: "id", Reason: fmt.Sprintf("train %q already registered", train.PrimaryIdentifier)}
	}
	r.trains[train.PrimaryIdentifier] = train
	r.mutex.Unlock()

	log.Debug().
		Str("train", train.PrimaryIdentifier).
		Str("date", r.serviceDate).
		Strs("route", train.Route).
		Msg("Registered train")

	r.notify(train.PrimaryIdentifier, slices.Clone(train.Route), "train registered")

	return train.PrimaryIdentifier, nil
}

// resolveRoute checks the route is a contiguous chain of known sections and
// returns the stations it passes through, origin first.
func (r *Registry) resolveRoute(trainID string, spec TrainSpec) ([]string, error) {
	if len(spec.Route) == 0 {
		return nil, &ctdf.InvalidRouteError{TrainID: trainID, Reason: "route is empty"}
	}

	sections := make([]*ctdf.Section, len(spec.Route))
	for i, sectionID := range spec.Route {
		section, err := r.track.GetSection(sectionID)
		if err != nil {
			return nil, err
		}
		if slices.Contains(spec.Route[:i], sectionID) {
			return nil, &ctdf.InvalidRouteError{TrainID: trainID, Reason: fmt.Sprintf("section %q appears more than once", sectionID)}
		}
		sections[i] = section
	}

	for i := 1; i < len(spec.Route); i++ {
		if _, ok := r.track.SharedStation(spec.Route[i-1], spec.Route[i]); !ok {
			return nil, &ctdf.InvalidRouteError{TrainID: trainID, From: spec.Route[i-1], To: spec.Route[i], Reason: "do not share a station"}
		}
	}

	var candidates []string
	if spec.Origin != "" {
		candidates = []string{spec.Origin}
	} else {
		candidates = []string{sections[0].FromStation, sections[0].ToStation}
	}

	for _, origin := range candidates {
		stations, ok := walkRoute(origin, sections)
		if !ok {
			continue
		}
		if spec.Destination != "" && stations[len(stations)-1] != spec.Destination {
			continue
		}
		return stations, nil
	}

	if spec.Origin != "" || spec.Destination != "" {
		return nil, &ctdf.InvalidRouteError{TrainID: trainID, Reason: fmt.Sprintf("route does not run from %q to %q", spec.Origin, spec.Destination)}
	}
	return nil, &ctdf.InvalidRouteError{TrainID: trainID, Reason: "sections do not form a chain"}
}

func walkRoute(origin string, sections []*ctdf.Section) ([]string, bool) {
	stations := []string{origin}
	current := origin

	for _, section := range sections {
		next, ok := section.OtherEnd(current)
		if !ok {
			return nil, false
		}
		stations = append(stations, next)
		current = next
	}

	return stations, true
}

func (r *Registry) deriveSchedule(train *ctdf.Train, departure time.Time) ([]ctdf.PlannedPassage, error) {
	if departure.IsZero() {
		return nil, &ctdf.ValidationError{Field: "departure", Reason: "either a departure or a schedule is required"}
	}

	schedule := make([]ctdf.PlannedPassage, len(train.Route))
	entry := departure.Truncate(time.Minute)

	for i, sectionID := range train.Route {
		traversal, err := r.track.TravelTime(sectionID)
		if err != nil {
			return nil, err
		}

		exit := entry.Add(traversal)
		schedule[i] = ctdf.PlannedPassage{SectionID: sectionID, Entry: entry, Exit: exit}
		entry = exit.Add(train.DwellAfter(i))
	}

	return schedule, nil
}

func (r *Registry) validateSchedule(train *ctdf.Train, passages []ctdf.PlannedPassage) ([]ctdf.PlannedPassage, error) {
	if len(passages) != len(train.Route) {
		return nil, &ctdf.ValidationError{Field: "schedule", Reason: fmt.Sprintf("expected %d passages, got %d", len(train.Route), len(passages))}
	}

	schedule := make([]ctdf.PlannedPassage, len(passages))
	for i, passage := range passages {
		if passage.SectionID != "" && passage.SectionID != train.Route[i] {
			return nil, &ctdf.ValidationError{Field: "schedule", Reason: fmt.Sprintf("passage %d is for section %q, route has %q", i, passage.SectionID, train.Route[i])}
		}
		if passage.Entry.IsZero() || passage.Exit.IsZero() {
			return nil, &ctdf.ValidationError{Field: "schedule", Reason: fmt.Sprintf("passage %d is missing times", i)}
		}
		if passage.Exit.Before(passage.Entry) {
			return nil, &ctdf.ValidationError{Field: "schedule", Reason: fmt.Sprintf("passage %d exits before it enters", i)}
		}
		if i > 0 && passage.Entry.Before(schedule[i-1].Exit) {
			return nil, &ctdf.ValidationError{Field: "schedule", Reason: fmt.Sprintf("passage %d enters before the previous section is left", i)}
		}

		schedule[i] = ctdf.PlannedPassage{
			SectionID: train.Route[i],
			Entry:     passage.Entry.Truncate(time.Minute),
			Exit:      passage.Exit.Truncate(time.Minute),
		}
	}

	return schedule, nil
}

func (r *Registry) GetTrain(id string) (*ctdf.Train, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	train, ok := r.trains[id]
	if !ok {
		return nil, &ctdf.NotFoundError{Kind: "train", ID: id}
	}
	return train.Clone(), nil
}

// ListActiveTrains returns the trains that use the section and have not yet
// left it at asOf, allowing for their reported delay.
func (r *Registry) ListActiveTrains(sectionID string, asOf time.Time) ([]*ctdf.Train, error) {
	if _, err := r.track.GetSection(sectionID); err != nil {
		return nil, err
	}

	r.mutex.RLock()
	var active []*ctdf.Train
	for _, train := range r.trains {
		index := train.RouteIndex(sectionID)
		if index < 0 {
			continue
		}

		exit := train.Schedule[index].Exit.Add(time.Duration(train.CurrentDelayMinutes) * time.Minute)
		if exit.Before(asOf) {
			continue
		}
		active = append(active, train.Clone())
	}
	r.mutex.RUnlock()

	slices.SortFunc(active, func(a, b *ctdf.Train) int {
		if c := a.Schedule[a.RouteIndex(sectionID)].Entry.Compare(b.Schedule[b.RouteIndex(sectionID)].Entry); c != 0 {
			return c
		}
		if a.PrimaryIdentifier < b.PrimaryIdentifier {
			return -1
		}
		return 1
	})

	return active, nil
}

// ReportDelay records a real-time delay report and invalidates every section
// on the train's route.
func (r *Registry) ReportDelay(trainID string, minutes int, reportedAt time.Time) error {
	if minutes < 0 {
		return &ctdf.ValidationError{Field: "delay_minutes", Reason: "must not be negative"}
	}

	r.mutex.Lock()
	train, ok := r.trains[trainID]
	if !ok {
		r.mutex.Unlock()
		return &ctdf.NotFoundError{Kind: "train", ID: trainID}
	}
	if train.CurrentDelayMinutes == minutes {
		r.mutex.Unlock()
		return nil
	}
	train.CurrentDelayMinutes = minutes
	train.DelayReportedAt = reportedAt
	route := slices.Clone(train.Route)
	r.mutex.Unlock()

	log.Info().
		Str("train", trainID).
		Str("date", r.serviceDate).
		Int("delay", minutes).
		Msg("Delay reported")

	r.notify(trainID, route, "delay reported")

	return nil
}

// Snapshot returns copies of every train sorted by id.
func (r *Registry) Snapshot() []*ctdf.Train {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	trains := make([]*ctdf.Train, 0, len(r.trains))
	for _, train := range r.trains {
		trains = append(trains, train.Clone())
	}
	slices.SortFunc(trains, func(a, b *ctdf.Train) int {
		if a.PrimaryIdentifier < b.PrimaryIdentifier {
			return -1
		} else if a.PrimaryIdentifier > b.PrimaryIdentifier {
			return 1
		}
		return 0
	})

	return trains
}

func (r *Registry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return len(r.trains)
}

// ServiceDay is midnight of the registry's service date in loc.
func (r *Registry) ServiceDay(loc *time.Location) (time.Time, error) {
	return util.ParseServiceDate(r.serviceDate, loc)
}
