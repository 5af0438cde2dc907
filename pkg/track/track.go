// Package track holds the static railway topology: stations and the sections
// of line between them. A Model is immutable once built and safe to share.
package track

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/travigo/railcontrol/pkg/ctdf"
)

type StationData struct {
	ID        string   `yaml:"id"`
	Name      string   `yaml:"name"`
	Longitude *float64 `yaml:"lon,omitempty"`
	Latitude  *float64 `yaml:"lat,omitempty"`
	Easting   string   `yaml:"easting,omitempty"`
	Northing  string   `yaml:"northing,omitempty"`
	Platforms []string `yaml:"platforms,omitempty"`
}

type SectionData struct {
	ID          string  `yaml:"id"`
	From        string  `yaml:"from"`
	To          string  `yaml:"to"`
	LengthKm    float64 `yaml:"length_km"`
	MaxSpeedKmh float64 `yaml:"max_speed_kmh"`
	Capacity    int     `yaml:"capacity"`
}

type TopologyData struct {
	Stations []StationData `yaml:"stations"`
	Sections []SectionData `yaml:"sections"`
}

type Model struct {
	stations map[string]*ctdf.Station
	sections map[string]*ctdf.Section

	sectionsByStation map[string][]string
}

// New validates the topology and builds the lookup model.
func New(data TopologyData) (*Model, error) {
	m := &Model{
		stations:          map[string]*ctdf.Station{},
		sections:          map[string]*ctdf.Section{},
		sectionsByStation: map[string][]string{},
	}

	for _, stationData := range data.Stations {
		if stationData.ID == "" {
			return nil, fmt.Errorf("station with empty id")
		}
		if _, exists := m.stations[stationData.ID]; exists {
			return nil, fmt.Errorf("station %q already exists", stationData.ID)
		}

		location, err := stationData.location()
		if err != nil {
			return nil, fmt.Errorf("station %q: %w", stationData.ID, err)
		}

		name := stationData.Name
		if name == "" {
			name = stationData.ID
		}

		m.stations[stationData.ID] = &ctdf.Station{
			PrimaryIdentifier: stationData.ID,
			PrimaryName:       name,
			Location:          location,
			Platforms:         slices.Clone(stationData.Platforms),
		}
	}

	for _, sectionData := range data.Sections {
		if sectionData.ID == "" {
			return nil, fmt.Errorf("section with empty id")
		}
		if _, exists := m.sections[sectionData.ID]; exists {
			return nil, fmt.Errorf("section %q already exists", sectionData.ID)
		}
		if _, ok := m.stations[sectionData.From]; !ok {
			return nil, fmt.Errorf("section %q: unknown from station %q", sectionData.ID, sectionData.From)
		}
		if _, ok := m.stations[sectionData.To]; !ok {
			return nil, fmt.Errorf("section %q: unknown to station %q", sectionData.ID, sectionData.To)
		}
		if sectionData.From == sectionData.To {
			return nil, fmt.Errorf("section %q: from and to station are both %q", sectionData.ID, sectionData.From)
		}
		if sectionData.LengthKm <= 0 {
			return nil, fmt.Errorf("section %q: length must be positive", sectionData.ID)
		}
		if sectionData.MaxSpeedKmh <= 0 {
			return nil, fmt.Errorf("section %q: max speed must be positive", sectionData.ID)
		}
		if sectionData.Capacity < 1 {
			return nil, fmt.Errorf("section %q: capacity must be at least 1", sectionData.ID)
		}

		m.sections[sectionData.ID] = &ctdf.Section{
			PrimaryIdentifier: sectionData.ID,
			FromStation:       sectionData.From,
			ToStation:         sectionData.To,
			LengthKm:          sectionData.LengthKm,
			MaxSpeedKmh:       sectionData.MaxSpeedKmh,
			Capacity:          sectionData.Capacity,
		}
		m.sectionsByStation[sectionData.From] = append(m.sectionsByStation[sectionData.From], sectionData.ID)
		m.sectionsByStation[sectionData.To] = append(m.sectionsByStation[sectionData.To], sectionData.ID)
	}

	return m, nil
}

// GetSection returns a copy of the section.
func (m *Model) GetSection(id string) (*ctdf.Section, error) {
	section, ok := m.sections[id]
	if !ok {
		return nil, &ctdf.NotFoundError{Kind: "section", ID: id}
	}
	copied := *section
	return &copied, nil
}

func (m *Model) GetStation(id string) (*ctdf.Station, error) {
	station, ok := m.stations[id]
	if !ok {
		return nil, &ctdf.NotFoundError{Kind: "station", ID: id}
	}
	copied := *station
	copied.Platforms = slices.Clone(station.Platforms)
	return &copied, nil
}

// TravelTime is the nominal traversal time of the section in whole minutes.
func (m *Model) TravelTime(sectionID string) (time.Duration, error) {
	section, ok := m.sections[sectionID]
	if !ok {
		return 0, &ctdf.NotFoundError{Kind: "section", ID: sectionID}
	}
	return section.NominalTraversal(), nil
}

func (m *Model) Capacity(sectionID string) (int, error) {
	section, ok := m.sections[sectionID]
	if !ok {
		return 0, &ctdf.NotFoundError{Kind: "section", ID: sectionID}
	}
	return section.Capacity, nil
}

// SharedStation returns the station joining two sections.
func (m *Model) SharedStation(a string, b string) (string, bool) {
	sectionA, okA := m.sections[a]
	sectionB, okB := m.sections[b]
	if !okA || !okB {
		return "", false
	}

	for _, station := range []string{sectionA.FromStation, sectionA.ToStation} {
		if sectionB.Joins(station) {
			return station, true
		}
	}
	return "", false
}

// SectionsAt lists the sections touching a station, sorted by id.
func (m *Model) SectionsAt(stationID string) []string {
	sections := slices.Clone(m.sectionsByStation[stationID])
	slices.Sort(sections)
	return sections
}

func (m *Model) SectionIDs() []string {
	ids := slices.Collect(maps.Keys(m.sections))
	slices.Sort(ids)
	return ids
}

func (m *Model) StationIDs() []string {
	ids := slices.Collect(maps.Keys(m.stations))
	slices.Sort(ids)
	return ids
}

// Sections returns every section sorted by id.
func (m *Model) Sections() []*ctdf.Section {
	var sections []*ctdf.Section
	for _, id := range m.SectionIDs() {
		section, _ := m.GetSection(id)
		sections = append(sections, section)
	}
	return sections
}

func (m *Model) Stations() []*ctdf.Station {
	var stations []*ctdf.Station
	for _, id := range m.StationIDs() {
		station, _ := m.GetStation(id)
		stations = append(stations, station)
	}
	return stations
}
