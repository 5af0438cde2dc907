package track

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travigo/railcontrol/pkg/ctdf"
)

func testTopology() TopologyData {
	return TopologyData{
		Stations: []StationData{
			{ID: "JUC", Name: "Jalandhar City", Platforms: []string{"1", "2"}},
			{ID: "LDH", Name: "Ludhiana"},
			{ID: "UMB"},
		},
		Sections: []SectionData{
			{ID: "JUC-LDH", From: "JUC", To: "LDH", LengthKm: 40, MaxSpeedKmh: 120, Capacity: 1},
			{ID: "LDH-UMB", From: "LDH", To: "UMB", LengthKm: 113, MaxSpeedKmh: 130, Capacity: 2},
		},
	}
}

func TestNewModel(t *testing.T) {
	model, err := New(testTopology())
	require.NoError(t, err)

	section, err := model.GetSection("JUC-LDH")
	require.NoError(t, err)
	assert.Equal(t, "JUC", section.FromStation)
	assert.Equal(t, 1, section.Capacity)

	travel, err := model.TravelTime("JUC-LDH")
	require.NoError(t, err)
	assert.Equal(t, 20*time.Minute, travel)

	// 113km at 130km/h is 52.15 minutes, rounded up
	travel, err = model.TravelTime("LDH-UMB")
	require.NoError(t, err)
	assert.Equal(t, 53*time.Minute, travel)

	capacity, err := model.Capacity("LDH-UMB")
	require.NoError(t, err)
	assert.Equal(t, 2, capacity)

	station, err := model.GetStation("UMB")
	require.NoError(t, err)
	assert.Equal(t, "UMB", station.PrimaryName)

	assert.Equal(t, []string{"JUC-LDH", "LDH-UMB"}, model.SectionIDs())
	assert.Equal(t, []string{"JUC-LDH", "LDH-UMB"}, model.SectionsAt("LDH"))
}

func TestModelNotFound(t *testing.T) {
	model, err := New(testTopology())
	require.NoError(t, err)

	_, err = model.GetSection("NOPE")
	var notFound *ctdf.NotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "section", notFound.Kind)
	assert.Equal(t, "NOPE", notFound.ID)

	_, err = model.TravelTime("NOPE")
	assert.True(t, errors.As(err, &notFound))

	_, err = model.Capacity("NOPE")
	assert.True(t, errors.As(err, &notFound))

	_, err = model.GetStation("NOPE")
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "station", notFound.Kind)
}

func TestSharedStation(t *testing.T) {
	model, err := New(testTopology())
	require.NoError(t, err)

	station, ok := model.SharedStation("JUC-LDH", "LDH-UMB")
	assert.True(t, ok)
	assert.Equal(t, "LDH", station)

	_, ok = model.SharedStation("JUC-LDH", "JUC-LDH-2")
	assert.False(t, ok)
}

func TestNewModelValidation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*TopologyData)
		errMsg string
	}{
		{
			name: "duplicate station",
			modify: func(d *TopologyData) {
				d.Stations = append(d.Stations, StationData{ID: "JUC"})
			},
			errMsg: `station "JUC" already exists`,
		},
		{
			name: "duplicate section",
			modify: func(d *TopologyData) {
				d.Sections = append(d.Sections, d.Sections[0])
			},
			errMsg: `section "JUC-LDH" already exists`,
		},
		{
			name: "unknown station",
			modify: func(d *TopologyData) {
				d.Sections[0].To = "XXX"
			},
			errMsg: "unknown to station",
		},
		{
			name: "zero capacity",
			modify: func(d *TopologyData) {
				d.Sections[0].Capacity = 0
			},
			errMsg: "capacity must be at least 1",
		},
		{
			name: "zero speed",
			modify: func(d *TopologyData) {
				d.Sections[1].MaxSpeedKmh = 0
			},
			errMsg: "max speed must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := testTopology()
			tt.modify(&data)

			_, err := New(data)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestParseTopology(t *testing.T) {
	topology := `
stations:
  - id: A
    lon: -1.5
    lat: 52.1
  - id: B
    easting: "530000"
    northing: "180000"
sections:
  - id: A-B
    from: A
    to: B
    length_km: 10
    max_speed_kmh: 100
    capacity: 1
`
	model, err := Parse(strings.NewReader(topology))
	require.NoError(t, err)

	a, err := model.GetStation("A")
	require.NoError(t, err)
	assert.Equal(t, -1.5, a.Location.Longitude())
	assert.Equal(t, 52.1, a.Location.Latitude())

	// Grid reference in central London
	b, err := model.GetStation("B")
	require.NoError(t, err)
	require.NotNil(t, b.Location)
	assert.InDelta(t, 51.5, b.Location.Latitude(), 0.1)
	assert.InDelta(t, -0.13, b.Location.Longitude(), 0.1)

	travel, err := model.TravelTime("A-B")
	require.NoError(t, err)
	assert.Equal(t, 6*time.Minute, travel)
}

func TestParseTopologyUnknownField(t *testing.T) {
	_, err := Parse(strings.NewReader("stations: []\nsectons: []\n"))
	assert.Error(t, err)
}
