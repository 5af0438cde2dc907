package track

import (
	"fmt"
	"io"
	"os"

	"github.com/paulcager/osgridref"
	"github.com/rs/zerolog/log"
	"github.com/travigo/railcontrol/pkg/ctdf"
	"gopkg.in/yaml.v3"
)

// LoadFile reads a topology YAML file and builds the model from it.
func LoadFile(path string) (*Model, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	model, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("loading topology %s: %w", path, err)
	}

	log.Info().
		Str("path", path).
		Int("stations", len(model.stations)).
		Int("sections", len(model.sections)).
		Msg("Loaded track topology")

	return model, nil
}

func Parse(reader io.Reader) (*Model, error) {
	var data TopologyData
	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)

	if err := decoder.Decode(&data); err != nil {
		return nil, err
	}

	return New(data)
}

// location resolves the station position from lon/lat or, failing that,
// an OS grid easting/northing.
func (s StationData) location() (*ctdf.Location, error) {
	if s.Longitude != nil && s.Latitude != nil {
		return ctdf.NewPointLocation(*s.Longitude, *s.Latitude), nil
	}

	if s.Easting != "" && s.Northing != "" {
		gridRef, err := osgridref.ParseOsGridRef(fmt.Sprintf("%s,%s", s.Easting, s.Northing))
		if err != nil {
			return nil, fmt.Errorf("parsing grid reference: %w", err)
		}

		lat, lon := gridRef.ToLatLon()
		return ctdf.NewPointLocation(lon, lat), nil
	}

	return nil, nil
}
