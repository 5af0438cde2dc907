package registry

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog/log"
	"github.com/travigo/railcontrol/pkg/ctdf"
	"github.com/travigo/railcontrol/pkg/util"
)

// PlanRow is one line of a train service plan CSV. Route sections are
// separated by spaces, platforms are STATION:PLATFORM pairs.
type PlanRow struct {
	TrainID      string `csv:"train_id"`
	Type         string `csv:"type"`
	Priority     string `csv:"priority"`
	Route        string `csv:"route"`
	Departure    string `csv:"departure"`
	PlatformNeed bool   `csv:"platform_need"`
	Platforms    string `csv:"platforms"`
	DwellMinutes string `csv:"dwell_minutes"`
}

func (row *PlanRow) Spec(serviceDay time.Time) (TrainSpec, error) {
	spec := TrainSpec{
		ID:           strings.TrimSpace(row.TrainID),
		ServiceDate:  util.ServiceDate(serviceDay),
		Type:         ctdf.TrainType(strings.ToUpper(strings.TrimSpace(row.Type))),
		Route:        strings.Fields(row.Route),
		PlatformNeed: row.PlatformNeed,
		Platforms:    map[string]string{},
	}

	departure, err := util.ParseClockTime(serviceDay, strings.TrimSpace(row.Departure))
	if err != nil {
		return spec, &ctdf.ValidationError{Field: "departure", Reason: err.Error()}
	}
	spec.Departure = departure

	if row.Priority != "" {
		spec.PriorityWeight, err = strconv.ParseFloat(row.Priority, 64)
		if err != nil {
			return spec, &ctdf.ValidationError{Field: "priority", Reason: err.Error()}
		}
	}

	if row.DwellMinutes != "" {
		dwell, err := strconv.Atoi(row.DwellMinutes)
		if err != nil {
			return spec, &ctdf.ValidationError{Field: "dwell_minutes", Reason: err.Error()}
		}
		spec.DwellMinutes = &dwell
	}

	for _, pair := range strings.Fields(row.Platforms) {
		station, platform, ok := strings.Cut(pair, ":")
		if !ok {
			return spec, &ctdf.ValidationError{Field: "platforms", Reason: fmt.Sprintf("malformed platform %q", pair)}
		}
		spec.Platforms[station] = platform
	}

	return spec, nil
}

// LoadCSV registers every train in a service plan CSV. Rows that fail to
// register are logged and skipped; the number registered is returned.
func (r *Registry) LoadCSV(reader io.Reader, loc *time.Location) (int, error) {
	serviceDay, err := util.ParseServiceDate(r.serviceDate, loc)
	if err != nil {
		return 0, err
	}

	var rows []*PlanRow
	err = gocsv.UnmarshalCSV(gocsv.LazyCSVReader(reader), &rows)
	if err != nil {
		return 0, fmt.Errorf("parsing train plan: %w", err)
	}

	registered := 0
	for i, row := range rows {
		spec, err := row.Spec(serviceDay)
		if err == nil {
			_, err = r.RegisterTrain(spec)
		}

		if err != nil {
			log.Error().Err(err).Int("row", i+2).Str("train", row.TrainID).Msg("Failed to register train from plan")
			continue
		}
		registered++
	}

	return registered, nil
}
