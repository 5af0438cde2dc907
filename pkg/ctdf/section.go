package ctdf

import (
	"math"
	"time"
)

// Section is a stretch of track between two stations. Capacity is the number
// of trains allowed on it at the same instant.
type Section struct {
	PrimaryIdentifier string `json:"id" groups:"basic"`

	FromStation string `json:"from_station" groups:"basic"`
	ToStation   string `json:"to_station" groups:"basic"`

	LengthKm    float64 `json:"length_km" groups:"detailed"`
	MaxSpeedKmh float64 `json:"max_speed_kmh" groups:"detailed"`
	Capacity    int     `json:"capacity" groups:"basic"`
}

// NominalTraversal is length / max speed rounded up to whole minutes.
func (s *Section) NominalTraversal() time.Duration {
	return CeilMinutes(s.LengthKm / s.MaxSpeedKmh * 60)
}

func (s *Section) Joins(stationID string) bool {
	return s.FromStation == stationID || s.ToStation == stationID
}

// OtherEnd returns the station at the opposite end of the section to stationID.
func (s *Section) OtherEnd(stationID string) (string, bool) {
	switch stationID {
	case s.FromStation:
		return s.ToStation, true
	case s.ToStation:
		return s.FromStation, true
	}
	return "", false
}

// CeilMinutes rounds a fractional number of minutes up to a whole-minute duration,
// never less than one minute.
func CeilMinutes(minutes float64) time.Duration {
	whole := math.Ceil(minutes - 1e-9)
	if whole < 1 {
		whole = 1
	}
	return time.Duration(whole) * time.Minute
}

// Minutes returns d as whole minutes, rounding towards zero.
func Minutes(d time.Duration) int {
	return int(d / time.Minute)
}
