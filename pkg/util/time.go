package util

import (
	"time"
)

const ServiceDateLayout = "2006-01-02"

func AddTimeToDate(date time.Time, sourceTime time.Time) time.Time {
	newDateTime := time.Date(date.Year(), date.Month(), date.Day(), sourceTime.Hour(), sourceTime.Minute(), sourceTime.Second(), sourceTime.Nanosecond(), date.Location())

	return newDateTime
}

// ParseServiceDate parses a YYYY-MM-DD service date as midnight in loc.
func ParseServiceDate(serviceDate string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(ServiceDateLayout, serviceDate, loc)
}

func ServiceDate(t time.Time) string {
	return t.Format(ServiceDateLayout)
}

// ParseClockTime reads an HH:MM (or HH:MM:SS) time of day on the given service date.
func ParseClockTime(date time.Time, clock string) (time.Time, error) {
	layout := "15:04"
	if len(clock) > 5 {
		layout = "15:04:05"
	}

	sourceTime, err := time.Parse(layout, clock)
	if err != nil {
		return time.Time{}, err
	}

	return AddTimeToDate(date, sourceTime), nil
}
