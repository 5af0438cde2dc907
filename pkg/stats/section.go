// Package stats summarises a published timetable for one section: how many
// conflicts the optimiser removed, the delay distribution and what a
// controller should look at.
package stats

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/travigo/railcontrol/pkg/ctdf"
)

// OnTimeThresholdMinutes is the largest delay still counted as on time.
const OnTimeThresholdMinutes = 5

type AlertLevel string

const (
	AlertLevelInfo     AlertLevel = "INFO"
	AlertLevelWarning  AlertLevel = "WARNING"
	AlertLevelCritical AlertLevel = "CRITICAL"
)

type Alert struct {
	Level   AlertLevel `json:"level"`
	Type    string     `json:"type"`
	Message string     `json:"message"`

	TrainID      string `json:"train_id,omitempty"`
	DisruptionID string `json:"disruption_id,omitempty"`
}

// Recommendation turns a scheduler decision into controller advice.
type Recommendation struct {
	TrainID      string   `json:"train_id"`
	YieldTo      []string `json:"yield_to"`
	DelayMinutes int      `json:"delay_minutes"`
	Message      string   `json:"message"`
}

type SectionStats struct {
	ServiceDate      string `json:"service_date"`
	SectionID        string `json:"section_id"`
	TimetableVersion uint64 `json:"timetable_version"`

	Trains             int `json:"trains"`
	ConflictsResolved  int `json:"conflicts_resolved"`
	RemainingConflicts int `json:"remaining_conflicts"`

	AverageDelayMinutes float64 `json:"average_delay_minutes"`
	DelayStdDevMinutes  float64 `json:"delay_stddev_minutes"`
	MaxDelayMinutes     int     `json:"max_delay_minutes"`
	OnTimeShare         float64 `json:"on_time_share"`
	ThroughputPerHour   float64 `json:"throughput_per_hour"`

	Recommendations []Recommendation `json:"recommendations"`
	Alerts          []Alert          `json:"alerts"`
}

// Calculate builds the section's stats from a timetable and the disruptions
// currently affecting it.
func Calculate(timetable *ctdf.Timetable, section *ctdf.Section, disruptions []*ctdf.Disruption) SectionStats {
	sectionStats := SectionStats{
		ServiceDate:      timetable.ServiceDate,
		SectionID:        section.PrimaryIdentifier,
		TimetableVersion: timetable.Version,
		Recommendations:  []Recommendation{},
		Alerts:           []Alert{},
	}

	conflicts := timetable.ConflictsFor(section)
	sectionStats.RemainingConflicts = len(conflicts)
	sectionStats.ConflictsResolved = max(0, len(timetable.BaselineConflictsFor(section))-len(conflicts))

	entries := timetable.ForSection(section.PrimaryIdentifier)
	sectionStats.Trains = len(entries)

	var delays Welford
	onTime := 0
	var first, last time.Time
	for _, entry := range entries {
		delays.Update(float64(entry.DelayMinutes))
		sectionStats.MaxDelayMinutes = max(sectionStats.MaxDelayMinutes, entry.DelayMinutes)
		if entry.DelayMinutes <= OnTimeThresholdMinutes {
			onTime++
		}

		if first.IsZero() || entry.OptimizedEntry.Before(first) {
			first = entry.OptimizedEntry
		}
		if entry.OptimizedExit.After(last) {
			last = entry.OptimizedExit
		}
	}

	if len(entries) > 0 {
		sectionStats.AverageDelayMinutes = round(delays.Mean)
		sectionStats.DelayStdDevMinutes = round(delays.StdDev())
		sectionStats.OnTimeShare = round(float64(onTime) / float64(len(entries)))

		if span := last.Sub(first); span > 0 {
			sectionStats.ThroughputPerHour = round(float64(len(entries)) / span.Hours())
		}
	}

	for _, decision := range timetable.Decisions {
		if decision.SectionID != section.PrimaryIdentifier {
			continue
		}
		sectionStats.Recommendations = append(sectionStats.Recommendations, Recommendation{
			TrainID:      decision.TrainID,
			YieldTo:      decision.YieldedTo,
			DelayMinutes: decision.DelayMinutes,
			Message: fmt.Sprintf("Hold %s for %d minutes to let %s clear %s",
				decision.TrainID, decision.DelayMinutes, strings.Join(decision.YieldedTo, ", "), section.PrimaryIdentifier),
		})
	}

	sectionStats.Alerts = alerts(timetable, section, entries, conflicts, disruptions)

	return sectionStats
}

func alerts(timetable *ctdf.Timetable, section *ctdf.Section, entries []ctdf.ScheduleEntry, conflicts []ctdf.Conflict, disruptions []*ctdf.Disruption) []Alert {
	alerts := []Alert{}

	if timetable.Degraded {
		alerts = append(alerts, Alert{
			Level:   AlertLevelWarning,
			Type:    "degraded",
			Message: fmt.Sprintf("Serving timetable version %d, the latest recomputation failed: %s", timetable.Version, timetable.LastError),
		})
	}

	for _, disruption := range disruptions {
		if !disruption.Affects(section.PrimaryIdentifier) || !disruption.AppliesTo(false) {
			continue
		}

		level := AlertLevelInfo
		switch disruption.Severity {
		case ctdf.SeverityCritical:
			level = AlertLevelCritical
		case ctdf.SeverityHigh:
			level = AlertLevelWarning
		}

		message := fmt.Sprintf("%s %s", disruption.Severity, strings.ReplaceAll(string(disruption.Type), "_", " "))
		if end := disruption.End(); !end.IsZero() {
			message = fmt.Sprintf("%s until %s", message, end.Format(time.RFC3339))
		}
		alerts = append(alerts, Alert{
			Level:        level,
			Type:         "disruption",
			Message:      message,
			DisruptionID: disruption.PrimaryIdentifier,
		})
	}

	for _, entry := range entries {
		if entry.Unresolved {
			alerts = append(alerts, Alert{
				Level:   AlertLevelCritical,
				Type:    "unresolved",
				Message: fmt.Sprintf("No feasible slot found for train %s", entry.TrainID),
				TrainID: entry.TrainID,
			})
		}
	}

	for _, conflict := range conflicts {
		alerts = append(alerts, Alert{
			Level: AlertLevelWarning,
			Type:  "conflict",
			Message: fmt.Sprintf("Trains %s conflict on %s between %s and %s",
				strings.Join(conflict.TrainIDs, ", "), conflict.ResourceID(), conflict.Start.Format("15:04"), conflict.End.Format("15:04")),
		})
	}

	for _, violation := range timetable.Violations {
		if violation.SectionID != section.PrimaryIdentifier {
			continue
		}
		alerts = append(alerts, Alert{
			Level:   AlertLevelWarning,
			Type:    "override",
			Message: fmt.Sprintf("Override could not put %s ahead of %s: %s", violation.TrainID, violation.AheadOf, violation.Reason),
			TrainID: violation.TrainID,
		})
	}

	slices.SortStableFunc(alerts, func(a, b Alert) int {
		return levelRank(b.Level) - levelRank(a.Level)
	})

	return alerts
}

func levelRank(level AlertLevel) int {
	switch level {
	case AlertLevelCritical:
		return 2
	case AlertLevelWarning:
		return 1
	}
	return 0
}

func round(value float64) float64 {
	return math.Round(value*100) / 100
}
