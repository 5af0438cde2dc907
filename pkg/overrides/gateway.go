// Package overrides accepts controllers' manual train orderings for a
// section, pins them on the day's scheduler and reports what is still wrong
// with the resulting timetable.
package overrides

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/travigo/railcontrol/pkg/ctdf"
	"github.com/travigo/railcontrol/pkg/registry"
	"github.com/travigo/railcontrol/pkg/scheduler"
	"github.com/travigo/railcontrol/pkg/track"
	"github.com/travigo/railcontrol/pkg/util"
)

// ServiceDays looks up the per-day registry and scheduler. Both return a
// NotFoundError for a day that has no trains.
type ServiceDays interface {
	Registry(date string) (*registry.Registry, error)
	Coordinator(date string) (*scheduler.Coordinator, error)
}

type Gateway struct {
	track   *track.Model
	days    ServiceDays
	history History
}

// Result is the section's slice of the timetable recomputed with the
// override in place.
type Result struct {
	Override *ctdf.Override `json:"override,omitempty"`

	Version    uint64                   `json:"version"`
	Degraded   bool                     `json:"degraded"`
	Entries    []ctdf.ScheduleEntry     `json:"entries"`
	Conflicts  []ctdf.Conflict          `json:"conflicts"`
	Violations []ctdf.OverrideViolation `json:"violations,omitempty"`
}

func NewGateway(model *track.Model, days ServiceDays, history History) *Gateway {
	if history == nil {
		history = NewMemoryHistory()
	}
	return &Gateway{
		track:   model,
		days:    days,
		history: history,
	}
}

// SubmitOverride pins order on the section and waits for the recomputed
// timetable. When the pinned order still leaves conflicts on the section, or
// could not be honoured, the result is returned together with an
// InfeasibleOverrideError.
func (g *Gateway) SubmitOverride(ctx context.Context, date string, sectionID string, order []string, submittedBy string) (*Result, error) {
	section, err := g.track.GetSection(sectionID)
	if err != nil {
		return nil, err
	}

	if len(order) == 0 {
		return nil, &ctdf.ValidationError{Field: "order", Reason: "must name at least one train"}
	}
	if slices.Contains(order, "") {
		return nil, &ctdf.ValidationError{Field: "order", Reason: "train ids must not be empty"}
	}
	if duplicates := util.DuplicateStrings(order); len(duplicates) > 0 {
		return nil, &ctdf.ValidationError{Field: "order", Reason: fmt.Sprintf("trains listed more than once: %s", strings.Join(duplicates, ", "))}
	}

	trains, err := g.days.Registry(date)
	if err != nil {
		return nil, err
	}
	coordinator, err := g.days.Coordinator(date)
	if err != nil {
		return nil, err
	}

	now := coordinator.Now()

	activeIDs, err := activeTrains(trains, coordinator.Snapshot(), sectionID, now)
	if err != nil {
		return nil, err
	}

	var unknown []string
	for _, trainID := range order {
		if !activeIDs[trainID] {
			unknown = append(unknown, trainID)
		}
	}
	if len(unknown) > 0 {
		return nil, &ctdf.UnknownTrainError{SectionID: sectionID, TrainIDs: unknown}
	}

	override := &ctdf.Override{
		PrimaryIdentifier: uuid.NewString(),
		ServiceDate:       date,
		SectionID:         sectionID,
		Order:             slices.Clone(order),
		SubmittedBy:       submittedBy,
		SubmittedAt:       now,
	}

	g.supersede(ctx, date, sectionID, now)

	coordinator.SetPin(sectionID, order)

	log.Info().
		Str("date", date).
		Str("section", sectionID).
		Strs("order", order).
		Str("submitted_by", submittedBy).
		Msg("Override submitted")

	timetable, err := coordinator.Recompute(ctx, "override on "+sectionID)
	if err != nil {
		g.record(ctx, override)
		return nil, err
	}

	result := sectionResult(timetable, section)
	result.Override = override

	override.AppliedVersion = timetable.Version
	override.Feasible = len(result.Conflicts) == 0 && len(result.Violations) == 0
	g.record(ctx, override)

	if !override.Feasible {
		log.Warn().
			Str("date", date).
			Str("section", sectionID).
			Int("conflicts", len(result.Conflicts)).
			Int("violations", len(result.Violations)).
			Msg("Override could not produce a conflict free schedule")

		return result, &ctdf.InfeasibleOverrideError{
			SectionID:  sectionID,
			Conflicts:  result.Conflicts,
			Violations: result.Violations,
		}
	}

	return result, nil
}

// ClearOverride removes the pinned order from the section and returns the
// section recomputed without it.
func (g *Gateway) ClearOverride(ctx context.Context, date string, sectionID string) (*Result, error) {
	section, err := g.track.GetSection(sectionID)
	if err != nil {
		return nil, err
	}

	coordinator, err := g.days.Coordinator(date)
	if err != nil {
		return nil, err
	}

	if !coordinator.ClearPin(sectionID) {
		return nil, &ctdf.NotFoundError{Kind: "override", ID: sectionID}
	}
	g.supersede(ctx, date, sectionID, coordinator.Now())

	log.Info().Str("date", date).Str("section", sectionID).Msg("Override cleared")

	timetable, err := coordinator.Recompute(ctx, "override cleared on "+sectionID)
	if err != nil {
		return nil, err
	}

	return sectionResult(timetable, section), nil
}

func (g *Gateway) History(ctx context.Context, sectionID string) ([]*ctdf.Override, error) {
	if _, err := g.track.GetSection(sectionID); err != nil {
		return nil, err
	}

	overrides, err := g.history.List(ctx, sectionID)
	if err != nil {
		return nil, err
	}
	if overrides == nil {
		overrides = []*ctdf.Override{}
	}
	return overrides, nil
}

// supersede marks the override currently in force on the section as cleared.
func (g *Gateway) supersede(ctx context.Context, date string, sectionID string, clearedAt time.Time) {
	overrides, err := g.history.List(ctx, sectionID)
	if err != nil {
		log.Error().Err(err).Str("section", sectionID).Msg("Failed to read override history")
		return
	}

	for _, override := range overrides {
		if override.ServiceDate == date && override.Active() {
			override.ClearedAt = clearedAt
			g.record(ctx, override)
		}
	}
}

func (g *Gateway) record(ctx context.Context, override *ctdf.Override) {
	if err := g.history.Save(ctx, override); err != nil {
		log.Error().Err(err).
			Str("override", override.PrimaryIdentifier).
			Str("section", override.SectionID).
			Msg("Failed to store override")
	}
}

// activeTrains are the trains on the section that have not left it at now.
// A train's entry in the served timetable decides; trains without one fall
// back to their plan shifted by the reported delay.
func activeTrains(trains *registry.Registry, timetable *ctdf.Timetable, sectionID string, now time.Time) (map[string]bool, error) {
	planned, err := trains.ListActiveTrains(sectionID, now)
	if err != nil {
		return nil, err
	}

	active := map[string]bool{}
	for _, train := range planned {
		active[train.PrimaryIdentifier] = true
	}
	for _, entry := range timetable.ForSection(sectionID) {
		active[entry.TrainID] = !entry.OptimizedExit.Before(now)
	}

	return active, nil
}

func sectionResult(timetable *ctdf.Timetable, section *ctdf.Section) *Result {
	result := &Result{
		Version:    timetable.Version,
		Degraded:   timetable.Degraded,
		Entries:    timetable.ForSection(section.PrimaryIdentifier),
		Conflicts:  timetable.ConflictsFor(section),
		Violations: []ctdf.OverrideViolation{},
	}
	if result.Entries == nil {
		result.Entries = []ctdf.ScheduleEntry{}
	}
	if result.Conflicts == nil {
		result.Conflicts = []ctdf.Conflict{}
	}

	for _, violation := range timetable.Violations {
		if violation.SectionID == section.PrimaryIdentifier {
			result.Violations = append(result.Violations, violation)
		}
	}

	return result
}
