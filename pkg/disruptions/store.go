// Package disruptions is the append-only record of disruptions affecting
// sections. Records only ever change status; they are never deleted.
package disruptions

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/travigo/railcontrol/pkg/config"
	"github.com/travigo/railcontrol/pkg/ctdf"
	"github.com/travigo/railcontrol/pkg/track"
	"github.com/travigo/railcontrol/pkg/util"
)

// Transition describes a status change. Previous is nil for a newly created
// disruption.
type Transition struct {
	Previous *ctdf.Disruption
	Current  *ctdf.Disruption
}

func (t Transition) Created() bool {
	return t.Previous == nil
}

type Listener func(Transition)

type Filter struct {
	SectionID string
	Status    ctdf.DisruptionStatus
}

type Store struct {
	track  *track.Model
	rules  map[ctdf.Severity]ctdf.SeverityEffect
	scorer *PriorityScorer

	repository Repository

	mutex       sync.RWMutex
	disruptions map[string]*ctdf.Disruption
	order       []string

	listenersMutex sync.Mutex
	listeners      []Listener

	Now func() time.Time
}

// NewStore builds an empty store. repository may be nil to keep history in
// memory only.
func NewStore(model *track.Model, cfg *config.Config, repository Repository) (*Store, error) {
	scorer, err := NewPriorityScorer(cfg.PriorityScoreExpression)
	if err != nil {
		return nil, err
	}

	return &Store{
		track:       model,
		rules:       cfg.Severities,
		scorer:      scorer,
		repository:  repository,
		disruptions: map[string]*ctdf.Disruption{},
		Now:         time.Now,
	}, nil
}

// Load restores history from the repository.
func (s *Store) Load(ctx context.Context) error {
	if s.repository == nil {
		return nil
	}

	disruptions, err := s.repository.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("loading disruptions: %w", err)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, disruption := range disruptions {
		if _, exists := s.disruptions[disruption.PrimaryIdentifier]; exists {
			continue
		}
		s.disruptions[disruption.PrimaryIdentifier] = disruption
		s.order = append(s.order, disruption.PrimaryIdentifier)
	}

	log.Info().Int("count", len(disruptions)).Msg("Loaded disruption history")

	return nil
}

func (s *Store) OnTransition(listener Listener) {
	s.listenersMutex.Lock()
	defer s.listenersMutex.Unlock()

	s.listeners = append(s.listeners, listener)
}

func (s *Store) notify(transition Transition) {
	s.listenersMutex.Lock()
	listeners := slices.Clone(s.listeners)
	s.listenersMutex.Unlock()

	for _, listener := range listeners {
		listener(transition)
	}
}

func (s *Store) Rules() map[ctdf.Severity]ctdf.SeverityEffect {
	return s.rules
}

// Validate checks a disruption can be created and fills in defaults. It does
// not touch the store.
func (s *Store) Validate(d *ctdf.Disruption) error {
	if d.Type == "" {
		d.Type = ctdf.DisruptionTypeOther
	}
	if !d.Type.IsValid() {
		return &ctdf.ValidationError{Field: "type", Reason: fmt.Sprintf("unknown disruption type %q", d.Type)}
	}
	if !d.Severity.IsValid() {
		return &ctdf.ValidationError{Field: "severity", Reason: fmt.Sprintf("unknown severity %q", d.Severity)}
	}

	d.Sections = util.RemoveDuplicateStrings(d.Sections, nil)
	if len(d.Sections) == 0 {
		return &ctdf.ValidationError{Field: "sections", Reason: "at least one section is required"}
	}
	for _, sectionID := range d.Sections {
		if _, err := s.track.GetSection(sectionID); err != nil {
			return err
		}
	}

	if d.StartTime.IsZero() {
		d.StartTime = s.Now()
	}
	d.StartTime = d.StartTime.Truncate(time.Minute)
	if !d.EstimatedResolution.IsZero() {
		d.EstimatedResolution = d.EstimatedResolution.Truncate(time.Minute)
		if !d.EstimatedResolution.After(d.StartTime) {
			return &ctdf.ValidationError{Field: "estimated_resolution", Reason: "must be after the start time"}
		}
	}

	if d.Source == "" {
		d.Source = ctdf.DisruptionSourceController
	}

	return nil
}

// Create records a new disruption. Its status is forced to ACTIVE unless the
// caller asked for a SIMULATED one.
func (s *Store) Create(ctx context.Context, d ctdf.Disruption) (string, error) {
	disruption := d.Clone()
	if err := s.Validate(disruption); err != nil {
		return "", err
	}

	if disruption.Status != ctdf.DisruptionStatusSimulated {
		disruption.Status = ctdf.DisruptionStatusActive
	}
	disruption.PrimaryIdentifier = uuid.NewString()
	disruption.ActualResolution = time.Time{}
	disruption.CreationDateTime = s.Now()
	disruption.ModificationDateTime = disruption.CreationDateTime

	score, err := s.scorer.Score(disruption)
	if err != nil {
		return "", fmt.Errorf("scoring disruption: %w", err)
	}
	disruption.PriorityScore = score

	s.mutex.Lock()
	if err := s.persist(ctx, disruption); err != nil {
		s.mutex.Unlock()
		return "", err
	}
	s.disruptions[disruption.PrimaryIdentifier] = disruption
	s.order = append(s.order, disruption.PrimaryIdentifier)
	s.mutex.Unlock()

	log.Info().
		Str("disruption", disruption.PrimaryIdentifier).
		Str("type", string(disruption.Type)).
		Str("severity", string(disruption.Severity)).
		Str("status", string(disruption.Status)).
		Strs("sections", disruption.Sections).
		Float64("score", disruption.PriorityScore).
		Msg("Disruption created")

	s.notify(Transition{Current: disruption.Clone()})

	return disruption.PrimaryIdentifier, nil
}

// Resolve marks the disruption RESOLVED at actualResolution (now when zero).
func (s *Store) Resolve(ctx context.Context, id string, actualResolution time.Time) error {
	if actualResolution.IsZero() {
		actualResolution = s.Now()
	}

	s.mutex.Lock()
	existing, ok := s.disruptions[id]
	if !ok {
		s.mutex.Unlock()
		return &ctdf.NotFoundError{Kind: "disruption", ID: id}
	}
	if existing.IsResolved() {
		s.mutex.Unlock()
		return &ctdf.AlreadyResolvedError{DisruptionID: id, ResolvedAt: existing.ActualResolution}
	}
	if actualResolution.Before(existing.StartTime) {
		s.mutex.Unlock()
		return &ctdf.ValidationError{Field: "actual_resolution", Reason: "must not be before the start time"}
	}

	updated := existing.Clone()
	updated.Status = ctdf.DisruptionStatusResolved
	updated.ActualResolution = actualResolution
	updated.ModificationDateTime = s.Now()

	if err := s.persist(ctx, updated); err != nil {
		s.mutex.Unlock()
		return err
	}
	s.disruptions[id] = updated
	s.mutex.Unlock()

	log.Info().Str("disruption", id).Time("resolved", actualResolution).Msg("Disruption resolved")

	s.notify(Transition{Previous: existing.Clone(), Current: updated.Clone()})

	return nil
}

// Investigate moves an ACTIVE disruption to INVESTIGATING. It keeps affecting
// the schedule.
func (s *Store) Investigate(ctx context.Context, id string) error {
	s.mutex.Lock()
	existing, ok := s.disruptions[id]
	if !ok {
		s.mutex.Unlock()
		return &ctdf.NotFoundError{Kind: "disruption", ID: id}
	}

	switch existing.Status {
	case ctdf.DisruptionStatusResolved:
		s.mutex.Unlock()
		return &ctdf.AlreadyResolvedError{DisruptionID: id, ResolvedAt: existing.ActualResolution}
	case ctdf.DisruptionStatusInvestigating:
		s.mutex.Unlock()
		return nil
	case ctdf.DisruptionStatusSimulated:
		s.mutex.Unlock()
		return &ctdf.ValidationError{Field: "status", Reason: "simulated disruptions cannot be investigated"}
	}

	updated := existing.Clone()
	updated.Status = ctdf.DisruptionStatusInvestigating
	updated.ModificationDateTime = s.Now()

	if err := s.persist(ctx, updated); err != nil {
		s.mutex.Unlock()
		return err
	}
	s.disruptions[id] = updated
	s.mutex.Unlock()

	s.notify(Transition{Previous: existing.Clone(), Current: updated.Clone()})

	return nil
}

func (s *Store) persist(ctx context.Context, d *ctdf.Disruption) error {
	if s.repository == nil {
		return nil
	}
	if err := s.repository.Save(ctx, d); err != nil {
		return fmt.Errorf("saving disruption %s: %w", d.PrimaryIdentifier, err)
	}
	return nil
}

func (s *Store) Get(id string) (*ctdf.Disruption, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	disruption, ok := s.disruptions[id]
	if !ok {
		return nil, &ctdf.NotFoundError{Kind: "disruption", ID: id}
	}
	return disruption.Clone(), nil
}

// List returns matching disruptions in creation order.
func (s *Store) List(filter Filter) []*ctdf.Disruption {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var disruptions []*ctdf.Disruption
	for _, id := range s.order {
		disruption := s.disruptions[id]
		if filter.SectionID != "" && !disruption.Affects(filter.SectionID) {
			continue
		}
		if filter.Status != "" && disruption.Status != filter.Status {
			continue
		}
		disruptions = append(disruptions, disruption.Clone())
	}
	return disruptions
}

// ListActive returns disruptions that are ACTIVE or INVESTIGATING, optionally
// restricted to one section.
func (s *Store) ListActive(sectionID string) []*ctdf.Disruption {
	var active []*ctdf.Disruption
	for _, disruption := range s.List(Filter{SectionID: sectionID}) {
		if disruption.AppliesTo(false) {
			active = append(active, disruption)
		}
	}
	return active
}

// Snapshot is every disruption ever recorded, in creation order.
func (s *Store) Snapshot() []*ctdf.Disruption {
	return s.List(Filter{})
}

// Effects builds the capacity and speed view used by the scheduler. Extra
// disruptions are layered on top, as in what-if simulations.
func (s *Store) Effects(simulation bool, extra ...*ctdf.Disruption) *Effects {
	disruptions := append(s.Snapshot(), extra...)
	return NewEffects(s.track.Sections(), s.rules, disruptions, simulation)
}
