package scheduler

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/travigo/railcontrol/pkg/config"
	"github.com/travigo/railcontrol/pkg/ctdf"
	"github.com/travigo/railcontrol/pkg/disruptions"
)

type TrainSource interface {
	Snapshot() []*ctdf.Train
}

type EffectsSource interface {
	Effects(simulation bool, extra ...*ctdf.Disruption) *disruptions.Effects
}

// Observer is called after every publish with the replaced and the new
// timetable. previous is nil for the first version.
type Observer func(previous *ctdf.Timetable, next *ctdf.Timetable)

// Coordinator is the single writer of one service day's timetable. Callers
// ask for recomputation; runs happen one at a time on the Run goroutine and
// every successful run publishes a new version.
type Coordinator struct {
	serviceDate string
	// generation tells this coordinator's versions apart from those of
	// earlier processes or other replicas.
	generation string
	trains      TrainSource
	effects     EffectsSource
	sections    []*ctdf.Section
	config      *config.Config

	Now      func() time.Time
	optimize func(Input) (*ctdf.Timetable, error)

	triggers chan struct{}

	mutex     sync.RWMutex
	current   *ctdf.Timetable
	version   uint64
	lastError error
	pending   []string
	pins      map[string][]string
	observers []Observer

	started   uint64
	completed uint64
	done      chan struct{}
}

func NewCoordinator(serviceDate string, trains TrainSource, effects EffectsSource, sections []*ctdf.Section, cfg *config.Config) *Coordinator {
	return &Coordinator{
		serviceDate: serviceDate,
		generation:  uuid.NewString(),
		trains:      trains,
		effects:     effects,
		sections:    sections,
		config:      cfg,
		Now:         time.Now,
		optimize:    Optimize,
		triggers:    make(chan struct{}, 1),
		pins:        map[string][]string{},
		done:        make(chan struct{}),
	}
}

func (c *Coordinator) ServiceDate() string {
	return c.serviceDate
}

func (c *Coordinator) OnPublish(observer Observer) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.observers = append(c.observers, observer)
}

// Trigger queues a recomputation and returns immediately. A queued run that
// has not started yet absorbs any further triggers.
func (c *Coordinator) Trigger(reason string) {
	c.mutex.Lock()
	c.pending = append(c.pending, reason)
	c.mutex.Unlock()

	select {
	case c.triggers <- struct{}{}:
	default:
	}
}

// Recompute triggers a run and waits for a run that started after the call
// to finish. It returns the timetable being served afterwards and the run's
// failure, if any.
func (c *Coordinator) Recompute(ctx context.Context, reason string) (*ctdf.Timetable, error) {
	c.mutex.RLock()
	target := c.started + 1
	done := c.done
	c.mutex.RUnlock()

	c.Trigger(reason)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-done:
		}

		c.mutex.RLock()
		if c.completed >= target {
			err := c.lastError
			c.mutex.RUnlock()
			return c.Snapshot(), err
		}
		done = c.done
		c.mutex.RUnlock()
	}
}

// Snapshot returns the timetable being served. It is shared between readers
// and must not be modified.
func (c *Coordinator) Snapshot() *ctdf.Timetable {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if c.current == nil {
		return &ctdf.Timetable{
			ServiceDate: c.serviceDate,
			Generation:  c.generation,
			Entries:     []ctdf.ScheduleEntry{},
			Degraded:    c.lastError != nil,
			LastError:   errorString(c.lastError),
		}
	}

	if c.lastError == nil {
		return c.current
	}

	stale := *c.current
	stale.Degraded = true
	stale.LastError = c.lastError.Error()
	return &stale
}

// Status reports the served version and the last run failure, if the
// timetable is currently degraded.
func (c *Coordinator) Status() (uint64, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return c.version, c.lastError
}

func (c *Coordinator) SetPin(sectionID string, order []string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.pins[sectionID] = slices.Clone(order)
}

// ClearPin removes the pinned order on the section and reports whether one
// was set.
func (c *Coordinator) ClearPin(sectionID string) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_, ok := c.pins[sectionID]
	delete(c.pins, sectionID)
	return ok
}

func (c *Coordinator) Pins() map[string][]string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	pins := make(map[string][]string, len(c.pins))
	for sectionID, order := range c.pins {
		pins[sectionID] = slices.Clone(order)
	}
	return pins
}

// Run processes triggers until ctx is cancelled. A clock trigger fires every
// tick interval so that trains are seen to depart as time passes.
func (c *Coordinator) Run(ctx context.Context) {
	var tick <-chan time.Time
	if c.config.TickInterval > 0 {
		ticker := time.NewTicker(c.config.TickInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			c.Trigger("clock")
		case <-c.triggers:
			if c.config.CoalesceDelay > 0 {
				timer := time.NewTimer(c.config.CoalesceDelay)
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
			}

			select {
			case <-c.triggers:
			default:
			}

			c.run()
		}
	}
}

func (c *Coordinator) run() {
	c.mutex.Lock()
	c.started++
	previous := c.current
	reasons := c.pending
	c.pending = nil
	c.mutex.Unlock()

	startTime := time.Now()
	timetable, err := c.compute(previous, false, nil)

	c.mutex.Lock()
	if err != nil {
		failure := &ctdf.RecomputationFailure{ServiceDate: c.serviceDate, Version: c.version, Err: err}
		c.lastError = failure

		log.Error().Err(err).
			Str("date", c.serviceDate).
			Uint64("version", c.version).
			Str("reasons", strings.Join(reasons, ",")).
			Msg("Timetable recomputation failed, serving last known good version")
	} else {
		c.version++
		timetable.Version = c.version
		timetable.Generation = c.generation
		c.current = timetable
		c.lastError = nil

		log.Info().
			Str("date", c.serviceDate).
			Uint64("version", c.version).
			Int("entries", len(timetable.Entries)).
			Int("conflicts", len(timetable.Conflicts)).
			Int("unresolved", len(timetable.Unresolved)).
			Str("reasons", strings.Join(reasons, ",")).
			Str("length", time.Since(startTime).String()).
			Msg("Published timetable")
	}
	c.completed++
	close(c.done)
	c.done = make(chan struct{})
	observers := slices.Clone(c.observers)
	c.mutex.Unlock()

	if err != nil {
		return
	}
	for _, observer := range observers {
		observer(previous, timetable)
	}
}

// Simulate runs the optimiser with the hypothetical disruptions applied on
// top of the real ones. The result is not published.
func (c *Coordinator) Simulate(extra []*ctdf.Disruption) (*ctdf.Timetable, error) {
	hypothetical := make([]*ctdf.Disruption, 0, len(extra))
	for _, disruption := range extra {
		clone := disruption.Clone()
		clone.Status = ctdf.DisruptionStatusSimulated
		clone.StartTime = clone.StartTime.Truncate(time.Minute)
		hypothetical = append(hypothetical, clone)
	}

	previous := c.Snapshot()
	timetable, err := c.compute(previous, true, hypothetical)
	if err != nil {
		return nil, err
	}
	timetable.Version = previous.Version
	timetable.Generation = previous.Generation
	return timetable, nil
}

func (c *Coordinator) compute(previous *ctdf.Timetable, simulation bool, extra []*ctdf.Disruption) (timetable *ctdf.Timetable, err error) {
	defer func() {
		if r := recover(); r != nil {
			timetable = nil
			err = fmt.Errorf("optimiser panicked: %v", r)
		}
	}()

	c.mutex.RLock()
	pins := maps.Clone(c.pins)
	c.mutex.RUnlock()

	return c.optimize(Input{
		ServiceDate:    c.serviceDate,
		Now:            c.Now(),
		Trains:         c.trains.Snapshot(),
		Sections:       c.sections,
		Effects:        c.effects.Effects(simulation, extra...),
		Pins:           pins,
		Previous:       previous,
		Horizon:        c.config.Horizon(),
		MaxConcurrency: c.config.MaxConcurrentComponents,
	})
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
