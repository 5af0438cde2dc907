// Package dispatcher runs the scheduling engine for every service day: one
// train registry and scheduler per day over a shared track model and
// disruption store, with published timetables fed to the event emitter.
package dispatcher

import (
	"context"
	"io"
	"maps"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/travigo/railcontrol/pkg/config"
	"github.com/travigo/railcontrol/pkg/ctdf"
	"github.com/travigo/railcontrol/pkg/disruptions"
	"github.com/travigo/railcontrol/pkg/events"
	"github.com/travigo/railcontrol/pkg/overrides"
	"github.com/travigo/railcontrol/pkg/registry"
	"github.com/travigo/railcontrol/pkg/scheduler"
	"github.com/travigo/railcontrol/pkg/stats"
	"github.com/travigo/railcontrol/pkg/track"
	"github.com/travigo/railcontrol/pkg/util"
)

type Options struct {
	// Archive stores every published timetable when set.
	Archive Archive
	// History stores submitted overrides, in memory when nil.
	History overrides.History
}

type Dispatcher struct {
	config  *config.Config
	track   *track.Model
	store   *disruptions.Store
	bus     *events.Bus
	emitter *events.Emitter
	archive Archive

	Overrides *overrides.Gateway

	// Now is the clock handed to every day's scheduler.
	Now func() time.Time

	mutex sync.RWMutex
	ctx   context.Context
	days  map[string]*serviceDay
}

type serviceDay struct {
	registry    *registry.Registry
	coordinator *scheduler.Coordinator
}

// Simulation compares a section as currently scheduled with the same
// section under hypothetical disruptions.
type Simulation struct {
	Entries   []ctdf.ScheduleEntry `json:"entries"`
	Conflicts []ctdf.Conflict      `json:"conflicts"`

	Current   stats.SectionStats `json:"current"`
	Simulated stats.SectionStats `json:"simulated"`
}

func New(cfg *config.Config, model *track.Model, store *disruptions.Store, options Options) *Dispatcher {
	bus := events.NewBus()

	dispatcher := &Dispatcher{
		config:  cfg,
		track:   model,
		store:   store,
		bus:     bus,
		emitter: events.NewEmitter(bus),
		archive: options.Archive,
		Now:     time.Now,
		days:    map[string]*serviceDay{},
	}
	dispatcher.Overrides = overrides.NewGateway(model, dispatcher, options.History)

	store.OnTransition(dispatcher.disruptionChanged)

	return dispatcher
}

// Start runs the scheduler of every known day, and of days created later,
// until ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.ctx = ctx
	for _, day := range d.days {
		go day.coordinator.Run(ctx)
	}

	go func() {
		<-ctx.Done()
		d.bus.Close()
	}()
}

func (d *Dispatcher) Bus() *events.Bus {
	return d.bus
}

func (d *Dispatcher) Track() *track.Model {
	return d.track
}

func (d *Dispatcher) Disruptions() *disruptions.Store {
	return d.store
}

func (d *Dispatcher) Config() *config.Config {
	return d.config
}

// Today is the current service date in the configured timezone.
func (d *Dispatcher) Today() string {
	return util.ServiceDate(d.Now().In(d.config.Location()))
}

func (d *Dispatcher) Dates() []string {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	return slices.Sorted(maps.Keys(d.days))
}

func (d *Dispatcher) Registry(date string) (*registry.Registry, error) {
	day, err := d.day(date)
	if err != nil {
		return nil, err
	}
	return day.registry, nil
}

func (d *Dispatcher) Coordinator(date string) (*scheduler.Coordinator, error) {
	day, err := d.day(date)
	if err != nil {
		return nil, err
	}
	return day.coordinator, nil
}

func (d *Dispatcher) day(date string) (*serviceDay, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	day, ok := d.days[date]
	if !ok {
		return nil, &ctdf.NotFoundError{Kind: "service day", ID: date}
	}
	return day, nil
}

func (d *Dispatcher) openDay(date string) (*serviceDay, error) {
	if _, err := util.ParseServiceDate(date, d.config.Location()); err != nil {
		return nil, &ctdf.ValidationError{Field: "service_date", Reason: err.Error()}
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()

	if day, ok := d.days[date]; ok {
		return day, nil
	}

	trains := registry.New(date, d.track, d.config)
	coordinator := scheduler.NewCoordinator(date, trains, d.store, d.track.Sections(), d.config)
	coordinator.Now = func() time.Time { return d.Now() }

	trains.OnChange(func(trainID string, sections []string, reason string) {
		coordinator.Trigger(reason)
	})
	coordinator.OnPublish(func(previous *ctdf.Timetable, next *ctdf.Timetable) {
		d.emitter.TimetablePublished(previous, next)
		d.archiveTimetable(next)
	})

	day := &serviceDay{registry: trains, coordinator: coordinator}
	d.days[date] = day

	if d.ctx != nil {
		go coordinator.Run(d.ctx)
	}

	log.Info().Str("date", date).Msg("Opened service day")

	return day, nil
}

func (d *Dispatcher) archiveTimetable(timetable *ctdf.Timetable) {
	if d.archive == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := d.archive.Save(ctx, timetable); err != nil {
			log.Error().Err(err).
				Str("date", timetable.ServiceDate).
				Uint64("version", timetable.Version).
				Msg("Failed to archive timetable")
		}
	}()
}

func (d *Dispatcher) disruptionChanged(transition disruptions.Transition) {
	d.emitter.DisruptionChanged(transition)

	if transition.Current.Status == ctdf.DisruptionStatusSimulated {
		return
	}

	d.mutex.RLock()
	defer d.mutex.RUnlock()

	reason := "disruption " + transition.Current.PrimaryIdentifier
	for _, day := range d.days {
		day.coordinator.Trigger(reason)
	}
}

// RegisterTrain adds a train to its service day, opening the day if needed.
// The day is taken from the TrainSpec date, falling back to the planned departure.
func (d *Dispatcher) RegisterTrain(spec registry.TrainSpec) (*ctdf.Train, error) {
	date := spec.ServiceDate
	if date == "" {
		departure := spec.Departure
		if len(spec.Schedule) > 0 {
			departure = spec.Schedule[0].Entry
		}
		if departure.IsZero() {
			return nil, &ctdf.ValidationError{Field: "departure", Reason: "a departure or schedule is required"}
		}
		date = util.ServiceDate(departure.In(d.config.Location()))
	}

	day, err := d.openDay(date)
	if err != nil {
		return nil, err
	}

	id, err := day.registry.RegisterTrain(spec)
	if err != nil {
		return nil, err
	}
	return day.registry.GetTrain(id)
}

// LoadPlan registers the trains of a service plan CSV for the date.
func (d *Dispatcher) LoadPlan(date string, reader io.Reader) (int, error) {
	day, err := d.openDay(date)
	if err != nil {
		return 0, err
	}
	return day.registry.LoadCSV(reader, d.config.Location())
}

func (d *Dispatcher) GetTrain(date string, trainID string) (*ctdf.Train, error) {
	day, err := d.day(date)
	if err != nil {
		return nil, err
	}
	return day.registry.GetTrain(trainID)
}

func (d *Dispatcher) ReportDelay(date string, trainID string, minutes int) error {
	day, err := d.day(date)
	if err != nil {
		return err
	}
	return day.registry.ReportDelay(trainID, minutes, d.Now())
}

func (d *Dispatcher) Timetable(date string) (*ctdf.Timetable, error) {
	day, err := d.day(date)
	if err != nil {
		return nil, err
	}
	return day.coordinator.Snapshot(), nil
}

// Schedule returns the served timetable and its entries on the section.
func (d *Dispatcher) Schedule(date string, sectionID string) (*ctdf.Timetable, []ctdf.ScheduleEntry, error) {
	if _, err := d.track.GetSection(sectionID); err != nil {
		return nil, nil, err
	}

	timetable, err := d.Timetable(date)
	if err != nil {
		return nil, nil, err
	}

	entries := timetable.ForSection(sectionID)
	if entries == nil {
		entries = []ctdf.ScheduleEntry{}
	}
	return timetable, entries, nil
}

func (d *Dispatcher) Conflicts(date string, sectionID string) (*ctdf.Timetable, []ctdf.Conflict, error) {
	section, err := d.track.GetSection(sectionID)
	if err != nil {
		return nil, nil, err
	}

	timetable, err := d.Timetable(date)
	if err != nil {
		return nil, nil, err
	}

	conflicts := timetable.ConflictsFor(section)
	if conflicts == nil {
		conflicts = []ctdf.Conflict{}
	}
	return timetable, conflicts, nil
}

func (d *Dispatcher) Metrics(date string, sectionID string) (*stats.SectionStats, error) {
	section, err := d.track.GetSection(sectionID)
	if err != nil {
		return nil, err
	}

	timetable, err := d.Timetable(date)
	if err != nil {
		return nil, err
	}

	sectionStats := stats.Calculate(timetable, section, d.store.ListActive(sectionID))
	return &sectionStats, nil
}

// Simulate runs the day's scheduler with hypothetical disruptions layered
// on the real ones. Nothing is stored or published.
func (d *Dispatcher) Simulate(date string, sectionID string, hypothetical []ctdf.Disruption) (*Simulation, error) {
	section, err := d.track.GetSection(sectionID)
	if err != nil {
		return nil, err
	}

	day, err := d.day(date)
	if err != nil {
		return nil, err
	}

	extra := make([]*ctdf.Disruption, 0, len(hypothetical))
	for i := range hypothetical {
		disruption := hypothetical[i].Clone()
		if err := d.store.Validate(disruption); err != nil {
			return nil, err
		}
		if disruption.PrimaryIdentifier == "" {
			disruption.PrimaryIdentifier = "simulated-" + strconv.Itoa(i+1)
		}
		extra = append(extra, disruption)
	}

	current := day.coordinator.Snapshot()
	simulated, err := day.coordinator.Simulate(extra)
	if err != nil {
		return nil, err
	}

	active := d.store.ListActive(sectionID)
	for _, disruption := range extra {
		// hypothetical disruptions are alerted on as if they had happened
		alerted := disruption.Clone()
		alerted.Status = ctdf.DisruptionStatusActive
		active = append(active, alerted)
	}

	simulation := &Simulation{
		Entries:   simulated.ForSection(sectionID),
		Conflicts: simulated.ConflictsFor(section),
		Current:   stats.Calculate(current, section, d.store.ListActive(sectionID)),
		Simulated: stats.Calculate(simulated, section, active),
	}
	if simulation.Entries == nil {
		simulation.Entries = []ctdf.ScheduleEntry{}
	}
	if simulation.Conflicts == nil {
		simulation.Conflicts = []ctdf.Conflict{}
	}

	return simulation, nil
}
