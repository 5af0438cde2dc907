package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travigo/railcontrol/pkg/config"
	"github.com/travigo/railcontrol/pkg/ctdf"
	"github.com/travigo/railcontrol/pkg/disruptions"
)

type staticTrains struct {
	mutex  sync.Mutex
	trains []*ctdf.Train
}

func (s *staticTrains) Snapshot() []*ctdf.Train {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var trains []*ctdf.Train
	for _, train := range s.trains {
		trains = append(trains, train.Clone())
	}
	return trains
}

type staticDisruptions struct {
	disruptions []*ctdf.Disruption
}

func (s *staticDisruptions) Effects(simulation bool, extra ...*ctdf.Disruption) *disruptions.Effects {
	all := append(append([]*ctdf.Disruption{}, s.disruptions...), extra...)
	return disruptions.NewEffects(sections, config.Default().Severities, all, simulation)
}

func testCoordinator(t *testing.T, cfg *config.Config, optimize func(Input) (*ctdf.Timetable, error)) *Coordinator {
	coordinator := NewCoordinator("2024-03-01", &staticTrains{trains: singleTrack()}, &staticDisruptions{}, sections, cfg)
	coordinator.Now = func() time.Time { return at(6, 0) }
	if optimize != nil {
		coordinator.optimize = optimize
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go coordinator.Run(ctx)

	return coordinator
}

func quietConfig() *config.Config {
	cfg := config.Default()
	cfg.TickInterval = 0
	cfg.CoalesceDelay = 0
	return cfg
}

func TestRecomputePublishesVersions(t *testing.T) {
	coordinator := testCoordinator(t, quietConfig(), nil)

	var mutex sync.Mutex
	var published [][2]uint64
	coordinator.OnPublish(func(previous *ctdf.Timetable, next *ctdf.Timetable) {
		mutex.Lock()
		defer mutex.Unlock()

		var previousVersion uint64
		if previous != nil {
			previousVersion = previous.Version
		}
		published = append(published, [2]uint64{previousVersion, next.Version})
	})

	assert.Equal(t, uint64(0), coordinator.Snapshot().Version)

	first, err := coordinator.Recompute(context.Background(), "test")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first.Version)
	assert.Equal(t, at(10, 20), entryFor(t, first, "T2", "JUC-LDH").OptimizedEntry)

	second, err := coordinator.Recompute(context.Background(), "test")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second.Version)
	assert.Equal(t, first.Entries, second.Entries)

	mutex.Lock()
	defer mutex.Unlock()
	assert.Equal(t, [][2]uint64{{0, 1}, {1, 2}}, published)
}

func TestFailedRunKeepsLastKnownGood(t *testing.T) {
	var fail atomic.Bool
	coordinator := testCoordinator(t, quietConfig(), func(input Input) (*ctdf.Timetable, error) {
		if fail.Load() {
			return nil, errors.New("solver exploded")
		}
		return Optimize(input)
	})

	good, err := coordinator.Recompute(context.Background(), "test")
	require.NoError(t, err)

	fail.Store(true)

	_, err = coordinator.Recompute(context.Background(), "test")

	var failure *ctdf.RecomputationFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, uint64(1), failure.Version)

	served := coordinator.Snapshot()
	assert.Equal(t, uint64(1), served.Version)
	assert.True(t, served.Degraded)
	assert.Contains(t, served.LastError, "solver exploded")
	assert.Equal(t, good.Entries, served.Entries)

	fail.Store(false)
	recovered, err := coordinator.Recompute(context.Background(), "test")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), recovered.Version)
	assert.False(t, recovered.Degraded)
}

func TestPanicBecomesRecomputationFailure(t *testing.T) {
	coordinator := testCoordinator(t, quietConfig(), func(Input) (*ctdf.Timetable, error) {
		panic("index out of range")
	})

	_, err := coordinator.Recompute(context.Background(), "test")

	var failure *ctdf.RecomputationFailure
	require.True(t, errors.As(err, &failure))
	assert.Contains(t, failure.Error(), "index out of range")
	assert.True(t, coordinator.Snapshot().Degraded)
}

func TestTriggersAreCoalesced(t *testing.T) {
	cfg := quietConfig()
	cfg.CoalesceDelay = 50 * time.Millisecond
	var runs atomic.Int32
	coordinator := testCoordinator(t, cfg, func(input Input) (*ctdf.Timetable, error) {
		runs.Add(1)
		return Optimize(input)
	})

	for range 20 {
		coordinator.Trigger("burst")
	}

	timetable, err := coordinator.Recompute(context.Background(), "test")
	require.NoError(t, err)

	assert.LessOrEqual(t, runs.Load(), int32(2))
	assert.Equal(t, uint64(runs.Load()), timetable.Version)
}

func TestRecomputeRespectsContext(t *testing.T) {
	coordinator := NewCoordinator("2024-03-01", &staticTrains{}, &staticDisruptions{}, sections, quietConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// nothing is running the coordinator
	_, err := coordinator.Recompute(ctx, "test")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSimulateDoesNotPublish(t *testing.T) {
	coordinator := testCoordinator(t, quietConfig(), nil)

	_, err := coordinator.Recompute(context.Background(), "test")
	require.NoError(t, err)

	simulated, err := coordinator.Simulate([]*ctdf.Disruption{{
		PrimaryIdentifier:   "what-if",
		Severity:            ctdf.SeverityCritical,
		Sections:            []string{"JUC-LDH"},
		StartTime:           at(9, 0),
		EstimatedResolution: at(11, 0),
	}})
	require.NoError(t, err)

	assert.Equal(t, at(11, 0), entryFor(t, simulated, "T1", "JUC-LDH").OptimizedEntry)
	assert.Equal(t, at(11, 20), entryFor(t, simulated, "T2", "JUC-LDH").OptimizedEntry)
	assert.Equal(t, uint64(1), simulated.Version)

	served := coordinator.Snapshot()
	assert.Equal(t, uint64(1), served.Version)
	assert.Equal(t, at(10, 0), entryFor(t, served, "T1", "JUC-LDH").OptimizedEntry)
}

func TestPinsAreApplied(t *testing.T) {
	coordinator := testCoordinator(t, quietConfig(), nil)
	coordinator.SetPin("JUC-LDH", []string{"T2", "T1"})

	timetable, err := coordinator.Recompute(context.Background(), "override")
	require.NoError(t, err)
	assert.Equal(t, at(10, 5), entryFor(t, timetable, "T2", "JUC-LDH").OptimizedEntry)

	assert.True(t, coordinator.ClearPin("JUC-LDH"))
	assert.False(t, coordinator.ClearPin("JUC-LDH"))

	timetable, err = coordinator.Recompute(context.Background(), "override cleared")
	require.NoError(t, err)
	assert.Equal(t, at(10, 20), entryFor(t, timetable, "T2", "JUC-LDH").OptimizedEntry)
}
