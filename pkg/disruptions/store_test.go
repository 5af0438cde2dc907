package disruptions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travigo/railcontrol/pkg/config"
	"github.com/travigo/railcontrol/pkg/ctdf"
	"github.com/travigo/railcontrol/pkg/track"
)

var noon = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type memoryRepository struct {
	mutex sync.Mutex
	saved map[string]*ctdf.Disruption
	fail  error
}

func (r *memoryRepository) Save(ctx context.Context, disruption *ctdf.Disruption) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.fail != nil {
		return r.fail
	}
	if r.saved == nil {
		r.saved = map[string]*ctdf.Disruption{}
	}
	r.saved[disruption.PrimaryIdentifier] = disruption.Clone()
	return nil
}

func (r *memoryRepository) LoadAll(ctx context.Context) ([]*ctdf.Disruption, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var disruptions []*ctdf.Disruption
	for _, disruption := range r.saved {
		disruptions = append(disruptions, disruption.Clone())
	}
	return disruptions, nil
}

func testModel(t *testing.T) *track.Model {
	model, err := track.New(track.TopologyData{
		Stations: []track.StationData{{ID: "A"}, {ID: "B"}, {ID: "C"}},
		Sections: []track.SectionData{
			{ID: "A-B", From: "A", To: "B", LengthKm: 20, MaxSpeedKmh: 60, Capacity: 2},
			{ID: "B-C", From: "B", To: "C", LengthKm: 20, MaxSpeedKmh: 60, Capacity: 1},
		},
	})
	require.NoError(t, err)
	return model
}

func testStore(t *testing.T, repository Repository) *Store {
	store, err := NewStore(testModel(t), config.Default(), repository)
	require.NoError(t, err)
	store.Now = func() time.Time { return noon }
	return store
}

func TestCreateAndResolve(t *testing.T) {
	repository := &memoryRepository{}
	store := testStore(t, repository)

	var transitions []Transition
	store.OnTransition(func(transition Transition) {
		transitions = append(transitions, transition)
	})

	id, err := store.Create(context.Background(), ctdf.Disruption{
		Type:                ctdf.DisruptionTypeSignalFailure,
		Severity:            ctdf.SeverityHigh,
		Sections:            []string{"A-B", "A-B"},
		Status:              ctdf.DisruptionStatusResolved,
		StartTime:           noon,
		EstimatedResolution: noon.Add(2 * time.Hour),
	})
	require.NoError(t, err)

	disruption, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, ctdf.DisruptionStatusActive, disruption.Status)
	assert.Equal(t, []string{"A-B"}, disruption.Sections)
	// severity_rank 3 * 25 + 1 section * 5
	assert.Equal(t, 80.0, disruption.PriorityScore)
	assert.Contains(t, repository.saved, id)

	assert.Len(t, store.ListActive(""), 1)
	assert.Len(t, store.ListActive("A-B"), 1)
	assert.Empty(t, store.ListActive("B-C"))

	require.NoError(t, store.Resolve(context.Background(), id, noon.Add(time.Hour)))

	disruption, err = store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, ctdf.DisruptionStatusResolved, disruption.Status)
	assert.Equal(t, noon.Add(time.Hour), disruption.ActualResolution)
	assert.Equal(t, ctdf.DisruptionStatusResolved, repository.saved[id].Status)
	assert.Empty(t, store.ListActive(""))

	err = store.Resolve(context.Background(), id, noon.Add(2*time.Hour))
	var alreadyResolved *ctdf.AlreadyResolvedError
	require.True(t, errors.As(err, &alreadyResolved))
	assert.Equal(t, id, alreadyResolved.DisruptionID)

	err = store.Resolve(context.Background(), "missing", noon)
	var notFound *ctdf.NotFoundError
	assert.True(t, errors.As(err, &notFound))

	require.Len(t, transitions, 2)
	assert.True(t, transitions[0].Created())
	assert.False(t, transitions[1].Created())
	assert.Equal(t, ctdf.DisruptionStatusActive, transitions[1].Previous.Status)
	assert.Equal(t, ctdf.DisruptionStatusResolved, transitions[1].Current.Status)

	// history is append-only
	assert.Len(t, store.Snapshot(), 1)
}

func TestCreateSimulated(t *testing.T) {
	store := testStore(t, nil)

	id, err := store.Create(context.Background(), ctdf.Disruption{
		Severity: ctdf.SeverityCritical,
		Sections: []string{"B-C"},
		Status:   ctdf.DisruptionStatusSimulated,
	})
	require.NoError(t, err)

	disruption, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, ctdf.DisruptionStatusSimulated, disruption.Status)
	assert.Equal(t, ctdf.DisruptionTypeOther, disruption.Type)
	assert.Equal(t, noon, disruption.StartTime)

	assert.Empty(t, store.ListActive(""))
	assert.Len(t, store.List(Filter{Status: ctdf.DisruptionStatusSimulated}), 1)

	err = store.Investigate(context.Background(), id)
	var validationErr *ctdf.ValidationError
	assert.True(t, errors.As(err, &validationErr))
}

func TestInvestigate(t *testing.T) {
	store := testStore(t, nil)

	id, err := store.Create(context.Background(), ctdf.Disruption{Severity: ctdf.SeverityLow, Sections: []string{"B-C"}})
	require.NoError(t, err)

	require.NoError(t, store.Investigate(context.Background(), id))
	disruption, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, ctdf.DisruptionStatusInvestigating, disruption.Status)
	assert.Len(t, store.ListActive("B-C"), 1)

	require.NoError(t, store.Resolve(context.Background(), id, time.Time{}))
	err = store.Investigate(context.Background(), id)
	var alreadyResolved *ctdf.AlreadyResolvedError
	assert.True(t, errors.As(err, &alreadyResolved))
}

func TestCreateValidation(t *testing.T) {
	store := testStore(t, nil)

	tests := []struct {
		name       string
		disruption ctdf.Disruption
		check      func(t *testing.T, err error)
	}{
		{
			name:       "bad severity",
			disruption: ctdf.Disruption{Severity: "EXTREME", Sections: []string{"A-B"}},
			check: func(t *testing.T, err error) {
				var validationErr *ctdf.ValidationError
				assert.True(t, errors.As(err, &validationErr))
			},
		},
		{
			name:       "unknown section",
			disruption: ctdf.Disruption{Severity: ctdf.SeverityLow, Sections: []string{"X-Y"}},
			check: func(t *testing.T, err error) {
				var notFound *ctdf.NotFoundError
				assert.True(t, errors.As(err, &notFound))
			},
		},
		{
			name:       "no sections",
			disruption: ctdf.Disruption{Severity: ctdf.SeverityLow},
			check: func(t *testing.T, err error) {
				var validationErr *ctdf.ValidationError
				assert.True(t, errors.As(err, &validationErr))
			},
		},
		{
			name:       "resolution before start",
			disruption: ctdf.Disruption{Severity: ctdf.SeverityLow, Sections: []string{"A-B"}, StartTime: noon, EstimatedResolution: noon.Add(-time.Hour)},
			check: func(t *testing.T, err error) {
				var validationErr *ctdf.ValidationError
				assert.True(t, errors.As(err, &validationErr))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Create(context.Background(), tt.disruption)
			require.Error(t, err)
			tt.check(t, err)
		})
	}

	assert.Empty(t, store.Snapshot())
}

func TestCreatePersistFailure(t *testing.T) {
	store := testStore(t, &memoryRepository{fail: errors.New("mongo down")})

	_, err := store.Create(context.Background(), ctdf.Disruption{Severity: ctdf.SeverityLow, Sections: []string{"A-B"}})
	require.Error(t, err)
	assert.Empty(t, store.Snapshot())
}

func TestLoadHistory(t *testing.T) {
	repository := &memoryRepository{}
	first := testStore(t, repository)

	id, err := first.Create(context.Background(), ctdf.Disruption{Severity: ctdf.SeverityMedium, Sections: []string{"A-B"}})
	require.NoError(t, err)

	second := testStore(t, repository)
	require.NoError(t, second.Load(context.Background()))

	disruption, err := second.Get(id)
	require.NoError(t, err)
	assert.Equal(t, ctdf.SeverityMedium, disruption.Severity)
}

func TestPriorityScorer(t *testing.T) {
	scorer, err := NewPriorityScorer(`affected_passengers > 1000 ? 100 : duration_minutes / 2`)
	require.NoError(t, err)

	score, err := scorer.Score(&ctdf.Disruption{StartTime: noon, EstimatedResolution: noon.Add(90 * time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, 45.0, score)

	score, err = scorer.Score(&ctdf.Disruption{Impact: ctdf.DisruptionImpact{AffectedPassengers: 5000}})
	require.NoError(t, err)
	assert.Equal(t, 100.0, score)

	_, err = NewPriorityScorer(`unknown_variable * 2`)
	assert.Error(t, err)
}
