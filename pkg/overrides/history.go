package overrides

import (
	"context"
	"slices"
	"sync"

	"github.com/travigo/railcontrol/pkg/ctdf"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// History is the audit trail of submitted overrides.
type History interface {
	Save(ctx context.Context, override *ctdf.Override) error
	// List returns the overrides ever submitted for the section, oldest first.
	List(ctx context.Context, sectionID string) ([]*ctdf.Override, error)
}

type MemoryHistory struct {
	mutex     sync.Mutex
	overrides []*ctdf.Override
}

func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{}
}

func (h *MemoryHistory) Save(_ context.Context, override *ctdf.Override) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	stored := cloneOverride(override)
	for i, existing := range h.overrides {
		if existing.PrimaryIdentifier == override.PrimaryIdentifier {
			h.overrides[i] = stored
			return nil
		}
	}
	h.overrides = append(h.overrides, stored)
	return nil
}

func (h *MemoryHistory) List(_ context.Context, sectionID string) ([]*ctdf.Override, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	var overrides []*ctdf.Override
	for _, override := range h.overrides {
		if override.SectionID == sectionID {
			overrides = append(overrides, cloneOverride(override))
		}
	}
	return overrides, nil
}

type MongoHistory struct {
	Collection *mongo.Collection
}

func (h *MongoHistory) Save(ctx context.Context, override *ctdf.Override) error {
	filter := bson.M{"primaryidentifier": override.PrimaryIdentifier}
	opts := options.Replace().SetUpsert(true)

	_, err := h.Collection.ReplaceOne(ctx, filter, override, opts)
	return err
}

func (h *MongoHistory) List(ctx context.Context, sectionID string) ([]*ctdf.Override, error) {
	opts := options.Find().SetSort(bson.D{{Key: "submittedat", Value: 1}})

	cursor, err := h.Collection.Find(ctx, bson.M{"sectionid": sectionID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var overrides []*ctdf.Override
	if err := cursor.All(ctx, &overrides); err != nil {
		return nil, err
	}
	return overrides, nil
}

func cloneOverride(override *ctdf.Override) *ctdf.Override {
	clone := *override
	clone.Order = slices.Clone(override.Order)
	return &clone
}
