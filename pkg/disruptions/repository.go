package disruptions

import (
	"context"

	"github.com/travigo/railcontrol/pkg/ctdf"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Repository interface {
	Save(ctx context.Context, disruption *ctdf.Disruption) error
	LoadAll(ctx context.Context) ([]*ctdf.Disruption, error)
}

type MongoRepository struct {
	Collection *mongo.Collection
}

func (r *MongoRepository) Save(ctx context.Context, disruption *ctdf.Disruption) error {
	filter := bson.M{"primaryidentifier": disruption.PrimaryIdentifier}
	opts := options.Replace().SetUpsert(true)

	_, err := r.Collection.ReplaceOne(ctx, filter, disruption, opts)
	return err
}

func (r *MongoRepository) LoadAll(ctx context.Context) ([]*ctdf.Disruption, error) {
	opts := options.Find().SetSort(bson.D{{Key: "creationdatetime", Value: 1}})

	cursor, err := r.Collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var disruptions []*ctdf.Disruption
	if err := cursor.All(ctx, &disruptions); err != nil {
		return nil, err
	}
	return disruptions, nil
}
