package dispatcher

import (
	"context"

	"github.com/travigo/railcontrol/pkg/ctdf"
	"go.mongodb.org/mongo-driver/mongo"
)

// Archive keeps every published timetable version.
type Archive interface {
	Save(ctx context.Context, timetable *ctdf.Timetable) error
}

type MongoArchive struct {
	Collection *mongo.Collection
}

func (a *MongoArchive) Save(ctx context.Context, timetable *ctdf.Timetable) error {
	_, err := a.Collection.InsertOne(ctx, timetable)
	return err
}
