package database

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	DisruptionsCollection = "disruptions"
	TimetablesCollection  = "timetables"
	OverridesCollection   = "overrides"
)

func createIndexes() {
	createDisruptionsIndexes()
	createTimetablesIndexes()
	createOverridesIndexes()
}

func createDisruptionsIndexes() {
	disruptionsCollection := GetCollection(DisruptionsCollection)
	_, err := disruptionsCollection.Indexes().CreateMany(context.Background(), []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "primaryidentifier", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "sections", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "creationdatetime", Value: 1}},
		},
	}, options.CreateIndexes())
	if err != nil {
		log.Error().Err(err).Msg("Creating Index")
	}
}

func createTimetablesIndexes() {
	timetablesCollection := GetCollection(TimetablesCollection)
	_, err := timetablesCollection.Indexes().CreateMany(context.Background(), []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "servicedate", Value: 1},
				{Key: "version", Value: 1},
			},
		},
		{
			Keys:    bson.D{{Key: "generatedat", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(7 * 24 * 3600), // Expire after a week
		},
	}, options.CreateIndexes())
	if err != nil {
		log.Error().Err(err).Msg("Creating Index")
	}
}

func createOverridesIndexes() {
	overridesCollection := GetCollection(OverridesCollection)
	_, err := overridesCollection.Indexes().CreateMany(context.Background(), []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "sectionid", Value: 1},
				{Key: "submittedat", Value: 1},
			},
		},
	}, options.CreateIndexes())
	if err != nil {
		log.Error().Err(err).Msg("Creating Index")
	}
}
