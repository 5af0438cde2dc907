package database

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/travigo/railcontrol/pkg/util"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoInstance struct {
	Client   *mongo.Client
	Database *mongo.Database
}

var MongoGlobalInstance *MongoInstance

const defaultMongoDatabase = "railcontrol"

// Connect opens the MongoDB connection when RAILCONTROL_MONGODB_CONNECTION is
// set. Without it the process keeps disruption history in memory only.
func Connect() error {
	env := util.GetEnvironmentVariables()

	connectionString := env["RAILCONTROL_MONGODB_CONNECTION"]
	if connectionString == "" {
		log.Info().Msg("Skipping MongoDB setup")
		return nil
	}

	dbName := defaultMongoDatabase
	if env["RAILCONTROL_MONGODB_DATABASE"] != "" {
		dbName = env["RAILCONTROL_MONGODB_DATABASE"]
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(connectionString))
	if err != nil {
		return err
	}

	err = client.Ping(ctx, nil)
	if err != nil {
		return err
	}

	MongoGlobalInstance = &MongoInstance{
		Client:   client,
		Database: client.Database(dbName),
	}

	createIndexes()

	log.Info().Str("database", dbName).Msg("MongoDB client setup")

	return nil
}

func Connected() bool {
	return MongoGlobalInstance != nil
}

func GetCollection(collectionName string) *mongo.Collection {
	return MongoGlobalInstance.Database.Collection(collectionName)
}
