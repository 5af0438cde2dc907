// Package redis_client holds the shared redis client and the rmq queue
// connection built on top of it.
package redis_client

import (
	"context"
	"fmt"
	"strconv"

	"github.com/adjust/rmq/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/travigo/railcontrol/pkg/util"
)

var Client *redis.Client
var QueueConnection rmq.Connection

const queueConnectionTag = "railcontrol"

const defaultConnectionAddress = "localhost:6379"

// Configured reports whether a redis address is set in the environment.
func Configured() bool {
	return util.GetEnvironmentVariables()["RAILCONTROL_REDIS_ADDRESS"] != ""
}

// OptionsFromEnv reads RAILCONTROL_REDIS_ADDRESS, _PASSWORD and _DATABASE.
func OptionsFromEnv() (*redis.Options, error) {
	env := util.GetEnvironmentVariables()

	options := &redis.Options{
		Addr:     defaultConnectionAddress,
		Password: env["RAILCONTROL_REDIS_PASSWORD"],
	}

	if env["RAILCONTROL_REDIS_ADDRESS"] != "" {
		options.Addr = env["RAILCONTROL_REDIS_ADDRESS"]
	}

	if database := env["RAILCONTROL_REDIS_DATABASE"]; database != "" {
		n, err := strconv.Atoi(database)
		if err != nil {
			return nil, fmt.Errorf("RAILCONTROL_REDIS_DATABASE: %w", err)
		}
		options.DB = n
	}

	return options, nil
}

func Connect() error {
	options, err := OptionsFromEnv()
	if err != nil {
		return err
	}

	client := redis.NewClient(options)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return fmt.Errorf("connecting to redis at %s: %w", options.Addr, err)
	}

	queueConnection, err := rmq.OpenConnectionWithRedisClient(queueConnectionTag, client, nil)
	if err != nil {
		return err
	}

	Client = client
	QueueConnection = queueConnection

	log.Info().Str("address", options.Addr).Int("database", options.DB).Msg("Redis client setup")

	return nil
}
