// Package consumer runs batch consumers on an rmq queue together with a
// small HTTP server exposing queue stats and backend health.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/adjust/rmq/v5"
	"github.com/rs/zerolog/log"
	"github.com/travigo/railcontrol/pkg/redis_client"
	"github.com/travigo/railcontrol/pkg/util"
)

const defaultStatsAddress = ":3333"

type RedisConsumer struct {
	QueueName string

	NumberConsumers int
	BatchSize       int

	Timeout time.Duration

	Consumer rmq.BatchConsumer

	// Connection defaults to the shared redis_client queue connection.
	Connection rmq.Connection
	// StatsAddress defaults to RAILCONTROL_CONSUMER_STATS_ADDRESS or :3333.
	// "-" disables the stats server.
	StatsAddress string
}

// Run starts the consumers and blocks until ctx is done, then waits for
// in-flight batches to finish.
func (c *RedisConsumer) Run(ctx context.Context) error {
	connection := c.Connection
	if connection == nil {
		connection = redis_client.QueueConnection
	}
	if connection == nil {
		return errors.New("redis queue connection is not set up")
	}

	if err := c.startConsumers(connection); err != nil {
		return err
	}

	server := c.statsServer(connection)
	if server != nil {
		go func() {
			log.Info().Msgf("Stats server listening on http://localhost%s/%s/stats", server.Addr, c.QueueName)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("Stats server stopped")
			}
		}()
	}

	<-ctx.Done()
	log.Info().Str("queue", c.QueueName).Msg("Stopping consumers")

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to stop stats server")
		}
	}

	<-connection.StopAllConsuming()

	return nil
}

func (c *RedisConsumer) startConsumers(connection rmq.Connection) error {
	log.Info().Str("queue", c.QueueName).Int("consumers", c.NumberConsumers).Msg("Starting consumers")

	queue, err := connection.OpenQueue(c.QueueName)
	if err != nil {
		return fmt.Errorf("opening queue %s: %w", c.QueueName, err)
	}
	if err := queue.StartConsuming(int64(c.NumberConsumers*c.BatchSize), time.Second); err != nil {
		return fmt.Errorf("consuming queue %s: %w", c.QueueName, err)
	}

	for i := 0; i < c.NumberConsumers; i++ {
		tag := fmt.Sprintf("%s-%d", c.QueueName, i)
		if _, err := queue.AddBatchConsumer(tag, int64(c.BatchSize), c.Timeout, c.Consumer); err != nil {
			return fmt.Errorf("adding consumer %s: %w", tag, err)
		}
	}

	return nil
}

func (c *RedisConsumer) statsServer(connection rmq.Connection) *http.Server {
	address := c.StatsAddress
	if address == "" {
		address = defaultStatsAddress
		if env := util.GetEnvironmentVariables(); env["RAILCONTROL_CONSUMER_STATS_ADDRESS"] != "" {
			address = env["RAILCONTROL_CONSUMER_STATS_ADDRESS"]
		}
	}
	if address == "-" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(fmt.Sprintf("/%s/stats", c.QueueName), NewStatsHandler(connection))
	mux.Handle("/health", NewHealthHandler())

	return &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
