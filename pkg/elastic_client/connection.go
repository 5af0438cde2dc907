// Package elastic_client holds the process wide Elasticsearch connection
// used to index railcontrol events. Documents are queued on a bulk indexer
// and flushed in the background.
package elastic_client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esutil"
	"github.com/rs/zerolog/log"
	"github.com/travigo/railcontrol/pkg/util"
)

var Client *elasticsearch.Client
var bulkIndexer esutil.BulkIndexer

const defaultFlushInterval = 15 * time.Second

var ErrNotConfigured = errors.New("RAILCONTROL_ELASTICSEARCH_ADDRESS is not set")

type Config struct {
	Address  string
	Username string
	Password string
	// Insecure skips TLS verification, for self signed development clusters.
	Insecure      bool
	FlushInterval time.Duration
}

func ConfigFromEnv() (Config, error) {
	env := util.GetEnvironmentVariables()

	config := Config{
		Address:       env["RAILCONTROL_ELASTICSEARCH_ADDRESS"],
		Username:      env["RAILCONTROL_ELASTICSEARCH_USERNAME"],
		Password:      env["RAILCONTROL_ELASTICSEARCH_PASSWORD"],
		Insecure:      env["RAILCONTROL_ELASTICSEARCH_INSECURE"] == "YES",
		FlushInterval: defaultFlushInterval,
	}

	if interval := env["RAILCONTROL_ELASTICSEARCH_FLUSH_INTERVAL"]; interval != "" {
		parsed, err := time.ParseDuration(interval)
		if err != nil {
			return config, err
		}
		config.FlushInterval = parsed
	}

	return config, nil
}

// Connect sets up the client from the environment. When no address is set it
// does nothing, unless required.
func Connect(required bool) error {
	config, err := ConfigFromEnv()
	if err != nil {
		return err
	}

	if config.Address == "" {
		if required {
			return ErrNotConfigured
		}
		log.Info().Msg("Skipping Elasticsearch setup, events are not indexed")
		return nil
	}

	return ConnectWithConfig(config)
}

func ConnectWithConfig(config Config) error {
	tp := http.DefaultTransport.(*http.Transport).Clone()
	if config.Insecure {
		tp.TLSClientConfig.InsecureSkipVerify = true
	}

	retryBackoff := backoff.NewExponentialBackOff()

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{config.Address},
		Username:  config.Username,
		Password:  config.Password,
		Transport: tp,

		RetryOnStatus: []int{502, 503, 504, 429},

		RetryBackoff: func(i int) time.Duration {
			if i == 1 {
				retryBackoff.Reset()
			}
			return retryBackoff.NextBackOff()
		},
		MaxRetries: 5,
	})
	if err != nil {
		return err
	}

	if _, err := es.Info(); err != nil {
		return err
	}

	indexer, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Client:        es,
		FlushInterval: config.FlushInterval,
		OnError: func(_ context.Context, err error) {
			log.Error().Err(err).Msg("Elasticsearch bulk request failed")
		},
	})
	if err != nil {
		return err
	}

	Client = es
	bulkIndexer = indexer

	log.Info().
		Str("address", config.Address).
		Str("flush_interval", config.FlushInterval.String()).
		Msg("Elasticsearch client setup")

	return nil
}

func Connected() bool {
	return Client != nil && bulkIndexer != nil
}

// IndexRequest queues document for indexing. It is a no-op when
// Elasticsearch is not connected.
func IndexRequest(indexName string, document io.ReadSeeker) error {
	if !Connected() {
		return nil
	}

	return bulkIndexer.Add(
		context.Background(),
		esutil.BulkIndexerItem{
			Index:  indexName,
			Action: "index",
			Body:   document,
			OnFailure: func(ctx context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
				if err != nil {
					log.Error().Err(err).Str("index", indexName).Msg("Failed to index document")
				} else {
					log.Error().Str("index", indexName).Str("type", res.Error.Type).Str("reason", res.Error.Reason).Msg("Failed to index document")
				}
			},
		},
	)
}

type IndexStats struct {
	Added   uint64 `json:"added"`
	Indexed uint64 `json:"indexed"`
	Failed  uint64 `json:"failed"`
}

// Stats reports the bulk indexer counters, ok is false when not connected.
func Stats() (IndexStats, bool) {
	if !Connected() {
		return IndexStats{}, false
	}

	stats := bulkIndexer.Stats()
	return IndexStats{
		Added:   stats.NumAdded,
		Indexed: stats.NumIndexed,
		Failed:  stats.NumFailed,
	}, true
}

// Close flushes whatever is still queued and stops the indexer.
func Close(ctx context.Context) error {
	if bulkIndexer == nil {
		return nil
	}
	return bulkIndexer.Close(ctx)
}
