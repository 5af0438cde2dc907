package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/adjust/rmq/v5"
	"github.com/travigo/railcontrol/pkg/ctdf"
	"github.com/travigo/railcontrol/pkg/elastic_client"
)

const QueueName = "events-queue"

type QueueOpener interface {
	OpenQueue(name string) (rmq.Queue, error)
}

// QueuePublisher forwards events onto the redis queue consumed by
// `railcontrol events run`.
type QueuePublisher struct {
	queue rmq.Queue
}

func NewQueuePublisher(connection QueueOpener) (*QueuePublisher, error) {
	queue, err := connection.OpenQueue(QueueName)
	if err != nil {
		return nil, err
	}
	return &QueuePublisher{queue: queue}, nil
}

func (p *QueuePublisher) Handle(_ context.Context, event *ctdf.Event) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.queue.PublishBytes(eventBytes)
}

// ElasticSink indexes every event into a monthly events index.
type ElasticSink struct {
	IndexPrefix string
	index       func(indexName string, document *bytes.Reader) error
}

func NewElasticSink() *ElasticSink {
	return &ElasticSink{
		IndexPrefix: "railcontrol-events",
		index: func(indexName string, document *bytes.Reader) error {
			return elastic_client.IndexRequest(indexName, document)
		},
	}
}

func (s *ElasticSink) IndexName(event *ctdf.Event) string {
	return fmt.Sprintf("%s-%d-%02d", s.IndexPrefix, event.Timestamp.Year(), event.Timestamp.Month())
}

func (s *ElasticSink) Handle(_ context.Context, event *ctdf.Event) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return s.index(s.IndexName(event), bytes.NewReader(eventBytes))
}
