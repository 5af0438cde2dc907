package events

import (
	"encoding/json"

	"github.com/adjust/rmq/v5"
	"github.com/rs/zerolog/log"
	"github.com/travigo/railcontrol/pkg/ctdf"
)

// BatchConsumer reads events off the queue and hands each one's
// notification text to Notify.
type BatchConsumer struct {
	Notify func(event *ctdf.Event, data ctdf.EventNotificationData)
}

func NewEventsBatchConsumer() *BatchConsumer {
	return &BatchConsumer{
		Notify: func(event *ctdf.Event, data ctdf.EventNotificationData) {
			log.Info().
				Str("event", event.ID).
				Str("type", string(event.Type)).
				Strs("sections", event.Sections).
				Str("title", data.Title).
				Msg(data.Message)
		},
	}
}

func (c *BatchConsumer) Consume(batch rmq.Deliveries) {
	for _, payload := range batch.Payloads() {
		var event ctdf.Event
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			log.Error().Err(err).Msg("Failed to decode event")
			continue
		}

		c.Notify(&event, GetNotificationData(&event))
	}

	if ackErrors := batch.Ack(); len(ackErrors) > 0 {
		for _, err := range ackErrors {
			log.Error().Err(err).Msg("Failed to ack event")
		}
	}
}
