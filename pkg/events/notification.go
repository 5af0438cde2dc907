package events

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/travigo/railcontrol/pkg/ctdf"
)

// decodeBody reads an event body into T whether it was built in-process or
// decoded from JSON as a generic map.
func decodeBody[T any](body interface{}) (T, error) {
	var decoded T
	if typed, ok := body.(T); ok {
		return typed, nil
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return decoded, err
	}
	err = json.Unmarshal(bodyBytes, &decoded)
	return decoded, err
}

func GetNotificationData(e *ctdf.Event) ctdf.EventNotificationData {
	eventNotificationData := ctdf.EventNotificationData{}

	var err error

	switch e.Type {
	case ctdf.EventTypeTrainDeparted:
		var body ctdf.TrainDepartedBody
		body, err = decodeBody[ctdf.TrainDepartedBody](e.Body)

		eventNotificationData.Title = "Train departed"
		eventNotificationData.Message = fmt.Sprintf("Train %s entered %s at %s", e.TrainID, body.Entry.SectionID, body.Entry.OptimizedEntry.Format("15:04"))
	case ctdf.EventTypeDelayChanged:
		var body ctdf.DelayChangedBody
		body, err = decodeBody[ctdf.DelayChangedBody](e.Body)

		eventNotificationData.Title = "Delay update"
		if body.DelayMinutes <= 0 {
			eventNotificationData.Message = fmt.Sprintf("Train %s to %s is expected on time", e.TrainID, body.Destination)
		} else {
			eventNotificationData.Message = fmt.Sprintf("Train %s to %s is expected %d minutes late (was %d)", e.TrainID, body.Destination, body.DelayMinutes, body.PreviousDelayMinutes)
		}
	case ctdf.EventTypeConflictDetected, ctdf.EventTypeConflictResolved:
		var body ctdf.ConflictBody
		body, err = decodeBody[ctdf.ConflictBody](e.Body)

		resource := fmt.Sprintf("section %s", body.Conflict.SectionID)
		if body.Conflict.Resource == ctdf.ResourceTypePlatform {
			resource = fmt.Sprintf("platform %s at %s", body.Conflict.Platform, body.Conflict.StationID)
		}
		trains := strings.Join(body.Conflict.TrainIDs, ", ")

		if e.Type == ctdf.EventTypeConflictDetected {
			eventNotificationData.Title = "Conflict detected"
			eventNotificationData.Message = fmt.Sprintf("Trains %s need %s at the same time between %s and %s", trains, resource, body.Conflict.Start.Format("15:04"), body.Conflict.End.Format("15:04"))
		} else {
			eventNotificationData.Title = "Conflict resolved"
			eventNotificationData.Message = fmt.Sprintf("Trains %s no longer conflict on %s", trains, resource)
		}
	case ctdf.EventTypeDisruptionCreated, ctdf.EventTypeDisruptionResolved:
		var body ctdf.DisruptionBody
		body, err = decodeBody[ctdf.DisruptionBody](e.Body)

		disruption := body.Disruption
		sections := strings.Join(disruption.Sections, ", ")

		if e.Type == ctdf.EventTypeDisruptionCreated {
			eventNotificationData.Title = fmt.Sprintf("%s disruption", disruption.Severity)
			eventNotificationData.Message = fmt.Sprintf("%s on %s", strings.ReplaceAll(string(disruption.Type), "_", " "), sections)
			if disruption.Description != "" {
				eventNotificationData.Message = fmt.Sprintf("%s: %s", eventNotificationData.Message, disruption.Description)
			}
		} else {
			eventNotificationData.Title = "Disruption resolved"
			eventNotificationData.Message = fmt.Sprintf("%s on %s has been resolved", strings.ReplaceAll(string(disruption.Type), "_", " "), sections)
		}
	}

	if err != nil {
		log.Error().Err(err).Str("event", e.ID).Str("type", string(e.Type)).Msg("Failed to decode event body")
	}

	return eventNotificationData
}
