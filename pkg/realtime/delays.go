// Package realtime feeds live train running information into the
// dispatcher. Delay reports arrive as JSON over STOMP.
package realtime

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/travigo/railcontrol/pkg/ctdf"
)

type DelayReport struct {
	TrainID      string `json:"train_id"`
	ServiceDate  string `json:"service_date"`
	DelayMinutes *int   `json:"delay_minutes"`
}

type DelayReporter interface {
	ReportDelay(date string, trainID string, minutes int) error
	Today() string
}

// DelayIngest applies delay reports to the dispatcher. A bad report is
// logged and skipped so one malformed message never stalls the feed.
type DelayIngest struct {
	Reporter DelayReporter
}

// ParseMessage accepts a single report or an array of reports and returns
// how many were applied.
func (i *DelayIngest) ParseMessage(body []byte) int {
	body = bytes.TrimSpace(body)

	var reports []DelayReport
	var err error
	if len(body) > 0 && body[0] == '[' {
		err = json.Unmarshal(body, &reports)
	} else {
		var report DelayReport
		err = json.Unmarshal(body, &report)
		reports = []DelayReport{report}
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to decode delay report")
		return 0
	}

	applied := 0
	for _, report := range reports {
		if err := i.apply(report); err != nil {
			logger := log.Warn()
			var notFound *ctdf.NotFoundError
			if errors.As(err, &notFound) {
				logger = log.Debug()
			}
			logger.Err(err).
				Str("train", report.TrainID).
				Str("date", report.ServiceDate).
				Msg("Delay report rejected")
			continue
		}
		applied++
	}

	return applied
}

func (i *DelayIngest) apply(report DelayReport) error {
	if report.TrainID == "" {
		return &ctdf.ValidationError{Field: "train_id", Reason: "is required"}
	}
	if report.DelayMinutes == nil {
		return &ctdf.ValidationError{Field: "delay_minutes", Reason: "is required"}
	}

	date := report.ServiceDate
	if date == "" {
		date = i.Reporter.Today()
	}

	if err := i.Reporter.ReportDelay(date, report.TrainID, *report.DelayMinutes); err != nil {
		return err
	}

	log.Debug().
		Str("train", report.TrainID).
		Str("date", date).
		Int("delay", *report.DelayMinutes).
		Msg("Applied delay report")

	return nil
}
