package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/travigo/railcontrol/pkg/dispatcher"
	"github.com/travigo/railcontrol/pkg/elastic_client"
)

func APIVersion(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"version": "v1.0",
	})
}

type dayHealth struct {
	ServiceDate string `json:"service_date"`
	Version     uint64 `json:"version"`
	Degraded    bool   `json:"degraded"`
	LastError   string `json:"last_error,omitempty"`
}

// Health lists every service day's served version. A degraded day is still
// serving its last good timetable so the endpoint stays 200.
func Health(d *dispatcher.Dispatcher) fiber.Handler {
	return func(c *fiber.Ctx) error {
		days := []dayHealth{}
		status := "ok"

		for _, date := range d.Dates() {
			coordinator, err := d.Coordinator(date)
			if err != nil {
				continue
			}

			version, lastError := coordinator.Status()
			health := dayHealth{ServiceDate: date, Version: version}
			if lastError != nil {
				health.Degraded = true
				health.LastError = lastError.Error()
				status = "degraded"
			}
			days = append(days, health)
		}

		health := fiber.Map{
			"status":      status,
			"today":       d.Today(),
			"days":        days,
			"sections":    len(d.Track().SectionIDs()),
			"stations":    len(d.Track().StationIDs()),
			"disruptions": len(d.Disruptions().ListActive("")),
		}
		if indexStats, ok := elastic_client.Stats(); ok {
			health["elasticsearch"] = indexStats
		}

		return c.JSON(health)
	}
}
