package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/travigo/railcontrol/pkg/dispatcher"
	"github.com/travigo/railcontrol/pkg/gtfsrt"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

func GTFSRealtimeRouter(router fiber.Router, d *dispatcher.Dispatcher) {
	router.Get("/trip-updates", func(c *fiber.Ctx) error {
		date := serviceDate(c, d)

		timetable, err := d.Timetable(date)
		if err != nil {
			return sendError(c, err)
		}
		trains, err := d.Registry(date)
		if err != nil {
			return sendError(c, err)
		}

		feed := gtfsrt.TripUpdates(timetable, trains.Snapshot())
		setTimetableHeaders(c, timetable)

		if c.Query("format") == "json" {
			body, err := protojson.Marshal(feed)
			if err != nil {
				return sendError(c, err)
			}
			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			return c.Send(body)
		}

		body, err := proto.Marshal(feed)
		if err != nil {
			return sendError(c, err)
		}
		c.Set(fiber.HeaderContentType, "application/x-protobuf")
		return c.Send(body)
	})
}
