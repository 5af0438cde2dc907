package routes

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"github.com/travigo/railcontrol/pkg/ctdf"
	"github.com/travigo/railcontrol/pkg/events"
	"github.com/valyala/fasthttp"
)

const keepaliveInterval = 15 * time.Second

// EventsRouter streams bus events to the client as server-sent events,
// optionally filtered to one section.
func EventsRouter(router fiber.Router, bus *events.Bus) {
	router.Get("/", func(c *fiber.Ctx) error {
		sectionID := c.Query("section")
		if sectionID != "" && !sectionAllowed(c, sectionID) {
			return sendForbidden(c, sectionID)
		}

		c.Set(fiber.HeaderContentType, "text/event-stream")
		c.Set(fiber.HeaderCacheControl, "no-cache")
		c.Set(fiber.HeaderConnection, "keep-alive")
		c.Set("X-Accel-Buffering", "no")

		channel, unsubscribe := bus.SubscribeChannel("sse "+c.IP(), events.SectionFilter(sectionID), 256)

		c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
			defer unsubscribe()

			keepalive := time.NewTicker(keepaliveInterval)
			defer keepalive.Stop()

			for {
				select {
				case event, ok := <-channel:
					if !ok {
						return
					}
					if err := writeEvent(w, event); err != nil {
						log.Error().Err(err).Str("event", event.ID).Msg("Failed to encode event")
						continue
					}
				case <-keepalive.C:
					fmt.Fprint(w, ": keepalive\n\n")
				}

				if err := w.Flush(); err != nil {
					// client went away
					return
				}
			}
		}))

		return nil
	})
}

func writeEvent(w io.Writer, event *ctdf.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", event.ID, event.Type, data)
	return err
}
