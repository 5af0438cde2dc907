package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/travigo/railcontrol/pkg/api/routes"
	"github.com/travigo/railcontrol/pkg/dispatcher"
)

type Options struct {
	// Cache keeps rendered schedules in redis when set.
	Cache *routes.ResponseCache
	// Auth guards every section scoped route when set.
	Auth fiber.Handler
}

func NewApp(d *dispatcher.Dispatcher, options Options) *fiber.App {
	webApp := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	webApp.Use(NewLogger())

	group := webApp.Group("/core")

	group.Get("version", routes.APIVersion)
	group.Get("health", routes.Health(d))

	var guards []fiber.Handler
	if options.Auth != nil {
		guards = append(guards, options.Auth)
	}

	routes.SectionsRouter(group.Group("/sections", guards...), d, options.Cache)

	routes.DisruptionsRouter(group.Group("/disruptions", guards...), d)

	routes.TrainsRouter(group.Group("/trains", guards...), d)

	routes.EventsRouter(group.Group("/events", guards...), d.Bus())

	routes.GTFSRealtimeRouter(group.Group("/gtfs-rt"), d)

	return webApp
}
