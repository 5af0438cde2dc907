package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/travigo/railcontrol/pkg/ctdf"
	"github.com/travigo/railcontrol/pkg/dispatcher"
	"github.com/travigo/railcontrol/pkg/registry"
)

type trainsHandler struct {
	dispatcher *dispatcher.Dispatcher
}

func TrainsRouter(router fiber.Router, d *dispatcher.Dispatcher) {
	h := &trainsHandler{dispatcher: d}

	router.Get("/", h.listTrains)
	router.Post("/", h.registerTrain)
	router.Get("/:id", h.getTrain)
	router.Get("/:id/schedule", h.getTrainSchedule)
	router.Post("/:id/delay", h.reportDelay)
}

func (h *trainsHandler) listTrains(c *fiber.Ctx) error {
	trains, err := h.dispatcher.Registry(serviceDate(c, h.dispatcher))
	if err != nil {
		return sendError(c, err)
	}

	snapshot := trains.Snapshot()
	if snapshot == nil {
		snapshot = []*ctdf.Train{}
	}
	return sendView(c, snapshot)
}

func (h *trainsHandler) registerTrain(c *fiber.Ctx) error {
	var spec registry.TrainSpec
	if err := c.BodyParser(&spec); err != nil {
		return sendBadRequest(c, "Invalid train: "+err.Error())
	}

	for _, sectionID := range spec.Route {
		if !sectionAllowed(c, sectionID) {
			return sendForbidden(c, sectionID)
		}
	}

	train, err := h.dispatcher.RegisterTrain(spec)
	if err != nil {
		return sendError(c, err)
	}

	c.Status(fiber.StatusCreated)
	return sendView(c, train)
}

func (h *trainsHandler) getTrain(c *fiber.Ctx) error {
	train, err := h.dispatcher.GetTrain(serviceDate(c, h.dispatcher), c.Params("id"))
	if err != nil {
		return sendError(c, err)
	}

	return sendView(c, train)
}

func (h *trainsHandler) getTrainSchedule(c *fiber.Ctx) error {
	date := serviceDate(c, h.dispatcher)
	id := c.Params("id")

	if _, err := h.dispatcher.GetTrain(date, id); err != nil {
		return sendError(c, err)
	}

	timetable, err := h.dispatcher.Timetable(date)
	if err != nil {
		return sendError(c, err)
	}

	entries := timetable.ForTrain(id)
	if entries == nil {
		entries = []ctdf.ScheduleEntry{}
	}

	setTimetableHeaders(c, timetable)
	return sendView(c, entries)
}

func (h *trainsHandler) reportDelay(c *fiber.Ctx) error {
	var request struct {
		ServiceDate  string `json:"service_date"`
		DelayMinutes *int   `json:"delay_minutes"`
	}
	if err := c.BodyParser(&request); err != nil {
		return sendBadRequest(c, "Invalid delay report: "+err.Error())
	}
	if request.DelayMinutes == nil {
		return sendBadRequest(c, "delay_minutes is required")
	}

	date := request.ServiceDate
	if date == "" {
		date = serviceDate(c, h.dispatcher)
	}
	id := c.Params("id")

	if err := h.dispatcher.ReportDelay(date, id, *request.DelayMinutes); err != nil {
		return sendError(c, err)
	}

	train, err := h.dispatcher.GetTrain(date, id)
	if err != nil {
		return sendError(c, err)
	}

	c.Status(fiber.StatusAccepted)
	return sendView(c, train)
}
