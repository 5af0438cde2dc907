package routes

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/travigo/railcontrol/pkg/ctdf"
	"github.com/travigo/railcontrol/pkg/dispatcher"
	"github.com/travigo/railcontrol/pkg/overrides"
)

// OverrideTimeout bounds how long an override request waits for the
// recomputed timetable.
var OverrideTimeout = 30 * time.Second

type scheduleRow struct {
	Entry ctdf.ScheduleEntry `json:"entry" groups:"basic"`
	Train *ctdf.Train        `json:"train,omitempty" groups:"basic"`
}

type sectionsHandler struct {
	dispatcher *dispatcher.Dispatcher
	cache      *ResponseCache
}

func SectionsRouter(router fiber.Router, d *dispatcher.Dispatcher, cache *ResponseCache) {
	h := &sectionsHandler{dispatcher: d, cache: cache}

	section := router.Group("/:section", h.authorise)

	section.Get("/schedule", h.getSchedule)
	section.Get("/conflicts", h.getConflicts)
	section.Get("/metrics", h.getMetrics)
	section.Post("/simulate", h.simulate)

	section.Post("/override", h.submitOverride)
	section.Delete("/override", h.clearOverride)
	section.Get("/overrides", h.listOverrides)
}

func (h *sectionsHandler) authorise(c *fiber.Ctx) error {
	if sectionID := c.Params("section"); !sectionAllowed(c, sectionID) {
		return sendForbidden(c, sectionID)
	}
	return c.Next()
}

func setTimetableHeaders(c *fiber.Ctx, timetable *ctdf.Timetable) {
	c.Set("X-Timetable-Version", strconv.FormatUint(timetable.Version, 10))
	c.Set("X-Timetable-Degraded", strconv.FormatBool(timetable.Degraded))
}

func (h *sectionsHandler) getSchedule(c *fiber.Ctx) error {
	sectionID := c.Params("section")
	date := serviceDate(c, h.dispatcher)

	timetable, entries, err := h.dispatcher.Schedule(date, sectionID)
	if err != nil {
		return sendError(c, err)
	}
	setTimetableHeaders(c, timetable)
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	responseView := view(c)
	cacheKey := scheduleCacheKey(timetable, sectionID, responseView)

	if cached, ok := h.cache.Get(c.UserContext(), cacheKey); ok {
		c.Set("X-Cache", "HIT")
		return c.SendString(cached)
	}

	trains, err := h.dispatcher.Registry(date)
	if err != nil {
		return sendError(c, err)
	}

	rows := make([]scheduleRow, 0, len(entries))
	for _, entry := range entries {
		row := scheduleRow{Entry: entry}
		if train, err := trains.GetTrain(entry.TrainID); err == nil {
			row.Train = train
		}
		rows = append(rows, row)
	}

	reduced, err := marshalView(rows, responseView)
	if err != nil {
		return sendError(c, err)
	}
	body, err := json.Marshal(reduced)
	if err != nil {
		return sendError(c, err)
	}

	// version 0 is the empty placeholder before the first run
	if timetable.Version > 0 {
		h.cache.Set(c.UserContext(), cacheKey, string(body))
	}

	c.Set("X-Cache", "MISS")
	return c.Send(body)
}

func (h *sectionsHandler) getConflicts(c *fiber.Ctx) error {
	sectionID := c.Params("section")

	timetable, conflicts, err := h.dispatcher.Conflicts(serviceDate(c, h.dispatcher), sectionID)
	if err != nil {
		return sendError(c, err)
	}
	section, err := h.dispatcher.Track().GetSection(sectionID)
	if err != nil {
		return sendError(c, err)
	}

	baseline := timetable.BaselineConflictsFor(section)
	if baseline == nil {
		baseline = []ctdf.Conflict{}
	}

	setTimetableHeaders(c, timetable)
	return c.JSON(fiber.Map{
		"version":            timetable.Version,
		"degraded":           timetable.Degraded,
		"conflicts":          conflicts,
		"baseline_conflicts": baseline,
	})
}

func (h *sectionsHandler) getMetrics(c *fiber.Ctx) error {
	sectionStats, err := h.dispatcher.Metrics(serviceDate(c, h.dispatcher), c.Params("section"))
	if err != nil {
		return sendError(c, err)
	}

	return c.JSON(sectionStats)
}

func (h *sectionsHandler) simulate(c *fiber.Ctx) error {
	var request struct {
		Disruptions []disruptionRequest `json:"disruptions"`
	}
	if err := c.BodyParser(&request); err != nil {
		return sendBadRequest(c, "Invalid simulation: "+err.Error())
	}
	if len(request.Disruptions) == 0 {
		return sendBadRequest(c, "At least one disruption must be simulated")
	}

	now := h.dispatcher.Now()
	hypothetical := make([]ctdf.Disruption, 0, len(request.Disruptions))
	for i := range request.Disruptions {
		disruption, err := request.Disruptions[i].disruption(now)
		if err != nil {
			return sendError(c, err)
		}
		disruption.Status = ctdf.DisruptionStatusSimulated
		hypothetical = append(hypothetical, disruption)
	}

	simulation, err := h.dispatcher.Simulate(serviceDate(c, h.dispatcher), c.Params("section"), hypothetical)
	if err != nil {
		return sendError(c, err)
	}

	return c.JSON(simulation)
}

type overrideFailure struct {
	Error string `json:"error"`
	*overrides.Result
}

func (h *sectionsHandler) submitOverride(c *fiber.Ctx) error {
	var request struct {
		Order       []string `json:"order"`
		SubmittedBy string   `json:"submitted_by"`
	}
	if err := c.BodyParser(&request); err != nil {
		return sendBadRequest(c, "Invalid override: "+err.Error())
	}

	submittedBy := accountID(c)
	if submittedBy == "" {
		submittedBy = request.SubmittedBy
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), OverrideTimeout)
	defer cancel()

	result, err := h.dispatcher.Overrides.SubmitOverride(ctx, serviceDate(c, h.dispatcher), c.Params("section"), request.Order, submittedBy)

	var infeasible *ctdf.InfeasibleOverrideError
	if errors.As(err, &infeasible) && result != nil {
		c.SendStatus(fiber.StatusConflict)
		return c.JSON(overrideFailure{Error: err.Error(), Result: result})
	}
	if err != nil {
		return sendError(c, err)
	}

	return c.JSON(result)
}

func (h *sectionsHandler) clearOverride(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), OverrideTimeout)
	defer cancel()

	result, err := h.dispatcher.Overrides.ClearOverride(ctx, serviceDate(c, h.dispatcher), c.Params("section"))
	if err != nil {
		return sendError(c, err)
	}

	return c.JSON(result)
}

func (h *sectionsHandler) listOverrides(c *fiber.Ctx) error {
	history, err := h.dispatcher.Overrides.History(c.UserContext(), c.Params("section"))
	if err != nil {
		return sendError(c, err)
	}

	return c.JSON(history)
}
