package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/travigo/railcontrol/pkg/ctdf"
	"github.com/travigo/railcontrol/pkg/dispatcher"
	"github.com/travigo/railcontrol/pkg/disruptions"

	iso8601 "github.com/senseyeio/duration"
)

type disruptionRequest struct {
	Type        ctdf.DisruptionType   `json:"type"`
	Severity    ctdf.Severity         `json:"severity"`
	Status      ctdf.DisruptionStatus `json:"status"`
	Sections    []string              `json:"sections"`
	Description string                `json:"description"`
	Impact      ctdf.DisruptionImpact `json:"impact"`

	StartTime           time.Time `json:"start_time"`
	EstimatedResolution time.Time `json:"estimated_resolution"`
	// EstimatedDuration is an ISO-8601 duration from the start time, eg PT2H30M.
	EstimatedDuration string `json:"estimated_duration"`
}

func (r *disruptionRequest) disruption(now time.Time) (ctdf.Disruption, error) {
	disruption := ctdf.Disruption{
		Type:                r.Type,
		Severity:            r.Severity,
		Status:              r.Status,
		Sections:            r.Sections,
		Description:         r.Description,
		Impact:              r.Impact,
		StartTime:           r.StartTime,
		EstimatedResolution: r.EstimatedResolution,
	}

	if r.EstimatedDuration == "" {
		return disruption, nil
	}
	if !r.EstimatedResolution.IsZero() {
		return disruption, &ctdf.ValidationError{Field: "estimated_duration", Reason: "cannot be combined with estimated_resolution"}
	}

	duration, err := iso8601.ParseISO8601(r.EstimatedDuration)
	if err != nil {
		return disruption, &ctdf.ValidationError{Field: "estimated_duration", Reason: err.Error()}
	}

	if disruption.StartTime.IsZero() {
		disruption.StartTime = now
	}
	disruption.EstimatedResolution = duration.Shift(disruption.StartTime)

	return disruption, nil
}

type disruptionsHandler struct {
	dispatcher *dispatcher.Dispatcher
}

func DisruptionsRouter(router fiber.Router, d *dispatcher.Dispatcher) {
	h := &disruptionsHandler{dispatcher: d}

	router.Get("/", h.listDisruptions)
	router.Post("/", h.createDisruption)
	router.Get("/:id", h.getDisruption)
	router.Post("/:id/resolve", h.resolveDisruption)
	router.Post("/:id/investigate", h.investigateDisruption)
}

func (h *disruptionsHandler) listDisruptions(c *fiber.Ctx) error {
	sectionID := c.Query("section")
	if sectionID != "" && !sectionAllowed(c, sectionID) {
		return sendForbidden(c, sectionID)
	}

	listed := h.dispatcher.Disruptions().List(disruptions.Filter{
		SectionID: sectionID,
		Status:    ctdf.DisruptionStatus(c.Query("status")),
	})

	visible := []*ctdf.Disruption{}
	for _, disruption := range listed {
		if h.visible(c, disruption) {
			visible = append(visible, disruption)
		}
	}

	return sendView(c, visible)
}

func (h *disruptionsHandler) visible(c *fiber.Ctx, disruption *ctdf.Disruption) bool {
	for _, sectionID := range disruption.Sections {
		if sectionAllowed(c, sectionID) {
			return true
		}
	}
	return false
}

func (h *disruptionsHandler) getDisruption(c *fiber.Ctx) error {
	disruption, err := h.dispatcher.Disruptions().Get(c.Params("id"))
	if err != nil {
		return sendError(c, err)
	}
	if !h.visible(c, disruption) {
		return sendForbidden(c, disruption.Sections[0])
	}

	return sendView(c, disruption)
}

func (h *disruptionsHandler) createDisruption(c *fiber.Ctx) error {
	var request disruptionRequest
	if err := c.BodyParser(&request); err != nil {
		return sendBadRequest(c, "Invalid disruption: "+err.Error())
	}

	for _, sectionID := range request.Sections {
		if !sectionAllowed(c, sectionID) {
			return sendForbidden(c, sectionID)
		}
	}

	disruption, err := request.disruption(h.dispatcher.Now())
	if err != nil {
		return sendError(c, err)
	}

	store := h.dispatcher.Disruptions()
	id, err := store.Create(c.UserContext(), disruption)
	if err != nil {
		return sendError(c, err)
	}

	created, err := store.Get(id)
	if err != nil {
		return sendError(c, err)
	}

	c.Status(fiber.StatusCreated)
	return sendView(c, created)
}

func (h *disruptionsHandler) resolveDisruption(c *fiber.Ctx) error {
	var request struct {
		ActualResolution time.Time `json:"actual_resolution"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&request); err != nil {
			return sendBadRequest(c, "Invalid resolution: "+err.Error())
		}
	}

	return h.transition(c, func(store *disruptions.Store, id string) error {
		return store.Resolve(c.UserContext(), id, request.ActualResolution)
	})
}

func (h *disruptionsHandler) investigateDisruption(c *fiber.Ctx) error {
	return h.transition(c, func(store *disruptions.Store, id string) error {
		return store.Investigate(c.UserContext(), id)
	})
}

func (h *disruptionsHandler) transition(c *fiber.Ctx, apply func(store *disruptions.Store, id string) error) error {
	id := c.Params("id")
	store := h.dispatcher.Disruptions()

	existing, err := store.Get(id)
	if err != nil {
		return sendError(c, err)
	}
	for _, sectionID := range existing.Sections {
		if !sectionAllowed(c, sectionID) {
			return sendForbidden(c, sectionID)
		}
	}

	if err := apply(store, id); err != nil {
		return sendError(c, err)
	}

	updated, err := store.Get(id)
	if err != nil {
		return sendError(c, err)
	}
	return sendView(c, updated)
}
