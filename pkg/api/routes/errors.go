package routes

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"github.com/travigo/railcontrol/pkg/ctdf"
)

func errorStatus(err error) int {
	var notFound *ctdf.NotFoundError
	var validation *ctdf.ValidationError
	var invalidRoute *ctdf.InvalidRouteError
	var unknownTrain *ctdf.UnknownTrainError
	var alreadyResolved *ctdf.AlreadyResolvedError
	var infeasible *ctdf.InfeasibleOverrideError
	var recomputation *ctdf.RecomputationFailure

	switch {
	case errors.As(err, &notFound):
		return fiber.StatusNotFound
	case errors.As(err, &validation):
		return fiber.StatusBadRequest
	case errors.As(err, &invalidRoute), errors.As(err, &unknownTrain):
		return fiber.StatusUnprocessableEntity
	case errors.As(err, &alreadyResolved), errors.As(err, &infeasible):
		return fiber.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	case errors.As(err, &recomputation):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func sendError(c *fiber.Ctx, err error) error {
	status := errorStatus(err)
	if status >= fiber.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Path()).Msg("Request failed")
	}

	c.SendStatus(status)
	return c.JSON(fiber.Map{
		"error": err.Error(),
	})
}

func sendBadRequest(c *fiber.Ctx, message string) error {
	c.SendStatus(fiber.StatusBadRequest)
	return c.JSON(fiber.Map{
		"error": message,
	})
}
