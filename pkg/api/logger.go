package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// NewLogger logs one line per request, tagged with a request id that is
// echoed back in X-Request-ID.
func NewLogger() fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		startTime := time.Now()

		requestID := c.Get(fiber.HeaderXRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(fiber.HeaderXRequestID, requestID)

		err = c.Next()

		msg := "HTTP Request"
		if err != nil {
			msg = err.Error()
		}

		code := c.Response().StatusCode()

		fields := log.With().
			Str("request_id", requestID).
			Int("status", code).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Str("route", c.Route().Path).
			Str("ip", clientIP(c)).
			Str("latency", time.Since(startTime).String())

		if section := c.Params("section"); section != "" {
			fields = fields.Str("section", section)
		}
		if account, ok := c.Locals("account_userid").(string); ok && account != "" {
			fields = fields.Str("account", account)
		}
		if version := c.GetRespHeader("X-Timetable-Version"); version != "" {
			fields = fields.Str("timetable_version", version)
		}

		requestLogger := fields.Logger()
		requestEvent(&requestLogger, c, code).Msg(msg)

		return err
	}
}

func requestEvent(logger *zerolog.Logger, c *fiber.Ctx, code int) *zerolog.Event {
	switch {
	case code >= fiber.StatusBadRequest && code < fiber.StatusInternalServerError:
		return logger.Warn()
	case code >= http.StatusInternalServerError:
		return logger.Error()
	case strings.HasSuffix(c.Path(), "/health"):
		return logger.Debug()
	default:
		return logger.Info()
	}
}

// clientIP prefers the first X-Forwarded-For hop, the API usually sits
// behind a load balancer.
func clientIP(c *fiber.Ctx) string {
	if forwardedFor := c.Get(fiber.HeaderXForwardedFor); forwardedFor != "" {
		return strings.TrimSpace(strings.Split(forwardedFor, ",")[0])
	}
	return c.IP()
}
