package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/kartikrastogi18/FitConnect/internal/middleware"
	"github.com/kartikrastogi18/FitConnect/internal/services"
	"github.com/sirupsen/logrus"
)

var errInvalidID = errors.New("invalid id")

func statusForKind(kind services.Kind) int {
	switch kind {
	case services.KindValidation:
		return fiber.StatusBadRequest
	case services.KindUnauthorized:
		return fiber.StatusUnauthorized
	case services.KindForbidden:
		return fiber.StatusForbidden
	case services.KindNotFound:
		return fiber.StatusNotFound
	case services.KindConflict:
		return fiber.StatusConflict
	case services.KindInvalidState:
		return fiber.StatusUnprocessableEntity
	case services.KindUpstream:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// writeServiceError renders err as {"error", "kind"}. Detail of internal and
// upstream failures only reaches the log.
func writeServiceError(c *fiber.Ctx, log logrus.FieldLogger, err error) error {
	kind := services.KindOf(err)
	status := statusForKind(kind)
	if status >= fiber.StatusInternalServerError && log != nil {
		log.WithFields(logrus.Fields{
			"method":     c.Method(),
			"path":       c.Path(),
			"request_id": c.GetRespHeader(fiber.HeaderXRequestID),
			"kind":       kind,
		}).WithError(err).Error("request failed")
	}
	return c.Status(status).JSON(fiber.Map{
		"error": services.PublicMessage(err),
		"kind":  kind,
	})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": message,
		"kind":  services.KindValidation,
	})
}

func currentActor(c *fiber.Ctx) (services.Actor, bool) {
	actor, err := middleware.CurrentActor(c)
	if err != nil {
		return services.Actor{}, false
	}
	return actor, true
}

func invalidToken(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": "Invalid token",
		"kind":  services.KindUnauthorized,
	})
}

func parseIDParam(c *fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidID
	}
	return id, nil
}
