package middlewares

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"opsconsole-backend/workflow"
)

var statusByCode = map[string]int{
	"invalid_transition": fiber.StatusConflict,
	"unauthorized_role":  fiber.StatusForbidden,
	"time_window_closed": fiber.StatusLocked,
	"not_found":          fiber.StatusNotFound,
	"conflict":           fiber.StatusConflict,
	"validation_error":   fiber.StatusUnprocessableEntity,
}

// ErrorHandler maps workflow failures to HTTP responses and keeps other
// messages sanitized.
func ErrorHandler(log *logrus.Entry) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		// 1) Fiber errors (use their status code + message)
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{"message": fe.Message})
		}

		// 2) Workflow taxonomy
		code := workflow.Code(err)
		if status, ok := statusByCode[code]; ok {
			body := fiber.Map{"message": err.Error(), "code": code}
			var ve *workflow.ValidationError
			if errors.As(err, &ve) {
				body["message"] = "validation failed"
				body["errors"] = ve.Fields
			}
			return c.Status(status).JSON(body)
		}

		// 3) Unknown errors (500)
		log.WithError(err).WithField("path", c.Path()).Error("internal error")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "internal server error",
			"code":    "internal",
		})
	}
}
