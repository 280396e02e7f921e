package middlewares

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const headerRequestID = "X-Request-ID"

// RequestLogger tags each request with an id and logs its outcome.
func RequestLogger(log *logrus.Entry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		id := c.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(headerRequestID, id)

		if err := c.Next(); err != nil {
			// render now so the logged status is the one sent
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}
		status := c.Response().StatusCode()
		entry := log.WithFields(logrus.Fields{
			"request_id": id,
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     status,
			"latency_ms": time.Since(start).Milliseconds(),
		})
		if userID, ok := c.Locals(LocalUserID).(string); ok {
			entry = entry.WithField("actor_id", userID)
		}
		if status >= fiber.StatusInternalServerError {
			entry.Warn("request failed")
		} else {
			entry.Debug("request served")
		}
		return nil
	}
}
