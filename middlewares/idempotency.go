package middlewares

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"opsconsole-backend/database"
	"opsconsole-backend/models"
)

const maxIdempotencyKeyLength = 128

// Idempotency processes Idempotency-Key for mutating HTTP methods. The first
// completed response per key is replayed to later calls with the same request.
func Idempotency(store database.IdempotencyStore, log *logrus.Entry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		method := strings.ToUpper(c.Method())
		if method != fiber.MethodPost && method != fiber.MethodPut && method != fiber.MethodPatch && method != fiber.MethodDelete {
			return c.Next()
		}

		key := strings.TrimSpace(c.Get("Idempotency-Key"))
		if key == "" {
			return c.Next()
		}
		if len(key) > maxIdempotencyKeyLength {
			return fiber.NewError(fiber.StatusBadRequest, "Idempotency-Key too long")
		}

		userID, _ := c.Locals(LocalUserID).(string)
		if userID == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "auth context missing")
		}

		path := c.OriginalURL() // includes query string
		reqHash := requestHash(method, path, c.Body(), userID)

		// ---- Phase 1: reserve the key or read the stored record
		ctx := c.UserContext()
		existing, created, err := store.Reserve(ctx, models.IdempotencyKey{
			Key:         key,
			RequestHash: reqHash,
			Method:      method,
			Path:        path,
			UserID:      userID,
			CreatedAt:   time.Now().UTC(),
		})
		if err != nil {
			log.WithError(err).Error("idempotency reserve failed")
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency lookup failed")
		}
		if existing.RequestHash != reqHash {
			return fiber.NewError(fiber.StatusConflict, "Idempotency-Key reuse with different request")
		}
		if existing.ResponseStatus != 0 {
			c.Set("Idempotent-Replayed", "true")
			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			return c.Status(existing.ResponseStatus).Send(existing.ResponseBody)
		}
		if !created {
			return fiber.NewError(fiber.StatusConflict, "request with this Idempotency-Key is still in progress")
		}

		// ---- Phase 2: run the handler once
		if err := c.Next(); err != nil {
			releaseKey(store, userID, key, log)
			return err
		}
		status := c.Response().StatusCode()
		if status >= fiber.StatusInternalServerError {
			releaseKey(store, userID, key, log)
			return nil
		}

		// ---- Phase 3: store the response (best-effort)
		body := append([]byte(nil), c.Response().Body()...)
		if err := store.Complete(context.Background(), userID, key, status, body, time.Now().UTC()); err != nil {
			log.WithError(err).WithField("key", key).Warn("idempotency completion failed")
		}
		return nil
	}
}

func requestHash(method, path string, body []byte, userID string) string {
	// method|path|body|user
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{'\n'})
	h.Write([]byte(path))
	h.Write([]byte{'\n'})
	h.Write(body)
	h.Write([]byte{'\n'})
	h.Write([]byte(userID))
	return hex.EncodeToString(h.Sum(nil))
}

func releaseKey(store database.IdempotencyStore, userID, key string, log *logrus.Entry) {
	if err := store.Release(context.Background(), userID, key); err != nil {
		log.WithError(err).WithField("key", key).Warn("idempotency release failed")
	}
}
