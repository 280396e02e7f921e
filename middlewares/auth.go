package middlewares

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"

	"opsconsole-backend/workflow"
)

const (
	authHeader   = "Authorization"
	bearerPrefix = "Bearer "

	LocalUserID = "userID"
	LocalRole   = "role"
)

// Claims is our custom JWT payload (subject=userID, plus workflow role).
type Claims struct {
	Role workflow.Role `json:"role"`
	jwt.RegisteredClaims
}

// IsAuthenticatedHeader validates a Bearer token, enforces HS256, and populates c.Locals("userID","role").
func IsAuthenticatedHeader(secret string) fiber.Handler {
	key := []byte(secret)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	return func(c *fiber.Ctx) error {
		if len(key) == 0 {
			return fiber.NewError(fiber.StatusInternalServerError, "server auth not configured")
		}

		h := c.Get(authHeader)
		if h == "" || !strings.HasPrefix(strings.ToLower(h), strings.ToLower(bearerPrefix)) {
			return fiber.NewError(fiber.StatusUnauthorized, "missing/invalid Authorization header")
		}
		raw := strings.TrimSpace(h[len(bearerPrefix):])
		if raw == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid bearer token")
		}

		var claims Claims
		token, err := parser.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
			if t.Method != jwt.SigningMethodHS256 {
				return nil, errors.New("unexpected signing method")
			}
			return key, nil
		})
		if err != nil || !token.Valid {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired token")
		}
		if strings.TrimSpace(claims.Subject) == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "token missing subject")
		}
		if !claims.Role.Valid() {
			return fiber.NewError(fiber.StatusForbidden, "token carries no known role")
		}

		c.Locals(LocalUserID, claims.Subject)
		c.Locals(LocalRole, claims.Role)
		return c.Next()
	}
}

// ActorFrom returns the actor stored by IsAuthenticatedHeader.
func ActorFrom(c *fiber.Ctx) (workflow.Actor, bool) {
	id, _ := c.Locals(LocalUserID).(string)
	role, _ := c.Locals(LocalRole).(workflow.Role)
	if id == "" || role == "" {
		return workflow.Actor{}, false
	}
	return workflow.Actor{ID: id, Role: role}, true
}

// GenerateJWT signs a new HS256 token for the given user & role.
func GenerateJWT(secret, userID string, role workflow.Role, ttl time.Duration) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("JWT secret not configured")
	}
	now := time.Now()
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
