package middlewares

import (
	"github.com/gofiber/fiber/v2"

	"opsconsole-backend/workflow"
)

// BindAndValidate parses the request body into dst and validates it.
// Returns fiber.ErrBadRequest for parse errors and a *workflow.ValidationError for validation issues.
func BindAndValidate(c *fiber.Ctx, dst interface{}) error {
	if err := c.BodyParser(dst); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	return workflow.ValidateStruct(dst)
}
