package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// OwnerIDKey is the fiber local holding the owner scope of a cloud request.
const OwnerIDKey = "owner_id"

// OwnerScopeMiddleware extracts the :owner path parameter every cloud
// document route is scoped to.
func OwnerScopeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		owner := strings.Clone(strings.TrimSpace(c.Params("owner")))
		if owner == "" || len(owner) > 64 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "owner id must be 1-64 characters",
			})
		}
		c.Locals(OwnerIDKey, owner)
		return c.Next()
	}
}

// OwnerID returns the owner scope set by OwnerScopeMiddleware.
func OwnerID(c *fiber.Ctx) string {
	owner, _ := c.Locals(OwnerIDKey).(string)
	return owner
}
