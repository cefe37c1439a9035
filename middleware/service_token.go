package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// ServiceTokenMiddleware admits only device agents presenting the shared
// service token, either as X-Service-Token or as a Bearer token.
func ServiceTokenMiddleware(expectedToken string, logger zerolog.Logger) fiber.Handler {
	log := logger.With().Str("component", "service_auth").Logger()

	return func(c *fiber.Ctx) error {
		token := c.Get("X-Service-Token")
		if token == "" {
			token = strings.TrimSpace(strings.TrimPrefix(c.Get("Authorization"), "Bearer "))
		}
		if token == "" {
			log.Warn().Str("path", c.Path()).Msg("🚫 missing service token")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "service token missing",
			})
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
			log.Warn().Str("path", c.Path()).Msg("❌ invalid service token")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid service token",
			})
		}

		return c.Next()
	}
}
