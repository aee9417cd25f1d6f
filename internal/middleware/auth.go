package middleware

import (
	"brokerdesk-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// RequireAuth ensures a user is in the session. Returns 401 with standard error format if not.
func RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if CurrentPrincipal(c).IsZero() {
			return response.Unauthorized(c, "Unauthorized")
		}
		return c.Next()
	}
}
