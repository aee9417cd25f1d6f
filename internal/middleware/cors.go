package middleware

import (
	"strings"

	"brokerdesk-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// CORSConfig holds CORS configuration (suffix + dev password).
type CORSConfig struct {
	AllowedSuffix string
	DevPassword   string
	// AllowLocalhost accepts http://localhost:* and http://127.0.0.1:* origins (non-production).
	AllowLocalhost bool
}

// CORS allows origins ending with AllowedSuffix, localhost in development, or requests with
// the correct dev-password header. Credentials allowed. Preflights of allowed origins end here.
func CORS(cfg CORSConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		origin := c.Get(fiber.HeaderOrigin)
		// No origin (same-origin, webhooks, tools): allow
		if origin == "" {
			return c.Next()
		}
		if !originAllowed(cfg, c, origin) {
			return response.Error(c, "Not allowed by CORS", fiber.StatusForbidden, nil)
		}
		setCORSHeaders(c, origin)
		if c.Method() == fiber.MethodOptions {
			return c.SendStatus(fiber.StatusNoContent)
		}
		return c.Next()
	}
}

func originAllowed(cfg CORSConfig, c *fiber.Ctx, origin string) bool {
	if cfg.AllowLocalhost && (strings.HasPrefix(origin, "http://localhost:") || strings.HasPrefix(origin, "http://127.0.0.1:")) {
		return true
	}
	if cfg.AllowedSuffix != "" && strings.HasSuffix(strings.ToLower(origin), strings.ToLower(cfg.AllowedSuffix)) {
		return true
	}
	return cfg.DevPassword != "" && c.Get("dev-password") == cfg.DevPassword
}

func setCORSHeaders(c *fiber.Ctx, origin string) {
	c.Set(fiber.HeaderAccessControlAllowOrigin, origin)
	c.Set(fiber.HeaderAccessControlAllowCredentials, "true")
	c.Set(fiber.HeaderAccessControlAllowHeaders, "Content-Type, Authorization, dev-password")
	c.Set(fiber.HeaderAccessControlAllowMethods, "GET, POST, PATCH, PUT, DELETE, OPTIONS")
	c.Set(fiber.HeaderVary, fiber.HeaderOrigin)
}
