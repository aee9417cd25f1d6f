package health

import (
	"crypto/subtle"

	healthsvc "brokerdesk-backend/internal/application/health"
	"brokerdesk-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

const errorLogLimit = 50

type Handlers struct {
	Service        *healthsvc.Service
	HealthAdminKey string
}

// JSON GET /health/json. 503 when the database or Redis is down so load balancers
// can act on the status code alone.
func (h *Handlers) JSON(c *fiber.Ctx) error {
	r := h.Service.Collect(c.UserContext())
	status := fiber.StatusOK
	if r.Status != healthsvc.StatusOK {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(r)
}

// Errors GET /health/errors returns the latest 5xx entries.
func (h *Handlers) Errors(c *fiber.Ctx) error {
	entries, err := h.Service.Errors(c.UserContext(), errorLogLimit)
	if err != nil {
		return response.FromError(c, err)
	}
	return c.JSON(entries)
}

// Reset GET /reset?key=HEALTH_ADMIN_KEY clears the counters.
func (h *Handlers) Reset(c *fiber.Ctx) error {
	key := c.Query("key")
	if h.HealthAdminKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(h.HealthAdminKey)) != 1 {
		return response.Error(c, "Unauthorized", fiber.StatusForbidden, nil)
	}
	if err := h.Service.Reset(c.UserContext()); err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Stats reset successfully", fiber.Map{"success": true}, nil)
}
