package notifications

import (
	notificationsvc "brokerdesk-backend/internal/application/notifications"
	"brokerdesk-backend/internal/middleware"
	"brokerdesk-backend/internal/pkg/request"
	"brokerdesk-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

type Handlers struct {
	Service *notificationsvc.Service
}

type tokenRequest struct {
	Token    string `json:"token" validate:"required"`
	Platform string `json:"platform" validate:"required"`
}

// RegisterToken POST /api/v1/notifications/tokens
func (h *Handlers) RegisterToken(c *fiber.Ctx) error {
	var in tokenRequest
	if err := request.Body(c, &in); err != nil {
		return response.FromError(c, err)
	}
	dt, err := h.Service.RegisterToken(c.UserContext(), middleware.CurrentPrincipal(c), in.Token, in.Platform)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Device registered", dt, nil)
}

// RemoveToken DELETE /api/v1/notifications/tokens/:token
func (h *Handlers) RemoveToken(c *fiber.Ctx) error {
	if err := h.Service.RemoveToken(c.UserContext(), middleware.CurrentPrincipal(c), c.Params("token")); err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Device removed", nil, nil)
}
