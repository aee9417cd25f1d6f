package brokerages

import (
	brokeragesvc "brokerdesk-backend/internal/application/brokerages"
	"brokerdesk-backend/internal/middleware"
	"brokerdesk-backend/internal/pkg/request"
	"brokerdesk-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Service *brokeragesvc.Service
}

type memberRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
}

// Create POST /api/v1/brokerages
func (h *Handlers) Create(c *fiber.Ctx) error {
	var in brokeragesvc.CreateInput
	if err := request.Body(c, &in); err != nil {
		return response.FromError(c, err)
	}
	b, err := h.Service.Create(c.UserContext(), middleware.CurrentPrincipal(c), in)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Brokerage created", b, nil)
}

// List GET /api/v1/brokerages
func (h *Handlers) List(c *fiber.Ctx) error {
	out, err := h.Service.List(c.UserContext(), middleware.CurrentPrincipal(c))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Brokerages retrieved", out, nil)
}

// Get GET /api/v1/brokerages/:id
func (h *Handlers) Get(c *fiber.Ctx) error {
	id, err := request.UUIDParam(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	d, err := h.Service.Get(c.UserContext(), middleware.CurrentPrincipal(c), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Brokerage retrieved", d, nil)
}

// AddMember POST /api/v1/brokerages/:id/members
func (h *Handlers) AddMember(c *fiber.Ctx) error {
	id, err := request.UUIDParam(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	var in memberRequest
	if err := request.Body(c, &in); err != nil {
		return response.FromError(c, err)
	}
	u, err := h.Service.AddMember(c.UserContext(), middleware.CurrentPrincipal(c), id, uuid.MustParse(in.UserID))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Member added", u, nil)
}

// RemoveMember DELETE /api/v1/brokerages/:id/members/:user_id
func (h *Handlers) RemoveMember(c *fiber.Ctx) error {
	id, err := request.UUIDParam(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	userID, err := request.UUIDParam(c, "user_id")
	if err != nil {
		return response.FromError(c, err)
	}
	u, err := h.Service.RemoveMember(c.UserContext(), middleware.CurrentPrincipal(c), id, userID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Member removed", u, nil)
}
