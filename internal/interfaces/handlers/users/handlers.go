package users

import (
	usersvc "brokerdesk-backend/internal/application/user"
	"brokerdesk-backend/internal/middleware"
	"brokerdesk-backend/internal/pkg/request"
	"brokerdesk-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

type Handlers struct {
	Service *usersvc.Service
}

type roleRequest struct {
	Role string `json:"role" validate:"required"`
}

// Me GET /api/v1/users/me
func (h *Handlers) Me(c *fiber.Ctx) error {
	u, err := h.Service.View(c.UserContext(), middleware.CurrentPrincipal(c))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "User retrieved", u, nil)
}

// ViewUser GET /api/v1/users/:id
func (h *Handlers) ViewUser(c *fiber.Ctx) error {
	u, err := h.Service.ViewUser(c.UserContext(), middleware.CurrentPrincipal(c), c.Params("id"))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "User retrieved", u, nil)
}

// UpdateMe PATCH /api/v1/users/me
func (h *Handlers) UpdateMe(c *fiber.Ctx) error {
	var in usersvc.UpdateProfileInput
	if err := request.Body(c, &in); err != nil {
		return response.FromError(c, err)
	}
	u, err := h.Service.UpdateProfile(c.UserContext(), middleware.CurrentPrincipal(c), in)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "User updated", u, nil)
}

// UpdateRole PATCH /api/v1/users/:id/role
func (h *Handlers) UpdateRole(c *fiber.Ctx) error {
	var in roleRequest
	if err := request.Body(c, &in); err != nil {
		return response.FromError(c, err)
	}
	u, err := h.Service.UpdateRole(c.UserContext(), middleware.CurrentPrincipal(c), c.Params("id"), in.Role)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Role updated", u, nil)
}

// Suspend POST /api/v1/users/:id/suspend
func (h *Handlers) Suspend(c *fiber.Ctx) error {
	u, err := h.Service.Suspend(c.UserContext(), middleware.CurrentPrincipal(c), c.Params("id"))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "User suspended", u, nil)
}

// Reactivate POST /api/v1/users/:id/reactivate
func (h *Handlers) Reactivate(c *fiber.Ctx) error {
	u, err := h.Service.Reactivate(c.UserContext(), middleware.CurrentPrincipal(c), c.Params("id"))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "User reactivated", u, nil)
}
