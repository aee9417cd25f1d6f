package support

import (
	"encoding/json"

	supportsvc "brokerdesk-backend/internal/application/support"
	"brokerdesk-backend/internal/middleware"
	"brokerdesk-backend/internal/pkg/request"
	"brokerdesk-backend/internal/pkg/response"
	"brokerdesk-backend/internal/pkg/signature"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

type Handlers struct {
	Service       *supportsvc.Service
	WebhookSecret string
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

// Create POST /api/v1/support/tickets
func (h *Handlers) Create(c *fiber.Ctx) error {
	var in supportsvc.CreateInput
	if err := request.Body(c, &in); err != nil {
		return response.FromError(c, err)
	}
	t, err := h.Service.Create(c.UserContext(), middleware.CurrentPrincipal(c), in)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Ticket created", t, nil)
}

// List GET /api/v1/support/tickets?status=&limit=&offset=
func (h *Handlers) List(c *fiber.Ctx) error {
	limit, offset := request.Page(c, 50, 100)
	out, total, err := h.Service.List(c.UserContext(), middleware.CurrentPrincipal(c), supportsvc.ListFilter{
		Status: c.Query("status"), Limit: limit, Offset: offset,
	})
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Tickets retrieved", out, request.PageMeta(total, limit, offset))
}

// Get GET /api/v1/support/tickets/:id
func (h *Handlers) Get(c *fiber.Ctx) error {
	id, err := request.UUIDParam(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	t, err := h.Service.Get(c.UserContext(), middleware.CurrentPrincipal(c), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Ticket retrieved", t, nil)
}

// UpdateStatus PATCH /api/v1/support/tickets/:id/status
func (h *Handlers) UpdateStatus(c *fiber.Ctx) error {
	id, err := request.UUIDParam(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	var in statusRequest
	if err := request.Body(c, &in); err != nil {
		return response.FromError(c, err)
	}
	t, err := h.Service.UpdateStatus(c.UserContext(), middleware.CurrentPrincipal(c), id, in.Status)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Ticket updated", t, nil)
}

// Webhook POST /api/v1/support/webhook, called by the help desk on status changes.
func (h *Handlers) Webhook(c *fiber.Ctx) error {
	body := c.Body()
	if err := signature.Verify(body, c.Get(supportsvc.SignatureHeader), h.WebhookSecret); err != nil {
		log.Warn().Str("trace_id", middleware.GetTraceID(c)).Msg("support webhook: invalid signature")
		return response.Unauthorized(c, "Invalid signature")
	}
	var u supportsvc.DeskUpdate
	if err := json.Unmarshal(body, &u); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	t, err := h.Service.ApplyDeskUpdate(c.UserContext(), u)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Update applied", fiber.Map{"ticket_id": t.TicketID, "status": t.Status}, nil)
}
