package documents

import (
	documentsvc "brokerdesk-backend/internal/application/documents"
	"brokerdesk-backend/internal/middleware"
	"brokerdesk-backend/internal/pkg/request"
	"brokerdesk-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

type Handlers struct {
	Service *documentsvc.Service
}

// RequestUpload POST /api/v1/documents
func (h *Handlers) RequestUpload(c *fiber.Ctx) error {
	var in documentsvc.UploadInput
	if err := request.Body(c, &in); err != nil {
		return response.FromError(c, err)
	}
	up, err := h.Service.RequestUpload(c.UserContext(), middleware.CurrentPrincipal(c), in)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Upload URL generated", up, nil)
}

// ConfirmUpload POST /api/v1/documents/:id/confirm
func (h *Handlers) ConfirmUpload(c *fiber.Ctx) error {
	id, err := request.UUIDParam(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	doc, err := h.Service.ConfirmUpload(c.UserContext(), middleware.CurrentPrincipal(c), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Upload confirmed", doc, nil)
}

// List GET /api/v1/documents?user_id= (defaults to the caller)
func (h *Handlers) List(c *fiber.Ctx) error {
	p := middleware.CurrentPrincipal(c)
	userID, err := request.OptionalUUIDQuery(c, "user_id")
	if err != nil {
		return response.FromError(c, err)
	}
	target := p.UserID
	if userID != nil {
		target = *userID
	}
	docs, err := h.Service.List(c.UserContext(), p, target)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Documents retrieved", docs, nil)
}
