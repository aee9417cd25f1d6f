package kyc

import (
	"encoding/json"

	kycsvc "brokerdesk-backend/internal/application/kyc"
	"brokerdesk-backend/internal/middleware"
	"brokerdesk-backend/internal/pkg/response"
	"brokerdesk-backend/internal/pkg/signature"
	"brokerdesk-backend/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

type Handlers struct {
	Service       *kycsvc.Service
	WebhookSecret string
}

// Start POST /api/v1/kyc/start
func (h *Handlers) Start(c *fiber.Ctx) error {
	u, err := h.Service.Start(c.UserContext(), middleware.CurrentPrincipal(c))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Accepted(c, "Identity verification started", fiber.Map{
		"kyc_status":   u.KYCStatus,
		"kyc_check_id": u.KYCCheckID,
	})
}

// Webhook POST /api/v1/kyc/webhook. The signature is checked against the raw body before
// anything is decoded.
func (h *Handlers) Webhook(c *fiber.Ctx) error {
	body := c.Body()
	if err := signature.Verify(body, c.Get(kycsvc.SignatureHeader), h.WebhookSecret); err != nil {
		log.Warn().Str("trace_id", middleware.GetTraceID(c)).Msg("kyc webhook: invalid signature")
		return response.Unauthorized(c, "Invalid signature")
	}
	var r kycsvc.Result
	if err := json.Unmarshal(body, &r); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	if err := validation.Struct(r); err != nil {
		return response.FromError(c, err)
	}
	u, changed, err := h.Service.ApplyResult(c.UserContext(), r)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Result received", fiber.Map{
		"user_id":    u.UserID,
		"kyc_status": u.KYCStatus,
		"changed":    changed,
	}, nil)
}
