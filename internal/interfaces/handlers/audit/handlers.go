package audit

import (
	auditsvc "brokerdesk-backend/internal/application/audit"
	"brokerdesk-backend/internal/middleware"
	"brokerdesk-backend/internal/pkg/request"
	"brokerdesk-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

type Handlers struct {
	Service *auditsvc.Service
}

// List GET /api/v1/audit-logs?actor_id=&target_type=&target_id=&action=&limit=&offset=
func (h *Handlers) List(c *fiber.Ctx) error {
	actor, err := request.OptionalUUIDQuery(c, "actor_id")
	if err != nil {
		return response.FromError(c, err)
	}
	target, err := request.OptionalUUIDQuery(c, "target_id")
	if err != nil {
		return response.FromError(c, err)
	}
	limit, offset := request.Page(c, 50, 200)
	rows, total, err := h.Service.List(c.UserContext(), middleware.CurrentPrincipal(c), auditsvc.Filter{
		ActorID:    actor,
		TargetType: c.Query("target_type"),
		TargetID:   target,
		Action:     c.Query("action"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Audit logs retrieved", rows, request.PageMeta(total, limit, offset))
}
