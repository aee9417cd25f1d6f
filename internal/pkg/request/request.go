// Package request parses path, query and body input for handlers into apperr errors.
package request

import (
	"strings"

	"brokerdesk-backend/internal/pkg/apperr"
	"brokerdesk-backend/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Body decodes the JSON body into v and runs its validate tags.
func Body(c *fiber.Ctx, v interface{}) error {
	if len(c.Body()) == 0 {
		return apperr.Validation("invalid_request", "Request body is required")
	}
	if err := c.BodyParser(v); err != nil {
		return apperr.Validation("invalid_request", "Invalid request body")
	}
	return validation.Struct(v)
}

// UUIDParam reads a uuid path parameter.
func UUIDParam(c *fiber.Ctx, name string) (uuid.UUID, error) {
	return parseUUID(name, c.Params(name))
}

// OptionalUUIDQuery reads a uuid query parameter; nil when absent.
func OptionalUUIDQuery(c *fiber.Ctx, name string) (*uuid.UUID, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	id, err := parseUUID(name, raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func parseUUID(name, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid_"+name, "Invalid UUID format for "+name)
	}
	return id, nil
}

// Page reads limit and offset, clamping limit to [1, max].
func Page(c *fiber.Ctx, def, max int) (limit, offset int) {
	limit = c.QueryInt("limit", def)
	if limit <= 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	offset = c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// PageMeta is the pagination metadata of list responses.
func PageMeta(total int64, limit, offset int) fiber.Map {
	return fiber.Map{"total": total, "limit": limit, "offset": offset}
}
