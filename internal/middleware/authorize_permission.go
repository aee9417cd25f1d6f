package middleware

import (
	"brokerdesk-backend/internal/pkg/constants"
	"brokerdesk-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// AuthorizePermission checks the session role against constants.PermissionRoles before the
// handler runs. Resource-level checks still happen in the services.
// Unconfigured permission -> 500 "Permission configuration error"; role not allowed -> 403.
func AuthorizePermission(permission string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p := CurrentPrincipal(c)
		if p.IsZero() {
			return response.Unauthorized(c, "Unauthorized")
		}
		if roles, ok := constants.PermissionRoles[permission]; !ok || len(roles) == 0 {
			return response.Error(c, "Permission configuration error", fiber.StatusInternalServerError, nil)
		}
		if !constants.AllowedRole(permission, p.Role) {
			return response.Error(c, "User is Forbidden from performing this action", fiber.StatusForbidden,
				fiber.Map{"code": "forbidden", "permission": permission})
		}
		return c.Next()
	}
}
