package auth

import (
	authsvc "brokerdesk-backend/internal/application/auth"
	usersvc "brokerdesk-backend/internal/application/user"
	"brokerdesk-backend/internal/domain"
	"brokerdesk-backend/internal/middleware"
	"brokerdesk-backend/internal/pkg/request"
	"brokerdesk-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// Handlers holds dependencies for auth endpoints.
type Handlers struct {
	Service *authsvc.Service
	Users   *usersvc.Service
	Config  middleware.SessionConfig
}

// sessionBody is returned by register and login. session_id may be sent back as a Bearer
// token by clients that cannot keep cookies.
func sessionBody(u *domain.User, sid string) fiber.Map {
	return fiber.Map{
		"user": fiber.Map{
			"user_id":      u.UserID,
			"fullname":     u.Fullname,
			"email":        u.Email,
			"role":         u.Role,
			"kyc_status":   u.KYCStatus,
			"brokerage_id": u.BrokerageID,
		},
		"session_id": sid,
	}
}

// Register POST /api/v1/auth/register
func (h *Handlers) Register(c *fiber.Ctx) error {
	var in usersvc.RegisterInput
	if err := request.Body(c, &in); err != nil {
		return response.FromError(c, err)
	}
	u, err := h.Users.Register(c.UserContext(), in)
	if err != nil {
		return response.FromError(c, err)
	}
	sid, err := h.Service.StartSession(c.UserContext(), u)
	if err != nil {
		return response.FromError(c, err)
	}
	c.Cookie(middleware.SessionCookie(h.Config, sid))
	return response.SuccessCreated(c, "Account created", sessionBody(u, sid), nil)
}

// Login POST /api/v1/auth/login
func (h *Handlers) Login(c *fiber.Ctx) error {
	var in authsvc.LoginInput
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return response.FromError(c, authsvc.ErrEmailPasswordRequired)
		}
	}
	u, sid, err := h.Service.Login(c.UserContext(), in)
	if err != nil {
		return response.FromError(c, err)
	}
	// Drop the session presented with this request; login always starts a fresh one.
	if old := middleware.GetSessionID(c); old != "" {
		_ = h.Service.Logout(c.UserContext(), old)
	}
	c.Cookie(middleware.SessionCookie(h.Config, sid))
	return response.Success(c, "Login successful", sessionBody(u, sid), nil)
}

// Me GET /api/v1/auth/me
func (h *Handlers) Me(c *fiber.Ctx) error {
	u, err := h.Service.Me(c.UserContext(), middleware.GetSessionID(c))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Session user", u, nil)
}

// Logout DELETE /api/v1/auth/logout
func (h *Handlers) Logout(c *fiber.Ctx) error {
	if err := h.Service.Logout(c.UserContext(), middleware.GetSessionID(c)); err != nil {
		return response.FromError(c, err)
	}
	c.Cookie(middleware.SessionCookie(h.Config, ""))
	return response.Success(c, "Logged out", nil, nil)
}
