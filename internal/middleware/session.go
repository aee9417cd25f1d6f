package middleware

import (
	"errors"
	"strings"
	"time"

	"brokerdesk-backend/internal/application/policies/access"
	"brokerdesk-backend/internal/infrastructure/session"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// SessionConfig holds the cookie flags for the Redis-backed session.
type SessionConfig struct {
	AllowCrossSiteDev bool
	IsProduction      bool
}

const (
	SessionCookieName = "tsa.sid"
	sessionMaxAge     = session.DefaultTTL

	userLocal      = "user"
	sessionIDLocal = "session_id"
)

// Session resolves the session id from the tsa.sid cookie or an Authorization: Bearer
// header and loads the session user from Redis. It never rejects; RequireAuth does.
func Session(store *session.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sid := sessionIDFrom(c)
		if sid == "" {
			return c.Next()
		}
		u, err := store.Get(c.UserContext(), sid)
		switch {
		case errors.Is(err, session.ErrNotFound):
		case err != nil:
			log.Warn().Err(err).Str("trace_id", GetTraceID(c)).Msg("session lookup failed")
		default:
			c.Locals(userLocal, u)
			c.Locals(sessionIDLocal, sid)
		}
		return c.Next()
	}
}

func sessionIDFrom(c *fiber.Ctx) string {
	if h := c.Get(fiber.HeaderAuthorization); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	sid := c.Cookies(SessionCookieName)
	// Cookie may be "s:id" or "s:id.signature"; use first part as id
	if strings.HasPrefix(sid, "s:") {
		sid = strings.SplitN(sid[2:], ".", 2)[0]
	}
	return sid
}

// GetSessionID returns the resolved session id ("" when the request has no live session).
func GetSessionID(c *fiber.Ctx) string {
	sid, _ := c.Locals(sessionIDLocal).(string)
	return sid
}

// SetUser attaches u to the request as if it came from the session store.
func SetUser(c *fiber.Ctx, u *session.User) {
	c.Locals(userLocal, u)
}

// GetUser returns the session user from Locals (nil if not logged in).
func GetUser(c *fiber.Ctx) *session.User {
	u, _ := c.Locals(userLocal).(*session.User)
	return u
}

// CurrentPrincipal returns the access principal of the session user. The zero principal
// is returned for anonymous requests.
func CurrentPrincipal(c *fiber.Ctx) access.Principal {
	u := GetUser(c)
	if u == nil {
		return access.Principal{}
	}
	p, _ := u.Principal()
	return p
}

// SessionCookie returns the cookie carrying sid with the configured flags.
func SessionCookie(cfg SessionConfig, sid string) *fiber.Cookie {
	sameSite := fiber.CookieSameSiteLaxMode
	if cfg.AllowCrossSiteDev {
		sameSite = fiber.CookieSameSiteNoneMode
	}
	c := &fiber.Cookie{
		Name:     SessionCookieName,
		Value:    "s:" + sid,
		Path:     "/",
		MaxAge:   int(sessionMaxAge / time.Second),
		HTTPOnly: true,
		Secure:   cfg.IsProduction || cfg.AllowCrossSiteDev,
		SameSite: sameSite,
	}
	if sid == "" {
		c.Value = ""
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
	}
	return c
}
