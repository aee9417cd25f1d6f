package notifications

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	notificationsvc "brokerdesk-backend/internal/application/notifications"
	"brokerdesk-backend/internal/domain"
	"brokerdesk-backend/internal/infrastructure/session"
	"brokerdesk-backend/internal/middleware"
	"brokerdesk-backend/internal/pkg/async"
	"brokerdesk-backend/internal/pkg/constants"
	"brokerdesk-backend/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceTokens(t *testing.T) {
	db := testutil.NewDB(t)
	h := &Handlers{Service: &notificationsvc.Service{DB: db, Async: async.Inline}}
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		var u domain.User
		if err := db.First(&u, "user_id = ?", c.Get("X-Test-User")).Error; err == nil {
			su := session.FromDomain(&u)
			middleware.SetUser(c, &su)
		}
		return c.Next()
	})
	app.Post("/tokens", middleware.RequireAuth(), h.RegisterToken)
	app.Delete("/tokens/:token", middleware.RequireAuth(), h.RemoveToken)

	u := testutil.CreateUser(t, db, constants.Individual, nil)
	send := func(method, path string, body interface{}) (int, map[string]interface{}) {
		raw, _ := json.Marshal(body)
		req := httptest.NewRequest(method, path, bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-User", u.UserID.String())
		resp, err := app.Test(req)
		require.NoError(t, err)
		b, _ := io.ReadAll(resp.Body)
		var out map[string]interface{}
		_ = json.Unmarshal(b, &out)
		return resp.StatusCode, out
	}

	status, _ := send("POST", "/tokens", map[string]string{"token": "tok-1"})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = send("POST", "/tokens", map[string]string{"token": "tok-1", "platform": "pager"})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, out := send("POST", "/tokens", map[string]string{"token": "tok-1", "platform": "iOS"})
	require.Equal(t, fiber.StatusCreated, status, out)
	assert.Equal(t, "ios", out["data"].(map[string]interface{})["platform"])

	status, _ = send("DELETE", "/tokens/tok-1", nil)
	assert.Equal(t, fiber.StatusOK, status)
	status, _ = send("DELETE", "/tokens/tok-1", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}
