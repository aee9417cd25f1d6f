package router

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"brokerdesk-backend/internal/config"
	"brokerdesk-backend/internal/pkg/async"
	"brokerdesk-backend/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupApp(t *testing.T) *fiber.App {
	db := testutil.NewDB(t)
	_, rdb := testutil.NewRedis(t)
	cfg := &config.Config{
		Env:                 "test",
		Currency:            "usd",
		LargeTradeThreshold: decimal.NewFromInt(100000),
		HealthAdminKey:      "admin-key",
	}
	return New(cfg, db, rdb, async.Inline)
}

func do(t *testing.T, app *fiber.App, method, path, token string, body interface{}) *http.Response {
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func readJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func register(t *testing.T, app *fiber.App) string {
	resp := do(t, app, "POST", "/api/v1/auth/register", "", map[string]string{
		"email": "carol@example.com", "password": "s3cret!pass", "fullname": "carol jones",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	data := readJSON(t, resp)["data"].(map[string]interface{})
	sid, _ := data["session_id"].(string)
	require.NotEmpty(t, sid)
	return sid
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	app := setupApp(t)

	resp := do(t, app, "GET", "/health/json", "", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", readJSON(t, resp)["status"])

	resp = do(t, app, "GET", "/metrics", "", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "brokerdesk_http_requests_total")
}

func TestRouter_ProtectedRoutesNeedSession(t *testing.T) {
	app := setupApp(t)

	for _, path := range []string{"/api/v1/portfolios", "/api/v1/trades", "/api/v1/users/me", "/api/v1/audit-logs"} {
		resp := do(t, app, "GET", path, "", nil)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, path)
	}
}

func TestRouter_SessionFlow(t *testing.T) {
	app := setupApp(t)
	sid := register(t, app)

	resp := do(t, app, "GET", "/api/v1/auth/me", sid, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = do(t, app, "GET", "/api/v1/portfolios", sid, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	// Individuals cannot read the audit trail.
	resp = do(t, app, "GET", "/api/v1/audit-logs", sid, nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp = do(t, app, "DELETE", "/api/v1/auth/logout", sid, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp = do(t, app, "GET", "/api/v1/auth/me", sid, nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestRouter_WebhooksRejectUnsigned(t *testing.T) {
	app := setupApp(t)

	for _, path := range []string{"/api/v1/kyc/webhook", "/api/v1/support/webhook"} {
		resp := do(t, app, "POST", path, "", map[string]string{"user_id": "x"})
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, path)
	}
}
