package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	authsvc "brokerdesk-backend/internal/application/auth"
	usersvc "brokerdesk-backend/internal/application/user"
	"brokerdesk-backend/internal/infrastructure/session"
	"brokerdesk-backend/internal/middleware"
	"brokerdesk-backend/internal/pkg/async"
	"brokerdesk-backend/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupAuthApp(t *testing.T) (*fiber.App, *session.Store) {
	db := testutil.NewDB(t)
	_, rdb := testutil.NewRedis(t)
	store := session.NewStore(rdb)
	h := &Handlers{
		Service: &authsvc.Service{DB: db, Sessions: store},
		Users:   &usersvc.Service{DB: db, Sessions: store, Async: async.Inline},
	}
	app := fiber.New()
	app.Use(middleware.Session(store))
	app.Post("/register", h.Register)
	app.Post("/login", h.Login)
	app.Get("/me", middleware.RequireAuth(), h.Me)
	app.Delete("/logout", h.Logout)
	return app, store
}

func postJSON(t *testing.T, app *fiber.App, path string, v interface{}) *http.Response {
	body, _ := json.Marshal(v)
	req := httptest.NewRequest("POST", path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]interface{} {
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func sessionCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == middleware.SessionCookieName {
			return c
		}
	}
	return nil
}

var alice = map[string]string{"email": "Alice@Example.com", "password": "s3cret!pass", "fullname": "alice smith"}

func TestRegister_StartsSession(t *testing.T) {
	app, store := setupAuthApp(t)

	resp := postJSON(t, app, "/register", alice)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	cookie := sessionCookie(resp)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, strings.HasPrefix(cookie.Value, "s:"))

	data := decode(t, resp)["data"].(map[string]interface{})
	user := data["user"].(map[string]interface{})
	assert.Equal(t, "alice@example.com", user["email"])
	assert.Equal(t, "individual", user["role"])
	assert.Equal(t, "pending", user["kyc_status"])

	sid := data["session_id"].(string)
	assert.Equal(t, "s:"+sid, cookie.Value)
	su, err := store.Get(context.Background(), sid)
	require.NoError(t, err)
	assert.Equal(t, "Alice Smith", su.Fullname)
}

func TestRegister_Rejections(t *testing.T) {
	app, _ := setupAuthApp(t)
	require.Equal(t, fiber.StatusCreated, postJSON(t, app, "/register", alice).StatusCode)

	resp := postJSON(t, app, "/register", alice)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	errBody := decode(t, resp)["error"].(map[string]interface{})
	assert.Equal(t, "email_taken", errBody["details"].(map[string]interface{})["code"])

	resp = postJSON(t, app, "/register", map[string]string{"email": "b@example.com", "password": "short", "fullname": "Bob"})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestLogin_MeLogout(t *testing.T) {
	app, _ := setupAuthApp(t)
	require.Equal(t, fiber.StatusCreated, postJSON(t, app, "/register", alice).StatusCode)

	resp := postJSON(t, app, "/login", map[string]string{"email": "alice@example.com", "password": "wrong!pass1"})
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp = postJSON(t, app, "/login", map[string]string{"email": "alice@example.com", "password": alice["password"]})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	sid := decode(t, resp)["data"].(map[string]interface{})["session_id"].(string)

	// Bearer carries the same session id as the cookie.
	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer "+sid)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "alice@example.com", decode(t, resp)["data"].(map[string]interface{})["email"])

	req = httptest.NewRequest("DELETE", "/logout", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "s:" + sid})
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.NotNil(t, sessionCookie(resp))
	assert.Empty(t, sessionCookie(resp).Value)

	req = httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer "+sid)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestLogin_EmptyBody(t *testing.T) {
	app, _ := setupAuthApp(t)
	req := httptest.NewRequest("POST", "/login", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
