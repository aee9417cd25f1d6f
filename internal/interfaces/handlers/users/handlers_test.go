package users

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	usersvc "brokerdesk-backend/internal/application/user"
	"brokerdesk-backend/internal/domain"
	"brokerdesk-backend/internal/infrastructure/session"
	"brokerdesk-backend/internal/middleware"
	"brokerdesk-backend/internal/pkg/constants"
	"brokerdesk-backend/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeRevoker struct{ revoked []uuid.UUID }

func (f *fakeRevoker) DestroyUser(ctx context.Context, id uuid.UUID) error {
	f.revoked = append(f.revoked, id)
	return nil
}

func setupUsersApp(t *testing.T) (*fiber.App, *gorm.DB, *fakeRevoker) {
	db := testutil.NewDB(t)
	rev := &fakeRevoker{}
	h := &Handlers{Service: &usersvc.Service{DB: db, Sessions: rev}}
	app := fiber.New()
	// Tests name the caller with X-Test-User.
	app.Use(func(c *fiber.Ctx) error {
		if id := c.Get("X-Test-User"); id != "" {
			var u domain.User
			if err := db.First(&u, "user_id = ?", id).Error; err == nil {
				su := session.FromDomain(&u)
				middleware.SetUser(c, &su)
			}
		}
		return c.Next()
	})
	g := app.Group("/users", middleware.RequireAuth())
	g.Get("/me", h.Me)
	g.Patch("/me", h.UpdateMe)
	g.Get("/:id", h.ViewUser)
	g.Patch("/:id/role", middleware.AuthorizePermission(constants.AssignRole), h.UpdateRole)
	g.Post("/:id/suspend", middleware.AuthorizePermission(constants.AssignRole), h.Suspend)
	return app, db, rev
}

func do(t *testing.T, app *fiber.App, method, path string, as *domain.User, body interface{}) (*http.Response, map[string]interface{}) {
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if as != nil {
		req.Header.Set("X-Test-User", as.UserID.String())
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	var out map[string]interface{}
	_ = json.Unmarshal(raw, &out)
	return resp, out
}

func TestMe(t *testing.T) {
	app, db, _ := setupUsersApp(t)
	u := testutil.CreateUser(t, db, constants.Individual, nil)

	resp, _ := do(t, app, "GET", "/users/me", nil, nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, out := do(t, app, "GET", "/users/me", &u, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	data := out["data"].(map[string]interface{})
	assert.Equal(t, u.Email, data["email"])
	assert.NotContains(t, data, "password_hash")
}

func TestViewUser_Access(t *testing.T) {
	app, db, _ := setupUsersApp(t)
	u := testutil.CreateUser(t, db, constants.Individual, nil)
	other := testutil.CreateUser(t, db, constants.Individual, nil)
	auditor := testutil.CreateUser(t, db, constants.Audit, nil)

	resp, _ := do(t, app, "GET", "/users/"+other.UserID.String(), &u, nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	resp, _ = do(t, app, "GET", "/users/"+other.UserID.String(), &auditor, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp, _ = do(t, app, "GET", "/users/nope", &auditor, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestUpdateMe(t *testing.T) {
	app, db, _ := setupUsersApp(t)
	u := testutil.CreateUser(t, db, constants.Individual, nil)

	resp, out := do(t, app, "PATCH", "/users/me", &u, map[string]string{"fullname": "jane o'neil"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "Jane O'neil", out["data"].(map[string]interface{})["fullname"])

	resp, _ = do(t, app, "PATCH", "/users/me", &u, map[string]string{})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestUpdateRole(t *testing.T) {
	app, db, rev := setupUsersApp(t)
	admin := testutil.CreateUser(t, db, constants.SuperAdmin, nil)
	u := testutil.CreateUser(t, db, constants.Individual, nil)

	resp, out := do(t, app, "PATCH", "/users/"+admin.UserID.String()+"/role", &u, map[string]string{"role": constants.SuperAdmin})
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Equal(t, constants.AssignRole, out["error"].(map[string]interface{})["details"].(map[string]interface{})["permission"])

	resp, _ = do(t, app, "PATCH", "/users/"+u.UserID.String()+"/role", &admin, map[string]string{"role": constants.Support})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, []uuid.UUID{u.UserID}, rev.revoked)

	resp, out = do(t, app, "PATCH", "/users/"+admin.UserID.String()+"/role", &admin, map[string]string{"role": constants.Audit})
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "self_role_change", out["error"].(map[string]interface{})["details"].(map[string]interface{})["code"])
}

func TestSuspend(t *testing.T) {
	app, db, _ := setupUsersApp(t)
	admin := testutil.CreateUser(t, db, constants.SuperAdmin, nil)
	u := testutil.CreateUser(t, db, constants.Individual, nil)

	resp, out := do(t, app, "POST", "/users/"+u.UserID.String()+"/suspend", &admin, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, domain.UserSuspended, out["data"].(map[string]interface{})["status"])
}
