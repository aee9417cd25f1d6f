package transactions

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	txsvc "brokerdesk-backend/internal/application/transactions"
	"brokerdesk-backend/internal/domain"
	"brokerdesk-backend/internal/infrastructure/session"
	"brokerdesk-backend/internal/middleware"
	"brokerdesk-backend/internal/pkg/async"
	"brokerdesk-backend/internal/pkg/constants"
	"brokerdesk-backend/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeCheckout struct{ got txsvc.CheckoutRequest }

func (f *fakeCheckout) CreateCheckout(ctx context.Context, req txsvc.CheckoutRequest) (*txsvc.CheckoutSession, error) {
	f.got = req
	return &txsvc.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.test/cs_test_1"}, nil
}

func setupTxApp(t *testing.T) (*fiber.App, *gorm.DB, *fakeCheckout) {
	db := testutil.NewDB(t)
	co := &fakeCheckout{}
	h := &Handlers{Service: &txsvc.Service{DB: db, Checkout: co, Async: async.Inline}}
	app := fiber.New()
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
	app.Use(middleware.RequireAuth())
	app.Post("/portfolios/:id/deposits", middleware.AuthorizePermission(constants.Deposit), h.Deposit)
	app.Post("/portfolios/:id/withdrawals", middleware.AuthorizePermission(constants.Withdraw), h.Withdraw)
	app.Get("/portfolios/:id/transactions", h.List)
	app.Get("/transactions/:id", h.Get)
	app.Post("/transactions/:id/process", middleware.AuthorizePermission(constants.ProcessWithdrawal), h.Process)
	app.Post("/transactions/:id/cancel", h.Cancel)
	return app, db, co
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

func TestDeposit_ReturnsCheckoutURL(t *testing.T) {
	app, db, co := setupTxApp(t)
	u := testutil.CreateUser(t, db, constants.Individual, nil)
	p := testutil.CreatePortfolio(t, db, u.UserID, nil, "0")

	resp, out := do(t, app, "POST", "/portfolios/"+p.PortfolioID.String()+"/deposits", &u, map[string]string{"amount": "25.50"})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, out)
	data := out["data"].(map[string]interface{})
	assert.Equal(t, "https://checkout.test/cs_test_1", data["checkout_url"])
	assert.Equal(t, int64(2550), co.got.AmountCents)

	// Nothing is credited before the webhook.
	got := testutil.ReloadPortfolio(t, db, p.PortfolioID)
	assert.True(t, got.Total.IsZero())

	resp, _ = do(t, app, "POST", "/portfolios/"+p.PortfolioID.String()+"/deposits", &u, map[string]string{"amount": "-1"})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestWithdraw_ProcessFlow(t *testing.T) {
	app, db, _ := setupTxApp(t)
	u := testutil.CreateUser(t, db, constants.Individual, nil)
	admin := testutil.CreateUser(t, db, constants.SuperAdmin, nil)
	p := testutil.CreatePortfolio(t, db, u.UserID, nil, "100")
	path := "/portfolios/" + p.PortfolioID.String() + "/withdrawals"

	resp, out := do(t, app, "POST", path, &u, map[string]string{"amount": "150"})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "insufficient_balance", out["error"].(map[string]interface{})["details"].(map[string]interface{})["code"])

	resp, out = do(t, app, "POST", path, &u, map[string]string{"amount": "40"})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, out)
	id := out["data"].(map[string]interface{})["transaction_id"].(string)

	got := testutil.ReloadPortfolio(t, db, p.PortfolioID)
	assert.True(t, got.Available.Equal(decimal.NewFromInt(60)))
	assert.True(t, got.Total.Equal(decimal.NewFromInt(100)))

	resp, _ = do(t, app, "POST", "/transactions/"+id+"/process", &u, map[string]bool{"approve": true})
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	resp, _ = do(t, app, "POST", "/transactions/"+id+"/process", &admin, map[string]string{"reason": "x"})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, out = do(t, app, "POST", "/transactions/"+id+"/process", &admin, map[string]bool{"approve": true})
	require.Equal(t, fiber.StatusOK, resp.StatusCode, out)
	got = testutil.ReloadPortfolio(t, db, p.PortfolioID)
	assert.True(t, got.Total.Equal(decimal.NewFromInt(60)))
	assert.True(t, got.BalanceConsistent())

	resp, _ = do(t, app, "POST", "/transactions/"+id+"/cancel", &u, nil)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp, out = do(t, app, "GET", "/portfolios/"+p.PortfolioID.String()+"/transactions", &u, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Len(t, out["data"], 1)
}
