package trades

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	tradesvc "brokerdesk-backend/internal/application/trades"
	"brokerdesk-backend/internal/domain"
	"brokerdesk-backend/internal/infrastructure/session"
	"brokerdesk-backend/internal/middleware"
	"brokerdesk-backend/internal/pkg/constants"
	"brokerdesk-backend/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTradesApp(t *testing.T) (*fiber.App, *gorm.DB) {
	db := testutil.NewDB(t)
	h := &Handlers{Service: &tradesvc.Service{DB: db, LargeTradeThreshold: decimal.NewFromInt(100000)}}
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
	g := app.Group("/trades", middleware.RequireAuth())
	g.Post("/", middleware.AuthorizePermission(constants.PlaceTrade), h.Create)
	g.Get("/", h.List)
	g.Get("/:id", h.Get)
	g.Post("/:id/client-approve", h.ClientApprove)
	g.Post("/:id/cancel", h.Cancel)
	return app, db
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

func TestCreateAndClientApprove(t *testing.T) {
	app, db := setupTradesApp(t)
	u := testutil.CreateUser(t, db, constants.Individual, nil)
	p := testutil.CreatePortfolio(t, db, u.UserID, nil, "1000")

	resp, out := do(t, app, "POST", "/trades", &u, map[string]interface{}{
		"portfolio_id": p.PortfolioID, "symbol": "aapl", "side": "buy", "order_type": "market",
		"quantity": "2", "price": 100,
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, out)
	trade := out["data"].(map[string]interface{})
	assert.Equal(t, "AAPL", trade["symbol"])
	assert.Equal(t, string(domain.TradePending), trade["status"])
	id := trade["trade_id"].(string)

	resp, out = do(t, app, "POST", "/trades/"+id+"/client-approve", &u, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, out)
	assert.Equal(t, string(domain.TradeCompleted), out["data"].(map[string]interface{})["status"])

	got := testutil.ReloadPortfolio(t, db, p.PortfolioID)
	assert.True(t, got.Available.Equal(decimal.NewFromInt(800)), got.Available.String())
	require.Len(t, got.Positions, 1)

	resp, _ = do(t, app, "POST", "/trades/"+id+"/cancel", &u, map[string]string{"reason": "late"})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
}

func TestCreate_Rejections(t *testing.T) {
	app, db := setupTradesApp(t)
	u := testutil.CreateUser(t, db, constants.Individual, nil)
	other := testutil.CreateUser(t, db, constants.Individual, nil)
	auditor := testutil.CreateUser(t, db, constants.Audit, nil)
	p := testutil.CreatePortfolio(t, db, u.UserID, nil, "1000")
	order := map[string]interface{}{
		"portfolio_id": p.PortfolioID, "symbol": "MSFT", "side": "sell", "order_type": "limit",
		"quantity": "1", "price": "10",
	}

	resp, out := do(t, app, "POST", "/trades", &u, order)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "limit_price_required", out["error"].(map[string]interface{})["details"].(map[string]interface{})["code"])

	order["limit_price"] = "9.5"
	resp, _ = do(t, app, "POST", "/trades", &other, order)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, _ = do(t, app, "POST", "/trades", &auditor, order)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, _ = do(t, app, "POST", "/trades", &u, map[string]interface{}{"symbol": "MSFT"})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestListAndGet(t *testing.T) {
	app, db := setupTradesApp(t)
	u := testutil.CreateUser(t, db, constants.Individual, nil)
	p := testutil.CreatePortfolio(t, db, u.UserID, nil, "1000")
	_, out := do(t, app, "POST", "/trades", &u, map[string]interface{}{
		"portfolio_id": p.PortfolioID, "symbol": "IBM", "side": "buy", "order_type": "market", "quantity": 1, "price": 5,
	})
	id := out["data"].(map[string]interface{})["trade_id"].(string)

	resp, out := do(t, app, "GET", "/trades?portfolio_id="+p.PortfolioID.String(), &u, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Len(t, out["data"], 1)

	resp, _ = do(t, app, "GET", "/trades?portfolio_id=bad", &u, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, app, "GET", "/trades/"+id, &u, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
