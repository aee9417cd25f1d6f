package kyc

import (
	"bytes"
	"net/http/httptest"
	"testing"

	kycsvc "brokerdesk-backend/internal/application/kyc"
	"brokerdesk-backend/internal/domain"
	"brokerdesk-backend/internal/pkg/constants"
	"brokerdesk-backend/internal/pkg/signature"
	"brokerdesk-backend/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const secret = "kyc_secret"

func setupWebhook(t *testing.T) (*fiber.App, *gorm.DB) {
	db := testutil.NewDB(t)
	h := &Handlers{Service: &kycsvc.Service{DB: db}, WebhookSecret: secret}
	app := fiber.New()
	app.Post("/kyc/webhook", h.Webhook)
	return app, db
}

func checkUser(t *testing.T, db *gorm.DB, role, checkID string) domain.User {
	u := testutil.CreateUser(t, db, role, nil)
	require.NoError(t, db.Model(&domain.User{}).Where("user_id = ?", u.UserID).
		Updates(map[string]interface{}{"kyc_status": domain.KYCPending, "kyc_check_id": checkID}).Error)
	return u
}

func post(t *testing.T, app *fiber.App, body []byte, sig string) int {
	req := httptest.NewRequest("POST", "/kyc/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if sig != "" {
		req.Header.Set(kycsvc.SignatureHeader, sig)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestWebhook_RejectsBadSignatureBeforeMutation(t *testing.T) {
	app, db := setupWebhook(t)
	u := checkUser(t, db, constants.BrokerPending, "chk_1")
	body := []byte(`{"check_id":"chk_1","status":"complete","result":"clear"}`)

	assert.Equal(t, fiber.StatusUnauthorized, post(t, app, body, ""))
	assert.Equal(t, fiber.StatusUnauthorized, post(t, app, body, signature.Sign(body, "other")))

	var stored domain.User
	require.NoError(t, db.First(&stored, "user_id = ?", u.UserID).Error)
	assert.Equal(t, domain.KYCPending, stored.KYCStatus)
	assert.Zero(t, testutil.CountAudit(t, db, u.UserID))
}

func TestWebhook_ClearPromotesBroker(t *testing.T) {
	app, db := setupWebhook(t)
	u := checkUser(t, db, constants.BrokerPending, "chk_2")
	body := []byte(`{"check_id":"chk_2","status":"complete","result":"clear"}`)

	assert.Equal(t, fiber.StatusOK, post(t, app, body, "sha256="+signature.Sign(body, secret)))
	var stored domain.User
	require.NoError(t, db.First(&stored, "user_id = ?", u.UserID).Error)
	assert.Equal(t, domain.KYCApproved, stored.KYCStatus)
	assert.Equal(t, constants.Broker, stored.Role)

	// Redelivery changes nothing.
	assert.Equal(t, fiber.StatusOK, post(t, app, body, signature.Sign(body, secret)))
	assert.Equal(t, int64(1), testutil.CountAudit(t, db, u.UserID))
}

func TestWebhook_BadBodies(t *testing.T) {
	app, _ := setupWebhook(t)
	for _, raw := range []string{`{broken`, `{"status":"complete"}`} {
		body := []byte(raw)
		assert.Equal(t, fiber.StatusBadRequest, post(t, app, body, signature.Sign(body, secret)), raw)
	}
	body := []byte(`{"check_id":"missing","status":"complete","result":"clear"}`)
	assert.Equal(t, fiber.StatusNotFound, post(t, app, body, signature.Sign(body, secret)))
}
