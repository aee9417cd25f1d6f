package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"brokerdesk-backend/internal/application/transactions"
	"brokerdesk-backend/internal/domain"
	"brokerdesk-backend/internal/pkg/apperr"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DepositSettler is the part of transactions.Service the webhook drives.
type DepositSettler interface {
	CompleteDeposit(ctx context.Context, sessionID string, transactionID uuid.UUID) (*domain.Transaction, error)
	FailDeposit(ctx context.Context, sessionID string, transactionID uuid.UUID, reason string) (*domain.Transaction, error)
}

var _ DepositSettler = (*transactions.Service)(nil)

type WebhookHandler struct {
	DB            *gorm.DB
	Deposits      DepositSettler
	WebhookSecret string
}

type checkoutSessionObject struct {
	ID                string            `json:"id"`
	ClientReferenceID string            `json:"client_reference_id"`
	PaymentStatus     string            `json:"payment_status"`
	Metadata          map[string]string `json:"metadata"`
}

func (o checkoutSessionObject) transactionID() (uuid.UUID, bool) {
	raw := o.Metadata["transaction_id"]
	if raw == "" {
		raw = o.ClientReferenceID
	}
	id, err := uuid.Parse(raw)
	return id, err == nil
}

// HandleWebhook POST /api/v1/stripe/webhook. The signature is verified on the raw body first.
func (wh *WebhookHandler) HandleWebhook(c *fiber.Ctx) error {
	if wh.WebhookSecret == "" {
		log.Error().Msg("Stripe webhook secret not configured; refusing event")
		return c.Status(fiber.StatusBadRequest).SendString("Webhook Error: not configured")
	}

	rawBody := c.BodyRaw()
	sig := c.Get("Stripe-Signature")

	if len(rawBody) == 0 {
		log.Warn().Msg("Stripe webhook received empty body (ensure no global body parser consumes the webhook body)")
		return c.Status(fiber.StatusBadRequest).SendString("Webhook Error: empty body")
	}

	event, err := webhook.ConstructEventWithOptions(rawBody, sig, wh.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		log.Warn().Err(err).Bool("has_sig", sig != "").Msg("Stripe webhook signature verification failed")
		return c.Status(fiber.StatusBadRequest).SendString(fmt.Sprintf("Webhook Error: %s", err.Error()))
	}

	var obj checkoutSessionObject
	if event.Data != nil {
		if err := json.Unmarshal(event.Data.Raw, &obj); err != nil {
			log.Warn().Err(err).Str("event_id", event.ID).Msg("Stripe webhook object parse failed")
			return c.Status(fiber.StatusOK).SendString("ok")
		}
	}

	fresh, err := wh.archive(c.UserContext(), event, obj, rawBody)
	if err != nil {
		log.Error().Err(err).Str("event_id", event.ID).Msg("Stripe webhook archive failed")
		return c.Status(fiber.StatusInternalServerError).SendString("Webhook Error: storage")
	}
	if !fresh {
		log.Info().Str("event_id", event.ID).Msg("Stripe webhook already processed")
		return c.Status(fiber.StatusOK).SendString("ok")
	}

	if err := wh.dispatch(c.UserContext(), event, obj); err != nil {
		if final(err) {
			log.Warn().Err(err).Str("event_id", event.ID).Str("type", string(event.Type)).Msg("Stripe webhook rejected")
			return c.Status(fiber.StatusOK).SendString("ok")
		}
		log.Error().Err(err).Str("event_id", event.ID).Msg("Stripe webhook processing failed")
		wh.forget(c.UserContext(), event.ID)
		return c.Status(fiber.StatusInternalServerError).SendString("Webhook Error: processing")
	}
	return c.Status(fiber.StatusOK).SendString("ok")
}

// final reports whether a retry of the same event would be rejected the same way.
// Concurrent-update conflicts and upstream or internal failures are retried.
func final(err error) bool {
	e, ok := apperr.As(err)
	if !ok {
		return false
	}
	switch e.Kind {
	case apperr.KindValidation, apperr.KindNotFound, apperr.KindForbidden:
		return true
	case apperr.KindConflict:
		return e.Code == "transaction_immutable"
	}
	return false
}

func (wh *WebhookHandler) dispatch(ctx context.Context, event stripe.Event, obj checkoutSessionObject) error {
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		// Delayed payment methods complete the session unpaid; wait for async_payment_succeeded.
		if obj.PaymentStatus == string(stripe.CheckoutSessionPaymentStatusUnpaid) {
			return nil
		}
		return wh.complete(ctx, obj)
	case stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		return wh.complete(ctx, obj)
	case stripe.EventTypeCheckoutSessionExpired:
		return wh.fail(ctx, obj, "checkout expired")
	case stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		return wh.fail(ctx, obj, "payment failed")
	}
	return nil
}

func (wh *WebhookHandler) complete(ctx context.Context, obj checkoutSessionObject) error {
	id, ok := obj.transactionID()
	if !ok {
		return apperr.Validation("missing_transaction_id", "Checkout session carries no transaction id")
	}
	_, err := wh.Deposits.CompleteDeposit(ctx, obj.ID, id)
	return err
}

func (wh *WebhookHandler) fail(ctx context.Context, obj checkoutSessionObject, reason string) error {
	id, ok := obj.transactionID()
	if !ok {
		return apperr.Validation("missing_transaction_id", "Checkout session carries no transaction id")
	}
	_, err := wh.Deposits.FailDeposit(ctx, obj.ID, id, reason)
	return err
}

// archive stores the verified event. It reports false when the event id was seen before.
func (wh *WebhookHandler) archive(ctx context.Context, event stripe.Event, obj checkoutSessionObject, rawBody []byte) (bool, error) {
	rec := domain.PaymentEvent{
		StripeEventID:     event.ID,
		Type:              string(event.Type),
		CheckoutSessionID: obj.ID,
		Payload:           datatypes.JSON(rawBody),
	}
	if id, ok := obj.transactionID(); ok {
		rec.TransactionID = &id
	}
	res := wh.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// forget drops the archive row of an event whose processing failed so the provider's retry
// is processed again.
func (wh *WebhookHandler) forget(ctx context.Context, eventID string) {
	err := wh.DB.WithContext(ctx).Where("stripe_event_id = ?", eventID).Delete(&domain.PaymentEvent{}).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Error().Err(err).Str("event_id", eventID).Msg("Stripe webhook archive cleanup failed")
	}
}
