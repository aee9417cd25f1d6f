// Package payments opens hosted Stripe checkout sessions for deposits.
package payments

import (
	"context"
	"errors"
	"strings"

	"brokerdesk-backend/internal/application/transactions"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"
)

var ErrNotConfigured = errors.New("stripe secret key is not configured")

// StripeCheckout implements transactions.CheckoutCreator. It uses its own client so the
// package-level stripe.Key is never mutated.
type StripeCheckout struct {
	SecretKey  string
	SuccessURL string
	CancelURL  string

	// Backend overrides the API backend (tests point it at an httptest server).
	Backend stripe.Backend
}

func (s *StripeCheckout) client() *session.Client {
	b := s.Backend
	if b == nil {
		b = stripe.GetBackend(stripe.APIBackend)
	}
	return &session.Client{B: b, Key: s.SecretKey}
}

func (s *StripeCheckout) CreateCheckout(ctx context.Context, req transactions.CheckoutRequest) (*transactions.CheckoutSession, error) {
	if s.SecretKey == "" {
		return nil, ErrNotConfigured
	}
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(s.SuccessURL),
		CancelURL:  stripe.String(s.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(req.Currency)),
				UnitAmount: stripe.Int64(req.AmountCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.Description),
				},
			},
		}},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: req.Metadata,
		},
	}
	if id := req.Metadata["transaction_id"]; id != "" {
		params.ClientReferenceID = stripe.String(id)
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	cs, err := s.client().New(params)
	if err != nil {
		return nil, err
	}
	return &transactions.CheckoutSession{ID: cs.ID, URL: cs.URL}, nil
}
