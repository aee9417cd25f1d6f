package transactions

import "context"

// CheckoutRequest is what the payment processor needs to open a hosted checkout page.
type CheckoutRequest struct {
	AmountCents   int64
	Currency      string
	Description   string
	CustomerEmail string
	Metadata      map[string]string
}

type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CheckoutCreator abstracts checkout-session creation for testability.
type CheckoutCreator interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
}
