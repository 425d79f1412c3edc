package payments

import (
	"context"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
)

// StripeHolder places, captures and releases upfront fare authorization
// holds via Stripe PaymentIntents with manual capture.
type StripeHolder struct{}

// NewStripeHolder initializes the stripe client with the given API key.
func NewStripeHolder(apiKey string) *StripeHolder {
	stripe.Key = apiKey
	return &StripeHolder{}
}

// Hold creates a PaymentIntent with capture_method=manual to hold the
// estimated fare. It returns the PaymentIntent ID on success.
func (s *StripeHolder) Hold(ctx context.Context, amount int64, currency, customerID string) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(currency),
	}
	if customerID != "" {
		params.Customer = stripe.String(customerID)
	}
	params.CaptureMethod = stripe.String(string(stripe.PaymentIntentCaptureMethodManual))
	pi, err := paymentintent.New(params)
	if err != nil {
		return "", err
	}
	return pi.ID, nil
}

// Capture finalizes a previously-held PaymentIntent once the trip is done.
func (s *StripeHolder) Capture(ctx context.Context, holdID string) error {
	_, err := paymentintent.Capture(holdID, nil)
	return err
}

// Release cancels the hold when the trip is canceled.
func (s *StripeHolder) Release(ctx context.Context, holdID string) error {
	_, err := paymentintent.Cancel(holdID, nil)
	return err
}
