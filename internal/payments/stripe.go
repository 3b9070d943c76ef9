package payments

import (
	"context"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
)

// Settler finalizes or releases a payment held at checkout. ref is the
// processor's reference stored on the order.
type Settler interface {
	Capture(ctx context.Context, ref string) error
	Release(ctx context.Context, ref string) error
}

// StripeSettler settles card orders whose checkout created a PaymentIntent
// with capture_method=manual.
type StripeSettler struct{}

// NewStripeSettler initializes the stripe client with the given secret key.
func NewStripeSettler(apiKey string) *StripeSettler {
	stripe.Key = apiKey
	return &StripeSettler{}
}

// Capture finalizes a previously-held PaymentIntent once the order is delivered.
func (s *StripeSettler) Capture(ctx context.Context, ref string) error {
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	_, err := paymentintent.Capture(ref, params)
	return err
}

// Release cancels the hold on a PaymentIntent when the order is cancelled.
func (s *StripeSettler) Release(ctx context.Context, ref string) error {
	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonAbandoned)),
	}
	params.Context = ctx
	_, err := paymentintent.Cancel(ref, params)
	return err
}
