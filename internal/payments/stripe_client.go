package payments

import (
	"context"

	pkgstripe "github.com/fastidp/fastidp-backend/pkg/stripe"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/coupon"
	"github.com/stripe/stripe-go/v84/paymentintent"
)

// StripeClient exposes the subset of Stripe operations the payment service needs.
type StripeClient interface {
	CreatePaymentIntent(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, id string) (*stripe.CheckoutSession, error)
	ExpireCheckoutSession(ctx context.Context, id string) error
	GetCoupon(ctx context.Context, id string, params *stripe.CouponParams) (*stripe.Coupon, error)
}

type stripeClientWrapper struct{}

// NewStripeClient adapts the resource-package calls configured by
// pkgstripe.NewClient so the payment service can be tested with fakes.
func NewStripeClient(api *pkgstripe.Client) StripeClient {
	if api == nil {
		return nil
	}
	return &stripeClientWrapper{}
}

func (w *stripeClientWrapper) CreatePaymentIntent(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if params != nil {
		params.Context = ctx
	}
	return paymentintent.New(params)
}

func (w *stripeClientWrapper) CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if params != nil {
		params.Context = ctx
	}
	return session.New(params)
}

func (w *stripeClientWrapper) GetCheckoutSession(ctx context.Context, id string) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	return session.Get(id, params)
}

func (w *stripeClientWrapper) ExpireCheckoutSession(ctx context.Context, id string) error {
	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx
	_, err := session.Expire(id, params)
	return err
}

func (w *stripeClientWrapper) GetCoupon(ctx context.Context, id string, params *stripe.CouponParams) (*stripe.Coupon, error) {
	if params == nil {
		params = &stripe.CouponParams{}
	}
	params.Context = ctx
	return coupon.Get(id, params)
}
