package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/fastidp/fastidp-backend/internal/pricing"
	"github.com/fastidp/fastidp-backend/pkg/db/models"
	"github.com/fastidp/fastidp-backend/pkg/enums"
	pkgerrors "github.com/fastidp/fastidp-backend/pkg/errors"
	"github.com/fastidp/fastidp-backend/pkg/logger"
	"github.com/stripe/stripe-go/v84"
)

const (
	providerStripe = "stripe"

	// CheckoutSessionPlaceholder is substituted by Stripe with the session id.
	CheckoutSessionPlaceholder = "{CHECKOUT_SESSION_ID}"
)

type applicationStore interface {
	Get(ctx context.Context, applicationID string) (*models.Application, error)
	AttachCheckoutSession(ctx context.Context, applicationID, previousSessionID, sessionID string) (bool, error)
	AttachPaymentIntent(ctx context.Context, applicationID, paymentIntentID string) error
}

type quoter interface {
	Compute(sel pricing.Selection) (pricing.PriceQuote, error)
	ProductID(item pricing.LineItem) string
}

type ServiceParams struct {
	Applications applicationStore
	Pricing      quoter
	Stripe       StripeClient
	Logger       *logger.Logger
	Currency     string
	PublicURL    string
}

// Service charges for submitted applications. Amounts are always recomputed
// from the stored form data; clients never supply a price.
type Service struct {
	applications applicationStore
	pricing      quoter
	stripe       StripeClient
	logg         *logger.Logger
	currency     string
	publicURL    string
}

type IntentResult struct {
	ApplicationID   string             `json:"application_id"`
	PaymentIntentID string             `json:"payment_intent_id"`
	ClientSecret    string             `json:"client_secret"`
	AmountCents     int64              `json:"amount_cents"`
	Currency        string             `json:"currency"`
	Quote           pricing.PriceQuote `json:"quote"`
}

type CheckoutInput struct {
	ApplicationID string
	SuccessURL    string
	CancelURL     string
}

type CheckoutResult struct {
	ApplicationID string             `json:"application_id"`
	SessionID     string             `json:"session_id"`
	URL           string             `json:"url"`
	Quote         pricing.PriceQuote `json:"quote"`
}

// CouponResult describes a promotion code as Stripe knows it.
type CouponResult struct {
	Code           string  `json:"code"`
	Valid          bool    `json:"valid"`
	Name           string  `json:"name,omitempty"`
	PercentOff     float64 `json:"percent_off,omitempty"`
	AmountOffCents int64   `json:"amount_off_cents,omitempty"`
	Currency       string  `json:"currency,omitempty"`
	Duration       string  `json:"duration,omitempty"`
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Applications == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "application store required")
	}
	if params.Pricing == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "pricing engine required")
	}
	if params.Stripe == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe client required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	currency := strings.ToLower(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}
	return &Service{
		applications: params.Applications,
		pricing:      params.Pricing,
		stripe:       params.Stripe,
		logg:         params.Logger,
		currency:     currency,
		publicURL:    strings.TrimRight(strings.TrimSpace(params.PublicURL), "/"),
	}, nil
}

// CreatePaymentIntent creates a Stripe PaymentIntent for the application's
// recomputed total.
func (s *Service) CreatePaymentIntent(ctx context.Context, applicationID string) (*IntentResult, error) {
	app, quote, err := s.payable(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithApplicationID(ctx, app.ApplicationID)

	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(quote.TotalCents),
		Currency:    stripe.String(s.currency),
		Description: stripe.String(describe(app)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if email := strings.TrimSpace(app.FormData.Email); email != "" {
		params.ReceiptEmail = stripe.String(email)
	}
	addMetadata(&params.Params, app, quote)
	params.SetIdempotencyKey("fastidp-intent-" + app.ApplicationID + "-" + strconv.FormatInt(quote.TotalCents, 10))

	intent, err := s.stripe.CreatePaymentIntent(ctx, params)
	if err != nil {
		return nil, providerError(err, "create payment intent")
	}

	if err := s.applications.AttachPaymentIntent(ctx, app.ApplicationID, intent.ID); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "payment_intent_id", intent.ID), "attach payment intent", err)
	}
	s.logg.Info(s.logg.WithField(ctx, "amount_cents", quote.TotalCents), "payment intent created")

	return &IntentResult{
		ApplicationID:   app.ApplicationID,
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		AmountCents:     quote.TotalCents,
		Currency:        s.currency,
		Quote:           quote,
	}, nil
}

// CreateCheckout creates a hosted Checkout Session with one line item per
// quote line. An open session that still charges the quote is returned
// instead; a session it replaces is expired.
func (s *Service) CreateCheckout(ctx context.Context, input CheckoutInput) (*CheckoutResult, error) {
	successURL, err := s.redirectURL("success_url", input.SuccessURL, "/checkout/success?session_id="+CheckoutSessionPlaceholder)
	if err != nil {
		return nil, err
	}
	cancelURL, err := s.redirectURL("cancel_url", input.CancelURL, "/checkout/cancel")
	if err != nil {
		return nil, err
	}

	app, quote, err := s.payable(ctx, input.ApplicationID)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithApplicationID(ctx, app.ApplicationID)

	previous := ""
	if app.StripeSessionID != nil {
		previous = strings.TrimSpace(*app.StripeSessionID)
	}
	if previous != "" {
		reused, err := s.reuseSession(ctx, app.ApplicationID, previous, quote)
		if err != nil {
			return nil, err
		}
		if reused != nil {
			return reused, nil
		}
	}

	params := &stripe.CheckoutSessionParams{
		Mode:                stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:          stripe.String(successURL),
		CancelURL:           stripe.String(cancelURL),
		ClientReferenceID:   stripe.String(app.ApplicationID),
		AllowPromotionCodes: stripe.Bool(true),
		LineItems:           s.lineItems(quote),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Description: stripe.String(describe(app)),
			Metadata:    map[string]string{"application_id": app.ApplicationID},
		},
	}
	if email := strings.TrimSpace(app.FormData.Email); email != "" {
		params.CustomerEmail = stripe.String(email)
	}
	addMetadata(&params.Params, app, quote)

	sess, err := s.stripe.CreateCheckoutSession(ctx, params)
	if err != nil {
		return nil, providerError(err, "create checkout session")
	}
	sessCtx := s.logg.WithSessionID(ctx, sess.ID)

	attached, err := s.applications.AttachCheckoutSession(ctx, app.ApplicationID, previous, sess.ID)
	switch {
	case err != nil:
		s.logg.Error(sessCtx, "attach checkout session", err)
	case !attached:
		s.expire(sessCtx, sess.ID)
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "another checkout session is already active for this application")
	case previous != "":
		s.expire(s.logg.WithField(sessCtx, "replaced_session_id", previous), previous)
	}
	s.logg.Info(sessCtx, "checkout session created")

	return &CheckoutResult{
		ApplicationID: app.ApplicationID,
		SessionID:     sess.ID,
		URL:           sess.URL,
		Quote:         quote,
	}, nil
}

// reuseSession returns the application's open checkout session when it still
// charges the current quote. A completed session means payment is already in
// flight; a missing or lapsed one is replaced by the caller.
func (s *Service) reuseSession(ctx context.Context, applicationID, sessionID string, quote pricing.PriceQuote) (*CheckoutResult, error) {
	existing, err := s.stripe.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		if isMissing(err) {
			return nil, nil
		}
		return nil, providerError(err, "load checkout session")
	}

	switch existing.Status {
	case stripe.CheckoutSessionStatusComplete:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment already submitted for this application").
			WithDetails(map[string]any{"session_id": existing.ID})
	case stripe.CheckoutSessionStatusOpen:
		if existing.AmountSubtotal == quote.TotalCents && existing.URL != "" {
			s.logg.Info(s.logg.WithSessionID(ctx, existing.ID), "checkout session reused")
			return &CheckoutResult{ApplicationID: applicationID, SessionID: existing.ID, URL: existing.URL, Quote: quote}, nil
		}
	}
	return nil, nil
}

func (s *Service) expire(ctx context.Context, sessionID string) {
	if err := s.stripe.ExpireCheckoutSession(ctx, sessionID); err != nil && !isMissing(err) {
		s.logg.Error(s.logg.WithField(ctx, "expired_session_id", sessionID), "expire checkout session", err)
	}
}

// ValidateCoupon looks a coupon up in Stripe. Unknown or exhausted coupons
// are reported as invalid rather than as errors.
func (s *Service) ValidateCoupon(ctx context.Context, code string) (*CouponResult, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
			WithDetails(map[string]string{"code": "is required"})
	}

	c, err := s.stripe.GetCoupon(ctx, code, nil)
	if err != nil {
		if isMissing(err) {
			return &CouponResult{Code: code, Valid: false}, nil
		}
		return nil, providerError(err, "lookup coupon")
	}

	return &CouponResult{
		Code:           code,
		Valid:          c.Valid,
		Name:           c.Name,
		PercentOff:     c.PercentOff,
		AmountOffCents: c.AmountOff,
		Currency:       string(c.Currency),
		Duration:       string(c.Duration),
	}, nil
}

func (s *Service) payable(ctx context.Context, applicationID string) (*models.Application, pricing.PriceQuote, error) {
	app, err := s.applications.Get(ctx, applicationID)
	if err != nil {
		return nil, pricing.PriceQuote{}, err
	}
	if app.PaymentStatus != enums.PaymentStatusPending {
		return nil, pricing.PriceQuote{}, pkgerrors.New(pkgerrors.CodeStateConflict, "application is not awaiting payment").
			WithDetails(map[string]any{"payment_status": app.PaymentStatus})
	}
	quote, err := s.pricing.Compute(pricing.SelectionFromForm(app.FormData))
	if err != nil {
		return nil, pricing.PriceQuote{}, err
	}
	return app, quote, nil
}

func (s *Service) lineItems(quote pricing.PriceQuote) []*stripe.CheckoutSessionLineItemParams {
	items := make([]*stripe.CheckoutSessionLineItemParams, 0, len(quote.LineItems))
	for _, line := range quote.LineItems {
		price := &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency:   stripe.String(s.currency),
			UnitAmount: stripe.Int64(line.UnitAmountCents),
		}
		if product := s.pricing.ProductID(line); product != "" {
			price.Product = stripe.String(product)
		} else {
			price.ProductData = &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
				Name: stripe.String(line.Name),
			}
		}
		items = append(items, &stripe.CheckoutSessionLineItemParams{
			PriceData: price,
			Quantity:  stripe.Int64(line.Quantity),
		})
	}
	return items
}

func (s *Service) redirectURL(field, raw, fallbackPath string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if s.publicURL == "" {
			return "", pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
				WithDetails(map[string]string{field: "is required"})
		}
		return s.publicURL + fallbackPath, nil
	}
	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "https" && parsed.Scheme != "http") || parsed.Host == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
			WithDetails(map[string]string{field: "must be an absolute http(s) url"})
	}
	return raw, nil
}

func addMetadata(params *stripe.Params, app *models.Application, quote pricing.PriceQuote) {
	params.AddMetadata("application_id", app.ApplicationID)
	params.AddMetadata("fulfillment_type", string(app.FulfillmentType))
	params.AddMetadata("processing_speed", string(app.FormData.ProcessingSpeed))
	params.AddMetadata("shipping_category", string(app.FormData.ShippingCategory))
	params.AddMetadata("total_cents", strconv.FormatInt(quote.TotalCents, 10))
}

func describe(app *models.Application) string {
	return fmt.Sprintf("International Driving Permit application %s", app.ApplicationID)
}

func providerError(err error, message string) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		clientSide := stripeErr.Type == stripe.ErrorTypeCard ||
			(stripeErr.HTTPStatusCode >= http.StatusBadRequest &&
				stripeErr.HTTPStatusCode < http.StatusInternalServerError &&
				stripeErr.HTTPStatusCode != http.StatusTooManyRequests &&
				stripeErr.HTTPStatusCode != http.StatusUnauthorized)
		return pkgerrors.Provider(providerStripe, err, clientSide, message)
	}
	return pkgerrors.Provider(providerStripe, err, false, message)
}

func isMissing(err error) bool {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return false
	}
	return stripeErr.Code == stripe.ErrorCodeResourceMissing || stripeErr.HTTPStatusCode == http.StatusNotFound
}
