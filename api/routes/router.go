package routes

import (
	"context"
	"net/http"

	"github.com/fastidp/fastidp-backend/api/controllers"
	webhookcontrollers "github.com/fastidp/fastidp-backend/api/controllers/webhooks"
	"github.com/fastidp/fastidp-backend/api/middleware"
	"github.com/fastidp/fastidp-backend/internal/applications"
	"github.com/fastidp/fastidp-backend/internal/payments"
	"github.com/fastidp/fastidp-backend/internal/pricing"
	"github.com/fastidp/fastidp-backend/internal/shipping"
	"github.com/fastidp/fastidp-backend/pkg/config"
	"github.com/fastidp/fastidp-backend/pkg/db/models"
	"github.com/fastidp/fastidp-backend/pkg/logger"
	"github.com/fastidp/fastidp-backend/pkg/redis"
	"github.com/fastidp/fastidp-backend/pkg/types"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	uploadSlots        = 3
	formOverheadBytes  = 1 << 20
	defaultMaxUploadMB = 15
)

type ApplicationService interface {
	Create(ctx context.Context, input applications.CreateInput) (*applications.CreateResult, error)
	MarkTestCompleted(ctx context.Context, applicationID string) (*models.Application, error)
}

type PaymentService interface {
	CreatePaymentIntent(ctx context.Context, applicationID string) (*payments.IntentResult, error)
	CreateCheckout(ctx context.Context, input payments.CheckoutInput) (*payments.CheckoutResult, error)
	ValidateCoupon(ctx context.Context, code string) (*payments.CouponResult, error)
}

type ShippingService interface {
	PurchaseLabel(ctx context.Context, applicationID string, opts shipping.PurchaseOptions) (*shipping.PurchaseResult, error)
	VerifyAddress(ctx context.Context, addr types.ShippingAddress) (*shipping.AddressVerification, error)
}

type Quoter interface {
	Compute(sel pricing.Selection) (pricing.PriceQuote, error)
}

type SigningSecretProvider interface {
	SigningSecret() string
}

type WebhookGuard interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

// Deps carries everything the HTTP surface needs. Nil pingers are left out of
// readiness.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       controllers.Pinger
	Redis    *redis.Client
	Gatherer prometheus.Gatherer

	Applications ApplicationService
	Payments     PaymentService
	Shipping     ShippingService
	Pricing      Quoter

	Stripe         SigningSecretProvider
	StripeWebhooks webhookcontrollers.StripeWebhookService
	WebhookGuard   WebhookGuard
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Recoverer(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	maxBody := maxFormBytes(cfg.GCS.MaxUploadMB)
	applicationPolicy := middleware.NewRateLimitPolicy(
		"applications",
		cfg.RateLimit.ApplicationWindow,
		cfg.RateLimit.ApplicationIPLimit,
		cfg.RateLimit.ApplicationEmailLimit,
	).WithMaxBodyBytes(maxBody).WithTrustedProxyHops(cfg.RateLimit.TrustedProxyHops)
	paymentPolicy := middleware.NewRateLimitPolicy(
		"payments",
		cfg.RateLimit.PaymentWindow,
		cfg.RateLimit.PaymentIPLimit,
		0,
	).WithTrustedProxyHops(cfg.RateLimit.TrustedProxyHops)
	validationPolicy := middleware.NewRateLimitPolicy(
		"validation",
		cfg.RateLimit.ValidationWindow,
		cfg.RateLimit.ValidationIPLimit,
		0,
	).WithTrustedProxyHops(cfg.RateLimit.TrustedProxyHops)

	pingers := map[string]controllers.Pinger{}
	if deps.DB != nil {
		pingers["db"] = deps.DB
	}
	if deps.Redis != nil {
		pingers["redis"] = deps.Redis
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, pingers))
	})
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	var (
		limiter middleware.RateLimitStore
		replays redis.IdempotencyStore
	)
	if deps.Redis != nil {
		limiter = deps.Redis
		replays = deps.Redis
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/webhooks/stripe", webhookcontrollers.StripeWebhook(deps.StripeWebhooks, deps.Stripe, deps.WebhookGuard, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(applicationPolicy, limiter, logg))
			r.Post("/applications", controllers.CreateApplication(deps.Applications, maxBody, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(paymentPolicy, limiter, logg))
			r.Use(middleware.Idempotency(replays, logg))
			r.Post("/payments/intent", controllers.CreatePaymentIntent(deps.Payments, logg))
			r.Post("/payments/checkout", controllers.CreateCheckout(deps.Payments, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(validationPolicy, limiter, logg))
			r.Post("/validate/address", controllers.ValidateAddress(deps.Shipping, logg))
			r.Post("/validate/coupon", controllers.ValidateCoupon(deps.Payments, logg))
			r.Post("/pricing/quote", controllers.PricingQuote(deps.Pricing, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.InternalToken(cfg.Internal.Token, logg))
			r.Use(middleware.Idempotency(replays, logg))
			r.Post("/shipping/labels", controllers.CreateShippingLabel(deps.Shipping, logg))
		})

		if cfg.FeatureFlags.EnableTestFixtures && !cfg.App.IsProd() {
			r.With(middleware.Idempotency(replays, logg)).
				Post("/test/applications/{applicationId}/complete", controllers.CompleteTestApplication(deps.Applications, logg))
		}
	})

	return r
}

func maxFormBytes(maxUploadMB int) int64 {
	if maxUploadMB <= 0 {
		maxUploadMB = defaultMaxUploadMB
	}
	return int64(maxUploadMB)*uploadSlots<<20 + formOverheadBytes
}
