package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fastidp/fastidp-backend/api/routes"
	"github.com/fastidp/fastidp-backend/internal/applications"
	"github.com/fastidp/fastidp-backend/internal/documents"
	"github.com/fastidp/fastidp-backend/internal/fulfillment"
	"github.com/fastidp/fastidp-backend/internal/payments"
	"github.com/fastidp/fastidp-backend/internal/pricing"
	"github.com/fastidp/fastidp-backend/internal/shipping"
	stripewebhook "github.com/fastidp/fastidp-backend/internal/webhooks/stripe"
	"github.com/fastidp/fastidp-backend/pkg/config"
	"github.com/fastidp/fastidp-backend/pkg/db"
	"github.com/fastidp/fastidp-backend/pkg/easypost"
	"github.com/fastidp/fastidp-backend/pkg/env"
	"github.com/fastidp/fastidp-backend/pkg/instance"
	"github.com/fastidp/fastidp-backend/pkg/logger"
	"github.com/fastidp/fastidp-backend/pkg/metrics"
	"github.com/fastidp/fastidp-backend/pkg/migrate"
	"github.com/fastidp/fastidp-backend/pkg/redis"
	"github.com/fastidp/fastidp-backend/pkg/storage/gcs"
	pkgstripe "github.com/fastidp/fastidp-backend/pkg/stripe"
)

const (
	shutdownTimeout   = 20 * time.Second
	readHeaderTimeout = 10 * time.Second
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Environment: cfg.App.Env,
		Instance:    instance.GetID(),
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	gcsClient, err := gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
	requireResource(ctx, logg, "gcs", err)
	defer func() {
		if err := gcsClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing gcs", err)
		}
	}()

	stripeClient, err := pkgstripe.NewClient(ctx, cfg.Stripe, logg)
	requireResource(ctx, logg, "stripe", err)

	easypostClient, err := easypost.NewClient(
		cfg.EasyPost.APIKey,
		easypost.WithBaseURL(cfg.EasyPost.BaseURL),
		easypost.WithTimeout(cfg.EasyPost.Timeout),
	)
	requireResource(ctx, logg, "easypost", err)

	fulfillmentMetrics := metrics.NewFulfillmentMetrics(prometheus.DefaultRegisterer)

	trigger, closeTrigger, err := buildTrigger(ctx, cfg, logg, fulfillmentMetrics)
	requireResource(ctx, logg, "automation trigger", err)
	defer closeTrigger()

	pricingCfg, err := pricing.ConfigFromSettings(cfg.Pricing)
	requireResource(ctx, logg, "pricing config", err)
	pricingEngine, err := pricing.NewEngine(pricingCfg)
	requireResource(ctx, logg, "pricing engine", err)

	documentStore, err := documents.NewStore(documents.StoreParams{
		Objects:     gcsClient,
		Logger:      logg,
		MaxBytes:    int64(cfg.GCS.MaxUploadMB) << 20,
		URLLifetime: cfg.GCS.DownloadURLExpiry,
	})
	requireResource(ctx, logg, "document store", err)

	applicationRepo := applications.NewRepository(dbClient.DB())
	applicationService, err := applications.NewService(applications.ServiceParams{
		Repo:           applicationRepo,
		Documents:      documentStore,
		Pricing:        pricingEngine,
		Router:         fulfillment.NewRouter(pricingCfg.AutomatedCountries),
		Trigger:        trigger,
		TriggerTimeout: cfg.Automation.TriggerTimeout,
		Logger:         logg,
	})
	requireResource(ctx, logg, "application service", err)

	paymentService, err := payments.NewService(payments.ServiceParams{
		Applications: applicationService,
		Pricing:      pricingEngine,
		Stripe:       payments.NewStripeClient(stripeClient),
		Logger:       logg,
		Currency:     stripeClient.Currency(),
		PublicURL:    cfg.App.PublicURL,
	})
	requireResource(ctx, logg, "payment service", err)

	shippingService, err := shipping.NewService(shipping.ServiceParams{
		Provider:    easypostClient,
		Store:       applicationRepo,
		Logger:      logg,
		Metrics:     fulfillmentMetrics,
		Config:      cfg.Shipping,
		FromAddress: shipping.FromAddressFromConfig(cfg.EasyPost),
	})
	requireResource(ctx, logg, "shipping service", err)

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Applications: applicationService,
		Logger:       logg,
		Metrics:      fulfillmentMetrics,
	})
	requireResource(ctx, logg, "stripe webhook service", err)

	webhookGuard, err := stripewebhook.NewEventDeduper(redisClient, cfg.Stripe.WebhookIdempotencyTTL)
	requireResource(ctx, logg, "stripe webhook guard", err)

	addr := ":" + env.Get("PORT", cfg.App.Port)
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"addr":        addr,
		"instance":    instance.GetID(),
		"stripe_env":  stripeClient.Environment(),
		"test_seam":   cfg.FeatureFlags.EnableTestFixtures && !cfg.App.IsProd(),
		"sqlite_mode": cfg.FeatureFlags.UseSQLite,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: readHeaderTimeout,
		Handler: routes.NewRouter(routes.Deps{
			Config:         cfg,
			Logger:         logg,
			DB:             dbClient,
			Redis:          redisClient,
			Gatherer:       prometheus.DefaultGatherer,
			Applications:   applicationService,
			Payments:       paymentService,
			Shipping:       shippingService,
			Pricing:        pricingEngine,
			Stripe:         stripeClient,
			StripeWebhooks: webhookService,
			WebhookGuard:   webhookGuard,
		}),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, name string, err error) {
	if err == nil {
		return
	}
	logg.Error(logg.WithField(ctx, "resource", name), "failed to bootstrap "+name, err)
	os.Exit(1)
}
