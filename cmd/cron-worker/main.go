package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fastidp/fastidp-backend/internal/applications"
	"github.com/fastidp/fastidp-backend/internal/cron"
	"github.com/fastidp/fastidp-backend/internal/shipping"
	"github.com/fastidp/fastidp-backend/pkg/config"
	"github.com/fastidp/fastidp-backend/pkg/db"
	"github.com/fastidp/fastidp-backend/pkg/easypost"
	"github.com/fastidp/fastidp-backend/pkg/instance"
	"github.com/fastidp/fastidp-backend/pkg/logger"
	"github.com/fastidp/fastidp-backend/pkg/metrics"
	"github.com/fastidp/fastidp-backend/pkg/migrate"
	"github.com/fastidp/fastidp-backend/pkg/redis"
)

const lockName = "label-worker"

func main() {
	once := flag.Bool("once", false, "run a single locked cycle and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Environment: cfg.App.Env,
		Instance:    instance.GetID(),
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if !cfg.FeatureFlags.EnableLabelWorker {
		logg.Info(context.Background(), "label worker disabled; exiting")
		return
	}

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	easypostClient, err := easypost.NewClient(
		cfg.EasyPost.APIKey,
		easypost.WithBaseURL(cfg.EasyPost.BaseURL),
		easypost.WithTimeout(cfg.EasyPost.Timeout),
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create easypost client", err)
		os.Exit(1)
	}

	shippingService, err := shipping.NewService(shipping.ServiceParams{
		Provider:    easypostClient,
		Store:       applications.NewRepository(dbClient.DB()),
		Logger:      logg,
		Metrics:     metrics.NewFulfillmentMetrics(prometheus.DefaultRegisterer),
		Config:      cfg.Shipping,
		FromAddress: shipping.FromAddressFromConfig(cfg.EasyPost),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create shipping service", err)
		os.Exit(1)
	}

	labelJob, err := cron.NewLabelJob(cron.LabelJobParams{
		Logger:    logg,
		Purchaser: shippingService,
		BatchSize: cfg.Shipping.LabelBatchSize,
		MinAge:    time.Duration(cfg.Shipping.LabelMinAgeMins) * time.Minute,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create label job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(labelJob),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.LabelInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"instance": instance.GetID(),
		"interval": cfg.Cron.LabelInterval.String(),
		"once":     *once,
	})

	if *once {
		if err := service.RunOnce(ctx); err != nil {
			logg.Error(ctx, "label cycle failed", err)
			os.Exit(1)
		}
		return
	}

	metricsServer := startMetricsServer(ctx, logg, cfg.Cron.MetricsAddr)
	defer func() {
		if metricsServer == nil {
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func startMetricsServer(ctx context.Context, logg *logger.Logger, addr string) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(logg.WithField(ctx, "addr", addr), "metrics server stopped", err)
		}
	}()
	return server
}
