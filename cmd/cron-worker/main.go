package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/perenalabs/perenapay-backend/internal/cron"
	"github.com/perenalabs/perenapay-backend/internal/merchants"
	"github.com/perenalabs/perenapay-backend/internal/payments"
	"github.com/perenalabs/perenapay-backend/internal/stablecoins"
	"github.com/perenalabs/perenapay-backend/pkg/config"
	"github.com/perenalabs/perenapay-backend/pkg/db"
	"github.com/perenalabs/perenapay-backend/pkg/logger"
	"github.com/perenalabs/perenapay-backend/pkg/metrics"
	"github.com/perenalabs/perenapay-backend/pkg/migrate"
	"github.com/perenalabs/perenapay-backend/pkg/redis"
	"github.com/perenalabs/perenapay-backend/pkg/solana"
)

const lockKeyFormat = "cron-worker-%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "database unavailable, stores fall back to memory", err)
		dbClient = nil
	}
	if dbClient != nil {
		defer func() {
			if err := dbClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing database", err)
			}
		}()

		if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
			logg.Error(context.Background(), "failed to run dev migrations", err)
			os.Exit(1)
		}
	}

	// The worker cannot run without the distributed lock.
	redisClient, err := redis.New(context.Background(), cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	merchantRepo, err := merchants.NewRepository(context.Background(), merchants.RepositoryParams{
		Client: dbClient,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create merchant repository", err)
		os.Exit(1)
	}

	paymentStore, err := payments.NewStore(context.Background(), payments.StoreParams{
		Client: dbClient,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment store", err)
		os.Exit(1)
	}

	verificationMetrics := metrics.NewVerificationMetrics(prometheus.DefaultRegisterer)

	ledger, err := solana.NewClient(solana.ClientParams{
		Config:  cfg.Solana,
		Logger:  logg,
		Metrics: verificationMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create solana client", err)
		os.Exit(1)
	}

	paymentService, err := payments.NewService(payments.ServiceParams{
		Store:     paymentStore,
		Merchants: merchantRepo,
		Verifier:  ledger,
		Catalog:   stablecoins.NewCatalog(cfg.Payments),
		Config:    cfg.Payments,
		Logger:    logg,
		Metrics:   verificationMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment service", err)
		os.Exit(1)
	}

	expiryJob, err := cron.NewPaymentExpiryJob(cron.PaymentExpiryJobParams{
		Logger:   logg,
		Payments: paymentService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment expiry job", err)
		os.Exit(1)
	}

	cronMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockKey(cfg.App.Env)), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(expiryJob)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  cronMetrics,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":           cfg.App.Env,
		"serviceKind":   cfg.Service.Kind,
		"store_backend": paymentStore.Backend(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
