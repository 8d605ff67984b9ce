package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/perenalabs/perenapay-backend/api/routes"
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
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	// The API keeps serving on an in-memory store when the database is down,
	// so a failed bootstrap is logged loudly instead of killing the process.
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

	redisClient, err := redis.New(context.Background(), cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "redis unavailable, rate limiting disabled", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
	}

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

	merchantService, err := merchants.NewService(merchants.ServiceParams{
		Repo:   merchantRepo,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create merchant service", err)
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

	catalog := stablecoins.NewCatalog(cfg.Payments)

	paymentService, err := payments.NewService(payments.ServiceParams{
		Store:     paymentStore,
		Merchants: merchantRepo,
		Verifier:  ledger,
		Catalog:   catalog,
		Config:    cfg.Payments,
		Logger:    logg,
		Metrics:   verificationMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":           cfg.App.Env,
		"addr":          addr,
		"store_backend": paymentStore.Backend(),
	})
	logg.Info(ctx, "starting api server")

	var dbP db.Pinger
	if dbClient != nil {
		dbP = dbClient
	}

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbP,
			redisClient,
			merchantService,
			paymentService,
			catalog,
			paymentStore.Backend(),
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
