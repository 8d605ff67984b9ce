package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/perenalabs/perenapay-backend/api/controllers"
	"github.com/perenalabs/perenapay-backend/api/middleware"
	"github.com/perenalabs/perenapay-backend/internal/merchants"
	"github.com/perenalabs/perenapay-backend/internal/payments"
	"github.com/perenalabs/perenapay-backend/internal/stablecoins"
	"github.com/perenalabs/perenapay-backend/pkg/config"
	"github.com/perenalabs/perenapay-backend/pkg/db"
	"github.com/perenalabs/perenapay-backend/pkg/logger"
	"github.com/perenalabs/perenapay-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	merchantService merchants.Service,
	paymentService payments.Service,
	catalog *stablecoins.Catalog,
	storeBackend string,
) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	apiPolicy := middleware.NewRateLimitPolicy(
		"api",
		cfg.RateLimit.Window,
		cfg.RateLimit.MaxRequests,
	)
	verifyPolicy := middleware.NewRateLimitPolicy(
		"verify",
		cfg.RateLimit.VerifyWindow,
		cfg.RateLimit.VerifyMax,
	)

	// A nil *redis.Client must not reach the middleware as a typed non-nil
	// interface, so the limiter store is resolved here.
	throttle := func(policy middleware.RateLimitPolicy) func(http.Handler) http.Handler {
		if redisClient == nil {
			return middleware.RateLimit(policy, nil, logg)
		}
		return middleware.RateLimit(policy, redisClient, logg)
	}

	var redisP redis.Pinger
	if redisClient != nil {
		redisP = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP, storeBackend))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/merchants", func(r chi.Router) {
		r.Use(throttle(apiPolicy))
		r.Post("/", controllers.CreateMerchant(merchantService, logg))
		r.Get("/", controllers.ListMerchants(merchantService, logg))
		r.Route("/{merchantId}", func(r chi.Router) {
			r.Get("/", controllers.GetMerchant(merchantService, logg))
			r.Patch("/", controllers.UpdateMerchant(merchantService, logg))
			r.Delete("/", controllers.DeleteMerchant(merchantService, logg))
			r.Post("/rotate-key", controllers.RotateMerchantKey(merchantService, logg))
		})
	})

	r.Route("/api/v1/payments", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(merchantService, logg))
		r.Use(throttle(apiPolicy))
		r.Post("/", controllers.CreatePayment(paymentService, catalog, logg))
		r.Get("/", controllers.ListPayments(paymentService, logg))
		r.Get("/reference/{reference}", controllers.GetPaymentByReference(paymentService, logg))
		r.Route("/{paymentId}", func(r chi.Router) {
			r.Get("/", controllers.GetPayment(paymentService, logg))
			r.With(throttle(verifyPolicy)).Post("/verify", controllers.VerifyPayment(paymentService, logg))
			r.Post("/cancel", controllers.CancelPayment(paymentService, logg))
		})
	})

	return r
}
