package controllers

import (
	"net/http"

	"github.com/perenalabs/perenapay-backend/api/responses"
	"github.com/perenalabs/perenapay-backend/pkg/config"
	"github.com/perenalabs/perenapay-backend/pkg/db"
	"github.com/perenalabs/perenapay-backend/pkg/logger"
	"github.com/perenalabs/perenapay-backend/pkg/redis"
)

const envHeader = "X-PerenaPay-Env"

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady probes the database and cache. Nil dependencies are skipped so
// stripped-down deployments still report ready. storeBackend names the
// persistence backend selected at boot so operators can spot a memory
// fallback from the outside.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, redisP redis.Pinger, storeBackend string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		status := map[string]string{"status": "ready"}
		degraded := false

		if dbP != nil {
			if err := dbP.Ping(r.Context()); err != nil {
				status["db"] = "unreachable"
				degraded = true
				if logg != nil {
					logg.Error(r.Context(), "health.db_unreachable", err)
				}
			} else {
				status["db"] = "ok"
			}
		}
		if redisP != nil {
			if err := redisP.Ping(r.Context()); err != nil {
				status["redis"] = "unreachable"
				degraded = true
				if logg != nil {
					logg.Error(r.Context(), "health.redis_unreachable", err)
				}
			} else {
				status["redis"] = "ok"
			}
		}
		if storeBackend != "" {
			status["store_backend"] = storeBackend
		}

		if degraded {
			status["status"] = "degraded"
			responses.WriteSuccessStatus(w, http.StatusServiceUnavailable, status)
			return
		}
		responses.WriteSuccess(w, status)
	}
}
