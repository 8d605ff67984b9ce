package middleware

import (
	"net/http"
	"strings"

	"github.com/perenalabs/perenapay-backend/api/responses"
	"github.com/perenalabs/perenapay-backend/internal/merchants"
	pkgerrors "github.com/perenalabs/perenapay-backend/pkg/errors"
	"github.com/perenalabs/perenapay-backend/pkg/logger"
)

const apiKeyHeader = "X-API-Key"

// APIKeyAuth resolves the X-API-Key header to a merchant and seeds the
// request context with it. Requests without a usable key are rejected before
// reaching any handler.
func APIKeyAuth(svc merchants.Service, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(apiKeyHeader))
			if key == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing api key"))
				return
			}

			if svc == nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "merchant service unavailable"))
				return
			}

			merchant, err := svc.GetMerchantByAPIKey(r.Context(), key)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			ctx := WithMerchant(r.Context(), merchant)
			if logg != nil {
				ctx = logg.WithMerchantID(ctx, merchant.ID.String())
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
