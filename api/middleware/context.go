package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/perenalabs/perenapay-backend/pkg/db/models"
)

type contextKey string

const ctxMerchant contextKey = "merchant"

// WithMerchant injects the authenticated merchant into the context.
func WithMerchant(ctx context.Context, merchant *models.Merchant) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxMerchant, merchant)
}

// MerchantFromContext returns the merchant seeded by the auth middleware.
func MerchantFromContext(ctx context.Context) (*models.Merchant, bool) {
	if ctx == nil {
		return nil, false
	}
	m, ok := ctx.Value(ctxMerchant).(*models.Merchant)
	if !ok || m == nil {
		return nil, false
	}
	return m, true
}

// MerchantIDFromContext returns the authenticated merchant's id, or uuid.Nil.
func MerchantIDFromContext(ctx context.Context) uuid.UUID {
	if m, ok := MerchantFromContext(ctx); ok {
		return m.ID
	}
	return uuid.Nil
}
