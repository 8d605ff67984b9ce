package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/perenalabs/perenapay-backend/api/responses"
	"github.com/perenalabs/perenapay-backend/api/validators"
	"github.com/perenalabs/perenapay-backend/internal/merchants"
	"github.com/perenalabs/perenapay-backend/pkg/db/models"
	"github.com/perenalabs/perenapay-backend/pkg/enums"
	pkgerrors "github.com/perenalabs/perenapay-backend/pkg/errors"
	"github.com/perenalabs/perenapay-backend/pkg/logger"
)

type createMerchantRequest struct {
	Name               string  `json:"name" validate:"required,min=1,max=120"`
	Email              string  `json:"email" validate:"required,email"`
	WalletAddress      string  `json:"wallet_address" validate:"required,min=32,max=44"`
	SettlementCurrency string  `json:"settlement_currency,omitempty"`
	WebhookURL         *string `json:"webhook_url,omitempty" validate:"omitempty,url"`
}

type updateMerchantRequest struct {
	Name               *string `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	WalletAddress      *string `json:"wallet_address,omitempty" validate:"omitempty,min=32,max=44"`
	SettlementCurrency *string `json:"settlement_currency,omitempty"`
	WebhookURL         *string `json:"webhook_url,omitempty" validate:"omitempty,url"`
	Status             *string `json:"status,omitempty"`
}

type merchantView struct {
	ID                 uuid.UUID `json:"id"`
	Name               string    `json:"name"`
	Email              string    `json:"email"`
	Status             string    `json:"status"`
	WalletAddress      string    `json:"wallet_address"`
	SettlementCurrency string    `json:"settlement_currency"`
	WebhookURL         *string   `json:"webhook_url,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// merchantCredentialView is returned only from endpoints that mint a key.
// Regular reads never echo the credential back.
type merchantCredentialView struct {
	merchantView
	APIKey string `json:"api_key"`
}

func newMerchantView(m *models.Merchant) merchantView {
	return merchantView{
		ID:                 m.ID,
		Name:               m.Name,
		Email:              m.Email,
		Status:             string(m.Status),
		WalletAddress:      m.WalletAddress,
		SettlementCurrency: m.SettlementCurrency,
		WebhookURL:         m.WebhookURL,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

// CreateMerchant onboards a merchant account. The response is the only read
// of the generated api key until it is rotated.
func CreateMerchant(svc merchants.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "merchant service unavailable"))
			return
		}

		var req createMerchantRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		merchant, err := svc.CreateMerchant(r.Context(), merchants.CreateMerchantInput{
			Name:               req.Name,
			Email:              req.Email,
			WalletAddress:      req.WalletAddress,
			SettlementCurrency: req.SettlementCurrency,
			WebhookURL:         req.WebhookURL,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, merchantCredentialView{
			merchantView: newMerchantView(merchant),
			APIKey:       merchant.APIKey,
		})
	}
}

// GetMerchant returns a merchant profile.
func GetMerchant(svc merchants.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "merchant service unavailable"))
			return
		}

		id, err := parseMerchantID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		merchant, err := svc.GetMerchant(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newMerchantView(merchant))
	}
}

// UpdateMerchant adjusts the mutable merchant fields. Email and id are
// immutable and silently absent from the request shape.
func UpdateMerchant(svc merchants.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "merchant service unavailable"))
			return
		}

		id, err := parseMerchantID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req updateMerchantRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := merchants.UpdateMerchantInput{
			Name:               req.Name,
			WalletAddress:      req.WalletAddress,
			SettlementCurrency: req.SettlementCurrency,
			WebhookURL:         req.WebhookURL,
		}
		if req.Status != nil {
			status := enums.MerchantStatus(strings.ToUpper(strings.TrimSpace(*req.Status)))
			input.Status = &status
		}

		merchant, err := svc.UpdateMerchant(r.Context(), id, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newMerchantView(merchant))
	}
}

// DeleteMerchant soft-deletes a merchant, revoking its credential.
func DeleteMerchant(svc merchants.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "merchant service unavailable"))
			return
		}

		id, err := parseMerchantID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.DeleteMerchant(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}

// ListMerchants pages through merchant accounts.
func ListMerchants(svc merchants.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "merchant service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", defaultPageLimit, 1, maxPageLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		offset, err := validators.ParseQueryInt(r, "offset", 0, 0, 1_000_000)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListMerchants(r.Context(), limit, offset)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		views := make([]merchantView, 0, len(list))
		for i := range list {
			views = append(views, newMerchantView(&list[i]))
		}
		responses.WriteSuccess(w, views)
	}
}

// RotateMerchantKey replaces the merchant's api key and returns the new one.
func RotateMerchantKey(svc merchants.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "merchant service unavailable"))
			return
		}

		id, err := parseMerchantID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		merchant, err := svc.RotateAPIKey(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusOK, merchantCredentialView{
			merchantView: newMerchantView(merchant),
			APIKey:       merchant.APIKey,
		})
	}
}

func parseMerchantID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "merchantId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "merchant id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid merchant id")
	}
	return id, nil
}
