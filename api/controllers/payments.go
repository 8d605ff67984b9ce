package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/perenalabs/perenapay-backend/api/middleware"
	"github.com/perenalabs/perenapay-backend/api/responses"
	"github.com/perenalabs/perenapay-backend/api/validators"
	"github.com/perenalabs/perenapay-backend/internal/payments"
	"github.com/perenalabs/perenapay-backend/internal/stablecoins"
	"github.com/perenalabs/perenapay-backend/pkg/db/models"
	"github.com/perenalabs/perenapay-backend/pkg/enums"
	pkgerrors "github.com/perenalabs/perenapay-backend/pkg/errors"
	"github.com/perenalabs/perenapay-backend/pkg/logger"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

type createPaymentRequest struct {
	Amount   decimal.Decimal `json:"amount" validate:"required"`
	Currency string          `json:"currency" validate:"required,min=3,max=10"`
	Metadata map[string]any  `json:"metadata,omitempty"`
}

type paymentView struct {
	ID                   uuid.UUID       `json:"id"`
	MerchantID           uuid.UUID       `json:"merchant_id"`
	Amount               decimal.Decimal `json:"amount"`
	Currency             string          `json:"currency"`
	Reference            string          `json:"reference"`
	Status               string          `json:"status"`
	TransactionSignature *string         `json:"transaction_signature,omitempty"`
	ExpiresAt            time.Time       `json:"expires_at"`
	CompletedAt          *time.Time      `json:"completed_at,omitempty"`
	Metadata             any             `json:"metadata,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// paymentInstructions tells the payer how to settle a freshly created
// payment: where to send funds, which token, and until when.
type paymentInstructions struct {
	Recipient string    `json:"recipient"`
	Reference string    `json:"reference"`
	TokenMint string    `json:"token_mint,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
	Accepted  []string  `json:"accepted_currencies"`
}

type createPaymentResponse struct {
	Payment      paymentView          `json:"payment"`
	Instructions *paymentInstructions `json:"instructions,omitempty"`
}

func newPaymentView(p *models.Payment) paymentView {
	view := paymentView{
		ID:                   p.ID,
		MerchantID:           p.MerchantID,
		Amount:               p.Amount,
		Currency:             p.Currency,
		Reference:            p.Reference,
		Status:               string(p.Status),
		TransactionSignature: p.TransactionSignature,
		ExpiresAt:            p.ExpiresAt,
		CompletedAt:          p.CompletedAt,
		CreatedAt:            p.CreatedAt,
		UpdatedAt:            p.UpdatedAt,
	}
	if len(p.Metadata) > 0 {
		view.Metadata = p.Metadata
	}
	return view
}

// CreatePayment opens a payment request for the authenticated merchant and
// returns settlement instructions alongside the stored record.
func CreatePayment(svc payments.Service, catalog *stablecoins.Catalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		merchant, ok := middleware.MerchantFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "merchant context missing"))
			return
		}

		var req createPaymentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payment, err := svc.CreatePaymentRequest(r.Context(), payments.CreatePaymentInput{
			MerchantID: merchant.ID,
			Amount:     req.Amount,
			Currency:   req.Currency,
			Metadata:   req.Metadata,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := createPaymentResponse{Payment: newPaymentView(payment)}
		if catalog != nil {
			instructions := &paymentInstructions{
				Recipient: merchant.WalletAddress,
				Reference: payment.Reference,
				ExpiresAt: payment.ExpiresAt,
			}
			if mint, ok := catalog.TokenMintFor(payment.Currency); ok {
				instructions.TokenMint = mint
			}
			for _, coin := range catalog.ListAccepted() {
				instructions.Accepted = append(instructions.Accepted, coin.Code)
			}
			resp.Instructions = instructions
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, resp)
	}
}

// GetPayment fetches a single payment owned by the authenticated merchant.
func GetPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		merchantID := middleware.MerchantIDFromContext(r.Context())
		paymentID, err := parsePaymentID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payment, err := svc.GetPaymentByID(r.Context(), merchantID, paymentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newPaymentView(payment))
	}
}

// GetPaymentByReference resolves a payment by its on-chain reference key.
func GetPaymentByReference(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		merchantID := middleware.MerchantIDFromContext(r.Context())
		reference := strings.TrimSpace(chi.URLParam(r, "reference"))
		if reference == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "reference is required"))
			return
		}

		payment, err := svc.GetPaymentByReference(r.Context(), merchantID, reference)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newPaymentView(payment))
	}
}

// VerifyPayment checks the ledger for a settling transaction and returns the
// payment in its freshest state.
func VerifyPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		merchantID := middleware.MerchantIDFromContext(r.Context())
		paymentID, err := parsePaymentID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payment, err := svc.VerifyPayment(r.Context(), merchantID, paymentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newPaymentView(payment))
	}
}

// CancelPayment voids a pending payment.
func CancelPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		merchantID := middleware.MerchantIDFromContext(r.Context())
		paymentID, err := parsePaymentID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payment, err := svc.CancelPayment(r.Context(), merchantID, paymentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newPaymentView(payment))
	}
}

// ListPayments pages through the authenticated merchant's payments, newest
// first, optionally filtered by status.
func ListPayments(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		merchantID := middleware.MerchantIDFromContext(r.Context())

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

		input := payments.ListPaymentsInput{Limit: limit, Offset: offset}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status := enums.PaymentStatus(strings.ToUpper(raw))
			input.Status = &status
		}

		list, err := svc.ListPaymentsByMerchant(r.Context(), merchantID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		views := make([]paymentView, 0, len(list))
		for i := range list {
			views = append(views, newPaymentView(&list[i]))
		}
		responses.WriteSuccess(w, views)
	}
}

func parsePaymentID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "paymentId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment id")
	}
	return id, nil
}
