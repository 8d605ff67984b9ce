package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/perenalabs/perenapay-backend/internal/merchants"
	"github.com/perenalabs/perenapay-backend/pkg/config"
	"github.com/perenalabs/perenapay-backend/pkg/db"
	"github.com/perenalabs/perenapay-backend/pkg/db/models"
	"github.com/perenalabs/perenapay-backend/pkg/enums"
	pkgerrors "github.com/perenalabs/perenapay-backend/pkg/errors"
	"github.com/perenalabs/perenapay-backend/pkg/logger"
	"github.com/perenalabs/perenapay-backend/pkg/metrics"
	"github.com/perenalabs/perenapay-backend/pkg/solana"
)

// referenceRetryLimit bounds how many times a colliding reference is
// regenerated before the create is abandoned.
const referenceRetryLimit = 3

// MerchantDirectory resolves the merchant a payment belongs to.
type MerchantDirectory interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Merchant, error)
}

// CurrencyCatalog answers whether a currency code is accepted for settlement.
type CurrencyCatalog interface {
	IsAccepted(code string) bool
}

// Service drives the payment lifecycle: creation, on-chain verification,
// cancellation and expiry.
type Service interface {
	CreatePaymentRequest(ctx context.Context, input CreatePaymentInput) (*models.Payment, error)
	GetPaymentByID(ctx context.Context, merchantID, id uuid.UUID) (*models.Payment, error)
	GetPaymentByReference(ctx context.Context, merchantID uuid.UUID, reference string) (*models.Payment, error)
	ListPaymentsByMerchant(ctx context.Context, merchantID uuid.UUID, input ListPaymentsInput) ([]models.Payment, error)
	VerifyPayment(ctx context.Context, merchantID, id uuid.UUID) (*models.Payment, error)
	CancelPayment(ctx context.Context, merchantID, id uuid.UUID) (*models.Payment, error)
	CleanupExpiredPayments(ctx context.Context) int64
}

type service struct {
	store     Store
	merchants MerchantDirectory
	verifier  solana.Verifier
	catalog   CurrencyCatalog
	cfg       config.PaymentsConfig
	logg      *logger.Logger
	metrics   *metrics.VerificationMetrics
	newRef    func() (string, error)
	now       func() time.Time
}

// ServiceParams carries the dependencies for NewService.
type ServiceParams struct {
	Store     Store
	Merchants MerchantDirectory
	Verifier  solana.Verifier
	Catalog   CurrencyCatalog
	Config    config.PaymentsConfig
	Logger    *logger.Logger
	Metrics   *metrics.VerificationMetrics
}

// NewService builds the payment lifecycle service.
func NewService(params ServiceParams) (Service, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("payment store required")
	}
	if params.Merchants == nil {
		return nil, fmt.Errorf("merchant directory required")
	}
	if params.Verifier == nil {
		return nil, fmt.Errorf("ledger verifier required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("currency catalog required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Config.RequestTTL <= 0 {
		return nil, fmt.Errorf("payment request ttl must be positive")
	}
	return &service{
		store:     params.Store,
		merchants: params.Merchants,
		verifier:  params.Verifier,
		catalog:   params.Catalog,
		cfg:       params.Config,
		logg:      params.Logger,
		metrics:   params.Metrics,
		newRef:    solana.NewReference,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) CreatePaymentRequest(ctx context.Context, input CreatePaymentInput) (*models.Payment, error) {
	if input.MerchantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "merchant identity missing")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than zero")
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "currency is required")
	}
	if !s.catalog.IsAccepted(currency) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "currency is not an accepted stablecoin")
	}

	merchant, err := s.merchants.FindByID(ctx, input.MerchantID)
	if err != nil {
		if errors.Is(err, merchants.ErrNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "merchant not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load merchant")
	}
	if merchant == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "merchant not found")
	}
	if merchant.Status != enums.MerchantStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "merchant is not active")
	}

	now := s.now()
	payment := &models.Payment{
		ID:         uuid.New(),
		MerchantID: input.MerchantID,
		Amount:     input.Amount,
		Currency:   currency,
		Status:     enums.PaymentStatusPending,
		ExpiresAt:  now.Add(s.cfg.RequestTTL),
		Metadata:   sanitizeMetadata(input.Metadata),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	for attempt := 0; attempt < referenceRetryLimit; attempt++ {
		reference, err := s.newRef()
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate payment reference")
		}
		payment.Reference = reference

		err = s.store.Create(ctx, payment)
		if err == nil {
			ctx = s.logg.WithPaymentID(ctx, payment.ID.String())
			s.logg.Info(ctx, "payment request created")
			return clonePayment(payment), nil
		}
		if db.IsUniqueViolation(err, "") || err == ErrDuplicateReference {
			continue
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist payment")
	}
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "could not allocate a unique payment reference")
}

func (s *service) GetPaymentByID(ctx context.Context, merchantID, id uuid.UUID) (*models.Payment, error) {
	payment, err := s.loadOwnedPayment(ctx, merchantID, id)
	if err != nil {
		return nil, err
	}
	return s.applyLazyExpiry(ctx, payment)
}

func (s *service) GetPaymentByReference(ctx context.Context, merchantID uuid.UUID, reference string) (*models.Payment, error) {
	if strings.TrimSpace(reference) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference is required")
	}
	payment, err := s.store.FindByReference(ctx, reference)
	if err != nil {
		if err == ErrNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	if payment.MerchantID != merchantID {
		// Ownership failures read as absence so references cannot be probed.
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	return s.applyLazyExpiry(ctx, payment)
}

func (s *service) ListPaymentsByMerchant(ctx context.Context, merchantID uuid.UUID, input ListPaymentsInput) ([]models.Payment, error) {
	if merchantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "merchant identity missing")
	}
	if input.Status != nil && !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}
	limit := input.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	out, err := s.store.ListByMerchant(ctx, merchantID, ListFilter{
		Status: input.Status,
		Limit:  limit,
		Offset: input.Offset,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payments")
	}
	return out, nil
}

// VerifyPayment consults the ledger for the payment's reference and settles
// the payment's status. The check is safe to call any number of times; once a
// terminal status is reached the stored outcome is returned without touching
// the ledger again.
func (s *service) VerifyPayment(ctx context.Context, merchantID, id uuid.UUID) (*models.Payment, error) {
	payment, err := s.loadOwnedPayment(ctx, merchantID, id)
	if err != nil {
		return nil, err
	}
	if payment.Status.IsTerminal() {
		return payment, nil
	}

	ctx = s.logg.WithPaymentID(ctx, payment.ID.String())

	payment, err = s.applyLazyExpiry(ctx, payment)
	if err != nil {
		return nil, err
	}
	if payment.Status == enums.PaymentStatusExpired {
		s.metrics.IncCheck(metrics.VerificationExpired)
		return payment, nil
	}

	result, err := s.verifier.CheckReference(ctx, payment.Reference)
	if err != nil {
		// The ledger could not be consulted. That is not evidence of
		// absence, so the payment stays pending.
		s.logg.Error(ctx, "ledger check indeterminate, payment remains pending", err)
		s.metrics.IncCheck(metrics.VerificationIndeterminate)
		return payment, nil
	}

	if !result.Found {
		s.metrics.IncCheck(metrics.VerificationPending)
		return payment, nil
	}

	if result.Succeeded {
		completedAt := s.now()
		updated, err := s.store.UpdateStatusIf(ctx, payment.ID,
			enums.PaymentStatusPending, enums.PaymentStatusCompleted,
			map[string]any{
				"transaction_signature": result.Signature,
				"completed_at":          completedAt,
			})
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record completed payment")
		}
		if updated {
			s.logg.Info(ctx, "payment completed on-chain")
			s.metrics.IncCheck(metrics.VerificationCompleted)
		}
		// Either this call won the transition or a concurrent one did.
		// Re-read so the caller sees the settled row in both cases.
		return s.reload(ctx, payment.ID)
	}

	// A failed transaction is not a payment. Anyone can land a reverted
	// transaction touching the reference address, so the payment stays
	// pending and the payer may retry until the TTL runs out.
	s.logg.Warn(s.logg.WithField(ctx, "signature", result.Signature),
		"on-chain transaction for payment reference failed, payment remains pending")
	s.metrics.IncCheck(metrics.VerificationFailed)
	return payment, nil
}

func (s *service) CancelPayment(ctx context.Context, merchantID, id uuid.UUID) (*models.Payment, error) {
	payment, err := s.loadOwnedPayment(ctx, merchantID, id)
	if err != nil {
		return nil, err
	}
	if payment.Status == enums.PaymentStatusCancelled {
		return payment, nil
	}

	payment, err = s.applyLazyExpiry(ctx, payment)
	if err != nil {
		return nil, err
	}
	if payment.Status != enums.PaymentStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only pending payments can be cancelled")
	}

	updated, err := s.store.UpdateStatusIf(ctx, payment.ID,
		enums.PaymentStatusPending, enums.PaymentStatusCancelled, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel payment")
	}
	if !updated {
		// Lost the race against a verifier or the expiry sweep.
		current, err := s.reload(ctx, payment.ID)
		if err != nil {
			return nil, err
		}
		if current.Status == enums.PaymentStatusCancelled {
			return current, nil
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only pending payments can be cancelled")
	}

	ctx = s.logg.WithPaymentID(ctx, payment.ID.String())
	s.logg.Info(ctx, "payment cancelled")
	return s.reload(ctx, payment.ID)
}

// CleanupExpiredPayments transitions every overdue pending payment to EXPIRED
// in a single conditional write. The cron worker calls this on an interval;
// lazy expiry on the read path covers the window between runs. Sweep failures
// are logged and swallowed so one bad run never takes the worker down.
func (s *service) CleanupExpiredPayments(ctx context.Context) int64 {
	swept, err := s.store.SweepExpired(ctx, s.now())
	if err != nil {
		s.logg.Error(ctx, "expiry sweep failed", err)
		return 0
	}
	s.metrics.RecordSweep(swept)
	if swept > 0 {
		s.logg.Info(s.logg.WithField(ctx, "expired_count", swept), "expired overdue payments")
	}
	return swept
}

func (s *service) loadOwnedPayment(ctx context.Context, merchantID, id uuid.UUID) (*models.Payment, error) {
	if merchantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "merchant identity missing")
	}
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id required")
	}
	payment, err := s.store.FindByID(ctx, id)
	if err != nil {
		if err == ErrNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	if payment.MerchantID != merchantID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	return payment, nil
}

// applyLazyExpiry settles an overdue pending payment the moment it is read,
// so callers never observe a pending payment past its deadline.
func (s *service) applyLazyExpiry(ctx context.Context, payment *models.Payment) (*models.Payment, error) {
	if payment.Status != enums.PaymentStatusPending {
		return payment, nil
	}
	if payment.ExpiresAt.After(s.now()) {
		return payment, nil
	}

	if _, err := s.store.UpdateStatusIf(ctx, payment.ID,
		enums.PaymentStatusPending, enums.PaymentStatusExpired, nil); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire payment")
	}
	return s.reload(ctx, payment.ID)
}

func (s *service) reload(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	payment, err := s.store.FindByID(ctx, id)
	if err != nil {
		if err == ErrNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload payment")
	}
	return payment, nil
}
