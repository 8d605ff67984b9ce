package merchants

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/perenalabs/perenapay-backend/pkg/db/models"
	"github.com/perenalabs/perenapay-backend/pkg/enums"
	pkgerrors "github.com/perenalabs/perenapay-backend/pkg/errors"
	"github.com/perenalabs/perenapay-backend/pkg/logger"
)

// apiKeyPrefix marks merchant credentials so they are recognizable in logs
// and support tickets without revealing the secret part.
const apiKeyPrefix = "pk_"

const apiKeyRandomBytes = 24

// CreateMerchantInput captures a merchant onboarding request.
type CreateMerchantInput struct {
	Name               string
	Email              string
	WalletAddress      string
	SettlementCurrency string
	WebhookURL         *string
}

// UpdateMerchantInput carries the mutable merchant fields. Nil pointers leave
// the stored value untouched. ID, email and created_at are immutable.
type UpdateMerchantInput struct {
	Name               *string
	WalletAddress      *string
	SettlementCurrency *string
	WebhookURL         *string
	Status             *enums.MerchantStatus
}

// Service owns merchant onboarding and credential management.
type Service interface {
	CreateMerchant(ctx context.Context, input CreateMerchantInput) (*models.Merchant, error)
	GetMerchant(ctx context.Context, id uuid.UUID) (*models.Merchant, error)
	GetMerchantByAPIKey(ctx context.Context, apiKey string) (*models.Merchant, error)
	UpdateMerchant(ctx context.Context, id uuid.UUID, input UpdateMerchantInput) (*models.Merchant, error)
	DeleteMerchant(ctx context.Context, id uuid.UUID) error
	ListMerchants(ctx context.Context, limit, offset int) ([]models.Merchant, error)
	RotateAPIKey(ctx context.Context, id uuid.UUID) (*models.Merchant, error)
}

type service struct {
	repo Repository
	logg *logger.Logger
}

// ServiceParams carries the dependencies for NewService.
type ServiceParams struct {
	Repo   Repository
	Logger *logger.Logger
}

// NewService builds the merchant service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("merchant repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: params.Repo, logg: params.Logger}, nil
}

func (s *service) CreateMerchant(ctx context.Context, input CreateMerchantInput) (*models.Merchant, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "merchant name is required")
	}
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a valid email is required")
	}
	wallet := strings.TrimSpace(input.WalletAddress)
	if wallet == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "settlement wallet address is required")
	}

	settlement := strings.ToUpper(strings.TrimSpace(input.SettlementCurrency))
	if settlement == "" {
		settlement = "USDC"
	}

	apiKey, err := newAPIKey()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate api key")
	}

	merchant := &models.Merchant{
		ID:                 uuid.New(),
		Name:               name,
		Email:              email,
		Status:             enums.MerchantStatusActive,
		WalletAddress:      wallet,
		SettlementCurrency: settlement,
		APIKey:             apiKey,
		WebhookURL:         input.WebhookURL,
	}

	if err := s.repo.Create(ctx, merchant); err != nil {
		if err == ErrDuplicateEmail {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "a merchant with this email already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist merchant")
	}

	ctx = s.logg.WithMerchantID(ctx, merchant.ID.String())
	s.logg.Info(ctx, "merchant onboarded")
	return merchant, nil
}

func (s *service) GetMerchant(ctx context.Context, id uuid.UUID) (*models.Merchant, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "merchant id required")
	}
	merchant, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == ErrNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "merchant not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load merchant")
	}
	if merchant.Status == enums.MerchantStatusDeleted {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "merchant not found")
	}
	return merchant, nil
}

func (s *service) GetMerchantByAPIKey(ctx context.Context, apiKey string) (*models.Merchant, error) {
	if !strings.HasPrefix(apiKey, apiKeyPrefix) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid api key")
	}
	merchant, err := s.repo.FindByAPIKey(ctx, apiKey)
	if err != nil {
		if err == ErrNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid api key")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up api key")
	}
	if merchant.Status == enums.MerchantStatusDeleted {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid api key")
	}
	return merchant, nil
}

func (s *service) UpdateMerchant(ctx context.Context, id uuid.UUID, input UpdateMerchantInput) (*models.Merchant, error) {
	if _, err := s.GetMerchant(ctx, id); err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.Name != nil {
		if strings.TrimSpace(*input.Name) == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "merchant name cannot be empty")
		}
		updates["name"] = strings.TrimSpace(*input.Name)
	}
	if input.WalletAddress != nil {
		if strings.TrimSpace(*input.WalletAddress) == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "wallet address cannot be empty")
		}
		updates["wallet_address"] = strings.TrimSpace(*input.WalletAddress)
	}
	if input.SettlementCurrency != nil {
		updates["settlement_currency"] = strings.ToUpper(strings.TrimSpace(*input.SettlementCurrency))
	}
	if input.WebhookURL != nil {
		updates["webhook_url"] = *input.WebhookURL
	}
	if input.Status != nil {
		if !input.Status.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid merchant status")
		}
		updates["status"] = *input.Status
	}
	if len(updates) == 0 {
		return s.GetMerchant(ctx, id)
	}

	if err := s.repo.Update(ctx, id, updates); err != nil {
		if err == ErrNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "merchant not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update merchant")
	}
	return s.GetMerchant(ctx, id)
}

// DeleteMerchant soft-deletes. The row stays for payment history; the API key
// stops authenticating immediately.
func (s *service) DeleteMerchant(ctx context.Context, id uuid.UUID) error {
	if _, err := s.GetMerchant(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, id, map[string]any{"status": enums.MerchantStatusDeleted}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete merchant")
	}
	ctx = s.logg.WithMerchantID(ctx, id.String())
	s.logg.Info(ctx, "merchant deleted")
	return nil
}

func (s *service) ListMerchants(ctx context.Context, limit, offset int) ([]models.Merchant, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	out, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list merchants")
	}
	return out, nil
}

func (s *service) RotateAPIKey(ctx context.Context, id uuid.UUID) (*models.Merchant, error) {
	if _, err := s.GetMerchant(ctx, id); err != nil {
		return nil, err
	}
	apiKey, err := newAPIKey()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate api key")
	}
	if err := s.repo.Update(ctx, id, map[string]any{"api_key": apiKey}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rotate api key")
	}
	ctx = s.logg.WithMerchantID(ctx, id.String())
	s.logg.Info(ctx, "merchant api key rotated")
	return s.GetMerchant(ctx, id)
}

func newAPIKey() (string, error) {
	buf := make([]byte, apiKeyRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return apiKeyPrefix + hex.EncodeToString(buf), nil
}
