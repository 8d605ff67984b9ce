package merchants

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/perenalabs/perenapay-backend/pkg/db"
	"github.com/perenalabs/perenapay-backend/pkg/db/models"
	"github.com/perenalabs/perenapay-backend/pkg/enums"
	"github.com/perenalabs/perenapay-backend/pkg/logger"
)

// ErrNotFound is returned when no merchant matches the lookup.
var ErrNotFound = errors.New("merchant not found")

// ErrDuplicateEmail is returned when a merchant with the email already exists.
var ErrDuplicateEmail = errors.New("merchant email already registered")

// Repository is the persistence surface for merchants. Like the payment
// store it has a Postgres implementation and an in-memory one for degraded
// boots, chosen once at startup.
type Repository interface {
	Create(ctx context.Context, merchant *models.Merchant) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Merchant, error)
	FindByEmail(ctx context.Context, email string) (*models.Merchant, error)
	FindByAPIKey(ctx context.Context, apiKey string) (*models.Merchant, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	List(ctx context.Context, limit, offset int) ([]models.Merchant, error)
}

var updatableColumns = map[string]struct{}{
	"name":                {},
	"status":              {},
	"wallet_address":      {},
	"settlement_currency": {},
	"webhook_url":         {},
	"metadata":            {},
	"api_key":             {},
}

func filterUpdates(updates map[string]any) map[string]any {
	clean := make(map[string]any, len(updates))
	for column, value := range updates {
		if _, ok := updatableColumns[column]; ok {
			clean[column] = value
		}
	}
	return clean
}

// RepositoryParams carries the dependencies for NewRepository.
type RepositoryParams struct {
	Client *db.Client
	Logger *logger.Logger
}

// NewRepository picks the merchant backend at boot, mirroring the payment
// store's degradation rules.
func NewRepository(ctx context.Context, params RepositoryParams) (Repository, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Client == nil {
		params.Logger.Warn(ctx, "no database client configured, merchants will not survive restarts")
		return NewMemoryRepository(), nil
	}
	if err := params.Client.Ping(ctx); err != nil {
		params.Logger.Error(ctx, "database unreachable at boot, falling back to in-memory merchant repository", err)
		return NewMemoryRepository(), nil
	}
	return &gormRepository{db: params.Client.DB()}, nil
}

type gormRepository struct {
	db *gorm.DB
}

// NewGormRepository builds the Postgres-backed repository directly.
func NewGormRepository(gdb *gorm.DB) Repository {
	return &gormRepository{db: gdb}
}

func (r *gormRepository) Create(ctx context.Context, merchant *models.Merchant) error {
	err := r.db.WithContext(ctx).Create(merchant).Error
	if err != nil && db.IsUniqueViolation(err, "") {
		return ErrDuplicateEmail
	}
	return err
}

func (r *gormRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Merchant, error) {
	var merchant models.Merchant
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&merchant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &merchant, nil
}

func (r *gormRepository) FindByEmail(ctx context.Context, email string) (*models.Merchant, error) {
	var merchant models.Merchant
	err := r.db.WithContext(ctx).Where("email = ?", strings.ToLower(email)).First(&merchant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &merchant, nil
}

func (r *gormRepository) FindByAPIKey(ctx context.Context, apiKey string) (*models.Merchant, error) {
	var merchant models.Merchant
	err := r.db.WithContext(ctx).Where("api_key = ?", apiKey).First(&merchant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &merchant, nil
}

func (r *gormRepository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	clean := filterUpdates(updates)
	if len(clean) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.Merchant{}).
		Where("id = ?", id).
		Updates(clean)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormRepository) List(ctx context.Context, limit, offset int) ([]models.Merchant, error) {
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var out []models.Merchant
	if err := query.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

type memoryRepository struct {
	mu       sync.RWMutex
	byID     map[uuid.UUID]*models.Merchant
	byEmail  map[string]uuid.UUID
	byAPIKey map[string]uuid.UUID
}

// NewMemoryRepository builds the in-memory merchant repository.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		byID:     make(map[uuid.UUID]*models.Merchant),
		byEmail:  make(map[string]uuid.UUID),
		byAPIKey: make(map[string]uuid.UUID),
	}
}

func cloneMerchant(m *models.Merchant) *models.Merchant {
	if m == nil {
		return nil
	}
	cp := *m
	if m.WebhookURL != nil {
		url := *m.WebhookURL
		cp.WebhookURL = &url
	}
	if m.Metadata != nil {
		cp.Metadata = append([]byte(nil), m.Metadata...)
	}
	return &cp
}

func (r *memoryRepository) Create(ctx context.Context, merchant *models.Merchant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := strings.ToLower(merchant.Email)
	if _, exists := r.byEmail[email]; exists {
		return ErrDuplicateEmail
	}

	now := time.Now().UTC()
	if merchant.CreatedAt.IsZero() {
		merchant.CreatedAt = now
	}
	merchant.UpdatedAt = now

	r.byID[merchant.ID] = cloneMerchant(merchant)
	r.byEmail[email] = merchant.ID
	r.byAPIKey[merchant.APIKey] = merchant.ID
	return nil
}

func (r *memoryRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Merchant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	merchant, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneMerchant(merchant), nil
}

func (r *memoryRepository) FindByEmail(ctx context.Context, email string) (*models.Merchant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneMerchant(r.byID[id]), nil
}

func (r *memoryRepository) FindByAPIKey(ctx context.Context, apiKey string) (*models.Merchant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byAPIKey[apiKey]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneMerchant(r.byID[id]), nil
}

func (r *memoryRepository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	merchant, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	for column, value := range filterUpdates(updates) {
		switch column {
		case "name":
			if v, ok := value.(string); ok {
				merchant.Name = v
			}
		case "status":
			if v, ok := value.(enums.MerchantStatus); ok {
				merchant.Status = v
			}
		case "wallet_address":
			if v, ok := value.(string); ok {
				merchant.WalletAddress = v
			}
		case "settlement_currency":
			if v, ok := value.(string); ok {
				merchant.SettlementCurrency = v
			}
		case "webhook_url":
			switch v := value.(type) {
			case string:
				merchant.WebhookURL = &v
			case *string:
				merchant.WebhookURL = v
			}
		case "metadata":
			switch v := value.(type) {
			case json.RawMessage:
				merchant.Metadata = append(json.RawMessage(nil), v...)
			case []byte:
				merchant.Metadata = append(json.RawMessage(nil), v...)
			}
		case "api_key":
			if v, ok := value.(string); ok {
				delete(r.byAPIKey, merchant.APIKey)
				merchant.APIKey = v
				r.byAPIKey[v] = merchant.ID
			}
		}
	}
	merchant.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *memoryRepository) List(ctx context.Context, limit, offset int) ([]models.Merchant, error) {
	r.mu.RLock()
	all := make([]*models.Merchant, 0, len(r.byID))
	for _, merchant := range r.byID {
		all = append(all, merchant)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	if offset > 0 {
		if offset >= len(all) {
			return []models.Merchant{}, nil
		}
		all = all[offset:]
	}
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}

	out := make([]models.Merchant, 0, len(all))
	for _, merchant := range all {
		out = append(out, *cloneMerchant(merchant))
	}
	return out, nil
}
