package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/perenalabs/perenapay-backend/pkg/db"
	"github.com/perenalabs/perenapay-backend/pkg/db/models"
	"github.com/perenalabs/perenapay-backend/pkg/enums"
	"github.com/perenalabs/perenapay-backend/pkg/logger"
)

// ErrNotFound is returned when no payment matches the lookup.
var ErrNotFound = errors.New("payment not found")

// ErrDuplicateReference is returned when a generated reference collides with
// an existing row. The memory store returns it directly; the Postgres store
// surfaces the unique index violation instead.
var ErrDuplicateReference = errors.New("payment reference already exists")

// Store is the persistence surface for payments. Two implementations exist: a
// Postgres-backed store and an in-memory store the service boots on when the
// database is unreachable. The backend is chosen once at startup and never
// switched mid-flight.
type Store interface {
	Create(ctx context.Context, payment *models.Payment) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	FindByReference(ctx context.Context, reference string) (*models.Payment, error)
	ListByMerchant(ctx context.Context, merchantID uuid.UUID, filter ListFilter) ([]models.Payment, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	// UpdateStatusIf transitions the payment from one status to another in a
	// single conditional write. It reports false when the row was not in the
	// expected starting status, which is how concurrent verifiers lose the
	// race without clobbering each other.
	UpdateStatusIf(ctx context.Context, id uuid.UUID, from, to enums.PaymentStatus, updates map[string]any) (bool, error)
	// SweepExpired moves every pending payment whose deadline has passed to
	// EXPIRED and returns how many rows changed.
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
	Backend() string
	Ping(ctx context.Context) error
}

// updatableColumns enumerates the columns a partial update may touch. Anything
// else in the map is discarded.
var updatableColumns = map[string]struct{}{
	"status":                {},
	"transaction_signature": {},
	"completed_at":          {},
	"expires_at":            {},
	"metadata":              {},
}

func filterUpdates(updates map[string]any) map[string]any {
	if len(updates) == 0 {
		return map[string]any{}
	}
	clean := make(map[string]any, len(updates))
	for column, value := range updates {
		if _, ok := updatableColumns[column]; ok {
			clean[column] = value
		}
	}
	return clean
}

// StoreParams carries the dependencies for NewStore.
type StoreParams struct {
	Client *db.Client
	Logger *logger.Logger
}

// NewStore picks the persistence backend at boot. A reachable database wins;
// anything else degrades to the in-memory store with a loud log so on-call
// can tell persisted and ephemeral deployments apart.
func NewStore(ctx context.Context, params StoreParams) (Store, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Client == nil {
		params.Logger.Warn(ctx, "no database client configured, payments will not survive restarts")
		return NewMemoryStore(), nil
	}
	if err := params.Client.Ping(ctx); err != nil {
		params.Logger.Error(ctx, "database unreachable at boot, falling back to in-memory payment store", err)
		return NewMemoryStore(), nil
	}
	return &gormStore{db: params.Client.DB()}, nil
}

type gormStore struct {
	db *gorm.DB
}

// NewGormStore builds the Postgres-backed store directly. Tests use it with a
// sqlite handle.
func NewGormStore(gdb *gorm.DB) Store {
	return &gormStore{db: gdb}
}

func (s *gormStore) Backend() string { return "postgres" }

func (s *gormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *gormStore) Create(ctx context.Context, payment *models.Payment) error {
	return s.db.WithContext(ctx).Create(payment).Error
}

func (s *gormStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &payment, nil
}

func (s *gormStore) FindByReference(ctx context.Context, reference string) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.WithContext(ctx).Where("reference = ?", reference).First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &payment, nil
}

func (s *gormStore) ListByMerchant(ctx context.Context, merchantID uuid.UUID, filter ListFilter) ([]models.Payment, error) {
	query := s.db.WithContext(ctx).
		Where("merchant_id = ?", merchantID).
		Order("created_at DESC")
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var out []models.Payment
	if err := query.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *gormStore) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	clean := filterUpdates(updates)
	if len(clean) == 0 {
		return nil
	}
	res := s.db.WithContext(ctx).
		Model(&models.Payment{}).
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

func (s *gormStore) UpdateStatusIf(ctx context.Context, id uuid.UUID, from, to enums.PaymentStatus, updates map[string]any) (bool, error) {
	changes := filterUpdates(updates)
	changes["status"] = to
	res := s.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, from).
		Updates(changes)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *gormStore) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("status = ? AND expires_at <= ?", enums.PaymentStatusPending, now).
		Update("status", enums.PaymentStatusExpired)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
