package payments

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/perenalabs/perenapay-backend/pkg/db/models"
	"github.com/perenalabs/perenapay-backend/pkg/enums"
	"github.com/perenalabs/perenapay-backend/pkg/logger"
)

func setupPaymentsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS payments (
  id TEXT PRIMARY KEY,
  merchant_id TEXT NOT NULL,
  amount TEXT NOT NULL,
  currency TEXT NOT NULL,
  reference TEXT NOT NULL UNIQUE,
  status TEXT NOT NULL,
  transaction_signature TEXT,
  expires_at DATETIME NOT NULL,
  completed_at DATETIME,
  metadata TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, gdb.Exec(schema).Error)
	return gdb
}

func storesUnderTest(t *testing.T) map[string]Store {
	t.Helper()
	return map[string]Store{
		"gorm":   NewGormStore(setupPaymentsTestDB(t)),
		"memory": NewMemoryStore(),
	}
}

func newTestPayment(merchantID uuid.UUID, reference string, expiresAt time.Time) *models.Payment {
	now := time.Now().UTC()
	return &models.Payment{
		ID:         uuid.New(),
		MerchantID: merchantID,
		Amount:     decimal.RequireFromString("25.50"),
		Currency:   "USDC",
		Reference:  reference,
		Status:     enums.PaymentStatusPending,
		ExpiresAt:  expiresAt,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestNewStoreFallsBackToMemoryWithoutDatabase(t *testing.T) {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "payments-test", Output: io.Discard})

	store, err := NewStore(ctx, StoreParams{Logger: logg})
	require.NoError(t, err)
	assert.Equal(t, "memory", store.Backend())

	payment := newTestPayment(uuid.New(), "ref-fallback", time.Now().UTC().Add(15*time.Minute))
	require.NoError(t, store.Create(ctx, payment))

	got, err := store.FindByID(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.Reference, got.Reference)
}

func TestStoreCreateAndFind(t *testing.T) {
	ctx := context.Background()
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			merchantID := uuid.New()
			payment := newTestPayment(merchantID, "ref-create-"+name, time.Now().UTC().Add(15*time.Minute))
			require.NoError(t, store.Create(ctx, payment))

			byID, err := store.FindByID(ctx, payment.ID)
			require.NoError(t, err)
			assert.Equal(t, payment.Reference, byID.Reference)
			assert.Equal(t, enums.PaymentStatusPending, byID.Status)
			assert.True(t, payment.Amount.Equal(byID.Amount))

			byRef, err := store.FindByReference(ctx, payment.Reference)
			require.NoError(t, err)
			assert.Equal(t, payment.ID, byRef.ID)

			_, err = store.FindByID(ctx, uuid.New())
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreRejectsDuplicateReference(t *testing.T) {
	ctx := context.Background()
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			merchantID := uuid.New()
			expires := time.Now().UTC().Add(15 * time.Minute)
			first := newTestPayment(merchantID, "ref-dup", expires)
			require.NoError(t, store.Create(ctx, first))

			second := newTestPayment(merchantID, "ref-dup", expires)
			err := store.Create(ctx, second)
			require.Error(t, err, "reference reuse must be rejected")
		})
	}
}

func TestStoreListByMerchant(t *testing.T) {
	ctx := context.Background()
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			merchantID := uuid.New()
			otherMerchant := uuid.New()
			base := time.Now().UTC()

			for i := 0; i < 3; i++ {
				payment := newTestPayment(merchantID, "ref-list-"+name+"-"+uuid.NewString(), base.Add(15*time.Minute))
				payment.CreatedAt = base.Add(time.Duration(i) * time.Second)
				require.NoError(t, store.Create(ctx, payment))
			}
			completed := newTestPayment(merchantID, "ref-list-done-"+name, base.Add(15*time.Minute))
			completed.Status = enums.PaymentStatusCompleted
			require.NoError(t, store.Create(ctx, completed))
			require.NoError(t, store.Create(ctx, newTestPayment(otherMerchant, "ref-other-"+name, base.Add(15*time.Minute))))

			all, err := store.ListByMerchant(ctx, merchantID, ListFilter{})
			require.NoError(t, err)
			assert.Len(t, all, 4)
			for i := 1; i < len(all); i++ {
				assert.False(t, all[i].CreatedAt.After(all[i-1].CreatedAt), "expected newest first")
			}

			pending := enums.PaymentStatusPending
			filtered, err := store.ListByMerchant(ctx, merchantID, ListFilter{Status: &pending})
			require.NoError(t, err)
			assert.Len(t, filtered, 3)

			limited, err := store.ListByMerchant(ctx, merchantID, ListFilter{Limit: 2})
			require.NoError(t, err)
			assert.Len(t, limited, 2)
		})
	}
}

func TestStoreUpdateStatusIf(t *testing.T) {
	ctx := context.Background()
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			payment := newTestPayment(uuid.New(), "ref-transition-"+name, time.Now().UTC().Add(15*time.Minute))
			require.NoError(t, store.Create(ctx, payment))

			completedAt := time.Now().UTC()
			updated, err := store.UpdateStatusIf(ctx, payment.ID,
				enums.PaymentStatusPending, enums.PaymentStatusCompleted,
				map[string]any{
					"transaction_signature": "sig-abc",
					"completed_at":          completedAt,
				})
			require.NoError(t, err)
			assert.True(t, updated)

			current, err := store.FindByID(ctx, payment.ID)
			require.NoError(t, err)
			assert.Equal(t, enums.PaymentStatusCompleted, current.Status)
			require.NotNil(t, current.TransactionSignature)
			assert.Equal(t, "sig-abc", *current.TransactionSignature)
			require.NotNil(t, current.CompletedAt)

			// A second conditional transition from PENDING must lose.
			updated, err = store.UpdateStatusIf(ctx, payment.ID,
				enums.PaymentStatusPending, enums.PaymentStatusCancelled, nil)
			require.NoError(t, err)
			assert.False(t, updated)

			current, err = store.FindByID(ctx, payment.ID)
			require.NoError(t, err)
			assert.Equal(t, enums.PaymentStatusCompleted, current.Status)
		})
	}
}

func TestStoreUpdateIgnoresUnknownColumns(t *testing.T) {
	ctx := context.Background()
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			payment := newTestPayment(uuid.New(), "ref-update-"+name, time.Now().UTC().Add(15*time.Minute))
			require.NoError(t, store.Create(ctx, payment))

			err := store.Update(ctx, payment.ID, map[string]any{
				"transaction_signature": "sig-xyz",
				"merchant_id":           uuid.New(),
				"amount":                decimal.RequireFromString("9999"),
			})
			require.NoError(t, err)

			current, err := store.FindByID(ctx, payment.ID)
			require.NoError(t, err)
			require.NotNil(t, current.TransactionSignature)
			assert.Equal(t, "sig-xyz", *current.TransactionSignature)
			assert.Equal(t, payment.MerchantID, current.MerchantID)
			assert.True(t, payment.Amount.Equal(current.Amount))
		})
	}
}

func TestStoreSweepExpired(t *testing.T) {
	ctx := context.Background()
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			now := time.Now().UTC()

			overdueA := newTestPayment(uuid.New(), "ref-sweep-a-"+name, now.Add(-time.Minute))
			overdueB := newTestPayment(uuid.New(), "ref-sweep-b-"+name, now.Add(-time.Hour))
			fresh := newTestPayment(uuid.New(), "ref-sweep-fresh-"+name, now.Add(10*time.Minute))
			settled := newTestPayment(uuid.New(), "ref-sweep-done-"+name, now.Add(-time.Minute))
			settled.Status = enums.PaymentStatusCompleted

			for _, p := range []*models.Payment{overdueA, overdueB, fresh, settled} {
				require.NoError(t, store.Create(ctx, p))
			}

			swept, err := store.SweepExpired(ctx, now)
			require.NoError(t, err)
			assert.Equal(t, int64(2), swept)

			for _, id := range []uuid.UUID{overdueA.ID, overdueB.ID} {
				current, err := store.FindByID(ctx, id)
				require.NoError(t, err)
				assert.Equal(t, enums.PaymentStatusExpired, current.Status)
			}

			current, err := store.FindByID(ctx, fresh.ID)
			require.NoError(t, err)
			assert.Equal(t, enums.PaymentStatusPending, current.Status)

			current, err = store.FindByID(ctx, settled.ID)
			require.NoError(t, err)
			assert.Equal(t, enums.PaymentStatusCompleted, current.Status)

			// Sweep is idempotent once everything overdue is settled.
			swept, err = store.SweepExpired(ctx, now)
			require.NoError(t, err)
			assert.Zero(t, swept)
		})
	}
}
