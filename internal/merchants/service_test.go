package merchants

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perenalabs/perenapay-backend/pkg/enums"
	pkgerrors "github.com/perenalabs/perenapay-backend/pkg/errors"
	"github.com/perenalabs/perenapay-backend/pkg/logger"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:   NewMemoryRepository(),
		Logger: logger.New(logger.Options{ServiceName: "merchants-test", Output: io.Discard}),
	})
	require.NoError(t, err)
	return svc
}

func assertCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr, "expected a coded error, got %v", err)
	assert.Equal(t, code, appErr.Code())
}

func TestCreateMerchant(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	merchant, err := svc.CreateMerchant(ctx, CreateMerchantInput{
		Name:          "Acme Goods",
		Email:         "Ops@Acme.Test",
		WalletAddress: "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin",
	})
	require.NoError(t, err)

	assert.Equal(t, enums.MerchantStatusActive, merchant.Status)
	assert.Equal(t, "ops@acme.test", merchant.Email)
	assert.Equal(t, "USDC", merchant.SettlementCurrency)
	assert.True(t, strings.HasPrefix(merchant.APIKey, "pk_"))
	assert.Len(t, merchant.APIKey, len("pk_")+48)
}

func TestCreateMerchantValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	_, err := svc.CreateMerchant(ctx, CreateMerchantInput{Email: "a@b.c", WalletAddress: "w"})
	assertCode(t, err, pkgerrors.CodeValidation)

	_, err = svc.CreateMerchant(ctx, CreateMerchantInput{Name: "x", Email: "not-an-email", WalletAddress: "w"})
	assertCode(t, err, pkgerrors.CodeValidation)

	_, err = svc.CreateMerchant(ctx, CreateMerchantInput{Name: "x", Email: "a@b.c"})
	assertCode(t, err, pkgerrors.CodeValidation)
}

func TestCreateMerchantRejectsDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	input := CreateMerchantInput{Name: "Acme", Email: "dup@acme.test", WalletAddress: "w"}
	_, err := svc.CreateMerchant(ctx, input)
	require.NoError(t, err)

	_, err = svc.CreateMerchant(ctx, input)
	assertCode(t, err, pkgerrors.CodeConflict)
}

func TestGetMerchantByAPIKey(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	merchant, err := svc.CreateMerchant(ctx, CreateMerchantInput{
		Name: "Acme", Email: "key@acme.test", WalletAddress: "w",
	})
	require.NoError(t, err)

	found, err := svc.GetMerchantByAPIKey(ctx, merchant.APIKey)
	require.NoError(t, err)
	assert.Equal(t, merchant.ID, found.ID)

	_, err = svc.GetMerchantByAPIKey(ctx, "pk_0000")
	assertCode(t, err, pkgerrors.CodeUnauthorized)

	_, err = svc.GetMerchantByAPIKey(ctx, "sk_wrong_prefix")
	assertCode(t, err, pkgerrors.CodeUnauthorized)
}

func TestUpdateMerchant(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	merchant, err := svc.CreateMerchant(ctx, CreateMerchantInput{
		Name: "Acme", Email: "upd@acme.test", WalletAddress: "w",
	})
	require.NoError(t, err)

	name := "Acme Global"
	webhook := "https://acme.test/hooks"
	suspended := enums.MerchantStatusSuspended
	updated, err := svc.UpdateMerchant(ctx, merchant.ID, UpdateMerchantInput{
		Name:       &name,
		WebhookURL: &webhook,
		Status:     &suspended,
	})
	require.NoError(t, err)

	assert.Equal(t, "Acme Global", updated.Name)
	require.NotNil(t, updated.WebhookURL)
	assert.Equal(t, webhook, *updated.WebhookURL)
	assert.Equal(t, enums.MerchantStatusSuspended, updated.Status)
	assert.Equal(t, merchant.Email, updated.Email, "email is immutable")

	empty := " "
	_, err = svc.UpdateMerchant(ctx, merchant.ID, UpdateMerchantInput{Name: &empty})
	assertCode(t, err, pkgerrors.CodeValidation)
}

func TestDeleteMerchantIsSoft(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	merchant, err := svc.CreateMerchant(ctx, CreateMerchantInput{
		Name: "Acme", Email: "del@acme.test", WalletAddress: "w",
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteMerchant(ctx, merchant.ID))

	_, err = svc.GetMerchant(ctx, merchant.ID)
	assertCode(t, err, pkgerrors.CodeNotFound)

	// The credential stops working the moment the merchant is deleted.
	_, err = svc.GetMerchantByAPIKey(ctx, merchant.APIKey)
	assertCode(t, err, pkgerrors.CodeUnauthorized)

	err = svc.DeleteMerchant(ctx, uuid.New())
	assertCode(t, err, pkgerrors.CodeNotFound)
}

func TestRotateAPIKey(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	merchant, err := svc.CreateMerchant(ctx, CreateMerchantInput{
		Name: "Acme", Email: "rot@acme.test", WalletAddress: "w",
	})
	require.NoError(t, err)

	rotated, err := svc.RotateAPIKey(ctx, merchant.ID)
	require.NoError(t, err)
	assert.NotEqual(t, merchant.APIKey, rotated.APIKey)
	assert.True(t, strings.HasPrefix(rotated.APIKey, "pk_"))

	_, err = svc.GetMerchantByAPIKey(ctx, merchant.APIKey)
	assertCode(t, err, pkgerrors.CodeUnauthorized)

	found, err := svc.GetMerchantByAPIKey(ctx, rotated.APIKey)
	require.NoError(t, err)
	assert.Equal(t, merchant.ID, found.ID)
}

func TestListMerchants(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	for _, email := range []string{"a@l.test", "b@l.test", "c@l.test"} {
		_, err := svc.CreateMerchant(ctx, CreateMerchantInput{Name: "M", Email: email, WalletAddress: "w"})
		require.NoError(t, err)
	}

	all, err := svc.ListMerchants(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	page, err := svc.ListMerchants(ctx, 2, 0)
	require.NoError(t, err)
	assert.Len(t, page, 2)
}
