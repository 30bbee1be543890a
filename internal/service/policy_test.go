package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elitetrust/stepup-ledger/internal/domain"
	"github.com/elitetrust/stepup-ledger/internal/models"
	"github.com/elitetrust/stepup-ledger/internal/repository"
)

func TestNewOtpPolicy_Validation(t *testing.T) {
	customerID := uuid.New()

	_, err := NewOtpPolicy(customerID, domain.TxTypeTransfer, true,
		[]int32{40, 70}, []string{"X1"}, []string{"a", "b"}, domain.DeliveryModeManual)
	assert.ErrorIs(t, err, models.ErrPolicyLengthMismatch)

	_, err = NewOtpPolicy(customerID, domain.TxTypeTransfer, true,
		[]int32{140}, []string{"X1"}, []string{"a"}, domain.DeliveryModeManual)
	assert.ErrorIs(t, err, models.ErrInvalidPercent)

	_, err = NewOtpPolicy(customerID, "loan", true,
		[]int32{40}, []string{"X1"}, []string{"a"}, domain.DeliveryModeManual)
	assert.Error(t, err)

	_, err = NewOtpPolicy(customerID, domain.TxTypeTransfer, true,
		[]int32{40}, []string{"X1"}, []string{"a"}, "pigeon")
	assert.Error(t, err)

	// Empty delivery mode defaults to manual.
	policy, err := NewOtpPolicy(customerID, domain.TxTypeTransfer, true,
		[]int32{40}, []string{"X1"}, []string{"a"}, "")
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryModeManual, policy.DeliveryMode)
}

func TestPolicy_UpsertAndGet(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := repository.NewStore(db)
	policies := NewPolicyService(store)
	customer, _ := newCustomerWithAccount(t, db, "Ada", "ada@example.com", "A-1001", 0)
	ctx := context.Background()

	policy, err := NewOtpPolicy(customer.ID, domain.TxTypeTransfer, true,
		[]int32{25, 50, 75}, []string{"A", "B", "C"}, []string{"m1", "m2", "m3"}, domain.DeliveryModeAutomatic)
	require.NoError(t, err)
	require.NoError(t, policies.Upsert(ctx, policy))

	loaded, err := policies.Get(ctx, customer.ID, domain.TxTypeTransfer)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.True(t, loaded.Enabled)
	assert.Equal(t, []int32{25, 50, 75}, loaded.Checkpoints)
	assert.Equal(t, []string{"A", "B", "C"}, loaded.Codes)
	assert.Equal(t, domain.DeliveryModeAutomatic, loaded.DeliveryMode)

	// Upsert replaces, it never appends.
	replacement, err := NewOtpPolicy(customer.ID, domain.TxTypeTransfer, false,
		[]int32{90}, []string{"Z"}, []string{"last"}, domain.DeliveryModeManual)
	require.NoError(t, err)
	require.NoError(t, policies.Upsert(ctx, replacement))

	loaded, err = policies.Get(ctx, customer.ID, domain.TxTypeTransfer)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.False(t, loaded.Enabled)
	assert.Equal(t, []int32{90}, loaded.Checkpoints)

	// A different type has its own slot.
	missing, err := policies.Get(ctx, customer.ID, domain.TxTypeWithdrawal)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestPolicy_UpsertUnknownCustomer(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := repository.NewStore(db)
	policies := NewPolicyService(store)

	policy, err := NewOtpPolicy(uuid.New(), domain.TxTypeTransfer, true,
		[]int32{40}, []string{"X1"}, []string{"m"}, domain.DeliveryModeManual)
	require.NoError(t, err)

	err = policies.Upsert(context.Background(), policy)
	assert.ErrorIs(t, err, models.ErrCustomerNotFound)
}
