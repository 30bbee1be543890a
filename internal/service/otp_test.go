package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elitetrust/stepup-ledger/internal/domain"
	"github.com/elitetrust/stepup-ledger/internal/models"
)

func TestVerify_WrongCodeThenRight(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	transactions, _, verifier, _, _ := newWorkflow(db)
	customer, _ := newCustomerWithAccount(t, db, "Ada", "ada@example.com", "A-1001", 50_000)
	_, _ = newCustomerWithAccount(t, db, "Ben", "ben@example.com", "A-1002", 0)
	seedPolicy(t, db, customer.ID, domain.TxTypeTransfer, true,
		[]int32{40}, []string{"X1"}, []string{"msg"}, domain.DeliveryModeManual)

	tx := openTransfer(t, transactions, customer.ID, "A-1001", "A-1002", "ELT-Bank", 10_000)
	ctx := context.Background()

	err := verifier.Verify(ctx, tx.ID, 40, "WRONG")
	assert.ErrorIs(t, err, models.ErrInvalidOtp)

	// A failed attempt must not consume the checkpoint.
	loaded, err := transactions.Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.Empty(t, loaded.UsedCheckpoints)

	require.NoError(t, verifier.Verify(ctx, tx.ID, 40, "X1"))

	loaded, err = transactions.Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, []int32{40}, loaded.UsedCheckpoints)
}

func TestVerify_ReplayRejected(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	transactions, _, verifier, _, _ := newWorkflow(db)
	customer, _ := newCustomerWithAccount(t, db, "Ada", "ada@example.com", "A-1001", 50_000)
	_, _ = newCustomerWithAccount(t, db, "Ben", "ben@example.com", "A-1002", 0)
	seedPolicy(t, db, customer.ID, domain.TxTypeTransfer, true,
		[]int32{40}, []string{"X1"}, []string{"msg"}, domain.DeliveryModeManual)

	tx := openTransfer(t, transactions, customer.ID, "A-1001", "A-1002", "ELT-Bank", 10_000)
	ctx := context.Background()

	require.NoError(t, verifier.Verify(ctx, tx.ID, 40, "X1"))

	// Replaying the same checkpoint fails even with the right code.
	err := verifier.Verify(ctx, tx.ID, 40, "X1")
	assert.ErrorIs(t, err, models.ErrCheckpointUsed)
}

func TestVerify_UnconfiguredPercentAndPolicy(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	transactions, _, verifier, _, _ := newWorkflow(db)
	customer, _ := newCustomerWithAccount(t, db, "Ada", "ada@example.com", "A-1001", 50_000)
	_, _ = newCustomerWithAccount(t, db, "Ben", "ben@example.com", "A-1002", 0)

	tx := openTransfer(t, transactions, customer.ID, "A-1001", "A-1002", "ELT-Bank", 10_000)
	ctx := context.Background()

	// No policy configured at all.
	err := verifier.Verify(ctx, tx.ID, 40, "X1")
	assert.ErrorIs(t, err, models.ErrOtpNotEnabled)

	seedPolicy(t, db, customer.ID, domain.TxTypeTransfer, true,
		[]int32{40}, []string{"X1"}, []string{"msg"}, domain.DeliveryModeManual)

	// 50 is not a configured checkpoint.
	err = verifier.Verify(ctx, tx.ID, 50, "X1")
	assert.ErrorIs(t, err, models.ErrCheckpointNotFound)
}

func TestVerify_ConcurrentConsumesAtMostOnce(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	transactions, _, verifier, _, _ := newWorkflow(db)
	customer, _ := newCustomerWithAccount(t, db, "Ada", "ada@example.com", "A-1001", 50_000)
	_, _ = newCustomerWithAccount(t, db, "Ben", "ben@example.com", "A-1002", 0)
	seedPolicy(t, db, customer.ID, domain.TxTypeTransfer, true,
		[]int32{40}, []string{"X1"}, []string{"msg"}, domain.DeliveryModeManual)

	tx := openTransfer(t, transactions, customer.ID, "A-1001", "A-1002", "ELT-Bank", 10_000)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- verifier.Verify(ctx, tx.ID, 40, "X1")
		}()
	}
	wg.Wait()
	close(results)

	var successes, replays int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, models.ErrCheckpointUsed):
			replays++
		default:
			t.Fatalf("unexpected verify error: %v", err)
		}
	}
	assert.Equal(t, 1, successes, "exactly one verifier may consume the checkpoint")
	assert.Equal(t, n-1, replays)

	loaded, err := transactions.Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, []int32{40}, loaded.UsedCheckpoints, "checkpoint must be recorded once")
}
