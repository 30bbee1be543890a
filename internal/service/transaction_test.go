package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elitetrust/stepup-ledger/internal/domain"
	"github.com/elitetrust/stepup-ledger/internal/models"
)

func TestOpen_ValidationAndAudit(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	transactions, _, _, _, _ := newWorkflow(db)
	customer, _ := newCustomerWithAccount(t, db, "Ada", "ada@example.com", "A-1001", 50_000)
	ctx := context.Background()

	// Zero and negative amounts are rejected before any write.
	_, err := transactions.Open(ctx, OpenTransactionRequest{
		CustomerID:      customer.ID,
		SourceAccountNo: "A-1001",
		Amount:          domain.NewMoney(0),
		TransactionType: domain.TxTypeTransfer,
		DestAccountNo:   "A-1002",
	})
	assert.Error(t, err)

	_, err = transactions.Open(ctx, OpenTransactionRequest{
		CustomerID:      customer.ID,
		SourceAccountNo: "A-1001",
		Amount:          domain.NewMoney(1_000),
		TransactionType: "loan",
	})
	assert.Error(t, err)

	// Transfers need a destination account.
	_, err = transactions.Open(ctx, OpenTransactionRequest{
		CustomerID:      customer.ID,
		SourceAccountNo: "A-1001",
		Amount:          domain.NewMoney(1_000),
		TransactionType: domain.TxTypeTransfer,
	})
	assert.Error(t, err)

	// Unknown customer.
	_, err = transactions.Open(ctx, OpenTransactionRequest{
		CustomerID:      uuid.New(),
		SourceAccountNo: "A-1001",
		DestAccountNo:   "A-1002",
		Amount:          domain.NewMoney(1_000),
		TransactionType: domain.TxTypeTransfer,
	})
	assert.ErrorIs(t, err, models.ErrCustomerNotFound)

	// A valid open lands pending with an empty checkpoint history and leaves
	// an audit record.
	tx, err := transactions.Open(ctx, OpenTransactionRequest{
		CustomerID:      customer.ID,
		SourceAccountNo: "A-1001",
		DestAccountNo:   "A-1002",
		DestBank:        "ELT-Bank",
		Amount:          domain.NewMoney(10_000),
		TransactionType: domain.TxTypeTransfer,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusPending, tx.Status)

	loaded, err := transactions.Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.Empty(t, loaded.UsedCheckpoints)

	var audited int
	err = db.QueryRow(ctx, `SELECT COUNT(*) FROM audit_log WHERE entity_id = $1 AND action = 'opened'`, tx.ID).Scan(&audited)
	require.NoError(t, err)
	assert.Equal(t, 1, audited)
}

func TestOpen_SourceAccountChecks(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	transactions, _, _, _, _ := newWorkflow(db)
	customer, account := newCustomerWithAccount(t, db, "Ada", "ada@example.com", "A-1001", 50_000)
	other, _ := newCustomerWithAccount(t, db, "Ben", "ben@example.com", "A-1002", 0)
	ctx := context.Background()

	// Another customer's account is invisible, not forbidden.
	_, err := transactions.Open(ctx, OpenTransactionRequest{
		CustomerID:      other.ID,
		SourceAccountNo: "A-1001",
		DestAccountNo:   "A-1002",
		Amount:          domain.NewMoney(1_000),
		TransactionType: domain.TxTypeTransfer,
	})
	assert.ErrorIs(t, err, models.ErrAccountNotFound)

	// Frozen accounts cannot open transactions.
	_, err = db.Exec(ctx, "UPDATE accounts SET status = 'frozen' WHERE id = $1", account.ID)
	require.NoError(t, err)
	_, err = transactions.Open(ctx, OpenTransactionRequest{
		CustomerID:      customer.ID,
		SourceAccountNo: "A-1001",
		DestAccountNo:   "A-1002",
		Amount:          domain.NewMoney(1_000),
		TransactionType: domain.TxTypeTransfer,
	})
	assert.ErrorIs(t, err, models.ErrAccountNotActive)
}

func TestDelete_PendingOnly(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	transactions, _, _, settlements, _ := newWorkflow(db)
	customer, _ := newCustomerWithAccount(t, db, "Ada", "ada@example.com", "A-1001", 50_000)
	_, _ = newCustomerWithAccount(t, db, "Ben", "ben@example.com", "A-1002", 0)
	ctx := context.Background()
	admin := uuid.New()

	pending := openTransfer(t, transactions, customer.ID, "A-1001", "A-1002", "ELT-Bank", 1_000)
	require.NoError(t, transactions.Delete(ctx, pending.ID, &admin))
	_, err := transactions.Get(ctx, pending.ID)
	assert.ErrorIs(t, err, models.ErrTransactionNotFound)

	// Settled money is immutable; the delete is rejected.
	completed := openTransfer(t, transactions, customer.ID, "A-1001", "A-1002", "ELT-Bank", 2_000)
	_, err = settlements.Settle(ctx, completed.ID, "Transaction Successful", "")
	require.NoError(t, err)
	err = transactions.Delete(ctx, completed.ID, &admin)
	assert.ErrorIs(t, err, models.ErrAlreadyCompleted)

	err = transactions.Delete(ctx, uuid.New(), &admin)
	assert.ErrorIs(t, err, models.ErrTransactionNotFound)
}
