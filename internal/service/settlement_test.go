package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elitetrust/stepup-ledger/internal/domain"
	"github.com/elitetrust/stepup-ledger/internal/models"
	"github.com/elitetrust/stepup-ledger/internal/notification"
	"github.com/elitetrust/stepup-ledger/internal/repository"
)

func TestSettle_InternalTransferFullFlow(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	transactions, gate, verifier, settlements, dispatcher := newWorkflow(db)
	sender, senderAcc := newCustomerWithAccount(t, db, "Ada", "ada@example.com", "A-1001", 50_000)
	_, recipientAcc := newCustomerWithAccount(t, db, "Ben", "ben@example.com", "A-1002", 2_000)
	seedPolicy(t, db, sender.ID, domain.TxTypeTransfer, true,
		[]int32{40, 70}, []string{"X1", "X2"}, []string{"Verify at 40%", "Verify at 70%"}, domain.DeliveryModeManual)

	tx := openTransfer(t, transactions, sender.ID, "A-1001", "A-1002", "ELT-Bank", 10_000)
	ctx := context.Background()

	// Walk the gated progress: 40% and 70% both require codes.
	for _, step := range []struct {
		percent int
		code    string
	}{{40, "X1"}, {70, "X2"}} {
		res, err := gate.Evaluate(ctx, tx.ID, step.percent, "")
		require.NoError(t, err)
		require.True(t, res.RequiresOtp)
		require.NoError(t, verifier.Verify(ctx, tx.ID, step.percent, step.code))
	}

	result, err := settlements.Settle(ctx, tx.ID, "Transaction Successful", "ELT-Bank")
	require.NoError(t, err)
	assert.True(t, result.Ok)
	assert.False(t, result.AlreadySettled)
	assert.Equal(t, domain.TxStatusCompleted, result.Transaction.Status)
	assert.Equal(t, "Transaction Successful", result.Transaction.StatusLabel)

	assert.Equal(t, int64(40_000), accountBalance(t, db, senderAcc.ID))
	assert.Equal(t, int64(12_000), accountBalance(t, db, recipientAcc.ID))

	// Double-entry invariant: the whole ledger nets to zero.
	net, err := repository.New(db).GetLedgerNet(ctx)
	require.NoError(t, err)
	assert.Zero(t, net)

	// Both the sender confirmation and the recipient credit alert go out.
	assert.Eventually(t, func() bool {
		var confirmed, credited bool
		for _, msg := range dispatcher.Sent() {
			if msg.Kind == notification.KindSettlementConfirmation && msg.Recipient == "ada@example.com" {
				confirmed = true
			}
			if msg.Kind == notification.KindCreditAlert && msg.Recipient == "ben@example.com" {
				credited = true
			}
		}
		return confirmed && credited
	}, waitLong, waitTick)
}

func TestSettle_ReplayIsNoOp(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	transactions, _, _, settlements, _ := newWorkflow(db)
	sender, senderAcc := newCustomerWithAccount(t, db, "Ada", "ada@example.com", "A-1001", 50_000)
	_, recipientAcc := newCustomerWithAccount(t, db, "Ben", "ben@example.com", "A-1002", 0)

	tx := openTransfer(t, transactions, sender.ID, "A-1001", "A-1002", "ELT-Bank", 10_000)
	ctx := context.Background()

	first, err := settlements.Settle(ctx, tx.ID, "Transaction Successful", "")
	require.NoError(t, err)
	require.False(t, first.AlreadySettled)

	second, err := settlements.Settle(ctx, tx.ID, "Transaction Successful", "")
	require.NoError(t, err)
	assert.True(t, second.AlreadySettled)
	assert.Equal(t, domain.TxStatusCompleted, second.Transaction.Status)

	// Balances moved exactly once.
	assert.Equal(t, int64(40_000), accountBalance(t, db, senderAcc.ID))
	assert.Equal(t, int64(10_000), accountBalance(t, db, recipientAcc.ID))
}

func TestSettle_ExternalTransferDebitsOnly(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	transactions, _, _, settlements, _ := newWorkflow(db)
	sender, senderAcc := newCustomerWithAccount(t, db, "Ada", "ada@example.com", "A-1001", 50_000)

	tx := openTransfer(t, transactions, sender.ID, "A-1001", "EXT-9999", "Other Bank", 10_000)
	ctx := context.Background()

	result, err := settlements.Settle(ctx, tx.ID, "Transaction Successful", "Other Bank")
	require.NoError(t, err)
	require.True(t, result.Ok)

	assert.Equal(t, int64(40_000), accountBalance(t, db, senderAcc.ID))

	// The clearing account holds the off-ledger leg; the ledger still nets zero.
	clearing := accountBalance(t, db, mustUUID(domain.ExternalClearingAccountID))
	assert.Equal(t, int64(10_000), clearing)

	net, err := repository.New(db).GetLedgerNet(ctx)
	require.NoError(t, err)
	assert.Zero(t, net)
}

func TestSettle_InsufficientFundsLeavesPending(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	transactions, _, _, settlements, _ := newWorkflow(db)
	sender, senderAcc := newCustomerWithAccount(t, db, "Ada", "ada@example.com", "A-1001", 5_000)
	_, recipientAcc := newCustomerWithAccount(t, db, "Ben", "ben@example.com", "A-1002", 0)

	tx := openTransfer(t, transactions, sender.ID, "A-1001", "A-1002", "ELT-Bank", 10_000)
	ctx := context.Background()

	_, err := settlements.Settle(ctx, tx.ID, "Transaction Successful", "")
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)

	// Nothing moved, and the transaction is still open for a retry.
	assert.Equal(t, int64(5_000), accountBalance(t, db, senderAcc.ID))
	assert.Equal(t, int64(0), accountBalance(t, db, recipientAcc.ID))
	loaded, err := transactions.Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusPending, loaded.Status)
}

func TestSettle_DepositCreditsSource(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	transactions, _, _, settlements, _ := newWorkflow(db)
	customer, account := newCustomerWithAccount(t, db, "Ada", "ada@example.com", "A-1001", 1_000)

	ctx := context.Background()
	tx, err := transactions.Open(ctx, OpenTransactionRequest{
		CustomerID:      customer.ID,
		SourceAccountNo: "A-1001",
		Amount:          domain.NewMoney(25_000),
		TransactionType: domain.TxTypeDeposit,
	})
	require.NoError(t, err)

	_, err = settlements.Settle(ctx, tx.ID, "Deposit Successful", "")
	require.NoError(t, err)

	assert.Equal(t, int64(26_000), accountBalance(t, db, account.ID))

	net, err := repository.New(db).GetLedgerNet(ctx)
	require.NoError(t, err)
	assert.Zero(t, net)
}

func TestSettle_WithdrawalDebitsSource(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	transactions, _, _, settlements, _ := newWorkflow(db)
	customer, account := newCustomerWithAccount(t, db, "Ada", "ada@example.com", "A-1001", 30_000)

	ctx := context.Background()
	tx, err := transactions.Open(ctx, OpenTransactionRequest{
		CustomerID:      customer.ID,
		SourceAccountNo: "A-1001",
		Amount:          domain.NewMoney(12_500),
		TransactionType: domain.TxTypeWithdrawal,
	})
	require.NoError(t, err)

	_, err = settlements.Settle(ctx, tx.ID, "Withdrawal Successful", "")
	require.NoError(t, err)

	assert.Equal(t, int64(17_500), accountBalance(t, db, account.ID))
}

func TestSettle_DestBankMismatchRejected(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	transactions, _, _, settlements, _ := newWorkflow(db)
	sender, senderAcc := newCustomerWithAccount(t, db, "Ada", "ada@example.com", "A-1001", 50_000)
	_, _ = newCustomerWithAccount(t, db, "Ben", "ben@example.com", "A-1002", 0)

	tx := openTransfer(t, transactions, sender.ID, "A-1001", "A-1002", "ELT-Bank", 10_000)

	_, err := settlements.Settle(context.Background(), tx.ID, "Transaction Successful", "Some Other Bank")
	assert.ErrorIs(t, err, models.ErrTypeMismatch)
	assert.Equal(t, int64(50_000), accountBalance(t, db, senderAcc.ID))
}

func TestSettle_ConcurrentSettlesOnce(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	transactions, _, _, settlements, _ := newWorkflow(db)
	sender, senderAcc := newCustomerWithAccount(t, db, "Ada", "ada@example.com", "A-1001", 50_000)
	_, recipientAcc := newCustomerWithAccount(t, db, "Ben", "ben@example.com", "A-1002", 0)

	tx := openTransfer(t, transactions, sender.ID, "A-1001", "A-1002", "ELT-Bank", 10_000)
	ctx := context.Background()

	const n = 5
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := settlements.Settle(ctx, tx.ID, "Transaction Successful", "")
			errs <- err
		}()
	}
	for i := 0; i < n; i++ {
		assert.NoError(t, <-errs)
	}

	assert.Equal(t, int64(40_000), accountBalance(t, db, senderAcc.ID))
	assert.Equal(t, int64(10_000), accountBalance(t, db, recipientAcc.ID))
}
