package repository

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/elitetrust/stepup-ledger/internal/db"
	"github.com/elitetrust/stepup-ledger/internal/domain"
	"github.com/elitetrust/stepup-ledger/internal/models"
)

func init() {
	_ = godotenv.Load("../../.env") // Load from root
}

// Integration tests assume a migrated database (see migrations/).
func testPool(t *testing.T) *Queries {
	t.Helper()
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("Skipping integration test: DATABASE_URL not set")
	}
	pool, err := db.Connect(context.Background(), os.Getenv("DATABASE_URL"))
	if err != nil {
		t.Fatalf("Failed to connect to DB: %v", err)
	}
	t.Cleanup(pool.Close)
	return New(pool)
}

func TestCreateCustomerAndAccount(t *testing.T) {
	queries := testPool(t)
	ctx := context.Background()

	customerID := uuid.New()
	customer := &models.Customer{
		ID:       customerID,
		FullName: "Test Customer " + customerID.String()[:8],
		Email:    "test_" + customerID.String()[:8] + "@example.com",
		Status:   "Active",
	}
	if err := queries.CreateCustomer(ctx, customer); err != nil {
		t.Fatalf("CreateCustomer failed: %v", err)
	}

	dbCustomer, err := queries.GetCustomer(ctx, customer.ID)
	if err != nil {
		t.Fatalf("Failed to get customer: %v", err)
	}
	if dbCustomer.ID != customer.ID {
		t.Errorf("Expected customer ID %s, got %s", customer.ID, dbCustomer.ID)
	}

	account := &models.Account{
		ID:            uuid.New(),
		CustomerID:    customer.ID,
		AccountType:   domain.AccountTypeChecking,
		AccountNumber: "T-" + uuid.NewString()[:13],
		RoutingNumber: "110000000",
		BalanceCents:  0,
		Status:        domain.AccountStatusActive,
	}
	if err := queries.CreateAccount(ctx, account); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}

	dbAccount, err := queries.GetAccountByNumber(ctx, account.AccountNumber)
	if err != nil {
		t.Fatalf("Failed to get account: %v", err)
	}
	if dbAccount.ID != account.ID {
		t.Errorf("Expected account ID %s, got %s", account.ID, dbAccount.ID)
	}
	if dbAccount.BalanceCents != 0 {
		t.Errorf("Expected balance 0, got %d", dbAccount.BalanceCents)
	}
}

func TestConsumeCheckpointIsConditional(t *testing.T) {
	queries := testPool(t)
	ctx := context.Background()

	customer := &models.Customer{
		ID:       uuid.New(),
		FullName: "Checkpoint Tester",
		Email:    "cp_" + uuid.NewString()[:8] + "@example.com",
		Status:   "Active",
	}
	if err := queries.CreateCustomer(ctx, customer); err != nil {
		t.Fatalf("CreateCustomer failed: %v", err)
	}

	tx := &models.Transaction{
		ID:              uuid.New(),
		CustomerID:      customer.ID,
		FromAccount:     "T-0001",
		ToAccount:       "T-0002",
		ToBank:          "ELT-Bank",
		AmountCents:     1_000,
		TransactionType: domain.TxTypeTransfer,
		Status:          domain.TxStatusPending,
	}
	if err := queries.CreateTransaction(ctx, tx); err != nil {
		t.Fatalf("CreateTransaction failed: %v", err)
	}

	rows, err := queries.ConsumeCheckpoint(ctx, tx.ID, 40)
	if err != nil {
		t.Fatalf("ConsumeCheckpoint failed: %v", err)
	}
	if rows != 1 {
		t.Fatalf("Expected first consume to affect 1 row, got %d", rows)
	}

	// Replaying the same percent matches no row.
	rows, err = queries.ConsumeCheckpoint(ctx, tx.ID, 40)
	if err != nil {
		t.Fatalf("ConsumeCheckpoint replay failed: %v", err)
	}
	if rows != 0 {
		t.Fatalf("Expected replay to affect 0 rows, got %d", rows)
	}

	// A non-pending transaction accepts no checkpoints.
	if _, err := queries.UpdateTransactionStatus(ctx, tx.ID, domain.TxStatusExpired, nil); err != nil {
		t.Fatalf("UpdateTransactionStatus failed: %v", err)
	}
	rows, err = queries.ConsumeCheckpoint(ctx, tx.ID, 70)
	if err != nil {
		t.Fatalf("ConsumeCheckpoint on expired failed: %v", err)
	}
	if rows != 0 {
		t.Fatalf("Expected consume on expired transaction to affect 0 rows, got %d", rows)
	}
}

func TestIdempotencyKeyLifecycle(t *testing.T) {
	queries := testPool(t)
	ctx := context.Background()

	key := "itest-" + uuid.NewString()
	params := ReserveIdempotencyKeyParams{
		IdempotencyKey: key,
		RequestHash:    "abc123",
		Method:         "POST",
		Path:           "/v1/transactions/x/complete",
	}

	got, err := queries.ReserveIdempotencyKey(ctx, params)
	if err != nil {
		t.Fatalf("ReserveIdempotencyKey failed: %v", err)
	}
	if got != key {
		t.Errorf("Expected reserved key %s, got %s", key, got)
	}

	// A second reservation of the same key finds no row to return.
	if _, err := queries.ReserveIdempotencyKey(ctx, params); err == nil {
		t.Fatalf("Expected second reservation to fail")
	}

	rows, err := queries.FinalizeIdempotencyKey(ctx, FinalizeIdempotencyKeyParams{
		IdempotencyKey: key,
		ResponseStatus: 200,
		ResponseBody:   []byte(`{"ok":true}`),
		ContentType:    "application/json",
	})
	if err != nil {
		t.Fatalf("FinalizeIdempotencyKey failed: %v", err)
	}
	if rows != 1 {
		t.Fatalf("Expected finalize to affect 1 row, got %d", rows)
	}

	row, err := queries.GetIdempotencyKey(ctx, key)
	if err != nil {
		t.Fatalf("GetIdempotencyKey failed: %v", err)
	}
	if row.InProgress {
		t.Errorf("Expected key to be finalized")
	}
	if row.ResponseStatus != 200 {
		t.Errorf("Expected stored status 200, got %d", row.ResponseStatus)
	}
}
