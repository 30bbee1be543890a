package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/elitetrust/stepup-ledger/internal/domain"
	"github.com/elitetrust/stepup-ledger/internal/models"
	"github.com/elitetrust/stepup-ledger/internal/repository"
)

// TransactionService opens pending transactions and handles administrative
// reads and deletes. Settlement lives in SettlementEngine.
type TransactionService struct {
	store QueryStore
	audit *AuditService
}

func NewTransactionService(store QueryStore) *TransactionService {
	return &TransactionService{
		store: store,
		audit: NewAuditService(store),
	}
}

// OpenTransactionRequest carries the parameters for opening a transaction.
type OpenTransactionRequest struct {
	CustomerID      uuid.UUID
	SourceAccountNo string
	DestAccountNo   string
	DestBank        string
	Amount          domain.Money
	TransactionType string
	TransferType    string
	Remarks         string
}

func (r OpenTransactionRequest) validate() error {
	if !r.Amount.IsPositive() {
		return fmt.Errorf("amount must be positive, got %s", r.Amount)
	}
	if !domain.IsTransactionType(r.TransactionType) {
		return fmt.Errorf("unknown transaction type %q", r.TransactionType)
	}
	if strings.TrimSpace(r.SourceAccountNo) == "" {
		return errors.New("source account number is required")
	}
	if r.TransactionType == domain.TxTypeTransfer && strings.TrimSpace(r.DestAccountNo) == "" {
		return errors.New("destination account number is required for transfers")
	}
	return nil
}

// Open records a new pending transaction. No balances move until settlement.
func (s *TransactionService) Open(ctx context.Context, req OpenTransactionRequest) (*models.Transaction, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	queries := s.store.Queries()
	if _, err := queries.GetCustomer(ctx, req.CustomerID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrCustomerNotFound
		}
		return nil, fmt.Errorf("load customer: %w", err)
	}

	source, err := queries.GetAccountByNumber(ctx, req.SourceAccountNo)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrAccountNotFound
		}
		return nil, fmt.Errorf("load source account: %w", err)
	}
	if source.CustomerID != req.CustomerID {
		return nil, models.ErrAccountNotFound
	}
	if source.Status != domain.AccountStatusActive {
		return nil, models.ErrAccountNotActive
	}

	tx := &models.Transaction{
		ID:              uuid.New(),
		CustomerID:      req.CustomerID,
		FromAccount:     req.SourceAccountNo,
		ToAccount:       req.DestAccountNo,
		ToBank:          req.DestBank,
		TransferType:    req.TransferType,
		Remarks:         req.Remarks,
		AmountCents:     req.Amount.Cents,
		TransactionType: req.TransactionType,
		Status:          domain.TxStatusPending,
	}

	err = s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		if err := qtx.CreateTransaction(ctx, tx); err != nil {
			return fmt.Errorf("create transaction: %w", err)
		}
		metadata, err := json.Marshal(map[string]string{
			"type":    tx.TransactionType,
			"amount":  domain.NewMoney(tx.AmountCents).String(),
			"to_bank": tx.ToBank,
			"from":    tx.FromAccount,
			"to":      tx.ToAccount,
		})
		if err != nil {
			return fmt.Errorf("encode audit metadata: %w", err)
		}
		return s.audit.Write(ctx, qtx, "transaction", tx.ID, nil, "opened", "", domain.TxStatusPending, metadata)
	})
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// Get returns a transaction by ID.
func (s *TransactionService) Get(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	tx, err := s.store.Queries().GetTransaction(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return tx, nil
}

// Delete removes a transaction that has not settled. Completed transactions
// are immutable; deleting one is rejected rather than silently unwinding a
// settled ledger. The deletion itself leaves an audit record.
func (s *TransactionService) Delete(ctx context.Context, id uuid.UUID, actorID *uuid.UUID) error {
	return s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		tx, err := qtx.GetTransactionForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.ErrTransactionNotFound
			}
			return fmt.Errorf("load transaction: %w", err)
		}
		if tx.Status == domain.TxStatusCompleted {
			return models.ErrAlreadyCompleted
		}

		rows, err := qtx.DeleteTransaction(ctx, id)
		if err != nil {
			return fmt.Errorf("delete transaction: %w", err)
		}
		if err := requireExactlyOne(rows, "delete transaction"); err != nil {
			return err
		}

		metadata, err := json.Marshal(map[string]string{
			"status_at_delete": tx.Status,
			"amount":           domain.NewMoney(tx.AmountCents).String(),
		})
		if err != nil {
			return fmt.Errorf("encode audit metadata: %w", err)
		}
		return s.audit.Write(ctx, qtx, "transaction", id, actorID, "deleted", tx.Status, "", metadata)
	})
}
