package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/elitetrust/stepup-ledger/internal/domain"
	"github.com/elitetrust/stepup-ledger/internal/models"
)

// AccountService serves account reads for the workflow's collaborators.
type AccountService struct {
	store QueryStore
}

func NewAccountService(store QueryStore) *AccountService {
	return &AccountService{store: store}
}

func (s *AccountService) GetBalance(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	account, err := s.store.Queries().GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}

// GetStatement lists ledger entries for the account, newest first.
func (s *AccountService) GetStatement(ctx context.Context, accountID uuid.UUID, page, pageSize int) ([]models.Entry, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize
	entries, err := s.store.Queries().GetEntriesByAccount(ctx, accountID, int32(pageSize), int32(offset))
	if err != nil {
		return nil, fmt.Errorf("get entries: %w", err)
	}
	return entries, nil
}

// CreateAccount opens a new account for a customer. Administrative.
func (s *AccountService) CreateAccount(ctx context.Context, customerID uuid.UUID, accountType, accountNumber, routingNumber string, openingBalance domain.Money) (*models.Account, error) {
	switch accountType {
	case domain.AccountTypeSavings, domain.AccountTypeChecking, domain.AccountTypeCredit:
	default:
		return nil, fmt.Errorf("unknown account type %q", accountType)
	}
	if openingBalance.Cents < 0 {
		return nil, fmt.Errorf("opening balance must not be negative")
	}
	if _, err := s.store.Queries().GetCustomer(ctx, customerID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrCustomerNotFound
		}
		return nil, fmt.Errorf("load customer: %w", err)
	}

	account := &models.Account{
		ID:            uuid.New(),
		CustomerID:    customerID,
		AccountType:   accountType,
		AccountNumber: accountNumber,
		RoutingNumber: routingNumber,
		BalanceCents:  openingBalance.Cents,
		Status:        domain.AccountStatusActive,
	}
	if err := s.store.Queries().CreateAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	return account, nil
}
