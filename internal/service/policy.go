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

// PolicyService owns per-customer, per-transaction-type OTP policies.
type PolicyService struct {
	store QueryStore
}

func NewPolicyService(store QueryStore) *PolicyService {
	return &PolicyService{store: store}
}

// NewOtpPolicy builds a validated policy. Mismatched array lengths are
// rejected here, at write time, so readers never have to defend against
// positionally broken checkpoint/code/message triples.
func NewOtpPolicy(customerID uuid.UUID, transactionType string, enabled bool, checkpoints []int32, codes, messages []string, deliveryMode string) (*models.OtpPolicy, error) {
	if !domain.IsTransactionType(transactionType) {
		return nil, fmt.Errorf("unknown transaction type %q", transactionType)
	}
	if len(checkpoints) != len(codes) || len(checkpoints) != len(messages) {
		return nil, models.ErrPolicyLengthMismatch
	}
	for _, cp := range checkpoints {
		if cp < 0 || cp > 100 {
			return nil, fmt.Errorf("checkpoint %d: %w", cp, models.ErrInvalidPercent)
		}
	}
	if deliveryMode == "" {
		deliveryMode = domain.DeliveryModeManual
	}
	if !domain.IsDeliveryMode(deliveryMode) {
		return nil, fmt.Errorf("unknown delivery mode %q", deliveryMode)
	}

	return &models.OtpPolicy{
		CustomerID:      customerID,
		TransactionType: transactionType,
		Enabled:         enabled,
		Checkpoints:     checkpoints,
		Codes:           codes,
		Messages:        messages,
		DeliveryMode:    deliveryMode,
	}, nil
}

// Upsert stores the policy for its (customer, transaction type) pair.
func (s *PolicyService) Upsert(ctx context.Context, policy *models.OtpPolicy) error {
	if _, err := s.store.Queries().GetCustomer(ctx, policy.CustomerID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ErrCustomerNotFound
		}
		return fmt.Errorf("load customer: %w", err)
	}
	if err := s.store.Queries().UpsertOtpPolicy(ctx, policy); err != nil {
		return fmt.Errorf("upsert otp policy: %w", err)
	}
	return nil
}

// Get returns the policy for (customer, type), or nil when none is
// configured. An absent policy means the flow is ungated.
func (s *PolicyService) Get(ctx context.Context, customerID uuid.UUID, transactionType string) (*models.OtpPolicy, error) {
	policy, err := s.store.Queries().GetOtpPolicy(ctx, customerID, transactionType)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get otp policy: %w", err)
	}
	return policy, nil
}
