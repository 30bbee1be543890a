package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/elitetrust/stepup-ledger/internal/domain"
	"github.com/elitetrust/stepup-ledger/internal/models"
	"github.com/elitetrust/stepup-ledger/internal/notification"
	"github.com/elitetrust/stepup-ledger/internal/observability"
)

// CheckpointGate decides whether a reported progress percentage still owes
// step-up verification. Evaluate never mutates state and is safe to poll.
type CheckpointGate struct {
	store      QueryStore
	policies   *PolicyService
	dispatcher notification.Dispatcher
}

func NewCheckpointGate(store QueryStore, policies *PolicyService, dispatcher notification.Dispatcher) *CheckpointGate {
	return &CheckpointGate{store: store, policies: policies, dispatcher: dispatcher}
}

// EvaluateResult reports whether a code is required at the polled percentage.
type EvaluateResult struct {
	RequiresOtp bool   `json:"requires_otp"`
	Message     string `json:"message,omitempty"`
	Checkpoint  int32  `json:"checkpoint,omitempty"`
}

// Evaluate resolves the policy for the transaction's customer and type and
// reports whether percent hits a fresh checkpoint. A percentage that does
// not exactly equal a configured checkpoint never gates; a checkpoint
// already present in usedCheckpoints reports false on re-poll.
func (g *CheckpointGate) Evaluate(ctx context.Context, transactionID uuid.UUID, percent int, transactionType string) (*EvaluateResult, error) {
	if percent < 0 || percent > 100 {
		return nil, models.ErrInvalidPercent
	}

	tx, policy, idx, err := g.resolve(ctx, transactionID, percent, transactionType)
	if err != nil {
		return nil, err
	}
	if idx < 0 {
		observability.IncrementCheckpointEvaluation("not_required")
		return &EvaluateResult{RequiresOtp: false}, nil
	}
	if containsCheckpoint(tx.UsedCheckpoints, int32(percent)) {
		observability.IncrementCheckpointEvaluation("already_consumed")
		return &EvaluateResult{RequiresOtp: false}, nil
	}

	observability.IncrementCheckpointEvaluation("required")
	if policy.DeliveryMode == domain.DeliveryModeAutomatic {
		g.sendStepUpAlert(ctx, tx, policy.Messages[idx])
	}
	return &EvaluateResult{
		RequiresOtp: true,
		Message:     policy.Messages[idx],
		Checkpoint:  int32(percent),
	}, nil
}

// resolve loads the transaction, checks it is still pending and of the
// expected type, and locates percent in the policy's checkpoint list.
// idx is -1 when the policy is absent, disabled or the percent does not
// exactly match a configured checkpoint.
func (g *CheckpointGate) resolve(ctx context.Context, transactionID uuid.UUID, percent int, transactionType string) (*models.Transaction, *models.OtpPolicy, int, error) {
	tx, err := g.store.Queries().GetTransaction(ctx, transactionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, -1, models.ErrTransactionNotFound
		}
		return nil, nil, -1, fmt.Errorf("load transaction: %w", err)
	}
	if tx.Status != domain.TxStatusPending {
		return nil, nil, -1, models.ErrTransactionNotPending
	}
	if transactionType != "" && transactionType != tx.TransactionType {
		return nil, nil, -1, models.ErrTypeMismatch
	}

	policy, err := g.policies.Get(ctx, tx.CustomerID, tx.TransactionType)
	if err != nil {
		return nil, nil, -1, err
	}
	if policy == nil || !policy.Enabled {
		return tx, nil, -1, nil
	}

	return tx, policy, findCheckpoint(policy.Checkpoints, int32(percent)), nil
}

// findCheckpoint matches by exact equality; a near-miss percentage is not a
// checkpoint.
func findCheckpoint(checkpoints []int32, percent int32) int {
	for i, cp := range checkpoints {
		if cp == percent {
			return i
		}
	}
	return -1
}

func containsCheckpoint(used []int32, percent int32) bool {
	for _, u := range used {
		if u == percent {
			return true
		}
	}
	return false
}

func (g *CheckpointGate) sendStepUpAlert(ctx context.Context, tx *models.Transaction, message string) {
	customer, err := g.store.Queries().GetCustomer(ctx, tx.CustomerID)
	if err != nil {
		zap.L().Warn("step-up alert skipped: customer lookup failed",
			zap.Error(err), zap.String("transaction_id", tx.ID.String()))
		return
	}
	notification.Dispatch(g.dispatcher, notification.Message{
		Recipient: customer.Email,
		Kind:      notification.KindStepUpAlert,
		Payload: map[string]string{
			"transaction_id": tx.ID.String(),
			"message":        message,
			"amount":         domain.NewMoney(tx.AmountCents).String(),
		},
	})
}
