package service

import (
	"context"
	"crypto/subtle"
	"fmt"

	"github.com/google/uuid"

	"github.com/elitetrust/stepup-ledger/internal/models"
	"github.com/elitetrust/stepup-ledger/internal/observability"
)

// OtpVerifier validates submitted codes and consumes checkpoints exactly
// once per (transaction, percent).
type OtpVerifier struct {
	store QueryStore
	gate  *CheckpointGate
}

func NewOtpVerifier(store QueryStore, gate *CheckpointGate) *OtpVerifier {
	return &OtpVerifier{store: store, gate: gate}
}

// Verify checks the submitted code against the policy's code at the matched
// checkpoint index. Every failure path returns without mutating anything;
// on success the percent is appended to usedCheckpoints through a single
// conditional update, so two racing verifiers can never both consume the
// same checkpoint.
func (v *OtpVerifier) Verify(ctx context.Context, transactionID uuid.UUID, percent int, code string) error {
	if percent < 0 || percent > 100 {
		return models.ErrInvalidPercent
	}

	tx, policy, idx, err := v.gate.resolve(ctx, transactionID, percent, "")
	if err != nil {
		return err
	}
	if policy == nil {
		observability.IncrementOtpVerification("not_enabled")
		return models.ErrOtpNotEnabled
	}
	if idx < 0 {
		observability.IncrementOtpVerification("checkpoint_not_found")
		return models.ErrCheckpointNotFound
	}
	if containsCheckpoint(tx.UsedCheckpoints, int32(percent)) {
		observability.IncrementOtpVerification("already_used")
		return models.ErrCheckpointUsed
	}

	if subtle.ConstantTimeCompare([]byte(code), []byte(policy.Codes[idx])) != 1 {
		observability.IncrementOtpVerification("invalid_code")
		return models.ErrInvalidOtp
	}

	rows, err := v.store.Queries().ConsumeCheckpoint(ctx, transactionID, int32(percent))
	if err != nil {
		return fmt.Errorf("consume checkpoint: %w", err)
	}
	if rows == 0 {
		// Lost the race: a concurrent call consumed this checkpoint (or the
		// transaction left pending) between our read and the update.
		observability.IncrementOtpVerification("already_used")
		return models.ErrCheckpointUsed
	}

	observability.IncrementOtpVerification("success")
	return nil
}
