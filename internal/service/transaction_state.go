package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/elitetrust/stepup-ledger/internal/domain"
	"github.com/elitetrust/stepup-ledger/internal/repository"
)

// Transactions move pending -> completed or pending -> expired; both end
// states are terminal. There is no retry-to-pending path.
var transactionTransitions = map[string]map[string]struct{}{
	domain.TxStatusPending: {
		domain.TxStatusCompleted: {},
		domain.TxStatusExpired:   {},
	},
	domain.TxStatusCompleted: {},
	domain.TxStatusExpired:   {},
}

func canTransition(current, next string) bool {
	nextStates, ok := transactionTransitions[current]
	if !ok {
		return false
	}
	_, ok = nextStates[next]
	return ok
}

// transitionTransactionState flips a transaction's status under a row lock,
// enforcing the state machine and writing the audit record in the same
// database transaction. A same-state transition is a no-op.
func transitionTransactionState(ctx context.Context, qtx *repository.Queries, audit *AuditService, transactionID uuid.UUID, nextState string, statusLabel *string, actorID *uuid.UUID, action string, metadata []byte) error {
	currentState, err := qtx.GetTransactionStatusForUpdate(ctx, transactionID)
	if err != nil {
		return fmt.Errorf("get current transaction state: %w", err)
	}

	if currentState == nextState {
		return nil
	}
	if !canTransition(currentState, nextState) {
		return fmt.Errorf("invalid transaction state transition: %s -> %s", currentState, nextState)
	}

	rows, err := qtx.UpdateTransactionStatus(ctx, transactionID, nextState, statusLabel)
	if err != nil {
		return fmt.Errorf("update transaction state: %w", err)
	}
	if err := requireExactlyOne(rows, "update transaction state"); err != nil {
		return err
	}

	if err := audit.Write(ctx, qtx, "transaction", transactionID, actorID, action, currentState, nextState, metadata); err != nil {
		return err
	}

	return nil
}
