package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/elitetrust/stepup-ledger/internal/domain"
	"github.com/elitetrust/stepup-ledger/internal/models"
	"github.com/elitetrust/stepup-ledger/internal/notification"
	"github.com/elitetrust/stepup-ledger/internal/observability"
	"github.com/elitetrust/stepup-ledger/internal/repository"
)

// SettlementEngine applies a completed transaction's effect on account
// balances. All balance mutations and the status flip commit as a single
// database transaction; a failure anywhere leaves the ledger untouched and
// the transaction pending.
type SettlementEngine struct {
	store            QueryStore
	audit            *AuditService
	dispatcher       notification.Dispatcher
	internalBankCode string
}

func NewSettlementEngine(store QueryStore, dispatcher notification.Dispatcher, internalBankCode string) *SettlementEngine {
	return &SettlementEngine{
		store:            store,
		audit:            NewAuditService(store),
		dispatcher:       dispatcher,
		internalBankCode: internalBankCode,
	}
}

// SettleResult reports the settlement outcome.
type SettleResult struct {
	Ok             bool                `json:"ok"`
	AlreadySettled bool                `json:"already_settled"`
	Transaction    *models.Transaction `json:"transaction"`
}

// Settle finalizes a pending transaction: it debits (or for deposits,
// credits) the source account, credits the internal destination for
// in-ledger transfers, books the double-entry rows and flips the status,
// all in one database transaction. A second call for an already-completed
// transaction is a no-op returning the settled state, so client retries on
// timeout are safe.
func (e *SettlementEngine) Settle(ctx context.Context, transactionID uuid.UUID, finalStatusLabel, destBank string) (*SettleResult, error) {
	var (
		result        SettleResult
		recipientInfo *settledRecipient
	)

	err := e.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		tx, err := qtx.GetTransactionForUpdate(ctx, transactionID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.ErrTransactionNotFound
			}
			return fmt.Errorf("load transaction: %w", err)
		}

		switch tx.Status {
		case domain.TxStatusCompleted:
			result = SettleResult{Ok: true, AlreadySettled: true, Transaction: tx}
			return nil
		case domain.TxStatusPending:
		default:
			return models.ErrTransactionNotPending
		}

		if destBank != "" && destBank != tx.ToBank {
			return fmt.Errorf("destination bank %q does not match recorded %q: %w", destBank, tx.ToBank, models.ErrTypeMismatch)
		}

		recipientInfo, err = e.applyLedgerEffect(ctx, qtx, tx)
		if err != nil {
			return err
		}

		label := finalStatusLabel
		metadata, err := json.Marshal(map[string]string{
			"final_status_label": finalStatusLabel,
			"dest_bank":          tx.ToBank,
			"amount":             domain.NewMoney(tx.AmountCents).String(),
		})
		if err != nil {
			return fmt.Errorf("encode settlement metadata: %w", err)
		}
		if err := transitionTransactionState(ctx, qtx, e.audit, tx.ID, domain.TxStatusCompleted, &label, nil, "settled", metadata); err != nil {
			return err
		}

		settled := *tx
		settled.Status = domain.TxStatusCompleted
		settled.StatusLabel = finalStatusLabel
		result = SettleResult{Ok: true, Transaction: &settled}
		return nil
	})
	if err != nil {
		observability.IncrementSettlement("failed")
		return nil, err
	}

	if result.AlreadySettled {
		observability.IncrementSettlement("replay")
		return &result, nil
	}

	observability.IncrementSettlement("completed")
	e.notifySettled(ctx, result.Transaction, recipientInfo)
	return &result, nil
}

// settledRecipient carries what the post-commit credit alert needs about an
// internal destination.
type settledRecipient struct {
	customerID uuid.UUID
	accountNo  string
}

// applyLedgerEffect moves balances and books the double-entry rows for one
// transaction. Each movement books two entries so the ledger always nets to
// zero; off-ledger legs (external transfers, withdrawals, deposits) run
// through the external clearing account.
func (e *SettlementEngine) applyLedgerEffect(ctx context.Context, qtx *repository.Queries, tx *models.Transaction) (*settledRecipient, error) {
	internal := tx.TransactionType == domain.TxTypeTransfer && tx.ToBank == e.internalBankCode

	source, err := qtx.GetAccountByNumber(ctx, tx.FromAccount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrAccountNotFound
		}
		return nil, fmt.Errorf("resolve source account: %w", err)
	}
	if source.CustomerID != tx.CustomerID {
		return nil, models.ErrAccountNotFound
	}

	counterpartyID := uuid.MustParse(domain.ExternalClearingAccountID)
	var dest *models.Account
	if internal {
		dest, err = qtx.GetAccountByNumber(ctx, tx.ToAccount)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, models.ErrAccountNotFound
			}
			return nil, fmt.Errorf("resolve destination account: %w", err)
		}
		counterpartyID = dest.ID
	}

	// Lock both rows in a consistent order to avoid deadlocks between
	// concurrent settlements touching the same accounts.
	lockIDs := []uuid.UUID{source.ID, counterpartyID}
	sort.Slice(lockIDs, func(i, j int) bool { return lockIDs[i].String() < lockIDs[j].String() })
	for _, id := range lockIDs {
		locked, err := qtx.GetAccountForUpdate(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("lock account %s: %w", id, err)
		}
		if locked.ID == source.ID {
			source = locked
		} else if dest != nil && locked.ID == dest.ID {
			dest = locked
		}
	}

	if source.Status != domain.AccountStatusActive {
		return nil, models.ErrAccountNotActive
	}

	amount := tx.AmountCents
	sourceDelta := -amount
	sourceDirection := domain.DirectionDebit
	counterDirection := domain.DirectionCredit
	if tx.TransactionType == domain.TxTypeDeposit {
		sourceDelta = amount
		sourceDirection = domain.DirectionCredit
		counterDirection = domain.DirectionDebit
	}

	// Credit accounts may run negative; all other types must cover the debit.
	if sourceDelta < 0 && source.AccountType != domain.AccountTypeCredit && source.BalanceCents < amount {
		return nil, models.ErrInsufficientFunds
	}

	rows, err := qtx.AdjustAccountBalance(ctx, source.ID, sourceDelta)
	if err != nil {
		return nil, fmt.Errorf("adjust source balance: %w", err)
	}
	if err := requireExactlyOne(rows, "adjust source balance"); err != nil {
		return nil, err
	}

	counterDelta := -sourceDelta
	rows, err = qtx.AdjustAccountBalance(ctx, counterpartyID, counterDelta)
	if err != nil {
		return nil, fmt.Errorf("adjust counterparty balance: %w", err)
	}
	if err := requireExactlyOne(rows, "adjust counterparty balance"); err != nil {
		return nil, err
	}

	if err := qtx.CreateEntry(ctx, &models.Entry{
		ID:            uuid.New(),
		TransactionID: tx.ID,
		AccountID:     source.ID,
		AmountCents:   amount,
		Direction:     sourceDirection,
	}); err != nil {
		return nil, fmt.Errorf("create source entry: %w", err)
	}
	if err := qtx.CreateEntry(ctx, &models.Entry{
		ID:            uuid.New(),
		TransactionID: tx.ID,
		AccountID:     counterpartyID,
		AmountCents:   amount,
		Direction:     counterDirection,
	}); err != nil {
		return nil, fmt.Errorf("create counterparty entry: %w", err)
	}

	if internal && dest != nil {
		return &settledRecipient{customerID: dest.CustomerID, accountNo: dest.AccountNumber}, nil
	}
	return nil, nil
}

// notifySettled dispatches the post-settlement mails. Delivery is
// best-effort: the ledger is already committed and a failed send only logs.
func (e *SettlementEngine) notifySettled(ctx context.Context, tx *models.Transaction, recipient *settledRecipient) {
	queries := e.store.Queries()
	amount := domain.NewMoney(tx.AmountCents).String()

	sender, err := queries.GetCustomer(ctx, tx.CustomerID)
	if err != nil {
		zap.L().Warn("settlement confirmation skipped: sender lookup failed",
			zap.Error(err), zap.String("transaction_id", tx.ID.String()))
	} else {
		notification.Dispatch(e.dispatcher, notification.Message{
			Recipient: sender.Email,
			Kind:      notification.KindSettlementConfirmation,
			Payload: map[string]string{
				"transaction_id": tx.ID.String(),
				"amount":         amount,
				"to_account":     tx.ToAccount,
				"status":         tx.StatusLabel,
			},
		})
	}

	if recipient == nil {
		return
	}
	owner, err := queries.GetCustomer(ctx, recipient.customerID)
	if err != nil {
		zap.L().Warn("credit alert skipped: recipient lookup failed",
			zap.Error(err), zap.String("transaction_id", tx.ID.String()))
		return
	}
	notification.Dispatch(e.dispatcher, notification.Message{
		Recipient: owner.Email,
		Kind:      notification.KindCreditAlert,
		Payload: map[string]string{
			"transaction_id": tx.ID.String(),
			"amount":         amount,
			"account_number": recipient.accountNo,
			"from_name":      senderName(sender),
		},
	})
}

func senderName(c *models.Customer) string {
	if c == nil {
		return ""
	}
	return c.FullName
}
