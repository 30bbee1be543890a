package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/elitetrust/stepup-ledger/internal/models"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx so the same query set
// can run inside or outside an explicit transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a query set bound to the given transaction.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

// --- customers ---

func (q *Queries) CreateCustomer(ctx context.Context, c *models.Customer) error {
	return q.db.QueryRow(ctx, `
		INSERT INTO customers (id, full_name, email, status, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING created_at`,
		c.ID, c.FullName, c.Email, c.Status,
	).Scan(&c.CreatedAt)
}

func (q *Queries) GetCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	c := &models.Customer{}
	err := q.db.QueryRow(ctx, `
		SELECT id, full_name, email, status, created_at
		FROM customers WHERE id = $1`, id,
	).Scan(&c.ID, &c.FullName, &c.Email, &c.Status, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// --- accounts ---

func (q *Queries) CreateAccount(ctx context.Context, a *models.Account) error {
	return q.db.QueryRow(ctx, `
		INSERT INTO accounts (id, customer_id, account_type, account_number, routing_number, balance_cents, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING created_at`,
		a.ID, a.CustomerID, a.AccountType, a.AccountNumber, a.RoutingNumber, a.BalanceCents, a.Status,
	).Scan(&a.CreatedAt)
}

const accountColumns = `id, customer_id, account_type, account_number, routing_number, balance_cents, status, created_at`

func scanAccount(row pgx.Row) (*models.Account, error) {
	a := &models.Account{}
	err := row.Scan(&a.ID, &a.CustomerID, &a.AccountType, &a.AccountNumber, &a.RoutingNumber, &a.BalanceCents, &a.Status, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (q *Queries) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return scanAccount(q.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

func (q *Queries) GetAccountByNumber(ctx context.Context, number string) (*models.Account, error) {
	return scanAccount(q.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE account_number = $1`, number))
}

func (q *Queries) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return scanAccount(q.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id))
}

// AdjustAccountBalance applies a signed delta in cents and reports affected rows.
func (q *Queries) AdjustAccountBalance(ctx context.Context, id uuid.UUID, deltaCents int64) (int64, error) {
	tag, err := q.db.Exec(ctx, `UPDATE accounts SET balance_cents = balance_cents + $1 WHERE id = $2`, deltaCents, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// --- otp policies ---

func (q *Queries) UpsertOtpPolicy(ctx context.Context, p *models.OtpPolicy) error {
	return q.db.QueryRow(ctx, `
		INSERT INTO otp_policies (customer_id, transaction_type, enabled, checkpoints, codes, messages, delivery_mode, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (customer_id, transaction_type) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			checkpoints = EXCLUDED.checkpoints,
			codes = EXCLUDED.codes,
			messages = EXCLUDED.messages,
			delivery_mode = EXCLUDED.delivery_mode,
			updated_at = NOW()
		RETURNING updated_at`,
		p.CustomerID, p.TransactionType, p.Enabled, p.Checkpoints, p.Codes, p.Messages, p.DeliveryMode,
	).Scan(&p.UpdatedAt)
}

func (q *Queries) GetOtpPolicy(ctx context.Context, customerID uuid.UUID, transactionType string) (*models.OtpPolicy, error) {
	p := &models.OtpPolicy{}
	err := q.db.QueryRow(ctx, `
		SELECT customer_id, transaction_type, enabled, checkpoints, codes, messages, delivery_mode, updated_at
		FROM otp_policies
		WHERE customer_id = $1 AND transaction_type = $2`,
		customerID, transactionType,
	).Scan(&p.CustomerID, &p.TransactionType, &p.Enabled, &p.Checkpoints, &p.Codes, &p.Messages, &p.DeliveryMode, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// --- transactions ---

const transactionColumns = `id, customer_id, from_account, to_account, to_bank, transfer_type, remarks,
	amount_cents, transaction_type, status, status_label, used_checkpoints, created_at, completed_at`

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	t := &models.Transaction{}
	var label *string
	err := row.Scan(&t.ID, &t.CustomerID, &t.FromAccount, &t.ToAccount, &t.ToBank, &t.TransferType, &t.Remarks,
		&t.AmountCents, &t.TransactionType, &t.Status, &label, &t.UsedCheckpoints, &t.CreatedAt, &t.CompletedAt)
	if err != nil {
		return nil, err
	}
	if label != nil {
		t.StatusLabel = *label
	}
	return t, nil
}

func (q *Queries) CreateTransaction(ctx context.Context, t *models.Transaction) error {
	return q.db.QueryRow(ctx, `
		INSERT INTO transactions (id, customer_id, from_account, to_account, to_bank, transfer_type, remarks,
			amount_cents, transaction_type, status, used_checkpoints, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, '{}', NOW())
		RETURNING created_at`,
		t.ID, t.CustomerID, t.FromAccount, t.ToAccount, t.ToBank, t.TransferType, t.Remarks,
		t.AmountCents, t.TransactionType, t.Status,
	).Scan(&t.CreatedAt)
}

func (q *Queries) GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	return scanTransaction(q.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
}

func (q *Queries) GetTransactionForUpdate(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	return scanTransaction(q.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id))
}

// ConsumeCheckpoint appends percent to used_checkpoints only when the
// transaction is still pending and the percent is absent. Returning the
// affected row count lets the caller distinguish a fresh consumption (1)
// from a lost race or replay (0). This is the single write that makes
// checkpoint consumption at-most-once under concurrent verifiers.
func (q *Queries) ConsumeCheckpoint(ctx context.Context, id uuid.UUID, percent int32) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE transactions
		SET used_checkpoints = array_append(used_checkpoints, $2)
		WHERE id = $1
		  AND status = 'pending'
		  AND NOT ($2 = ANY(used_checkpoints))`,
		id, percent,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) GetTransactionStatusForUpdate(ctx context.Context, id uuid.UUID) (string, error) {
	var status string
	err := q.db.QueryRow(ctx, `SELECT status FROM transactions WHERE id = $1 FOR UPDATE`, id).Scan(&status)
	return status, err
}

// UpdateTransactionStatus flips the status and records the caller-supplied
// label. A nil label leaves the existing one untouched.
func (q *Queries) UpdateTransactionStatus(ctx context.Context, id uuid.UUID, status string, label *string) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE transactions
		SET status = $2,
		    status_label = COALESCE($3, status_label),
		    completed_at = CASE WHEN $2 = 'completed' THEN NOW() ELSE completed_at END
		WHERE id = $1`,
		id, status, label,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) DeleteTransaction(ctx context.Context, id uuid.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListStalePendingTransactions claims pending transactions created before the
// cutoff. SKIP LOCKED keeps concurrent expiry sweeps from contending.
func (q *Queries) ListStalePendingTransactions(ctx context.Context, cutoff time.Time, limit int32) ([]models.Transaction, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED`,
		cutoff, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// --- ledger entries ---

func (q *Queries) CreateEntry(ctx context.Context, e *models.Entry) error {
	return q.db.QueryRow(ctx, `
		INSERT INTO entries (id, transaction_id, account_id, amount_cents, direction, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING created_at`,
		e.ID, e.TransactionID, e.AccountID, e.AmountCents, e.Direction,
	).Scan(&e.CreatedAt)
}

func (q *Queries) GetEntriesByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int32) ([]models.Entry, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, transaction_id, account_id, amount_cents, direction, created_at
		FROM entries
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		accountID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.Entry
	for rows.Next() {
		var e models.Entry
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.AccountID, &e.AmountCents, &e.Direction, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetLedgerNet returns sum(debits) - sum(credits) across all entries.
// A balanced ledger nets to zero.
func (q *Queries) GetLedgerNet(ctx context.Context) (int64, error) {
	var net int64
	err := q.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(CASE WHEN direction = 'debit' THEN amount_cents ELSE -amount_cents END), 0)
		FROM entries`,
	).Scan(&net)
	return net, err
}

// --- audit log ---

type InsertAuditLogParams struct {
	EntityType string
	EntityID   uuid.UUID
	ActorID    *uuid.UUID
	Action     string
	PrevState  *string
	NextState  *string
	Metadata   []byte
}

func (q *Queries) InsertAuditLog(ctx context.Context, p InsertAuditLogParams) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO audit_log (entity_type, entity_id, actor_id, action, prev_state, next_state, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`,
		p.EntityType, p.EntityID, p.ActorID, p.Action, p.PrevState, p.NextState, p.Metadata,
	)
	return err
}

// --- idempotency keys ---

type IdempotencyRow struct {
	IdempotencyKey string
	RequestHash    string
	Method         string
	Path           string
	ResponseStatus int32
	ResponseBody   []byte
	ContentType    string
	InProgress     bool
}

func (q *Queries) GetIdempotencyKey(ctx context.Context, key string) (IdempotencyRow, error) {
	var row IdempotencyRow
	err := q.db.QueryRow(ctx, `
		SELECT idempotency_key, request_hash, method, path,
		       COALESCE(response_status, 0), COALESCE(response_body, ''::bytea),
		       COALESCE(content_type, ''), in_progress
		FROM idempotency_keys WHERE idempotency_key = $1`, key,
	).Scan(&row.IdempotencyKey, &row.RequestHash, &row.Method, &row.Path,
		&row.ResponseStatus, &row.ResponseBody, &row.ContentType, &row.InProgress)
	return row, err
}

type ReserveIdempotencyKeyParams struct {
	IdempotencyKey string
	RequestHash    string
	Method         string
	Path           string
}

// ReserveIdempotencyKey claims the key for the current request. Returns
// pgx.ErrNoRows when another request already holds it.
func (q *Queries) ReserveIdempotencyKey(ctx context.Context, p ReserveIdempotencyKeyParams) (string, error) {
	var key string
	err := q.db.QueryRow(ctx, `
		INSERT INTO idempotency_keys (idempotency_key, request_hash, method, path, in_progress, created_at, updated_at)
		VALUES ($1, $2, $3, $4, TRUE, NOW(), NOW())
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING idempotency_key`,
		p.IdempotencyKey, p.RequestHash, p.Method, p.Path,
	).Scan(&key)
	return key, err
}

type FinalizeIdempotencyKeyParams struct {
	IdempotencyKey string
	ResponseStatus int32
	ResponseBody   []byte
	ContentType    string
}

func (q *Queries) FinalizeIdempotencyKey(ctx context.Context, p FinalizeIdempotencyKeyParams) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE idempotency_keys
		SET response_status = $2, response_body = $3, content_type = $4, in_progress = FALSE, updated_at = NOW()
		WHERE idempotency_key = $1`,
		p.IdempotencyKey, p.ResponseStatus, p.ResponseBody, p.ContentType,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
