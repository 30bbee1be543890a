package models

import (
	"time"

	"github.com/google/uuid"
)

type Customer struct {
	ID        uuid.UUID `json:"id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	Status    string    `json:"status"` // "Active", "Flagged", "Closed"
	CreatedAt time.Time `json:"created_at"`
}

type Account struct {
	ID            uuid.UUID `json:"id"`
	CustomerID    uuid.UUID `json:"customer_id"`
	AccountType   string    `json:"account_type"` // savings, checking, credit
	AccountNumber string    `json:"account_number"`
	RoutingNumber string    `json:"routing_number"`
	BalanceCents  int64     `json:"balance_cents"`
	Status        string    `json:"status"` // active, frozen, closed
	CreatedAt     time.Time `json:"created_at"`
}

// OtpPolicy configures step-up verification for one (customer, transaction
// type) pair. Checkpoints, Codes and Messages are positionally paired and
// must always have the same length; use service.NewOtpPolicy to construct.
type OtpPolicy struct {
	CustomerID      uuid.UUID `json:"customer_id"`
	TransactionType string    `json:"transaction_type"`
	Enabled         bool      `json:"enabled"`
	Checkpoints     []int32   `json:"checkpoints"`
	Codes           []string  `json:"-"`
	Messages        []string  `json:"messages"`
	DeliveryMode    string    `json:"delivery_mode"` // manual, automatic
	UpdatedAt       time.Time `json:"updated_at"`
}

type Transaction struct {
	ID              uuid.UUID  `json:"id"`
	CustomerID      uuid.UUID  `json:"customer_id"`
	FromAccount     string     `json:"from_account"`
	ToAccount       string     `json:"to_account"`
	ToBank          string     `json:"to_bank"`
	TransferType    string     `json:"transfer_type,omitempty"`
	Remarks         string     `json:"remarks,omitempty"`
	AmountCents     int64      `json:"amount_cents"`
	TransactionType string     `json:"transaction_type"` // transfer, withdrawal, deposit
	Status          string     `json:"status"`           // pending, completed, expired
	StatusLabel     string     `json:"status_label,omitempty"`
	UsedCheckpoints []int32    `json:"used_checkpoints"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

type Entry struct {
	ID            uuid.UUID `json:"id"`
	TransactionID uuid.UUID `json:"transaction_id"`
	AccountID     uuid.UUID `json:"account_id"`
	AmountCents   int64     `json:"amount_cents"`
	Direction     string    `json:"direction"` // "debit" or "credit"
	CreatedAt     time.Time `json:"created_at"`
}
