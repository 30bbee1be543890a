package domain

// System IDs (must match the seed data in migration 000001)
const (
	SystemCustomerID = "11111111-1111-1111-1111-111111111111"

	// ExternalClearingAccountID absorbs the off-ledger leg of external
	// transfers, withdrawals and deposits so entries always net to zero.
	ExternalClearingAccountID = "22222222-2222-2222-2222-222222222222"

	DirectionDebit  = "debit"
	DirectionCredit = "credit"

	TxTypeTransfer   = "transfer"
	TxTypeWithdrawal = "withdrawal"
	TxTypeDeposit    = "deposit"

	TxStatusPending   = "pending"
	TxStatusCompleted = "completed"
	TxStatusExpired   = "expired"

	AccountTypeSavings  = "savings"
	AccountTypeChecking = "checking"
	AccountTypeCredit   = "credit"

	AccountStatusActive = "active"
	AccountStatusFrozen = "frozen"
	AccountStatusClosed = "closed"

	DeliveryModeManual    = "manual"
	DeliveryModeAutomatic = "automatic"
)

// IsTransactionType reports whether t names a supported money-movement kind.
func IsTransactionType(t string) bool {
	switch t {
	case TxTypeTransfer, TxTypeWithdrawal, TxTypeDeposit:
		return true
	}
	return false
}

// IsDeliveryMode reports whether m is a known OTP delivery mode.
func IsDeliveryMode(m string) bool {
	return m == DeliveryModeManual || m == DeliveryModeAutomatic
}
