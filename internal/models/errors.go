package models

import "errors"

var (
	ErrCustomerNotFound    = errors.New("customer not found")
	ErrAccountNotFound     = errors.New("account not found")
	ErrTransactionNotFound = errors.New("transaction not found")

	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrAccountNotActive      = errors.New("account is not active")
	ErrTransactionNotPending = errors.New("transaction is not pending")
	ErrAlreadyCompleted      = errors.New("transaction already completed")
	ErrTypeMismatch          = errors.New("transaction type mismatch")

	// OTP verification failures. None of these mutate state.
	ErrOtpNotEnabled      = errors.New("otp not enabled for this transaction type")
	ErrCheckpointNotFound = errors.New("checkpoint not found")
	ErrCheckpointUsed     = errors.New("checkpoint already used")
	ErrInvalidOtp         = errors.New("invalid otp code")

	ErrPolicyLengthMismatch = errors.New("checkpoints, codes and messages must have equal lengths")
	ErrInvalidPercent       = errors.New("percent must be an integer between 0 and 100")
)
