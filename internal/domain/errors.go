package domain

import "errors"

// Sentinel errors for the ledger. Callers classify failures with
// errors.Is; the HTTP layer maps each onto a status code.
var (
	ErrNotFound          = errors.New("not found")
	ErrAccessDenied      = errors.New("access denied")
	ErrValidation        = errors.New("validation failed")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAccountInactive   = errors.New("account is not active")
	ErrLimitExceeded     = errors.New("transfer limit exceeded")

	// ErrConsistency marks a committed balance mutation whose ledger
	// record could not be appended, or a transfer that could not be
	// rolled back cleanly. Requires manual reconciliation.
	ErrConsistency = errors.New("ledger consistency fault")
)
