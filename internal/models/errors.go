package models

import "errors"

// Error kinds shared by every component. Wrap with fmt.Errorf("...: %w", Err...)
// to add detail; callers match with errors.Is.
var (
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrAlreadyResolved       = errors.New("top-up request already resolved")
	ErrAlreadyReversed       = errors.New("ledger entry already reversed")
	ErrIncompleteBeneficiary = errors.New("incomplete beneficiary")
	ErrInvalidBeneficiary    = errors.New("invalid beneficiary")
	ErrBeneficiaryInactive   = errors.New("beneficiary is inactive")
	ErrModeMismatch          = errors.New("transfer type does not match beneficiary destination")
	ErrBeneficiaryInUse      = errors.New("beneficiary is referenced by payouts")
	ErrDuplicateReference    = errors.New("merchant reference id already used")
	ErrProviderUnreachable   = errors.New("payment provider unreachable")
	ErrProviderRejected      = errors.New("payment provider rejected the transfer")
	ErrUnauthorized          = errors.New("unauthorized")

	ErrNotFound           = errors.New("not found")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
)
