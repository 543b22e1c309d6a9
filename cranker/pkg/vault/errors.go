package vault

import "fmt"

// Error is a stable, machine-branchable failure. Code never changes once
// released; calling tooling switches on it rather than on message text.
type Error struct {
	Code string
	msg  string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.msg) }

// Is matches by code so wrapped instances compare equal to the sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	// Configuration errors: caller must fix inputs before retrying.
	ErrInvalidQuoteMint   = &Error{"INVALID_QUOTE_MINT", "pool configuration cannot guarantee quote-only fees"}
	ErrAlreadyInitialized = &Error{"ALREADY_INITIALIZED", "vault already initialized"}
	ErrVaultNotFound      = &Error{"VAULT_NOT_FOUND", "vault does not exist"}

	// Timing errors: safe to retry later.
	ErrTooEarlyForDistribution = &Error{"TOO_EARLY_FOR_DISTRIBUTION", "less than 24h since last distribution start"}

	// Sequencing errors: query progress and retry with the correct page.
	ErrInvalidPageIndex            = &Error{"INVALID_PAGE_INDEX", "page index does not match cursor"}
	ErrDistributionAlreadyComplete = &Error{"DISTRIBUTION_ALREADY_COMPLETE", "distribution already complete for this day"}

	// Integrity errors: external collaborator returned untrustworthy data;
	// the cycle must not proceed.
	ErrBaseFeeDetected             = &Error{"BASE_FEE_DETECTED", "claim returned non-zero base token fees"}
	ErrInvalidExternalLedgerRecord = &Error{"INVALID_EXTERNAL_LEDGER_RECORD", "vesting ledger record cannot be decoded"}

	// Arithmetic errors: input outside expected bounds.
	ErrArithmeticOverflow = &Error{"ARITHMETIC_OVERFLOW", "checked arithmetic overflowed"}

	ErrPositionNotInitialized = &Error{"POSITION_NOT_INITIALIZED", "honorary position has not been created"}
)
