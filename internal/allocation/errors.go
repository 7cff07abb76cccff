package allocation

import "errors"

var (
	// ErrInsufficientBalance occurs when the owner's spendable cards cannot
	// cover the requested cost. No state is changed.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInvalidAmount rejects a cost that is zero after normalization.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrConcurrencyConflict signals a competing mutation (lock timeout or a
	// card updated underneath us). Retrying the whole call is safe.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)
