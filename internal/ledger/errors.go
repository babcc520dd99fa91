package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrNotCancellable is returned when cancellation is requested on a
	// transaction that is not pending or not owned by the caller.
	ErrNotCancellable = errors.New("ledger: transaction is not cancellable")

	// ErrTooManyConflicts is returned when the optimistic-concurrency
	// retry budget is exhausted. Transient: the caller may retry.
	ErrTooManyConflicts = errors.New("ledger: too many concurrent updates, try again")
)

// ValidationError reports malformed trade input. It is returned before the
// ledger is touched, so a failed validation never leaves partial state.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("ledger: invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
