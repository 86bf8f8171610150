/*
errors.go - Centralized error types for the commission engine

PURPOSE:
  All engine error types in one place. Callers use errors.Is against the
  sentinels; structured types carry enough context to drive an admin fix.

ERROR CATEGORIES:
  1. Configuration errors - missing/invalid commission rules (fatal)
  2. Concurrency conflicts - anti-duplication constraint hits (recovered)
  3. Authorization errors - rejected before any financial read
  4. Lifecycle errors - illegal ledger status transitions

Eligibility denials are NOT errors. They are first-class SkipRecord
outcomes carrying a reason code; see eligibility.go.
*/
package commission

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateCommission is returned when a non-failed commission entry
	// already exists for the same (payment, beneficiary, level, structure)
	// tuple. This is the engine's sole concurrency guard: callers treat it
	// as "already handled", not as failure.
	ErrDuplicateCommission = errors.New("duplicate commission for payment tuple")

	// ErrDuplicateSkip is the SkipRecord analogue of ErrDuplicateCommission.
	ErrDuplicateSkip = errors.New("skip record already exists for payment tuple")

	// ErrAlreadyReversed is returned when a reversal targets a source entry
	// that a prior adjustment already neutralized.
	ErrAlreadyReversed = errors.New("entry already reversed")

	// ErrAccountNotFound is returned when a referenced account doesn't exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrPaymentNotFound is returned when a referenced payment doesn't exist.
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrEntryNotFound is returned when a referenced ledger entry doesn't exist.
	ErrEntryNotFound = errors.New("ledger entry not found")

	// ErrEmptyReason is returned when a reversal or manual adjustment is
	// attempted without a free-text reason. Reasons are mandatory.
	ErrEmptyReason = errors.New("a non-empty reason is required")

	// ErrConfirmationMismatch is returned when a destructive operation's
	// typed confirmation phrase does not match verbatim.
	ErrConfirmationMismatch = errors.New("confirmation phrase mismatch")

	// ErrInsufficientBalance is returned when a withdrawal exceeds the
	// available balance.
	ErrInsufficientBalance = errors.New("insufficient available balance")

	// ErrSponsorCycle is returned when binding a sponsor would create a
	// cycle in the sponsor graph.
	ErrSponsorCycle = errors.New("sponsor bind would create a cycle")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// RuleConfigError means the rule table has no valid rule for a
// (structure, level) pair. This is fatal for distribution on that structure:
// the engine halts rather than silently skipping a level.
type RuleConfigError struct {
	Structure Structure
	Level     int
	Detail    string
}

func (e *RuleConfigError) Error() string {
	return fmt.Sprintf("commission rule misconfigured for structure %q level %d: %s",
		e.Structure, e.Level, e.Detail)
}

// InvalidTransitionError reports an attempt to move a ledger entry outside
// the pending → frozen → completed / failed state machine.
type InvalidTransitionError struct {
	Entry EntryID
	From  EntryStatus
	To    EntryStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("entry %s: illegal status transition %s → %s", e.Entry, e.From, e.To)
}

// AuthorizationError is returned when a non-superadmin attempts a fix,
// reverse, adjust, or purge operation. It is raised before any read of
// financial data.
type AuthorizationError struct {
	Actor     Actor
	Operation string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("actor %s (%s) is not authorized for %s", e.Actor.ID, e.Actor.Role, e.Operation)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsConflict reports whether err is an anti-duplication conflict that the
// caller should treat as "already handled".
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateCommission) || errors.Is(err, ErrDuplicateSkip)
}

// IsConfigError reports whether err is a fatal rule configuration error.
func IsConfigError(err error) bool {
	var rce *RuleConfigError
	return errors.As(err, &rce)
}

// IsUnauthorized reports whether err is an authorization rejection.
func IsUnauthorized(err error) bool {
	var ae *AuthorizationError
	return errors.As(err, &ae)
}

// IsNotFound reports whether err indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrPaymentNotFound) ||
		errors.Is(err, ErrEntryNotFound)
}
