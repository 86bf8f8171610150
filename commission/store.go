/*
store.go - Persistence interfaces for the commission engine

PURPOSE:
  Defines the interface between the engine and the database. The ledger
  side is append-mostly: entries are appended, their status may transition
  inside the legal state machine, and nothing is ever deleted or changed
  in amount.

KEY INTERFACES:
  AccountStore:    Participant records and point-in-time referral counts
  PaymentStore:    Immutable payment-confirmed facts
  LedgerStore:     Entries, skips, the anti-duplication constraint,
                   status transitions, reversal provenance
  ActivationStore: Per-(account, calendar month) activation state
  Store:           All of the above

ANTI-DUPLICATION CONTRACT:
  AppendEntry must reject a commission entry when a non-failed commission
  already exists for the same (payment, owner, level, structure) tuple,
  returning ErrDuplicateCommission. This uniqueness constraint is the
  engine's only concurrency guard: distribution is optimistic, attempts
  the write, and treats the conflict as "already handled".

IMPLEMENTATIONS:
  - store/sqlite: production SQLite (partial unique indexes, WAL)
  - commission/store: in-memory, for tests and dev
*/
package commission

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ACCOUNT STORE
// =============================================================================

type AccountStore interface {
	SaveAccount(ctx context.Context, a Account) error
	Account(ctx context.Context, id AccountID) (*Account, error)

	// AccountPage returns a stable page of accounts ordered by ID, for
	// chunked batch jobs. Purged accounts are gone; archived ones remain.
	AccountPage(ctx context.Context, offset, limit int) ([]Account, error)

	// DirectReferralCount counts accounts directly sponsored by sponsor
	// whose registration is at or before asOf. This is the point-in-time
	// referral count every unlock decision depends on.
	DirectReferralCount(ctx context.Context, sponsor AccountID, asOf time.Time) (int, error)

	// SetCachedAvailable updates the denormalized available-balance field
	// the balance-integrity audit compares against.
	SetCachedAvailable(ctx context.Context, id AccountID, available decimal.Decimal) error

	// ReassignDownline repoints every direct downline of from to to
	// (nil orphans them as roots). Used only by the hard purge path.
	ReassignDownline(ctx context.Context, from AccountID, to *AccountID) error

	// PurgeAccount physically removes an account. Superadmin-only, and the
	// caller must have reassigned or orphaned the downline first.
	PurgeAccount(ctx context.Context, id AccountID) error
}

// =============================================================================
// PAYMENT STORE
// =============================================================================

type PaymentStore interface {
	SavePayment(ctx context.Context, p PaymentEvent) error
	Payment(ctx context.Context, id PaymentID) (*PaymentEvent, error)

	// PaymentPage returns a stable page of payments ordered by timestamp
	// then ID. payer narrows the scope to one payer when non-nil.
	PaymentPage(ctx context.Context, payer *AccountID, offset, limit int) ([]PaymentEvent, error)

	// MarkExempt flags a payment as marketing-free after the fact. Existing
	// commissions for it become marketing-free violations for the auditor.
	MarkExempt(ctx context.Context, id PaymentID) error
}

// =============================================================================
// LEDGER STORE - Append-mostly
// =============================================================================

type LedgerStore interface {
	// AppendEntry persists an entry. For commission entries it enforces the
	// anti-duplication constraint (ErrDuplicateCommission). For adjustment
	// entries carrying source provenance it enforces one reversal per
	// source entry (ErrAlreadyReversed).
	AppendEntry(ctx context.Context, e LedgerEntry) error

	Entry(ctx context.Context, id EntryID) (*LedgerEntry, error)

	// EntriesByOwner returns every entry for the account, oldest first,
	// including failed ones. Balance projection filters by status itself.
	EntriesByOwner(ctx context.Context, owner AccountID) ([]LedgerEntry, error)

	// CommissionExists reports whether a non-failed commission entry exists
	// for the tuple.
	CommissionExists(ctx context.Context, payment PaymentID, owner AccountID, level int, structure Structure) (bool, error)

	// CommissionEntryPage returns a stable page of non-failed commission
	// entries created at or after since (zero time for all), oldest first.
	// Audit and reversal sweeps page through this.
	CommissionEntryPage(ctx context.Context, since time.Time, offset, limit int) ([]LedgerEntry, error)

	// FrozenDue returns frozen entries whose hold period has elapsed at asOf.
	FrozenDue(ctx context.Context, asOf time.Time) ([]LedgerEntry, error)

	// TransitionStatus moves an entry from → to, enforcing the status state
	// machine and the expected current status (optimistic).
	TransitionStatus(ctx context.Context, id EntryID, from, to EntryStatus) error

	// ReversalFor returns the adjustment entry that neutralized source,
	// or nil if source has not been reversed.
	ReversalFor(ctx context.Context, source EntryID) (*LedgerEntry, error)

	// AppendSkip persists a skip record, enforcing one skip per
	// (payment, beneficiary, level, structure) tuple (ErrDuplicateSkip).
	AppendSkip(ctx context.Context, s SkipRecord) error

	SkipsByPayment(ctx context.Context, payment PaymentID) ([]SkipRecord, error)
}

// =============================================================================
// ACTIVATION STORE
// =============================================================================

// ActivationStore records the externally recomputed "monthly activation"
// fact per (account, calendar month) for Structure B.
type ActivationStore interface {
	SetActivation(ctx context.Context, account AccountID, month Month, active bool) error
	Activated(ctx context.Context, account AccountID, month Month) (bool, error)
}

// =============================================================================
// STORE - Everything the engine needs
// =============================================================================

type Store interface {
	AccountStore
	PaymentStore
	LedgerStore
	ActivationStore
}
