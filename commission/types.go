/*
Package commission provides the core multi-level commission engine.

PURPOSE:
  This package contains the types and algorithms for computing, freezing,
  releasing, auditing, and retroactively correcting commissions owed to
  participants in a two-structure referral compensation plan. The admin
  API layer is a thin shim over this package; all financial decisions
  live here.

KEY CONCEPTS IN THIS FILE (types.go):
  - Account: a participant with at most one sponsor (the graph is a forest)
  - PaymentEvent: an immutable "payment confirmed" fact from outside
  - LedgerEntry: the atomic unit of money, with a small status state machine
  - SkipRecord: a commission that was evaluated and deliberately not paid
  - Balance: derived totals, never stored authoritatively

DESIGN PRINCIPLES:
  1. Immutability: ledger entries are never edited in amount; corrections
     are new adjustment entries, invalidation is a status transition
  2. Precision: decimal.Decimal for all money, no floats
  3. Point-in-time: every eligibility question is answered "as of" an
     instant, so historical recomputation gives the same answer today
  4. Closed reason codes: skip reasons are a fixed enumeration, not free text

SEE ALSO:
  - rules.go: the versioned commission rule table
  - eligibility.go: the per-level eligibility resolver
  - distributor.go: the sponsor-chain walk that writes entries
*/
package commission

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AccountID string
type PaymentID string
type EntryID string
type SkipID string

// =============================================================================
// STRUCTURE - The two parallel compensation plans
// =============================================================================

// Structure identifies one of the two compensation plans.
//
//	StructureA: 5 levels, flat rate, gated by a subscription window and
//	            per-level direct-referral unlock thresholds.
//	StructureB: 10 levels, tiered rate, gated by current-month activation
//	            with no referral-count unlock.
type Structure string

const (
	StructureA Structure = "a"
	StructureB Structure = "b"
)

func (s Structure) Valid() bool { return s == StructureA || s == StructureB }

// =============================================================================
// MONTH - Calendar month key for activation state
// =============================================================================

// Month keys the per-calendar-month activation state for Structure B.
type Month struct {
	Year  int
	Month time.Month
}

func MonthOf(t time.Time) Month {
	u := t.UTC()
	return Month{Year: u.Year(), Month: u.Month()}
}

func (m Month) String() string {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC).Format("2006-01")
}

// =============================================================================
// ACCOUNT - A participant in the plan
// =============================================================================

// Account is a participant. SponsorID is nil for roots; every other account
// has exactly one sponsor, so the level-N ancestor is well-defined by walking
// N sponsor edges.
type Account struct {
	ID           AccountID
	SponsorID    *AccountID
	RegisteredAt time.Time
	Banned       bool
	Archived     bool

	// Structure A enrollment: the subscription validity window.
	// Nil means the account never enrolled in Structure A.
	SubscriptionFrom  *time.Time
	SubscriptionUntil *time.Time

	// Denormalized fields, recomputed elsewhere. The ledger never trusts
	// these for money math; the balance-integrity audit compares them
	// against the computed truth.
	CachedAvailable decimal.Decimal
	DirectReferrals int
}

// SubscribedAt reports whether the Structure A subscription window covers t.
func (a Account) SubscribedAt(t time.Time) bool {
	if a.SubscriptionFrom == nil || a.SubscriptionUntil == nil {
		return false
	}
	return !t.Before(*a.SubscriptionFrom) && !t.After(*a.SubscriptionUntil)
}

// =============================================================================
// PAYMENT EVENT - Immutable "payment confirmed" fact
// =============================================================================

// PaymentEvent is handed to the engine by the payment collaborator once a
// payment is captured. Exempt payments (promotional / marketing-free access)
// must never generate commissions.
type PaymentEvent struct {
	ID        PaymentID
	Payer     AccountID
	Structure Structure

	// Amount in the original currency; NormalizedAmount is the same value
	// converted to the base currency with the fixed rate in force at
	// ingestion time. All commission math uses NormalizedAmount.
	Amount           decimal.Decimal
	Currency         string
	NormalizedAmount decimal.Decimal

	Timestamp time.Time
	Exempt    bool
}

// =============================================================================
// LEDGER ENTRY - Atomic unit of money
// =============================================================================

type EntryKind string

const (
	KindCommission EntryKind = "commission"
	KindBonus      EntryKind = "bonus"
	KindWithdrawal EntryKind = "withdrawal"
	KindPurchase   EntryKind = "purchase"
	KindAdjustment EntryKind = "adjustment"
)

// EntryStatus is a small finite state machine:
//
//	pending → frozen → completed
//	pending/frozen → failed
//
// completed and failed are terminal. No other transition is legal.
type EntryStatus string

const (
	StatusPending   EntryStatus = "pending"
	StatusFrozen    EntryStatus = "frozen"
	StatusCompleted EntryStatus = "completed"
	StatusFailed    EntryStatus = "failed"
)

var statusTransitions = map[EntryStatus][]EntryStatus{
	StatusPending: {StatusFrozen, StatusCompleted, StatusFailed},
	StatusFrozen:  {StatusCompleted, StatusFailed},
}

// CanTransition reports whether from → to is a legal status transition.
func CanTransition(from, to EntryStatus) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s EntryStatus) Terminal() bool { return s == StatusCompleted || s == StatusFailed }

// Provenance records who caused a correcting entry and why.
// SourceEntries lists the entries an adjustment neutralizes; the store keys
// its double-reversal guard on them.
type Provenance struct {
	Admin         string    `json:"admin,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	SourceEntries []EntryID `json:"source_entries,omitempty"`
}

// LedgerEntry is the atomic unit of money. Once created its amount is
// immutable; the only permitted mutation is a status transition. Corrections
// are new adjustment entries referencing the originals.
type LedgerEntry struct {
	ID     EntryID
	Owner  AccountID
	Kind   EntryKind
	Amount decimal.Decimal // signed
	Status EntryStatus

	// Commission coordinates. Level is 0 for non-commission kinds.
	Structure Structure
	Level     int

	// Source references: the payment that caused a commission, or nothing
	// for manual adjustments (which carry Provenance instead).
	PaymentID  PaymentID
	Provenance Provenance

	// Frozen commissions become completed once FrozenUntil has passed
	// with no disqualifying event.
	FrozenUntil time.Time

	CreatedAt time.Time
}

// Counted reports whether the entry participates in balance computations.
func (e LedgerEntry) Counted() bool { return e.Status != StatusFailed }

// =============================================================================
// SKIP RECORD - A commission evaluated and deliberately not paid
// =============================================================================

// SkipReason is the closed set of reasons a commission is not paid.
// The order here mirrors the resolver's precedence order.
type SkipReason string

const (
	SkipNotActivated          SkipReason = "not_activated"
	SkipNoActiveSubscription  SkipReason = "no_active_subscription"
	SkipNoPaymentThisMonth    SkipReason = "no_payment_this_month"
	SkipTooDeep               SkipReason = "too_deep"
	SkipLevelNotUnlocked      SkipReason = "level_not_unlocked"
	SkipMarketingFreeAccess   SkipReason = "marketing_free_access"
	SkipSponsorInactive       SkipReason = "sponsor_inactive"
	SkipAlreadyReceivedBefore SkipReason = "already_received_before"
)

// SkipRecord is not money-bearing. It records that a commission at a given
// level was evaluated and deliberately forgone, for audit and pass-up
// reporting. The forgone percentage is never reassigned to another level.
type SkipRecord struct {
	ID          SkipID
	PaymentID   PaymentID
	Beneficiary AccountID
	Structure   Structure
	Level       int
	Reason      SkipReason
	Forgone     decimal.Decimal // what would have been paid
	CreatedAt   time.Time
}

// =============================================================================
// BALANCE - Derived, never stored authoritatively
// =============================================================================

// Balance holds the derived totals for an account. Withdrawn is reported as
// a positive magnitude for display.
type Balance struct {
	AccountID AccountID
	Available decimal.Decimal
	Frozen    decimal.Decimal
	Pending   decimal.Decimal
	Withdrawn decimal.Decimal
}

// =============================================================================
// ACTOR - Who is performing an admin operation
// =============================================================================

type Role string

const (
	RoleAdmin      Role = "admin"
	RoleSuperadmin Role = "superadmin"
)

// Actor identifies the human behind fix/reverse/adjust operations.
// Destructive operations require RoleSuperadmin and are rejected before any
// financial data is read.
type Actor struct {
	ID   string
	Role Role
}

func (a Actor) Superadmin() bool { return a.Role == RoleSuperadmin }
