/*
engine.go - The engine facade

PURPOSE:
  Wires the distributor, auditor, backfiller and reverser behind the one
  authoritative contract the API layer consumes. The API must never
  reimplement a decision that lives here.

FIX OPERATIONS:
  Every fix is audit-then-reverse with a shared decision path: the dry run
  returns what the committing run would neutralize, computed by the same
  sweep. Commit is not "dry run with a side-effecting flag" - it re-runs
  the sweep and reverses the findings, so the two cannot silently diverge
  (the sweep excludes already-reversed entries, which is also what makes a
  second committed run a no-op).
*/
package commission

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// FixReport is the shared dry-run/commit shape for all fix operations.
type FixReport struct {
	Count       int
	TotalAmount decimal.Decimal
	DryRun      bool
}

type Engine struct {
	Store       Store
	Rules       *RuleSet
	Distributor *Distributor
	Auditor     *Auditor
	Backfiller  *Backfiller
	Reverser    *Reverser
	Logger      *zap.Logger
}

func NewEngine(store Store, rules *RuleSet, logger *zap.Logger) *Engine {
	return &Engine{
		Store:       store,
		Rules:       rules,
		Distributor: NewDistributor(store, logger),
		Auditor:     NewAuditor(store),
		Backfiller:  NewBackfiller(store, logger),
		Reverser:    NewReverser(store, logger),
		Logger:      logger,
	}
}

// =============================================================================
// INGESTION - Facts consumed from external collaborators
// =============================================================================

// RegisterAccount creates a participant, binding the sponsor edge after a
// cycle check. Registration time defaults to now.
func (e *Engine) RegisterAccount(ctx context.Context, id AccountID, sponsor *AccountID, registeredAt time.Time) (*Account, error) {
	if registeredAt.IsZero() {
		registeredAt = time.Now().UTC()
	}
	if sponsor != nil {
		s, err := e.Store.Account(ctx, *sponsor)
		if err != nil {
			return nil, err
		}
		if s == nil {
			return nil, fmt.Errorf("sponsor %s: %w", *sponsor, ErrAccountNotFound)
		}
		if err := ValidateSponsorBind(ctx, e.Store, id, *sponsor); err != nil {
			return nil, err
		}
	}
	account := Account{
		ID:              id,
		SponsorID:       sponsor,
		RegisteredAt:    registeredAt,
		CachedAvailable: decimal.Zero,
	}
	if err := e.Store.SaveAccount(ctx, account); err != nil {
		return nil, err
	}
	return &account, nil
}

// RecordPayment ingests a payment-confirmed fact, normalizing the amount
// with the conversion rate in force at the payment's own timestamp.
func (e *Engine) RecordPayment(ctx context.Context, id PaymentID, payer AccountID, structure Structure, amount decimal.Decimal, currency string, ts time.Time, exempt bool) (*PaymentEvent, error) {
	if !structure.Valid() {
		return nil, &RuleConfigError{Structure: structure, Level: 0, Detail: "unknown structure"}
	}
	acct, err := e.Store.Account(ctx, payer)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, fmt.Errorf("payer %s: %w", payer, ErrAccountNotFound)
	}
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	if id == "" {
		id = PaymentID(uuid.NewString())
	}
	rules := e.Rules.RulesAt(ts)
	if currency == "" {
		currency = rules.BaseCurrency
	}
	payment := PaymentEvent{
		ID:               id,
		Payer:            payer,
		Structure:        structure,
		Amount:           amount,
		Currency:         currency,
		NormalizedAmount: rules.Normalize(amount, currency),
		Timestamp:        ts,
		Exempt:           exempt,
	}
	if err := e.Store.SavePayment(ctx, payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

// SetActivation records the externally recomputed monthly activation fact.
func (e *Engine) SetActivation(ctx context.Context, account AccountID, month Month, active bool) error {
	return e.Store.SetActivation(ctx, account, month, active)
}

// =============================================================================
// CORE OPERATIONS
// =============================================================================

// DistributeCommission runs distribution for one confirmed payment, using
// the rule table that was in force when the payment happened.
func (e *Engine) DistributeCommission(ctx context.Context, paymentID PaymentID) (*DistributionResult, error) {
	payment, err := e.Store.Payment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, fmt.Errorf("payment %s: %w", paymentID, ErrPaymentNotFound)
	}
	return e.Distributor.Distribute(ctx, e.Rules.RulesAt(payment.Timestamp), paymentID)
}

// GetBalance derives the account's balance from the ledger.
func (e *Engine) GetBalance(ctx context.Context, account AccountID) (Balance, error) {
	acct, err := e.Store.Account(ctx, account)
	if err != nil {
		return Balance{}, err
	}
	if acct == nil {
		return Balance{}, fmt.Errorf("account %s: %w", account, ErrAccountNotFound)
	}
	return BalanceFor(ctx, e.Store, account)
}

// Withdraw records a completed withdrawal against the available balance.
func (e *Engine) Withdraw(ctx context.Context, account AccountID, amount decimal.Decimal) (Balance, error) {
	if !amount.IsPositive() {
		return Balance{}, fmt.Errorf("withdrawal amount must be positive")
	}
	balance, err := e.GetBalance(ctx, account)
	if err != nil {
		return Balance{}, err
	}
	if balance.Available.LessThan(amount) {
		return Balance{}, ErrInsufficientBalance
	}
	entry := LedgerEntry{
		ID:        EntryID(uuid.NewString()),
		Owner:     account,
		Kind:      KindWithdrawal,
		Amount:    amount.Neg(),
		Status:    StatusCompleted,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.Store.AppendEntry(ctx, entry); err != nil {
		return Balance{}, err
	}
	return BalanceFor(ctx, e.Store, account)
}

// ReleaseDue releases frozen commissions past their hold period.
func (e *Engine) ReleaseDue(ctx context.Context, asOf time.Time) (int, error) {
	return e.Distributor.ReleaseDue(ctx, asOf)
}

// BackfillMissingCommissions previews (dryRun) or commits the backfill.
func (e *Engine) BackfillMissingCommissions(ctx context.Context, actor Actor, scope Scope, dryRun bool) (*BackfillReport, error) {
	if !actor.Superadmin() {
		return nil, &AuthorizationError{Actor: actor, Operation: "backfill"}
	}
	if dryRun {
		plan, err := e.Backfiller.Plan(ctx, e.Rules, scope)
		if err != nil {
			return nil, err
		}
		return &plan.Report, nil
	}
	return e.Backfiller.Commit(ctx, e.Rules, scope)
}

// ReverseCommissions delegates to the reverser (superadmin + confirmation
// checks live there).
func (e *Engine) ReverseCommissions(ctx context.Context, actor Actor, scope Scope, reason, confirm string) (*ReversalReport, error) {
	return e.Reverser.ReverseCommissions(ctx, actor, scope, reason, confirm)
}

// AdjustBalance delegates to the reverser's manual override.
func (e *Engine) AdjustBalance(ctx context.Context, actor Actor, account AccountID, amount decimal.Decimal, reason string) (Balance, error) {
	return e.Reverser.AdjustBalance(ctx, actor, account, amount, reason)
}

// =============================================================================
// FIX OPERATIONS - audit, then reverse the findings
// =============================================================================

func (e *Engine) fixEntries(ctx context.Context, actor Actor, entryIDs []EntryID, total decimal.Decimal, dryRun bool, reason string) (*FixReport, error) {
	report := &FixReport{Count: len(entryIDs), TotalAmount: total, DryRun: dryRun}
	if dryRun || len(entryIDs) == 0 {
		return report, nil
	}
	if _, err := e.Reverser.Reverse(ctx, actor, entryIDs, reason); err != nil {
		return nil, err
	}
	return report, nil
}

// FixUnlockViolations reverses every entry the unlock sweep flags.
func (e *Engine) FixUnlockViolations(ctx context.Context, actor Actor, dryRun bool) (*FixReport, error) {
	if !actor.Superadmin() {
		return nil, &AuthorizationError{Actor: actor, Operation: "fix unlock violations"}
	}
	findings, err := e.Auditor.AuditUnlockViolations(ctx, e.Rules.Current())
	if err != nil {
		return nil, err
	}
	var ids []EntryID
	total := decimal.Zero
	for _, f := range findings {
		ids = append(ids, f.EntryIDs...)
		total = total.Add(f.Amount)
	}
	return e.fixEntries(ctx, actor, ids, total, dryRun, "unlock-level violation reversal")
}

// FixMarketingFreeViolations reverses commissions paid on exempt payments.
func (e *Engine) FixMarketingFreeViolations(ctx context.Context, actor Actor, dryRun bool) (*FixReport, error) {
	if !actor.Superadmin() {
		return nil, &AuthorizationError{Actor: actor, Operation: "fix marketing-free violations"}
	}
	findings, err := e.Auditor.AuditMarketingFreeViolations(ctx)
	if err != nil {
		return nil, err
	}
	var ids []EntryID
	total := decimal.Zero
	for _, f := range findings {
		ids = append(ids, f.EntryID)
		total = total.Add(f.Amount)
	}
	return e.fixEntries(ctx, actor, ids, total, dryRun, "marketing-free access reversal")
}

// FixEarlyUnlockViolations reverses commissions that were never eligible at
// their payment's own instant.
func (e *Engine) FixEarlyUnlockViolations(ctx context.Context, actor Actor, lookbackDays int, dryRun bool) (*FixReport, error) {
	if !actor.Superadmin() {
		return nil, &AuthorizationError{Actor: actor, Operation: "fix early-unlock violations"}
	}
	findings, err := e.Auditor.AuditEarlyUnlockViolations(ctx, e.Rules, lookbackDays)
	if err != nil {
		return nil, err
	}
	var ids []EntryID
	total := decimal.Zero
	for _, f := range findings {
		ids = append(ids, f.EntryID)
		total = total.Add(f.Amount)
	}
	return e.fixEntries(ctx, actor, ids, total, dryRun, "early-unlock violation reversal")
}

// =============================================================================
// ACCOUNT LIFECYCLE
// =============================================================================

// SetBanned flips the banned flag.
func (e *Engine) SetBanned(ctx context.Context, id AccountID, banned bool) error {
	acct, err := e.Store.Account(ctx, id)
	if err != nil {
		return err
	}
	if acct == nil {
		return fmt.Errorf("account %s: %w", id, ErrAccountNotFound)
	}
	acct.Banned = banned
	return e.Store.SaveAccount(ctx, *acct)
}

// Archive soft-deletes an account. History and downline stay intact.
func (e *Engine) Archive(ctx context.Context, id AccountID) error {
	acct, err := e.Store.Account(ctx, id)
	if err != nil {
		return err
	}
	if acct == nil {
		return fmt.Errorf("account %s: %w", id, ErrAccountNotFound)
	}
	acct.Archived = true
	return e.Store.SaveAccount(ctx, *acct)
}

// PurgePhrase returns the confirmation phrase a hard purge requires.
func PurgePhrase(id AccountID) string { return "PURGE " + string(id) }

// HardPurge physically removes an account after reassigning its direct
// downline to the purged account's own sponsor (roots orphan the downline).
// Superadmin-only, with a typed confirmation phrase.
func (e *Engine) HardPurge(ctx context.Context, actor Actor, id AccountID, confirm string) error {
	if !actor.Superadmin() {
		return &AuthorizationError{Actor: actor, Operation: "hard purge"}
	}
	if strings.TrimSpace(confirm) != PurgePhrase(id) {
		return ErrConfirmationMismatch
	}
	acct, err := e.Store.Account(ctx, id)
	if err != nil {
		return err
	}
	if acct == nil {
		return fmt.Errorf("account %s: %w", id, ErrAccountNotFound)
	}
	if err := e.Store.ReassignDownline(ctx, id, acct.SponsorID); err != nil {
		return err
	}
	if err := e.Store.PurgeAccount(ctx, id); err != nil {
		return err
	}
	e.Logger.Warn("account hard-purged",
		zap.String("admin", actor.ID),
		zap.String("account", string(id)))
	return nil
}

// RefreshCachedBalance recomputes and stores the denormalized available
// balance for display. The audit compares this cache against the truth.
func (e *Engine) RefreshCachedBalance(ctx context.Context, id AccountID) (Balance, error) {
	balance, err := e.GetBalance(ctx, id)
	if err != nil {
		return Balance{}, err
	}
	if err := e.Store.SetCachedAvailable(ctx, id, balance.Available); err != nil {
		return Balance{}, err
	}
	return balance, nil
}
