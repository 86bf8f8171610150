/*
audit.go - Violation detection sweeps

PURPOSE:
  Four independent read-only sweeps that find ledger entries inconsistent
  with what the eligibility resolver would decide - either today, or at the
  historical instant the payment actually happened. Each sweep returns
  findings detailed enough to drive a fix; fixing is always a separate,
  explicit, admin-approved step (see reversal.go).

THE TWO UNLOCK SWEEPS ARE DIFFERENT ON PURPOSE:
  AuditUnlockViolations asks "would this entry pass the unlock check with
  the beneficiary's referral count TODAY?" - it catches rule or data
  changes after the fact.

  AuditEarlyUnlockViolations asks "did the beneficiary have enough
  referrals AT THE INSTANT the payer paid?" - it catches entries that were
  never eligible for that payment, even if the beneficiary's count
  satisfies the threshold today. "Became eligible later" is acceptable;
  "was never eligible" is a violation.

Entries already neutralized by a reversal adjustment are excluded from
every sweep, so a committed fix drives the next audit run to zero.
*/
package commission

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// FINDINGS
// =============================================================================

// BalanceFinding reports a mismatch between the computed available balance
// and the denormalized cached field, or a negative computed balance (which
// is a defect even when the cache agrees).
type BalanceFinding struct {
	AccountID         AccountID
	ComputedAvailable decimal.Decimal
	StoredAvailable   decimal.Decimal
	Diff              decimal.Decimal
	Negative          bool
}

// UnlockFinding groups the violating entries of one (account, structure,
// level) cell, with the counts that make the violation legible.
type UnlockFinding struct {
	AccountID         AccountID
	Structure         Structure
	Level             int
	ReferralsPresent  int
	ReferralsRequired int
	EntryIDs          []EntryID
	Amount            decimal.Decimal
}

// MarketingFinding is a commission whose source payment is (now) exempt.
type MarketingFinding struct {
	EntryID     EntryID
	Beneficiary AccountID
	PaymentID   PaymentID
	Amount      decimal.Decimal
}

// EarlyUnlockFinding is a commission whose beneficiary had not yet met the
// unlock threshold at the moment the payer paid.
type EarlyUnlockFinding struct {
	EntryID            EntryID
	Beneficiary        AccountID
	Level              int
	Structure          Structure
	ReferralsAtPayment int
	ReferralsRequired  int
	Amount             decimal.Decimal
}

// =============================================================================
// AUDITOR
// =============================================================================

const auditPageSize = 500

type Auditor struct {
	Store    Store
	Resolver *Resolver
}

func NewAuditor(store Store) *Auditor {
	return &Auditor{Store: store, Resolver: &Resolver{Store: store}}
}

// reversed reports whether an adjustment already neutralized the entry.
func (a *Auditor) reversed(ctx context.Context, id EntryID) (bool, error) {
	adj, err := a.Store.ReversalFor(ctx, id)
	if err != nil {
		return false, err
	}
	return adj != nil, nil
}

// AuditBalanceIntegrity recomputes every account's available balance from
// ledger data and compares it against the cached field. Accounts are paged
// so the sweep stays re-entrant and chunkable.
func (a *Auditor) AuditBalanceIntegrity(ctx context.Context) ([]BalanceFinding, error) {
	var findings []BalanceFinding
	for offset := 0; ; offset += auditPageSize {
		accounts, err := a.Store.AccountPage(ctx, offset, auditPageSize)
		if err != nil {
			return nil, err
		}
		if len(accounts) == 0 {
			break
		}
		for _, acct := range accounts {
			balance, err := BalanceFor(ctx, a.Store, acct.ID)
			if err != nil {
				return nil, err
			}
			diff := balance.Available.Sub(acct.CachedAvailable)
			negative := balance.Available.IsNegative()
			if diff.IsZero() && !negative {
				continue
			}
			findings = append(findings, BalanceFinding{
				AccountID:         acct.ID,
				ComputedAvailable: balance.Available,
				StoredAvailable:   acct.CachedAvailable,
				Diff:              diff,
				Negative:          negative,
			})
		}
		if len(accounts) < auditPageSize {
			break
		}
	}
	return findings, nil
}

// AuditUnlockViolations re-checks every non-failed commission entry above
// level 1 against the beneficiary's CURRENT referral count. Entries are
// paged so the sweep stays chunkable like the balance sweep.
func (a *Auditor) AuditUnlockViolations(ctx context.Context, rules *RuleTable) ([]UnlockFinding, error) {
	now := time.Now().UTC()
	type cell struct {
		owner     AccountID
		structure Structure
		level     int
	}
	grouped := make(map[cell]*UnlockFinding)
	var order []cell

	for offset := 0; ; offset += auditPageSize {
		entries, err := a.Store.CommissionEntryPage(ctx, time.Time{}, offset, auditPageSize)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			break
		}
		for _, e := range entries {
			if e.Level <= 1 {
				continue
			}
			done, err := a.reversed(ctx, e.ID)
			if err != nil {
				return nil, err
			}
			if done {
				continue
			}

			decision, err := a.Resolver.UnlockAt(ctx, rules, e.Owner, e.Structure, e.Level, now)
			if err != nil {
				if IsConfigError(err) {
					// The table shrank since the entry was written; that is
					// exactly the kind of after-the-fact change this sweep
					// exists to surface.
					decision = Decision{Reason: SkipLevelNotUnlocked}
				} else {
					return nil, err
				}
			}
			if decision.Eligible {
				continue
			}

			key := cell{owner: e.Owner, structure: e.Structure, level: e.Level}
			f, ok := grouped[key]
			if !ok {
				f = &UnlockFinding{
					AccountID:         e.Owner,
					Structure:         e.Structure,
					Level:             e.Level,
					ReferralsPresent:  decision.ReferralsPresent,
					ReferralsRequired: decision.ReferralsRequired,
					Amount:            decimal.Zero,
				}
				grouped[key] = f
				order = append(order, key)
			}
			f.EntryIDs = append(f.EntryIDs, e.ID)
			f.Amount = f.Amount.Add(e.Amount)
		}
		if len(entries) < auditPageSize {
			break
		}
	}

	findings := make([]UnlockFinding, 0, len(order))
	for _, key := range order {
		findings = append(findings, *grouped[key])
	}
	return findings, nil
}

// AuditMarketingFreeViolations finds non-failed commissions whose source
// payment is flagged exempt. These should never have existed.
func (a *Auditor) AuditMarketingFreeViolations(ctx context.Context) ([]MarketingFinding, error) {
	exempt := make(map[PaymentID]bool)
	var findings []MarketingFinding
	for offset := 0; ; offset += auditPageSize {
		entries, err := a.Store.CommissionEntryPage(ctx, time.Time{}, offset, auditPageSize)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			break
		}
		for _, e := range entries {
			isExempt, seen := exempt[e.PaymentID]
			if !seen {
				payment, err := a.Store.Payment(ctx, e.PaymentID)
				if err != nil {
					return nil, err
				}
				isExempt = payment != nil && payment.Exempt
				exempt[e.PaymentID] = isExempt
			}
			if !isExempt {
				continue
			}
			done, err := a.reversed(ctx, e.ID)
			if err != nil {
				return nil, err
			}
			if done {
				continue
			}
			findings = append(findings, MarketingFinding{
				EntryID:     e.ID,
				Beneficiary: e.Owner,
				PaymentID:   e.PaymentID,
				Amount:      e.Amount,
			})
		}
		if len(entries) < auditPageSize {
			break
		}
	}
	return findings, nil
}

// AuditEarlyUnlockViolations re-runs the unlock check with asOf pinned to
// each source payment's own timestamp. It takes the versioned rule set so
// every entry is judged against the table in force when the payer paid,
// with the referral count as it stood at that instant. lookbackDays bounds
// the sweep window (0 means all time).
func (a *Auditor) AuditEarlyUnlockViolations(ctx context.Context, rules *RuleSet, lookbackDays int) ([]EarlyUnlockFinding, error) {
	since := time.Time{}
	if lookbackDays > 0 {
		since = time.Now().UTC().AddDate(0, 0, -lookbackDays)
	}

	var findings []EarlyUnlockFinding
	for offset := 0; ; offset += auditPageSize {
		entries, err := a.Store.CommissionEntryPage(ctx, since, offset, auditPageSize)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			break
		}
		for _, e := range entries {
			if e.Level <= 1 {
				continue
			}
			payment, err := a.Store.Payment(ctx, e.PaymentID)
			if err != nil {
				return nil, err
			}
			if payment == nil {
				continue
			}

			// Pin the table and the referral count to the payment instant.
			table := rules.RulesAt(payment.Timestamp)
			decision, err := a.Resolver.UnlockAt(ctx, table, e.Owner, e.Structure, e.Level, payment.Timestamp)
			if err != nil {
				if IsConfigError(err) {
					continue
				}
				return nil, err
			}
			if decision.Eligible {
				continue
			}
			done, err := a.reversed(ctx, e.ID)
			if err != nil {
				return nil, err
			}
			if done {
				continue
			}
			findings = append(findings, EarlyUnlockFinding{
				EntryID:            e.ID,
				Beneficiary:        e.Owner,
				Level:              e.Level,
				Structure:          e.Structure,
				ReferralsAtPayment: decision.ReferralsPresent,
				ReferralsRequired:  decision.ReferralsRequired,
				Amount:             e.Amount,
			})
		}
		if len(entries) < auditPageSize {
			break
		}
	}
	return findings, nil
}
