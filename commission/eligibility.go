/*
eligibility.go - Per-level commission eligibility

PURPOSE:
  Answers one question: may this beneficiary be paid a commission at this
  level, for this payment, as of this instant? If not, which single reason
  applies? The checks run in a fixed precedence order and short-circuit at
  the first failure.

POINT-IN-TIME CORRECTNESS:
  The resolver takes an explicit asOf. The distributor calls it live
  (asOf = payment timestamp); the auditor calls it historically to answer
  "was this ever eligible?". The referral count backing the unlock check is
  always measured at asOf, never at evaluation time. This single property
  is what makes early-unlock violations detectable after the fact.

PRECEDENCE ORDER:
  1. not_activated            beneficiary banned/archived or never enrolled
  2. no_active_subscription   (A) subscription window does not cover asOf
     no_payment_this_month    (B) no completed activation for asOf's month
  3. too_deep                 level exceeds the structure's depth
  4. level_not_unlocked       referral count at asOf below the threshold
  5. marketing_free_access    the payment is flagged exempt
  6. sponsor_inactive         (B) beneficiary was not activated in the
                              calendar month the payer actually paid
  7. already_received_before  a non-failed entry exists for the tuple
  8. otherwise eligible

The resolver is pure with respect to the ledger: it reads, never writes.
*/
package commission

import (
	"context"
	"fmt"
	"time"
)

// Decision is the resolver outcome. When the unlock check decides the
// outcome (either way), ReferralsRequired/ReferralsPresent carry the counts
// so audit findings can report required-versus-present.
type Decision struct {
	Eligible bool
	Reason   SkipReason

	ReferralsRequired int
	ReferralsPresent  int
}

func skip(reason SkipReason) Decision { return Decision{Reason: reason} }

// Resolver decides eligibility. It holds only read-side dependencies.
type Resolver struct {
	Store Store
}

// Resolve evaluates the beneficiary at the given level for the payment,
// as of the given instant, against the supplied rule table.
func (r *Resolver) Resolve(ctx context.Context, rules *RuleTable, payment PaymentEvent, beneficiary Account, level int, asOf time.Time) (Decision, error) {
	structure := payment.Structure

	// 1. Enrollment must exist and the account must be in good standing.
	if beneficiary.Banned || beneficiary.Archived {
		return skip(SkipNotActivated), nil
	}
	if structure == StructureA && beneficiary.SubscriptionFrom == nil {
		return skip(SkipNotActivated), nil
	}

	// 2. Structure-specific liveness at asOf.
	switch structure {
	case StructureA:
		if !beneficiary.SubscribedAt(asOf) {
			return skip(SkipNoActiveSubscription), nil
		}
	case StructureB:
		active, err := r.Store.Activated(ctx, beneficiary.ID, MonthOf(asOf))
		if err != nil {
			return Decision{}, fmt.Errorf("activation lookup for %s: %w", beneficiary.ID, err)
		}
		if !active {
			return skip(SkipNoPaymentThisMonth), nil
		}
	default:
		return Decision{}, &RuleConfigError{Structure: structure, Level: level, Detail: "unknown structure"}
	}

	// 3. Depth bound.
	if level > rules.MaxDepth(structure) {
		return skip(SkipTooDeep), nil
	}

	rule, err := rules.Rule(structure, level)
	if err != nil {
		return Decision{}, err
	}

	// 4. Unlock threshold, measured at asOf.
	if rule.MinDirectReferrals > 0 {
		count, err := r.Store.DirectReferralCount(ctx, beneficiary.ID, asOf)
		if err != nil {
			return Decision{}, fmt.Errorf("referral count for %s: %w", beneficiary.ID, err)
		}
		if count < rule.MinDirectReferrals {
			d := skip(SkipLevelNotUnlocked)
			d.ReferralsRequired = rule.MinDirectReferrals
			d.ReferralsPresent = count
			return d, nil
		}
	}

	// 5. Exempt payments never generate commissions.
	if payment.Exempt {
		return skip(SkipMarketingFreeAccess), nil
	}

	// 6. A beneficiary who was not active in the month the payer actually
	// paid earns nothing from that month's payments, even retroactively.
	if structure == StructureB {
		paidMonth := MonthOf(payment.Timestamp)
		if paidMonth != MonthOf(asOf) {
			active, err := r.Store.Activated(ctx, beneficiary.ID, paidMonth)
			if err != nil {
				return Decision{}, fmt.Errorf("activation lookup for %s: %w", beneficiary.ID, err)
			}
			if !active {
				return skip(SkipSponsorInactive), nil
			}
		}
	}

	// 7. Anti-duplication.
	exists, err := r.Store.CommissionExists(ctx, payment.ID, beneficiary.ID, level, structure)
	if err != nil {
		return Decision{}, fmt.Errorf("duplicate check for payment %s: %w", payment.ID, err)
	}
	if exists {
		return skip(SkipAlreadyReceivedBefore), nil
	}

	return Decision{Eligible: true, ReferralsRequired: rule.MinDirectReferrals}, nil
}

// UnlockAt answers only the unlock question for an existing entry: was the
// threshold met at asOf? The auditor uses this for its unlock and
// early-unlock sweeps, which deliberately ignore the other checks.
func (r *Resolver) UnlockAt(ctx context.Context, rules *RuleTable, beneficiary AccountID, structure Structure, level int, asOf time.Time) (Decision, error) {
	rule, err := rules.Rule(structure, level)
	if err != nil {
		return Decision{}, err
	}
	if rule.MinDirectReferrals == 0 {
		return Decision{Eligible: true}, nil
	}
	count, err := r.Store.DirectReferralCount(ctx, beneficiary, asOf)
	if err != nil {
		return Decision{}, fmt.Errorf("referral count for %s: %w", beneficiary, err)
	}
	d := Decision{
		Eligible:          count >= rule.MinDirectReferrals,
		ReferralsRequired: rule.MinDirectReferrals,
		ReferralsPresent:  count,
	}
	if !d.Eligible {
		d.Reason = SkipLevelNotUnlocked
	}
	return d, nil
}
