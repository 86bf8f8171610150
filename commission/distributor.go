/*
distributor.go - Per-payment commission distribution

PURPOSE:
  Walks the sponsor chain of a paying account upward, asks the resolver
  whether each level may earn, and writes either a frozen commission entry
  or a skip record per level. This is the single write path invoked once
  per confirmed payment.

IDEMPOTENCE:
  Distribute may be re-invoked for the same payment at any time. The
  resolver's already_received_before check plus the store's uniqueness
  constraint on (payment, beneficiary, level, structure) guarantee the
  second run creates nothing. A uniqueness conflict on write is recovered
  locally and logged at low severity; it is not an error.

PASS-UP:
  A skipped level's percentage is simply forgone - there is no
  reassignment to another level. The result reports the forgone count and
  total for transparency.

RELEASE:
  Distribution writes entries frozen until timestamp + hold period. A
  separate scheduled step (ReleaseDue) transitions frozen → completed once
  the hold has elapsed with no disqualifying event.
*/
package commission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DistributionResult is what one Distribute call produced (or found already
// produced, on re-invocation).
type DistributionResult struct {
	PaymentID PaymentID
	Entries   []LedgerEntry
	Skips     []SkipRecord

	// Pass-up reporting: levels evaluated but not paid.
	PassUpCount int
	PassUpTotal decimal.Decimal
}

type Distributor struct {
	Store    Store
	Resolver *Resolver
	Logger   *zap.Logger
}

func NewDistributor(store Store, logger *zap.Logger) *Distributor {
	return &Distributor{Store: store, Resolver: &Resolver{Store: store}, Logger: logger}
}

// Distribute evaluates every level of the payer's sponsor chain as of the
// payment's own timestamp and writes the outcome. Rule configuration errors
// abort the whole distribution; eligibility denials do not.
func (d *Distributor) Distribute(ctx context.Context, rules *RuleTable, paymentID PaymentID) (*DistributionResult, error) {
	payment, err := d.Store.Payment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, fmt.Errorf("distribute %s: %w", paymentID, ErrPaymentNotFound)
	}

	maxDepth := rules.MaxDepth(payment.Structure)
	if maxDepth == 0 {
		return nil, &RuleConfigError{Structure: payment.Structure, Level: 1, Detail: "no rules configured for structure"}
	}

	chain, err := SponsorChain(ctx, d.Store, payment.Payer, maxDepth)
	if err != nil {
		return nil, err
	}

	result := &DistributionResult{PaymentID: paymentID, PassUpTotal: decimal.Zero}
	asOf := payment.Timestamp

	for _, link := range chain {
		rule, err := rules.Rule(payment.Structure, link.Level)
		if err != nil {
			return nil, err // fatal: never silently skip a configured level
		}
		amount := payment.NormalizedAmount.Mul(rule.Percent).Round(2)

		decision, err := d.Resolver.Resolve(ctx, rules, *payment, link.Account, link.Level, asOf)
		if err != nil {
			return nil, err
		}

		if !decision.Eligible {
			// already_received_before means an earlier run handled this
			// level; it is neither an entry nor a fresh skip.
			if decision.Reason == SkipAlreadyReceivedBefore {
				continue
			}
			skip := SkipRecord{
				ID:          SkipID(uuid.NewString()),
				PaymentID:   payment.ID,
				Beneficiary: link.Account.ID,
				Structure:   payment.Structure,
				Level:       link.Level,
				Reason:      decision.Reason,
				Forgone:     amount,
				CreatedAt:   time.Now().UTC(),
			}
			if err := d.Store.AppendSkip(ctx, skip); err != nil {
				if IsConflict(err) {
					continue // recorded by a previous run
				}
				return nil, err
			}
			result.Skips = append(result.Skips, skip)
			result.PassUpCount++
			result.PassUpTotal = result.PassUpTotal.Add(amount)
			continue
		}

		entry := LedgerEntry{
			ID:          EntryID(uuid.NewString()),
			Owner:       link.Account.ID,
			Kind:        KindCommission,
			Amount:      amount,
			Status:      StatusFrozen,
			Structure:   payment.Structure,
			Level:       link.Level,
			PaymentID:   payment.ID,
			FrozenUntil: asOf.Add(rules.HoldPeriod),
			CreatedAt:   time.Now().UTC(),
		}
		if err := d.Store.AppendEntry(ctx, entry); err != nil {
			if IsConflict(err) {
				// A concurrent distribution of the same payment won the
				// race. Already handled; not an error.
				d.Logger.Debug("commission already written",
					zap.String("payment", string(payment.ID)),
					zap.String("beneficiary", string(link.Account.ID)),
					zap.Int("level", link.Level))
				continue
			}
			return nil, err
		}
		result.Entries = append(result.Entries, entry)
	}

	d.Logger.Info("payment distributed",
		zap.String("payment", string(payment.ID)),
		zap.String("structure", string(payment.Structure)),
		zap.Int("entries", len(result.Entries)),
		zap.Int("skips", len(result.Skips)))
	return result, nil
}

// ReleaseDue transitions every frozen entry whose hold period has elapsed
// at asOf to completed. Safe to re-run: released entries are no longer due.
func (d *Distributor) ReleaseDue(ctx context.Context, asOf time.Time) (int, error) {
	due, err := d.Store.FrozenDue(ctx, asOf)
	if err != nil {
		return 0, err
	}
	released := 0
	for _, e := range due {
		if err := d.Store.TransitionStatus(ctx, e.ID, StatusFrozen, StatusCompleted); err != nil {
			// Raced with a concurrent release or an invalidation; skip.
			var ite *InvalidTransitionError
			if errors.As(err, &ite) {
				continue
			}
			return released, err
		}
		released++
	}
	if released > 0 {
		d.Logger.Info("frozen commissions released", zap.Int("count", released))
	}
	return released, nil
}
