/*
backfill.go - Idempotent backfill / reconciliation job

PURPOSE:
  Finds qualifying payments with missing commission entries and creates
  them. Plan() is pure and returns exactly what a commit would do;
  Commit() replays the identical plan and writes it. The two paths share
  one decision function, so what the admin previewed is exactly what the
  admin gets.

RE-ENTRANCY:
  Payments are processed in chunks. Every staged entry is guarded by the
  anti-duplication constraint, so an interrupted commit can be retried
  from scratch: already-written entries surface as conflicts and are
  counted as skipped, not re-created. Running the same scope twice writes
  nothing the second time.
*/
package commission

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const backfillPageSize = 200

// Scope selects either one beneficiary's payments-received surface (via the
// payer set being unrestricted but staging filtered) or everything.
// A nil Account means all beneficiaries.
type Scope struct {
	Account *AccountID
}

func ScopeAll() Scope                 { return Scope{} }
func ScopeAccount(id AccountID) Scope { return Scope{Account: &id} }

// BackfillReport is the shared shape of dry-run and committed runs.
type BackfillReport struct {
	Processed   int
	Created     int
	Skipped     int
	TotalAmount decimal.Decimal
}

// BackfillPlan is a report plus the concrete entries a commit would write.
type BackfillPlan struct {
	Report BackfillReport
	Staged []LedgerEntry
}

type Backfiller struct {
	Store    Store
	Resolver *Resolver
	Logger   *zap.Logger
}

func NewBackfiller(store Store, logger *zap.Logger) *Backfiller {
	return &Backfiller{Store: store, Resolver: &Resolver{Store: store}, Logger: logger}
}

// Plan walks every payment, every level of its structure, and stages a
// frozen commission entry wherever one should exist but does not. Read-only.
func (b *Backfiller) Plan(ctx context.Context, rules *RuleSet, scope Scope) (*BackfillPlan, error) {
	plan := &BackfillPlan{Report: BackfillReport{TotalAmount: decimal.Zero}}

	for offset := 0; ; offset += backfillPageSize {
		payments, err := b.Store.PaymentPage(ctx, nil, offset, backfillPageSize)
		if err != nil {
			return nil, err
		}
		if len(payments) == 0 {
			break
		}
		for _, payment := range payments {
			processed, err := b.planPayment(ctx, rules.RulesAt(payment.Timestamp), payment, scope, plan)
			if err != nil {
				return nil, err
			}
			if processed {
				plan.Report.Processed++
			}
		}
		if len(payments) < backfillPageSize {
			break
		}
	}
	return plan, nil
}

// planPayment stages missing entries for one payment. Returns whether the
// payment touched the scope at all.
func (b *Backfiller) planPayment(ctx context.Context, rules *RuleTable, payment PaymentEvent, scope Scope, plan *BackfillPlan) (bool, error) {
	chain, err := SponsorChain(ctx, b.Store, payment.Payer, rules.MaxDepth(payment.Structure))
	if err != nil {
		return false, err
	}

	touched := false
	for _, link := range chain {
		if scope.Account != nil && link.Account.ID != *scope.Account {
			continue
		}
		touched = true

		exists, err := b.Store.CommissionExists(ctx, payment.ID, link.Account.ID, link.Level, payment.Structure)
		if err != nil {
			return false, err
		}
		if exists {
			plan.Report.Skipped++
			continue
		}

		decision, err := b.Resolver.Resolve(ctx, rules, payment, link.Account, link.Level, payment.Timestamp)
		if err != nil {
			return false, err
		}
		if !decision.Eligible {
			plan.Report.Skipped++
			continue
		}

		rule, err := rules.Rule(payment.Structure, link.Level)
		if err != nil {
			return false, err
		}
		amount := payment.NormalizedAmount.Mul(rule.Percent).Round(2)
		plan.Staged = append(plan.Staged, LedgerEntry{
			ID:          EntryID(uuid.NewString()),
			Owner:       link.Account.ID,
			Kind:        KindCommission,
			Amount:      amount,
			Status:      StatusFrozen,
			Structure:   payment.Structure,
			Level:       link.Level,
			PaymentID:   payment.ID,
			FrozenUntil: payment.Timestamp.Add(rules.HoldPeriod),
			CreatedAt:   time.Now().UTC(),
		})
		plan.Report.Created++
		plan.Report.TotalAmount = plan.Report.TotalAmount.Add(amount)
	}
	return touched, nil
}

// Commit replays Plan and writes the staged entries. A conflict on write
// means another run got there first; the entry moves from created to
// skipped rather than failing the job.
func (b *Backfiller) Commit(ctx context.Context, rules *RuleSet, scope Scope) (*BackfillReport, error) {
	plan, err := b.Plan(ctx, rules, scope)
	if err != nil {
		return nil, err
	}

	report := plan.Report
	report.Created = 0
	report.TotalAmount = decimal.Zero

	for _, entry := range plan.Staged {
		if err := b.Store.AppendEntry(ctx, entry); err != nil {
			if IsConflict(err) {
				report.Skipped++
				continue
			}
			return nil, err
		}
		report.Created++
		report.TotalAmount = report.TotalAmount.Add(entry.Amount)
	}

	b.Logger.Info("backfill committed",
		zap.Int("processed", report.Processed),
		zap.Int("created", report.Created),
		zap.Int("skipped", report.Skipped),
		zap.String("total", report.TotalAmount.String()))
	return &report, nil
}
