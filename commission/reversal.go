/*
reversal.go - Compensating adjustments

PURPOSE:
  Neutralizes previously-created entries without deleting history. Each
  affected beneficiary receives one adjustment entry carrying the exact
  negative of the neutralized total, plus provenance: the admin, a
  mandatory free-text reason, and the source entry IDs. Originals stay in
  place; original plus adjustment net to zero in every balance.

DOUBLE-REVERSAL GUARD:
  The store keys reversal provenance by source entry. Reversing a set that
  contains an already-reversed entry fails with ErrAlreadyReversed before
  anything is written - the same optimistic pattern as the distribution
  anti-duplication constraint.

AUTHORIZATION:
  Every operation here takes an Actor and rejects non-superadmins before
  reading any financial data. Mass reversal additionally requires a
  human-typed confirmation phrase matched verbatim.
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

// MassReversalPhrase must be typed verbatim to reverse commissions across
// all beneficiaries.
const MassReversalPhrase = "REVERSE ALL COMMISSIONS"

const reversalPageSize = 500

// ReversalReport summarizes a reversal run.
type ReversalReport struct {
	ReversedCount int
	TotalAmount   decimal.Decimal // sum of adjustment amounts (negative)
	Adjustments   []LedgerEntry
}

type Reverser struct {
	Store  Store
	Logger *zap.Logger
}

func NewReverser(store Store, logger *zap.Logger) *Reverser {
	return &Reverser{Store: store, Logger: logger}
}

// Reverse neutralizes the given source entries. One adjustment entry is
// written per affected beneficiary, completed immediately so the net effect
// lands in the available balance alongside the originals.
func (r *Reverser) Reverse(ctx context.Context, actor Actor, sources []EntryID, reason string) (*ReversalReport, error) {
	if !actor.Superadmin() {
		return nil, &AuthorizationError{Actor: actor, Operation: "reverse"}
	}
	if strings.TrimSpace(reason) == "" {
		return nil, ErrEmptyReason
	}
	if len(sources) == 0 {
		return &ReversalReport{TotalAmount: decimal.Zero}, nil
	}

	// Load and vet every source before writing anything.
	byOwner := make(map[AccountID][]LedgerEntry)
	var owners []AccountID
	for _, id := range sources {
		entry, err := r.Store.Entry(ctx, id)
		if err != nil {
			return nil, err
		}
		if entry == nil {
			return nil, fmt.Errorf("reverse %s: %w", id, ErrEntryNotFound)
		}
		prior, err := r.Store.ReversalFor(ctx, id)
		if err != nil {
			return nil, err
		}
		if prior != nil {
			return nil, fmt.Errorf("reverse %s: %w", id, ErrAlreadyReversed)
		}
		if entry.Status == StatusFailed {
			return nil, fmt.Errorf("reverse %s: entry is failed and counts nowhere", id)
		}
		if _, seen := byOwner[entry.Owner]; !seen {
			owners = append(owners, entry.Owner)
		}
		byOwner[entry.Owner] = append(byOwner[entry.Owner], *entry)
	}

	report := &ReversalReport{TotalAmount: decimal.Zero}
	for _, owner := range owners {
		entries := byOwner[owner]
		total := decimal.Zero
		ids := make([]EntryID, 0, len(entries))
		for _, e := range entries {
			// Settle frozen/pending originals so original + adjustment net
			// to zero in the available balance, not just on paper.
			if !e.Status.Terminal() {
				if err := r.Store.TransitionStatus(ctx, e.ID, e.Status, StatusCompleted); err != nil {
					return nil, err
				}
			}
			total = total.Add(e.Amount)
			ids = append(ids, e.ID)
		}

		adjustment := LedgerEntry{
			ID:     EntryID(uuid.NewString()),
			Owner:  owner,
			Kind:   KindAdjustment,
			Amount: total.Neg(),
			Status: StatusCompleted,
			Provenance: Provenance{
				Admin:         actor.ID,
				Reason:        reason,
				SourceEntries: ids,
			},
			CreatedAt: time.Now().UTC(),
		}
		if err := r.Store.AppendEntry(ctx, adjustment); err != nil {
			return nil, err
		}
		report.Adjustments = append(report.Adjustments, adjustment)
		report.ReversedCount += len(entries)
		report.TotalAmount = report.TotalAmount.Add(adjustment.Amount)
	}

	r.Logger.Info("entries reversed",
		zap.String("admin", actor.ID),
		zap.Int("count", report.ReversedCount),
		zap.String("total", report.TotalAmount.String()))
	return report, nil
}

// ReverseCommissions reverses every non-failed, not-yet-reversed commission
// entry in scope. The all-beneficiaries scope is destructive and requires
// the confirmation phrase verbatim.
func (r *Reverser) ReverseCommissions(ctx context.Context, actor Actor, scope Scope, reason, confirm string) (*ReversalReport, error) {
	if !actor.Superadmin() {
		return nil, &AuthorizationError{Actor: actor, Operation: "reverse commissions"}
	}
	if scope.Account == nil && confirm != MassReversalPhrase {
		return nil, ErrConfirmationMismatch
	}

	var sources []EntryID
	for offset := 0; ; offset += reversalPageSize {
		entries, err := r.Store.CommissionEntryPage(ctx, time.Time{}, offset, reversalPageSize)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			break
		}
		for _, e := range entries {
			if scope.Account != nil && e.Owner != *scope.Account {
				continue
			}
			prior, err := r.Store.ReversalFor(ctx, e.ID)
			if err != nil {
				return nil, err
			}
			if prior != nil {
				continue
			}
			sources = append(sources, e.ID)
		}
		if len(entries) < reversalPageSize {
			break
		}
	}
	return r.Reverse(ctx, actor, sources, reason)
}

// AdjustBalance writes a manual signed adjustment for an account and returns
// the resulting balance. The reason is mandatory and recorded in provenance.
func (r *Reverser) AdjustBalance(ctx context.Context, actor Actor, account AccountID, amount decimal.Decimal, reason string) (Balance, error) {
	if !actor.Superadmin() {
		return Balance{}, &AuthorizationError{Actor: actor, Operation: "adjust balance"}
	}
	if strings.TrimSpace(reason) == "" {
		return Balance{}, ErrEmptyReason
	}
	acct, err := r.Store.Account(ctx, account)
	if err != nil {
		return Balance{}, err
	}
	if acct == nil {
		return Balance{}, fmt.Errorf("adjust %s: %w", account, ErrAccountNotFound)
	}

	entry := LedgerEntry{
		ID:         EntryID(uuid.NewString()),
		Owner:      account,
		Kind:       KindAdjustment,
		Amount:     amount,
		Status:     StatusCompleted,
		Provenance: Provenance{Admin: actor.ID, Reason: reason},
		CreatedAt:  time.Now().UTC(),
	}
	if err := r.Store.AppendEntry(ctx, entry); err != nil {
		return Balance{}, err
	}

	r.Logger.Info("manual adjustment",
		zap.String("admin", actor.ID),
		zap.String("account", string(account)),
		zap.String("amount", amount.String()))
	return BalanceFor(ctx, r.Store, account)
}
