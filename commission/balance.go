/*
balance.go - Balance projection

PURPOSE:
  Derives an account's balance purely from its ledger entries. There is no
  authoritative stored balance; the denormalized cache on Account exists
  only for display and is checked by the balance-integrity audit.

BUCKETS:
  available = sum of completed entries (signed; adjustments and
              withdrawals subtract)
  frozen    = sum of positive frozen entries
  pending   = sum of pending entries
  withdrawn = completed withdrawals, as a positive magnitude

  failed entries count nowhere.
*/
package commission

import (
	"context"

	"github.com/shopspring/decimal"
)

// BalanceFor replays the account's entries into a Balance.
func BalanceFor(ctx context.Context, store LedgerStore, account AccountID) (Balance, error) {
	entries, err := store.EntriesByOwner(ctx, account)
	if err != nil {
		return Balance{}, err
	}
	return ProjectBalance(account, entries), nil
}

// ProjectBalance is the pure fold over a set of entries. Split out so the
// auditor can recompute balances from entries it already holds.
func ProjectBalance(account AccountID, entries []LedgerEntry) Balance {
	b := Balance{
		AccountID: account,
		Available: decimal.Zero,
		Frozen:    decimal.Zero,
		Pending:   decimal.Zero,
		Withdrawn: decimal.Zero,
	}
	for _, e := range entries {
		switch e.Status {
		case StatusCompleted:
			b.Available = b.Available.Add(e.Amount)
			if e.Kind == KindWithdrawal {
				b.Withdrawn = b.Withdrawn.Add(e.Amount.Neg())
			}
		case StatusFrozen:
			if e.Amount.IsPositive() {
				b.Frozen = b.Frozen.Add(e.Amount)
			}
		case StatusPending:
			b.Pending = b.Pending.Add(e.Amount)
		case StatusFailed:
			// counts nowhere
		}
	}
	return b
}
