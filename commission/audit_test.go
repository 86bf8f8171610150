package commission_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Mr-Geneza/MG-Market-sub000/commission"
	memstore "github.com/Mr-Geneza/MG-Market-sub000/commission/store"
)

// =============================================================================
// MARKETING-EXEMPT SWEEP
// =============================================================================

func TestAuditMarketing_FlagAfterTheFact_FixDrivesToZero(t *testing.T) {
	// GIVEN: Commissions paid on a payment that is flagged exempt only
	//        afterwards
	// WHEN: Auditing, fixing (committed), then auditing and fixing again
	// THEN: The audit finds the prior entries; the fix writes adjustments
	//       summing to the exact negative of the originals; the second
	//       audit finds nothing and the second fix reverses nothing

	engine, _ := newTestEngine(t)
	ctx := context.Background()

	ids := registerChain(t, engine, "net", 3, jan15.AddDate(-1, 0, 0))
	unlockAll(t, engine, ids)

	payment := payUSD(t, engine, "pay-1", ids[0], commission.StructureA, "100", jan15, false)
	result, err := engine.DistributeCommission(ctx, payment.ID)
	require.NoError(t, err)
	require.Len(t, result.Entries, 2)

	require.NoError(t, engine.Store.MarkExempt(ctx, payment.ID))

	findings, err := engine.Auditor.AuditMarketingFreeViolations(ctx)
	require.NoError(t, err)
	require.Len(t, findings, 2)

	report, err := engine.FixMarketingFreeViolations(ctx, superadmin(), false)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Count)
	assert.True(t, dec("20").Equal(report.TotalAmount))

	// Each beneficiary's entries now net to zero.
	for _, id := range []commission.AccountID{ids[1], ids[2]} {
		balance, err := engine.GetBalance(ctx, id)
		require.NoError(t, err)
		assert.True(t, balance.Available.IsZero(), "beneficiary %s: %s", id, balance.Available)
		assert.True(t, balance.Frozen.IsZero())
	}

	// Second sweep finds nothing left to fix.
	findings, err = engine.Auditor.AuditMarketingFreeViolations(ctx)
	require.NoError(t, err)
	assert.Empty(t, findings)

	report, err = engine.FixMarketingFreeViolations(ctx, superadmin(), false)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Count)
}

func TestFixMarketing_DryRunReportsWithoutWriting(t *testing.T) {
	// GIVEN: One marketing violation
	// WHEN: Running the fix with dryRun=true
	// THEN: The report matches a committed run but the ledger is untouched

	engine, _ := newTestEngine(t)
	ctx := context.Background()

	ids := registerChain(t, engine, "net", 2, jan15.AddDate(-1, 0, 0))
	payment := payUSD(t, engine, "pay-1", ids[0], commission.StructureA, "100", jan15, false)
	_, err := engine.DistributeCommission(ctx, payment.ID)
	require.NoError(t, err)
	require.NoError(t, engine.Store.MarkExempt(ctx, payment.ID))

	preview, err := engine.FixMarketingFreeViolations(ctx, superadmin(), true)
	require.NoError(t, err)
	assert.True(t, preview.DryRun)
	assert.Equal(t, 1, preview.Count)
	assert.True(t, dec("10").Equal(preview.TotalAmount))

	// Still frozen, still unreversed.
	balance, err := engine.GetBalance(ctx, ids[1])
	require.NoError(t, err)
	assert.True(t, dec("10").Equal(balance.Frozen))

	committed, err := engine.FixMarketingFreeViolations(ctx, superadmin(), false)
	require.NoError(t, err)
	assert.Equal(t, preview.Count, committed.Count)
	assert.True(t, preview.TotalAmount.Equal(committed.TotalAmount))
}

// =============================================================================
// EARLY-UNLOCK VS CURRENT-UNLOCK
// =============================================================================

func TestAudit_EarlyUnlockAndCurrentUnlock_AreDistinct(t *testing.T) {
	// GIVEN: A level-2 commission paid in January when the beneficiary had
	//        2 of the 3 required referrals; a third referral arrives in
	//        February
	// WHEN: Running the historical sweep and the current sweep today
	// THEN: The historical sweep flags the entry (never eligible at payment
	//       time); the current sweep does not (threshold met today)

	engine, _ := newTestEngine(t)
	ctx := context.Background()

	ids := registerChain(t, engine, "net", 3, jan15.AddDate(-1, 0, 0))
	// ids[2] has 1 chain referral; one more in early January makes 2.
	addReferrals(t, engine, ids[2], 1, jan15.AddDate(0, 0, -10))

	payment := payUSD(t, engine, "pay-jan", ids[0], commission.StructureA, "100", jan15, false)

	// The entry exists despite the missing unlock (written under older,
	// buggier rules). Plant it directly.
	entry := commission.LedgerEntry{
		ID:          commission.EntryID(uuid.NewString()),
		Owner:       ids[2],
		Kind:        commission.KindCommission,
		Amount:      dec("10"),
		Status:      commission.StatusFrozen,
		Structure:   commission.StructureA,
		Level:       2,
		PaymentID:   payment.ID,
		FrozenUntil: jan15.Add(7 * 24 * time.Hour),
		CreatedAt:   jan15,
	}
	require.NoError(t, engine.Store.AppendEntry(ctx, entry))

	// Third referral arrives in February; the current count is now 3.
	addReferrals(t, engine, ids[2], 1, feb10)

	early, err := engine.Auditor.AuditEarlyUnlockViolations(ctx, engine.Rules, 0)
	require.NoError(t, err)
	require.Len(t, early, 1)
	assert.Equal(t, entry.ID, early[0].EntryID)
	assert.Equal(t, 2, early[0].ReferralsAtPayment)
	assert.Equal(t, 3, early[0].ReferralsRequired)

	current, err := engine.Auditor.AuditUnlockViolations(ctx, engine.Rules.Current())
	require.NoError(t, err)
	assert.Empty(t, current)
}

func TestAuditUnlock_CurrentCountBelowThreshold_Flagged(t *testing.T) {
	// GIVEN: A level-2 entry whose beneficiary has 2 referrals today
	// WHEN: Running the current-unlock sweep
	// THEN: One finding grouping the cell, with required/present counts

	engine, _ := newTestEngine(t)
	ctx := context.Background()

	ids := registerChain(t, engine, "net", 3, jan15.AddDate(-1, 0, 0))
	addReferrals(t, engine, ids[2], 1, jan15.AddDate(0, 0, -10))

	payment := payUSD(t, engine, "pay-1", ids[0], commission.StructureA, "100", jan15, false)
	entry := commission.LedgerEntry{
		ID:          commission.EntryID(uuid.NewString()),
		Owner:       ids[2],
		Kind:        commission.KindCommission,
		Amount:      dec("10"),
		Status:      commission.StatusFrozen,
		Structure:   commission.StructureA,
		Level:       2,
		PaymentID:   payment.ID,
		FrozenUntil: jan15.Add(7 * 24 * time.Hour),
		CreatedAt:   jan15,
	}
	require.NoError(t, engine.Store.AppendEntry(ctx, entry))

	findings, err := engine.Auditor.AuditUnlockViolations(ctx, engine.Rules.Current())
	require.NoError(t, err)
	require.Len(t, findings, 1)

	f := findings[0]
	assert.Equal(t, ids[2], f.AccountID)
	assert.Equal(t, 2, f.Level)
	assert.Equal(t, 3, f.ReferralsRequired)
	assert.Equal(t, 2, f.ReferralsPresent)
	assert.Equal(t, []commission.EntryID{entry.ID}, f.EntryIDs)
	assert.True(t, dec("10").Equal(f.Amount))

	// A committed fix clears the next run.
	_, err = engine.FixUnlockViolations(ctx, superadmin(), false)
	require.NoError(t, err)

	findings, err = engine.Auditor.AuditUnlockViolations(ctx, engine.Rules.Current())
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestAuditEarlyUnlock_LookbackBoundsTheSweep(t *testing.T) {
	// GIVEN: A violating entry created months ago
	// WHEN: Sweeping with a short lookback vs all time
	// THEN: The short window misses it; the unbounded sweep finds it

	engine, _ := newTestEngine(t)
	ctx := context.Background()

	old := time.Now().UTC().AddDate(0, -6, 0)
	ids := registerChain(t, engine, "net", 3, old.AddDate(-1, 0, 0))

	payment := payUSD(t, engine, "pay-old", ids[0], commission.StructureA, "100", old, false)
	entry := commission.LedgerEntry{
		ID:        commission.EntryID(uuid.NewString()),
		Owner:     ids[2],
		Kind:      commission.KindCommission,
		Amount:    dec("10"),
		Status:    commission.StatusFrozen,
		Structure: commission.StructureA,
		Level:     2,
		PaymentID: payment.ID,
		CreatedAt: old,
	}
	require.NoError(t, engine.Store.AppendEntry(ctx, entry))

	recent, err := engine.Auditor.AuditEarlyUnlockViolations(ctx, engine.Rules, 30)
	require.NoError(t, err)
	assert.Empty(t, recent)

	all, err := engine.Auditor.AuditEarlyUnlockViolations(ctx, engine.Rules, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestAuditEarlyUnlock_JudgesAgainstTableAtPaymentInstant(t *testing.T) {
	// GIVEN: A level-2 threshold of 3 under the January table, lowered to 1
	//        by a table cutting over on March 1; a beneficiary with 2
	//        referrals holding one level-2 entry paid in January and one
	//        paid in April
	// WHEN: Running the historical sweep with the versioned rule set
	// THEN: The January entry is flagged against the old threshold even
	//       though today's table would pass it; the April entry is clean

	relaxed, err := commission.NewRuleTable(2, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		7*24*time.Hour, "USD", dec("89500"), []commission.CommissionRule{
			{Structure: commission.StructureA, Level: 1, Percent: dec("0.10")},
			{Structure: commission.StructureA, Level: 2, Percent: dec("0.10"), MinDirectReferrals: 1},
		})
	require.NoError(t, err)

	store := memstore.NewMemory()
	rules := commission.NewRuleSet(commission.DefaultRuleTable(), relaxed)
	engine := commission.NewEngine(store, rules, zap.NewNop())
	ctx := context.Background()

	ids := registerChain(t, engine, "net", 3, jan15.AddDate(-1, 0, 0))
	// ids[2] has 1 chain referral; one more before January makes 2.
	addReferrals(t, engine, ids[2], 1, jan15.AddDate(0, 0, -10))

	apr1 := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	janPay := payUSD(t, engine, "pay-jan", ids[0], commission.StructureA, "100", jan15, false)
	aprPay := payUSD(t, engine, "pay-apr", ids[0], commission.StructureA, "100", apr1, false)

	for _, plant := range []struct {
		id      commission.EntryID
		payment *commission.PaymentEvent
		ts      time.Time
	}{{"entry-jan", janPay, jan15}, {"entry-apr", aprPay, apr1}} {
		require.NoError(t, engine.Store.AppendEntry(ctx, commission.LedgerEntry{
			ID:          plant.id,
			Owner:       ids[2],
			Kind:        commission.KindCommission,
			Amount:      dec("10"),
			Status:      commission.StatusFrozen,
			Structure:   commission.StructureA,
			Level:       2,
			PaymentID:   plant.payment.ID,
			FrozenUntil: plant.ts.Add(7 * 24 * time.Hour),
			CreatedAt:   plant.ts,
		}))
	}

	findings, err := engine.Auditor.AuditEarlyUnlockViolations(ctx, engine.Rules, 0)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, commission.EntryID("entry-jan"), findings[0].EntryID)
	assert.Equal(t, 2, findings[0].ReferralsAtPayment)
	assert.Equal(t, 3, findings[0].ReferralsRequired)
}

// =============================================================================
// BALANCE INTEGRITY
// =============================================================================

func TestAuditBalanceIntegrity_DetectsDriftAndNegatives(t *testing.T) {
	// GIVEN: One account whose cache drifted and one driven negative by a
	//        manual adjustment
	// WHEN: Running the balance sweep
	// THEN: Both are reported; refreshing the cache clears the drift

	engine, _ := newTestEngine(t)
	ctx := context.Background()

	ids := registerChain(t, engine, "net", 2, jan15.AddDate(-1, 0, 0))
	payment := payUSD(t, engine, "pay-1", ids[0], commission.StructureA, "100", jan15, false)
	_, err := engine.DistributeCommission(ctx, payment.ID)
	require.NoError(t, err)
	_, err = engine.ReleaseDue(ctx, jan15.AddDate(0, 1, 0))
	require.NoError(t, err)

	// ids[1] has $10 available but a stale zero cache.
	findings, err := engine.Auditor.AuditBalanceIntegrity(ctx)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, ids[1], findings[0].AccountID)
	assert.True(t, dec("10").Equal(findings[0].Diff))
	assert.False(t, findings[0].Negative)

	_, err = engine.RefreshCachedBalance(ctx, ids[1])
	require.NoError(t, err)

	findings, err = engine.Auditor.AuditBalanceIntegrity(ctx)
	require.NoError(t, err)
	assert.Empty(t, findings)

	// A negative balance is a finding even when the cache agrees.
	_, err = engine.AdjustBalance(ctx, superadmin(), ids[0], dec("-5"), "clawback test")
	require.NoError(t, err)
	_, err = engine.RefreshCachedBalance(ctx, ids[0])
	require.NoError(t, err)

	findings, err = engine.Auditor.AuditBalanceIntegrity(ctx)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, ids[0], findings[0].AccountID)
	assert.True(t, findings[0].Negative)
}
