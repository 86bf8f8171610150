package commission_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mr-Geneza/MG-Market-sub000/commission"
)

// =============================================================================
// PRECEDENCE TESTS - one failing check at a time, in order
// =============================================================================

func TestResolve_BannedBeneficiary_NotActivated(t *testing.T) {
	// GIVEN: A banned sponsor one level above the payer
	// WHEN: Resolving eligibility
	// THEN: not_activated, regardless of any other condition

	engine, _ := newTestEngine(t)
	ctx := context.Background()

	ids := registerChain(t, engine, "net", 2, jan15.AddDate(-1, 0, 0))
	require.NoError(t, engine.SetBanned(ctx, ids[1], true))

	payment := payUSD(t, engine, "pay-1", ids[0], commission.StructureA, "100", jan15, false)
	sponsor, err := engine.Store.Account(ctx, ids[1])
	require.NoError(t, err)

	resolver := &commission.Resolver{Store: engine.Store}
	decision, err := resolver.Resolve(ctx, engine.Rules.Current(), *payment, *sponsor, 1, jan15)
	require.NoError(t, err)

	assert.False(t, decision.Eligible)
	assert.Equal(t, commission.SkipNotActivated, decision.Reason)
}

func TestResolve_NeverEnrolled_NotActivated(t *testing.T) {
	// GIVEN: A sponsor with no subscription window at all
	// WHEN: Resolving a subscription-plan payment
	// THEN: not_activated (never enrolled), not no_active_subscription

	engine, _ := newTestEngine(t)
	ctx := context.Background()

	payer := registerSubscribed(t, engine, "payer", nil, jan15.AddDate(-1, 0, 0))
	_ = payer

	sponsorID := commission.AccountID("bare-sponsor")
	_, err := engine.RegisterAccount(ctx, sponsorID, nil, jan15.AddDate(-1, 0, 0))
	require.NoError(t, err)

	payment := payUSD(t, engine, "pay-1", "payer", commission.StructureA, "100", jan15, false)
	sponsor, err := engine.Store.Account(ctx, sponsorID)
	require.NoError(t, err)

	resolver := &commission.Resolver{Store: engine.Store}
	decision, err := resolver.Resolve(ctx, engine.Rules.Current(), *payment, *sponsor, 1, jan15)
	require.NoError(t, err)

	assert.Equal(t, commission.SkipNotActivated, decision.Reason)
}

func TestResolve_ExpiredSubscription_NoActiveSubscription(t *testing.T) {
	// GIVEN: A sponsor whose subscription window ended before the payment
	// WHEN: Resolving as of the payment instant
	// THEN: no_active_subscription

	engine, _ := newTestEngine(t)
	ctx := context.Background()

	ids := registerChain(t, engine, "net", 2, jan15.AddDate(-1, 0, 0))

	sponsor, err := engine.Store.Account(ctx, ids[1])
	require.NoError(t, err)
	from := jan15.AddDate(-1, 0, 0)
	until := jan15.AddDate(0, 0, -1) // expired the day before
	sponsor.SubscriptionFrom = &from
	sponsor.SubscriptionUntil = &until
	require.NoError(t, engine.Store.SaveAccount(ctx, *sponsor))

	payment := payUSD(t, engine, "pay-1", ids[0], commission.StructureA, "100", jan15, false)

	resolver := &commission.Resolver{Store: engine.Store}
	decision, err := resolver.Resolve(ctx, engine.Rules.Current(), *payment, *sponsor, 1, jan15)
	require.NoError(t, err)

	assert.Equal(t, commission.SkipNoActiveSubscription, decision.Reason)
}

func TestResolve_TieredStructure_NoPaymentThisMonth(t *testing.T) {
	// GIVEN: A tiered-structure sponsor with no activation for the month
	// WHEN: Resolving eligibility
	// THEN: no_payment_this_month

	engine, _ := newTestEngine(t)
	ctx := context.Background()

	ids := registerChain(t, engine, "net", 2, jan15.AddDate(-1, 0, 0))
	payment := payUSD(t, engine, "pay-1", ids[0], commission.StructureB, "100", jan15, false)

	sponsor, err := engine.Store.Account(ctx, ids[1])
	require.NoError(t, err)

	resolver := &commission.Resolver{Store: engine.Store}
	decision, err := resolver.Resolve(ctx, engine.Rules.Current(), *payment, *sponsor, 1, jan15)
	require.NoError(t, err)
	assert.Equal(t, commission.SkipNoPaymentThisMonth, decision.Reason)

	// Activating the month flips the outcome.
	require.NoError(t, engine.SetActivation(ctx, ids[1], commission.MonthOf(jan15), true))
	decision, err = resolver.Resolve(ctx, engine.Rules.Current(), *payment, *sponsor, 1, jan15)
	require.NoError(t, err)
	assert.True(t, decision.Eligible)
}

func TestResolve_LevelBeyondDepth_TooDeep(t *testing.T) {
	// GIVEN: The subscription structure pays 5 levels
	// WHEN: Resolving level 6
	// THEN: too_deep

	engine, _ := newTestEngine(t)
	ctx := context.Background()

	ids := registerChain(t, engine, "net", 2, jan15.AddDate(-1, 0, 0))
	payment := payUSD(t, engine, "pay-1", ids[0], commission.StructureA, "100", jan15, false)

	sponsor, err := engine.Store.Account(ctx, ids[1])
	require.NoError(t, err)

	resolver := &commission.Resolver{Store: engine.Store}
	decision, err := resolver.Resolve(ctx, engine.Rules.Current(), *payment, *sponsor, 6, jan15)
	require.NoError(t, err)

	assert.Equal(t, commission.SkipTooDeep, decision.Reason)
}

func TestResolve_InsufficientReferrals_LevelNotUnlocked(t *testing.T) {
	// GIVEN: Level 2 requires 3 direct referrals; the sponsor has 2
	// WHEN: Resolving level 2
	// THEN: level_not_unlocked with both counts reported

	engine, _ := newTestEngine(t)
	ctx := context.Background()

	ids := registerChain(t, engine, "net", 3, jan15.AddDate(-1, 0, 0))
	addReferrals(t, engine, ids[2], 1, jan15.AddDate(0, -1, 0)) // +1 synthetic (chain gave it 1 already)

	payment := payUSD(t, engine, "pay-1", ids[0], commission.StructureA, "100", jan15, false)
	grand, err := engine.Store.Account(ctx, ids[2])
	require.NoError(t, err)

	resolver := &commission.Resolver{Store: engine.Store}
	decision, err := resolver.Resolve(ctx, engine.Rules.Current(), *payment, *grand, 2, jan15)
	require.NoError(t, err)

	assert.Equal(t, commission.SkipLevelNotUnlocked, decision.Reason)
	assert.Equal(t, 3, decision.ReferralsRequired)
	assert.Equal(t, 2, decision.ReferralsPresent)
}

func TestResolve_ReferralCountIsPointInTime(t *testing.T) {
	// GIVEN: Sponsor reaches 3 referrals only in February
	// WHEN: Resolving as of January vs as of February
	// THEN: January is locked, February is unlocked

	engine, _ := newTestEngine(t)
	ctx := context.Background()

	ids := registerChain(t, engine, "net", 3, jan15.AddDate(-1, 0, 0))
	// Chain membership gives ids[2] one direct referral (ids[1]).
	addReferrals(t, engine, ids[2], 1, jan15.AddDate(0, 0, -5))
	addReferrals(t, engine, ids[2], 1, feb10.AddDate(0, 0, -5))

	payment := payUSD(t, engine, "pay-1", ids[0], commission.StructureA, "100", jan15, false)
	grand, err := engine.Store.Account(ctx, ids[2])
	require.NoError(t, err)

	resolver := &commission.Resolver{Store: engine.Store}

	janDecision, err := resolver.Resolve(ctx, engine.Rules.Current(), *payment, *grand, 2, jan15)
	require.NoError(t, err)
	assert.Equal(t, commission.SkipLevelNotUnlocked, janDecision.Reason)

	febDecision, err := resolver.Resolve(ctx, engine.Rules.Current(), *payment, *grand, 2, feb10)
	require.NoError(t, err)
	assert.True(t, febDecision.Eligible)
}

func TestResolve_ExemptPayment_MarketingFreeAccess(t *testing.T) {
	// GIVEN: An otherwise fully eligible level-1 sponsor
	// WHEN: The payment is flagged exempt
	// THEN: marketing_free_access

	engine, _ := newTestEngine(t)
	ctx := context.Background()

	ids := registerChain(t, engine, "net", 2, jan15.AddDate(-1, 0, 0))
	payment := payUSD(t, engine, "pay-1", ids[0], commission.StructureA, "100", jan15, true)

	sponsor, err := engine.Store.Account(ctx, ids[1])
	require.NoError(t, err)

	resolver := &commission.Resolver{Store: engine.Store}
	decision, err := resolver.Resolve(ctx, engine.Rules.Current(), *payment, *sponsor, 1, jan15)
	require.NoError(t, err)

	assert.Equal(t, commission.SkipMarketingFreeAccess, decision.Reason)
}

func TestResolve_TieredRetroactive_SponsorInactiveInPaidMonth(t *testing.T) {
	// GIVEN: A tiered-structure sponsor active in February but not January
	// WHEN: Resolving a January payment as of February (retroactive run)
	// THEN: sponsor_inactive - activation in the paid month is what counts

	engine, _ := newTestEngine(t)
	ctx := context.Background()

	ids := registerChain(t, engine, "net", 2, jan15.AddDate(-1, 0, 0))
	require.NoError(t, engine.SetActivation(ctx, ids[1], commission.MonthOf(feb10), true))

	payment := payUSD(t, engine, "pay-jan", ids[0], commission.StructureB, "100", jan15, false)
	sponsor, err := engine.Store.Account(ctx, ids[1])
	require.NoError(t, err)

	resolver := &commission.Resolver{Store: engine.Store}
	decision, err := resolver.Resolve(ctx, engine.Rules.Current(), *payment, *sponsor, 1, feb10)
	require.NoError(t, err)
	assert.Equal(t, commission.SkipSponsorInactive, decision.Reason)

	// Backdated activation for January cures it.
	require.NoError(t, engine.SetActivation(ctx, ids[1], commission.MonthOf(jan15), true))
	decision, err = resolver.Resolve(ctx, engine.Rules.Current(), *payment, *sponsor, 1, feb10)
	require.NoError(t, err)
	assert.True(t, decision.Eligible)
}

func TestResolve_ExistingEntry_AlreadyReceivedBefore(t *testing.T) {
	// GIVEN: A commission entry already exists for the tuple
	// WHEN: Resolving the same tuple again
	// THEN: already_received_before

	engine, _ := newTestEngine(t)
	ctx := context.Background()

	ids := registerChain(t, engine, "net", 2, jan15.AddDate(-1, 0, 0))
	payment := payUSD(t, engine, "pay-1", ids[0], commission.StructureA, "100", jan15, false)

	_, err := engine.DistributeCommission(ctx, payment.ID)
	require.NoError(t, err)

	sponsor, err := engine.Store.Account(ctx, ids[1])
	require.NoError(t, err)

	resolver := &commission.Resolver{Store: engine.Store}
	decision, err := resolver.Resolve(ctx, engine.Rules.Current(), *payment, *sponsor, 1, jan15)
	require.NoError(t, err)

	assert.Equal(t, commission.SkipAlreadyReceivedBefore, decision.Reason)
}

func TestResolve_PrecedenceOrder_FirstFailureWins(t *testing.T) {
	// GIVEN: A sponsor that is banned AND lacks referrals AND the payment
	//        is exempt
	// WHEN: Resolving level 2
	// THEN: not_activated - the earliest check in the order decides

	engine, _ := newTestEngine(t)
	ctx := context.Background()

	ids := registerChain(t, engine, "net", 3, jan15.AddDate(-1, 0, 0))
	require.NoError(t, engine.SetBanned(ctx, ids[2], true))

	payment := payUSD(t, engine, "pay-1", ids[0], commission.StructureA, "100", jan15, true)
	grand, err := engine.Store.Account(ctx, ids[2])
	require.NoError(t, err)

	resolver := &commission.Resolver{Store: engine.Store}
	decision, err := resolver.Resolve(ctx, engine.Rules.Current(), *payment, *grand, 2, jan15)
	require.NoError(t, err)

	assert.Equal(t, commission.SkipNotActivated, decision.Reason)
}

// =============================================================================
// UNLOCK-ONLY CHECK
// =============================================================================

func TestUnlockAt_IgnoresEverythingButTheThreshold(t *testing.T) {
	// GIVEN: A banned sponsor with 10 referrals
	// WHEN: Asking only the unlock question
	// THEN: Eligible - standing and exemptions are other sweeps' business

	engine, _ := newTestEngine(t)
	ctx := context.Background()

	ids := registerChain(t, engine, "net", 2, jan15.AddDate(-1, 0, 0))
	addReferrals(t, engine, ids[1], 10, jan15.AddDate(0, -6, 0))
	require.NoError(t, engine.SetBanned(ctx, ids[1], true))

	resolver := &commission.Resolver{Store: engine.Store}
	decision, err := resolver.UnlockAt(ctx, engine.Rules.Current(), ids[1], commission.StructureA, 5, time.Now().UTC())
	require.NoError(t, err)

	assert.True(t, decision.Eligible)
	assert.Equal(t, 10, decision.ReferralsRequired)
}
