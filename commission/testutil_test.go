package commission_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Mr-Geneza/MG-Market-sub000/commission"
	memstore "github.com/Mr-Geneza/MG-Market-sub000/commission/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	jan15 = time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	feb10 = time.Date(2025, 2, 10, 12, 0, 0, 0, time.UTC)
)

func newTestEngine(t *testing.T) (*commission.Engine, *memstore.Memory) {
	t.Helper()
	store := memstore.NewMemory()
	rules := commission.NewRuleSet(commission.DefaultRuleTable())
	return commission.NewEngine(store, rules, zap.NewNop()), store
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// registerSubscribed registers an account enrolled in the subscription plan
// for all of 2025.
func registerSubscribed(t *testing.T, engine *commission.Engine, id string, sponsor *commission.AccountID, registeredAt time.Time) commission.Account {
	t.Helper()
	ctx := context.Background()

	acct, err := engine.RegisterAccount(ctx, commission.AccountID(id), sponsor, registeredAt)
	require.NoError(t, err)

	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	acct.SubscriptionFrom = &from
	acct.SubscriptionUntil = &until
	require.NoError(t, engine.Store.SaveAccount(ctx, *acct))
	return *acct
}

// registerChain builds a subscribed sponsor chain root-downward and returns
// the IDs bottom-up: ids[0] is the payer, ids[1] its sponsor, and so on.
func registerChain(t *testing.T, engine *commission.Engine, prefix string, depth int, registeredAt time.Time) []commission.AccountID {
	t.Helper()

	ids := make([]commission.AccountID, depth)
	var sponsor *commission.AccountID
	for i := depth - 1; i >= 0; i-- {
		id := commission.AccountID(fmt.Sprintf("%s-%d", prefix, i))
		registerSubscribed(t, engine, string(id), sponsor, registeredAt)
		ids[i] = id
		s := id
		sponsor = &s
	}
	return ids
}

// addReferrals registers n direct referrals under sponsor, all subscribed,
// with the given registration time (so point-in-time counts work).
func addReferrals(t *testing.T, engine *commission.Engine, sponsor commission.AccountID, n int, registeredAt time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("%s-ref-%d-%d", sponsor, registeredAt.Month(), i)
		s := sponsor
		registerSubscribed(t, engine, id, &s, registeredAt)
	}
}

// unlockAll gives every account in the chain enough referrals to pass any
// threshold in the default table, dated well before the test payments.
func unlockAll(t *testing.T, engine *commission.Engine, ids []commission.AccountID) {
	t.Helper()
	early := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for _, id := range ids {
		addReferrals(t, engine, id, 10, early)
	}
}

// payUSD records a structure payment of amount USD at ts and returns it.
func payUSD(t *testing.T, engine *commission.Engine, id string, payer commission.AccountID, structure commission.Structure, amount string, ts time.Time, exempt bool) *commission.PaymentEvent {
	t.Helper()
	payment, err := engine.RecordPayment(context.Background(),
		commission.PaymentID(id), payer, structure, dec(amount), "USD", ts, exempt)
	require.NoError(t, err)
	return payment
}

func superadmin() commission.Actor {
	return commission.Actor{ID: "root-admin", Role: commission.RoleSuperadmin}
}

func plainAdmin() commission.Actor {
	return commission.Actor{ID: "helpdesk", Role: commission.RoleAdmin}
}
