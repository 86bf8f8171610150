// Package store provides an in-memory commission.Store implementation
// for tests and development. It enforces the same invariants as the SQLite
// store: the anti-duplication constraint on commission tuples, one reversal
// per source entry, and the entry status state machine.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Mr-Geneza/MG-Market-sub000/commission"
	"github.com/shopspring/decimal"
)

type commissionKey struct {
	Payment   commission.PaymentID
	Owner     commission.AccountID
	Level     int
	Structure commission.Structure
}

type activationKey struct {
	Account commission.AccountID
	Month   commission.Month
}

type Memory struct {
	mu sync.RWMutex

	accounts    map[commission.AccountID]commission.Account
	payments    map[commission.PaymentID]commission.PaymentEvent
	entries     map[commission.EntryID]commission.LedgerEntry
	entryOrder  []commission.EntryID
	skips       map[commissionKey]commission.SkipRecord
	skipOrder   []commissionKey
	reversals   map[commission.EntryID]commission.EntryID // source → adjustment
	activations map[activationKey]bool
}

func NewMemory() *Memory {
	return &Memory{
		accounts:    make(map[commission.AccountID]commission.Account),
		payments:    make(map[commission.PaymentID]commission.PaymentEvent),
		entries:     make(map[commission.EntryID]commission.LedgerEntry),
		skips:       make(map[commissionKey]commission.SkipRecord),
		reversals:   make(map[commission.EntryID]commission.EntryID),
		activations: make(map[activationKey]bool),
	}
}

// =============================================================================
// ACCOUNT STORE
// =============================================================================

func (m *Memory) SaveAccount(_ context.Context, a commission.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[a.ID] = a
	return nil
}

func (m *Memory) Account(_ context.Context, id commission.AccountID) (*commission.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *Memory) AccountPage(_ context.Context, offset, limit int) ([]commission.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.accounts))
	for id := range m.accounts {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)

	if offset >= len(ids) {
		return nil, nil
	}
	end := offset + limit
	if end > len(ids) {
		end = len(ids)
	}
	page := make([]commission.Account, 0, end-offset)
	for _, id := range ids[offset:end] {
		page = append(page, m.accounts[commission.AccountID(id)])
	}
	return page, nil
}

func (m *Memory) DirectReferralCount(_ context.Context, sponsor commission.AccountID, asOf time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, a := range m.accounts {
		if a.SponsorID != nil && *a.SponsorID == sponsor && !a.RegisteredAt.After(asOf) {
			count++
		}
	}
	return count, nil
}

func (m *Memory) SetCachedAvailable(_ context.Context, id commission.AccountID, available decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return commission.ErrAccountNotFound
	}
	a.CachedAvailable = available
	m.accounts[id] = a
	return nil
}

func (m *Memory) ReassignDownline(_ context.Context, from commission.AccountID, to *commission.AccountID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, a := range m.accounts {
		if a.SponsorID != nil && *a.SponsorID == from {
			a.SponsorID = to
			m.accounts[id] = a
		}
	}
	return nil
}

func (m *Memory) PurgeAccount(_ context.Context, id commission.AccountID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.accounts, id)
	return nil
}

// =============================================================================
// PAYMENT STORE
// =============================================================================

func (m *Memory) SavePayment(_ context.Context, p commission.PaymentEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[p.ID] = p
	return nil
}

func (m *Memory) Payment(_ context.Context, id commission.PaymentID) (*commission.PaymentEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *Memory) PaymentPage(_ context.Context, payer *commission.AccountID, offset, limit int) ([]commission.PaymentEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var all []commission.PaymentEvent
	for _, p := range m.payments {
		if payer != nil && p.Payer != *payer {
			continue
		}
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Timestamp.Equal(all[j].Timestamp) {
			return all[i].ID < all[j].ID
		}
		return all[i].Timestamp.Before(all[j].Timestamp)
	})

	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (m *Memory) MarkExempt(_ context.Context, id commission.PaymentID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return commission.ErrPaymentNotFound
	}
	p.Exempt = true
	m.payments[id] = p
	return nil
}

// =============================================================================
// LEDGER STORE
// =============================================================================

func (m *Memory) AppendEntry(_ context.Context, e commission.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.Kind == commission.KindCommission {
		key := commissionKey{Payment: e.PaymentID, Owner: e.Owner, Level: e.Level, Structure: e.Structure}
		for _, id := range m.entryOrder {
			existing := m.entries[id]
			if existing.Kind != commission.KindCommission || existing.Status == commission.StatusFailed {
				continue
			}
			if (commissionKey{existing.PaymentID, existing.Owner, existing.Level, existing.Structure}) == key {
				return commission.ErrDuplicateCommission
			}
		}
	}

	if e.Kind == commission.KindAdjustment {
		for _, src := range e.Provenance.SourceEntries {
			if _, done := m.reversals[src]; done {
				return commission.ErrAlreadyReversed
			}
		}
		for _, src := range e.Provenance.SourceEntries {
			m.reversals[src] = e.ID
		}
	}

	m.entries[e.ID] = e
	m.entryOrder = append(m.entryOrder, e.ID)
	return nil
}

func (m *Memory) Entry(_ context.Context, id commission.EntryID) (*commission.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *Memory) EntriesByOwner(_ context.Context, owner commission.AccountID) ([]commission.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []commission.LedgerEntry
	for _, id := range m.entryOrder {
		if e := m.entries[id]; e.Owner == owner {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Memory) CommissionExists(_ context.Context, payment commission.PaymentID, owner commission.AccountID, level int, structure commission.Structure) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.entryOrder {
		e := m.entries[id]
		if e.Kind == commission.KindCommission && e.Status != commission.StatusFailed &&
			e.PaymentID == payment && e.Owner == owner && e.Level == level && e.Structure == structure {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) CommissionEntryPage(_ context.Context, since time.Time, offset, limit int) ([]commission.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var all []commission.LedgerEntry
	for _, id := range m.entryOrder {
		e := m.entries[id]
		if e.Kind != commission.KindCommission || e.Status == commission.StatusFailed {
			continue
		}
		if !since.IsZero() && e.CreatedAt.Before(since) {
			continue
		}
		all = append(all, e)
	}
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (m *Memory) FrozenDue(_ context.Context, asOf time.Time) ([]commission.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []commission.LedgerEntry
	for _, id := range m.entryOrder {
		e := m.entries[id]
		if e.Status == commission.StatusFrozen && !e.FrozenUntil.After(asOf) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Memory) TransitionStatus(_ context.Context, id commission.EntryID, from, to commission.EntryStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return commission.ErrEntryNotFound
	}
	if e.Status != from || !commission.CanTransition(from, to) {
		return &commission.InvalidTransitionError{Entry: id, From: e.Status, To: to}
	}
	e.Status = to
	m.entries[id] = e
	return nil
}

func (m *Memory) ReversalFor(_ context.Context, source commission.EntryID) (*commission.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	adjID, ok := m.reversals[source]
	if !ok {
		return nil, nil
	}
	adj := m.entries[adjID]
	return &adj, nil
}

func (m *Memory) AppendSkip(_ context.Context, s commission.SkipRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := commissionKey{Payment: s.PaymentID, Owner: s.Beneficiary, Level: s.Level, Structure: s.Structure}
	if _, exists := m.skips[key]; exists {
		return commission.ErrDuplicateSkip
	}
	m.skips[key] = s
	m.skipOrder = append(m.skipOrder, key)
	return nil
}

func (m *Memory) SkipsByPayment(_ context.Context, payment commission.PaymentID) ([]commission.SkipRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []commission.SkipRecord
	for _, key := range m.skipOrder {
		if key.Payment == payment {
			out = append(out, m.skips[key])
		}
	}
	return out, nil
}

// =============================================================================
// ACTIVATION STORE
// =============================================================================

func (m *Memory) SetActivation(_ context.Context, account commission.AccountID, month commission.Month, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activations[activationKey{Account: account, Month: month}] = active
	return nil
}

func (m *Memory) Activated(_ context.Context, account commission.AccountID, month commission.Month) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activations[activationKey{Account: account, Month: month}], nil
}
