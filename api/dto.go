/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  All amounts are serialized as decimal strings ("12.50"), never floats.
  Clients must not do float math on them either.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - commission/types.go: Domain model these map from
*/
package api

import (
	"time"

	"github.com/Mr-Geneza/MG-Market-sub000/commission"
)

// =============================================================================
// ACCOUNT TYPES
// =============================================================================

// AccountDTO represents an account in API responses.
type AccountDTO struct {
	ID               string `json:"id"`
	SponsorID        string `json:"sponsor_id,omitempty"`
	RegisteredAt     string `json:"registered_at"`
	Banned           bool   `json:"banned"`
	Archived         bool   `json:"archived"`
	SubscriptionFrom string `json:"subscription_from,omitempty"`
	SubscriptionTo   string `json:"subscription_until,omitempty"`
	CachedAvailable  string `json:"cached_available"`
}

// RegisterAccountRequest is the request to register an account.
type RegisterAccountRequest struct {
	ID           string `json:"id"`
	SponsorID    string `json:"sponsor_id,omitempty"`
	RegisteredAt string `json:"registered_at,omitempty"` // RFC3339, defaults to now
}

// SubscriptionRequest sets the plan enrollment window for an account.
type SubscriptionRequest struct {
	From  string `json:"from"`
	Until string `json:"until"`
}

// ActivationRequest marks an account active (or not) for a calendar month.
type ActivationRequest struct {
	Month  string `json:"month"` // "2006-01"
	Active bool   `json:"active"`
}

// PurgeRequest is the request to permanently delete an account.
type PurgeRequest struct {
	Confirm string `json:"confirm"`
}

// =============================================================================
// PAYMENT AND DISTRIBUTION TYPES
// =============================================================================

// RecordPaymentRequest ingests a confirmed payment.
type RecordPaymentRequest struct {
	ID        string `json:"id,omitempty"`
	Payer     string `json:"payer_id"`
	Structure string `json:"structure"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency,omitempty"`
	Timestamp string `json:"timestamp,omitempty"` // RFC3339, defaults to now
	Exempt    bool   `json:"exempt,omitempty"`
	// When true, commissions are distributed in the same call.
	Distribute bool `json:"distribute,omitempty"`
}

// PaymentDTO represents a payment in API responses.
type PaymentDTO struct {
	ID               string `json:"id"`
	Payer            string `json:"payer_id"`
	Structure        string `json:"structure"`
	Amount           string `json:"amount"`
	Currency         string `json:"currency"`
	NormalizedAmount string `json:"normalized_amount"`
	Timestamp        string `json:"timestamp"`
	Exempt           bool   `json:"exempt"`
}

// EntryDTO represents a ledger entry in API responses.
type EntryDTO struct {
	ID          string `json:"id"`
	Owner       string `json:"owner_id"`
	Kind        string `json:"kind"`
	Amount      string `json:"amount"`
	Status      string `json:"status"`
	Structure   string `json:"structure,omitempty"`
	Level       int    `json:"level,omitempty"`
	PaymentID   string `json:"payment_id,omitempty"`
	Admin       string `json:"admin,omitempty"`
	Reason      string `json:"reason,omitempty"`
	FrozenUntil string `json:"frozen_until,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// SkipDTO represents an evaluated-but-unpaid commission.
type SkipDTO struct {
	Beneficiary string `json:"beneficiary_id"`
	Structure   string `json:"structure"`
	Level       int    `json:"level"`
	Reason      string `json:"reason"`
	Forgone     string `json:"forgone"`
}

// DistributionResultDTO summarizes a distribution run.
type DistributionResultDTO struct {
	PaymentID   string     `json:"payment_id"`
	Entries     []EntryDTO `json:"entries"`
	Skips       []SkipDTO  `json:"skips"`
	PassUpCount int        `json:"pass_up_count"`
	PassUpTotal string     `json:"pass_up_total"`
}

// =============================================================================
// BALANCE AND WITHDRAWAL TYPES
// =============================================================================

// BalanceDTO represents the derived balance for an account.
type BalanceDTO struct {
	AccountID string `json:"account_id"`
	Available string `json:"available"`
	Frozen    string `json:"frozen"`
	Pending   string `json:"pending"`
	Withdrawn string `json:"withdrawn"`
}

// WithdrawRequest debits the available balance.
type WithdrawRequest struct {
	Amount string `json:"amount"`
}

// =============================================================================
// ADMIN TYPES
// =============================================================================

// BackfillRequest runs the missing-commission backfill.
type BackfillRequest struct {
	AccountID string `json:"account_id,omitempty"` // empty = all accounts
	DryRun    bool   `json:"dry_run"`
}

// BackfillReportDTO summarizes a backfill run.
type BackfillReportDTO struct {
	Processed   int    `json:"processed"`
	Created     int    `json:"created"`
	Skipped     int    `json:"skipped"`
	TotalAmount string `json:"total_amount"`
	DryRun      bool   `json:"dry_run"`
}

// ReverseRequest reverses commission entries.
type ReverseRequest struct {
	AccountID string `json:"account_id,omitempty"` // empty = all accounts
	Reason    string `json:"reason"`
	Confirm   string `json:"confirm,omitempty"` // required for the all-accounts scope
}

// ReversalReportDTO summarizes a reversal run.
type ReversalReportDTO struct {
	ReversedCount int        `json:"reversed_count"`
	TotalAmount   string     `json:"total_amount"`
	Adjustments   []EntryDTO `json:"adjustments"`
}

// AdjustRequest applies a manual balance correction.
type AdjustRequest struct {
	Amount string `json:"amount"` // signed
	Reason string `json:"reason"`
}

// FixRequest runs an audit-and-reverse sweep.
type FixRequest struct {
	DryRun       bool `json:"dry_run"`
	LookbackDays int  `json:"lookback_days,omitempty"` // early-unlock sweep only
}

// FixReportDTO summarizes a fix sweep.
type FixReportDTO struct {
	Count       int    `json:"count"`
	TotalAmount string `json:"total_amount"`
	DryRun      bool   `json:"dry_run"`
}

// =============================================================================
// AUDIT TYPES
// =============================================================================

// BalanceFindingDTO is one account whose cached balance disagrees with the
// ledger, or whose computed balance is negative.
type BalanceFindingDTO struct {
	AccountID string `json:"account_id"`
	Computed  string `json:"computed_available"`
	Stored    string `json:"stored_available"`
	Diff      string `json:"diff"`
	Negative  bool   `json:"negative"`
}

// UnlockFindingDTO is one (account, structure, level) cell paid without the
// unlock requirement currently met.
type UnlockFindingDTO struct {
	AccountID         string   `json:"account_id"`
	Structure         string   `json:"structure"`
	Level             int      `json:"level"`
	ReferralsPresent  int      `json:"referrals_present"`
	ReferralsRequired int      `json:"referrals_required"`
	EntryIDs          []string `json:"entry_ids"`
	Amount            string   `json:"amount"`
}

// MarketingFindingDTO is one commission paid on an exempt payment.
type MarketingFindingDTO struct {
	EntryID     string `json:"entry_id"`
	Beneficiary string `json:"beneficiary_id"`
	PaymentID   string `json:"payment_id"`
	Amount      string `json:"amount"`
}

// EarlyUnlockFindingDTO is one commission whose level was not unlocked at
// the moment of the underlying payment.
type EarlyUnlockFindingDTO struct {
	EntryID            string `json:"entry_id"`
	Beneficiary        string `json:"beneficiary_id"`
	Level              int    `json:"level"`
	Structure          string `json:"structure"`
	ReferralsAtPayment int    `json:"referrals_at_payment"`
	ReferralsRequired  int    `json:"referrals_required"`
	Amount             string `json:"amount"`
}

// =============================================================================
// COMMON TYPES
// =============================================================================

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// MAPPERS
// =============================================================================

func toAccountDTO(a commission.Account) AccountDTO {
	dto := AccountDTO{
		ID:              string(a.ID),
		RegisteredAt:    a.RegisteredAt.Format(time.RFC3339),
		Banned:          a.Banned,
		Archived:        a.Archived,
		CachedAvailable: a.CachedAvailable.String(),
	}
	if a.SponsorID != nil {
		dto.SponsorID = string(*a.SponsorID)
	}
	if a.SubscriptionFrom != nil {
		dto.SubscriptionFrom = a.SubscriptionFrom.Format(time.RFC3339)
	}
	if a.SubscriptionUntil != nil {
		dto.SubscriptionTo = a.SubscriptionUntil.Format(time.RFC3339)
	}
	return dto
}

func toPaymentDTO(p commission.PaymentEvent) PaymentDTO {
	return PaymentDTO{
		ID:               string(p.ID),
		Payer:            string(p.Payer),
		Structure:        string(p.Structure),
		Amount:           p.Amount.String(),
		Currency:         p.Currency,
		NormalizedAmount: p.NormalizedAmount.String(),
		Timestamp:        p.Timestamp.Format(time.RFC3339),
		Exempt:           p.Exempt,
	}
}

func toEntryDTO(e commission.LedgerEntry) EntryDTO {
	dto := EntryDTO{
		ID:        string(e.ID),
		Owner:     string(e.Owner),
		Kind:      string(e.Kind),
		Amount:    e.Amount.String(),
		Status:    string(e.Status),
		Structure: string(e.Structure),
		Level:     e.Level,
		PaymentID: string(e.PaymentID),
		Admin:     e.Provenance.Admin,
		Reason:    e.Provenance.Reason,
		CreatedAt: e.CreatedAt.Format(time.RFC3339),
	}
	if !e.FrozenUntil.IsZero() {
		dto.FrozenUntil = e.FrozenUntil.Format(time.RFC3339)
	}
	return dto
}

func toEntryDTOs(entries []commission.LedgerEntry) []EntryDTO {
	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	return dtos
}

func toSkipDTOs(skips []commission.SkipRecord) []SkipDTO {
	dtos := make([]SkipDTO, len(skips))
	for i, sk := range skips {
		dtos[i] = SkipDTO{
			Beneficiary: string(sk.Beneficiary),
			Structure:   string(sk.Structure),
			Level:       sk.Level,
			Reason:      string(sk.Reason),
			Forgone:     sk.Forgone.String(),
		}
	}
	return dtos
}

func toBalanceDTO(b commission.Balance) BalanceDTO {
	return BalanceDTO{
		AccountID: string(b.AccountID),
		Available: b.Available.String(),
		Frozen:    b.Frozen.String(),
		Pending:   b.Pending.String(),
		Withdrawn: b.Withdrawn.String(),
	}
}
