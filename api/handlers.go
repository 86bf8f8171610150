/*
handlers.go - HTTP API handlers for the commission engine

PURPOSE:
  Exposes the commission engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Accounts:
    GET    /api/accounts                  List accounts (paged)
    POST   /api/accounts                  Register account
    GET    /api/accounts/{id}             Get account
    GET    /api/accounts/{id}/balance     Derived balance
    GET    /api/accounts/{id}/entries     Ledger history
    PUT    /api/accounts/{id}/subscription  Set enrollment window
    POST   /api/accounts/{id}/activation  Set monthly activation
    POST   /api/accounts/{id}/withdraw    Withdraw available funds
    POST   /api/accounts/{id}/ban         Ban / unban
    POST   /api/accounts/{id}/archive     Soft delete
    DELETE /api/accounts/{id}             Hard purge (superadmin + phrase)

  Payments:
    POST   /api/payments                  Ingest payment (optionally distribute)
    GET    /api/payments/{id}             Get payment
    GET    /api/payments/{id}/skips       Pass-up report for a payment
    POST   /api/payments/{id}/distribute  Distribute commissions
    POST   /api/payments/{id}/exempt      Mark as marketing-exempt

  Admin (X-Admin-ID / X-Admin-Role headers):
    POST   /api/admin/backfill            Backfill missing commissions
    POST   /api/admin/reverse             Reverse commissions (scoped or all)
    POST   /api/admin/accounts/{id}/adjust  Manual balance correction
    POST   /api/admin/fix/unlock          Fix unlock violations
    POST   /api/admin/fix/marketing       Fix marketing-exempt violations
    POST   /api/admin/fix/early-unlock    Fix early-unlock violations
    POST   /api/admin/release             Release due frozen entries now

  Audits (read-only):
    GET    /api/audits/balances           Cached-vs-computed drift
    GET    /api/audits/unlock             Unlock violations
    GET    /api/audits/marketing          Marketing-exempt violations
    GET    /api/audits/early-unlock      Early-unlock violations

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 403: Missing superadmin role, confirmation phrase mismatch
  - 404: Resource not found
  - 409: Conflict (duplicate commission, already reversed)
  - 500: Internal errors

AUTHN NOTE:
  Actor identity is taken from X-Admin-ID / X-Admin-Role headers. Real
  authentication (verifying those headers) belongs in a gateway in front
  of this service.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - commission/engine.go: The domain logic these handlers delegate to
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Mr-Geneza/MG-Market-sub000/commission"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *commission.Engine
	Logger *zap.Logger
}

// NewHandler creates a new handler around the engine.
func NewHandler(engine *commission.Engine, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Engine: engine, Logger: logger}
}

// actorFrom extracts the acting admin from request headers.
func actorFrom(r *http.Request) commission.Actor {
	return commission.Actor{
		ID:   r.Header.Get("X-Admin-ID"),
		Role: commission.Role(r.Header.Get("X-Admin-Role")),
	}
}

// pageParams reads offset/limit query parameters with sane bounds.
func pageParams(r *http.Request) (offset, limit int) {
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return offset, limit
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// ListAccounts returns a page of accounts.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	offset, limit := pageParams(r)

	accounts, err := h.Engine.Store.AccountPage(r.Context(), offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list accounts", err)
		return
	}

	dtos := make([]AccountDTO, len(accounts))
	for i, a := range accounts {
		dtos[i] = toAccountDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RegisterAccount registers a new account under an optional sponsor.
func (h *Handler) RegisterAccount(w http.ResponseWriter, r *http.Request) {
	var req RegisterAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required", nil)
		return
	}

	registeredAt := time.Now().UTC()
	if req.RegisteredAt != "" {
		t, err := time.Parse(time.RFC3339, req.RegisteredAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid registered_at (use RFC3339)", err)
			return
		}
		registeredAt = t
	}

	var sponsor *commission.AccountID
	if req.SponsorID != "" {
		id := commission.AccountID(req.SponsorID)
		sponsor = &id
	}

	account, err := h.Engine.RegisterAccount(r.Context(), commission.AccountID(req.ID), sponsor, registeredAt)
	if err != nil {
		writeDomainError(w, "Failed to register account", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountDTO(*account))
}

// GetAccount returns a single account.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id := commission.AccountID(chi.URLParam(r, "id"))

	account, err := h.Engine.Store.Account(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get account", err)
		return
	}
	if account == nil {
		writeError(w, http.StatusNotFound, "Account not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(*account))
}

// GetBalance returns the derived balance for an account.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id := commission.AccountID(chi.URLParam(r, "id"))

	balance, err := h.Engine.GetBalance(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to compute balance", err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(balance))
}

// GetEntries returns the full ledger history for an account.
func (h *Handler) GetEntries(w http.ResponseWriter, r *http.Request) {
	id := commission.AccountID(chi.URLParam(r, "id"))

	entries, err := h.Engine.Store.EntriesByOwner(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list entries", err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTOs(entries))
}

// SetSubscription sets the enrollment window for the subscription plan.
func (h *Handler) SetSubscription(w http.ResponseWriter, r *http.Request) {
	id := commission.AccountID(chi.URLParam(r, "id"))

	var req SubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	from, err := time.Parse(time.RFC3339, req.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from (use RFC3339)", err)
		return
	}
	until, err := time.Parse(time.RFC3339, req.Until)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid until (use RFC3339)", err)
		return
	}
	if !until.After(from) {
		writeError(w, http.StatusBadRequest, "until must be after from", nil)
		return
	}

	account, err := h.Engine.Store.Account(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get account", err)
		return
	}
	if account == nil {
		writeError(w, http.StatusNotFound, "Account not found", nil)
		return
	}

	account.SubscriptionFrom = &from
	account.SubscriptionUntil = &until
	if err := h.Engine.Store.SaveAccount(r.Context(), *account); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save account", err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(*account))
}

// SetActivation records the monthly activation fact for an account.
func (h *Handler) SetActivation(w http.ResponseWriter, r *http.Request) {
	id := commission.AccountID(chi.URLParam(r, "id"))

	var req ActivationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	t, err := time.Parse("2006-01", req.Month)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month (use YYYY-MM)", err)
		return
	}

	if err := h.Engine.SetActivation(r.Context(), id, commission.MonthOf(t), req.Active); err != nil {
		writeDomainError(w, "Failed to set activation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Withdraw debits the available balance.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	id := commission.AccountID(chi.URLParam(r, "id"))

	var req WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	balance, err := h.Engine.Withdraw(r.Context(), id, amount)
	if err != nil {
		writeDomainError(w, "Withdrawal failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(balance))
}

// SetBanned bans or unbans an account. Query param unban=true lifts the ban.
func (h *Handler) SetBanned(w http.ResponseWriter, r *http.Request) {
	id := commission.AccountID(chi.URLParam(r, "id"))
	banned := r.URL.Query().Get("unban") != "true"

	if err := h.Engine.SetBanned(r.Context(), id, banned); err != nil {
		writeDomainError(w, "Failed to update ban flag", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Archive soft-deletes an account. Ledger history is preserved.
func (h *Handler) Archive(w http.ResponseWriter, r *http.Request) {
	id := commission.AccountID(chi.URLParam(r, "id"))

	if err := h.Engine.Archive(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to archive account", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HardPurge permanently deletes an account. Requires superadmin and the
// verbatim confirmation phrase in the body.
func (h *Handler) HardPurge(w http.ResponseWriter, r *http.Request) {
	id := commission.AccountID(chi.URLParam(r, "id"))

	var req PurgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.Engine.HardPurge(r.Context(), actorFrom(r), id, req.Confirm); err != nil {
		writeDomainError(w, "Failed to purge account", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// RecordPayment ingests a confirmed payment and optionally distributes
// commissions in the same call.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req RecordPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	structure := commission.Structure(req.Structure)
	if !structure.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid structure (use \"a\" or \"b\")", nil)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	ts := time.Now().UTC()
	if req.Timestamp != "" {
		ts, err = time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid timestamp (use RFC3339)", err)
			return
		}
	}

	payment, err := h.Engine.RecordPayment(r.Context(),
		commission.PaymentID(req.ID), commission.AccountID(req.Payer),
		structure, amount, req.Currency, ts, req.Exempt)
	if err != nil {
		writeDomainError(w, "Failed to record payment", err)
		return
	}

	if !req.Distribute {
		writeJSON(w, http.StatusCreated, toPaymentDTO(*payment))
		return
	}

	result, err := h.Engine.DistributeCommission(r.Context(), payment.ID)
	if err != nil {
		writeDomainError(w, "Payment recorded but distribution failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, toDistributionDTO(result))
}

// GetPayment returns a single payment.
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	id := commission.PaymentID(chi.URLParam(r, "id"))

	payment, err := h.Engine.Store.Payment(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get payment", err)
		return
	}
	if payment == nil {
		writeError(w, http.StatusNotFound, "Payment not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(*payment))
}

// GetSkips returns the pass-up report for a payment: who was evaluated,
// who was not paid, and why.
func (h *Handler) GetSkips(w http.ResponseWriter, r *http.Request) {
	id := commission.PaymentID(chi.URLParam(r, "id"))

	skips, err := h.Engine.Store.SkipsByPayment(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list skips", err)
		return
	}
	writeJSON(w, http.StatusOK, toSkipDTOs(skips))
}

// Distribute runs commission distribution for a payment. Safe to call
// repeatedly; already-written levels are skipped.
func (h *Handler) Distribute(w http.ResponseWriter, r *http.Request) {
	id := commission.PaymentID(chi.URLParam(r, "id"))

	result, err := h.Engine.DistributeCommission(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Distribution failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toDistributionDTO(result))
}

// MarkExempt flags a payment as marketing-exempt. Does not touch entries
// already written; run the marketing fix sweep for that.
func (h *Handler) MarkExempt(w http.ResponseWriter, r *http.Request) {
	id := commission.PaymentID(chi.URLParam(r, "id"))

	if err := h.Engine.Store.MarkExempt(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to mark payment exempt", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toDistributionDTO(result *commission.DistributionResult) DistributionResultDTO {
	return DistributionResultDTO{
		PaymentID:   string(result.PaymentID),
		Entries:     toEntryDTOs(result.Entries),
		Skips:       toSkipDTOs(result.Skips),
		PassUpCount: result.PassUpCount,
		PassUpTotal: result.PassUpTotal.String(),
	}
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// Backfill re-runs distribution over historical payments and creates the
// entries the rules say should exist. Dry-run returns the same report
// without writing anything.
func (h *Handler) Backfill(w http.ResponseWriter, r *http.Request) {
	var req BackfillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	scope := commission.ScopeAll()
	if req.AccountID != "" {
		scope = commission.ScopeAccount(commission.AccountID(req.AccountID))
	}

	report, err := h.Engine.BackfillMissingCommissions(r.Context(), actorFrom(r), scope, req.DryRun)
	if err != nil {
		writeDomainError(w, "Backfill failed", err)
		return
	}
	writeJSON(w, http.StatusOK, BackfillReportDTO{
		Processed:   report.Processed,
		Created:     report.Created,
		Skipped:     report.Skipped,
		TotalAmount: report.TotalAmount.String(),
		DryRun:      req.DryRun,
	})
}

// Reverse writes compensating adjustments for commission entries, scoped
// to one account or (with the confirmation phrase) to everyone.
func (h *Handler) Reverse(w http.ResponseWriter, r *http.Request) {
	var req ReverseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	scope := commission.ScopeAll()
	if req.AccountID != "" {
		scope = commission.ScopeAccount(commission.AccountID(req.AccountID))
	}

	report, err := h.Engine.ReverseCommissions(r.Context(), actorFrom(r), scope, req.Reason, req.Confirm)
	if err != nil {
		writeDomainError(w, "Reversal failed", err)
		return
	}
	writeJSON(w, http.StatusOK, ReversalReportDTO{
		ReversedCount: report.ReversedCount,
		TotalAmount:   report.TotalAmount.String(),
		Adjustments:   toEntryDTOs(report.Adjustments),
	})
}

// Adjust applies a manual signed correction to an account's balance.
func (h *Handler) Adjust(w http.ResponseWriter, r *http.Request) {
	id := commission.AccountID(chi.URLParam(r, "id"))

	var req AdjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	balance, err := h.Engine.AdjustBalance(r.Context(), actorFrom(r), id, amount, req.Reason)
	if err != nil {
		writeDomainError(w, "Adjustment failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(balance))
}

func (h *Handler) writeFixReport(w http.ResponseWriter, report *commission.FixReport, err error) {
	if err != nil {
		writeDomainError(w, "Fix sweep failed", err)
		return
	}
	writeJSON(w, http.StatusOK, FixReportDTO{
		Count:       report.Count,
		TotalAmount: report.TotalAmount.String(),
		DryRun:      report.DryRun,
	})
}

// FixUnlock reverses commissions held by accounts that no longer meet the
// unlock requirement for the paid level.
func (h *Handler) FixUnlock(w http.ResponseWriter, r *http.Request) {
	var req FixRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	report, err := h.Engine.FixUnlockViolations(r.Context(), actorFrom(r), req.DryRun)
	h.writeFixReport(w, report, err)
}

// FixMarketing reverses commissions paid on marketing-exempt payments.
func (h *Handler) FixMarketing(w http.ResponseWriter, r *http.Request) {
	var req FixRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	report, err := h.Engine.FixMarketingFreeViolations(r.Context(), actorFrom(r), req.DryRun)
	h.writeFixReport(w, report, err)
}

// FixEarlyUnlock reverses commissions whose level was not unlocked at the
// moment of the underlying payment.
func (h *Handler) FixEarlyUnlock(w http.ResponseWriter, r *http.Request) {
	var req FixRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	report, err := h.Engine.FixEarlyUnlockViolations(r.Context(), actorFrom(r), req.LookbackDays, req.DryRun)
	h.writeFixReport(w, report, err)
}

// Release completes frozen entries whose hold period has elapsed. The
// scheduler does this on a timer; this endpoint forces it now.
func (h *Handler) Release(w http.ResponseWriter, r *http.Request) {
	released, err := h.Engine.ReleaseDue(r.Context(), time.Now().UTC())
	if err != nil {
		writeDomainError(w, "Release failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"released": released})
}

// =============================================================================
// AUDIT HANDLERS
// =============================================================================

// AuditBalances reports accounts whose cached balance drifts from the
// ledger-derived truth, and any negative balances.
func (h *Handler) AuditBalances(w http.ResponseWriter, r *http.Request) {
	findings, err := h.Engine.Auditor.AuditBalanceIntegrity(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Audit failed", err)
		return
	}

	dtos := make([]BalanceFindingDTO, len(findings))
	for i, f := range findings {
		dtos[i] = BalanceFindingDTO{
			AccountID: string(f.AccountID),
			Computed:  f.ComputedAvailable.String(),
			Stored:    f.StoredAvailable.String(),
			Diff:      f.Diff.String(),
			Negative:  f.Negative,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// AuditUnlock reports commissions held without the level requirement
// currently met, grouped per (account, structure, level).
func (h *Handler) AuditUnlock(w http.ResponseWriter, r *http.Request) {
	findings, err := h.Engine.Auditor.AuditUnlockViolations(r.Context(), h.Engine.Rules.Current())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Audit failed", err)
		return
	}

	dtos := make([]UnlockFindingDTO, len(findings))
	for i, f := range findings {
		ids := make([]string, len(f.EntryIDs))
		for j, id := range f.EntryIDs {
			ids[j] = string(id)
		}
		dtos[i] = UnlockFindingDTO{
			AccountID:         string(f.AccountID),
			Structure:         string(f.Structure),
			Level:             f.Level,
			ReferralsPresent:  f.ReferralsPresent,
			ReferralsRequired: f.ReferralsRequired,
			EntryIDs:          ids,
			Amount:            f.Amount.String(),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// AuditMarketing reports commissions paid on marketing-exempt payments.
func (h *Handler) AuditMarketing(w http.ResponseWriter, r *http.Request) {
	findings, err := h.Engine.Auditor.AuditMarketingFreeViolations(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Audit failed", err)
		return
	}

	dtos := make([]MarketingFindingDTO, len(findings))
	for i, f := range findings {
		dtos[i] = MarketingFindingDTO{
			EntryID:     string(f.EntryID),
			Beneficiary: string(f.Beneficiary),
			PaymentID:   string(f.PaymentID),
			Amount:      f.Amount.String(),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// AuditEarlyUnlock reports commissions whose level requirement was not met
// at payment time. Accepts ?lookback_days=N; 0 means the whole ledger.
func (h *Handler) AuditEarlyUnlock(w http.ResponseWriter, r *http.Request) {
	lookback, _ := strconv.Atoi(r.URL.Query().Get("lookback_days"))

	findings, err := h.Engine.Auditor.AuditEarlyUnlockViolations(r.Context(), h.Engine.Rules, lookback)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Audit failed", err)
		return
	}

	dtos := make([]EarlyUnlockFindingDTO, len(findings))
	for i, f := range findings {
		dtos[i] = EarlyUnlockFindingDTO{
			EntryID:            string(f.EntryID),
			Beneficiary:        string(f.Beneficiary),
			Level:              f.Level,
			Structure:          string(f.Structure),
			ReferralsAtPayment: f.ReferralsAtPayment,
			ReferralsRequired:  f.ReferralsRequired,
			Amount:             f.Amount.String(),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain error categories onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case commission.IsNotFound(err):
		status = http.StatusNotFound
	case commission.IsConflict(err):
		status = http.StatusConflict
	case commission.IsUnauthorized(err), errors.Is(err, commission.ErrConfirmationMismatch):
		status = http.StatusForbidden
	case commission.IsConfigError(err):
		status = http.StatusInternalServerError
	case isValidationError(err):
		status = http.StatusBadRequest
	}
	writeError(w, status, message, err)
}

func isValidationError(err error) bool {
	for _, candidate := range []error{
		commission.ErrEmptyReason,
		commission.ErrInsufficientBalance,
		commission.ErrSponsorCycle,
	} {
		if errors.Is(err, candidate) {
			return true
		}
	}
	return false
}
