package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Mr-Geneza/MG-Market-sub000/commission"
	memstore "github.com/Mr-Geneza/MG-Market-sub000/commission/store"
)

// =============================================================================
// TEST HARNESS
// =============================================================================

func newTestRouter(t *testing.T) *chi.Mux {
	t.Helper()
	engine := commission.NewEngine(memstore.NewMemory(),
		commission.NewRuleSet(commission.DefaultRuleTable()), zap.NewNop())
	return NewRouter(NewHandler(engine, zap.NewNop()), []string{"http://localhost"})
}

func doJSON(t *testing.T, router *chi.Mux, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

var superadminHeaders = map[string]string{
	"X-Admin-ID":   "root-admin",
	"X-Admin-Role": "superadmin",
}

// seedUpline registers "upline" with a year-long subscription and "payer"
// sponsored under it, so a January payment by payer earns upline level 1.
func seedUpline(t *testing.T, router *chi.Mux) {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/accounts", RegisterAccountRequest{
		ID: "upline", RegisteredAt: "2024-01-15T00:00:00Z",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPut, "/api/accounts/upline/subscription", SubscriptionRequest{
		From: "2025-01-01T00:00:00Z", Until: "2026-01-01T00:00:00Z",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/accounts", RegisterAccountRequest{
		ID: "payer", SponsorID: "upline", RegisteredAt: "2024-06-15T00:00:00Z",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func TestHealthz(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegisterAccount(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/accounts", RegisterAccountRequest{
		ID: "member", RegisteredAt: "2025-01-15T00:00:00Z",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	dto := decodeBody[AccountDTO](t, rec)
	assert.Equal(t, "member", dto.ID)
	assert.Empty(t, dto.SponsorID)
	assert.Equal(t, "2025-01-15T00:00:00Z", dto.RegisteredAt)

	// Missing id is a validation error.
	rec = doJSON(t, router, http.MethodPost, "/api/accounts", RegisterAccountRequest{}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown sponsor maps to 404.
	rec = doJSON(t, router, http.MethodPost, "/api/accounts", RegisterAccountRequest{
		ID: "orphan", SponsorID: "ghost",
	}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetAccount_NotFound(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/accounts/ghost", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	body := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "Account not found", body.Error)
}

// =============================================================================
// PAYMENTS AND DISTRIBUTION
// =============================================================================

func TestRecordPaymentAndDistribute(t *testing.T) {
	// GIVEN: A subscribed upline and its referral
	// WHEN: Recording a $100 payment with same-call distribution
	// THEN: The upline earns a frozen level-1 commission of $10

	router := newTestRouter(t)
	seedUpline(t, router)

	rec := doJSON(t, router, http.MethodPost, "/api/payments", RecordPaymentRequest{
		ID: "pay-1", Payer: "payer", Structure: "a", Amount: "100",
		Currency: "USD", Timestamp: "2025-01-15T12:00:00Z", Distribute: true,
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	result := decodeBody[DistributionResultDTO](t, rec)
	assert.Equal(t, "pay-1", result.PaymentID)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, "upline", result.Entries[0].Owner)
	assert.Equal(t, "10", result.Entries[0].Amount)
	assert.Equal(t, "frozen", result.Entries[0].Status)
	assert.Equal(t, 1, result.Entries[0].Level)

	rec = doJSON(t, router, http.MethodGet, "/api/accounts/upline/balance", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	balance := decodeBody[BalanceDTO](t, rec)
	assert.Equal(t, "10", balance.Frozen)
	assert.Equal(t, "0", balance.Available)

	// Re-distribution is a no-op, not an error.
	rec = doJSON(t, router, http.MethodPost, "/api/payments/pay-1/distribute", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	result = decodeBody[DistributionResultDTO](t, rec)
	assert.Empty(t, result.Entries)
}

func TestRecordPayment_Validation(t *testing.T) {
	router := newTestRouter(t)
	seedUpline(t, router)

	rec := doJSON(t, router, http.MethodPost, "/api/payments", RecordPaymentRequest{
		Payer: "payer", Structure: "premium", Amount: "100",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/payments", RecordPaymentRequest{
		Payer: "payer", Structure: "a", Amount: "-5",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/payments", RecordPaymentRequest{
		Payer: "ghost", Structure: "a", Amount: "100",
	}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDistribute_UnknownPayment(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/payments/ghost/distribute", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWithdraw_Insufficient(t *testing.T) {
	router := newTestRouter(t)
	seedUpline(t, router)

	rec := doJSON(t, router, http.MethodPost, "/api/accounts/upline/withdraw", WithdrawRequest{
		Amount: "50",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// ADMIN SURFACE
// =============================================================================

func TestAdminRoutes_RequireIdentity(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/admin/backfill", BackfillRequest{DryRun: true}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/api/accounts/member", PurgeRequest{}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminRoutes_RequireSuperadminRole(t *testing.T) {
	// Identity present but not superadmin: the engine rejects it.
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/admin/backfill", BackfillRequest{DryRun: true},
		map[string]string{"X-Admin-ID": "helpdesk", "X-Admin-Role": "admin"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestReverse_MassScopePhraseMismatch(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/admin/reverse", ReverseRequest{
		Reason: "cleanup", Confirm: "reverse all",
	}, superadminHeaders)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestBackfillEndpoint_DryRun(t *testing.T) {
	// GIVEN: A never-distributed payment
	// WHEN: Running a dry-run backfill, then a committed one
	// THEN: Both report one missing entry; only the commit writes it

	router := newTestRouter(t)
	seedUpline(t, router)

	rec := doJSON(t, router, http.MethodPost, "/api/payments", RecordPaymentRequest{
		ID: "pay-1", Payer: "payer", Structure: "a", Amount: "100",
		Timestamp: "2025-01-15T12:00:00Z",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/admin/backfill",
		BackfillRequest{DryRun: true}, superadminHeaders)
	require.Equal(t, http.StatusOK, rec.Code)
	report := decodeBody[BackfillReportDTO](t, rec)
	assert.Equal(t, 1, report.Created)
	assert.True(t, report.DryRun)

	rec = doJSON(t, router, http.MethodGet, "/api/accounts/upline/balance", nil, nil)
	balance := decodeBody[BalanceDTO](t, rec)
	assert.Equal(t, "0", balance.Frozen)

	rec = doJSON(t, router, http.MethodPost, "/api/admin/backfill",
		BackfillRequest{DryRun: false}, superadminHeaders)
	require.Equal(t, http.StatusOK, rec.Code)
	report = decodeBody[BackfillReportDTO](t, rec)
	assert.Equal(t, 1, report.Created)

	rec = doJSON(t, router, http.MethodGet, "/api/accounts/upline/balance", nil, nil)
	balance = decodeBody[BalanceDTO](t, rec)
	assert.Equal(t, "10", balance.Frozen)
}

func TestAdjustEndpoint(t *testing.T) {
	router := newTestRouter(t)
	seedUpline(t, router)

	rec := doJSON(t, router, http.MethodPost, "/api/admin/accounts/upline/adjust", AdjustRequest{
		Amount: "25.50", Reason: "promo credit",
	}, superadminHeaders)
	require.Equal(t, http.StatusOK, rec.Code)
	balance := decodeBody[BalanceDTO](t, rec)
	assert.Equal(t, "25.5", balance.Available)

	// Reason is mandatory.
	rec = doJSON(t, router, http.MethodPost, "/api/admin/accounts/upline/adjust", AdjustRequest{
		Amount: "1",
	}, superadminHeaders)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// AUDITS
// =============================================================================

func TestAuditMarketingEndpoint(t *testing.T) {
	// GIVEN: A distributed payment retroactively marked exempt
	// WHEN: Running the marketing audit
	// THEN: The paid commission is reported

	router := newTestRouter(t)
	seedUpline(t, router)

	rec := doJSON(t, router, http.MethodPost, "/api/payments", RecordPaymentRequest{
		ID: "pay-1", Payer: "payer", Structure: "a", Amount: "100",
		Timestamp: "2025-01-15T12:00:00Z", Distribute: true,
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/payments/pay-1/exempt", nil, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/audits/marketing", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	findings := decodeBody[[]MarketingFindingDTO](t, rec)
	require.Len(t, findings, 1)
	assert.Equal(t, "upline", findings[0].Beneficiary)
	assert.Equal(t, "pay-1", findings[0].PaymentID)
	assert.Equal(t, "10", findings[0].Amount)
}
