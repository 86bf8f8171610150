/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the back-office UI

ROUTE GROUPS:
  /api/accounts/*   Account lifecycle, balances, withdrawals
  /api/payments/*   Payment ingestion and distribution
  /api/admin/*      Backfill, reversal, fix sweeps (require X-Admin-ID)
  /api/audits/*     Read-only violation reports
  /healthz          Liveness probe

AUTHN NOTE:
  requireAdmin only checks that an actor identity is present. Verifying
  it belongs in a gateway in front of this service; the engine enforces
  the superadmin requirement on destructive operations regardless.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Admin-ID", "X-Admin-Role"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Account routes
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", h.ListAccounts)
			r.Post("/", h.RegisterAccount)
			r.Get("/{id}", h.GetAccount)
			r.Get("/{id}/balance", h.GetBalance)
			r.Get("/{id}/entries", h.GetEntries)
			r.Put("/{id}/subscription", h.SetSubscription)
			r.Post("/{id}/activation", h.SetActivation)
			r.Post("/{id}/withdraw", h.Withdraw)
			r.Post("/{id}/ban", h.SetBanned)
			r.Post("/{id}/archive", h.Archive)
			r.With(requireAdmin).Delete("/{id}", h.HardPurge)
		})

		// Payment routes
		r.Route("/payments", func(r chi.Router) {
			r.Post("/", h.RecordPayment)
			r.Get("/{id}", h.GetPayment)
			r.Get("/{id}/skips", h.GetSkips)
			r.Post("/{id}/distribute", h.Distribute)
			r.Post("/{id}/exempt", h.MarkExempt)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAdmin)
			r.Post("/backfill", h.Backfill)
			r.Post("/reverse", h.Reverse)
			r.Post("/accounts/{id}/adjust", h.Adjust)
			r.Post("/fix/unlock", h.FixUnlock)
			r.Post("/fix/marketing", h.FixMarketing)
			r.Post("/fix/early-unlock", h.FixEarlyUnlock)
			r.Post("/release", h.Release)
		})

		// Audit routes (read-only)
		r.Route("/audits", func(r chi.Router) {
			r.Get("/balances", h.AuditBalances)
			r.Get("/unlock", h.AuditUnlock)
			r.Get("/marketing", h.AuditMarketing)
			r.Get("/early-unlock", h.AuditEarlyUnlock)
		})
	})

	return r
}

// requireAdmin rejects requests with no actor identity. Role enforcement
// happens in the engine; this just keeps anonymous traffic out of the
// admin surface.
func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Admin-ID") == "" {
			writeError(w, http.StatusForbidden, "Admin identity required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
