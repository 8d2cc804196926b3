package router

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dravya/backend/internal/auth"
	"github.com/dravya/backend/internal/beneficiary"
	"github.com/dravya/backend/internal/dashboard"
	"github.com/dravya/backend/internal/httpx"
	"github.com/dravya/backend/internal/ledger"
	"github.com/dravya/backend/internal/middleware"
	"github.com/dravya/backend/internal/payout"
	"github.com/dravya/backend/internal/topup"
	"github.com/dravya/backend/internal/vendor"
)

// Handlers groups every HTTP handler the API serves.
type Handlers struct {
	Auth          *auth.Handler
	Wallet        *ledger.Handler
	TopUps        *topup.Handler
	Beneficiaries *beneficiary.Handler
	Payouts       *payout.Handler
	Vendors       *vendor.Handler
	Dashboard     *dashboard.Handler
}

// New returns an http.Handler that serves the API under /api/v1 plus
// /metrics and /health.
func New(h Handlers, ids middleware.Identifier, limiter *middleware.RateLimiter) http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.Instrument)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/health", health).Methods(http.MethodGet)

	base := r.PathPrefix("/api/v1").Subrouter()

	public := base.PathPrefix("/auth").Subrouter()
	public.Use(limiter.Limit)
	public.HandleFunc("/register", h.Auth.Register).Methods(http.MethodPost)
	public.HandleFunc("/login", h.Auth.Login).Methods(http.MethodPost)

	api := base.NewRoute().Subrouter()
	api.Use(middleware.BearerAuth(ids), limiter.Limit)

	api.HandleFunc("/me", h.Dashboard.GetMe).Methods(http.MethodGet)

	api.HandleFunc("/wallet", h.Wallet.Wallet).Methods(http.MethodGet)
	api.HandleFunc("/wallet/entries", h.Wallet.Entries).Methods(http.MethodGet)
	api.HandleFunc("/wallet/statement.xlsx", h.Wallet.Statement).Methods(http.MethodGet)

	api.HandleFunc("/topups", h.TopUps.Submit).Methods(http.MethodPost)
	api.HandleFunc("/topups", h.TopUps.List).Methods(http.MethodGet)
	api.HandleFunc("/topups/stats", h.TopUps.Stats).Methods(http.MethodGet)
	api.HandleFunc("/topups/{id}", h.TopUps.Get).Methods(http.MethodGet)
	api.HandleFunc("/topups/{id}/resolve", h.TopUps.Resolve).Methods(http.MethodPost)

	api.HandleFunc("/beneficiaries", h.Beneficiaries.Create).Methods(http.MethodPost)
	api.HandleFunc("/beneficiaries", h.Beneficiaries.List).Methods(http.MethodGet)
	api.HandleFunc("/beneficiaries/{id}", h.Beneficiaries.Get).Methods(http.MethodGet)
	api.HandleFunc("/beneficiaries/{id}", h.Beneficiaries.Update).Methods(http.MethodPatch)
	api.HandleFunc("/beneficiaries/{id}", h.Beneficiaries.Delete).Methods(http.MethodDelete)
	api.HandleFunc("/beneficiaries/{id}/activate", h.Beneficiaries.Activate).Methods(http.MethodPost)
	api.HandleFunc("/beneficiaries/{id}/deactivate", h.Beneficiaries.Deactivate).Methods(http.MethodPost)

	api.HandleFunc("/payouts", h.Payouts.Initiate).Methods(http.MethodPost)
	api.HandleFunc("/payouts", h.Payouts.List).Methods(http.MethodGet)
	api.HandleFunc("/payouts/stats", h.Payouts.Stats).Methods(http.MethodGet)
	api.HandleFunc("/payouts/{ref}", h.Payouts.Get).Methods(http.MethodGet)
	api.HandleFunc("/payouts/{ref}/status", h.Payouts.CheckStatus).Methods(http.MethodPost)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/dashboard", h.Dashboard.Overview).Methods(http.MethodGet)
	admin.HandleFunc("/provider/balance", h.Payouts.ProviderBalance).Methods(http.MethodGet)
	admin.HandleFunc("/wallets/verify", h.Wallet.Verify).Methods(http.MethodGet)
	admin.HandleFunc("/vendors", h.Vendors.List).Methods(http.MethodGet)
	admin.HandleFunc("/vendors/stats", h.Vendors.Counts).Methods(http.MethodGet)
	admin.HandleFunc("/vendors/{id}", h.Vendors.Get).Methods(http.MethodGet)
	admin.HandleFunc("/vendors/{id}/approve", h.Vendors.Action(vendor.ActionApprove)).Methods(http.MethodPost)
	admin.HandleFunc("/vendors/{id}/suspend", h.Vendors.Action(vendor.ActionSuspend)).Methods(http.MethodPost)
	admin.HandleFunc("/vendors/{id}/activate", h.Vendors.Action(vendor.ActionActivate)).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httpx.Fail(w, http.StatusNotFound, "not_found", "no such route")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httpx.Fail(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
