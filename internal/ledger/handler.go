package ledger

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dravya/backend/internal/auth"
	"github.com/dravya/backend/internal/httpx"
	"github.com/dravya/backend/internal/models"
	"github.com/dravya/backend/internal/statement"
	"github.com/dravya/backend/internal/validation"
)

type Handler struct {
	svc Service
	log *slog.Logger
}

func NewHandler(svc Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

// walletFor resolves the wallet a request addresses: a vendor's own, or for
// admins the one named by ?vendor_id=.
func (h *Handler) walletFor(ctx context.Context, actor auth.Identity, r *http.Request) (*models.Wallet, error) {
	vendorID := actor.ID
	if raw := r.URL.Query().Get("vendor_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("vendor_id: %w", validation.ErrValidation)
		}
		vendorID = id
	} else if actor.IsAdmin() {
		return nil, fmt.Errorf("vendor_id is required: %w", validation.ErrValidation)
	}
	if !actor.CanView(vendorID) {
		return nil, fmt.Errorf("wallet of %s: %w", vendorID, models.ErrUnauthorized)
	}
	return h.svc.WalletForVendor(ctx, vendorID)
}

// Wallet handles GET /wallet.
func (h *Handler) Wallet(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Caller(w, r)
	if !ok {
		return
	}
	wallet, err := h.walletFor(r.Context(), actor, r)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, wallet)
}

// Entries handles GET /wallet/entries.
func (h *Handler) Entries(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Caller(w, r)
	if !ok {
		return
	}
	wallet, err := h.walletFor(r.Context(), actor, r)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	page := httpx.Page(r)
	entries, total, err := h.svc.Entries(r.Context(), wallet.ID, page)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, httpx.NewPaged(entries, total, page))
}

// Verify handles GET /admin/wallets/verify?vendor_id=.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Caller(w, r)
	if !ok {
		return
	}
	if err := actor.RequireAdmin(); err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	wallet, err := h.walletFor(r.Context(), actor, r)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	rep, err := h.svc.Verify(r.Context(), wallet.ID)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rep)
}

// Statement handles GET /wallet/statement.xlsx.
func (h *Handler) Statement(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Caller(w, r)
	if !ok {
		return
	}
	wallet, err := h.walletFor(r.Context(), actor, r)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	var buf bytes.Buffer
	if err := statement.Write(r.Context(), h.svc, wallet.ID, &buf); err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", statement.Filename(wallet, time.Now())))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.log.Warn("send statement", "wallet_id", wallet.ID, "error", err)
	}
}
