package payout

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/dravya/backend/internal/httpx"
	"github.com/dravya/backend/internal/models"
	"github.com/dravya/backend/internal/validation"
)

type Handler struct {
	engine    Engine
	validator *validation.Validator
	log       *slog.Logger
}

func NewHandler(e Engine, v *validation.Validator, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{engine: e, validator: v, log: log}
}

// providerFailure carries the reversed payout alongside the error so the
// client can show the failed record.
type providerFailure struct {
	Error  string         `json:"error"`
	Code   string         `json:"code"`
	Payout *models.Payout `json:"payout,omitempty"`
}

func (h *Handler) fail(w http.ResponseWriter, p *models.Payout, err error) {
	if p != nil && (errors.Is(err, models.ErrProviderUnreachable) || errors.Is(err, models.ErrProviderRejected)) {
		status, code := httpx.Status(err)
		httpx.WriteJSON(w, status, providerFailure{Error: err.Error(), Code: code, Payout: p})
		return
	}
	httpx.Error(w, h.log, err)
}

// Initiate handles POST /payouts.
func (h *Handler) Initiate(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Caller(w, r)
	if !ok {
		return
	}
	var req InitiateRequest
	if err := httpx.Decode(r, h.validator, validation.PayoutInitiate, &req); err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	p, err := h.engine.Initiate(r.Context(), actor, req)
	if err != nil {
		h.fail(w, p, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, p)
}

// List handles GET /payouts?status=&transfer_type=&needs_review=&vendor_id=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Caller(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	f := ListFilter{Status: q.Get("status"), TransferType: q.Get("transfer_type"), Page: httpx.Page(r)}
	if f.Status != "" && !models.ValidPayoutStatus(f.Status) {
		httpx.Fail(w, http.StatusBadRequest, "validation_failed", "unknown status")
		return
	}
	if v := q.Get("needs_review"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			httpx.Fail(w, http.StatusBadRequest, "validation_failed", "needs_review must be a boolean")
			return
		}
		f.NeedsReview = &b
	}
	if v := q.Get("vendor_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			httpx.Fail(w, http.StatusBadRequest, "validation_failed", "invalid vendor_id")
			return
		}
		f.VendorID = &id
	}
	list, total, err := h.engine.List(r.Context(), actor, f)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, httpx.NewPaged(list, total, f.Page))
}

// Get handles GET /payouts/{ref}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Caller(w, r)
	if !ok {
		return
	}
	p, err := h.engine.Get(r.Context(), actor, mux.Vars(r)["ref"])
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

// CheckStatus handles POST /payouts/{ref}/status.
func (h *Handler) CheckStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Caller(w, r)
	if !ok {
		return
	}
	p, err := h.engine.CheckStatus(r.Context(), actor, mux.Vars(r)["ref"])
	if err != nil {
		h.fail(w, p, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

// Stats handles GET /payouts/stats?vendor_id=&since=.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Caller(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	var vendorID *uuid.UUID
	if v := q.Get("vendor_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			httpx.Fail(w, http.StatusBadRequest, "validation_failed", "invalid vendor_id")
			return
		}
		vendorID = &id
	}
	var since *time.Time
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httpx.Fail(w, http.StatusBadRequest, "validation_failed", "since must be RFC 3339")
			return
		}
		since = &t
	}
	st, err := h.engine.Stats(r.Context(), actor, vendorID, since)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, st)
}

// ProviderBalance handles GET /admin/provider/balance.
func (h *Handler) ProviderBalance(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Caller(w, r)
	if !ok {
		return
	}
	b, err := h.engine.ProviderBalance(r.Context(), actor)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, b)
}
