package topup

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/dravya/backend/internal/httpx"
	"github.com/dravya/backend/internal/money"
	"github.com/dravya/backend/internal/validation"
)

type SubmitRequest struct {
	Amount money.Amount `json:"amount"`
}

type Handler struct {
	svc       Service
	validator *validation.Validator
	log       *slog.Logger
}

func NewHandler(svc Service, v *validation.Validator, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, validator: v, log: log}
}

// Submit handles POST /topups.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Caller(w, r)
	if !ok {
		return
	}
	var req SubmitRequest
	if err := httpx.Decode(r, h.validator, validation.TopUpSubmit, &req); err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	out, err := h.svc.Submit(r.Context(), actor, req.Amount)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, out)
}

// Resolve handles POST /topups/{id}/resolve.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Caller(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "validation_failed", "invalid top-up id")
		return
	}
	var res Resolution
	if err := httpx.Decode(r, h.validator, validation.TopUpResolve, &res); err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	out, err := h.svc.Resolve(r.Context(), actor, id, res)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// Get handles GET /topups/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Caller(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "validation_failed", "invalid top-up id")
		return
	}
	out, err := h.svc.Get(r.Context(), actor, id)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// List handles GET /topups?status=&vendor_id=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Caller(w, r)
	if !ok {
		return
	}
	vendorID, ok := vendorParam(w, r)
	if !ok {
		return
	}
	f := ListFilter{VendorID: vendorID, Status: r.URL.Query().Get("status"), Page: httpx.Page(r)}
	list, total, err := h.svc.List(r.Context(), actor, f)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, httpx.NewPaged(list, total, f.Page))
}

// Stats handles GET /topups/stats?vendor_id=.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Caller(w, r)
	if !ok {
		return
	}
	vendorID, ok := vendorParam(w, r)
	if !ok {
		return
	}
	st, err := h.svc.Stats(r.Context(), actor, vendorID)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, st)
}

func vendorParam(w http.ResponseWriter, r *http.Request) (*uuid.UUID, bool) {
	v := r.URL.Query().Get("vendor_id")
	if v == "" {
		return nil, true
	}
	id, err := uuid.Parse(v)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "validation_failed", "invalid vendor_id")
		return nil, false
	}
	return &id, true
}
