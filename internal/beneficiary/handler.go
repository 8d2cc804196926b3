package beneficiary

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/dravya/backend/internal/auth"
	"github.com/dravya/backend/internal/httpx"
	"github.com/dravya/backend/internal/models"
	"github.com/dravya/backend/internal/validation"
)

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

// Create handles POST /beneficiaries.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Caller(w, r)
	if !ok {
		return
	}
	var req models.BeneficiaryDetails
	if err := httpx.Decode(r, h.validator, validation.Beneficiary, &req); err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	b, err := h.svc.Create(r.Context(), actor, req)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, b)
}

// List handles GET /beneficiaries?transfer_type=&is_active=&vendor_id=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Caller(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	f := ListFilter{TransferType: q.Get("transfer_type"), Page: httpx.Page(r)}
	if v := q.Get("is_active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			httpx.Fail(w, http.StatusBadRequest, "validation_failed", "is_active must be a boolean")
			return
		}
		f.Active = &active
	}
	if v := q.Get("vendor_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			httpx.Fail(w, http.StatusBadRequest, "validation_failed", "invalid vendor_id")
			return
		}
		f.VendorID = id
	}
	list, total, err := h.svc.List(r.Context(), actor, f)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, httpx.NewPaged(list, total, f.Page))
}

// Get handles GET /beneficiaries/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	h.withID(w, r, func(actor auth.Identity, id uuid.UUID) (any, error) {
		return h.svc.Get(r.Context(), actor, id)
	})
}

// Update handles PATCH /beneficiaries/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	h.withID(w, r, func(actor auth.Identity, id uuid.UUID) (any, error) {
		var p Patch
		if err := httpx.Decode(r, h.validator, validation.BeneficiaryPatch, &p); err != nil {
			return nil, err
		}
		return h.svc.Update(r.Context(), actor, id, p)
	})
}

// Activate handles POST /beneficiaries/{id}/activate.
func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	h.withID(w, r, func(actor auth.Identity, id uuid.UUID) (any, error) {
		return h.svc.Activate(r.Context(), actor, id)
	})
}

// Deactivate handles POST /beneficiaries/{id}/deactivate.
func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.withID(w, r, func(actor auth.Identity, id uuid.UUID) (any, error) {
		return h.svc.Deactivate(r.Context(), actor, id)
	})
}

// Delete handles DELETE /beneficiaries/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Caller(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "validation_failed", "invalid beneficiary id")
		return
	}
	if err := h.svc.Delete(r.Context(), actor, id); err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) withID(w http.ResponseWriter, r *http.Request, fn func(actor auth.Identity, id uuid.UUID) (any, error)) {
	actor, ok := httpx.Caller(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "validation_failed", "invalid beneficiary id")
		return
	}
	out, err := fn(actor, id)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}
