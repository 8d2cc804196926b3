// Package httpx holds the JSON request and response helpers shared by handlers.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dravya/backend/internal/auth"
	"github.com/dravya/backend/internal/models"
	"github.com/dravya/backend/internal/money"
	"github.com/dravya/backend/internal/store"
	"github.com/dravya/backend/internal/validation"
)

const maxBody = 1 << 20

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Fail writes a JSON error with the given status and code.
func Fail(w http.ResponseWriter, status int, code, msg string) {
	WriteJSON(w, status, errorBody{Error: msg, Code: code})
}

var kinds = []struct {
	err    error
	status int
	code   string
}{
	{validation.ErrValidation, http.StatusBadRequest, "validation_failed"},
	{money.ErrMalformed, http.StatusUnprocessableEntity, "invalid_amount"},
	{models.ErrInvalidAmount, http.StatusUnprocessableEntity, "invalid_amount"},
	{models.ErrInsufficientFunds, http.StatusUnprocessableEntity, "insufficient_funds"},
	{models.ErrIncompleteBeneficiary, http.StatusUnprocessableEntity, "incomplete_beneficiary"},
	{models.ErrInvalidBeneficiary, http.StatusUnprocessableEntity, "invalid_beneficiary"},
	{models.ErrModeMismatch, http.StatusUnprocessableEntity, "mode_mismatch"},
	{models.ErrBeneficiaryInactive, http.StatusUnprocessableEntity, "beneficiary_inactive"},
	{models.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{models.ErrAlreadyResolved, http.StatusConflict, "already_resolved"},
	{models.ErrAlreadyReversed, http.StatusConflict, "already_reversed"},
	{models.ErrDuplicateReference, http.StatusConflict, "duplicate_reference"},
	{models.ErrBeneficiaryInUse, http.StatusConflict, "beneficiary_in_use"},
	{models.ErrDuplicateEmail, http.StatusConflict, "duplicate_email"},
	{store.ErrVersionConflict, http.StatusConflict, "version_conflict"},
	{models.ErrNotFound, http.StatusNotFound, "not_found"},
	{models.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{models.ErrUnauthorized, http.StatusForbidden, "unauthorized"},
	{models.ErrProviderUnreachable, http.StatusBadGateway, "provider_unreachable"},
	{models.ErrProviderRejected, http.StatusBadGateway, "provider_rejected"},
}

// Status maps a domain error to its HTTP status and code.
func Status(err error) (int, string) {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.status, k.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

// Error writes err using Status. Unexpected errors are logged and masked.
func Error(w http.ResponseWriter, log *slog.Logger, err error) {
	status, code := Status(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error("request failed", "error", err)
		msg = "internal error"
	}
	Fail(w, status, code, msg)
}

// ReadBody reads at most 1 MiB of the request body.
func ReadBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", validation.ErrValidation, err)
	}
	return body, nil
}

// Decode validates the body against schema and unmarshals it into dst.
func Decode(r *http.Request, v *validation.Validator, schema string, dst any) error {
	body, err := ReadBody(r)
	if err != nil {
		return err
	}
	if err := v.Validate(schema, body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: %v", validation.ErrValidation, err)
	}
	return nil
}

// Caller returns the identity placed in the context by the bearer middleware.
// It writes 401 and returns false when there is none.
func Caller(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		Fail(w, http.StatusUnauthorized, "unauthenticated", "missing or invalid bearer token")
		return auth.Identity{}, false
	}
	return id, true
}

// Page reads ?page= and ?limit=.
func Page(r *http.Request) models.Page {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	return models.Page{Page: page, Limit: limit}.Normalize()
}

// Paged is the envelope for list responses.
type Paged[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

func NewPaged[T any](items []T, total int, p models.Page) Paged[T] {
	if items == nil {
		items = []T{}
	}
	return Paged[T]{Items: items, Total: total, Page: p.Page, Limit: p.Limit}
}
