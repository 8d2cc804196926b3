package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/dravya/backend/internal/auth"
	"github.com/dravya/backend/internal/models"
)

// Identifier resolves a bearer token to the current identity.
type Identifier interface {
	Identify(ctx context.Context, token string) (auth.Identity, error)
}

// BearerAuth validates the Bearer token and places the caller's identity in
// the request context. Handlers read it back with auth.FromContext.
func BearerAuth(ids Identifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if raw == "" {
				writeError(w, http.StatusUnauthorized, "missing or malformed Authorization header")
				return
			}
			id, err := ids.Identify(r.Context(), raw)
			if err != nil {
				if errors.Is(err, models.ErrUnauthorized) {
					writeError(w, http.StatusUnauthorized, "invalid token")
					return
				}
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
		})
	}
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
