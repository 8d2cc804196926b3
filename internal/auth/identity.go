package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dravya/backend/internal/models"
)

// Identity is the caller on whose behalf a ledger or payout operation runs.
// It is passed explicitly into every service call.
type Identity struct {
	ID     uuid.UUID `json:"id"`
	Role   string    `json:"role"`
	Status string    `json:"status"`
}

// System is the identity background jobs act under.
func System() Identity {
	return Identity{ID: models.SystemAccountID, Role: models.RoleSystem, Status: models.AccountStatusActive}
}

func IdentityOf(a *models.Account) Identity {
	return Identity{ID: a.ID, Role: a.Role, Status: a.Status}
}

func (i Identity) IsAdmin() bool  { return i.Role == models.RoleAdmin }
func (i Identity) IsSystem() bool { return i.Role == models.RoleSystem }

// RequireAdmin fails unless the caller is an admin.
func (i Identity) RequireAdmin() error {
	if !i.IsAdmin() {
		return fmt.Errorf("admin role required: %w", models.ErrUnauthorized)
	}
	return nil
}

// RequireActiveVendor fails unless the caller is vendorID itself and active.
func (i Identity) RequireActiveVendor(vendorID uuid.UUID) error {
	if i.Role != models.RoleVendor || i.ID != vendorID {
		return fmt.Errorf("vendor may only act on own wallet: %w", models.ErrUnauthorized)
	}
	if i.Status != models.AccountStatusActive {
		return fmt.Errorf("vendor is %s: %w", i.Status, models.ErrUnauthorized)
	}
	return nil
}

// CanView reports whether the caller may read records owned by vendorID.
func (i Identity) CanView(vendorID uuid.UUID) bool {
	return i.IsAdmin() || i.IsSystem() || i.ID == vendorID
}

type contextKey string

const ctxIdentityKey contextKey = "identity"

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxIdentityKey, id)
}

// FromContext returns the identity set by the bearer middleware.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxIdentityKey).(Identity)
	return id, ok
}
