package models

import (
	"time"

	"github.com/google/uuid"
)

// Account roles.
const (
	RoleAdmin  = "admin"
	RoleVendor = "vendor"
	// RoleSystem is never stored; it identifies background workers such as the reconciler.
	RoleSystem = "system"
)

// Account statuses. Only active vendors may hold or move funds.
const (
	AccountStatusPending   = "pending"
	AccountStatusActive    = "active"
	AccountStatusSuspended = "suspended"
)

// SystemAccountID is the identity used by background jobs.
var SystemAccountID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

type Account struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsActiveVendor reports whether the account may hold or move funds.
func (a *Account) IsActiveVendor() bool {
	return a.Role == RoleVendor && a.Status == AccountStatusActive
}

// ValidAccountStatus reports whether s is a known account status.
func ValidAccountStatus(s string) bool {
	switch s {
	case AccountStatusPending, AccountStatusActive, AccountStatusSuspended:
		return true
	}
	return false
}
