// Package store defines the unit of work every component writes through.
// repository.Postgres is the production implementation; Memory backs tests
// and single-process development runs.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dravya/backend/internal/models"
	"github.com/dravya/backend/internal/money"
)

// ErrVersionConflict is returned by UpdatePayout when the row changed since it was read.
var ErrVersionConflict = errors.New("payout version conflict")

// Store runs fn in a single transaction: every write inside fn commits or none does.
// Implementations must not be re-entered from inside fn.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of operations available inside a transaction.
type Tx interface {
	Accounts
	Wallets
	TopUps
	Beneficiaries
	Payouts
}

type Accounts interface {
	InsertAccount(ctx context.Context, a *models.Account) error
	GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*models.Account, error)
	// LockAccount reads the account and holds a write lock on it until the transaction ends.
	LockAccount(ctx context.Context, id uuid.UUID) (*models.Account, error)
	UpdateAccountStatus(ctx context.Context, id uuid.UUID, status string, at time.Time) error
	ListAccounts(ctx context.Context, f AccountFilter) ([]*models.Account, int, error)
	CountAccountsByStatus(ctx context.Context, role string) (map[string]int, error)
}

type Wallets interface {
	InsertWallet(ctx context.Context, w *models.Wallet) error
	GetWallet(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
	GetWalletByVendor(ctx context.Context, vendorID uuid.UUID) (*models.Wallet, error)
	// LockWallet reads the wallet and holds a write lock on it until the transaction ends.
	LockWallet(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
	UpdateWalletBalance(ctx context.Context, id uuid.UUID, balance money.Amount, at time.Time) error
	InsertEntry(ctx context.Context, e *models.LedgerEntry) error
	GetEntry(ctx context.Context, id uuid.UUID) (*models.LedgerEntry, error)
	GetReversalOf(ctx context.Context, entryID uuid.UUID) (*models.LedgerEntry, error)
	ListEntries(ctx context.Context, walletID uuid.UUID, page models.Page) ([]*models.LedgerEntry, int, error)
	SumEntries(ctx context.Context, walletID uuid.UUID) (money.Amount, error)
}

type TopUps interface {
	InsertTopUp(ctx context.Context, r *models.TopUpRequest) error
	GetTopUp(ctx context.Context, id uuid.UUID) (*models.TopUpRequest, error)
	LockTopUp(ctx context.Context, id uuid.UUID) (*models.TopUpRequest, error)
	UpdateTopUp(ctx context.Context, r *models.TopUpRequest) error
	ListTopUps(ctx context.Context, f TopUpFilter) ([]*models.TopUpRequest, int, error)
	TopUpStats(ctx context.Context, vendorID *uuid.UUID) (map[string]models.StatusTotal, error)
}

type Beneficiaries interface {
	InsertBeneficiary(ctx context.Context, b *models.Beneficiary) error
	GetBeneficiary(ctx context.Context, id uuid.UUID) (*models.Beneficiary, error)
	UpdateBeneficiary(ctx context.Context, b *models.Beneficiary) error
	DeleteBeneficiary(ctx context.Context, id uuid.UUID) error
	ListBeneficiaries(ctx context.Context, f BeneficiaryFilter) ([]*models.Beneficiary, int, error)
	CountPayoutsByBeneficiary(ctx context.Context, id uuid.UUID) (int, error)
}

type Payouts interface {
	// InsertPayout fails with models.ErrDuplicateReference when the merchant reference exists.
	InsertPayout(ctx context.Context, p *models.Payout) error
	GetPayoutByReference(ctx context.Context, ref string) (*models.Payout, error)
	LockPayout(ctx context.Context, ref string) (*models.Payout, error)
	// UpdatePayout writes p if its Version still matches the stored row and bumps p.Version.
	UpdatePayout(ctx context.Context, p *models.Payout) error
	ListPayouts(ctx context.Context, f PayoutFilter) ([]*models.Payout, int, error)
	ListUnresolvedPayouts(ctx context.Context, f UnresolvedFilter) ([]*models.Payout, error)
	PayoutStats(ctx context.Context, f PayoutStatsFilter) (map[string]models.StatusTotal, error)
	TopVendorsByPayout(ctx context.Context, since *time.Time, limit int) ([]VendorPayoutTotal, error)
}

type AccountFilter struct {
	Role   string
	Status string
	Page   models.Page
}

type TopUpFilter struct {
	VendorID *uuid.UUID
	Status   string
	Page     models.Page
}

type BeneficiaryFilter struct {
	VendorID     uuid.UUID
	TransferType string
	Active       *bool
	Page         models.Page
}

type PayoutFilter struct {
	VendorID     *uuid.UUID
	Status       string
	TransferType string
	NeedsReview  *bool
	Page         models.Page
}

// UnresolvedFilter selects pending, processing and unconfirmed payouts that are
// not flagged for review, were created before CreatedBefore and were last
// checked before CheckedBefore.
type UnresolvedFilter struct {
	CreatedBefore time.Time
	CheckedBefore time.Time
	Limit         int
}

type PayoutStatsFilter struct {
	VendorID *uuid.UUID
	Since    *time.Time
}

// VendorPayoutTotal aggregates successful payouts for one vendor.
type VendorPayoutTotal struct {
	VendorID uuid.UUID    `json:"vendor_id"`
	Email    string       `json:"email"`
	Count    int          `json:"transaction_count"`
	Amount   money.Amount `json:"total_amount"`
}
