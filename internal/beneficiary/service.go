package beneficiary

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dravya/backend/internal/auth"
	"github.com/dravya/backend/internal/models"
	"github.com/dravya/backend/internal/store"
	"github.com/dravya/backend/internal/validation"
)

// Patch carries the fields of an update; nil leaves a field unchanged.
type Patch struct {
	Name          *string `json:"name"`
	Phone         *string `json:"phone_number"`
	TransferType  *string `json:"transfer_type"`
	VPA           *string `json:"vpa_address"`
	AccountNumber *string `json:"account_number"`
	IFSC          *string `json:"ifsc"`
	BankName      *string `json:"bank_name"`
}

func (p Patch) apply(d models.BeneficiaryDetails) models.BeneficiaryDetails {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&d.Name, p.Name)
	set(&d.Phone, p.Phone)
	set(&d.TransferType, p.TransferType)
	set(&d.VPA, p.VPA)
	set(&d.AccountNumber, p.AccountNumber)
	set(&d.IFSC, p.IFSC)
	set(&d.BankName, p.BankName)
	return d
}

type ListFilter struct {
	// VendorID is only honoured for admins; vendors always list their own.
	VendorID     uuid.UUID
	TransferType string
	Active       *bool
	Page         models.Page
}

type Service interface {
	Create(ctx context.Context, actor auth.Identity, d models.BeneficiaryDetails) (*models.Beneficiary, error)
	Update(ctx context.Context, actor auth.Identity, id uuid.UUID, p Patch) (*models.Beneficiary, error)
	Get(ctx context.Context, actor auth.Identity, id uuid.UUID) (*models.Beneficiary, error)
	List(ctx context.Context, actor auth.Identity, f ListFilter) ([]*models.Beneficiary, int, error)
	Activate(ctx context.Context, actor auth.Identity, id uuid.UUID) (*models.Beneficiary, error)
	Deactivate(ctx context.Context, actor auth.Identity, id uuid.UUID) (*models.Beneficiary, error)
	// Delete fails with ErrBeneficiaryInUse once any payout references the
	// beneficiary; deactivate it instead.
	Delete(ctx context.Context, actor auth.Identity, id uuid.UUID) error
}

type service struct {
	store store.Store
	log   *slog.Logger
	now   func() time.Time
}

func NewService(st store.Store, log *slog.Logger) Service {
	if log == nil {
		log = slog.Default()
	}
	return &service{store: st, log: log, now: time.Now}
}

var _ Service = (*service)(nil)

// requireOwner allows writes by the owning vendor unless it is suspended.
func requireOwner(actor auth.Identity, vendorID uuid.UUID) error {
	if actor.Role != models.RoleVendor || actor.ID != vendorID {
		return fmt.Errorf("beneficiary belongs to another vendor: %w", models.ErrUnauthorized)
	}
	if actor.Status == models.AccountStatusSuspended {
		return fmt.Errorf("vendor is suspended: %w", models.ErrUnauthorized)
	}
	return nil
}

func (s *service) Create(ctx context.Context, actor auth.Identity, d models.BeneficiaryDetails) (*models.Beneficiary, error) {
	if err := requireOwner(actor, actor.ID); err != nil {
		return nil, err
	}
	d = Normalize(d)
	if err := Validate(d); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	b := &models.Beneficiary{
		ID:                 uuid.New(),
		VendorID:           actor.ID,
		BeneficiaryDetails: d,
		Active:             true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.store.InTx(ctx, func(tx store.Tx) error { return tx.InsertBeneficiary(ctx, b) }); err != nil {
		return nil, fmt.Errorf("create beneficiary: %w", err)
	}
	s.log.Info("beneficiary created", "beneficiary_id", b.ID, "vendor_id", b.VendorID, "transfer_type", d.TransferType)
	return b, nil
}

// Update re-validates the merged record as a whole, so switching rails must
// also clear the other rail's fields.
func (s *service) Update(ctx context.Context, actor auth.Identity, id uuid.UUID, p Patch) (*models.Beneficiary, error) {
	return s.mutate(ctx, actor, id, func(b *models.Beneficiary) (bool, error) {
		next := Normalize(p.apply(b.BeneficiaryDetails))
		if err := Validate(next); err != nil {
			return false, err
		}
		b.BeneficiaryDetails = next
		return true, nil
	})
}

func (s *service) Activate(ctx context.Context, actor auth.Identity, id uuid.UUID) (*models.Beneficiary, error) {
	return s.setActive(ctx, actor, id, true)
}

func (s *service) Deactivate(ctx context.Context, actor auth.Identity, id uuid.UUID) (*models.Beneficiary, error) {
	return s.setActive(ctx, actor, id, false)
}

// setActive is idempotent: toggling to the current state writes nothing.
func (s *service) setActive(ctx context.Context, actor auth.Identity, id uuid.UUID, active bool) (*models.Beneficiary, error) {
	return s.mutate(ctx, actor, id, func(b *models.Beneficiary) (bool, error) {
		if b.Active == active {
			return false, nil
		}
		b.Active = active
		return true, nil
	})
}

func (s *service) mutate(ctx context.Context, actor auth.Identity, id uuid.UUID, fn func(b *models.Beneficiary) (bool, error)) (*models.Beneficiary, error) {
	var out *models.Beneficiary
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		b, err := tx.GetBeneficiary(ctx, id)
		if err != nil {
			return err
		}
		if err := requireOwner(actor, b.VendorID); err != nil {
			return err
		}
		changed, err := fn(b)
		if err != nil {
			return err
		}
		out = b
		if !changed {
			return nil
		}
		b.UpdatedAt = s.now().UTC()
		return tx.UpdateBeneficiary(ctx, b)
	})
	if err != nil {
		return nil, fmt.Errorf("beneficiary %s: %w", id, err)
	}
	return out, nil
}

func (s *service) Get(ctx context.Context, actor auth.Identity, id uuid.UUID) (*models.Beneficiary, error) {
	var b *models.Beneficiary
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		b, err = tx.GetBeneficiary(ctx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("beneficiary %s: %w", id, err)
	}
	if !actor.CanView(b.VendorID) {
		return nil, fmt.Errorf("beneficiary %s: %w", id, models.ErrUnauthorized)
	}
	return b, nil
}

func (s *service) List(ctx context.Context, actor auth.Identity, f ListFilter) ([]*models.Beneficiary, int, error) {
	vendorID := actor.ID
	if actor.IsAdmin() {
		if f.VendorID == uuid.Nil {
			return nil, 0, fmt.Errorf("admin listing requires vendor_id: %w", validation.ErrValidation)
		}
		vendorID = f.VendorID
	}
	var list []*models.Beneficiary
	var total int
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		list, total, err = tx.ListBeneficiaries(ctx, store.BeneficiaryFilter{
			VendorID:     vendorID,
			TransferType: f.TransferType,
			Active:       f.Active,
			Page:         f.Page,
		})
		return err
	})
	return list, total, err
}

func (s *service) Delete(ctx context.Context, actor auth.Identity, id uuid.UUID) error {
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		b, err := tx.GetBeneficiary(ctx, id)
		if err != nil {
			return err
		}
		if err := requireOwner(actor, b.VendorID); err != nil {
			return err
		}
		n, err := tx.CountPayoutsByBeneficiary(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%d payouts reference it: %w", n, models.ErrBeneficiaryInUse)
		}
		return tx.DeleteBeneficiary(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("delete beneficiary %s: %w", id, err)
	}
	s.log.Info("beneficiary deleted", "beneficiary_id", id, "vendor_id", actor.ID)
	return nil
}
