package beneficiary

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dravya/backend/internal/auth"
	"github.com/dravya/backend/internal/models"
	"github.com/dravya/backend/internal/money"
	"github.com/dravya/backend/internal/store"
)

func vendor(status string) auth.Identity {
	return auth.Identity{ID: uuid.New(), Role: models.RoleVendor, Status: status}
}

func TestService_CreateAndGet(t *testing.T) {
	svc := NewService(store.NewMemory(), nil)
	ctx := context.Background()
	v := vendor(models.AccountStatusActive)

	b, err := svc.Create(ctx, v, upi())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !b.Active || b.VendorID != v.ID {
		t.Fatalf("unexpected beneficiary %+v", b)
	}

	if _, err := svc.Get(ctx, v, b.ID); err != nil {
		t.Errorf("owner Get: %v", err)
	}
	if _, err := svc.Get(ctx, vendor(models.AccountStatusActive), b.ID); !errors.Is(err, models.ErrUnauthorized) {
		t.Errorf("other vendor Get: expected ErrUnauthorized, got %v", err)
	}
	admin := auth.Identity{ID: uuid.New(), Role: models.RoleAdmin}
	if _, err := svc.Get(ctx, admin, b.ID); err != nil {
		t.Errorf("admin Get: %v", err)
	}
}

func TestService_CreateRejectsIncompleteUPI(t *testing.T) {
	svc := NewService(store.NewMemory(), nil)
	d := upi()
	d.VPA = ""
	_, err := svc.Create(context.Background(), vendor(models.AccountStatusActive), d)
	if !errors.Is(err, models.ErrIncompleteBeneficiary) {
		t.Fatalf("expected ErrIncompleteBeneficiary, got %v", err)
	}
}

func TestService_SuspendedVendorCannotWrite(t *testing.T) {
	svc := NewService(store.NewMemory(), nil)
	_, err := svc.Create(context.Background(), vendor(models.AccountStatusSuspended), upi())
	if !errors.Is(err, models.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestService_UpdateRevalidatesWholeRecord(t *testing.T) {
	svc := NewService(store.NewMemory(), nil)
	ctx := context.Background()
	v := vendor(models.AccountStatusActive)
	b, _ := svc.Create(ctx, v, upi())

	imps := models.TransferIMPS
	if _, err := svc.Update(ctx, v, b.ID, Patch{TransferType: &imps}); !errors.Is(err, models.ErrIncompleteBeneficiary) {
		t.Fatalf("switching rail without bank fields: expected ErrIncompleteBeneficiary, got %v", err)
	}

	acct, ifsc, bankName, empty := "001234567890", "sbin0000123", "SBI", ""
	got, err := svc.Update(ctx, v, b.ID, Patch{TransferType: &imps, AccountNumber: &acct, IFSC: &ifsc, BankName: &bankName, VPA: &empty})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.IFSC != "SBIN0000123" || got.VPA != "" || got.TransferType != models.TransferIMPS {
		t.Errorf("unexpected updated record %+v", got.BeneficiaryDetails)
	}
}

func TestService_ActivateDeactivateIdempotent(t *testing.T) {
	svc := NewService(store.NewMemory(), nil)
	ctx := context.Background()
	v := vendor(models.AccountStatusActive)
	b, _ := svc.Create(ctx, v, upi())

	for i := 0; i < 2; i++ {
		got, err := svc.Deactivate(ctx, v, b.ID)
		if err != nil || got.Active {
			t.Fatalf("Deactivate #%d: active=%v err=%v", i, got != nil && got.Active, err)
		}
	}
	got, err := svc.Activate(ctx, v, b.ID)
	if err != nil || !got.Active {
		t.Fatalf("Activate: %v", err)
	}

	inactive := false
	list, total, _ := svc.List(ctx, v, ListFilter{Active: &inactive})
	if total != 0 || len(list) != 0 {
		t.Errorf("expected no inactive beneficiaries, got %d", total)
	}
}

func TestService_DeleteBlockedByPayouts(t *testing.T) {
	st := store.NewMemory()
	svc := NewService(st, nil)
	ctx := context.Background()
	v := vendor(models.AccountStatusActive)
	used, _ := svc.Create(ctx, v, upi())
	unused, _ := svc.Create(ctx, v, bank(models.TransferNEFT))

	_ = st.InTx(ctx, func(tx store.Tx) error {
		id := used.ID
		return tx.InsertPayout(ctx, &models.Payout{
			ID: uuid.New(), VendorID: v.ID, BeneficiaryID: &id, MerchantReferenceID: "REF-USED",
			Amount: money.MustParse("1.00"), Status: models.PayoutSuccess, CreatedAt: time.Now(),
		})
	})

	if err := svc.Delete(ctx, v, used.ID); !errors.Is(err, models.ErrBeneficiaryInUse) {
		t.Fatalf("expected ErrBeneficiaryInUse, got %v", err)
	}
	if err := svc.Delete(ctx, v, unused.ID); err != nil {
		t.Fatalf("Delete unused: %v", err)
	}
	if _, err := svc.Get(ctx, v, unused.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestService_ListScopedToOwner(t *testing.T) {
	svc := NewService(store.NewMemory(), nil)
	ctx := context.Background()
	a, b := vendor(models.AccountStatusActive), vendor(models.AccountStatusActive)
	_, _ = svc.Create(ctx, a, upi())
	_, _ = svc.Create(ctx, a, bank(models.TransferIMPS))
	_, _ = svc.Create(ctx, b, upi())

	_, total, err := svc.List(ctx, a, ListFilter{VendorID: b.ID})
	if err != nil || total != 2 {
		t.Fatalf("vendor list must ignore vendor_id and return own rows: total=%d err=%v", total, err)
	}
	list, total, _ := svc.List(ctx, a, ListFilter{TransferType: models.TransferIMPS})
	if total != 1 || list[0].TransferType != models.TransferIMPS {
		t.Errorf("transfer type filter: total=%d", total)
	}
	admin := auth.Identity{ID: uuid.New(), Role: models.RoleAdmin}
	if _, total, _ := svc.List(ctx, admin, ListFilter{VendorID: b.ID}); total != 1 {
		t.Errorf("admin list for vendor b: total=%d", total)
	}
}
