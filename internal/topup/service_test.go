package topup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dravya/backend/internal/auth"
	"github.com/dravya/backend/internal/ledger"
	"github.com/dravya/backend/internal/models"
	"github.com/dravya/backend/internal/money"
	"github.com/dravya/backend/internal/store"
	"github.com/dravya/backend/internal/validation"
)

var admin = auth.Identity{ID: uuid.New(), Role: models.RoleAdmin, Status: models.AccountStatusActive}

func setup(t *testing.T) (Service, ledger.Service, *models.Account, *models.Wallet, store.Store) {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemory()
	l := ledger.NewService(st, nil)
	now := time.Now().UTC()
	acc := &models.Account{ID: uuid.New(), Email: uuid.NewString() + "@example.com", Role: models.RoleVendor, Status: models.AccountStatusActive, CreatedAt: now, UpdatedAt: now}
	w := &models.Wallet{ID: uuid.New(), VendorID: acc.ID, Currency: "INR", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, st.InTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertAccount(ctx, acc); err != nil {
			return err
		}
		return tx.InsertWallet(ctx, w)
	}))
	return NewService(st, l, Config{MaxTopUp: money.MustParse("50000")}, nil), l, acc, w, st
}

func TestSubmit_Bounds(t *testing.T) {
	svc, _, acc, _, _ := setup(t)
	vendor := auth.IdentityOf(acc)
	ctx := context.Background()

	for _, amt := range []string{"0", "-1", "50000.01"} {
		_, err := svc.Submit(ctx, vendor, money.MustParse(amt))
		assert.ErrorIs(t, err, models.ErrInvalidAmount, amt)
	}
	r, err := svc.Submit(ctx, vendor, money.MustParse("50000"))
	require.NoError(t, err)
	assert.Equal(t, models.TopUpPending, r.Status)

	// No dedup: the same amount again is a new request.
	r2, err := svc.Submit(ctx, vendor, money.MustParse("50000"))
	require.NoError(t, err)
	assert.NotEqual(t, r.ID, r2.ID)
}

func TestSubmit_RequiresActiveVendor(t *testing.T) {
	svc, _, acc, _, _ := setup(t)
	pending := auth.IdentityOf(acc)
	pending.Status = models.AccountStatusPending

	_, err := svc.Submit(context.Background(), pending, money.MustParse("10"))
	assert.ErrorIs(t, err, models.ErrUnauthorized)
	_, err = svc.Submit(context.Background(), admin, money.MustParse("10"))
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestResolve_ApproveCreditsOnce(t *testing.T) {
	svc, l, acc, w, _ := setup(t)
	ctx := context.Background()
	r, err := svc.Submit(ctx, auth.IdentityOf(acc), money.MustParse("1000.00"))
	require.NoError(t, err)

	out, err := svc.Resolve(ctx, admin, r.ID, Resolution{Decision: DecisionApprove, Notes: "bank slip ok"})
	require.NoError(t, err)
	assert.Equal(t, models.TopUpApproved, out.Status)
	require.NotNil(t, out.LedgerEntryID)
	require.NotNil(t, out.ProcessedAt)
	assert.Equal(t, admin.ID, *out.AdminID)

	_, err = svc.Resolve(ctx, admin, r.ID, Resolution{Decision: DecisionReject, RejectionReason: "oops"})
	assert.ErrorIs(t, err, models.ErrAlreadyResolved)
	_, err = svc.Resolve(ctx, admin, r.ID, Resolution{Decision: DecisionApprove})
	assert.ErrorIs(t, err, models.ErrAlreadyResolved)

	bal, err := l.Balance(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "1000.00", bal.String())
}

func TestResolve_RejectHasNoLedgerEffect(t *testing.T) {
	svc, l, acc, w, _ := setup(t)
	ctx := context.Background()
	r, err := svc.Submit(ctx, auth.IdentityOf(acc), money.MustParse("250.00"))
	require.NoError(t, err)

	_, err = svc.Resolve(ctx, admin, r.ID, Resolution{Decision: DecisionReject, RejectionReason: "  "})
	require.ErrorIs(t, err, validation.ErrValidation)

	out, err := svc.Resolve(ctx, admin, r.ID, Resolution{Decision: DecisionReject, RejectionReason: "slip unreadable"})
	require.NoError(t, err)
	assert.Equal(t, models.TopUpRejected, out.Status)
	assert.Equal(t, "slip unreadable", out.RejectionReason)
	assert.Nil(t, out.LedgerEntryID)

	_, total, err := l.Entries(ctx, w.ID, models.Page{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestResolve_OnlyAdmins(t *testing.T) {
	svc, _, acc, _, _ := setup(t)
	vendor := auth.IdentityOf(acc)
	r, err := svc.Submit(context.Background(), vendor, money.MustParse("10"))
	require.NoError(t, err)

	_, err = svc.Resolve(context.Background(), vendor, r.ID, Resolution{Decision: DecisionApprove})
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestResolve_SuspendedVendorIsNotCredited(t *testing.T) {
	svc, l, acc, w, st := setup(t)
	ctx := context.Background()
	r, err := svc.Submit(ctx, auth.IdentityOf(acc), money.MustParse("10"))
	require.NoError(t, err)
	require.NoError(t, st.InTx(ctx, func(tx store.Tx) error {
		return tx.UpdateAccountStatus(ctx, acc.ID, models.AccountStatusSuspended, time.Now())
	}))

	_, err = svc.Resolve(ctx, admin, r.ID, Resolution{Decision: DecisionApprove})
	assert.ErrorIs(t, err, models.ErrUnauthorized)
	got, err := svc.Get(ctx, admin, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TopUpPending, got.Status)
	bal, _ := l.Balance(ctx, w.ID)
	assert.True(t, bal.IsZero())
}

func TestResolve_ConcurrentDecisionsResolveOnce(t *testing.T) {
	svc, l, acc, w, _ := setup(t)
	ctx := context.Background()
	r, err := svc.Submit(ctx, auth.IdentityOf(acc), money.MustParse("100.00"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res := Resolution{Decision: DecisionApprove}
			if i%2 == 1 {
				res = Resolution{Decision: DecisionReject, RejectionReason: "dup"}
			}
			_, err := svc.Resolve(ctx, admin, r.ID, res)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			if !errors.Is(err, models.ErrAlreadyResolved) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	got, err := svc.Get(ctx, admin, r.ID)
	require.NoError(t, err)
	bal, _ := l.Balance(ctx, w.ID)
	if got.Status == models.TopUpApproved {
		assert.Equal(t, "100.00", bal.String())
	} else {
		assert.True(t, bal.IsZero())
	}
}

func TestListAndStats_Scoping(t *testing.T) {
	svc, _, acc, _, _ := setup(t)
	ctx := context.Background()
	vendor := auth.IdentityOf(acc)
	for _, amt := range []string{"10", "20", "30"} {
		_, err := svc.Submit(ctx, vendor, money.MustParse(amt))
		require.NoError(t, err)
	}
	list, total, err := svc.List(ctx, vendor, ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, "30.00", list[0].Amount.String())

	_, err = svc.Resolve(ctx, admin, list[0].ID, Resolution{Decision: DecisionApprove})
	require.NoError(t, err)

	stranger := auth.Identity{ID: uuid.New(), Role: models.RoleVendor, Status: models.AccountStatusActive}
	_, total, err = svc.List(ctx, stranger, ListFilter{VendorID: &acc.ID})
	require.NoError(t, err)
	assert.Zero(t, total)

	_, _, err = svc.List(ctx, admin, ListFilter{Status: "bogus"})
	assert.ErrorIs(t, err, validation.ErrValidation)

	st, err := svc.Stats(ctx, admin, &acc.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Total.Count)
	assert.Equal(t, "60.00", st.Total.Amount.String())
	assert.Equal(t, 1, st.ByStatus[models.TopUpApproved].Count)
	assert.Equal(t, "30.00", st.ByStatus[models.TopUpApproved].Amount.String())
	assert.Equal(t, 2, st.ByStatus[models.TopUpPending].Count)
}
