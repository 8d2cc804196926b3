package reconcile

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dravya/backend/internal/auth"
	"github.com/dravya/backend/internal/ledger"
	"github.com/dravya/backend/internal/models"
	"github.com/dravya/backend/internal/money"
	"github.com/dravya/backend/internal/payout"
	"github.com/dravya/backend/internal/provider"
	"github.com/dravya/backend/internal/store"
)

// railStub accepts every transfer unless down is set, and answers status
// queries with state.
type railStub struct {
	mu    sync.Mutex
	state string
	err   error
	down  bool
}

func (r *railStub) set(state string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state, r.err = state, err
}

func (r *railStub) SubmitTransfer(context.Context, provider.Transfer) (*provider.Acceptance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.down {
		return nil, provider.ErrUnreachable
	}
	return &provider.Acceptance{Accepted: true, ProviderTxnID: "PN1"}, nil
}

func (r *railStub) QueryStatus(context.Context, string) (*provider.Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	st := &provider.Status{State: r.state}
	if r.state == provider.StateSuccess {
		st.UTR = "UTR1"
	}
	return st, nil
}

func (r *railStub) AccountBalance(context.Context) (*provider.Balance, error) {
	return &provider.Balance{}, nil
}

type env struct {
	st     store.Store
	ledger ledger.Service
	engine payout.Engine
	rail   *railStub
	vendor auth.Identity
	wallet *models.Wallet
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemory()
	l := ledger.NewService(st, nil)
	rail := &railStub{state: provider.StateProcessing}
	now := time.Now().UTC()
	acc := &models.Account{ID: uuid.New(), Email: "v@example.com", Role: models.RoleVendor, Status: models.AccountStatusActive, CreatedAt: now, UpdatedAt: now}
	w := &models.Wallet{ID: uuid.New(), VendorID: acc.ID, Currency: "INR", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, st.InTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertAccount(ctx, acc); err != nil {
			return err
		}
		return tx.InsertWallet(ctx, w)
	}))
	_, err := l.Credit(ctx, w.ID, money.MustParse("1000.00"), models.SourceRef{Kind: models.SourceTopUpRequest, ID: uuid.New()})
	require.NoError(t, err)
	return &env{st: st, ledger: l, engine: payout.NewEngine(st, l, rail, payout.Config{}, nil), rail: rail, vendor: auth.IdentityOf(acc), wallet: w}
}

func (e *env) initiate(t *testing.T, ref string) {
	t.Helper()
	_, err := e.engine.Initiate(context.Background(), e.vendor, payout.InitiateRequest{
		Beneficiary:         &models.BeneficiaryDetails{Name: "Asha", Phone: "9876543210", VPA: "asha@okbank"},
		Amount:              money.MustParse("400.00"),
		TransferType:        models.TransferUPI,
		MerchantReferenceID: ref,
	})
	require.NoError(t, err)
}

func (e *env) poller(cfg Config) *Poller {
	p := NewPoller(e.st, e.engine, cfg, nil)
	p.now = func() time.Time { return time.Now().Add(time.Minute) }
	return p
}

func TestSweep_FailureReversesDebit(t *testing.T) {
	e := newEnv(t)
	e.initiate(t, "REF-100001")
	e.rail.set(provider.StateFailed, nil)

	res, err := e.poller(Config{Interval: 30 * time.Second, Grace: 10 * time.Second}).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Checked: 1, Resolved: 1}, res)

	p, err := e.engine.Get(context.Background(), e.vendor, "REF-100001")
	require.NoError(t, err)
	assert.Equal(t, models.PayoutFailed, p.Status)
	bal, _ := e.ledger.Balance(context.Background(), e.wallet.ID)
	assert.Equal(t, "1000.00", bal.String())
}

func TestSweep_SuccessSettles(t *testing.T) {
	e := newEnv(t)
	e.initiate(t, "REF-100002")
	e.rail.set(provider.StateSuccess, nil)

	_, err := e.poller(Config{Interval: 30 * time.Second}).Sweep(context.Background())
	require.NoError(t, err)

	p, err := e.engine.Get(context.Background(), e.vendor, "REF-100002")
	require.NoError(t, err)
	assert.Equal(t, models.PayoutSuccess, p.Status)
	assert.Equal(t, "UTR1", p.UTR)
}

func TestSweep_FlagsAfterMaxAttempts(t *testing.T) {
	e := newEnv(t)
	e.initiate(t, "REF-100003")
	p := e.poller(Config{Interval: 30 * time.Second, MaxAttempts: 2})
	ctx := context.Background()

	res, err := p.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Checked: 1}, res)

	e.rail.set("", provider.ErrUnreachable)
	res, err = p.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Checked: 1, Flagged: 1, Failed: 1}, res)

	// Flagged payouts are left to an operator.
	res, err = p.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Checked)

	got, err := e.engine.Get(ctx, e.vendor, "REF-100003")
	require.NoError(t, err)
	assert.Equal(t, models.PayoutProcessing, got.Status)
	assert.True(t, got.NeedsReview)
	assert.Equal(t, 2, got.ReconcileAttempts)
	bal, _ := e.ledger.Balance(ctx, e.wallet.ID)
	assert.Equal(t, "600.00", bal.String())
}

// initiateWhileDown books a payout the rail never acknowledged.
func (e *env) initiateWhileDown(t *testing.T, ref string) {
	t.Helper()
	e.rail.mu.Lock()
	e.rail.down = true
	e.rail.mu.Unlock()
	p, err := e.engine.Initiate(context.Background(), e.vendor, payout.InitiateRequest{
		Beneficiary:         &models.BeneficiaryDetails{Name: "Asha", Phone: "9876543210", VPA: "asha@okbank"},
		Amount:              money.MustParse("400.00"),
		TransferType:        models.TransferUPI,
		MerchantReferenceID: ref,
	})
	require.ErrorIs(t, err, models.ErrProviderUnreachable)
	require.Equal(t, models.PayoutFailed, p.Status)
	require.True(t, p.Unconfirmed)
}

func TestSweep_UnreachableFailurePaidByRailIsFlagged(t *testing.T) {
	e := newEnv(t)
	e.initiateWhileDown(t, "REF-100010")
	e.rail.set(provider.StateSuccess, nil)
	ctx := context.Background()

	res, err := e.poller(Config{Interval: 30 * time.Second}).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Checked: 1, Flagged: 1}, res)

	got, err := e.engine.Get(ctx, e.vendor, "REF-100010")
	require.NoError(t, err)
	assert.Equal(t, models.PayoutFailed, got.Status)
	assert.True(t, got.NeedsReview)
	assert.False(t, got.Unconfirmed)
	// The ledger is left for the operator.
	bal, _ := e.ledger.Balance(ctx, e.wallet.ID)
	assert.Equal(t, "1000.00", bal.String())
}

func TestSweep_UnreachableFailureConfirmedByRail(t *testing.T) {
	e := newEnv(t)
	e.initiateWhileDown(t, "REF-100011")
	e.rail.set(provider.StateFailed, nil)
	p := e.poller(Config{Interval: 30 * time.Second})
	ctx := context.Background()

	res, err := p.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Checked: 1, Resolved: 1}, res)

	got, err := e.engine.Get(ctx, e.vendor, "REF-100011")
	require.NoError(t, err)
	assert.False(t, got.Unconfirmed)
	assert.False(t, got.NeedsReview)

	res, err = p.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Checked)
}

func TestSweep_UnreachableFailureUnknownToRailStopsAfterMaxAttempts(t *testing.T) {
	e := newEnv(t)
	e.initiateWhileDown(t, "REF-100012")
	e.rail.set(provider.StateUnknown, nil)
	p := e.poller(Config{Interval: 30 * time.Second, MaxAttempts: 2})
	ctx := context.Background()

	for range 2 {
		res, err := p.Sweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, Result{Checked: 1}, res)
	}
	res, err := p.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Checked)

	got, err := e.engine.Get(ctx, e.vendor, "REF-100012")
	require.NoError(t, err)
	assert.Equal(t, models.PayoutFailed, got.Status)
	assert.False(t, got.Unconfirmed)
	assert.False(t, got.NeedsReview)
	assert.Equal(t, 2, got.ReconcileAttempts)
	bal, _ := e.ledger.Balance(ctx, e.wallet.ID)
	assert.Equal(t, "1000.00", bal.String())
}

func TestSweep_RespectsGrace(t *testing.T) {
	e := newEnv(t)
	e.initiate(t, "REF-100004")
	e.rail.set(provider.StateFailed, nil)

	res, err := e.poller(Config{Interval: 30 * time.Second, Grace: 5 * time.Minute}).Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Checked)
}

func TestWorker_RunsSweep(t *testing.T) {
	e := newEnv(t)
	e.initiate(t, "REF-100005")
	e.rail.set(provider.StateSuccess, nil)

	w := NewWorker(e.poller(Config{Interval: 30 * time.Second}))
	require.NoError(t, w.Work(context.Background(), &river.Job[SweepArgs]{}))
	assert.Equal(t, 30*time.Second, w.Timeout(nil))

	got, err := e.engine.Get(context.Background(), e.vendor, "REF-100005")
	require.NoError(t, err)
	assert.Equal(t, models.PayoutSuccess, got.Status)
	assert.Equal(t, "reconcile_payouts", SweepArgs{}.Kind())
}

func TestRun_StopsOnCancel(t *testing.T) {
	e := newEnv(t)
	p := e.poller(Config{Interval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
