package payout

import (
	"context"
	"errors"
	"regexp"
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
	"github.com/dravya/backend/internal/provider"
	"github.com/dravya/backend/internal/store"
)

// stubProvider is a hand-rolled Provider whose answers are set per test.
type stubProvider struct {
	mu      sync.Mutex
	submits []provider.Transfer
	accept  *provider.Acceptance
	subErr  error
	block   bool
	status  *provider.Status
	stErr   error
	balance *provider.Balance
	queries int
}

func (s *stubProvider) SubmitTransfer(ctx context.Context, t provider.Transfer) (*provider.Acceptance, error) {
	s.mu.Lock()
	s.submits = append(s.submits, t)
	block := s.block
	s.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, errors.Join(provider.ErrUnreachable, ctx.Err())
	}
	if s.subErr != nil {
		return nil, s.subErr
	}
	if s.accept != nil {
		return s.accept, nil
	}
	return &provider.Acceptance{Accepted: true, ProviderTxnID: "PN-" + t.Reference}, nil
}

func (s *stubProvider) QueryStatus(ctx context.Context, ref string) (*provider.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries++
	if s.stErr != nil {
		return nil, s.stErr
	}
	if s.status == nil {
		return &provider.Status{State: provider.StateProcessing}, nil
	}
	return s.status, nil
}

func (s *stubProvider) AccountBalance(ctx context.Context) (*provider.Balance, error) {
	return s.balance, nil
}

// gatedProvider holds SubmitTransfer open until release is closed and records
// whether a status query arrived while a submit was in flight.
type gatedProvider struct {
	*stubProvider
	entered  chan struct{}
	release  chan struct{}
	inFlight bool
	overlap  bool
}

func (g *gatedProvider) SubmitTransfer(ctx context.Context, t provider.Transfer) (*provider.Acceptance, error) {
	g.mu.Lock()
	g.inFlight = true
	g.mu.Unlock()
	close(g.entered)
	<-g.release
	acc, err := g.stubProvider.SubmitTransfer(ctx, t)
	g.mu.Lock()
	g.inFlight = false
	g.mu.Unlock()
	return acc, err
}

func (g *gatedProvider) QueryStatus(ctx context.Context, ref string) (*provider.Status, error) {
	g.mu.Lock()
	if g.inFlight {
		g.overlap = true
	}
	g.mu.Unlock()
	return g.stubProvider.QueryStatus(ctx, ref)
}

type fixture struct {
	st     store.Store
	ledger ledger.Service
	prov   *stubProvider
	engine Engine
	vendor auth.Identity
	wallet *models.Wallet
}

func newFixture(t *testing.T, opening string) *fixture {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemory()
	l := ledger.NewService(st, nil)
	prov := &stubProvider{}

	now := time.Now().UTC()
	acc := &models.Account{ID: uuid.New(), Email: uuid.NewString() + "@example.com", Role: models.RoleVendor, Status: models.AccountStatusActive, CreatedAt: now, UpdatedAt: now}
	w := &models.Wallet{ID: uuid.New(), VendorID: acc.ID, Balance: money.Zero, Currency: "INR", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, st.InTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertAccount(ctx, acc); err != nil {
			return err
		}
		return tx.InsertWallet(ctx, w)
	}))
	if opening != "" {
		_, err := l.Credit(ctx, w.ID, money.MustParse(opening), models.SourceRef{Kind: models.SourceTopUpRequest, ID: uuid.New()})
		require.NoError(t, err)
	}
	return &fixture{
		st:     st,
		ledger: l,
		prov:   prov,
		engine: NewEngine(st, l, prov, Config{ProviderTimeout: time.Second}, nil),
		vendor: auth.IdentityOf(acc),
		wallet: w,
	}
}

func (f *fixture) balance(t *testing.T) string {
	t.Helper()
	b, err := f.ledger.Balance(context.Background(), f.wallet.ID)
	require.NoError(t, err)
	return b.String()
}

func (f *fixture) entries(t *testing.T) []*models.LedgerEntry {
	t.Helper()
	list, _, err := f.ledger.Entries(context.Background(), f.wallet.ID, models.Page{Limit: models.MaxPageLimit})
	require.NoError(t, err)
	return list
}

func upiRequest(amount, ref string) InitiateRequest {
	return InitiateRequest{
		Beneficiary:         &models.BeneficiaryDetails{Name: "Asha", Phone: "9876543210", VPA: "asha@okbank"},
		Amount:              money.MustParse(amount),
		TransferType:        models.TransferUPI,
		MerchantReferenceID: ref,
	}
}

func countType(entries []*models.LedgerEntry, typ string) int {
	n := 0
	for _, e := range entries {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func TestInitiate_AcceptedThenFailedRestoresBalance(t *testing.T) {
	f := newFixture(t, "1000.00")
	ctx := context.Background()

	p, err := f.engine.Initiate(ctx, f.vendor, upiRequest("400.00", "REF-000001"))
	require.NoError(t, err)
	assert.Equal(t, models.PayoutProcessing, p.Status)
	assert.Equal(t, "PN-REF-000001", p.ProviderTxnID)
	assert.Equal(t, "600.00", f.balance(t))

	f.prov.status = &provider.Status{State: provider.StateFailed, Error: "account closed"}
	p, err = f.engine.CheckStatus(ctx, f.vendor, "REF-000001")
	require.NoError(t, err)
	assert.Equal(t, models.PayoutFailed, p.Status)
	assert.Equal(t, "account closed", p.LastError)
	require.NotNil(t, p.ReversalEntryID)
	assert.Equal(t, "1000.00", f.balance(t))
	assert.Equal(t, 1, countType(f.entries(t), models.EntryPayoutReversal))

	// A second check on the settled record leaves the ledger alone.
	_, err = f.engine.CheckStatus(ctx, f.vendor, "REF-000001")
	require.NoError(t, err)
	assert.Equal(t, "1000.00", f.balance(t))
	assert.Equal(t, 1, countType(f.entries(t), models.EntryPayoutReversal))
}

func TestInitiate_InsufficientFundsCreatesNothing(t *testing.T) {
	f := newFixture(t, "100.00")
	ctx := context.Background()

	_, err := f.engine.Initiate(ctx, f.vendor, upiRequest("150.00", "REF-000002"))
	require.ErrorIs(t, err, models.ErrInsufficientFunds)
	assert.Equal(t, "100.00", f.balance(t))
	assert.Len(t, f.entries(t), 1)
	assert.Empty(t, f.prov.submits)

	_, total, err := f.engine.List(ctx, f.vendor, ListFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestInitiate_DuplicateReference(t *testing.T) {
	f := newFixture(t, "1000.00")
	ctx := context.Background()

	_, err := f.engine.Initiate(ctx, f.vendor, upiRequest("100.00", "REF-000003"))
	require.NoError(t, err)
	_, err = f.engine.Initiate(ctx, f.vendor, upiRequest("100.00", "REF-000003"))
	require.ErrorIs(t, err, models.ErrDuplicateReference)

	assert.Equal(t, "900.00", f.balance(t))
	assert.Equal(t, 1, countType(f.entries(t), models.EntryPayoutDebit))
	assert.Len(t, f.prov.submits, 1)
}

func TestInitiate_ConcurrentSameReference(t *testing.T) {
	f := newFixture(t, "1000.00")
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.engine.Initiate(ctx, f.vendor, upiRequest("50.00", "REF-000004"))
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, models.ErrDuplicateReference)
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, "950.00", f.balance(t))
}

func TestCheckStatus_WaitsForInitiateOnSameReference(t *testing.T) {
	f := newFixture(t, "1000.00")
	f.prov.status = &provider.Status{State: provider.StateFailed, Error: "beneficiary bank down"}
	gate := &gatedProvider{stubProvider: f.prov, entered: make(chan struct{}), release: make(chan struct{})}
	f.engine = NewEngine(f.st, f.ledger, gate, Config{ProviderTimeout: time.Second}, nil)
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		initiated *models.Payout
		initErr   error
		checked   *models.Payout
		checkErr  error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		initiated, initErr = f.engine.Initiate(ctx, f.vendor, upiRequest("400.00", "REF-000030"))
	}()
	<-gate.entered

	wg.Add(1)
	go func() {
		defer wg.Done()
		checked, checkErr = f.engine.CheckStatus(ctx, f.vendor, "REF-000030")
	}()
	// Give the status check time to reach the provider if nothing stops it.
	time.Sleep(50 * time.Millisecond)
	close(gate.release)
	wg.Wait()

	require.NoError(t, initErr)
	require.NoError(t, checkErr)
	assert.False(t, gate.overlap, "status query ran while the submit was in flight")
	assert.Equal(t, models.PayoutProcessing, initiated.Status)
	assert.Equal(t, models.PayoutFailed, checked.Status)
	assert.Equal(t, "1000.00", f.balance(t))
	assert.Equal(t, 1, countType(f.entries(t), models.EntryPayoutReversal))
}

func TestInitiate_ProviderUnreachableReverses(t *testing.T) {
	f := newFixture(t, "500.00")
	f.prov.subErr = provider.ErrUnreachable

	p, err := f.engine.Initiate(context.Background(), f.vendor, upiRequest("200.00", "REF-000005"))
	require.ErrorIs(t, err, models.ErrProviderUnreachable)
	require.NotNil(t, p)
	assert.Equal(t, models.PayoutFailed, p.Status)
	assert.NotNil(t, p.ReversalEntryID)
	assert.True(t, p.Unconfirmed)
	assert.Equal(t, "500.00", f.balance(t))
}

func TestInitiate_TimeoutIsTreatedAsUnreachable(t *testing.T) {
	f := newFixture(t, "500.00")
	f.prov.block = true
	f.engine = NewEngine(f.st, f.ledger, f.prov, Config{ProviderTimeout: 20 * time.Millisecond}, nil)

	p, err := f.engine.Initiate(context.Background(), f.vendor, upiRequest("200.00", "REF-000006"))
	require.ErrorIs(t, err, models.ErrProviderUnreachable)
	assert.Equal(t, models.PayoutFailed, p.Status)
	assert.Equal(t, "500.00", f.balance(t))
}

func TestInitiate_ProviderRejectionReverses(t *testing.T) {
	f := newFixture(t, "500.00")
	f.prov.accept = &provider.Acceptance{Accepted: false, Message: "invalid vpa"}

	p, err := f.engine.Initiate(context.Background(), f.vendor, upiRequest("200.00", "REF-000007"))
	require.ErrorIs(t, err, models.ErrProviderRejected)
	assert.Equal(t, models.PayoutFailed, p.Status)
	assert.Equal(t, "invalid vpa", p.LastError)
	assert.False(t, p.Unconfirmed)
	assert.Equal(t, "500.00", f.balance(t))
}

func TestInitiate_Validation(t *testing.T) {
	f := newFixture(t, "500.00")
	ctx := context.Background()

	bankOnUPI := upiRequest("10.00", "")
	bankOnUPI.Beneficiary = &models.BeneficiaryDetails{Name: "Ravi", Phone: "9876543211", VPA: "ravi@okbank", AccountNumber: "123456789012", IFSC: "SBIN0001234", BankName: "SBI"}
	noVPA := upiRequest("10.00", "")
	noVPA.Beneficiary.VPA = ""

	tests := []struct {
		name  string
		actor auth.Identity
		req   InitiateRequest
		want  error
	}{
		{"zero amount", f.vendor, upiRequest("0", ""), models.ErrInvalidAmount},
		{"negative amount", f.vendor, upiRequest("-1", ""), models.ErrInvalidAmount},
		{"bank fields on UPI", f.vendor, bankOnUPI, models.ErrModeMismatch},
		{"missing VPA", f.vendor, noVPA, models.ErrIncompleteBeneficiary},
		{"pending vendor", auth.Identity{ID: f.vendor.ID, Role: models.RoleVendor, Status: models.AccountStatusPending}, upiRequest("10.00", ""), models.ErrUnauthorized},
		{"admin", auth.Identity{ID: uuid.New(), Role: models.RoleAdmin, Status: models.AccountStatusActive}, upiRequest("10.00", ""), models.ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.Initiate(ctx, tt.actor, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, "500.00", f.balance(t))
	assert.Empty(t, f.prov.submits)
}

func TestInitiate_SavedBeneficiary(t *testing.T) {
	f := newFixture(t, "500.00")
	ctx := context.Background()
	now := time.Now().UTC()
	b := &models.Beneficiary{
		ID:       uuid.New(),
		VendorID: f.vendor.ID,
		BeneficiaryDetails: models.BeneficiaryDetails{
			Name: "Ravi", Phone: "9876543211", TransferType: models.TransferIMPS,
			AccountNumber: "123456789012", IFSC: "SBIN0001234", BankName: "SBI",
		},
		Active: true, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, f.st.InTx(ctx, func(tx store.Tx) error { return tx.InsertBeneficiary(ctx, b) }))

	req := InitiateRequest{BeneficiaryID: &b.ID, Amount: money.MustParse("10.00"), TransferType: models.TransferNEFT}
	p, err := f.engine.Initiate(ctx, f.vendor, req)
	require.NoError(t, err)
	assert.Equal(t, models.TransferNEFT, p.Beneficiary.TransferType)
	assert.Equal(t, "SBIN0001234", p.Beneficiary.IFSC)

	req.TransferType = models.TransferUPI
	_, err = f.engine.Initiate(ctx, f.vendor, req)
	assert.ErrorIs(t, err, models.ErrModeMismatch)

	b.Active = false
	require.NoError(t, f.st.InTx(ctx, func(tx store.Tx) error { return tx.UpdateBeneficiary(ctx, b) }))
	req.TransferType = models.TransferIMPS
	_, err = f.engine.Initiate(ctx, f.vendor, req)
	assert.ErrorIs(t, err, models.ErrBeneficiaryInactive)

	other := auth.Identity{ID: uuid.New(), Role: models.RoleVendor, Status: models.AccountStatusActive}
	_, err = f.engine.Initiate(ctx, other, req)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestInitiate_GeneratesReference(t *testing.T) {
	f := newFixture(t, "500.00")
	p, err := f.engine.Initiate(context.Background(), f.vendor, upiRequest("10.00", ""))
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^VND[0-9a-f]{8}[0-9]{13}[A-Z0-9]{6}$`), p.MerchantReferenceID)
}

func TestCheckStatus_SuccessSetsUTR(t *testing.T) {
	f := newFixture(t, "500.00")
	ctx := context.Background()
	_, err := f.engine.Initiate(ctx, f.vendor, upiRequest("100.00", "REF-000008"))
	require.NoError(t, err)

	f.prov.status = &provider.Status{State: provider.StateSuccess, UTR: "UTR998877"}
	p, err := f.engine.CheckStatus(ctx, f.vendor, "REF-000008")
	require.NoError(t, err)
	assert.Equal(t, models.PayoutSuccess, p.Status)
	assert.Equal(t, "UTR998877", p.UTR)
	assert.Equal(t, "400.00", f.balance(t))

	// The rail later claims failure: flagged, never reversed.
	f.prov.status = &provider.Status{State: provider.StateFailed}
	p, err = f.engine.CheckStatus(ctx, f.vendor, "REF-000008")
	require.NoError(t, err)
	assert.Equal(t, models.PayoutSuccess, p.Status)
	assert.True(t, p.NeedsReview)
	assert.Equal(t, "400.00", f.balance(t))
}

func TestCheckStatus_UnreachableChangesNothing(t *testing.T) {
	f := newFixture(t, "500.00")
	ctx := context.Background()
	_, err := f.engine.Initiate(ctx, f.vendor, upiRequest("100.00", "REF-000009"))
	require.NoError(t, err)

	f.prov.stErr = provider.ErrUnreachable
	p, err := f.engine.CheckStatus(ctx, f.vendor, "REF-000009")
	require.ErrorIs(t, err, models.ErrProviderUnreachable)
	assert.Equal(t, models.PayoutProcessing, p.Status)
	assert.Equal(t, "400.00", f.balance(t))
}

func TestCheckStatus_ReversedByRail(t *testing.T) {
	f := newFixture(t, "500.00")
	ctx := context.Background()
	_, err := f.engine.Initiate(ctx, f.vendor, upiRequest("100.00", "REF-000010"))
	require.NoError(t, err)

	f.prov.status = &provider.Status{State: provider.StateReversed}
	p, err := f.engine.CheckStatus(ctx, auth.System(), "REF-000010")
	require.NoError(t, err)
	assert.Equal(t, models.PayoutReversed, p.Status)
	assert.Equal(t, "500.00", f.balance(t))
}

func TestCheckStatus_OtherVendorDenied(t *testing.T) {
	f := newFixture(t, "500.00")
	ctx := context.Background()
	_, err := f.engine.Initiate(ctx, f.vendor, upiRequest("100.00", "REF-000011"))
	require.NoError(t, err)

	other := auth.Identity{ID: uuid.New(), Role: models.RoleVendor, Status: models.AccountStatusActive}
	_, err = f.engine.CheckStatus(ctx, other, "REF-000011")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
	assert.Zero(t, f.prov.queries)
}

func TestRecordAttempt_FlagsAtBound(t *testing.T) {
	f := newFixture(t, "500.00")
	ctx := context.Background()
	_, err := f.engine.Initiate(ctx, f.vendor, upiRequest("100.00", "REF-000012"))
	require.NoError(t, err)

	p, err := f.engine.RecordAttempt(ctx, "REF-000012", 2, "")
	require.NoError(t, err)
	assert.Equal(t, 1, p.ReconcileAttempts)
	assert.False(t, p.NeedsReview)

	p, err = f.engine.RecordAttempt(ctx, "REF-000012", 2, "still processing")
	require.NoError(t, err)
	assert.Equal(t, 2, p.ReconcileAttempts)
	assert.True(t, p.NeedsReview)
	assert.NotEmpty(t, p.ReviewReason)

	// Flagged payouts are not counted again.
	p, err = f.engine.RecordAttempt(ctx, "REF-000012", 2, "")
	require.NoError(t, err)
	assert.Equal(t, 2, p.ReconcileAttempts)
}

func TestStatsAndProviderBalance(t *testing.T) {
	f := newFixture(t, "500.00")
	ctx := context.Background()
	_, err := f.engine.Initiate(ctx, f.vendor, upiRequest("100.00", "REF-000013"))
	require.NoError(t, err)
	_, err = f.engine.Initiate(ctx, f.vendor, upiRequest("50.50", "REF-000014"))
	require.NoError(t, err)

	st, err := f.engine.Stats(ctx, f.vendor, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Total.Count)
	assert.Equal(t, "150.50", st.Total.Amount.String())
	assert.Equal(t, 2, st.ByStatus[models.PayoutProcessing].Count)

	_, err = f.engine.ProviderBalance(ctx, f.vendor)
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	f.prov.balance = &provider.Balance{Balance: money.MustParse("99999.00"), Currency: "INR"}
	admin := auth.Identity{ID: uuid.New(), Role: models.RoleAdmin, Status: models.AccountStatusActive}
	b, err := f.engine.ProviderBalance(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, "99999.00", b.Balance.String())
}
