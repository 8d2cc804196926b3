package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dravya/backend/internal/models"
	"github.com/dravya/backend/internal/money"
)

// Memory is an in-process Store. A single mutex serialises transactions, which
// also serialises writes per wallet; an undo log rolls back a failed transaction.
type Memory struct {
	mu            sync.Mutex
	accounts      *table[models.Account]
	wallets       *table[models.Wallet]
	entries       *table[models.LedgerEntry]
	topups        *table[models.TopUpRequest]
	beneficiaries *table[models.Beneficiary]
	payouts       *table[models.Payout]
}

func NewMemory() *Memory {
	return &Memory{
		accounts:      newTable[models.Account](),
		wallets:       newTable[models.Wallet](),
		entries:       newTable[models.LedgerEntry](),
		topups:        newTable[models.TopUpRequest](),
		beneficiaries: newTable[models.Beneficiary](),
		payouts:       newTable[models.Payout](),
	}
}

var _ Store = (*Memory)(nil)

func (m *Memory) InTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memTx{m: m}
	defer func() {
		if r := recover(); r != nil {
			tx.rollback()
			panic(r)
		}
	}()
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// table keeps rows in insertion order so listings are stable newest-first.
type table[V any] struct {
	rows []*V
	idx  map[string]int
}

func newTable[V any]() *table[V] {
	return &table[V]{idx: make(map[string]int)}
}

func (t *table[V]) get(key string) (*V, bool) {
	i, ok := t.idx[key]
	if !ok {
		return nil, false
	}
	cp := *t.rows[i]
	return &cp, true
}

func (t *table[V]) insert(key string, v *V) func() {
	cp := *v
	t.rows = append(t.rows, &cp)
	t.idx[key] = len(t.rows) - 1
	return func() {
		delete(t.idx, key)
		t.rows = t.rows[:len(t.rows)-1]
	}
}

func (t *table[V]) replace(key string, v *V) func() {
	i := t.idx[key]
	old := t.rows[i]
	cp := *v
	t.rows[i] = &cp
	return func() { t.rows[i] = old }
}

func (t *table[V]) remove(key string) func() {
	i := t.idx[key]
	old := t.rows[i]
	t.rows[i] = nil
	delete(t.idx, key)
	return func() {
		t.rows[i] = old
		t.idx[key] = i
	}
}

// newestFirst returns copies of the live rows matching keep, newest first.
func (t *table[V]) newestFirst(keep func(*V) bool) []*V {
	var out []*V
	for i := len(t.rows) - 1; i >= 0; i-- {
		r := t.rows[i]
		if r == nil || !keep(r) {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	return out
}

func paginate[V any](rows []*V, p models.Page) ([]*V, int) {
	p = p.Normalize()
	total := len(rows)
	start := p.Offset()
	if start < 0 || start >= total {
		return []*V{}, total
	}
	end := start + p.Limit
	if end > total {
		end = total
	}
	return rows[start:end], total
}

type memTx struct {
	m    *Memory
	undo []func()
}

func (tx *memTx) record(u func()) { tx.undo = append(tx.undo, u) }

func (tx *memTx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

// --- accounts ---

func (tx *memTx) InsertAccount(_ context.Context, a *models.Account) error {
	email := strings.ToLower(a.Email)
	for _, r := range tx.m.accounts.rows {
		if r != nil && strings.ToLower(r.Email) == email {
			return models.ErrDuplicateEmail
		}
	}
	tx.record(tx.m.accounts.insert(a.ID.String(), a))
	return nil
}

func (tx *memTx) GetAccount(_ context.Context, id uuid.UUID) (*models.Account, error) {
	a, ok := tx.m.accounts.get(id.String())
	if !ok {
		return nil, models.ErrNotFound
	}
	return a, nil
}

func (tx *memTx) GetAccountByEmail(_ context.Context, email string) (*models.Account, error) {
	rows := tx.m.accounts.newestFirst(func(a *models.Account) bool {
		return strings.EqualFold(a.Email, email)
	})
	if len(rows) == 0 {
		return nil, models.ErrNotFound
	}
	return rows[0], nil
}

func (tx *memTx) LockAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return tx.GetAccount(ctx, id)
}

func (tx *memTx) UpdateAccountStatus(_ context.Context, id uuid.UUID, status string, at time.Time) error {
	a, ok := tx.m.accounts.get(id.String())
	if !ok {
		return models.ErrNotFound
	}
	a.Status = status
	a.UpdatedAt = at
	tx.record(tx.m.accounts.replace(id.String(), a))
	return nil
}

func (tx *memTx) ListAccounts(_ context.Context, f AccountFilter) ([]*models.Account, int, error) {
	rows := tx.m.accounts.newestFirst(func(a *models.Account) bool {
		return (f.Role == "" || a.Role == f.Role) && (f.Status == "" || a.Status == f.Status)
	})
	list, total := paginate(rows, f.Page)
	return list, total, nil
}

func (tx *memTx) CountAccountsByStatus(_ context.Context, role string) (map[string]int, error) {
	out := make(map[string]int)
	for _, a := range tx.m.accounts.rows {
		if a != nil && (role == "" || a.Role == role) {
			out[a.Status]++
		}
	}
	return out, nil
}

// --- wallets and entries ---

func (tx *memTx) InsertWallet(_ context.Context, w *models.Wallet) error {
	tx.record(tx.m.wallets.insert(w.ID.String(), w))
	return nil
}

func (tx *memTx) GetWallet(_ context.Context, id uuid.UUID) (*models.Wallet, error) {
	w, ok := tx.m.wallets.get(id.String())
	if !ok {
		return nil, models.ErrNotFound
	}
	return w, nil
}

func (tx *memTx) GetWalletByVendor(_ context.Context, vendorID uuid.UUID) (*models.Wallet, error) {
	rows := tx.m.wallets.newestFirst(func(w *models.Wallet) bool { return w.VendorID == vendorID })
	if len(rows) == 0 {
		return nil, models.ErrNotFound
	}
	return rows[0], nil
}

// LockWallet is a plain read: the store mutex already serialises the transaction.
func (tx *memTx) LockWallet(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	return tx.GetWallet(ctx, id)
}

func (tx *memTx) UpdateWalletBalance(_ context.Context, id uuid.UUID, balance money.Amount, at time.Time) error {
	w, ok := tx.m.wallets.get(id.String())
	if !ok {
		return models.ErrNotFound
	}
	w.Balance = balance
	w.UpdatedAt = at
	tx.record(tx.m.wallets.replace(id.String(), w))
	return nil
}

func (tx *memTx) InsertEntry(ctx context.Context, e *models.LedgerEntry) error {
	if e.ReversesEntryID != nil {
		if _, err := tx.GetReversalOf(ctx, *e.ReversesEntryID); err == nil {
			return models.ErrAlreadyReversed
		}
	}
	tx.record(tx.m.entries.insert(e.ID.String(), e))
	return nil
}

func (tx *memTx) GetEntry(_ context.Context, id uuid.UUID) (*models.LedgerEntry, error) {
	e, ok := tx.m.entries.get(id.String())
	if !ok {
		return nil, models.ErrNotFound
	}
	return e, nil
}

func (tx *memTx) GetReversalOf(_ context.Context, entryID uuid.UUID) (*models.LedgerEntry, error) {
	rows := tx.m.entries.newestFirst(func(e *models.LedgerEntry) bool {
		return e.ReversesEntryID != nil && *e.ReversesEntryID == entryID
	})
	if len(rows) == 0 {
		return nil, models.ErrNotFound
	}
	return rows[0], nil
}

func (tx *memTx) ListEntries(_ context.Context, walletID uuid.UUID, page models.Page) ([]*models.LedgerEntry, int, error) {
	rows := tx.m.entries.newestFirst(func(e *models.LedgerEntry) bool { return e.WalletID == walletID })
	list, total := paginate(rows, page)
	return list, total, nil
}

func (tx *memTx) SumEntries(_ context.Context, walletID uuid.UUID) (money.Amount, error) {
	sum := money.Zero
	for _, e := range tx.m.entries.rows {
		if e != nil && e.WalletID == walletID {
			sum = sum.Add(e.Amount)
		}
	}
	return sum, nil
}

// --- top-ups ---

func (tx *memTx) InsertTopUp(_ context.Context, r *models.TopUpRequest) error {
	tx.record(tx.m.topups.insert(r.ID.String(), r))
	return nil
}

func (tx *memTx) GetTopUp(_ context.Context, id uuid.UUID) (*models.TopUpRequest, error) {
	r, ok := tx.m.topups.get(id.String())
	if !ok {
		return nil, models.ErrNotFound
	}
	return r, nil
}

func (tx *memTx) LockTopUp(ctx context.Context, id uuid.UUID) (*models.TopUpRequest, error) {
	return tx.GetTopUp(ctx, id)
}

func (tx *memTx) UpdateTopUp(_ context.Context, r *models.TopUpRequest) error {
	if _, ok := tx.m.topups.get(r.ID.String()); !ok {
		return models.ErrNotFound
	}
	tx.record(tx.m.topups.replace(r.ID.String(), r))
	return nil
}

func (tx *memTx) ListTopUps(_ context.Context, f TopUpFilter) ([]*models.TopUpRequest, int, error) {
	rows := tx.m.topups.newestFirst(func(r *models.TopUpRequest) bool {
		return (f.VendorID == nil || r.VendorID == *f.VendorID) && (f.Status == "" || r.Status == f.Status)
	})
	list, total := paginate(rows, f.Page)
	return list, total, nil
}

func (tx *memTx) TopUpStats(_ context.Context, vendorID *uuid.UUID) (map[string]models.StatusTotal, error) {
	out := make(map[string]models.StatusTotal)
	for _, r := range tx.m.topups.rows {
		if r == nil || (vendorID != nil && r.VendorID != *vendorID) {
			continue
		}
		st := out[r.Status]
		st.Count++
		st.Amount = st.Amount.Add(r.Amount)
		out[r.Status] = st
	}
	return out, nil
}

// --- beneficiaries ---

func (tx *memTx) InsertBeneficiary(_ context.Context, b *models.Beneficiary) error {
	tx.record(tx.m.beneficiaries.insert(b.ID.String(), b))
	return nil
}

func (tx *memTx) GetBeneficiary(_ context.Context, id uuid.UUID) (*models.Beneficiary, error) {
	b, ok := tx.m.beneficiaries.get(id.String())
	if !ok {
		return nil, models.ErrNotFound
	}
	return b, nil
}

func (tx *memTx) UpdateBeneficiary(_ context.Context, b *models.Beneficiary) error {
	if _, ok := tx.m.beneficiaries.get(b.ID.String()); !ok {
		return models.ErrNotFound
	}
	tx.record(tx.m.beneficiaries.replace(b.ID.String(), b))
	return nil
}

func (tx *memTx) DeleteBeneficiary(_ context.Context, id uuid.UUID) error {
	if _, ok := tx.m.beneficiaries.get(id.String()); !ok {
		return models.ErrNotFound
	}
	tx.record(tx.m.beneficiaries.remove(id.String()))
	return nil
}

func (tx *memTx) ListBeneficiaries(_ context.Context, f BeneficiaryFilter) ([]*models.Beneficiary, int, error) {
	rows := tx.m.beneficiaries.newestFirst(func(b *models.Beneficiary) bool {
		return b.VendorID == f.VendorID &&
			(f.TransferType == "" || b.TransferType == f.TransferType) &&
			(f.Active == nil || b.Active == *f.Active)
	})
	list, total := paginate(rows, f.Page)
	return list, total, nil
}

func (tx *memTx) CountPayoutsByBeneficiary(_ context.Context, id uuid.UUID) (int, error) {
	n := 0
	for _, p := range tx.m.payouts.rows {
		if p != nil && p.BeneficiaryID != nil && *p.BeneficiaryID == id {
			n++
		}
	}
	return n, nil
}

// --- payouts ---

func (tx *memTx) InsertPayout(_ context.Context, p *models.Payout) error {
	if _, ok := tx.m.payouts.get(p.MerchantReferenceID); ok {
		return models.ErrDuplicateReference
	}
	tx.record(tx.m.payouts.insert(p.MerchantReferenceID, p))
	return nil
}

func (tx *memTx) GetPayoutByReference(_ context.Context, ref string) (*models.Payout, error) {
	p, ok := tx.m.payouts.get(ref)
	if !ok {
		return nil, models.ErrNotFound
	}
	return p, nil
}

func (tx *memTx) LockPayout(ctx context.Context, ref string) (*models.Payout, error) {
	return tx.GetPayoutByReference(ctx, ref)
}

func (tx *memTx) UpdatePayout(_ context.Context, p *models.Payout) error {
	cur, ok := tx.m.payouts.get(p.MerchantReferenceID)
	if !ok {
		return models.ErrNotFound
	}
	if cur.Version != p.Version {
		return ErrVersionConflict
	}
	p.Version++
	tx.record(tx.m.payouts.replace(p.MerchantReferenceID, p))
	return nil
}

func (tx *memTx) ListPayouts(_ context.Context, f PayoutFilter) ([]*models.Payout, int, error) {
	rows := tx.m.payouts.newestFirst(func(p *models.Payout) bool {
		return (f.VendorID == nil || p.VendorID == *f.VendorID) &&
			(f.Status == "" || p.Status == f.Status) &&
			(f.TransferType == "" || p.TransferType == f.TransferType) &&
			(f.NeedsReview == nil || p.NeedsReview == *f.NeedsReview)
	})
	list, total := paginate(rows, f.Page)
	return list, total, nil
}

func (tx *memTx) ListUnresolvedPayouts(_ context.Context, f UnresolvedFilter) ([]*models.Payout, error) {
	rows := tx.m.payouts.newestFirst(func(p *models.Payout) bool {
		if p.Status != models.PayoutPending && p.Status != models.PayoutProcessing && !p.Unconfirmed {
			return false
		}
		if p.NeedsReview || !p.CreatedAt.Before(f.CreatedBefore) {
			return false
		}
		return p.LastCheckedAt == nil || p.LastCheckedAt.Before(f.CheckedBefore)
	})
	// Oldest first so long-stuck payouts are not starved.
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].CreatedAt.Before(rows[j].CreatedAt) })
	if f.Limit > 0 && len(rows) > f.Limit {
		rows = rows[:f.Limit]
	}
	return rows, nil
}

func (tx *memTx) PayoutStats(_ context.Context, f PayoutStatsFilter) (map[string]models.StatusTotal, error) {
	out := make(map[string]models.StatusTotal)
	for _, p := range tx.m.payouts.rows {
		if p == nil || (f.VendorID != nil && p.VendorID != *f.VendorID) {
			continue
		}
		if f.Since != nil && p.CreatedAt.Before(*f.Since) {
			continue
		}
		st := out[p.Status]
		st.Count++
		st.Amount = st.Amount.Add(p.Amount)
		out[p.Status] = st
	}
	return out, nil
}

func (tx *memTx) TopVendorsByPayout(_ context.Context, since *time.Time, limit int) ([]VendorPayoutTotal, error) {
	totals := make(map[uuid.UUID]*VendorPayoutTotal)
	for _, p := range tx.m.payouts.rows {
		if p == nil || p.Status != models.PayoutSuccess {
			continue
		}
		if since != nil && p.CreatedAt.Before(*since) {
			continue
		}
		vt, ok := totals[p.VendorID]
		if !ok {
			vt = &VendorPayoutTotal{VendorID: p.VendorID}
			if a, found := tx.m.accounts.get(p.VendorID.String()); found {
				vt.Email = a.Email
			}
			totals[p.VendorID] = vt
		}
		vt.Count++
		vt.Amount = vt.Amount.Add(p.Amount)
	}
	out := make([]VendorPayoutTotal, 0, len(totals))
	for _, vt := range totals {
		out = append(out, *vt)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Amount.Cmp(out[j].Amount); c != 0 {
			return c > 0
		}
		return out[i].VendorID.String() < out[j].VendorID.String()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
