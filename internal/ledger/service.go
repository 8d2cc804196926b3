// Package ledger owns wallet balances and the append-only entries that change them.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dravya/backend/internal/metrics"
	"github.com/dravya/backend/internal/models"
	"github.com/dravya/backend/internal/money"
	"github.com/dravya/backend/internal/store"
)

// Service appends ledger entries and keeps each wallet's running balance equal
// to the sum of its entries. The ...Tx variants run inside the caller's
// transaction; the others open their own.
type Service interface {
	CreditTx(ctx context.Context, tx store.Tx, walletID uuid.UUID, amount money.Amount, src models.SourceRef) (*models.LedgerEntry, error)
	DebitTx(ctx context.Context, tx store.Tx, walletID uuid.UUID, amount money.Amount, src models.SourceRef) (*models.LedgerEntry, error)
	ReverseTx(ctx context.Context, tx store.Tx, originalEntryID uuid.UUID) (*models.LedgerEntry, error)

	Credit(ctx context.Context, walletID uuid.UUID, amount money.Amount, src models.SourceRef) (*models.LedgerEntry, error)
	Debit(ctx context.Context, walletID uuid.UUID, amount money.Amount, src models.SourceRef) (*models.LedgerEntry, error)
	Reverse(ctx context.Context, originalEntryID uuid.UUID) (*models.LedgerEntry, error)

	Balance(ctx context.Context, walletID uuid.UUID) (money.Amount, error)
	WalletForVendor(ctx context.Context, vendorID uuid.UUID) (*models.Wallet, error)
	Entries(ctx context.Context, walletID uuid.UUID, page models.Page) ([]*models.LedgerEntry, int, error)
	Snapshot(ctx context.Context, walletID uuid.UUID, limit int) (*models.Wallet, []*models.LedgerEntry, error)
	Verify(ctx context.Context, walletID uuid.UUID) (*Report, error)
}

// Report compares a wallet's cached balance with the sum of its entries.
type Report struct {
	WalletID   uuid.UUID    `json:"wallet_id"`
	Cached     money.Amount `json:"cached_balance"`
	Computed   money.Amount `json:"computed_balance"`
	Consistent bool         `json:"consistent"`
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

func (s *service) CreditTx(ctx context.Context, tx store.Tx, walletID uuid.UUID, amount money.Amount, src models.SourceRef) (*models.LedgerEntry, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("credit %s: %w", amount, models.ErrInvalidAmount)
	}
	return s.apply(ctx, tx, walletID, amount, models.EntryTopUpCredit, src, nil)
}

// DebitTx checks balance >= amount and decrements under the wallet lock. On
// ErrInsufficientFunds nothing has been written.
func (s *service) DebitTx(ctx context.Context, tx store.Tx, walletID uuid.UUID, amount money.Amount, src models.SourceRef) (*models.LedgerEntry, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("debit %s: %w", amount, models.ErrInvalidAmount)
	}
	return s.apply(ctx, tx, walletID, amount.Neg(), models.EntryPayoutDebit, src, nil)
}

// ReverseTx credits back a payout debit. Reversing the same entry twice fails
// with ErrAlreadyReversed and leaves the balance untouched.
func (s *service) ReverseTx(ctx context.Context, tx store.Tx, originalEntryID uuid.UUID) (*models.LedgerEntry, error) {
	orig, err := tx.GetEntry(ctx, originalEntryID)
	if err != nil {
		return nil, fmt.Errorf("load entry %s: %w", originalEntryID, err)
	}
	if orig.Type != models.EntryPayoutDebit {
		return nil, fmt.Errorf("entry %s is %s, only payout debits can be reversed: %w", orig.ID, orig.Type, models.ErrInvalidTransition)
	}
	if _, err := tx.GetReversalOf(ctx, orig.ID); err == nil {
		return nil, fmt.Errorf("entry %s: %w", orig.ID, models.ErrAlreadyReversed)
	}
	origID := orig.ID
	return s.apply(ctx, tx, orig.WalletID, orig.Amount.Abs(), models.EntryPayoutReversal, orig.Source, &origID)
}

// apply locks the wallet, appends one entry and moves the running balance.
func (s *service) apply(ctx context.Context, tx store.Tx, walletID uuid.UUID, delta money.Amount, entryType string, src models.SourceRef, reverses *uuid.UUID) (*models.LedgerEntry, error) {
	w, err := tx.LockWallet(ctx, walletID)
	if err != nil {
		return nil, fmt.Errorf("lock wallet %s: %w", walletID, err)
	}
	next := w.Balance.Add(delta)
	if next.IsNegative() {
		return nil, fmt.Errorf("wallet %s balance %s < %s: %w", walletID, w.Balance, delta.Abs(), models.ErrInsufficientFunds)
	}
	now := s.now().UTC()
	e := &models.LedgerEntry{
		ID:              uuid.New(),
		WalletID:        walletID,
		Amount:          delta,
		BalanceAfter:    next,
		Type:            entryType,
		Source:          src,
		ReversesEntryID: reverses,
		CreatedAt:       now,
	}
	if err := tx.InsertEntry(ctx, e); err != nil {
		return nil, fmt.Errorf("insert %s entry: %w", entryType, err)
	}
	if err := tx.UpdateWalletBalance(ctx, walletID, next, now); err != nil {
		return nil, fmt.Errorf("update wallet %s: %w", walletID, err)
	}
	metrics.LedgerEntries.WithLabelValues(entryType).Inc()
	return e, nil
}

func (s *service) Credit(ctx context.Context, walletID uuid.UUID, amount money.Amount, src models.SourceRef) (*models.LedgerEntry, error) {
	var e *models.LedgerEntry
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		e, err = s.CreditTx(ctx, tx, walletID, amount, src)
		return err
	})
	return e, err
}

func (s *service) Debit(ctx context.Context, walletID uuid.UUID, amount money.Amount, src models.SourceRef) (*models.LedgerEntry, error) {
	var e *models.LedgerEntry
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		e, err = s.DebitTx(ctx, tx, walletID, amount, src)
		return err
	})
	return e, err
}

func (s *service) Reverse(ctx context.Context, originalEntryID uuid.UUID) (*models.LedgerEntry, error) {
	var e *models.LedgerEntry
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		e, err = s.ReverseTx(ctx, tx, originalEntryID)
		return err
	})
	return e, err
}

// Balance is a point-in-time read of the running balance, taken without a lock.
func (s *service) Balance(ctx context.Context, walletID uuid.UUID) (money.Amount, error) {
	var bal money.Amount
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		w, err := tx.GetWallet(ctx, walletID)
		if err != nil {
			return err
		}
		bal = w.Balance
		return nil
	})
	return bal, err
}

func (s *service) WalletForVendor(ctx context.Context, vendorID uuid.UUID) (*models.Wallet, error) {
	var w *models.Wallet
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		w, err = tx.GetWalletByVendor(ctx, vendorID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("wallet for vendor %s: %w", vendorID, err)
	}
	return w, nil
}

// Entries returns one page of the wallet's statement, newest first.
func (s *service) Entries(ctx context.Context, walletID uuid.UUID, page models.Page) ([]*models.LedgerEntry, int, error) {
	var list []*models.LedgerEntry
	var total int
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		list, total, err = tx.ListEntries(ctx, walletID, page)
		return err
	})
	return list, total, err
}

// Snapshot reads the wallet and up to limit of its newest entries in one
// transaction. The wallet lock keeps writers out so the entries and the
// balance agree.
func (s *service) Snapshot(ctx context.Context, walletID uuid.UUID, limit int) (*models.Wallet, []*models.LedgerEntry, error) {
	var (
		wallet *models.Wallet
		out    []*models.LedgerEntry
	)
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		w, err := tx.LockWallet(ctx, walletID)
		if err != nil {
			return err
		}
		wallet = w
		out = nil
		page := models.Page{Page: 1, Limit: models.MaxPageLimit}
		for len(out) < limit {
			list, total, err := tx.ListEntries(ctx, walletID, page)
			if err != nil {
				return err
			}
			out = append(out, list...)
			if len(list) == 0 || page.Offset()+len(list) >= total {
				break
			}
			page.Page++
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot wallet %s: %w", walletID, err)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return wallet, out, nil
}

func (s *service) Verify(ctx context.Context, walletID uuid.UUID) (*Report, error) {
	var rep Report
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		w, err := tx.LockWallet(ctx, walletID)
		if err != nil {
			return err
		}
		sum, err := tx.SumEntries(ctx, walletID)
		if err != nil {
			return err
		}
		rep = Report{WalletID: walletID, Cached: w.Balance, Computed: sum, Consistent: w.Balance.Equal(sum)}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("verify wallet %s: %w", walletID, err)
	}
	if !rep.Consistent {
		s.log.Error("wallet balance drift", "wallet_id", walletID, "cached", rep.Cached.String(), "computed", rep.Computed.String())
	}
	return &rep, nil
}
