package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dravya/backend/internal/models"
	"github.com/dravya/backend/internal/money"
)

const walletColumns = `id, vendor_id, balance, currency, created_at, updated_at`

func scanWallet(row scanner) (*models.Wallet, error) {
	var w models.Wallet
	if err := row.Scan(&w.ID, &w.VendorID, &w.Balance, &w.Currency, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, translate(err)
	}
	return &w, nil
}

func (t *pgTx) InsertWallet(ctx context.Context, w *models.Wallet) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO wallets (id, vendor_id, balance, currency, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, w.ID, w.VendorID, w.Balance, w.Currency, w.CreatedAt, w.UpdatedAt)
	return translate(err)
}

func (t *pgTx) GetWallet(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	return scanWallet(t.tx.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, id))
}

func (t *pgTx) GetWalletByVendor(ctx context.Context, vendorID uuid.UUID) (*models.Wallet, error) {
	return scanWallet(t.tx.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE vendor_id = $1`, vendorID))
}

// LockWallet locks the wallet row until the transaction ends.
func (t *pgTx) LockWallet(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	return scanWallet(t.tx.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1 FOR UPDATE`, id))
}

// UpdateWalletBalance sets the running balance. Call after LockWallet in the same tx.
func (t *pgTx) UpdateWalletBalance(ctx context.Context, id uuid.UUID, balance money.Amount, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `UPDATE wallets SET balance = $2, updated_at = $3 WHERE id = $1`, id, balance, at)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

const entryColumns = `id, wallet_id, amount, balance_after, entry_type, source_kind, source_id, reverses_entry_id, created_at`

func scanEntry(row scanner) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	if err := row.Scan(&e.ID, &e.WalletID, &e.Amount, &e.BalanceAfter, &e.Type, &e.Source.Kind, &e.Source.ID, &e.ReversesEntryID, &e.CreatedAt); err != nil {
		return nil, translate(err)
	}
	return &e, nil
}

// InsertEntry appends a ledger entry. A second reversal of the same entry hits
// ledger_entries_reversal_key and surfaces as models.ErrAlreadyReversed.
func (t *pgTx) InsertEntry(ctx context.Context, e *models.LedgerEntry) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO ledger_entries (id, wallet_id, amount, balance_after, entry_type, source_kind, source_id, reverses_entry_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.ID, e.WalletID, e.Amount, e.BalanceAfter, e.Type, e.Source.Kind, e.Source.ID, e.ReversesEntryID, e.CreatedAt)
	return translate(err)
}

func (t *pgTx) GetEntry(ctx context.Context, id uuid.UUID) (*models.LedgerEntry, error) {
	return scanEntry(t.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE id = $1`, id))
}

func (t *pgTx) GetReversalOf(ctx context.Context, entryID uuid.UUID) (*models.LedgerEntry, error) {
	return scanEntry(t.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE reverses_entry_id = $1`, entryID))
}

func (t *pgTx) ListEntries(ctx context.Context, walletID uuid.UUID, page models.Page) ([]*models.LedgerEntry, int, error) {
	page = page.Normalize()
	var total int
	if err := t.tx.QueryRow(ctx, `SELECT count(*) FROM ledger_entries WHERE wallet_id = $1`, walletID).Scan(&total); err != nil {
		return nil, 0, translate(err)
	}
	rows, err := t.tx.Query(ctx, `
		SELECT `+entryColumns+` FROM ledger_entries
		WHERE wallet_id = $1 ORDER BY seq DESC LIMIT $2 OFFSET $3
	`, walletID, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, translate(err)
	}
	defer rows.Close()
	list := []*models.LedgerEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, e)
	}
	return list, total, rows.Err()
}

func (t *pgTx) SumEntries(ctx context.Context, walletID uuid.UUID) (money.Amount, error) {
	var sum money.Amount
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE wallet_id = $1`, walletID).Scan(&sum)
	return sum, translate(err)
}
