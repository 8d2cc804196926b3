package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/dravya/backend/internal/models"
	"github.com/dravya/backend/internal/store"
)

const topUpColumns = `id, vendor_id, amount, status, admin_id, admin_notes, rejection_reason, ledger_entry_id, created_at, processed_at`

func scanTopUp(row scanner) (*models.TopUpRequest, error) {
	var r models.TopUpRequest
	if err := row.Scan(&r.ID, &r.VendorID, &r.Amount, &r.Status, &r.AdminID, &r.AdminNotes, &r.RejectionReason, &r.LedgerEntryID, &r.CreatedAt, &r.ProcessedAt); err != nil {
		return nil, translate(err)
	}
	return &r, nil
}

func (t *pgTx) InsertTopUp(ctx context.Context, r *models.TopUpRequest) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO topup_requests (id, vendor_id, amount, status, admin_notes, rejection_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, r.ID, r.VendorID, r.Amount, r.Status, r.AdminNotes, r.RejectionReason, r.CreatedAt)
	return translate(err)
}

func (t *pgTx) GetTopUp(ctx context.Context, id uuid.UUID) (*models.TopUpRequest, error) {
	return scanTopUp(t.tx.QueryRow(ctx, `SELECT `+topUpColumns+` FROM topup_requests WHERE id = $1`, id))
}

func (t *pgTx) LockTopUp(ctx context.Context, id uuid.UUID) (*models.TopUpRequest, error) {
	return scanTopUp(t.tx.QueryRow(ctx, `SELECT `+topUpColumns+` FROM topup_requests WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) UpdateTopUp(ctx context.Context, r *models.TopUpRequest) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE topup_requests
		SET status = $2, admin_id = $3, admin_notes = $4, rejection_reason = $5, ledger_entry_id = $6, processed_at = $7
		WHERE id = $1
	`, r.ID, r.Status, r.AdminID, r.AdminNotes, r.RejectionReason, r.LedgerEntryID, r.ProcessedAt)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (t *pgTx) ListTopUps(ctx context.Context, f store.TopUpFilter) ([]*models.TopUpRequest, int, error) {
	page := f.Page.Normalize()
	where := `WHERE ($1::uuid IS NULL OR vendor_id = $1) AND ($2 = '' OR status = $2)`

	var total int
	if err := t.tx.QueryRow(ctx, `SELECT count(*) FROM topup_requests `+where, f.VendorID, f.Status).Scan(&total); err != nil {
		return nil, 0, translate(err)
	}
	rows, err := t.tx.Query(ctx, `
		SELECT `+topUpColumns+` FROM topup_requests `+where+`
		ORDER BY created_at DESC, id DESC LIMIT $3 OFFSET $4
	`, f.VendorID, f.Status, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, translate(err)
	}
	defer rows.Close()
	list := []*models.TopUpRequest{}
	for rows.Next() {
		r, err := scanTopUp(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, r)
	}
	return list, total, rows.Err()
}

func (t *pgTx) TopUpStats(ctx context.Context, vendorID *uuid.UUID) (map[string]models.StatusTotal, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT status, count(*), COALESCE(SUM(amount), 0)
		FROM topup_requests WHERE ($1::uuid IS NULL OR vendor_id = $1)
		GROUP BY status
	`, vendorID)
	if err != nil {
		return nil, translate(err)
	}
	return scanStatusTotals(rows)
}
