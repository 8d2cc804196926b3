package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dravya/backend/internal/models"
	"github.com/dravya/backend/internal/store"
)

const payoutColumns = `id, vendor_id, beneficiary_id, beneficiary, merchant_reference_id, amount, transfer_type, status,
	provider_txn_id, utr, narration, last_error, debit_entry_id, reversal_entry_id, reconcile_attempts,
	last_checked_at, needs_review, review_reason, unconfirmed, version, created_at, updated_at`

func scanPayout(row scanner) (*models.Payout, error) {
	var p models.Payout
	err := row.Scan(&p.ID, &p.VendorID, &p.BeneficiaryID, &p.Beneficiary, &p.MerchantReferenceID, &p.Amount, &p.TransferType, &p.Status,
		&p.ProviderTxnID, &p.UTR, &p.Narration, &p.LastError, &p.DebitEntryID, &p.ReversalEntryID, &p.ReconcileAttempts,
		&p.LastCheckedAt, &p.NeedsReview, &p.ReviewReason, &p.Unconfirmed, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func collectPayouts(rows pgx.Rows) ([]*models.Payout, error) {
	defer rows.Close()
	list := []*models.Payout{}
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

func (t *pgTx) InsertPayout(ctx context.Context, p *models.Payout) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO payouts (id, vendor_id, beneficiary_id, beneficiary, merchant_reference_id, amount, transfer_type, status,
			narration, debit_entry_id, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, p.ID, p.VendorID, p.BeneficiaryID, p.Beneficiary, p.MerchantReferenceID, p.Amount, p.TransferType, p.Status,
		p.Narration, p.DebitEntryID, p.Version, p.CreatedAt, p.UpdatedAt)
	return translate(err)
}

func (t *pgTx) GetPayoutByReference(ctx context.Context, ref string) (*models.Payout, error) {
	return scanPayout(t.tx.QueryRow(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE merchant_reference_id = $1`, ref))
}

func (t *pgTx) LockPayout(ctx context.Context, ref string) (*models.Payout, error) {
	return scanPayout(t.tx.QueryRow(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE merchant_reference_id = $1 FOR UPDATE`, ref))
}

// UpdatePayout writes every mutable column when version still matches.
func (t *pgTx) UpdatePayout(ctx context.Context, p *models.Payout) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE payouts SET
			status = $3, provider_txn_id = $4, utr = $5, last_error = $6, reversal_entry_id = $7,
			reconcile_attempts = $8, last_checked_at = $9, needs_review = $10, review_reason = $11,
			unconfirmed = $12, updated_at = $13, version = version + 1
		WHERE merchant_reference_id = $1 AND version = $2
	`, p.MerchantReferenceID, p.Version, p.Status, p.ProviderTxnID, p.UTR, p.LastError, p.ReversalEntryID,
		p.ReconcileAttempts, p.LastCheckedAt, p.NeedsReview, p.ReviewReason, p.Unconfirmed, p.UpdatedAt)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := t.GetPayoutByReference(ctx, p.MerchantReferenceID); err != nil {
			return err
		}
		return store.ErrVersionConflict
	}
	p.Version++
	return nil
}

func (t *pgTx) ListPayouts(ctx context.Context, f store.PayoutFilter) ([]*models.Payout, int, error) {
	page := f.Page.Normalize()
	where := `WHERE ($1::uuid IS NULL OR vendor_id = $1) AND ($2 = '' OR status = $2)
		AND ($3 = '' OR transfer_type = $3) AND ($4::boolean IS NULL OR needs_review = $4)`
	args := []any{f.VendorID, f.Status, f.TransferType, f.NeedsReview}

	var total int
	if err := t.tx.QueryRow(ctx, `SELECT count(*) FROM payouts `+where, args...).Scan(&total); err != nil {
		return nil, 0, translate(err)
	}
	rows, err := t.tx.Query(ctx, `
		SELECT `+payoutColumns+` FROM payouts `+where+`
		ORDER BY created_at DESC, id DESC LIMIT $5 OFFSET $6
	`, append(args, page.Limit, page.Offset())...)
	if err != nil {
		return nil, 0, translate(err)
	}
	list, err := collectPayouts(rows)
	return list, total, err
}

// ListUnresolvedPayouts returns the oldest candidates first.
func (t *pgTx) ListUnresolvedPayouts(ctx context.Context, f store.UnresolvedFilter) ([]*models.Payout, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = models.MaxPageLimit
	}
	rows, err := t.tx.Query(ctx, `
		SELECT `+payoutColumns+` FROM payouts
		WHERE (status IN ('pending', 'processing') OR unconfirmed) AND NOT needs_review
			AND created_at < $1 AND (last_checked_at IS NULL OR last_checked_at < $2)
		ORDER BY created_at ASC LIMIT $3
	`, f.CreatedBefore, f.CheckedBefore, limit)
	if err != nil {
		return nil, translate(err)
	}
	return collectPayouts(rows)
}

func (t *pgTx) PayoutStats(ctx context.Context, f store.PayoutStatsFilter) (map[string]models.StatusTotal, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT status, count(*), COALESCE(SUM(amount), 0) FROM payouts
		WHERE ($1::uuid IS NULL OR vendor_id = $1) AND ($2::timestamptz IS NULL OR created_at >= $2)
		GROUP BY status
	`, f.VendorID, f.Since)
	if err != nil {
		return nil, translate(err)
	}
	return scanStatusTotals(rows)
}

func (t *pgTx) TopVendorsByPayout(ctx context.Context, since *time.Time, limit int) ([]store.VendorPayoutTotal, error) {
	if limit <= 0 {
		limit = models.MaxPageLimit
	}
	rows, err := t.tx.Query(ctx, `
		SELECT p.vendor_id, a.email, count(*), SUM(p.amount) AS total
		FROM payouts p JOIN accounts a ON a.id = p.vendor_id
		WHERE p.status = 'success' AND ($1::timestamptz IS NULL OR p.created_at >= $1)
		GROUP BY p.vendor_id, a.email
		ORDER BY total DESC, p.vendor_id
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	out := []store.VendorPayoutTotal{}
	for rows.Next() {
		var v store.VendorPayoutTotal
		if err := rows.Scan(&v.VendorID, &v.Email, &v.Count, &v.Amount); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func scanStatusTotals(rows pgx.Rows) (map[string]models.StatusTotal, error) {
	defer rows.Close()
	out := make(map[string]models.StatusTotal)
	for rows.Next() {
		var status string
		var st models.StatusTotal
		if err := rows.Scan(&status, &st.Count, &st.Amount); err != nil {
			return nil, err
		}
		out[status] = st
	}
	return out, rows.Err()
}
