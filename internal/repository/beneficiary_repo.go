package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/dravya/backend/internal/models"
	"github.com/dravya/backend/internal/store"
)

const beneficiaryColumns = `id, vendor_id, name, phone_number, transfer_type, vpa_address, account_number, ifsc, bank_name, is_active, created_at, updated_at`

func scanBeneficiary(row scanner) (*models.Beneficiary, error) {
	var b models.Beneficiary
	if err := row.Scan(&b.ID, &b.VendorID, &b.Name, &b.Phone, &b.TransferType, &b.VPA, &b.AccountNumber, &b.IFSC, &b.BankName, &b.Active, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, translate(err)
	}
	return &b, nil
}

func (t *pgTx) InsertBeneficiary(ctx context.Context, b *models.Beneficiary) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO beneficiaries (id, vendor_id, name, phone_number, transfer_type, vpa_address, account_number, ifsc, bank_name, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, b.ID, b.VendorID, b.Name, b.Phone, b.TransferType, b.VPA, b.AccountNumber, b.IFSC, b.BankName, b.Active, b.CreatedAt, b.UpdatedAt)
	return translate(err)
}

func (t *pgTx) GetBeneficiary(ctx context.Context, id uuid.UUID) (*models.Beneficiary, error) {
	return scanBeneficiary(t.tx.QueryRow(ctx, `SELECT `+beneficiaryColumns+` FROM beneficiaries WHERE id = $1`, id))
}

func (t *pgTx) UpdateBeneficiary(ctx context.Context, b *models.Beneficiary) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE beneficiaries
		SET name = $2, phone_number = $3, transfer_type = $4, vpa_address = $5, account_number = $6, ifsc = $7, bank_name = $8, is_active = $9, updated_at = $10
		WHERE id = $1
	`, b.ID, b.Name, b.Phone, b.TransferType, b.VPA, b.AccountNumber, b.IFSC, b.BankName, b.Active, b.UpdatedAt)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DeleteBeneficiary removes the row. The payouts foreign key rejects the delete
// with models.ErrBeneficiaryInUse when any payout still references it.
func (t *pgTx) DeleteBeneficiary(ctx context.Context, id uuid.UUID) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM beneficiaries WHERE id = $1`, id)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (t *pgTx) ListBeneficiaries(ctx context.Context, f store.BeneficiaryFilter) ([]*models.Beneficiary, int, error) {
	page := f.Page.Normalize()
	where := `WHERE vendor_id = $1 AND ($2 = '' OR transfer_type = $2) AND ($3::boolean IS NULL OR is_active = $3)`

	var total int
	if err := t.tx.QueryRow(ctx, `SELECT count(*) FROM beneficiaries `+where, f.VendorID, f.TransferType, f.Active).Scan(&total); err != nil {
		return nil, 0, translate(err)
	}
	rows, err := t.tx.Query(ctx, `
		SELECT `+beneficiaryColumns+` FROM beneficiaries `+where+`
		ORDER BY created_at DESC, id DESC LIMIT $4 OFFSET $5
	`, f.VendorID, f.TransferType, f.Active, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, translate(err)
	}
	defer rows.Close()
	list := []*models.Beneficiary{}
	for rows.Next() {
		b, err := scanBeneficiary(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, b)
	}
	return list, total, rows.Err()
}

func (t *pgTx) CountPayoutsByBeneficiary(ctx context.Context, id uuid.UUID) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `SELECT count(*) FROM payouts WHERE beneficiary_id = $1`, id).Scan(&n)
	return n, translate(err)
}
