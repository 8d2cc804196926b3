package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dravya/backend/internal/models"
	"github.com/dravya/backend/internal/store"
)

const accountColumns = `id, email, name, password_hash, role, status, created_at, updated_at`

func scanAccount(row scanner) (*models.Account, error) {
	var a models.Account
	if err := row.Scan(&a.ID, &a.Email, &a.Name, &a.PasswordHash, &a.Role, &a.Status, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

func (t *pgTx) InsertAccount(ctx context.Context, a *models.Account) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO accounts (id, email, name, password_hash, role, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, a.ID, a.Email, a.Name, a.PasswordHash, a.Role, a.Status, a.CreatedAt, a.UpdatedAt)
	return translate(err)
}

func (t *pgTx) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return scanAccount(t.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

func (t *pgTx) LockAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return scanAccount(t.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	return scanAccount(t.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE lower(email) = lower($1)`, email))
}

func (t *pgTx) UpdateAccountStatus(ctx context.Context, id uuid.UUID, status string, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `UPDATE accounts SET status = $2, updated_at = $3 WHERE id = $1`, id, status, at)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (t *pgTx) ListAccounts(ctx context.Context, f store.AccountFilter) ([]*models.Account, int, error) {
	page := f.Page.Normalize()
	where := `WHERE ($1 = '' OR role = $1) AND ($2 = '' OR status = $2)`

	var total int
	if err := t.tx.QueryRow(ctx, `SELECT count(*) FROM accounts `+where, f.Role, f.Status).Scan(&total); err != nil {
		return nil, 0, translate(err)
	}
	rows, err := t.tx.Query(ctx, `
		SELECT `+accountColumns+` FROM accounts `+where+`
		ORDER BY created_at DESC, id DESC LIMIT $3 OFFSET $4
	`, f.Role, f.Status, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, translate(err)
	}
	defer rows.Close()
	list := []*models.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, a)
	}
	return list, total, rows.Err()
}

func (t *pgTx) CountAccountsByStatus(ctx context.Context, role string) (map[string]int, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT status, count(*) FROM accounts WHERE ($1 = '' OR role = $1) GROUP BY status
	`, role)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}
