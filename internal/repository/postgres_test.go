package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dravya/backend/internal/models"
)

func TestTranslate(t *testing.T) {
	other := errors.New("boom")
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"nil", nil, nil},
		{"no rows", fmt.Errorf("scan: %w", pgx.ErrNoRows), models.ErrNotFound},
		{"duplicate email", &pgconn.PgError{Code: "23505", ConstraintName: "accounts_email_key"}, models.ErrDuplicateEmail},
		{"duplicate reference", &pgconn.PgError{Code: "23505", ConstraintName: "payouts_merchant_reference_id_key"}, models.ErrDuplicateReference},
		{"second reversal", &pgconn.PgError{Code: "23505", ConstraintName: "ledger_entries_reversal_key"}, models.ErrAlreadyReversed},
		{"beneficiary in use", &pgconn.PgError{Code: "23503", ConstraintName: "payouts_beneficiary_id_fkey"}, models.ErrBeneficiaryInUse},
		{"other", other, other},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translate(tt.in)
			if tt.want == nil {
				if got != nil {
					t.Fatalf("translate(nil) = %v", got)
				}
				return
			}
			if !errors.Is(got, tt.want) {
				t.Errorf("translate(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestTranslate_UnknownConstraintPassesThrough(t *testing.T) {
	in := &pgconn.PgError{Code: "23505", ConstraintName: "something_else"}
	var pgErr *pgconn.PgError
	if got := translate(in); !errors.As(got, &pgErr) {
		t.Fatalf("expected the driver error back, got %v", got)
	}
}
