// Package statement renders a wallet's ledger as an XLSX workbook.
package statement

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/dravya/backend/internal/models"
)

// Source reads a wallet and its newest entries as one consistent view.
type Source interface {
	Snapshot(ctx context.Context, walletID uuid.UUID, limit int) (*models.Wallet, []*models.LedgerEntry, error)
}

const sheetName = "Statement"

var headers = []string{"Date", "Entry ID", "Type", "Source", "Source ID", "Amount", "Balance After"}

// maxRows caps a single export.
const maxRows = 10000

// Write renders the wallet's entries, newest first, followed by a closing
// balance row. Amounts go into numeric cells as exact decimal text.
func Write(ctx context.Context, src Source, walletID uuid.UUID, w io.Writer) error {
	wallet, entries, err := src.Snapshot(ctx, walletID, maxRows)
	if err != nil {
		return fmt.Errorf("statement entries: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	numFmt := "#,##0.00"
	amount, err := f.NewStyle(&excelize.Style{CustomNumFmt: &numFmt})
	if err != nil {
		return err
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, h)
	}
	f.SetCellStyle(sheetName, "A1", "G1", bold)

	row := 2
	for _, e := range entries {
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), e.CreatedAt.UTC().Format(time.RFC3339))
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), e.ID.String())
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), e.Type)
		f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), e.Source.Kind)
		f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), e.Source.ID.String())
		f.SetCellDefault(sheetName, fmt.Sprintf("F%d", row), e.Amount.String())
		f.SetCellDefault(sheetName, fmt.Sprintf("G%d", row), e.BalanceAfter.String())
		row++
	}
	if row > 2 {
		f.SetCellStyle(sheetName, "F2", fmt.Sprintf("G%d", row-1), amount)
	}

	row++
	f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), "Closing balance")
	f.SetCellDefault(sheetName, fmt.Sprintf("G%d", row), wallet.Balance.String())
	f.SetCellStyle(sheetName, fmt.Sprintf("A%d", row), fmt.Sprintf("G%d", row), bold)
	f.SetColWidth(sheetName, "A", "B", 38)
	f.SetColWidth(sheetName, "C", "E", 20)
	f.SetColWidth(sheetName, "F", "G", 16)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Filename is the download name for a wallet statement generated at now.
func Filename(wallet *models.Wallet, now time.Time) string {
	return fmt.Sprintf("statement_%s_%s.xlsx", wallet.VendorID.String()[:8], now.UTC().Format("20060102_150405"))
}
