package models

import (
	"time"

	"github.com/google/uuid"
)

// Transfer types supported by the payment rail.
const (
	TransferUPI  = "UPI"
	TransferIMPS = "IMPS"
	TransferNEFT = "NEFT"
)

// ValidTransferType reports whether t is UPI, IMPS or NEFT.
func ValidTransferType(t string) bool {
	switch t {
	case TransferUPI, TransferIMPS, TransferNEFT:
		return true
	}
	return false
}

// BeneficiaryDetails is the destination of a payout. Payouts keep their own
// copy so later edits to a saved beneficiary never rewrite history.
type BeneficiaryDetails struct {
	Name          string `json:"name"`
	Phone         string `json:"phone_number"`
	TransferType  string `json:"transfer_type"`
	VPA           string `json:"vpa_address,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
	IFSC          string `json:"ifsc,omitempty"`
	BankName      string `json:"bank_name,omitempty"`
}

// HasBankFields reports whether any IMPS/NEFT destination field is set.
func (d BeneficiaryDetails) HasBankFields() bool {
	return d.AccountNumber != "" || d.IFSC != "" || d.BankName != ""
}

// Beneficiary is a saved payout destination owned by a vendor.
type Beneficiary struct {
	ID       uuid.UUID `json:"id"`
	VendorID uuid.UUID `json:"vendor_id"`
	BeneficiaryDetails
	Active    bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
