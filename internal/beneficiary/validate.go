// Package beneficiary keeps the validated payout destinations a vendor has saved.
package beneficiary

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dravya/backend/internal/models"
)

var (
	phonePattern   = regexp.MustCompile(`^[0-9]{10}$`)
	ifscPattern    = regexp.MustCompile(`^[A-Z]{4}0[A-Z0-9]{6}$`)
	vpaPattern     = regexp.MustCompile(`^[a-z0-9._-]{2,256}@[a-z][a-z0-9]{1,63}$`)
	accountPattern = regexp.MustCompile(`^[0-9]{9,18}$`)
)

// Normalize trims every field, upper-cases the IFSC and transfer type, and
// lower-cases the VPA.
func Normalize(d models.BeneficiaryDetails) models.BeneficiaryDetails {
	d.Name = strings.TrimSpace(d.Name)
	d.Phone = strings.TrimSpace(d.Phone)
	d.TransferType = strings.ToUpper(strings.TrimSpace(d.TransferType))
	d.VPA = strings.ToLower(strings.TrimSpace(d.VPA))
	d.AccountNumber = strings.TrimSpace(d.AccountNumber)
	d.IFSC = strings.ToUpper(strings.TrimSpace(d.IFSC))
	d.BankName = strings.TrimSpace(d.BankName)
	return d
}

// Validate checks a normalized destination. Missing required fields are
// ErrIncompleteBeneficiary, fields that belong to the other rail are
// ErrModeMismatch, and malformed values are ErrInvalidBeneficiary.
func Validate(d models.BeneficiaryDetails) error {
	if !models.ValidTransferType(d.TransferType) {
		return fmt.Errorf("transfer type %q: %w", d.TransferType, models.ErrInvalidBeneficiary)
	}
	var missing []string
	if d.Name == "" {
		missing = append(missing, "name")
	}
	if d.Phone == "" {
		missing = append(missing, "phone_number")
	}
	switch d.TransferType {
	case models.TransferUPI:
		if d.VPA == "" {
			missing = append(missing, "vpa_address")
		}
	default:
		if d.AccountNumber == "" {
			missing = append(missing, "account_number")
		}
		if d.IFSC == "" {
			missing = append(missing, "ifsc")
		}
		if d.BankName == "" {
			missing = append(missing, "bank_name")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s requires %s: %w", d.TransferType, strings.Join(missing, ", "), models.ErrIncompleteBeneficiary)
	}

	if d.TransferType == models.TransferUPI && d.HasBankFields() {
		return fmt.Errorf("UPI beneficiary must not carry bank account fields: %w", models.ErrModeMismatch)
	}
	if d.TransferType != models.TransferUPI && d.VPA != "" {
		return fmt.Errorf("%s beneficiary must not carry a VPA: %w", d.TransferType, models.ErrModeMismatch)
	}

	if !phonePattern.MatchString(d.Phone) {
		return fmt.Errorf("phone number must be exactly 10 digits: %w", models.ErrInvalidBeneficiary)
	}
	if d.TransferType == models.TransferUPI {
		if !vpaPattern.MatchString(d.VPA) {
			return fmt.Errorf("vpa %q: %w", d.VPA, models.ErrInvalidBeneficiary)
		}
		return nil
	}
	if !ifscPattern.MatchString(d.IFSC) {
		return fmt.Errorf("ifsc %q: %w", d.IFSC, models.ErrInvalidBeneficiary)
	}
	if !accountPattern.MatchString(d.AccountNumber) {
		return fmt.Errorf("account number must be 9 to 18 digits: %w", models.ErrInvalidBeneficiary)
	}
	return nil
}

// Compatible reports whether a destination can be paid over transferType.
// UPI needs a VPA; IMPS and NEFT share the same bank fields.
func Compatible(d models.BeneficiaryDetails, transferType string) error {
	switch transferType {
	case models.TransferUPI:
		if d.VPA == "" {
			return fmt.Errorf("destination has no VPA for UPI: %w", models.ErrModeMismatch)
		}
	case models.TransferIMPS, models.TransferNEFT:
		if d.AccountNumber == "" || d.IFSC == "" {
			return fmt.Errorf("destination has no bank account for %s: %w", transferType, models.ErrModeMismatch)
		}
	default:
		return fmt.Errorf("transfer type %q: %w", transferType, models.ErrModeMismatch)
	}
	return nil
}
