package journals

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/keystone-erp/keystone-erp/internal/accounting/shared"
)

// LineInput describes a journal line for a create/update request.
type LineInput struct {
	AccountID    int64
	Debit        decimal.Decimal
	Credit       decimal.Decimal
	DepartmentID *int64
	ProjectID    *int64
	CostCenterID *int64
	TaxCodeID    *int64
	Attrs        map[string]any
}

// Validate enforces the single-sided invariant for one line.
func (in LineInput) Validate() error {
	if in.AccountID == 0 {
		return errors.New("accounting: line missing account")
	}
	if in.Debit.IsNegative() || in.Credit.IsNegative() {
		return errors.New("accounting: line negative amount")
	}
	debitSet := in.Debit.IsPositive()
	creditSet := in.Credit.IsPositive()
	if debitSet == creditSet {
		return shared.ErrSingleSided
	}
	return nil
}

// CreateInput groups fields required to create a draft journal.
type CreateInput struct {
	OrgID        int64
	TypeID       int64
	PeriodID     int64
	Date         time.Time
	Currency     string
	ExchangeRate decimal.Decimal
	Reference    string
	Memo         string
	CreatedBy    int64
	Lines        []LineInput
}

// Validate ensures the input meets the double-entry invariants.
func (in CreateInput) Validate() error {
	if in.OrgID == 0 {
		return errors.New("accounting: organization required")
	}
	if in.TypeID == 0 {
		return errors.New("accounting: journal type required")
	}
	if in.PeriodID == 0 {
		return errors.New("accounting: period required")
	}
	if in.Currency == "" {
		return errors.New("accounting: currency required")
	}
	return ValidateLines(in.Lines)
}

// ValidateLines checks per-line single-sidedness and the balance invariant
// across the set.
func ValidateLines(lines []LineInput) error {
	if len(lines) < 2 {
		return shared.ErrTooFewLines
	}
	debit := decimal.Zero
	credit := decimal.Zero
	for idx, line := range lines {
		if err := line.Validate(); err != nil {
			return fmt.Errorf("accounting: line %d: %w", idx+1, err)
		}
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	if !debit.Equal(credit) {
		return fmt.Errorf("%w: debit %s credit %s", shared.ErrUnbalanced, debit, credit)
	}
	return nil
}

// Totals sums debit and credit across the lines.
func Totals(lines []LineInput) (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, line := range lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	return debit, credit
}
