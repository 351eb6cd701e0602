package accounts

import (
	"time"

	"github.com/shopspring/decimal"
)

// Nature enumerates chart of accounts categories.
type Nature string

const (
	NatureAsset     Nature = "ASSET"
	NatureLiability Nature = "LIABILITY"
	NatureEquity    Nature = "EQUITY"
	NatureRevenue   Nature = "REVENUE"
	NatureExpense   Nature = "EXPENSE"
)

// Account models a chart of accounts node. Balance is the running balance
// maintained by the posting service; RowVersion increments on every mutation.
type Account struct {
	ID         int64
	OrgID      int64
	Code       string
	Name       string
	Nature     Nature
	ParentID   *int64
	Balance    decimal.Decimal
	RowVersion int64
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SignedDelta converts a debit/credit pair into the balance movement for the
// account nature. Debits increase assets and expenses; credits increase
// liabilities, equity and revenue.
func SignedDelta(nature Nature, debit, credit decimal.Decimal) decimal.Decimal {
	switch nature {
	case NatureAsset, NatureExpense:
		return debit.Sub(credit)
	default:
		return credit.Sub(debit)
	}
}
