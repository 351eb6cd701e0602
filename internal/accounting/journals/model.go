package journals

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status enumerates journal lifecycle values.
type Status string

const (
	StatusDraft            Status = "DRAFT"
	StatusAwaitingApproval Status = "AWAITING_APPROVAL"
	StatusApproved         Status = "APPROVED"
	StatusRejected         Status = "REJECTED"
	StatusPosted           Status = "POSTED"
	StatusReversed         Status = "REVERSED"
)

// Journal is the header of one double-entry accounting transaction.
// Version is the optimistic-concurrency token: every update-in-place must
// match the persisted value or abort.
type Journal struct {
	ID           int64
	OrgID        int64
	TypeID       int64
	Number       string
	PeriodID     int64
	Date         time.Time
	Currency     string
	ExchangeRate decimal.Decimal
	Status       Status
	TotalDebit   decimal.Decimal
	TotalCredit  decimal.Decimal
	Version      int64
	IsLocked     bool
	Reference    string
	Memo         string
	ApprovedBy   *int64
	ApprovedAt   *time.Time
	PostedBy     *int64
	PostedAt     *time.Time
	ReversedByID *int64
	Meta         map[string]any
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Lines        []Line
}

// Line is one debit-or-credit leg of a journal. Exactly one of Debit/Credit
// is positive; the other is zero.
type Line struct {
	ID           int64
	JournalID    int64
	LineNo       int
	AccountID    int64
	Debit        decimal.Decimal
	Credit       decimal.Decimal
	FuncDebit    decimal.Decimal
	FuncCredit   decimal.Decimal
	DepartmentID *int64
	ProjectID    *int64
	CostCenterID *int64
	TaxCodeID    *int64
	Attrs        map[string]any
	Archived     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// JournalType is journal master data: numbering sequence and approval policy.
type JournalType struct {
	ID               int64
	OrgID            int64
	Code             string
	Name             string
	RequiresApproval bool
	NumberPrefix     string
	NextNumber       int64
}

// LedgerEntry is one immutable general-ledger row, created exactly once per
// journal line at posting time. The (JournalID, LineID) pair is unique.
type LedgerEntry struct {
	ID        int64
	OrgID     int64
	AccountID int64
	JournalID int64
	LineID    int64
	PeriodID  int64
	Date      time.Time
	Debit     decimal.Decimal
	Credit    decimal.Decimal
	CreatedAt time.Time
}
