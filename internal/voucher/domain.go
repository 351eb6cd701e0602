package voucher

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/keystone-erp/keystone-erp/internal/accounting/journals"
)

// CommitType selects how far a voucher request is driven.
type CommitType string

const (
	// CommitSave persists a draft journal only.
	CommitSave CommitType = "save"
	// CommitSubmit persists the draft and routes it into approval.
	CommitSubmit CommitType = "submit"
	// CommitPost persists and posts in one atomic transaction.
	CommitPost CommitType = "post"
)

// Config is the per-area voucher type configuration: which journal type the
// voucher produces, whether it moves stock, who may post it, and the schema
// its extensible attributes must satisfy.
type Config struct {
	Area             string
	Name             string
	JournalTypeID    int64
	AffectsInventory bool
	PostRoles        []string
	HeaderSchema     []FieldDef
	LineSchema       []FieldDef
}

// Direction of a voucher inventory movement.
type Direction string

const (
	DirectionReceipt Direction = "RECEIPT"
	DirectionIssue   Direction = "ISSUE"
)

// HeaderInput is the journal header portion of a voucher request.
type HeaderInput struct {
	PeriodID     int64
	Date         time.Time
	Currency     string
	ExchangeRate decimal.Decimal
	Reference    string
	Memo         string
	Attrs        map[string]any
}

// LineInput is one explicit GL line of a voucher request.
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

// MovementInput is one stock movement of a voucher request. The costing
// engine computes its value and GL account pair; the orchestrator synthesizes
// the balancing journal lines from the result.
type MovementInput struct {
	Direction       Direction
	ProductID       int64
	WarehouseID     int64
	Qty             decimal.Decimal
	UnitCost        decimal.Decimal // receipts only; issues are costed by method
	OffsetAccountID int64           // receipts only: the GR/IR credit account
	Note            string
}

// Input is one voucher request.
type Input struct {
	Area           string
	IdempotencyKey string
	Commit         CommitType
	Header         HeaderInput
	Lines          []LineInput
	Movements      []MovementInput
}

// ProcessStatus tracks a voucher process record.
type ProcessStatus string

const (
	ProcessProcessing ProcessStatus = "PROCESSING"
	ProcessSucceeded  ProcessStatus = "SUCCEEDED"
	ProcessFailed     ProcessStatus = "FAILED"
)

// Process is the durable record of one voucher attempt. It is written outside
// the main transaction so a failed attempt leaves a diagnosable trace: on
// failure JournalID is nulled and the request snapshot is retained.
type Process struct {
	ID             uuid.UUID
	OrgID          int64
	Area           string
	IdempotencyKey string
	Commit         CommitType
	Status         ProcessStatus
	JournalID      *int64
	Snapshot       Input
	FailureCode    Code
	FailureMessage string
	InitiatedBy    int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Result is the orchestrator's answer for one voucher request.
type Result struct {
	ProcessID uuid.UUID
	Journal   journals.Journal
	TaskID    int64 // set when Commit was submit
	Replayed  bool  // true when served from a prior succeeded process
	Warnings  []string
}
