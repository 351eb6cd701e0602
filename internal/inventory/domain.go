package inventory

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Method enumerates supported costing methods.
type Method string

const (
	MethodWeightedAverage Method = "WEIGHTED_AVERAGE"
	MethodFIFO            Method = "FIFO"
	MethodLIFO            Method = "LIFO"
	MethodStandard        Method = "STANDARD"
)

// Product carries the costing configuration for an inventory-bearing product.
// Account IDs of zero mean not configured, which is fatal for posting.
type Product struct {
	ID                 int64
	OrgID              int64
	SKU                string
	Name               string
	Method             Method
	StandardCost       decimal.Decimal
	UnitOfMeasureID    int64
	InventoryAccountID int64
	COGSAccountID      int64
}

// Item is the per (org, product, warehouse) running quantity and unit cost.
// Under layer-based costing the sum of open layer quantities equals Qty.
type Item struct {
	OrgID       int64
	ProductID   int64
	WarehouseID int64
	Qty         decimal.Decimal
	UnitCost    decimal.Decimal
	UpdatedAt   time.Time
}

// Layer is a FIFO/LIFO-tracked batch of received inventory at a specific unit
// cost, partially consumable.
type Layer struct {
	ID           int64
	OrgID        int64
	ProductID    int64
	WarehouseID  int64
	QtyAvailable decimal.Decimal
	UnitCost     decimal.Decimal
	CreatedAt    time.Time
}

// MovementType enumerates stock ledger directions.
type MovementType string

const (
	MovementReceipt MovementType = "RECEIPT"
	MovementIssue   MovementType = "ISSUE"
)

// Movement is one append-only stock ledger row, immutable once written.
type Movement struct {
	ID          int64
	OrgID       int64
	ProductID   int64
	WarehouseID int64
	Type        MovementType
	Qty         decimal.Decimal
	UnitCost    decimal.Decimal
	TotalCost   decimal.Decimal
	RefModule   string
	RefID       uuid.UUID
	Note        string
	ActorID     int64
	PostedAt    time.Time
}

// ReceiptInput describes an inbound movement. OffsetAccountID is the
// caller-supplied GR/IR account credited against the inventory debit.
type ReceiptInput struct {
	OrgID           int64
	ProductID       int64
	WarehouseID     int64
	Qty             decimal.Decimal
	UnitCost        decimal.Decimal
	OffsetAccountID int64
	RefModule       string
	RefID           uuid.UUID
	Note            string
	ActorID         int64
}

// IssueInput describes an outbound movement costed by the product's method.
type IssueInput struct {
	OrgID       int64
	ProductID   int64
	WarehouseID int64
	Qty         decimal.Decimal
	RefModule   string
	RefID       uuid.UUID
	Note        string
	ActorID     int64
}

// PostingResult carries the computed cost and the GL account pair for the
// movement. The engine never writes journal lines itself; the caller builds
// the balancing entry from this result.
type PostingResult struct {
	Method          Method
	Qty             decimal.Decimal
	UnitCost        decimal.Decimal
	TotalCost       decimal.Decimal
	DebitAccountID  int64
	CreditAccountID int64
	BalanceQty      decimal.Decimal
	BalanceCost     decimal.Decimal
}

var (
	// ErrInvalidQuantity indicates a zero or negative quantity.
	ErrInvalidQuantity = errors.New("inventory: quantity must be positive")
	// ErrInsufficientStock indicates an issue larger than on-hand quantity.
	ErrInsufficientStock = errors.New("inventory: insufficient quantity on hand")
	// ErrAccountNotConfigured indicates missing inventory/COGS/offset account
	// configuration; fatal until master data is fixed.
	ErrAccountNotConfigured = errors.New("inventory: account not configured for product")
	// ErrMissingUnitOfMeasure indicates the product lacks a unit of measure.
	ErrMissingUnitOfMeasure = errors.New("inventory: product missing unit of measure")
	// ErrProductNotFound indicates an unknown product reference.
	ErrProductNotFound = errors.New("inventory: product not found")
	// ErrItemNotFound indicates no stock record exists yet.
	ErrItemNotFound = errors.New("inventory: item not found")
)
