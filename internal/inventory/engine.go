package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Engine computes movement costs and mutates on-hand state. It operates on a
// TxRepository supplied by the caller so stock writes share the caller's
// transaction; the voucher orchestrator relies on this for all-or-nothing
// voucher semantics.
type Engine struct {
	now func() time.Time
}

func NewEngine() *Engine {
	return &Engine{now: time.Now}
}

func (e *Engine) WithNow(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// ApplyReceipt records an inbound movement. Weighted-average recomputes the
// blended unit cost; FIFO/LIFO append a new cost layer; standard costing
// values the receipt at the product's standard cost.
func (e *Engine) ApplyReceipt(ctx context.Context, tx TxRepository, in ReceiptInput) (PostingResult, error) {
	if !in.Qty.IsPositive() {
		return PostingResult{}, ErrInvalidQuantity
	}
	if in.UnitCost.IsNegative() {
		return PostingResult{}, fmt.Errorf("inventory: unit cost must be >= 0")
	}
	product, err := tx.GetProduct(ctx, in.ProductID)
	if err != nil {
		return PostingResult{}, err
	}
	if product.UnitOfMeasureID == 0 {
		return PostingResult{}, ErrMissingUnitOfMeasure
	}
	if product.InventoryAccountID == 0 || in.OffsetAccountID == 0 {
		return PostingResult{}, ErrAccountNotConfigured
	}
	item, err := tx.GetItemForUpdate(ctx, in.OrgID, in.ProductID, in.WarehouseID)
	if err != nil {
		if err != ErrItemNotFound {
			return PostingResult{}, err
		}
		item = Item{OrgID: in.OrgID, ProductID: in.ProductID, WarehouseID: in.WarehouseID, Qty: decimal.Zero, UnitCost: decimal.Zero}
	}
	unitCost := in.UnitCost
	if product.Method == MethodStandard {
		unitCost = product.StandardCost
	}
	newQty := item.Qty.Add(in.Qty)
	if !newQty.IsPositive() {
		return PostingResult{}, ErrInvalidQuantity
	}
	switch product.Method {
	case MethodWeightedAverage:
		existing := item.Qty.Mul(item.UnitCost)
		received := in.Qty.Mul(unitCost)
		item.UnitCost = existing.Add(received).Div(newQty)
	case MethodFIFO, MethodLIFO:
		if _, err := tx.InsertLayer(ctx, Layer{
			OrgID:        in.OrgID,
			ProductID:    in.ProductID,
			WarehouseID:  in.WarehouseID,
			QtyAvailable: in.Qty,
			UnitCost:     unitCost,
			CreatedAt:    e.now(),
		}); err != nil {
			return PostingResult{}, err
		}
		item.UnitCost = unitCost
	case MethodStandard:
		item.UnitCost = unitCost
	default:
		return PostingResult{}, fmt.Errorf("inventory: unknown costing method %q", product.Method)
	}
	item.Qty = newQty
	item.UpdatedAt = e.now()
	if err := tx.UpsertItem(ctx, item); err != nil {
		return PostingResult{}, err
	}
	totalCost := in.Qty.Mul(unitCost)
	if _, err := tx.InsertMovement(ctx, Movement{
		OrgID:       in.OrgID,
		ProductID:   in.ProductID,
		WarehouseID: in.WarehouseID,
		Type:        MovementReceipt,
		Qty:         in.Qty,
		UnitCost:    unitCost,
		TotalCost:   totalCost,
		RefModule:   in.RefModule,
		RefID:       in.RefID,
		Note:        in.Note,
		ActorID:     in.ActorID,
		PostedAt:    e.now(),
	}); err != nil {
		return PostingResult{}, err
	}
	return PostingResult{
		Method:          product.Method,
		Qty:             in.Qty,
		UnitCost:        unitCost,
		TotalCost:       totalCost,
		DebitAccountID:  product.InventoryAccountID,
		CreditAccountID: in.OffsetAccountID,
		BalanceQty:      item.Qty,
		BalanceCost:     item.UnitCost,
	}, nil
}

// ApplyIssue records an outbound movement. Cost is drawn per the product's
// method: weighted-average uses the blended unit cost, FIFO consumes oldest
// layers first, LIFO newest first, standard uses the fixed standard cost.
func (e *Engine) ApplyIssue(ctx context.Context, tx TxRepository, in IssueInput) (PostingResult, error) {
	if !in.Qty.IsPositive() {
		return PostingResult{}, ErrInvalidQuantity
	}
	product, err := tx.GetProduct(ctx, in.ProductID)
	if err != nil {
		return PostingResult{}, err
	}
	if product.UnitOfMeasureID == 0 {
		return PostingResult{}, ErrMissingUnitOfMeasure
	}
	if product.InventoryAccountID == 0 || product.COGSAccountID == 0 {
		return PostingResult{}, ErrAccountNotConfigured
	}
	item, err := tx.GetItemForUpdate(ctx, in.OrgID, in.ProductID, in.WarehouseID)
	if err != nil {
		if err == ErrItemNotFound {
			return PostingResult{}, ErrInsufficientStock
		}
		return PostingResult{}, err
	}
	if in.Qty.GreaterThan(item.Qty) {
		return PostingResult{}, ErrInsufficientStock
	}
	var totalCost decimal.Decimal
	switch product.Method {
	case MethodWeightedAverage:
		totalCost = in.Qty.Mul(item.UnitCost)
	case MethodStandard:
		totalCost = in.Qty.Mul(product.StandardCost)
	case MethodFIFO, MethodLIFO:
		totalCost, err = e.consumeLayers(ctx, tx, in, product.Method)
		if err != nil {
			return PostingResult{}, err
		}
	default:
		return PostingResult{}, fmt.Errorf("inventory: unknown costing method %q", product.Method)
	}
	item.Qty = item.Qty.Sub(in.Qty)
	item.UpdatedAt = e.now()
	if err := tx.UpsertItem(ctx, item); err != nil {
		return PostingResult{}, err
	}
	unitCost := decimal.Zero
	if in.Qty.IsPositive() {
		unitCost = totalCost.Div(in.Qty)
	}
	if _, err := tx.InsertMovement(ctx, Movement{
		OrgID:       in.OrgID,
		ProductID:   in.ProductID,
		WarehouseID: in.WarehouseID,
		Type:        MovementIssue,
		Qty:         in.Qty,
		UnitCost:    unitCost,
		TotalCost:   totalCost,
		RefModule:   in.RefModule,
		RefID:       in.RefID,
		Note:        in.Note,
		ActorID:     in.ActorID,
		PostedAt:    e.now(),
	}); err != nil {
		return PostingResult{}, err
	}
	return PostingResult{
		Method:          product.Method,
		Qty:             in.Qty,
		UnitCost:        unitCost,
		TotalCost:       totalCost,
		DebitAccountID:  product.COGSAccountID,
		CreditAccountID: product.InventoryAccountID,
		BalanceQty:      item.Qty,
		BalanceCost:     item.UnitCost,
	}, nil
}

// consumeLayers draws quantity from cost layers in method order. A partially
// consumed layer is split by reducing its available quantity; drained layers
// stay at zero.
func (e *Engine) consumeLayers(ctx context.Context, tx TxRepository, in IssueInput, method Method) (decimal.Decimal, error) {
	newestFirst := method == MethodLIFO
	layers, err := tx.GetLayersForUpdate(ctx, in.OrgID, in.ProductID, in.WarehouseID, newestFirst)
	if err != nil {
		return decimal.Zero, err
	}
	remaining := in.Qty
	total := decimal.Zero
	for _, layer := range layers {
		if !remaining.IsPositive() {
			break
		}
		take := decimal.Min(remaining, layer.QtyAvailable)
		if !take.IsPositive() {
			continue
		}
		total = total.Add(take.Mul(layer.UnitCost))
		if err := tx.UpdateLayerQty(ctx, layer.ID, layer.QtyAvailable.Sub(take)); err != nil {
			return decimal.Zero, err
		}
		remaining = remaining.Sub(take)
	}
	if remaining.IsPositive() {
		// Layer sum fell behind the item quantity: data problem, fail loudly.
		return decimal.Zero, ErrInsufficientStock
	}
	return total, nil
}
