package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/keystone-erp/keystone-erp/internal/audit"
)

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// Service wraps the costing engine for standalone movements posted outside a
// voucher (manual adjustments, stock counts). Voucher-driven movements go
// through Engine.ApplyReceipt/ApplyIssue on the orchestrator's transaction.
type Service struct {
	repo   RepositoryPort
	engine *Engine
	audit  AuditPort
	now    func() time.Time
}

func NewService(repo RepositoryPort, engine *Engine, audit AuditPort) *Service {
	return &Service{repo: repo, engine: engine, audit: audit, now: time.Now}
}

// RecordReceipt posts an inbound movement in its own transaction.
func (s *Service) RecordReceipt(ctx context.Context, in ReceiptInput) (PostingResult, error) {
	var result PostingResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		result, err = s.engine.ApplyReceipt(ctx, tx, in)
		return err
	})
	if err != nil {
		return PostingResult{}, err
	}
	s.recordAudit(ctx, "inventory.receipt", in.OrgID, in.ActorID, in.ProductID, in.WarehouseID, result)
	return result, nil
}

// RecordIssue posts an outbound movement in its own transaction.
func (s *Service) RecordIssue(ctx context.Context, in IssueInput) (PostingResult, error) {
	var result PostingResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		result, err = s.engine.ApplyIssue(ctx, tx, in)
		return err
	})
	if err != nil {
		return PostingResult{}, err
	}
	s.recordAudit(ctx, "inventory.issue", in.OrgID, in.ActorID, in.ProductID, in.WarehouseID, result)
	return result, nil
}

// OnHand returns the current item state.
func (s *Service) OnHand(ctx context.Context, orgID, productID, warehouseID int64) (Item, error) {
	return s.repo.GetItem(ctx, orgID, productID, warehouseID)
}

// Movements lists recent stock ledger rows.
func (s *Service) Movements(ctx context.Context, orgID, productID, warehouseID int64, limit int) ([]Movement, error) {
	return s.repo.ListMovements(ctx, orgID, productID, warehouseID, limit)
}

func (s *Service) recordAudit(ctx context.Context, action string, orgID, actorID, productID, warehouseID int64, result PostingResult) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, audit.Entry{
		OrgID:    orgID,
		ActorID:  actorID,
		Action:   action,
		Entity:   "inventory_item",
		EntityID: fmt.Sprintf("%d:%d", productID, warehouseID),
		Meta: map[string]any{
			"qty":         result.Qty.String(),
			"unit_cost":   result.UnitCost.String(),
			"total_cost":  result.TotalCost.String(),
			"balance_qty": result.BalanceQty.String(),
		},
		At: s.now(),
	})
}
