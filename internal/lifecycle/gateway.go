package lifecycle

import (
	"context"

	"github.com/keystone-erp/keystone-erp/internal/accounting/journals"
	internalShared "github.com/keystone-erp/keystone-erp/internal/shared"
)

// DocumentGateway adapts the lifecycle service for callers that move
// documents by outcome name rather than by target status, such as the
// approval workflow.
type DocumentGateway struct {
	service *Service
}

func NewDocumentGateway(service *Service) *DocumentGateway {
	return &DocumentGateway{service: service}
}

func (g *DocumentGateway) MarkAwaitingApproval(ctx context.Context, actor internalShared.Actor, journalID int64) error {
	_, err := g.service.Transition(ctx, actor, journalID, journals.StatusAwaitingApproval, "")
	return err
}

func (g *DocumentGateway) MarkApproved(ctx context.Context, actor internalShared.Actor, journalID int64) error {
	_, err := g.service.Transition(ctx, actor, journalID, journals.StatusApproved, "")
	return err
}

func (g *DocumentGateway) MarkRejected(ctx context.Context, actor internalShared.Actor, journalID int64, reason string) error {
	_, err := g.service.Transition(ctx, actor, journalID, journals.StatusRejected, reason)
	return err
}
