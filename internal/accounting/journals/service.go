package journals

import (
	"context"
	"fmt"
	"time"

	"github.com/keystone-erp/keystone-erp/internal/accounting/shared"
	"github.com/keystone-erp/keystone-erp/internal/audit"
	internalShared "github.com/keystone-erp/keystone-erp/internal/shared"
)

// AuditPort records audit entries after state changes.
type AuditPort interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// Service owns draft journal CRUD. Posting is the posting package's job.
type Service struct {
	repo  Repository
	audit AuditPort
	now   func() time.Time
}

func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) Get(ctx context.Context, id int64) (Journal, error) {
	j, err := s.repo.GetJournal(ctx, id)
	if err != nil {
		return Journal{}, err
	}
	lines, err := s.repo.GetLines(ctx, id)
	if err != nil {
		return Journal{}, err
	}
	j.Lines = lines
	return j, nil
}

func (s *Service) List(ctx context.Context, orgID int64) ([]Journal, error) {
	return s.repo.List(ctx, orgID)
}

// CreateDraft persists a journal header and its lines in DRAFT status.
func (s *Service) CreateDraft(ctx context.Context, actor internalShared.Actor, input CreateInput) (Journal, error) {
	if err := input.Validate(); err != nil {
		return Journal{}, err
	}
	if actor.OrgID != input.OrgID {
		return Journal{}, internalShared.ErrCrossTenant
	}
	debit, credit := Totals(input.Lines)
	var created Journal
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		journalType, err := tx.GetType(ctx, input.TypeID)
		if err != nil {
			return err
		}
		if journalType.OrgID != input.OrgID {
			return internalShared.ErrCrossTenant
		}
		j := Journal{
			OrgID:        input.OrgID,
			TypeID:       input.TypeID,
			PeriodID:     input.PeriodID,
			Date:         input.Date,
			Currency:     input.Currency,
			ExchangeRate: input.ExchangeRate,
			Status:       StatusDraft,
			TotalDebit:   debit,
			TotalCredit:  credit,
			Reference:    input.Reference,
			Memo:         input.Memo,
		}
		inserted, err := tx.InsertJournal(ctx, j)
		if err != nil {
			return err
		}
		lines, err := tx.InsertLines(ctx, inserted.ID, input.Lines)
		if err != nil {
			return err
		}
		inserted.Lines = lines
		created = inserted
		return nil
	})
	if err != nil {
		return Journal{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, audit.Entry{
			OrgID:    created.OrgID,
			ActorID:  actor.UserID,
			Action:   "journal.create",
			Entity:   "journal",
			EntityID: fmt.Sprintf("%d", created.ID),
			Meta: map[string]any{
				"type_id":     created.TypeID,
				"total_debit": created.TotalDebit.String(),
			},
			At: s.now(),
		})
	}
	return created, nil
}

// DeleteDraft removes a draft journal. Posted journals are never physically
// deleted.
func (s *Service) DeleteDraft(ctx context.Context, actor internalShared.Actor, id int64) error {
	journal, err := s.repo.GetJournal(ctx, id)
	if err != nil {
		return err
	}
	if journal.OrgID != actor.OrgID {
		return internalShared.ErrCrossTenant
	}
	if journal.Status != StatusDraft {
		return shared.ErrJournalLocked
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeleteDraft(ctx, id)
	})
	if err != nil {
		return err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, audit.Entry{
			OrgID:    journal.OrgID,
			ActorID:  actor.UserID,
			Action:   "journal.delete",
			Entity:   "journal",
			EntityID: fmt.Sprintf("%d", id),
			At:       s.now(),
		})
	}
	return nil
}
