package posting

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/keystone-erp/keystone-erp/internal/accounting/accounts"
	"github.com/keystone-erp/keystone-erp/internal/accounting/journals"
	"github.com/keystone-erp/keystone-erp/internal/accounting/periods"
	"github.com/keystone-erp/keystone-erp/internal/accounting/shared"
	"github.com/keystone-erp/keystone-erp/internal/audit"
	internalShared "github.com/keystone-erp/keystone-erp/internal/shared"
)

// AuditPort records audit entries after state changes.
type AuditPort interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// Service converts a validated, balanced journal into immutable general
// ledger rows exactly once, and keeps running account balances current.
type Service struct {
	repo  journals.Repository
	audit AuditPort
	now   func() time.Time
}

func NewService(repo journals.Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Post drives the journal to POSTED in its own transaction. The caller's
// journal copy supplies the optimistic version token; a stale token aborts
// with ErrVersionConflict before any ledger state is mutated.
func (s *Service) Post(ctx context.Context, actor internalShared.Actor, journal journals.Journal) (journals.Journal, error) {
	var posted journals.Journal
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx journals.TxRepository) error {
		var err error
		posted, err = s.PostTx(ctx, tx, actor, journal)
		return err
	})
	if err != nil {
		return journals.Journal{}, err
	}
	s.recordAudit(ctx, actor, "journal.post", posted, nil)
	return posted, nil
}

// PostTx performs the posting inside an existing transaction. The voucher
// orchestrator uses this form so journal, ledger and stock writes share one
// atomic block.
func (s *Service) PostTx(ctx context.Context, tx journals.TxRepository, actor internalShared.Actor, journal journals.Journal) (journals.Journal, error) {
	current, err := tx.GetJournalForUpdate(ctx, journal.ID)
	if err != nil {
		return journals.Journal{}, err
	}
	if current.OrgID != actor.OrgID {
		return journals.Journal{}, internalShared.ErrCrossTenant
	}
	if current.Version != journal.Version {
		return journals.Journal{}, shared.ErrVersionConflict
	}
	exists, err := tx.LedgerExists(ctx, current.ID)
	if err != nil {
		return journals.Journal{}, err
	}
	if exists {
		if current.Status == journals.StatusPosted {
			return journals.Journal{}, shared.ErrAlreadyPosted
		}
		// Status reverted without clearing ledger rows: corrupted data,
		// fail loudly rather than duplicate.
		return journals.Journal{}, shared.ErrLedgerExists
	}
	lines, err := tx.GetLines(ctx, current.ID)
	if err != nil {
		return journals.Journal{}, err
	}
	active := make([]journals.Line, 0, len(lines))
	for _, line := range lines {
		if !line.Archived {
			active = append(active, line)
		}
	}
	if err := validateLines(active); err != nil {
		return journals.Journal{}, err
	}
	journalType, err := tx.GetType(ctx, current.TypeID)
	if err != nil {
		return journals.Journal{}, err
	}
	if journalType.RequiresApproval {
		if current.Status != journals.StatusApproved {
			return journals.Journal{}, shared.ErrApprovalRequired
		}
		approvals, err := tx.CountApprovals(ctx, current.ID)
		if err != nil {
			return journals.Journal{}, err
		}
		if approvals == 0 {
			return journals.Journal{}, shared.ErrApprovalMissing
		}
	} else if current.Status != journals.StatusDraft && current.Status != journals.StatusApproved {
		return journals.Journal{}, fmt.Errorf("accounting: cannot post journal in status %s", current.Status)
	}
	period, err := tx.GetPeriodForUpdate(ctx, current.PeriodID)
	if err != nil {
		return journals.Journal{}, err
	}
	if period.Status == periods.PeriodStatusLocked {
		return journals.Journal{}, shared.ErrPeriodLocked
	}
	if period.Status != periods.PeriodStatusOpen {
		return journals.Journal{}, shared.ErrInvalidPeriod
	}
	if !period.Contains(current.Date) {
		return journals.Journal{}, shared.ErrDateOutOfRange
	}

	set := journals.StatusUpdate{}
	if current.Number == "" {
		number, err := tx.NextNumber(ctx, current.TypeID)
		if err != nil {
			return journals.Journal{}, err
		}
		current.Number = number
		set.Number = &number
	}
	entries := make([]journals.LedgerEntry, 0, len(active))
	for _, line := range active {
		entries = append(entries, journals.LedgerEntry{
			OrgID:     current.OrgID,
			AccountID: line.AccountID,
			JournalID: current.ID,
			LineID:    line.ID,
			PeriodID:  current.PeriodID,
			Date:      current.Date,
			Debit:     line.Debit,
			Credit:    line.Credit,
		})
	}
	if err := tx.InsertLedgerEntries(ctx, entries); err != nil {
		return journals.Journal{}, err
	}
	for _, line := range active {
		account, err := tx.GetAccount(ctx, line.AccountID)
		if err != nil {
			return journals.Journal{}, err
		}
		delta := accounts.SignedDelta(account.Nature, line.Debit, line.Credit)
		if err := tx.AddAccountBalance(ctx, line.AccountID, delta); err != nil {
			return journals.Journal{}, err
		}
	}
	now := s.now()
	locked := true
	set.PostedBy = &actor.UserID
	set.PostedAt = &now
	set.IsLocked = &locked
	if err := tx.UpdateStatus(ctx, current.ID, current.Version, journals.StatusPosted, set); err != nil {
		return journals.Journal{}, err
	}
	current.Status = journals.StatusPosted
	current.IsLocked = true
	current.PostedBy = &actor.UserID
	current.PostedAt = &now
	current.Version++
	current.Lines = active
	return current, nil
}

// Reverse creates and posts a compensating journal for a posted journal,
// then marks the original REVERSED. When the original period is no longer
// open the reversal lands in the next open period.
func (s *Service) Reverse(ctx context.Context, actor internalShared.Actor, journalID int64, reason string) (journals.Journal, error) {
	var reversal journals.Journal
	var original journals.Journal
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx journals.TxRepository) error {
		current, err := tx.GetJournalForUpdate(ctx, journalID)
		if err != nil {
			return err
		}
		if current.OrgID != actor.OrgID {
			return internalShared.ErrCrossTenant
		}
		if current.Status != journals.StatusPosted {
			return fmt.Errorf("accounting: cannot reverse journal in status %s", current.Status)
		}
		lines, err := tx.GetLines(ctx, current.ID)
		if err != nil {
			return err
		}
		period, err := tx.GetPeriodForUpdate(ctx, current.PeriodID)
		if err != nil {
			return err
		}
		targetPeriod := period
		targetDate := current.Date
		if period.Status != periods.PeriodStatusOpen {
			next, err := tx.GetNextOpenPeriodAfter(ctx, current.OrgID, period.EndDate.AddDate(0, 0, 1))
			if err != nil {
				return err
			}
			targetPeriod = next
			targetDate = next.StartDate
		}
		draft := journals.Journal{
			OrgID:        current.OrgID,
			TypeID:       current.TypeID,
			PeriodID:     targetPeriod.ID,
			Date:         targetDate,
			Currency:     current.Currency,
			ExchangeRate: current.ExchangeRate,
			Status:       journals.StatusDraft,
			TotalDebit:   current.TotalCredit,
			TotalCredit:  current.TotalDebit,
			Reference:    current.Reference,
			Memo:         reversalMemo(reason, current.Number),
		}
		inserted, err := tx.InsertJournal(ctx, draft)
		if err != nil {
			return err
		}
		if _, err := tx.InsertLines(ctx, inserted.ID, reverseLines(lines)); err != nil {
			return err
		}
		posted, err := s.PostTx(ctx, tx, actor, inserted)
		if err != nil {
			return err
		}
		meta := current.Meta
		if meta == nil {
			meta = map[string]any{}
		}
		meta["reversal_reason"] = reason
		if err := tx.UpdateStatus(ctx, current.ID, current.Version, journals.StatusReversed, journals.StatusUpdate{
			ReversedByID: &posted.ID,
			Meta:         meta,
		}); err != nil {
			return err
		}
		reversal = posted
		original = current
		return nil
	})
	if err != nil {
		return journals.Journal{}, err
	}
	s.recordAudit(ctx, actor, "journal.reverse", original, map[string]any{
		"reversal_id":     reversal.ID,
		"reversal_number": reversal.Number,
		"reason":          reason,
	})
	return reversal, nil
}

func (s *Service) recordAudit(ctx context.Context, actor internalShared.Actor, action string, journal journals.Journal, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{"number": journal.Number}
	}
	_ = s.audit.Record(ctx, audit.Entry{
		OrgID:    journal.OrgID,
		ActorID:  actor.UserID,
		Action:   action,
		Entity:   "journal",
		EntityID: fmt.Sprintf("%d", journal.ID),
		Meta:     meta,
		At:       s.now(),
	})
}

func validateLines(lines []journals.Line) error {
	if len(lines) < 2 {
		return shared.ErrTooFewLines
	}
	debit := decimal.Zero
	credit := decimal.Zero
	for _, line := range lines {
		debitSet := line.Debit.IsPositive()
		creditSet := line.Credit.IsPositive()
		if line.Debit.IsNegative() || line.Credit.IsNegative() || debitSet == creditSet {
			return fmt.Errorf("accounting: line %d: %w", line.LineNo, shared.ErrSingleSided)
		}
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	if !debit.Equal(credit) {
		return fmt.Errorf("%w: debit %s credit %s", shared.ErrUnbalanced, debit, credit)
	}
	return nil
}

func reverseLines(lines []journals.Line) []journals.LineInput {
	out := make([]journals.LineInput, 0, len(lines))
	for _, line := range lines {
		if line.Archived {
			continue
		}
		out = append(out, journals.LineInput{
			AccountID:    line.AccountID,
			Debit:        line.Credit,
			Credit:       line.Debit,
			DepartmentID: line.DepartmentID,
			ProjectID:    line.ProjectID,
			CostCenterID: line.CostCenterID,
			TaxCodeID:    line.TaxCodeID,
		})
	}
	return out
}

func reversalMemo(reason, number string) string {
	if reason != "" {
		return reason
	}
	return fmt.Sprintf("Reversal of %s", number)
}
