package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keystone-erp/keystone-erp/internal/accounting/accounts"
	"github.com/keystone-erp/keystone-erp/internal/accounting/journals"
	"github.com/keystone-erp/keystone-erp/internal/accounting/periods"
	acctshared "github.com/keystone-erp/keystone-erp/internal/accounting/shared"
	"github.com/keystone-erp/keystone-erp/internal/audit"
	internalShared "github.com/keystone-erp/keystone-erp/internal/shared"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepo struct {
	journals map[int64]*journals.Journal
	lines    map[int64][]journals.Line
	periods  map[int64]periods.Period
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		journals: make(map[int64]*journals.Journal),
		lines:    make(map[int64][]journals.Line),
		periods:  make(map[int64]periods.Period),
	}
}

func (m *mockRepo) WithTx(ctx context.Context, fn func(context.Context, journals.TxRepository) error) error {
	return fn(ctx, &mockTx{repo: m})
}

func (m *mockRepo) GetJournal(_ context.Context, id int64) (journals.Journal, error) {
	j, ok := m.journals[id]
	if !ok {
		return journals.Journal{}, acctshared.ErrJournalNotFound
	}
	return *j, nil
}

func (m *mockRepo) GetLines(_ context.Context, journalID int64) ([]journals.Line, error) {
	return m.lines[journalID], nil
}

func (m *mockRepo) GetType(_ context.Context, _ int64) (journals.JournalType, error) {
	return journals.JournalType{}, acctshared.ErrJournalNotFound
}

func (m *mockRepo) List(_ context.Context, _ int64) ([]journals.Journal, error) {
	return nil, nil
}

type mockTx struct {
	repo *mockRepo
}

func (t *mockTx) InsertJournal(_ context.Context, j journals.Journal) (journals.Journal, error) {
	return j, nil
}

func (t *mockTx) InsertLines(_ context.Context, _ int64, _ []journals.LineInput) ([]journals.Line, error) {
	return nil, nil
}

func (t *mockTx) GetJournalForUpdate(_ context.Context, id int64) (journals.Journal, error) {
	return t.repo.GetJournal(context.Background(), id)
}

func (t *mockTx) GetLines(_ context.Context, journalID int64) ([]journals.Line, error) {
	return t.repo.lines[journalID], nil
}

func (t *mockTx) GetType(_ context.Context, _ int64) (journals.JournalType, error) {
	return journals.JournalType{}, acctshared.ErrJournalNotFound
}

func (t *mockTx) NextNumber(_ context.Context, _ int64) (string, error) { return "", nil }

func (t *mockTx) LedgerExists(_ context.Context, _ int64) (bool, error) { return false, nil }

func (t *mockTx) InsertLedgerEntries(_ context.Context, _ []journals.LedgerEntry) error { return nil }

func (t *mockTx) UpdateStatus(_ context.Context, id, version int64, status journals.Status, set journals.StatusUpdate) error {
	j, ok := t.repo.journals[id]
	if !ok || j.Version != version {
		return acctshared.ErrVersionConflict
	}
	j.Status = status
	j.Version++
	if set.ApprovedBy != nil {
		j.ApprovedBy = set.ApprovedBy
	}
	if set.ApprovedAt != nil {
		j.ApprovedAt = set.ApprovedAt
	}
	if set.PostedBy != nil {
		j.PostedBy = set.PostedBy
	}
	if set.PostedAt != nil {
		j.PostedAt = set.PostedAt
	}
	if set.IsLocked != nil {
		j.IsLocked = *set.IsLocked
	}
	if set.Meta != nil {
		j.Meta = set.Meta
	}
	return nil
}

func (t *mockTx) AddAccountBalance(_ context.Context, _ int64, _ decimal.Decimal) error { return nil }

func (t *mockTx) GetAccount(_ context.Context, _ int64) (accounts.Account, error) {
	return accounts.Account{}, acctshared.ErrJournalNotFound
}

func (t *mockTx) GetPeriodForUpdate(_ context.Context, periodID int64) (periods.Period, error) {
	p, ok := t.repo.periods[periodID]
	if !ok {
		return periods.Period{}, acctshared.ErrInvalidPeriod
	}
	return p, nil
}

func (t *mockTx) GetNextOpenPeriodAfter(_ context.Context, _ int64, _ time.Time) (periods.Period, error) {
	return periods.Period{}, acctshared.ErrInvalidPeriod
}

func (t *mockTx) CountApprovals(_ context.Context, _ int64) (int, error) { return 0, nil }

func (t *mockTx) DeleteDraft(_ context.Context, _ int64) error { return nil }

// ============================================================================
// MOCK PORTS
// ============================================================================

type mockPoster struct {
	posted   []int64
	reversed []int64
}

func (m *mockPoster) Post(_ context.Context, _ internalShared.Actor, journal journals.Journal) (journals.Journal, error) {
	m.posted = append(m.posted, journal.ID)
	journal.Status = journals.StatusPosted
	return journal, nil
}

func (m *mockPoster) Reverse(_ context.Context, _ internalShared.Actor, journalID int64, _ string) (journals.Journal, error) {
	m.reversed = append(m.reversed, journalID)
	return journals.Journal{ID: journalID + 1, Status: journals.StatusPosted}, nil
}

type mockAudit struct {
	entries []audit.Entry
}

func (m *mockAudit) Record(_ context.Context, entry audit.Entry) error {
	m.entries = append(m.entries, entry)
	return nil
}

// ============================================================================
// FIXTURES
// ============================================================================

func seedJournal(repo *mockRepo, status journals.Status) journals.Journal {
	j := journals.Journal{
		ID:          1,
		OrgID:       1,
		TypeID:      1,
		PeriodID:    1,
		Date:        time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
		Currency:    "IDR",
		Status:      status,
		TotalDebit:  decimal.NewFromInt(100),
		TotalCredit: decimal.NewFromInt(100),
		Version:     1,
	}
	copied := j
	repo.journals[j.ID] = &copied
	repo.lines[j.ID] = []journals.Line{
		{ID: 1, JournalID: 1, LineNo: 1, AccountID: 100, Debit: decimal.NewFromInt(100)},
		{ID: 2, JournalID: 1, LineNo: 2, AccountID: 200, Credit: decimal.NewFromInt(100)},
	}
	repo.periods[1] = periods.Period{
		ID: 1, OrgID: 1, Code: "2025-01", Status: periods.PeriodStatusOpen,
		StartDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
	}
	return j
}

var testActor = internalShared.Actor{UserID: 7, OrgID: 1, Roles: []string{"accountant"}}

// ============================================================================
// TESTS
// ============================================================================

func TestTransitionCrossTenantCheckedFirst(t *testing.T) {
	repo := newMockRepo()
	seedJournal(repo, journals.StatusDraft)
	svc := NewService(repo, nil, nil, nil)
	foreign := internalShared.Actor{UserID: 9, OrgID: 2}

	// Even an illegal transition reports the tenant mismatch, not the
	// transition, to a foreign actor.
	_, err := svc.Transition(context.Background(), foreign, 1, journals.StatusDraft, "")
	assert.ErrorIs(t, err, internalShared.ErrCrossTenant)
}

func TestTransitionRejectsNoOp(t *testing.T) {
	repo := newMockRepo()
	seedJournal(repo, journals.StatusDraft)
	svc := NewService(repo, nil, nil, nil)

	_, err := svc.Transition(context.Background(), testActor, 1, journals.StatusDraft, "")
	var te *TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, journals.StatusDraft, te.From)
	assert.Equal(t, journals.StatusDraft, te.To)
}

func TestTransitionRejectsUnmappedTarget(t *testing.T) {
	repo := newMockRepo()
	seedJournal(repo, journals.StatusDraft)
	svc := NewService(repo, nil, nil, nil)

	_, err := svc.Transition(context.Background(), testActor, 1, journals.StatusApproved, "")
	var te *TransitionError
	require.ErrorAs(t, err, &te)
}

func TestTransitionAggregatesRuleViolations(t *testing.T) {
	repo := newMockRepo()
	seedJournal(repo, journals.StatusDraft)
	repo.journals[1].TotalCredit = decimal.NewFromInt(90) // unbalanced
	p := repo.periods[1]
	p.Status = periods.PeriodStatusClosed // and closed period
	repo.periods[1] = p
	svc := NewService(repo, nil, nil, nil)

	_, err := svc.Transition(context.Background(), testActor, 1, journals.StatusAwaitingApproval, "")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Violations, 2)
}

func TestTransitionApprovedStampsApprover(t *testing.T) {
	repo := newMockRepo()
	seedJournal(repo, journals.StatusAwaitingApproval)
	auditor := &mockAudit{}
	svc := NewService(repo, auditor, nil, nil)
	svc.WithNow(func() time.Time { return time.Date(2025, 1, 20, 12, 0, 0, 0, time.UTC) })

	updated, err := svc.Transition(context.Background(), testActor, 1, journals.StatusApproved, "")
	require.NoError(t, err)

	assert.Equal(t, journals.StatusApproved, updated.Status)
	require.NotNil(t, repo.journals[1].ApprovedBy)
	assert.Equal(t, testActor.UserID, *repo.journals[1].ApprovedBy)
	assert.Equal(t, int64(2), repo.journals[1].Version)

	require.Len(t, auditor.entries, 1)
	assert.Equal(t, "journal.transition", auditor.entries[0].Action)
}

func TestTransitionRejectedRecordsReason(t *testing.T) {
	repo := newMockRepo()
	seedJournal(repo, journals.StatusAwaitingApproval)
	svc := NewService(repo, nil, nil, nil)

	_, err := svc.Transition(context.Background(), testActor, 1, journals.StatusRejected, "missing receipts")
	require.NoError(t, err)
	assert.Equal(t, "missing receipts", repo.journals[1].Meta["rejection_reason"])
}

func TestTransitionDelegatesPostedToPoster(t *testing.T) {
	repo := newMockRepo()
	seedJournal(repo, journals.StatusDraft)
	poster := &mockPoster{}
	svc := NewService(repo, nil, nil, poster)

	updated, err := svc.Transition(context.Background(), testActor, 1, journals.StatusPosted, "")
	require.NoError(t, err)
	assert.Equal(t, journals.StatusPosted, updated.Status)
	assert.Equal(t, []int64{1}, poster.posted)
	// The lifecycle service itself must not have touched the row.
	assert.Equal(t, journals.StatusDraft, repo.journals[1].Status)
}

func TestTransitionDelegatesReversedToPoster(t *testing.T) {
	repo := newMockRepo()
	seedJournal(repo, journals.StatusPosted)
	poster := &mockPoster{}
	svc := NewService(repo, nil, nil, poster)

	_, err := svc.Transition(context.Background(), testActor, 1, journals.StatusReversed, "bad entry")
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, poster.reversed)
}

func TestTransitionPerOrgOverride(t *testing.T) {
	repo := newMockRepo()
	seedJournal(repo, journals.StatusDraft)
	poster := &mockPoster{}
	cfg := StaticConfig{Overrides: map[int64]Config{
		1: {Transitions: TransitionMap{
			// This org forbids posting straight from draft.
			journals.StatusDraft: {journals.StatusAwaitingApproval},
		}},
	}}
	svc := NewService(repo, nil, cfg, poster)

	_, err := svc.Transition(context.Background(), testActor, 1, journals.StatusPosted, "")
	var te *TransitionError
	require.ErrorAs(t, err, &te)
	assert.Empty(t, poster.posted)

	_, err = svc.Transition(context.Background(), testActor, 1, journals.StatusAwaitingApproval, "")
	assert.NoError(t, err)
}

func TestTransitionPostingRunsConfiguredRules(t *testing.T) {
	repo := newMockRepo()
	seedJournal(repo, journals.StatusDraft)
	repo.journals[1].TotalCredit = decimal.NewFromInt(90) // unbalanced
	poster := &mockPoster{}
	cfg := StaticConfig{Overrides: map[int64]Config{
		1: {Rules: []Rule{
			{Kind: RuleReferenceRequired},
			{Kind: RuleBalanced},
		}},
	}}
	svc := NewService(repo, nil, cfg, poster)

	// The org's own rules run before the ledger path; both failures come
	// back in one error and the poster is never reached.
	_, err := svc.Transition(context.Background(), testActor, 1, journals.StatusPosted, "")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Violations, 2)
	assert.Empty(t, poster.posted)
}

func TestTransitionPostingSurfacesWarnRules(t *testing.T) {
	repo := newMockRepo()
	seedJournal(repo, journals.StatusDraft)
	auditor := &mockAudit{}
	poster := &mockPoster{}
	cfg := StaticConfig{Overrides: map[int64]Config{
		1: {Rules: []Rule{{Kind: RuleReferenceRequired, Warn: true}}},
	}}
	svc := NewService(repo, auditor, cfg, poster)

	updated, err := svc.Transition(context.Background(), testActor, 1, journals.StatusPosted, "")
	require.NoError(t, err)
	assert.Equal(t, journals.StatusPosted, updated.Status)
	assert.Equal(t, []int64{1}, poster.posted)
	require.Len(t, auditor.entries, 1)
	assert.Contains(t, auditor.entries[0].Meta, "warnings")
}

func TestTransitionReversalSkipsPeriodOpenRule(t *testing.T) {
	repo := newMockRepo()
	seedJournal(repo, journals.StatusPosted)
	p := repo.periods[1]
	p.Status = periods.PeriodStatusClosed
	repo.periods[1] = p
	poster := &mockPoster{}
	svc := NewService(repo, nil, nil, poster)

	// Reversing out of a closed period is the posting service's business:
	// it re-routes the compensating journal to the next open period.
	_, err := svc.Transition(context.Background(), testActor, 1, journals.StatusReversed, "bad entry")
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, poster.reversed)
}

func TestTransitionWarnRulesDoNotBlock(t *testing.T) {
	repo := newMockRepo()
	seedJournal(repo, journals.StatusDraft)
	auditor := &mockAudit{}
	cfg := StaticConfig{Overrides: map[int64]Config{
		1: {Rules: []Rule{
			{Kind: RuleBalanced},
			{Kind: RuleReferenceRequired, Warn: true},
		}},
	}}
	svc := NewService(repo, auditor, cfg, nil)

	updated, err := svc.Transition(context.Background(), testActor, 1, journals.StatusAwaitingApproval, "")
	require.NoError(t, err)
	assert.Equal(t, journals.StatusAwaitingApproval, updated.Status)

	require.Len(t, auditor.entries, 1)
	assert.Contains(t, auditor.entries[0].Meta, "warnings")
}
