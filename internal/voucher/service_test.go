package voucher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keystone-erp/keystone-erp/internal/accounting/accounts"
	"github.com/keystone-erp/keystone-erp/internal/accounting/journals"
	"github.com/keystone-erp/keystone-erp/internal/accounting/periods"
	acctshared "github.com/keystone-erp/keystone-erp/internal/accounting/shared"
	"github.com/keystone-erp/keystone-erp/internal/audit"
	"github.com/keystone-erp/keystone-erp/internal/inventory"
	"github.com/keystone-erp/keystone-erp/internal/shared"
	_ "github.com/keystone-erp/keystone-erp/internal/testing/guard"
	"github.com/keystone-erp/keystone-erp/internal/workflow"
)

// ============================================================================
// MOCK JOURNAL STORE
// ============================================================================

type journalStore struct {
	journals map[int64]*journals.Journal
	lines    map[int64][]journals.Line
	types    map[int64]journals.JournalType
	nextID   int64
}

func newJournalStore() *journalStore {
	s := &journalStore{
		journals: make(map[int64]*journals.Journal),
		lines:    make(map[int64][]journals.Line),
		types:    make(map[int64]journals.JournalType),
		nextID:   1,
	}
	s.types[1] = journals.JournalType{ID: 1, OrgID: 1, Code: "PAY", NumberPrefix: "PAY", NextNumber: 1}
	return s
}

func (s *journalStore) clone() *journalStore {
	copied := &journalStore{
		journals: make(map[int64]*journals.Journal, len(s.journals)),
		lines:    make(map[int64][]journals.Line, len(s.lines)),
		types:    make(map[int64]journals.JournalType, len(s.types)),
		nextID:   s.nextID,
	}
	for id, j := range s.journals {
		c := *j
		copied.journals[id] = &c
	}
	for id, lines := range s.lines {
		copied.lines[id] = append([]journals.Line(nil), lines...)
	}
	for id, t := range s.types {
		copied.types[id] = t
	}
	return copied
}

// journalsRepo adapts the store to journals.Repository for the replay path.
type journalsRepo struct {
	store *journalStore
}

func (r *journalsRepo) WithTx(ctx context.Context, fn func(context.Context, journals.TxRepository) error) error {
	return fn(ctx, &journalsTx{store: r.store})
}

func (r *journalsRepo) GetJournal(_ context.Context, id int64) (journals.Journal, error) {
	j, ok := r.store.journals[id]
	if !ok {
		return journals.Journal{}, acctshared.ErrJournalNotFound
	}
	return *j, nil
}

func (r *journalsRepo) GetLines(_ context.Context, journalID int64) ([]journals.Line, error) {
	return r.store.lines[journalID], nil
}

func (r *journalsRepo) GetType(_ context.Context, typeID int64) (journals.JournalType, error) {
	t, ok := r.store.types[typeID]
	if !ok {
		return journals.JournalType{}, acctshared.ErrJournalNotFound
	}
	return t, nil
}

func (r *journalsRepo) List(_ context.Context, _ int64) ([]journals.Journal, error) { return nil, nil }

// journalsTx is the transactional view used inside the orchestrator's block.
// Only the methods the voucher path exercises are implemented with behavior.
type journalsTx struct {
	store *journalStore
}

func (t *journalsTx) InsertJournal(_ context.Context, j journals.Journal) (journals.Journal, error) {
	j.ID = t.store.nextID
	t.store.nextID++
	j.Version = 1
	copied := j
	t.store.journals[j.ID] = &copied
	return j, nil
}

func (t *journalsTx) InsertLines(_ context.Context, journalID int64, inputs []journals.LineInput) ([]journals.Line, error) {
	out := make([]journals.Line, 0, len(inputs))
	for idx, in := range inputs {
		out = append(out, journals.Line{
			ID: int64(idx + 1), JournalID: journalID, LineNo: idx + 1,
			AccountID: in.AccountID, Debit: in.Debit, Credit: in.Credit, Attrs: in.Attrs,
		})
	}
	t.store.lines[journalID] = out
	return out, nil
}

func (t *journalsTx) GetJournalForUpdate(_ context.Context, id int64) (journals.Journal, error) {
	j, ok := t.store.journals[id]
	if !ok {
		return journals.Journal{}, acctshared.ErrJournalNotFound
	}
	return *j, nil
}

func (t *journalsTx) GetLines(_ context.Context, journalID int64) ([]journals.Line, error) {
	return t.store.lines[journalID], nil
}

func (t *journalsTx) GetType(_ context.Context, typeID int64) (journals.JournalType, error) {
	ty, ok := t.store.types[typeID]
	if !ok {
		return journals.JournalType{}, acctshared.ErrJournalNotFound
	}
	return ty, nil
}

func (t *journalsTx) NextNumber(_ context.Context, _ int64) (string, error) { return "PAY-000001", nil }

func (t *journalsTx) LedgerExists(_ context.Context, _ int64) (bool, error) { return false, nil }

func (t *journalsTx) InsertLedgerEntries(_ context.Context, _ []journals.LedgerEntry) error {
	return nil
}

func (t *journalsTx) UpdateStatus(_ context.Context, id, _ int64, status journals.Status, _ journals.StatusUpdate) error {
	if j, ok := t.store.journals[id]; ok {
		j.Status = status
		j.Version++
	}
	return nil
}

func (t *journalsTx) AddAccountBalance(_ context.Context, _ int64, _ decimal.Decimal) error {
	return nil
}

func (t *journalsTx) GetAccount(_ context.Context, _ int64) (accounts.Account, error) {
	return accounts.Account{}, acctshared.ErrJournalNotFound
}

func (t *journalsTx) GetPeriodForUpdate(_ context.Context, _ int64) (periods.Period, error) {
	return periods.Period{}, acctshared.ErrInvalidPeriod
}

func (t *journalsTx) GetNextOpenPeriodAfter(_ context.Context, _ int64, _ time.Time) (periods.Period, error) {
	return periods.Period{}, acctshared.ErrInvalidPeriod
}

func (t *journalsTx) CountApprovals(_ context.Context, _ int64) (int, error) { return 0, nil }

func (t *journalsTx) DeleteDraft(_ context.Context, _ int64) error { return nil }

// ============================================================================
// MOCK TX RUNNER
// ============================================================================

// mockRunner stages all writes on a cloned store and merges them back only
// when the block succeeds, mirroring transaction semantics.
type mockRunner struct {
	store      *journalStore
	rolledBack bool
}

type mockVoucherTx struct {
	journals journals.TxRepository
}

func (t *mockVoucherTx) Journals() journals.TxRepository   { return t.journals }
func (t *mockVoucherTx) Inventory() inventory.TxRepository { return nil }

func (r *mockRunner) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	staging := r.store.clone()
	if err := fn(ctx, &mockVoucherTx{journals: &journalsTx{store: staging}}); err != nil {
		r.rolledBack = true
		return err
	}
	*r.store = *staging
	return nil
}

// ============================================================================
// MOCK PROCESS REPOSITORY
// ============================================================================

type mockProcesses struct {
	records  map[uuid.UUID]*Process
	inserted int
}

func newMockProcesses() *mockProcesses {
	return &mockProcesses{records: make(map[uuid.UUID]*Process)}
}

func (m *mockProcesses) Insert(_ context.Context, p Process) (Process, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	m.inserted++
	copied := p
	m.records[p.ID] = &copied
	return p, nil
}

func (m *mockProcesses) Get(_ context.Context, id uuid.UUID) (Process, error) {
	p, ok := m.records[id]
	if !ok {
		return Process{}, shared.ErrNotFound
	}
	return *p, nil
}

func (m *mockProcesses) FindActive(_ context.Context, orgID int64, key string) (Process, error) {
	for _, p := range m.records {
		if p.OrgID == orgID && p.IdempotencyKey == key && p.Status != ProcessFailed {
			return *p, nil
		}
	}
	return Process{}, shared.ErrNotFound
}

func (m *mockProcesses) MarkSucceeded(_ context.Context, id uuid.UUID, journalID int64) error {
	p, ok := m.records[id]
	if !ok {
		return shared.ErrNotFound
	}
	p.Status = ProcessSucceeded
	p.JournalID = &journalID
	return nil
}

func (m *mockProcesses) MarkFailed(_ context.Context, id uuid.UUID, code Code, message string) error {
	p, ok := m.records[id]
	if !ok {
		return shared.ErrNotFound
	}
	p.Status = ProcessFailed
	p.JournalID = nil
	p.FailureCode = code
	p.FailureMessage = message
	return nil
}

func (m *mockProcesses) ListFailed(_ context.Context, orgID int64, _ int) ([]Process, error) {
	var out []Process
	for _, p := range m.records {
		if p.OrgID == orgID && p.Status == ProcessFailed {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockProcesses) byKey(key string) *Process {
	for _, p := range m.records {
		if p.IdempotencyKey == key {
			return p
		}
	}
	return nil
}

// ============================================================================
// MOCK PORTS
// ============================================================================

type mockPosting struct {
	calls int
	err   error
}

func (m *mockPosting) PostTx(_ context.Context, _ journals.TxRepository, actor shared.Actor, journal journals.Journal) (journals.Journal, error) {
	m.calls++
	if m.err != nil {
		return journals.Journal{}, m.err
	}
	journal.Status = journals.StatusPosted
	journal.Number = "PAY-000001"
	journal.PostedBy = &actor.UserID
	return journal, nil
}

type mockEngine struct {
	receipts []inventory.ReceiptInput
	issues   []inventory.IssueInput
	result   inventory.PostingResult
	err      error
}

func (m *mockEngine) ApplyReceipt(_ context.Context, _ inventory.TxRepository, in inventory.ReceiptInput) (inventory.PostingResult, error) {
	m.receipts = append(m.receipts, in)
	return m.result, m.err
}

func (m *mockEngine) ApplyIssue(_ context.Context, _ inventory.TxRepository, in inventory.IssueInput) (inventory.PostingResult, error) {
	m.issues = append(m.issues, in)
	return m.result, m.err
}

type mockApprovals struct {
	inputs []workflow.SubmitInput
	err    error
}

func (m *mockApprovals) Submit(_ context.Context, _ shared.Actor, in workflow.SubmitInput) (workflow.Task, error) {
	m.inputs = append(m.inputs, in)
	if m.err != nil {
		return workflow.Task{}, m.err
	}
	return workflow.Task{ID: 99, Status: workflow.TaskPending}, nil
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

type fixture struct {
	store     *journalStore
	processes *mockProcesses
	runner    *mockRunner
	posting   *mockPosting
	engine    *mockEngine
	approvals *mockApprovals
	auditor   *mockAudit
	hooks     *Registry
	orch      *Orchestrator
}

func newFixture(cfg Config) *fixture {
	f := &fixture{
		store:     newJournalStore(),
		processes: newMockProcesses(),
		posting:   &mockPosting{},
		engine:    &mockEngine{},
		approvals: &mockApprovals{},
		auditor:   &mockAudit{},
		hooks:     NewRegistry(nil),
	}
	f.runner = &mockRunner{store: f.store}
	f.orch = NewOrchestrator(
		f.processes,
		f.runner,
		&journalsRepo{store: f.store},
		StaticConfigs{Areas: map[string]Config{cfg.Area: cfg}},
		f.posting,
		f.engine,
		f.approvals,
		f.hooks,
		f.auditor,
		nil,
	)
	return f
}

func paymentConfig() Config {
	return Config{Area: "payment", Name: "Payment Voucher", JournalTypeID: 1}
}

func goodsReceiptConfig() Config {
	return Config{Area: "goods_receipt", Name: "Goods Receipt", JournalTypeID: 1, AffectsInventory: true}
}

var vchActor = shared.Actor{UserID: 7, OrgID: 1, Roles: []string{"accountant"}}

func paymentInput(commit CommitType) Input {
	return Input{
		Area:           "payment",
		IdempotencyKey: "req-001",
		Commit:         commit,
		Header: HeaderInput{
			PeriodID: 1,
			Date:     time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
			Currency: "IDR",
		},
		Lines: []LineInput{
			{AccountID: 5200, Debit: decimal.NewFromInt(100)},
			{AccountID: 1110, Credit: decimal.NewFromInt(100)},
		},
	}
}

func voucherCode(t *testing.T, err error) Code {
	t.Helper()
	var coded *Error
	require.ErrorAs(t, err, &coded)
	return coded.Code
}

// ============================================================================
// TESTS
// ============================================================================

func TestProcessSaveCreatesDraftJournal(t *testing.T) {
	f := newFixture(paymentConfig())

	result, err := f.orch.Process(context.Background(), vchActor, paymentInput(CommitSave))
	require.NoError(t, err)

	assert.Equal(t, journals.StatusDraft, result.Journal.Status)
	assert.True(t, result.Journal.TotalDebit.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, "payment", result.Journal.Meta["voucher_area"])
	assert.Len(t, f.store.lines[result.Journal.ID], 2)
	assert.Zero(t, f.posting.calls)

	process := f.processes.byKey("req-001")
	require.NotNil(t, process)
	assert.Equal(t, ProcessSucceeded, process.Status)
	require.NotNil(t, process.JournalID)
	assert.Equal(t, result.Journal.ID, *process.JournalID)

	require.Len(t, f.auditor.entries, 1)
	assert.Equal(t, "voucher.process", f.auditor.entries[0].Action)
}

func TestProcessPostRunsPostingInTransaction(t *testing.T) {
	f := newFixture(paymentConfig())

	result, err := f.orch.Process(context.Background(), vchActor, paymentInput(CommitPost))
	require.NoError(t, err)

	assert.Equal(t, journals.StatusPosted, result.Journal.Status)
	assert.Equal(t, 1, f.posting.calls)
	assert.False(t, f.runner.rolledBack)
}

func TestProcessRequestValidation(t *testing.T) {
	f := newFixture(paymentConfig())

	cases := map[string]func(*Input){
		"missing area":     func(in *Input) { in.Area = "" },
		"missing key":      func(in *Input) { in.IdempotencyKey = "" },
		"unknown commit":   func(in *Input) { in.Commit = "archive" },
		"missing period":   func(in *Input) { in.Header.PeriodID = 0 },
		"missing currency": func(in *Input) { in.Header.Currency = "" },
		"missing date":     func(in *Input) { in.Header.Date = time.Time{} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := paymentInput(CommitSave)
			mutate(&in)
			_, err := f.orch.Process(context.Background(), vchActor, in)
			assert.Equal(t, CodeValidation, voucherCode(t, err))
		})
	}
	assert.Zero(t, f.processes.inserted)
}

func TestProcessPostRoleGate(t *testing.T) {
	cfg := paymentConfig()
	cfg.PostRoles = []string{"finance_manager"}
	f := newFixture(cfg)

	_, err := f.orch.Process(context.Background(), vchActor, paymentInput(CommitPost))
	assert.Equal(t, CodePermission, voucherCode(t, err))
	assert.Zero(t, f.processes.inserted)

	// Saving a draft needs no post role.
	_, err = f.orch.Process(context.Background(), vchActor, paymentInput(CommitSave))
	assert.NoError(t, err)
}

func TestProcessSchemaValidation(t *testing.T) {
	cfg := paymentConfig()
	cfg.HeaderSchema = []FieldDef{
		{Name: "payee", Type: FieldString, Required: true},
		{Name: "payment_method", Type: FieldEnum, Enum: []string{"CASH", "TRANSFER"}},
	}
	f := newFixture(cfg)

	in := paymentInput(CommitSave)
	in.Header.Attrs = map[string]any{"payment_method": "CRYPTO", "typo_field": 1}
	_, err := f.orch.Process(context.Background(), vchActor, in)
	assert.Equal(t, CodeValidation, voucherCode(t, err))
	assert.Zero(t, f.processes.inserted)

	in.Header.Attrs = map[string]any{"payee": "PT Elektronik Jaya", "payment_method": "CASH"}
	_, err = f.orch.Process(context.Background(), vchActor, in)
	assert.NoError(t, err)
}

func TestProcessIdempotentReplay(t *testing.T) {
	f := newFixture(paymentConfig())

	first, err := f.orch.Process(context.Background(), vchActor, paymentInput(CommitSave))
	require.NoError(t, err)
	require.Equal(t, 1, f.processes.inserted)

	replayed, err := f.orch.Process(context.Background(), vchActor, paymentInput(CommitSave))
	require.NoError(t, err)

	assert.True(t, replayed.Replayed)
	assert.Equal(t, first.ProcessID, replayed.ProcessID)
	assert.Equal(t, first.Journal.ID, replayed.Journal.ID)
	// No second process, no second journal.
	assert.Equal(t, 1, f.processes.inserted)
	assert.Len(t, f.store.journals, 1)
}

func TestProcessInFlightKeyConflicts(t *testing.T) {
	f := newFixture(paymentConfig())
	_, err := f.processes.Insert(context.Background(), Process{
		OrgID: 1, Area: "payment", IdempotencyKey: "req-001", Status: ProcessProcessing,
	})
	require.NoError(t, err)

	_, err = f.orch.Process(context.Background(), vchActor, paymentInput(CommitSave))
	assert.Equal(t, CodeConflict, voucherCode(t, err))
}

func TestProcessRetryAfterFailure(t *testing.T) {
	f := newFixture(paymentConfig())
	_, err := f.processes.Insert(context.Background(), Process{
		OrgID: 1, Area: "payment", IdempotencyKey: "req-001", Status: ProcessFailed,
		FailureCode: CodeInsufficientStock,
	})
	require.NoError(t, err)

	result, err := f.orch.Process(context.Background(), vchActor, paymentInput(CommitSave))
	require.NoError(t, err)
	assert.False(t, result.Replayed)
	assert.Equal(t, 2, f.processes.inserted)
}

func TestProcessMovementSynthesizesBalancedLines(t *testing.T) {
	f := newFixture(goodsReceiptConfig())
	f.engine.result = inventory.PostingResult{
		Method:          inventory.MethodFIFO,
		TotalCost:       decimal.NewFromInt(140),
		DebitAccountID:  1310,
		CreditAccountID: 2110,
	}

	in := paymentInput(CommitSave)
	in.Area = "goods_receipt"
	in.Lines = nil
	in.Movements = []MovementInput{{
		Direction: DirectionReceipt, ProductID: 1, WarehouseID: 1,
		Qty: decimal.NewFromInt(10), UnitCost: decimal.NewFromInt(14), OffsetAccountID: 2110,
	}}

	result, err := f.orch.Process(context.Background(), vchActor, in)
	require.NoError(t, err)

	require.Len(t, f.engine.receipts, 1)
	assert.Equal(t, "voucher", f.engine.receipts[0].RefModule)
	assert.Equal(t, result.ProcessID, f.engine.receipts[0].RefID)

	lines := f.store.lines[result.Journal.ID]
	require.Len(t, lines, 2)
	assert.Equal(t, int64(1310), lines[0].AccountID)
	assert.True(t, lines[0].Debit.Equal(decimal.NewFromInt(140)))
	assert.Equal(t, int64(2110), lines[1].AccountID)
	assert.True(t, lines[1].Credit.Equal(decimal.NewFromInt(140)))
	assert.True(t, result.Journal.TotalDebit.Equal(decimal.NewFromInt(140)))
}

func TestProcessZeroCostMovementSkipsLedgerLines(t *testing.T) {
	f := newFixture(goodsReceiptConfig())
	f.engine.result = inventory.PostingResult{TotalCost: decimal.Zero}

	in := paymentInput(CommitSave)
	in.Area = "goods_receipt"
	in.Movements = []MovementInput{{
		Direction: DirectionIssue, ProductID: 1, WarehouseID: 1, Qty: decimal.NewFromInt(3),
	}}

	result, err := f.orch.Process(context.Background(), vchActor, in)
	require.NoError(t, err)

	// Stock moved, but only the explicit GL lines exist.
	require.Len(t, f.engine.issues, 1)
	assert.Len(t, f.store.lines[result.Journal.ID], 2)
}

func TestProcessMovementsRequireInventoryArea(t *testing.T) {
	f := newFixture(paymentConfig())

	in := paymentInput(CommitSave)
	in.Movements = []MovementInput{{
		Direction: DirectionReceipt, ProductID: 1, WarehouseID: 1, Qty: decimal.NewFromInt(1),
	}}

	_, err := f.orch.Process(context.Background(), vchActor, in)
	assert.Equal(t, CodeValidation, voucherCode(t, err))
	assert.True(t, f.runner.rolledBack)
}

func TestProcessRollsBackWhenMovementFails(t *testing.T) {
	f := newFixture(goodsReceiptConfig())
	f.engine.err = inventory.ErrInsufficientStock

	in := paymentInput(CommitSave)
	in.Area = "goods_receipt"
	in.Movements = []MovementInput{{
		Direction: DirectionIssue, ProductID: 1, WarehouseID: 1, Qty: decimal.NewFromInt(50),
	}}

	_, err := f.orch.Process(context.Background(), vchActor, in)
	assert.Equal(t, CodeInsufficientStock, voucherCode(t, err))

	// Everything inside the transaction is gone; the process record survives
	// with the failure code and the request snapshot.
	assert.True(t, f.runner.rolledBack)
	assert.Empty(t, f.store.journals)
	process := f.processes.byKey("req-001")
	require.NotNil(t, process)
	assert.Equal(t, ProcessFailed, process.Status)
	assert.Equal(t, CodeInsufficientStock, process.FailureCode)
	assert.Nil(t, process.JournalID)
	assert.Equal(t, "goods_receipt", process.Snapshot.Area)
}

func TestProcessUnbalancedLinesFail(t *testing.T) {
	f := newFixture(paymentConfig())

	in := paymentInput(CommitSave)
	in.Lines[1].Credit = decimal.NewFromInt(90)

	_, err := f.orch.Process(context.Background(), vchActor, in)
	assert.Equal(t, CodeValidation, voucherCode(t, err))
	assert.Empty(t, f.store.journals)
}

func TestProcessCriticalBeforeSaveHookAborts(t *testing.T) {
	f := newFixture(paymentConfig())
	f.hooks.Register(HookBeforeSave, Hook{
		Name:     "fraud-check",
		Critical: true,
		Fn: func(_ context.Context, _ *HookContext) error {
			return errors.New("velocity limit exceeded")
		},
	})

	_, err := f.orch.Process(context.Background(), vchActor, paymentInput(CommitSave))
	require.Error(t, err)

	assert.Empty(t, f.store.journals)
	process := f.processes.byKey("req-001")
	require.NotNil(t, process)
	assert.Equal(t, ProcessFailed, process.Status)
}

func TestProcessNonCriticalHookIsIsolated(t *testing.T) {
	f := newFixture(paymentConfig())
	f.hooks.Register(HookBeforeSave, Hook{
		Name: "enrichment",
		Fn: func(_ context.Context, _ *HookContext) error {
			return errors.New("enrichment service down")
		},
	})

	_, err := f.orch.Process(context.Background(), vchActor, paymentInput(CommitSave))
	assert.NoError(t, err)
}

func TestProcessPostCommitHookFailureBecomesWarning(t *testing.T) {
	f := newFixture(paymentConfig())
	f.hooks.Register(HookAfterPost, Hook{
		Name:     "notify",
		Critical: true,
		Fn: func(_ context.Context, _ *HookContext) error {
			return errors.New("webhook unreachable")
		},
	})

	result, err := f.orch.Process(context.Background(), vchActor, paymentInput(CommitPost))
	require.NoError(t, err)

	// Posting committed; a post-commit failure cannot roll it back.
	assert.Equal(t, journals.StatusPosted, result.Journal.Status)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "webhook unreachable")
	assert.Equal(t, ProcessSucceeded, f.processes.byKey("req-001").Status)
}

func TestProcessHooksObservePersistedJournal(t *testing.T) {
	f := newFixture(paymentConfig())
	var seen *journals.Journal
	f.hooks.Register(HookAfterSave, Hook{
		Name: "capture",
		Fn: func(_ context.Context, hc *HookContext) error {
			seen = hc.Journal
			return nil
		},
	})

	result, err := f.orch.Process(context.Background(), vchActor, paymentInput(CommitSave))
	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.Equal(t, result.Journal.ID, seen.ID)
}

func TestProcessSubmitRoutesIntoApproval(t *testing.T) {
	f := newFixture(paymentConfig())

	result, err := f.orch.Process(context.Background(), vchActor, paymentInput(CommitSubmit))
	require.NoError(t, err)

	assert.Equal(t, int64(99), result.TaskID)
	require.Len(t, f.approvals.inputs, 1)
	assert.Equal(t, result.Journal.ID, f.approvals.inputs[0].JournalID)
	assert.Equal(t, "payment", f.approvals.inputs[0].Area)
	assert.True(t, f.approvals.inputs[0].Amount.Equal(decimal.NewFromInt(100)))
}

func TestProcessSubmitFailureFailsProcess(t *testing.T) {
	f := newFixture(paymentConfig())
	f.approvals.err = workflow.ErrWorkflowNotConfigured

	_, err := f.orch.Process(context.Background(), vchActor, paymentInput(CommitSubmit))
	assert.Equal(t, CodeValidation, voucherCode(t, err))
	assert.Equal(t, ProcessFailed, f.processes.byKey("req-001").Status)
}

func TestProcessCrossTenantJournalType(t *testing.T) {
	f := newFixture(paymentConfig())
	f.store.types[1] = journals.JournalType{ID: 1, OrgID: 2, Code: "PAY"}

	_, err := f.orch.Process(context.Background(), vchActor, paymentInput(CommitSave))
	assert.Equal(t, CodePermission, voucherCode(t, err))
}

func TestStatusEnforcesTenancy(t *testing.T) {
	f := newFixture(paymentConfig())
	inserted, err := f.processes.Insert(context.Background(), Process{OrgID: 2, Area: "payment", IdempotencyKey: "x"})
	require.NoError(t, err)

	_, err = f.orch.Status(context.Background(), vchActor, inserted.ID)
	assert.ErrorIs(t, err, shared.ErrCrossTenant)
}
