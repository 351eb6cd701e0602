package voucher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/keystone-erp/keystone-erp/internal/accounting/journals"
	"github.com/keystone-erp/keystone-erp/internal/audit"
	"github.com/keystone-erp/keystone-erp/internal/inventory"
	"github.com/keystone-erp/keystone-erp/internal/shared"
	"github.com/keystone-erp/keystone-erp/internal/workflow"
)

// AuditPort records audit entries after state changes.
type AuditPort interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// PostingPort posts a journal inside the orchestrator's transaction.
type PostingPort interface {
	PostTx(ctx context.Context, tx journals.TxRepository, actor shared.Actor, journal journals.Journal) (journals.Journal, error)
}

// EnginePort applies stock movements inside the orchestrator's transaction.
type EnginePort interface {
	ApplyReceipt(ctx context.Context, tx inventory.TxRepository, in inventory.ReceiptInput) (inventory.PostingResult, error)
	ApplyIssue(ctx context.Context, tx inventory.TxRepository, in inventory.IssueInput) (inventory.PostingResult, error)
}

// ApprovalPort routes a saved voucher into its approval chain.
type ApprovalPort interface {
	Submit(ctx context.Context, actor shared.Actor, in workflow.SubmitInput) (workflow.Task, error)
}

// ConfigSource resolves the voucher configuration for an (org, area) pair.
type ConfigSource interface {
	ConfigFor(ctx context.Context, orgID int64, area string) (Config, error)
}

// StaticConfigs is a ConfigSource backed by a fixed area map.
type StaticConfigs struct {
	Areas map[string]Config
}

func (s StaticConfigs) ConfigFor(_ context.Context, _ int64, area string) (Config, error) {
	cfg, ok := s.Areas[area]
	if !ok {
		return Config{}, NewError(CodeValidation, "unknown voucher area %q", area)
	}
	return cfg, nil
}

// Orchestrator drives a voucher request through validation, stock costing,
// journal creation and posting as one saga. All database writes of one
// request share a single transaction; the process record lives outside it so
// failures leave a diagnosable trace.
type Orchestrator struct {
	processes ProcessRepository
	runner    TxRunner
	journals  journals.Repository
	configs   ConfigSource
	posting   PostingPort
	engine    EnginePort
	approvals ApprovalPort
	hooks     *Registry
	audit     AuditPort
	log       *slog.Logger
	now       func() time.Time
}

func NewOrchestrator(
	processes ProcessRepository,
	runner TxRunner,
	journalRepo journals.Repository,
	configs ConfigSource,
	posting PostingPort,
	engine EnginePort,
	approvals ApprovalPort,
	hooks *Registry,
	auditor AuditPort,
	log *slog.Logger,
) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	if hooks == nil {
		hooks = NewRegistry(log)
	}
	return &Orchestrator{
		processes: processes,
		runner:    runner,
		journals:  journalRepo,
		configs:   configs,
		posting:   posting,
		engine:    engine,
		approvals: approvals,
		hooks:     hooks,
		audit:     auditor,
		log:       log,
		now:       time.Now,
	}
}

func (o *Orchestrator) WithNow(now func() time.Time) {
	if now != nil {
		o.now = now
	}
}

// Process executes one voucher request. Requests replaying a succeeded
// idempotency key return the prior outcome without touching the database;
// a key still in flight is a conflict.
func (o *Orchestrator) Process(ctx context.Context, actor shared.Actor, in Input) (Result, error) {
	if err := o.validateRequest(in); err != nil {
		return Result{}, err
	}
	cfg, err := o.configs.ConfigFor(ctx, actor.OrgID, in.Area)
	if err != nil {
		return Result{}, WrapError(err)
	}
	if in.Commit == CommitPost && len(cfg.PostRoles) > 0 && !hasAnyRole(actor, cfg.PostRoles) {
		return Result{}, NewError(CodePermission, "actor %d may not post %s vouchers", actor.UserID, in.Area)
	}
	if violations := o.validateSchema(cfg, in); len(violations) > 0 {
		return Result{}, &Error{Code: CodeValidation, Message: fmt.Sprintf("schema validation failed: %v", violations)}
	}

	prior, err := o.processes.FindActive(ctx, actor.OrgID, in.IdempotencyKey)
	switch {
	case err == nil && prior.Status == ProcessSucceeded:
		return o.replay(ctx, prior)
	case err == nil && prior.Status == ProcessProcessing:
		return Result{}, NewError(CodeConflict, "request %s is already in flight", in.IdempotencyKey)
	case err != nil && !errors.Is(err, shared.ErrNotFound):
		return Result{}, WrapError(err)
	}

	process, err := o.processes.Insert(ctx, Process{
		OrgID:          actor.OrgID,
		Area:           in.Area,
		IdempotencyKey: in.IdempotencyKey,
		Commit:         in.Commit,
		Status:         ProcessProcessing,
		Snapshot:       in,
		InitiatedBy:    actor.UserID,
	})
	if err != nil {
		return Result{}, WrapError(err)
	}

	hc := &HookContext{Actor: actor, Config: cfg, Input: &in}
	if err := o.hooks.Run(ctx, HookBeforeSave, hc); err != nil {
		return Result{}, o.fail(ctx, process, err)
	}

	var journal journals.Journal
	err = o.runner.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		journal, err = o.execute(ctx, tx, actor, cfg, process, in)
		return err
	})
	if err != nil {
		return Result{}, o.fail(ctx, process, err)
	}

	result := Result{ProcessID: process.ID, Journal: journal}
	hc.Journal = &journal
	o.runPostCommitHooks(ctx, HookAfterSave, hc, &result)
	if in.Commit == CommitPost {
		o.runPostCommitHooks(ctx, HookAfterPost, hc, &result)
	}

	if in.Commit == CommitSubmit && o.approvals != nil {
		task, err := o.approvals.Submit(ctx, actor, workflow.SubmitInput{
			JournalID: journal.ID,
			OrgID:     actor.OrgID,
			Area:      in.Area,
			Amount:    journal.TotalDebit,
		})
		if err != nil {
			return Result{}, o.fail(ctx, process, err)
		}
		result.TaskID = task.ID
	}

	if err := o.processes.MarkSucceeded(ctx, process.ID, journal.ID); err != nil {
		o.log.Error("voucher process finalisation failed",
			slog.String("process_id", process.ID.String()),
			slog.String("error", err.Error()))
	}
	o.recordAudit(ctx, actor, process, journal)
	return result, nil
}

// execute is the transactional core: stock movements, journal creation and,
// for post commits, the ledger write all happen here or not at all.
func (o *Orchestrator) execute(ctx context.Context, tx Tx, actor shared.Actor, cfg Config, process Process, in Input) (journals.Journal, error) {
	jtx := tx.Journals()
	journalType, err := jtx.GetType(ctx, cfg.JournalTypeID)
	if err != nil {
		return journals.Journal{}, err
	}
	if journalType.OrgID != actor.OrgID {
		return journals.Journal{}, shared.ErrCrossTenant
	}

	lines := make([]journals.LineInput, 0, len(in.Lines)+2*len(in.Movements))
	for _, line := range in.Lines {
		lines = append(lines, journals.LineInput{
			AccountID:    line.AccountID,
			Debit:        line.Debit,
			Credit:       line.Credit,
			DepartmentID: line.DepartmentID,
			ProjectID:    line.ProjectID,
			CostCenterID: line.CostCenterID,
			TaxCodeID:    line.TaxCodeID,
			Attrs:        line.Attrs,
		})
	}

	if len(in.Movements) > 0 {
		if !cfg.AffectsInventory {
			return journals.Journal{}, NewError(CodeValidation, "area %s does not move inventory", in.Area)
		}
		synthesized, err := o.applyMovements(ctx, tx.Inventory(), actor, process, in)
		if err != nil {
			return journals.Journal{}, err
		}
		lines = append(lines, synthesized...)
	}

	if err := journals.ValidateLines(lines); err != nil {
		return journals.Journal{}, err
	}
	debit, credit := journals.Totals(lines)

	rate := in.Header.ExchangeRate
	if rate.IsZero() {
		rate = decimal.NewFromInt(1)
	}
	meta := map[string]any{
		"voucher_area":    in.Area,
		"voucher_process": process.ID.String(),
	}
	if len(in.Header.Attrs) > 0 {
		meta["attrs"] = in.Header.Attrs
	}
	inserted, err := jtx.InsertJournal(ctx, journals.Journal{
		OrgID:        actor.OrgID,
		TypeID:       cfg.JournalTypeID,
		PeriodID:     in.Header.PeriodID,
		Date:         in.Header.Date,
		Currency:     in.Header.Currency,
		ExchangeRate: rate,
		Status:       journals.StatusDraft,
		TotalDebit:   debit,
		TotalCredit:  credit,
		Reference:    in.Header.Reference,
		Memo:         in.Header.Memo,
		Meta:         meta,
	})
	if err != nil {
		return journals.Journal{}, err
	}
	if _, err := jtx.InsertLines(ctx, inserted.ID, lines); err != nil {
		return journals.Journal{}, err
	}

	if in.Commit == CommitPost {
		return o.posting.PostTx(ctx, jtx, actor, inserted)
	}
	full, err := jtx.GetLines(ctx, inserted.ID)
	if err != nil {
		return journals.Journal{}, err
	}
	inserted.Lines = full
	return inserted, nil
}

// applyMovements runs each stock movement through the costing engine and
// synthesizes the balancing GL line pair from the returned account/cost
// result. Zero-cost movements adjust stock without touching the GL.
func (o *Orchestrator) applyMovements(ctx context.Context, itx inventory.TxRepository, actor shared.Actor, process Process, in Input) ([]journals.LineInput, error) {
	var lines []journals.LineInput
	for idx, mv := range in.Movements {
		var result inventory.PostingResult
		var err error
		switch mv.Direction {
		case DirectionReceipt:
			result, err = o.engine.ApplyReceipt(ctx, itx, inventory.ReceiptInput{
				OrgID:           actor.OrgID,
				ProductID:       mv.ProductID,
				WarehouseID:     mv.WarehouseID,
				Qty:             mv.Qty,
				UnitCost:        mv.UnitCost,
				OffsetAccountID: mv.OffsetAccountID,
				RefModule:       "voucher",
				RefID:           process.ID,
				Note:            mv.Note,
				ActorID:         actor.UserID,
			})
		case DirectionIssue:
			result, err = o.engine.ApplyIssue(ctx, itx, inventory.IssueInput{
				OrgID:       actor.OrgID,
				ProductID:   mv.ProductID,
				WarehouseID: mv.WarehouseID,
				Qty:         mv.Qty,
				RefModule:   "voucher",
				RefID:       process.ID,
				Note:        mv.Note,
				ActorID:     actor.UserID,
			})
		default:
			return nil, NewError(CodeValidation, "movement %d: unknown direction %q", idx+1, mv.Direction)
		}
		if err != nil {
			return nil, fmt.Errorf("movement %d: %w", idx+1, err)
		}
		if !result.TotalCost.IsPositive() {
			continue
		}
		lines = append(lines,
			journals.LineInput{AccountID: result.DebitAccountID, Debit: result.TotalCost},
			journals.LineInput{AccountID: result.CreditAccountID, Credit: result.TotalCost},
		)
	}
	return lines, nil
}

func (o *Orchestrator) replay(ctx context.Context, prior Process) (Result, error) {
	if prior.JournalID == nil {
		return Result{}, NewError(CodeInternal, "succeeded process %s has no journal", prior.ID)
	}
	journal, err := o.journals.GetJournal(ctx, *prior.JournalID)
	if err != nil {
		return Result{}, WrapError(err)
	}
	lines, err := o.journals.GetLines(ctx, journal.ID)
	if err != nil {
		return Result{}, WrapError(err)
	}
	journal.Lines = lines
	return Result{ProcessID: prior.ID, Journal: journal, Replayed: true}, nil
}

// fail finalises the process record and returns the coded error. The failure
// write must not mask the original error.
func (o *Orchestrator) fail(ctx context.Context, process Process, cause error) error {
	coded := WrapError(cause)
	if err := o.processes.MarkFailed(ctx, process.ID, coded.Code, coded.Message); err != nil {
		o.log.Error("voucher failure finalisation failed",
			slog.String("process_id", process.ID.String()),
			slog.String("error", err.Error()))
	}
	return coded
}

// runPostCommitHooks executes hooks whose work runs after the transaction
// committed; at that point a critical failure can no longer roll anything
// back, so it degrades to a warning on the result.
func (o *Orchestrator) runPostCommitHooks(ctx context.Context, point HookPoint, hc *HookContext, result *Result) {
	if err := o.hooks.Run(ctx, point, hc); err != nil {
		o.log.Warn("post-commit voucher hook failed",
			slog.String("point", string(point)),
			slog.String("error", err.Error()))
		result.Warnings = append(result.Warnings, err.Error())
	}
}

func (o *Orchestrator) validateRequest(in Input) error {
	switch {
	case in.Area == "":
		return NewError(CodeValidation, "area is required")
	case in.IdempotencyKey == "":
		return NewError(CodeValidation, "idempotency key is required")
	case in.Commit != CommitSave && in.Commit != CommitSubmit && in.Commit != CommitPost:
		return NewError(CodeValidation, "unknown commit type %q", in.Commit)
	case in.Header.PeriodID == 0:
		return NewError(CodeValidation, "period is required")
	case in.Header.Currency == "":
		return NewError(CodeValidation, "currency is required")
	case in.Header.Date.IsZero():
		return NewError(CodeValidation, "date is required")
	}
	return nil
}

func (o *Orchestrator) validateSchema(cfg Config, in Input) []string {
	violations := ValidateAttrs(cfg.HeaderSchema, in.Header.Attrs)
	for idx, line := range in.Lines {
		for _, v := range ValidateAttrs(cfg.LineSchema, line.Attrs) {
			violations = append(violations, fmt.Sprintf("line %d: %s", idx+1, v))
		}
	}
	return violations
}

// Status returns one process record for inspection.
func (o *Orchestrator) Status(ctx context.Context, actor shared.Actor, id uuid.UUID) (Process, error) {
	process, err := o.processes.Get(ctx, id)
	if err != nil {
		return Process{}, err
	}
	if process.OrgID != actor.OrgID {
		return Process{}, shared.ErrCrossTenant
	}
	return process, nil
}

// FailedProcesses lists recent failed attempts for operators.
func (o *Orchestrator) FailedProcesses(ctx context.Context, actor shared.Actor, limit int) ([]Process, error) {
	return o.processes.ListFailed(ctx, actor.OrgID, limit)
}

func (o *Orchestrator) recordAudit(ctx context.Context, actor shared.Actor, process Process, journal journals.Journal) {
	if o.audit == nil {
		return
	}
	_ = o.audit.Record(ctx, audit.Entry{
		OrgID:    actor.OrgID,
		ActorID:  actor.UserID,
		Action:   "voucher.process",
		Entity:   "voucher_process",
		EntityID: process.ID.String(),
		Meta: map[string]any{
			"area":            process.Area,
			"commit":          string(process.Commit),
			"idempotency_key": process.IdempotencyKey,
			"journal_id":      journal.ID,
			"journal_number":  journal.Number,
		},
		At: o.now(),
	})
}

func hasAnyRole(actor shared.Actor, roles []string) bool {
	for _, role := range roles {
		if actor.HasRole(role) {
			return true
		}
	}
	return false
}
