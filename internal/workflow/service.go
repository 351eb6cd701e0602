package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/keystone-erp/keystone-erp/internal/audit"
	"github.com/keystone-erp/keystone-erp/internal/shared"
)

// AuditPort records audit entries after workflow actions.
type AuditPort interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// DocumentPort moves the underlying document when a task finalises. The
// lifecycle service satisfies it through a thin adapter.
type DocumentPort interface {
	MarkAwaitingApproval(ctx context.Context, actor shared.Actor, journalID int64) error
	MarkApproved(ctx context.Context, actor shared.Actor, journalID int64) error
	MarkRejected(ctx context.Context, actor shared.Actor, journalID int64, reason string) error
}

// SubmitInput describes the document entering a workflow.
type SubmitInput struct {
	JournalID  int64
	OrgID      int64
	Area       string
	Amount     decimal.Decimal
	WorkflowID int64 // optional; 0 resolves by org+area
}

// Service routes documents through configured approval chains.
type Service struct {
	repo  Repository
	docs  DocumentPort
	audit AuditPort
	now   func() time.Time
}

func NewService(repo Repository, docs DocumentPort, audit AuditPort) *Service {
	return &Service{repo: repo, docs: docs, audit: audit, now: time.Now}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Submit resolves the workflow for the document's area and opens a pending
// task at the first applicable step. Steps whose threshold exceeds the
// document amount are skipped; if every step is skipped the document is
// approved outright.
func (s *Service) Submit(ctx context.Context, actor shared.Actor, in SubmitInput) (Task, error) {
	if in.OrgID != actor.OrgID {
		return Task{}, shared.ErrCrossTenant
	}
	wf, err := s.resolveWorkflow(ctx, in)
	if err != nil {
		return Task{}, err
	}
	if len(wf.Steps) == 0 {
		return Task{}, ErrNoSteps
	}
	if wf.OrgID != actor.OrgID {
		return Task{}, shared.ErrCrossTenant
	}

	first, ok := nextApplicableStep(wf, -1, in.Amount)
	task := Task{
		OrgID:       in.OrgID,
		WorkflowID:  wf.ID,
		JournalID:   in.JournalID,
		Amount:      in.Amount,
		InitiatedBy: actor.UserID,
	}
	if !ok {
		// Every step is below-threshold for this amount.
		task.Status = TaskApproved
		task.StepIndex = len(wf.Steps)
	} else {
		task.Status = TaskPending
		task.StepIndex = first
	}
	task, err = s.repo.InsertTask(ctx, task)
	if err != nil {
		return Task{}, err
	}

	if s.docs != nil {
		// The document always enters awaiting-approval first; an
		// auto-approval then finalises it immediately. Skipping straight to
		// approved is not a legal document transition from draft.
		if err := s.docs.MarkAwaitingApproval(ctx, actor, in.JournalID); err != nil {
			return Task{}, err
		}
		if task.Status == TaskApproved {
			if err := s.docs.MarkApproved(ctx, actor, in.JournalID); err != nil {
				return Task{}, err
			}
		}
	}
	s.record(ctx, actor, task, "workflow.submit", map[string]any{"area": wf.Area, "auto_approved": task.Status == TaskApproved})
	return task, nil
}

// Decide applies one approver's verdict on the task's current step. A
// rejection finalises the task immediately; an approval advances past any
// below-threshold steps and finalises when none remain.
func (s *Service) Decide(ctx context.Context, actor shared.Actor, taskID int64, approved bool, note string) (Task, error) {
	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return Task{}, err
	}
	if task.OrgID != actor.OrgID {
		return Task{}, shared.ErrCrossTenant
	}
	if task.Status != TaskPending {
		return Task{}, ErrTaskClosed
	}
	wf, err := s.repo.GetWorkflow(ctx, task.WorkflowID)
	if err != nil {
		return Task{}, err
	}
	if task.StepIndex < 0 || task.StepIndex >= len(wf.Steps) {
		return Task{}, fmt.Errorf("workflow: task %d step index %d out of range", task.ID, task.StepIndex)
	}
	step := wf.Steps[task.StepIndex]
	if !actor.HasRole(step.Role) {
		return Task{}, fmt.Errorf("%w: step requires role %q", ErrRoleNotAllowed, step.Role)
	}

	if _, err := s.repo.InsertApproval(ctx, Approval{
		TaskID:     task.ID,
		StepID:     step.ID,
		ApproverID: actor.UserID,
		Approved:   approved,
		Note:       note,
		At:         s.now(),
	}); err != nil {
		return Task{}, err
	}

	if !approved {
		task.Status = TaskRejected
		if err := s.repo.UpdateTask(ctx, task.ID, TaskRejected, task.StepIndex); err != nil {
			return Task{}, err
		}
		if s.docs != nil {
			if err := s.docs.MarkRejected(ctx, actor, task.JournalID, note); err != nil {
				return Task{}, err
			}
		}
		s.record(ctx, actor, task, "workflow.reject", map[string]any{"step": step.Seq, "note": note})
		return task, nil
	}

	next, ok := nextApplicableStep(wf, task.StepIndex, task.Amount)
	if !ok {
		task.Status = TaskApproved
		task.StepIndex = len(wf.Steps)
		if err := s.repo.UpdateTask(ctx, task.ID, TaskApproved, task.StepIndex); err != nil {
			return Task{}, err
		}
		if s.docs != nil {
			if err := s.docs.MarkApproved(ctx, actor, task.JournalID); err != nil {
				return Task{}, err
			}
		}
		s.record(ctx, actor, task, "workflow.approve", map[string]any{"step": step.Seq, "final": true})
		return task, nil
	}
	task.StepIndex = next
	if err := s.repo.UpdateTask(ctx, task.ID, TaskPending, next); err != nil {
		return Task{}, err
	}
	s.record(ctx, actor, task, "workflow.approve", map[string]any{"step": step.Seq, "next_step": wf.Steps[next].Seq})
	return task, nil
}

// Task returns one task with its decision history attached.
func (s *Service) Task(ctx context.Context, actor shared.Actor, taskID int64) (Task, []Approval, error) {
	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return Task{}, nil, err
	}
	if task.OrgID != actor.OrgID {
		return Task{}, nil, shared.ErrCrossTenant
	}
	approvals, err := s.repo.ListApprovals(ctx, taskID)
	if err != nil {
		return Task{}, nil, err
	}
	return task, approvals, nil
}

func (s *Service) resolveWorkflow(ctx context.Context, in SubmitInput) (Workflow, error) {
	if in.WorkflowID != 0 {
		return s.repo.GetWorkflow(ctx, in.WorkflowID)
	}
	return s.repo.FindWorkflowByArea(ctx, in.OrgID, in.Area)
}

// nextApplicableStep returns the first step after `after` whose threshold the
// amount meets.
func nextApplicableStep(wf Workflow, after int, amount decimal.Decimal) (int, bool) {
	for i := after + 1; i < len(wf.Steps); i++ {
		if amount.GreaterThanOrEqual(wf.Steps[i].MinAmount) {
			return i, true
		}
	}
	return 0, false
}

func (s *Service) record(ctx context.Context, actor shared.Actor, task Task, action string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, audit.Entry{
		OrgID:    task.OrgID,
		ActorID:  actor.UserID,
		Action:   action,
		Entity:   "approval_task",
		EntityID: fmt.Sprintf("%d", task.ID),
		Meta:     meta,
		At:       s.now(),
	})
}
