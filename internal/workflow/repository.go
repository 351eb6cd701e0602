package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keystone-erp/keystone-erp/internal/shared"
)

// Repository persists workflows, tasks and approvals.
type Repository interface {
	GetWorkflow(ctx context.Context, id int64) (Workflow, error)
	FindWorkflowByArea(ctx context.Context, orgID int64, area string) (Workflow, error)
	InsertTask(ctx context.Context, task Task) (Task, error)
	GetTask(ctx context.Context, id int64) (Task, error)
	FindPendingTask(ctx context.Context, journalID int64) (Task, error)
	UpdateTask(ctx context.Context, id int64, status TaskStatus, stepIndex int) error
	InsertApproval(ctx context.Context, approval Approval) (int64, error)
	ListApprovals(ctx context.Context, taskID int64) ([]Approval, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) loadSteps(ctx context.Context, wf *Workflow) error {
	rows, err := r.db.Query(ctx, `SELECT id, workflow_id, seq, role, min_amount
FROM approval_steps WHERE workflow_id=$1 ORDER BY seq ASC`, wf.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var s Step
		if err := rows.Scan(&s.ID, &s.WorkflowID, &s.Seq, &s.Role, &s.MinAmount); err != nil {
			return err
		}
		wf.Steps = append(wf.Steps, s)
	}
	return rows.Err()
}

func (r *repository) GetWorkflow(ctx context.Context, id int64) (Workflow, error) {
	var wf Workflow
	err := r.db.QueryRow(ctx, `SELECT id, org_id, area, name FROM approval_workflows WHERE id=$1`, id).
		Scan(&wf.ID, &wf.OrgID, &wf.Area, &wf.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Workflow{}, shared.ErrNotFound
		}
		return Workflow{}, err
	}
	if err := r.loadSteps(ctx, &wf); err != nil {
		return Workflow{}, err
	}
	return wf, nil
}

func (r *repository) FindWorkflowByArea(ctx context.Context, orgID int64, area string) (Workflow, error) {
	var wf Workflow
	err := r.db.QueryRow(ctx, `SELECT id, org_id, area, name FROM approval_workflows WHERE org_id=$1 AND area=$2`, orgID, area).
		Scan(&wf.ID, &wf.OrgID, &wf.Area, &wf.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Workflow{}, ErrWorkflowNotConfigured
		}
		return Workflow{}, err
	}
	if err := r.loadSteps(ctx, &wf); err != nil {
		return Workflow{}, err
	}
	return wf, nil
}

func (r *repository) InsertTask(ctx context.Context, task Task) (Task, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO approval_tasks (org_id, workflow_id, journal_id, status, step_index, amount, initiated_by)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id, created_at, updated_at`,
		task.OrgID, task.WorkflowID, task.JournalID, task.Status, task.StepIndex, task.Amount, task.InitiatedBy).
		Scan(&task.ID, &task.CreatedAt, &task.UpdatedAt)
	return task, err
}

func scanTask(row pgx.Row) (Task, error) {
	var t Task
	err := row.Scan(&t.ID, &t.OrgID, &t.WorkflowID, &t.JournalID, &t.Status, &t.StepIndex, &t.Amount, &t.InitiatedBy, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Task{}, shared.ErrNotFound
		}
		return Task{}, err
	}
	return t, nil
}

const taskColumns = `id, org_id, workflow_id, journal_id, status, step_index, amount, initiated_by, created_at, updated_at`

func (r *repository) GetTask(ctx context.Context, id int64) (Task, error) {
	return scanTask(r.db.QueryRow(ctx, `SELECT `+taskColumns+` FROM approval_tasks WHERE id=$1`, id))
}

func (r *repository) FindPendingTask(ctx context.Context, journalID int64) (Task, error) {
	return scanTask(r.db.QueryRow(ctx, `SELECT `+taskColumns+` FROM approval_tasks WHERE journal_id=$1 AND status=$2`, journalID, TaskPending))
}

func (r *repository) UpdateTask(ctx context.Context, id int64, status TaskStatus, stepIndex int) error {
	cmd, err := r.db.Exec(ctx, `UPDATE approval_tasks SET status=$2, step_index=$3, updated_at=NOW() WHERE id=$1`, id, status, stepIndex)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) InsertApproval(ctx context.Context, approval Approval) (int64, error) {
	var id int64
	at := approval.At
	if at.IsZero() {
		at = time.Now()
	}
	err := r.db.QueryRow(ctx, `INSERT INTO approvals (task_id, step_id, approver_id, approved, note, at)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		approval.TaskID, approval.StepID, approval.ApproverID, approval.Approved, approval.Note, at).Scan(&id)
	return id, err
}

func (r *repository) ListApprovals(ctx context.Context, taskID int64) ([]Approval, error) {
	rows, err := r.db.Query(ctx, `SELECT id, task_id, step_id, approver_id, approved, note, at
FROM approvals WHERE task_id=$1 ORDER BY at ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Approval
	for rows.Next() {
		var a Approval
		if err := rows.Scan(&a.ID, &a.TaskID, &a.StepID, &a.ApproverID, &a.Approved, &a.Note, &a.At); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
