package workflow

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Workflow is a configured multi-step approval chain for one document area
// (e.g. "journal", "payment").
type Workflow struct {
	ID    int64
	OrgID int64
	Area  string
	Name  string
	Steps []Step
}

// Step is one ordered approval stage, gated by role and a minimum-amount
// threshold. Steps whose MinAmount exceeds the document amount are skipped.
type Step struct {
	ID         int64
	WorkflowID int64
	Seq        int
	Role       string
	MinAmount  decimal.Decimal
}

// TaskStatus enumerates approval task states.
type TaskStatus string

const (
	TaskPending  TaskStatus = "PENDING"
	TaskApproved TaskStatus = "APPROVED"
	TaskRejected TaskStatus = "REJECTED"
)

// Task tracks one document's progress through a workflow.
type Task struct {
	ID          int64
	OrgID       int64
	WorkflowID  int64
	JournalID   int64
	Status      TaskStatus
	StepIndex   int
	Amount      decimal.Decimal
	InitiatedBy int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Approval is one per-step sign-off (or rejection).
type Approval struct {
	ID         int64
	TaskID     int64
	StepID     int64
	ApproverID int64
	Approved   bool
	Note       string
	At         time.Time
}

var (
	// ErrWorkflowNotConfigured indicates no workflow exists for a required
	// area; fatal until configuration is fixed.
	ErrWorkflowNotConfigured = errors.New("workflow: no workflow configured for area")
	// ErrNoSteps indicates a workflow without steps.
	ErrNoSteps = errors.New("workflow: workflow has no steps")
	// ErrTaskClosed indicates a decision on an already-finalised task.
	ErrTaskClosed = errors.New("workflow: task already finalised")
	// ErrRoleNotAllowed indicates the approver lacks the step's role.
	ErrRoleNotAllowed = errors.New("workflow: approver role not allowed for step")
)
