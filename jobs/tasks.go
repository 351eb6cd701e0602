package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueCritical carries integrity-sensitive jobs.
	QueueCritical = "critical"

	// TaskAuditSeal seals unsealed audit entries into the hash chain.
	TaskAuditSeal = "audit:seal"
	// TaskAuditVerify re-walks the sealed chain and recomputes every hash.
	TaskAuditVerify = "audit:verify"
	// TaskBatchPost posts a set of approved journals, continuing past
	// individual failures.
	TaskBatchPost = "journal:batch_post"
	// TaskLedgerIntegrity sweeps the general ledger for per-period imbalances.
	TaskLedgerIntegrity = "gl:integrity"
)

// AuditSealPayload bounds one sealing run.
type AuditSealPayload struct {
	Limit int `json:"limit"`
}

// NewAuditSealTask constructs an Asynq task.
func NewAuditSealTask(payload AuditSealPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditSeal, data), nil
}

// NewAuditVerifyTask constructs an Asynq task.
func NewAuditVerifyTask() *asynq.Task {
	return asynq.NewTask(TaskAuditVerify, nil)
}

// BatchPostPayload names the journals to post and the actor posting them.
type BatchPostPayload struct {
	OrgID      int64    `json:"org_id"`
	ActorID    int64    `json:"actor_id"`
	Roles      []string `json:"roles"`
	JournalIDs []int64  `json:"journal_ids"`
}

// NewBatchPostTask constructs an Asynq task.
func NewBatchPostTask(payload BatchPostPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBatchPost, data), nil
}

// LedgerIntegrityPayload optionally scopes the sweep to one organization.
type LedgerIntegrityPayload struct {
	OrgID int64 `json:"org_id"`
}

// NewLedgerIntegrityTask constructs an Asynq task.
func NewLedgerIntegrityTask(payload LedgerIntegrityPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, data), nil
}
