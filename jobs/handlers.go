package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keystone-erp/keystone-erp/internal/accounting/journals"
	"github.com/keystone-erp/keystone-erp/internal/accounting/posting"
	acctshared "github.com/keystone-erp/keystone-erp/internal/accounting/shared"
	"github.com/keystone-erp/keystone-erp/internal/audit"
	jobmetrics "github.com/keystone-erp/keystone-erp/internal/jobs"
	"github.com/keystone-erp/keystone-erp/internal/shared"
)

// AuditSealHandler seals pending audit entries into the hash chain.
type AuditSealHandler struct {
	sealer  *audit.Sealer
	metrics *jobmetrics.Metrics
	logger  *slog.Logger
}

func NewAuditSealHandler(sealer *audit.Sealer, metrics *jobmetrics.Metrics, logger *slog.Logger) *AuditSealHandler {
	return &AuditSealHandler{sealer: sealer, metrics: metrics, logger: logger}
}

func (h *AuditSealHandler) Handle(ctx context.Context, t *asynq.Task) error {
	var payload AuditSealPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	track := h.metrics.Track("audit_seal")
	sealed, err := h.sealer.SealBatch(ctx, payload.Limit)
	if err != nil {
		h.logger.Error("audit seal failed", slog.Int("sealed", sealed), slog.String("error", err.Error()))
		return track.End(err)
	}
	h.metrics.AddSealed(sealed)
	if sealed > 0 {
		h.logger.Info("audit entries sealed", slog.Int("sealed", sealed))
	}
	return track.End(nil)
}

// AuditVerifyHandler re-walks the sealed chain. A broken chain is a paging
// event, not a retryable failure.
type AuditVerifyHandler struct {
	sealer  *audit.Sealer
	metrics *jobmetrics.Metrics
	logger  *slog.Logger
}

func NewAuditVerifyHandler(sealer *audit.Sealer, metrics *jobmetrics.Metrics, logger *slog.Logger) *AuditVerifyHandler {
	return &AuditVerifyHandler{sealer: sealer, metrics: metrics, logger: logger}
}

func (h *AuditVerifyHandler) Handle(ctx context.Context, _ *asynq.Task) error {
	track := h.metrics.Track("audit_verify")
	err := h.sealer.Verify(ctx)
	if err != nil {
		h.logger.Error("audit chain verification failed", slog.String("error", err.Error()))
		if errors.Is(err, audit.ErrChainBroken) {
			_ = track.End(err)
			return fmt.Errorf("%w: %w", asynq.SkipRetry, err)
		}
	}
	return track.End(err)
}

// BatchPostHandler posts each named journal in its own transaction. One bad
// journal never blocks the rest of the batch; failures are logged with their
// cause and left for the operator.
type BatchPostHandler struct {
	journals journals.Repository
	posting  *posting.Service
	metrics  *jobmetrics.Metrics
	logger   *slog.Logger
}

func NewBatchPostHandler(repo journals.Repository, posting *posting.Service, metrics *jobmetrics.Metrics, logger *slog.Logger) *BatchPostHandler {
	return &BatchPostHandler{journals: repo, posting: posting, metrics: metrics, logger: logger}
}

func (h *BatchPostHandler) Handle(ctx context.Context, t *asynq.Task) error {
	var payload BatchPostPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	track := h.metrics.Track("batch_post")
	actor := shared.Actor{UserID: payload.ActorID, OrgID: payload.OrgID, Roles: payload.Roles}
	posted, skipped, failed := 0, 0, 0
	for _, id := range payload.JournalIDs {
		journal, err := h.journals.GetJournal(ctx, id)
		if err != nil {
			failed++
			h.logger.Error("batch post: load failed", slog.Int64("journal_id", id), slog.String("error", err.Error()))
			continue
		}
		if _, err := h.posting.Post(ctx, actor, journal); err != nil {
			if errors.Is(err, acctshared.ErrAlreadyPosted) {
				skipped++
				continue
			}
			failed++
			h.logger.Error("batch post: posting failed", slog.Int64("journal_id", id), slog.String("error", err.Error()))
			continue
		}
		posted++
	}
	h.logger.Info("batch post finished",
		slog.Int64("org_id", payload.OrgID),
		slog.Int("posted", posted),
		slog.Int("skipped", skipped),
		slog.Int("failed", failed))
	if failed > 0 {
		// Failures are per-journal and already logged; retrying the batch
		// would re-post nothing thanks to idempotent posting, so report
		// without rescheduling.
		_ = track.End(fmt.Errorf("batch post: %d of %d journals failed", failed, len(payload.JournalIDs)))
		return nil
	}
	return track.End(nil)
}

// LedgerIntegrityHandler sweeps the general ledger for periods whose debits
// and credits no longer agree.
type LedgerIntegrityHandler struct {
	db      *pgxpool.Pool
	metrics *jobmetrics.Metrics
	logger  *slog.Logger
}

func NewLedgerIntegrityHandler(db *pgxpool.Pool, metrics *jobmetrics.Metrics, logger *slog.Logger) *LedgerIntegrityHandler {
	return &LedgerIntegrityHandler{db: db, metrics: metrics, logger: logger}
}

func (h *LedgerIntegrityHandler) Handle(ctx context.Context, t *asynq.Task) error {
	var payload LedgerIntegrityPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	track := h.metrics.Track("ledger_integrity")
	query := `SELECT org_id, period_id, SUM(debit) AS total_debit, SUM(credit) AS total_credit
FROM general_ledger GROUP BY org_id, period_id HAVING SUM(debit) <> SUM(credit)`
	args := []any{}
	if payload.OrgID > 0 {
		query = `SELECT org_id, period_id, SUM(debit) AS total_debit, SUM(credit) AS total_credit
FROM general_ledger WHERE org_id=$1 GROUP BY org_id, period_id HAVING SUM(debit) <> SUM(credit)`
		args = append(args, payload.OrgID)
	}
	rows, err := h.db.Query(ctx, query, args...)
	if err != nil {
		return track.End(err)
	}
	defer rows.Close()
	imbalanced := 0
	for rows.Next() {
		var orgID, periodID int64
		var debit, credit string
		if err := rows.Scan(&orgID, &periodID, &debit, &credit); err != nil {
			return track.End(err)
		}
		imbalanced++
		h.logger.Error("ledger imbalance detected",
			slog.Int64("org_id", orgID),
			slog.Int64("period_id", periodID),
			slog.String("total_debit", debit),
			slog.String("total_credit", credit))
	}
	if err := rows.Err(); err != nil {
		return track.End(err)
	}
	if imbalanced > 0 {
		_ = track.End(fmt.Errorf("ledger integrity: %d imbalanced periods", imbalanced))
		return fmt.Errorf("%w: ledger integrity: %d imbalanced periods", asynq.SkipRetry, imbalanced)
	}
	return track.End(nil)
}
