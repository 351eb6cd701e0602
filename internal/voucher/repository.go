package voucher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keystone-erp/keystone-erp/internal/accounting/journals"
	"github.com/keystone-erp/keystone-erp/internal/inventory"
	"github.com/keystone-erp/keystone-erp/internal/shared"
)

// Tx groups the per-transaction repositories the orchestrator composes:
// journal, ledger and stock writes all ride one database transaction.
type Tx interface {
	Journals() journals.TxRepository
	Inventory() inventory.TxRepository
}

// TxRunner opens the shared transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(context.Context, Tx) error) error
}

// ProcessRepository persists voucher process records. These live outside the
// main transaction so failed attempts keep their trace.
type ProcessRepository interface {
	Insert(ctx context.Context, p Process) (Process, error)
	Get(ctx context.Context, id uuid.UUID) (Process, error)
	// FindActive returns the newest non-failed process for the idempotency
	// key, or shared.ErrNotFound.
	FindActive(ctx context.Context, orgID int64, key string) (Process, error)
	MarkSucceeded(ctx context.Context, id uuid.UUID, journalID int64) error
	MarkFailed(ctx context.Context, id uuid.UUID, code Code, message string) error
	ListFailed(ctx context.Context, orgID int64, limit int) ([]Process, error)
}

type txRunner struct {
	db *pgxpool.Pool
}

func NewTxRunner(db *pgxpool.Pool) TxRunner {
	return &txRunner{db: db}
}

type compositeTx struct {
	journals  journals.TxRepository
	inventory inventory.TxRepository
}

func (t compositeTx) Journals() journals.TxRepository   { return t.journals }
func (t compositeTx) Inventory() inventory.TxRepository { return t.inventory }

func (r *txRunner) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	composite := compositeTx{
		journals:  journals.NewTxRepository(tx),
		inventory: inventory.NewTxRepository(tx),
	}
	if err := fn(ctx, composite); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

type configRepository struct {
	db *pgxpool.Pool
}

// NewConfigRepository resolves voucher configurations from voucher_configs.
func NewConfigRepository(db *pgxpool.Pool) ConfigSource {
	return &configRepository{db: db}
}

func (r *configRepository) ConfigFor(ctx context.Context, orgID int64, area string) (Config, error) {
	var cfg Config
	var headerSchema, lineSchema []byte
	err := r.db.QueryRow(ctx, `SELECT area, name, journal_type_id, affects_inventory, post_roles, header_schema, line_schema
FROM voucher_configs WHERE org_id=$1 AND area=$2`, orgID, area).
		Scan(&cfg.Area, &cfg.Name, &cfg.JournalTypeID, &cfg.AffectsInventory, &cfg.PostRoles, &headerSchema, &lineSchema)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Config{}, NewError(CodeValidation, "unknown voucher area %q", area)
		}
		return Config{}, err
	}
	if len(headerSchema) > 0 {
		if err := json.Unmarshal(headerSchema, &cfg.HeaderSchema); err != nil {
			return Config{}, fmt.Errorf("voucher: decode header schema: %w", err)
		}
	}
	if len(lineSchema) > 0 {
		if err := json.Unmarshal(lineSchema, &cfg.LineSchema); err != nil {
			return Config{}, fmt.Errorf("voucher: decode line schema: %w", err)
		}
	}
	return cfg, nil
}

type processRepository struct {
	db *pgxpool.Pool
}

func NewProcessRepository(db *pgxpool.Pool) ProcessRepository {
	return &processRepository{db: db}
}

const processColumns = `id, org_id, area, idempotency_key, commit_type, status, journal_id,
snapshot, failure_code, failure_message, initiated_by, created_at, updated_at`

func scanProcess(row pgx.Row) (Process, error) {
	var p Process
	var snapshot []byte
	err := row.Scan(&p.ID, &p.OrgID, &p.Area, &p.IdempotencyKey, &p.Commit, &p.Status, &p.JournalID,
		&snapshot, &p.FailureCode, &p.FailureMessage, &p.InitiatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Process{}, shared.ErrNotFound
		}
		return Process{}, err
	}
	if len(snapshot) > 0 {
		if err := json.Unmarshal(snapshot, &p.Snapshot); err != nil {
			return Process{}, fmt.Errorf("voucher: decode snapshot: %w", err)
		}
	}
	return p, nil
}

func (r *processRepository) Insert(ctx context.Context, p Process) (Process, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	snapshot, err := json.Marshal(p.Snapshot)
	if err != nil {
		return Process{}, fmt.Errorf("voucher: encode snapshot: %w", err)
	}
	err = r.db.QueryRow(ctx, `INSERT INTO voucher_processes
(id, org_id, area, idempotency_key, commit_type, status, snapshot, initiated_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING created_at, updated_at`,
		p.ID, p.OrgID, p.Area, p.IdempotencyKey, p.Commit, p.Status, snapshot, p.InitiatedBy).
		Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		// Two concurrent requests with one idempotency key race past
		// FindActive; the partial unique index catches the loser here.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Process{}, NewError(CodeConflict, "request %s is already in flight", p.IdempotencyKey)
		}
		return Process{}, err
	}
	return p, nil
}

func (r *processRepository) Get(ctx context.Context, id uuid.UUID) (Process, error) {
	return scanProcess(r.db.QueryRow(ctx, `SELECT `+processColumns+` FROM voucher_processes WHERE id=$1`, id))
}

func (r *processRepository) FindActive(ctx context.Context, orgID int64, key string) (Process, error) {
	return scanProcess(r.db.QueryRow(ctx, `SELECT `+processColumns+` FROM voucher_processes
WHERE org_id=$1 AND idempotency_key=$2 AND status <> $3 ORDER BY created_at DESC LIMIT 1`,
		orgID, key, ProcessFailed))
}

func (r *processRepository) MarkSucceeded(ctx context.Context, id uuid.UUID, journalID int64) error {
	cmd, err := r.db.Exec(ctx, `UPDATE voucher_processes
SET status=$2, journal_id=$3, updated_at=NOW() WHERE id=$1`, id, ProcessSucceeded, journalID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// MarkFailed nulls journal_id: the journal it pointed at was rolled back, and
// a dangling reference is worse than none. The snapshot stays for diagnosis.
func (r *processRepository) MarkFailed(ctx context.Context, id uuid.UUID, code Code, message string) error {
	cmd, err := r.db.Exec(ctx, `UPDATE voucher_processes
SET status=$2, journal_id=NULL, failure_code=$3, failure_message=$4, updated_at=NOW() WHERE id=$1`,
		id, ProcessFailed, code, message)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *processRepository) ListFailed(ctx context.Context, orgID int64, limit int) ([]Process, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `SELECT `+processColumns+` FROM voucher_processes
WHERE org_id=$1 AND status=$2 ORDER BY created_at DESC LIMIT $3`, orgID, ProcessFailed, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Process
	for rows.Next() {
		p, err := scanProcess(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
