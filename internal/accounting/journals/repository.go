package journals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/keystone-erp/keystone-erp/internal/accounting/accounts"
	"github.com/keystone-erp/keystone-erp/internal/accounting/periods"
	"github.com/keystone-erp/keystone-erp/internal/accounting/shared"
)

// Repository encapsulates DB operations for journals.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetJournal(ctx context.Context, id int64) (Journal, error)
	GetLines(ctx context.Context, journalID int64) ([]Line, error)
	GetType(ctx context.Context, typeID int64) (JournalType, error)
	List(ctx context.Context, orgID int64) ([]Journal, error)
}

// StatusUpdate carries the fields a status transition is allowed to touch.
// Only non-nil members are written, minimising write contention.
type StatusUpdate struct {
	Number       *string
	ApprovedBy   *int64
	ApprovedAt   *time.Time
	PostedBy     *int64
	PostedAt     *time.Time
	IsLocked     *bool
	ReversedByID *int64
	Meta         map[string]any
}

// TxRepository exposes methods available within a posting transaction.
type TxRepository interface {
	InsertJournal(ctx context.Context, j Journal) (Journal, error)
	InsertLines(ctx context.Context, journalID int64, lines []LineInput) ([]Line, error)
	GetJournalForUpdate(ctx context.Context, id int64) (Journal, error)
	GetLines(ctx context.Context, journalID int64) ([]Line, error)
	GetType(ctx context.Context, typeID int64) (JournalType, error)
	NextNumber(ctx context.Context, typeID int64) (string, error)
	LedgerExists(ctx context.Context, journalID int64) (bool, error)
	InsertLedgerEntries(ctx context.Context, entries []LedgerEntry) error
	UpdateStatus(ctx context.Context, id, version int64, status Status, set StatusUpdate) error
	AddAccountBalance(ctx context.Context, accountID int64, delta decimal.Decimal) error
	GetAccount(ctx context.Context, accountID int64) (accounts.Account, error)
	GetPeriodForUpdate(ctx context.Context, periodID int64) (periods.Period, error)
	GetNextOpenPeriodAfter(ctx context.Context, orgID int64, date time.Time) (periods.Period, error)
	CountApprovals(ctx context.Context, journalID int64) (int, error)
	DeleteDraft(ctx context.Context, id int64) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const journalColumns = `id, org_id, type_id, number, period_id, date, currency, exchange_rate, status,
total_debit, total_credit, version, is_locked, reference, memo, approved_by, approved_at,
posted_by, posted_at, reversed_by_id, meta, created_at, updated_at`

func scanJournal(row pgx.Row) (Journal, error) {
	var j Journal
	var meta []byte
	err := row.Scan(&j.ID, &j.OrgID, &j.TypeID, &j.Number, &j.PeriodID, &j.Date, &j.Currency, &j.ExchangeRate, &j.Status,
		&j.TotalDebit, &j.TotalCredit, &j.Version, &j.IsLocked, &j.Reference, &j.Memo, &j.ApprovedBy, &j.ApprovedAt,
		&j.PostedBy, &j.PostedAt, &j.ReversedByID, &meta, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Journal{}, shared.ErrJournalNotFound
		}
		return Journal{}, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &j.Meta); err != nil {
			return Journal{}, fmt.Errorf("accounting: decode meta: %w", err)
		}
	}
	return j, nil
}

func (r *repository) GetJournal(ctx context.Context, id int64) (Journal, error) {
	return scanJournal(r.db.QueryRow(ctx, `SELECT `+journalColumns+` FROM journals WHERE id=$1`, id))
}

func (r *repository) GetLines(ctx context.Context, journalID int64) ([]Line, error) {
	rows, err := r.db.Query(ctx, lineSelect+` WHERE journal_id=$1 ORDER BY line_no ASC`, journalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLines(rows)
}

func (r *repository) GetType(ctx context.Context, typeID int64) (JournalType, error) {
	return scanType(r.db.QueryRow(ctx, typeSelect+` WHERE id=$1`, typeID))
}

func (r *repository) List(ctx context.Context, orgID int64) ([]Journal, error) {
	rows, err := r.db.Query(ctx, `SELECT `+journalColumns+` FROM journals WHERE org_id=$1 ORDER BY id DESC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Journal
	for rows.Next() {
		j, err := scanJournal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	if err := fn(ctx, NewTxRepository(tx)); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an open transaction. Exposed so the voucher
// orchestrator can run journal and inventory writes in one transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

func (r *txRepository) InsertJournal(ctx context.Context, j Journal) (Journal, error) {
	meta, err := json.Marshal(j.Meta)
	if err != nil {
		return Journal{}, fmt.Errorf("accounting: encode meta: %w", err)
	}
	row := r.tx.QueryRow(ctx, `INSERT INTO journals
(org_id, type_id, number, period_id, date, currency, exchange_rate, status, total_debit, total_credit, version, is_locked, reference, memo, meta)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,1,false,$11,$12,$13)
RETURNING id, version, created_at, updated_at`,
		j.OrgID, j.TypeID, j.Number, j.PeriodID, j.Date, j.Currency, j.ExchangeRate, j.Status,
		j.TotalDebit, j.TotalCredit, j.Reference, j.Memo, meta)
	if err := row.Scan(&j.ID, &j.Version, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return Journal{}, err
	}
	return j, nil
}

const lineSelect = `SELECT id, journal_id, line_no, account_id, debit, credit, func_debit, func_credit,
department_id, project_id, cost_center_id, tax_code_id, attrs, archived, created_at, updated_at FROM journal_lines`

func collectLines(rows pgx.Rows) ([]Line, error) {
	var lines []Line
	for rows.Next() {
		var line Line
		var attrs []byte
		if err := rows.Scan(&line.ID, &line.JournalID, &line.LineNo, &line.AccountID, &line.Debit, &line.Credit,
			&line.FuncDebit, &line.FuncCredit, &line.DepartmentID, &line.ProjectID, &line.CostCenterID,
			&line.TaxCodeID, &attrs, &line.Archived, &line.CreatedAt, &line.UpdatedAt); err != nil {
			return nil, err
		}
		if len(attrs) > 0 {
			if err := json.Unmarshal(attrs, &line.Attrs); err != nil {
				return nil, fmt.Errorf("accounting: decode line attrs: %w", err)
			}
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (r *txRepository) InsertLines(ctx context.Context, journalID int64, lines []LineInput) ([]Line, error) {
	out := make([]Line, 0, len(lines))
	for idx, line := range lines {
		attrs, err := json.Marshal(line.Attrs)
		if err != nil {
			return nil, fmt.Errorf("accounting: encode line attrs: %w", err)
		}
		// Functional-currency amounts convert at the header exchange rate.
		var inserted Line
		err = r.tx.QueryRow(ctx, `INSERT INTO journal_lines
(journal_id, line_no, account_id, debit, credit, func_debit, func_credit, department_id, project_id, cost_center_id, tax_code_id, attrs)
SELECT j.id, $2, $3, $4, $5, $4 * j.exchange_rate, $5 * j.exchange_rate, $6, $7, $8, $9, $10
FROM journals j WHERE j.id = $1
RETURNING id, func_debit, func_credit, created_at, updated_at`,
			journalID, idx+1, line.AccountID, line.Debit, line.Credit,
			line.DepartmentID, line.ProjectID, line.CostCenterID, line.TaxCodeID, attrs).
			Scan(&inserted.ID, &inserted.FuncDebit, &inserted.FuncCredit, &inserted.CreatedAt, &inserted.UpdatedAt)
		if err != nil {
			return nil, err
		}
		inserted.JournalID = journalID
		inserted.LineNo = idx + 1
		inserted.AccountID = line.AccountID
		inserted.Debit = line.Debit
		inserted.Credit = line.Credit
		inserted.DepartmentID = line.DepartmentID
		inserted.ProjectID = line.ProjectID
		inserted.CostCenterID = line.CostCenterID
		inserted.TaxCodeID = line.TaxCodeID
		inserted.Attrs = line.Attrs
		out = append(out, inserted)
	}
	return out, nil
}

func (r *txRepository) GetJournalForUpdate(ctx context.Context, id int64) (Journal, error) {
	return scanJournal(r.tx.QueryRow(ctx, `SELECT `+journalColumns+` FROM journals WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) GetLines(ctx context.Context, journalID int64) ([]Line, error) {
	rows, err := r.tx.Query(ctx, lineSelect+` WHERE journal_id=$1 ORDER BY line_no ASC`, journalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLines(rows)
}

const typeSelect = `SELECT id, org_id, code, name, requires_approval, number_prefix, next_number FROM journal_types`

func scanType(row pgx.Row) (JournalType, error) {
	var t JournalType
	err := row.Scan(&t.ID, &t.OrgID, &t.Code, &t.Name, &t.RequiresApproval, &t.NumberPrefix, &t.NextNumber)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalType{}, shared.ErrJournalNotFound
		}
		return JournalType{}, err
	}
	return t, nil
}

func (r *txRepository) GetType(ctx context.Context, typeID int64) (JournalType, error) {
	return scanType(r.tx.QueryRow(ctx, typeSelect+` WHERE id=$1`, typeID))
}

// NextNumber claims the next value from the journal type's numbering sequence
// under a row lock.
func (r *txRepository) NextNumber(ctx context.Context, typeID int64) (string, error) {
	var prefix string
	var next int64
	err := r.tx.QueryRow(ctx, `UPDATE journal_types SET next_number = next_number + 1
WHERE id=$1 RETURNING number_prefix, next_number - 1`, typeID).Scan(&prefix, &next)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", shared.ErrJournalNotFound
		}
		return "", err
	}
	return fmt.Sprintf("%s-%06d", prefix, next), nil
}

func (r *txRepository) LedgerExists(ctx context.Context, journalID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM general_ledger WHERE journal_id=$1)`, journalID).Scan(&exists)
	return exists, err
}

func (r *txRepository) InsertLedgerEntries(ctx context.Context, entries []LedgerEntry) error {
	for _, e := range entries {
		if _, err := r.tx.Exec(ctx, `INSERT INTO general_ledger
(org_id, account_id, journal_id, journal_line_id, period_id, date, debit, credit)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			e.OrgID, e.AccountID, e.JournalID, e.LineID, e.PeriodID, e.Date, e.Debit, e.Credit); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) UpdateStatus(ctx context.Context, id, version int64, status Status, set StatusUpdate) error {
	args := []any{id, version, status}
	query := `UPDATE journals SET status=$3, version=version+1, updated_at=NOW()`
	idx := 4
	appendArg := func(clause string, value any) {
		query += fmt.Sprintf(", %s=$%d", clause, idx)
		args = append(args, value)
		idx++
	}
	if set.Number != nil {
		appendArg("number", *set.Number)
	}
	if set.ApprovedBy != nil {
		appendArg("approved_by", *set.ApprovedBy)
	}
	if set.ApprovedAt != nil {
		appendArg("approved_at", *set.ApprovedAt)
	}
	if set.PostedBy != nil {
		appendArg("posted_by", *set.PostedBy)
	}
	if set.PostedAt != nil {
		appendArg("posted_at", *set.PostedAt)
	}
	if set.IsLocked != nil {
		appendArg("is_locked", *set.IsLocked)
	}
	if set.ReversedByID != nil {
		appendArg("reversed_by_id", *set.ReversedByID)
	}
	if set.Meta != nil {
		meta, err := json.Marshal(set.Meta)
		if err != nil {
			return fmt.Errorf("accounting: encode meta: %w", err)
		}
		appendArg("meta", meta)
	}
	query += ` WHERE id=$1 AND version=$2`
	cmd, err := r.tx.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrVersionConflict
	}
	return nil
}

func (r *txRepository) AddAccountBalance(ctx context.Context, accountID int64, delta decimal.Decimal) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE chart_of_accounts
SET balance = balance + $2, rowversion = rowversion + 1, updated_at=NOW() WHERE id=$1`, accountID, delta)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("accounting: account %d not found", accountID)
	}
	return nil
}

func (r *txRepository) GetAccount(ctx context.Context, accountID int64) (accounts.Account, error) {
	var a accounts.Account
	err := r.tx.QueryRow(ctx, `SELECT id, org_id, code, name, nature, parent_id, balance, rowversion, is_active, created_at, updated_at
FROM chart_of_accounts WHERE id=$1`, accountID).
		Scan(&a.ID, &a.OrgID, &a.Code, &a.Name, &a.Nature, &a.ParentID, &a.Balance, &a.RowVersion, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return accounts.Account{}, fmt.Errorf("accounting: account %d not found", accountID)
		}
		return accounts.Account{}, err
	}
	return a, nil
}

func (r *txRepository) GetPeriodForUpdate(ctx context.Context, periodID int64) (periods.Period, error) {
	var p periods.Period
	err := r.tx.QueryRow(ctx, `SELECT id, org_id, code, start_date, end_date, status, closed_at, locked_by, created_at, updated_at
FROM fiscal_periods WHERE id=$1 FOR UPDATE`, periodID).
		Scan(&p.ID, &p.OrgID, &p.Code, &p.StartDate, &p.EndDate, &p.Status, &p.ClosedAt, &p.LockedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return periods.Period{}, shared.ErrInvalidPeriod
		}
		return periods.Period{}, err
	}
	return p, nil
}

func (r *txRepository) GetNextOpenPeriodAfter(ctx context.Context, orgID int64, date time.Time) (periods.Period, error) {
	var p periods.Period
	err := r.tx.QueryRow(ctx, `SELECT id, org_id, code, start_date, end_date, status, closed_at, locked_by, created_at, updated_at
FROM fiscal_periods WHERE org_id=$1 AND status='OPEN' AND start_date >= $2 ORDER BY start_date ASC LIMIT 1`, orgID, date).
		Scan(&p.ID, &p.OrgID, &p.Code, &p.StartDate, &p.EndDate, &p.Status, &p.ClosedAt, &p.LockedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return periods.Period{}, shared.ErrInvalidPeriod
		}
		return periods.Period{}, err
	}
	return p, nil
}

func (r *txRepository) CountApprovals(ctx context.Context, journalID int64) (int, error) {
	var count int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM approvals a
JOIN approval_tasks t ON t.id = a.task_id WHERE t.journal_id=$1 AND a.approved`, journalID).Scan(&count)
	return count, err
}

func (r *txRepository) DeleteDraft(ctx context.Context, id int64) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM journals WHERE id=$1 AND status=$2`, id, StatusDraft)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrJournalLocked
	}
	return nil
}
