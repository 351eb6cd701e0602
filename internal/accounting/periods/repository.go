package periods

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keystone-erp/keystone-erp/internal/shared"
)

// Repository provides read access to fiscal periods outside posting
// transactions. Posting-time lookups go through the journals TxRepository so
// they share the row lock with the GL write.
type Repository interface {
	Get(ctx context.Context, id int64) (Period, error)
	FindByDate(ctx context.Context, orgID int64, date time.Time) (Period, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const periodColumns = `id, org_id, code, start_date, end_date, status, closed_at, locked_by, created_at, updated_at`

func (r *repository) Get(ctx context.Context, id int64) (Period, error) {
	var p Period
	err := r.db.QueryRow(ctx, `SELECT `+periodColumns+` FROM fiscal_periods WHERE id=$1`, id).
		Scan(&p.ID, &p.OrgID, &p.Code, &p.StartDate, &p.EndDate, &p.Status, &p.ClosedAt, &p.LockedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, shared.ErrNotFound
		}
		return Period{}, err
	}
	return p, nil
}

func (r *repository) FindByDate(ctx context.Context, orgID int64, date time.Time) (Period, error) {
	var p Period
	err := r.db.QueryRow(ctx, `SELECT `+periodColumns+` FROM fiscal_periods
WHERE org_id=$1 AND start_date <= $2 AND end_date >= $2 ORDER BY start_date ASC LIMIT 1`, orgID, date).
		Scan(&p.ID, &p.OrgID, &p.Code, &p.StartDate, &p.EndDate, &p.Status, &p.ClosedAt, &p.LockedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, shared.ErrNotFound
		}
		return Period{}, err
	}
	return p, nil
}
