package accounts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keystone-erp/keystone-erp/internal/shared"
)

// Repository encapsulates DB operations for the chart of accounts.
type Repository interface {
	List(ctx context.Context, orgID int64) ([]Account, error)
	Get(ctx context.Context, id int64) (Account, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) List(ctx context.Context, orgID int64) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT id, org_id, code, name, nature, parent_id, balance, rowversion, is_active, created_at, updated_at
FROM chart_of_accounts WHERE org_id=$1 ORDER BY code ASC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.OrgID, &a.Code, &a.Name, &a.Nature, &a.ParentID, &a.Balance, &a.RowVersion, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Account, error) {
	var a Account
	err := r.db.QueryRow(ctx, `SELECT id, org_id, code, name, nature, parent_id, balance, rowversion, is_active, created_at, updated_at
FROM chart_of_accounts WHERE id=$1`, id).
		Scan(&a.ID, &a.OrgID, &a.Code, &a.Name, &a.Nature, &a.ParentID, &a.Balance, &a.RowVersion, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.ErrNotFound
		}
		return Account{}, err
	}
	return a, nil
}
