package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists and seals audit entries.
type Repository interface {
	Insert(ctx context.Context, entry Entry) (int64, error)
	ListUnsealed(ctx context.Context, limit int) ([]Entry, error)
	LastSealed(ctx context.Context) (*Entry, error)
	Seal(ctx context.Context, id int64, contentHash string, prevID *int64) error
	ListSealed(ctx context.Context) ([]Entry, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const entryColumns = `id, org_id, actor_id, action, entity, entity_id, changes, meta, content_hash, previous_hash_id, is_immutable, occurred_at`

func (r *repository) Insert(ctx context.Context, entry Entry) (int64, error) {
	changes, err := json.Marshal(entry.Changes)
	if err != nil {
		return 0, fmt.Errorf("audit: encode changes: %w", err)
	}
	meta, err := json.Marshal(entry.Meta)
	if err != nil {
		return 0, fmt.Errorf("audit: encode meta: %w", err)
	}
	var id int64
	err = r.db.QueryRow(ctx, `INSERT INTO audit_logs (org_id, actor_id, action, entity, entity_id, changes, meta, occurred_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,COALESCE($8, NOW())) RETURNING id`,
		entry.OrgID, entry.ActorID, entry.Action, entry.Entity, entry.EntityID, changes, meta, entry.At).Scan(&id)
	return id, err
}

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	var changes, meta []byte
	if err := row.Scan(&e.ID, &e.OrgID, &e.ActorID, &e.Action, &e.Entity, &e.EntityID, &changes, &meta,
		&e.ContentHash, &e.PrevID, &e.Immutable, &e.At); err != nil {
		return Entry{}, err
	}
	if len(changes) > 0 {
		if err := json.Unmarshal(changes, &e.Changes); err != nil {
			return Entry{}, fmt.Errorf("audit: decode changes: %w", err)
		}
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &e.Meta); err != nil {
			return Entry{}, fmt.Errorf("audit: decode meta: %w", err)
		}
	}
	return e, nil
}

func (r *repository) collect(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *repository) ListUnsealed(ctx context.Context, limit int) ([]Entry, error) {
	return r.collect(ctx, `SELECT `+entryColumns+` FROM audit_logs WHERE NOT is_immutable ORDER BY id ASC LIMIT $1`, limit)
}

func (r *repository) LastSealed(ctx context.Context) (*Entry, error) {
	e, err := scanEntry(r.db.QueryRow(ctx, `SELECT `+entryColumns+` FROM audit_logs WHERE is_immutable ORDER BY id DESC LIMIT 1`))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

func (r *repository) Seal(ctx context.Context, id int64, contentHash string, prevID *int64) error {
	cmd, err := r.db.Exec(ctx, `UPDATE audit_logs SET content_hash=$2, previous_hash_id=$3, is_immutable=true
WHERE id=$1 AND NOT is_immutable`, id, contentHash, prevID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrSealedImmutable
	}
	return nil
}

func (r *repository) ListSealed(ctx context.Context) ([]Entry, error) {
	return r.collect(ctx, `SELECT `+entryColumns+` FROM audit_logs WHERE is_immutable ORDER BY id ASC`)
}
