package inventory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetItem(ctx context.Context, orgID, productID, warehouseID int64) (Item, error)
	ListMovements(ctx context.Context, orgID, productID, warehouseID int64, limit int) ([]Movement, error)
}

// TxRepository exposes the operations available within a stock transaction.
type TxRepository interface {
	GetProduct(ctx context.Context, productID int64) (Product, error)
	GetItemForUpdate(ctx context.Context, orgID, productID, warehouseID int64) (Item, error)
	UpsertItem(ctx context.Context, item Item) error
	InsertLayer(ctx context.Context, layer Layer) (int64, error)
	GetLayersForUpdate(ctx context.Context, orgID, productID, warehouseID int64, newestFirst bool) ([]Layer, error)
	UpdateLayerQty(ctx context.Context, layerID int64, qty decimal.Decimal) error
	InsertMovement(ctx context.Context, m Movement) (int64, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) RepositoryPort {
	return &repository{db: db}
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

func (r *repository) GetItem(ctx context.Context, orgID, productID, warehouseID int64) (Item, error) {
	var item Item
	err := r.db.QueryRow(ctx, `SELECT org_id, product_id, warehouse_id, qty_on_hand, unit_cost, updated_at
FROM inventory_items WHERE org_id=$1 AND product_id=$2 AND warehouse_id=$3`, orgID, productID, warehouseID).
		Scan(&item.OrgID, &item.ProductID, &item.WarehouseID, &item.Qty, &item.UnitCost, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, err
	}
	return item, nil
}

func (r *repository) ListMovements(ctx context.Context, orgID, productID, warehouseID int64, limit int) ([]Movement, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `SELECT id, org_id, product_id, warehouse_id, type, qty, unit_cost, total_cost, ref_module, ref_id, note, actor_id, posted_at
FROM stock_ledger WHERE org_id=$1 AND product_id=$2 AND warehouse_id=$3 ORDER BY id DESC LIMIT $4`,
		orgID, productID, warehouseID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.OrgID, &m.ProductID, &m.WarehouseID, &m.Type, &m.Qty, &m.UnitCost, &m.TotalCost,
			&m.RefModule, &m.RefID, &m.Note, &m.ActorID, &m.PostedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an open transaction so stock writes can share the
// voucher orchestrator's atomic block.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

func (r *txRepository) GetProduct(ctx context.Context, productID int64) (Product, error) {
	var p Product
	err := r.tx.QueryRow(ctx, `SELECT id, org_id, sku, name, costing_method, standard_cost,
COALESCE(uom_id, 0), COALESCE(inventory_account_id, 0), COALESCE(cogs_account_id, 0)
FROM products WHERE id=$1`, productID).
		Scan(&p.ID, &p.OrgID, &p.SKU, &p.Name, &p.Method, &p.StandardCost, &p.UnitOfMeasureID, &p.InventoryAccountID, &p.COGSAccountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, err
	}
	return p, nil
}

func (r *txRepository) GetItemForUpdate(ctx context.Context, orgID, productID, warehouseID int64) (Item, error) {
	var item Item
	err := r.tx.QueryRow(ctx, `SELECT org_id, product_id, warehouse_id, qty_on_hand, unit_cost, updated_at
FROM inventory_items WHERE org_id=$1 AND product_id=$2 AND warehouse_id=$3 FOR UPDATE`, orgID, productID, warehouseID).
		Scan(&item.OrgID, &item.ProductID, &item.WarehouseID, &item.Qty, &item.UnitCost, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, err
	}
	return item, nil
}

func (r *txRepository) UpsertItem(ctx context.Context, item Item) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO inventory_items (org_id, product_id, warehouse_id, qty_on_hand, unit_cost, updated_at)
VALUES ($1,$2,$3,$4,$5,NOW())
ON CONFLICT (org_id, product_id, warehouse_id)
DO UPDATE SET qty_on_hand=EXCLUDED.qty_on_hand, unit_cost=EXCLUDED.unit_cost, updated_at=NOW()`,
		item.OrgID, item.ProductID, item.WarehouseID, item.Qty, item.UnitCost)
	return err
}

func (r *txRepository) InsertLayer(ctx context.Context, layer Layer) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO cost_layers (org_id, product_id, warehouse_id, qty_available, unit_cost, created_at)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		layer.OrgID, layer.ProductID, layer.WarehouseID, layer.QtyAvailable, layer.UnitCost, layer.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepository) GetLayersForUpdate(ctx context.Context, orgID, productID, warehouseID int64, newestFirst bool) ([]Layer, error) {
	order := "ASC"
	if newestFirst {
		order = "DESC"
	}
	rows, err := r.tx.Query(ctx, `SELECT id, org_id, product_id, warehouse_id, qty_available, unit_cost, created_at
FROM cost_layers WHERE org_id=$1 AND product_id=$2 AND warehouse_id=$3 AND qty_available > 0
ORDER BY created_at `+order+`, id `+order+` FOR UPDATE`, orgID, productID, warehouseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Layer
	for rows.Next() {
		var l Layer
		if err := rows.Scan(&l.ID, &l.OrgID, &l.ProductID, &l.WarehouseID, &l.QtyAvailable, &l.UnitCost, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *txRepository) UpdateLayerQty(ctx context.Context, layerID int64, qty decimal.Decimal) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE cost_layers SET qty_available=$2 WHERE id=$1`, layerID, qty)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return errors.New("inventory: cost layer not found")
	}
	return nil
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_ledger (org_id, product_id, warehouse_id, type, qty, unit_cost, total_cost, ref_module, ref_id, note, actor_id, posted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING id`,
		m.OrgID, m.ProductID, m.WarehouseID, m.Type, m.Qty, m.UnitCost, m.TotalCost, m.RefModule, m.RefID, m.Note, m.ActorID, m.PostedAt).Scan(&id)
	return id, err
}
