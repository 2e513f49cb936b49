package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/retailcore/go-order-settlement/internal/apperr"
)

type Store struct{ DB *pgxpool.Pool }

func (s *Store) Get(ctx context.Context, productID string) (CatalogItem, error) {
	var it CatalogItem
	err := s.DB.QueryRow(ctx, `
		SELECT id, name, description, price, category, stock, created_at, updated_at
		FROM products WHERE id=$1`, productID,
	).Scan(&it.ID, &it.Name, &it.Description, &it.Price, &it.Category, &it.Stock, &it.CreatedAt, &it.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return CatalogItem{}, apperr.NotFound("product not found: %s", productID)
	}
	if err != nil {
		return CatalogItem{}, apperr.Transient(err, "get product")
	}
	return it, nil
}

func (s *Store) List(ctx context.Context) ([]CatalogItem, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, name, description, price, category, stock, created_at, updated_at
		FROM products ORDER BY name`)
	if err != nil {
		return nil, apperr.Transient(err, "list products")
	}
	defer rows.Close()

	var out []CatalogItem
	for rows.Next() {
		var it CatalogItem
		if err := rows.Scan(&it.ID, &it.Name, &it.Description, &it.Price, &it.Category, &it.Stock, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, apperr.Transient(err, "scan product")
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Transient(err, "list products")
	}
	return out, nil
}

func (s *Store) Create(ctx context.Context, it CatalogItem) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO products(id, name, description, price, category, stock, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		it.ID, it.Name, it.Description, it.Price, it.Category, it.Stock, it.CreatedAt, it.UpdatedAt)
	if err != nil {
		return apperr.Transient(err, "insert product")
	}
	return nil
}

func (s *Store) Update(ctx context.Context, it CatalogItem) error {
	ct, err := s.DB.Exec(ctx, `
		UPDATE products SET name=$2, description=$3, price=$4, category=$5, stock=$6, updated_at=$7
		WHERE id=$1`,
		it.ID, it.Name, it.Description, it.Price, it.Category, it.Stock, it.UpdatedAt)
	if err != nil {
		return apperr.Transient(err, "update product")
	}
	if ct.RowsAffected() == 0 {
		return apperr.NotFound("product not found: %s", it.ID)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, productID string) error {
	ct, err := s.DB.Exec(ctx, `DELETE FROM products WHERE id=$1`, productID)
	if err != nil {
		return apperr.Transient(err, "delete product")
	}
	if ct.RowsAffected() == 0 {
		return apperr.NotFound("product not found: %s", productID)
	}
	return nil
}

// Application reports the outcome of settling one (order, product) pair.
type Application struct {
	Applied  bool // false when this pair was settled by an earlier delivery
	NewStock int
	Oversold bool
}

// ApplyDecrement settles one (order, product) pair exactly once. The
// settlement_applications insert and the stock write share one transaction:
// the insert is the idempotency guard, the FOR UPDATE lock serializes
// concurrent settlements of the same product.
func (s *Store) ApplyDecrement(ctx context.Context, orderID, productID string, qty int) (Application, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Application{}, apperr.Transient(err, "begin settlement tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, `
		INSERT INTO settlement_applications(order_id, product_id, quantity)
		VALUES ($1,$2,$3)
		ON CONFLICT (order_id, product_id) DO NOTHING`,
		orderID, productID, qty)
	if err != nil {
		return Application{}, apperr.Transient(err, "record settlement")
	}
	if ct.RowsAffected() == 0 {
		// Redelivery of an already-applied pair: report current stock, touch nothing.
		var stock int
		if err := tx.QueryRow(ctx, `SELECT stock FROM products WHERE id=$1`, productID).Scan(&stock); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return Application{}, apperr.NotFound("product not found: %s", productID)
			}
			return Application{}, apperr.Transient(err, "read stock")
		}
		return Application{Applied: false, NewStock: stock}, nil
	}

	var stock int
	err = tx.QueryRow(ctx, `SELECT stock FROM products WHERE id=$1 FOR UPDATE`, productID).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return Application{}, apperr.NotFound("product not found: %s", productID)
	}
	if err != nil {
		return Application{}, apperr.Transient(err, "lock stock")
	}

	newStock, oversold := ClampDecrement(stock, qty)
	if _, err := tx.Exec(ctx, `UPDATE products SET stock=$2, updated_at=now() WHERE id=$1`, productID, newStock); err != nil {
		return Application{}, apperr.Transient(err, "write stock")
	}

	if err := tx.Commit(ctx); err != nil {
		return Application{}, apperr.Transient(err, "commit settlement")
	}
	return Application{Applied: true, NewStock: newStock, Oversold: oversold}, nil
}
