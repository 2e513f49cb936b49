package orders

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/retailcore/go-order-settlement/internal/apperr"
)

type Repo struct{ DB *pgxpool.Pool }

// Save persists the order aggregate atomically: the order row and all its
// lines commit together or not at all.
func (r *Repo) Save(ctx context.Context, o Order) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return apperr.Transient(err, "begin order tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders(id, user_id, status, total, created_at, paid_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		o.ID, o.UserID, string(o.Status), o.Total, o.CreatedAt, o.PaidAt)
	if err != nil {
		return apperr.Transient(err, "insert order")
	}

	for _, ln := range o.Lines {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_lines(order_id, product_id, product_name, quantity, price_at_purchase)
			VALUES ($1,$2,$3,$4,$5)`,
			o.ID, ln.ProductID, ln.ProductName, ln.Quantity, ln.PriceAtPurchase)
		if err != nil {
			return apperr.Transient(err, "insert order line")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.Transient(err, "commit order")
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, orderID string) (Order, error) {
	var o Order
	err := r.DB.QueryRow(ctx, `
		SELECT o.id, o.user_id, u.username, o.status, o.total, o.created_at, o.paid_at
		FROM orders o JOIN users u ON u.id = o.user_id
		WHERE o.id=$1`, orderID,
	).Scan(&o.ID, &o.UserID, &o.Username, &o.Status, &o.Total, &o.CreatedAt, &o.PaidAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, apperr.NotFound("order not found: %s", orderID)
	}
	if err != nil {
		return Order{}, apperr.Transient(err, "get order")
	}

	lines, err := r.linesFor(ctx, []string{o.ID})
	if err != nil {
		return Order{}, err
	}
	o.Lines = lines[o.ID]
	return o, nil
}

// MarkPaid flips PENDING -> PAID as one conditional update. The returned bool
// is false when the stored status was no longer PENDING; callers re-read to
// report the current status.
func (r *Repo) MarkPaid(ctx context.Context, orderID string, paidAt time.Time) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET status=$2, paid_at=$3
		WHERE id=$1 AND status=$4`,
		orderID, string(StatusPaid), paidAt, string(StatusPending))
	if err != nil {
		return false, apperr.Transient(err, "mark order paid")
	}
	return ct.RowsAffected() == 1, nil
}

func (r *Repo) FindByUser(ctx context.Context, userID string, pr PageRequest) (Page, error) {
	page := Page{Items: []Order{}, Page: pr.Page, Size: pr.Size}

	if err := r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE user_id=$1`, userID).Scan(&page.Total); err != nil {
		return Page{}, apperr.Transient(err, "count orders")
	}

	rows, err := r.DB.Query(ctx, `
		SELECT o.id, o.user_id, u.username, o.status, o.total, o.created_at, o.paid_at
		FROM orders o JOIN users u ON u.id = o.user_id
		WHERE o.user_id=$1
		ORDER BY o.created_at DESC
		LIMIT $2 OFFSET $3`, userID, pr.Size, pr.Offset())
	if err != nil {
		return Page{}, apperr.Transient(err, "list orders")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.Username, &o.Status, &o.Total, &o.CreatedAt, &o.PaidAt); err != nil {
			return Page{}, apperr.Transient(err, "scan order")
		}
		page.Items = append(page.Items, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return Page{}, apperr.Transient(err, "list orders")
	}

	if len(ids) == 0 {
		return page, nil
	}
	lines, err := r.linesFor(ctx, ids)
	if err != nil {
		return Page{}, err
	}
	for i := range page.Items {
		page.Items[i].Lines = lines[page.Items[i].ID]
	}
	return page, nil
}

func (r *Repo) linesFor(ctx context.Context, orderIDs []string) (map[string][]OrderLine, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT order_id, product_id, product_name, quantity, price_at_purchase
		FROM order_lines WHERE order_id = ANY($1)`, orderIDs)
	if err != nil {
		return nil, apperr.Transient(err, "load order lines")
	}
	defer rows.Close()

	out := make(map[string][]OrderLine, len(orderIDs))
	for rows.Next() {
		var orderID string
		var ln OrderLine
		if err := rows.Scan(&orderID, &ln.ProductID, &ln.ProductName, &ln.Quantity, &ln.PriceAtPurchase); err != nil {
			return nil, apperr.Transient(err, "scan order line")
		}
		out[orderID] = append(out[orderID], ln)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Transient(err, "load order lines")
	}
	return out, nil
}
