package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo is the Postgres Ledger.
type Repo struct{ DB *pgxpool.Pool }

const orderColumns = `id, order_number, owner_id, total_price, delivery_address, delivery_fee,
	notes, operator_notes, status, payment_status, estimated_delivery, actual_delivery,
	created_at, updated_at`

// Create: the day counter is bumped with a single upsert-returning statement
// inside the insert transaction; the counter row lock serialises concurrent
// creates of the same day until commit.
func (r *Repo) Create(ctx context.Context, o Order) (Order, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, unavailable("begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	day := OrderDay(o.CreatedAt)
	var seq int
	err = tx.QueryRow(ctx, `
		INSERT INTO order_counters(day, value) VALUES ($1, 1)
		ON CONFLICT (day) DO UPDATE SET value = order_counters.value + 1
		RETURNING value`, day).Scan(&seq)
	if err != nil {
		return Order{}, unavailable("next order number", err)
	}
	number, err := FormatOrderNumber(day, seq)
	if err != nil {
		return Order{}, err
	}

	o.ID = uuid.NewString()
	o.OrderNumber = number
	_, err = tx.Exec(ctx, `
		INSERT INTO orders(`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		o.ID, o.OrderNumber, o.OwnerID, o.TotalPrice, o.DeliveryAddress, o.DeliveryFee,
		o.Notes, o.OperatorNotes, string(o.Status), string(o.PaymentStatus), o.EstimatedDelivery, o.ActualDelivery,
		o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return Order{}, unavailable("insert order", err)
	}

	for i, it := range o.Items {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items(order_id, line_no, sku_id, sku_kind, sku_size, quantity, unit_price, subtotal)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			o.ID, i+1, it.SkuID, it.SkuKind, it.SkuSize, it.Quantity, it.UnitPrice, it.Subtotal)
		if err != nil {
			return Order{}, unavailable(fmt.Sprintf("insert item %d", i+1), err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Order{}, unavailable("commit", err)
	}
	return o, nil
}

func (r *Repo) Get(ctx context.Context, id string) (Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Order{}, ErrOrderNotFound
	}
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	if err != nil {
		return Order{}, unavailable("get order", err)
	}
	if o.Items, err = r.items(ctx, id); err != nil {
		return Order{}, unavailable("get items", err)
	}
	return o, nil
}

func (r *Repo) items(ctx context.Context, orderID string) ([]Item, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT sku_id, sku_kind, sku_size, quantity, unit_price, subtotal
		FROM order_items WHERE order_id=$1 ORDER BY line_no`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.SkuID, &it.SkuKind, &it.SkuSize, &it.Quantity, &it.UnitPrice, &it.Subtotal); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *Repo) List(ctx context.Context, f ListFilter) ([]Order, error) {
	var (
		where []string
		args  []any
	)
	if f.OwnerID != "" {
		args = append(args, f.OwnerID)
		where = append(where, fmt.Sprintf("owner_id=$%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status=$%d", len(args)))
	}
	q := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at DESC, order_number DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, unavailable("list orders", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, unavailable("scan order", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list orders", err)
	}
	for i := range out {
		if out[i].Items, err = r.items(ctx, out[i].ID); err != nil {
			return nil, unavailable("list items", err)
		}
	}
	return out, nil
}

// UpdateStatus is a compare-and-set on the status column.
func (r *Repo) UpdateStatus(ctx context.Context, c StatusChange) (Order, error) {
	if _, err := uuid.Parse(c.OrderID); err != nil {
		return Order{}, ErrOrderNotFound
	}
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET
			status = $3,
			operator_notes = COALESCE($4, operator_notes),
			actual_delivery = COALESCE($5, actual_delivery),
			updated_at = $6
		WHERE id=$1 AND status=$2`,
		c.OrderID, string(c.From), string(c.To), c.OperatorNotes, c.ActualDelivery, c.At)
	if err != nil {
		return Order{}, unavailable("update status", err)
	}
	if ct.RowsAffected() == 0 {
		var exists bool
		if err := r.DB.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id=$1)`, c.OrderID).Scan(&exists); err != nil {
			return Order{}, unavailable("update status", err)
		}
		if !exists {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, ErrStatusConflict
	}
	return r.Get(ctx, c.OrderID)
}

func (r *Repo) DefaultAddress(ctx context.Context, ownerID string) (string, error) {
	var addr string
	err := r.DB.QueryRow(ctx, `SELECT default_address FROM users WHERE id=$1`, ownerID).Scan(&addr)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", unavailable("default address", err)
	}
	return addr, nil
}

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o           Order
		status, pay string
		actual      *time.Time
	)
	err := row.Scan(&o.ID, &o.OrderNumber, &o.OwnerID, &o.TotalPrice, &o.DeliveryAddress, &o.DeliveryFee,
		&o.Notes, &o.OperatorNotes, &status, &pay, &o.EstimatedDelivery, &actual,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return Order{}, err
	}
	o.Status = Status(status)
	o.PaymentStatus = PaymentStatus(pay)
	o.ActualDelivery = actual
	return o, nil
}
