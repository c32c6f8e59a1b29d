package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/lintangstore/go-storefront/internal/catalog"
	"github.com/lintangstore/go-storefront/internal/inventory"
)

type Repo struct{ DB *pgxpool.Pool }

// ErrOrderNoConflict surfaces a duplicate order number; the service retries
// with a fresh one.
var ErrOrderNoConflict = errors.New("order number already used")

const orderColumns = `id, order_no, external_id, user_id, status, shipping_status,
	total_amount::text, shipping_fee::text, discount_amount::text,
	actual_amount::text, paid_amount::text, cancel_reason,
	created_at, updated_at, paid_at, shipped_at, delivered_at,
	completed_at, cancelled_at, deleted_at`

// Create persists the order, its items, the stock decrements and the
// reservation rows in ONE transaction. Insufficient stock on any line rolls
// everything back: there is no partially reserved order to compensate.
func (r *Repo) Create(ctx context.Context, o *Order, reservedUntil time.Time) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO orders(id, order_no, external_id, user_id, status, shipping_status,
			total_amount, shipping_fee, discount_amount, actual_amount, paid_amount,
			cancel_reason, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,'',now(),now())`,
		o.ID, o.OrderNo, o.ExternalID, o.UserID, o.Status, o.ShippingStatus,
		o.TotalAmount.String(), o.ShippingFee.String(), o.DiscountAmount.String(),
		o.ActualAmount.String(), o.PaidAmount.String())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			switch pgErr.ConstraintName {
			case "orders_order_no_key":
				return ErrOrderNoConflict
			default:
				return ErrAlreadyExists
			}
		}
		return err
	}

	for _, it := range o.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(id, order_id, product_id, sku, name, image_url,
				unit_price, qty, returned_qty, refund_amount, subtotal)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			it.ID, o.ID, it.ProductID, it.SKU, it.Name, it.ImageURL,
			it.UnitPrice.String(), it.Qty, it.ReturnedQty,
			it.RefundAmount.String(), it.Subtotal.String()); err != nil {
			return err
		}

		// conditional update: the loser of a concurrent race gets a
		// ShortfallError here and the whole order rolls back
		if err := catalog.ReserveStock(ctx, tx, it.ProductID, it.Qty); err != nil {
			return err
		}

		if err := inventory.InsertReservation(ctx, tx, inventory.Reservation{
			OrderID:   o.ID,
			ProductID: it.ProductID,
			Qty:       it.Qty,
			ExpiresAt: reservedUntil,
		}); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *Repo) Get(ctx context.Context, id string) (*Order, error) {
	o, err := r.scanOrder(r.DB.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id=$1 AND deleted_at IS NULL`, id))
	if err != nil {
		return nil, err
	}
	o.Items, err = r.loadItems(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// GetByExternalID backs idempotent checkout: a retried request with the
// same external id returns the order created the first time.
func (r *Repo) GetByExternalID(ctx context.Context, externalID string) (*Order, error) {
	o, err := r.scanOrder(r.DB.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE external_id=$1 AND deleted_at IS NULL`, externalID))
	if err != nil {
		return nil, err
	}
	o.Items, err = r.loadItems(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (r *Repo) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE user_id=$1 AND deleted_at IS NULL ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := r.scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

// UpdateStatus writes back the aggregate's status-bearing fields after an
// ApplyTransition. Amounts other than paid_amount never change here.
func (r *Repo) UpdateStatus(ctx context.Context, o *Order) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET status=$2, shipping_status=$3, paid_amount=$4,
			cancel_reason=$5, updated_at=$6, paid_at=$7, shipped_at=$8,
			delivered_at=$9, completed_at=$10, cancelled_at=$11
		WHERE id=$1 AND deleted_at IS NULL`,
		o.ID, o.Status, o.ShippingStatus, o.PaidAmount.String(),
		o.CancelReason, o.UpdatedAt, o.PaidAt, o.ShippedAt,
		o.DeliveredAt, o.CompletedAt, o.CancelledAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateItemReturns records per-line returned quantities and refund
// amounts after a return is accepted.
func (r *Repo) UpdateItemReturns(ctx context.Context, orderID string, items []OrderItem) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, it := range items {
		if _, err := tx.Exec(ctx, `
			UPDATE order_items SET returned_qty=$3, refund_amount=$4
			WHERE order_id=$1 AND id=$2`,
			orderID, it.ID, it.ReturnedQty, it.RefundAmount.String()); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// SoftDelete hides an order from every query; the row itself stays.
func (r *Repo) SoftDelete(ctx context.Context, id string) error {
	ct, err := r.DB.Exec(ctx,
		`UPDATE orders SET deleted_at=now() WHERE id=$1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var total, fee, discount, actual, paid string
	err := row.Scan(&o.ID, &o.OrderNo, &o.ExternalID, &o.UserID, &o.Status, &o.ShippingStatus,
		&total, &fee, &discount, &actual, &paid, &o.CancelReason,
		&o.CreatedAt, &o.UpdatedAt, &o.PaidAt, &o.ShippedAt, &o.DeliveredAt,
		&o.CompletedAt, &o.CancelledAt, &o.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if o.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("parse total_amount: %w", err)
	}
	if o.ShippingFee, err = decimal.NewFromString(fee); err != nil {
		return nil, fmt.Errorf("parse shipping_fee: %w", err)
	}
	if o.DiscountAmount, err = decimal.NewFromString(discount); err != nil {
		return nil, fmt.Errorf("parse discount_amount: %w", err)
	}
	if o.ActualAmount, err = decimal.NewFromString(actual); err != nil {
		return nil, fmt.Errorf("parse actual_amount: %w", err)
	}
	if o.PaidAmount, err = decimal.NewFromString(paid); err != nil {
		return nil, fmt.Errorf("parse paid_amount: %w", err)
	}
	return &o, nil
}

func (r *Repo) loadItems(ctx context.Context, orderID string) ([]OrderItem, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, product_id, sku, name, image_url,
			unit_price::text, qty, returned_qty, refund_amount::text, subtotal::text
		FROM order_items WHERE order_id=$1 ORDER BY sku`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrderItem
	for rows.Next() {
		var it OrderItem
		var price, refund, subtotal string
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.SKU, &it.Name, &it.ImageURL,
			&price, &it.Qty, &it.ReturnedQty, &refund, &subtotal); err != nil {
			return nil, err
		}
		if it.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse unit_price: %w", err)
		}
		if it.RefundAmount, err = decimal.NewFromString(refund); err != nil {
			return nil, fmt.Errorf("parse refund_amount: %w", err)
		}
		if it.Subtotal, err = decimal.NewFromString(subtotal); err != nil {
			return nil, fmt.Errorf("parse subtotal: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
