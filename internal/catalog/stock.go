package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is satisfied by *pgxpool.Pool and pgx.Tx, so the stock statements
// below can run standalone or inside a larger transaction (checkout writes
// order rows and stock decrements atomically).
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ReserveStock moves qty from available to reserved as one conditional
// UPDATE; when the WHERE clause matches no row the caller gets a
// ShortfallError with the current availability.
func ReserveStock(ctx context.Context, q Querier, productID string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("reserve stock: quantity must be positive, got %d", qty)
	}
	ct, err := q.Exec(ctx, `
		UPDATE products
		SET available_stock = available_stock - $2,
		    reserved_stock  = reserved_stock + $2,
		    status = CASE WHEN available_stock - $2 = 0 AND status = 'ACTIVE'
		                  THEN 'OUT_OF_STOCK' ELSE status END,
		    updated_at = now()
		WHERE id = $1 AND available_stock >= $2`,
		productID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}

	var available int
	err = q.QueryRow(ctx, `SELECT available_stock FROM products WHERE id=$1`, productID).Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return &ShortfallError{Shortfall: Shortfall{ProductID: productID, Required: qty, Available: available}}
}

// ReleaseStock returns up to qty reserved units to available stock.
func ReleaseStock(ctx context.Context, q Querier, productID string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("release stock: quantity must be positive, got %d", qty)
	}
	ct, err := q.Exec(ctx, `
		UPDATE products
		SET available_stock = available_stock + LEAST($2, reserved_stock),
		    reserved_stock  = reserved_stock - LEAST($2, reserved_stock),
		    updated_at = now()
		WHERE id = $1`,
		productID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ConfirmStock moves up to qty reserved units out of the counters into
// SoldCount; total shrinks because the units have left the warehouse.
func ConfirmStock(ctx context.Context, q Querier, productID string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("confirm stock: quantity must be positive, got %d", qty)
	}
	ct, err := q.Exec(ctx, `
		UPDATE products
		SET total_stock    = total_stock - LEAST($2, reserved_stock),
		    sold_count     = sold_count + LEAST($2, reserved_stock),
		    reserved_stock = reserved_stock - LEAST($2, reserved_stock),
		    updated_at = now()
		WHERE id = $1`,
		productID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AddStock restocks a product and revives it when it was sold out.
func AddStock(ctx context.Context, q Querier, productID string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("add stock: quantity must be positive, got %d", qty)
	}
	ct, err := q.Exec(ctx, `
		UPDATE products
		SET available_stock = available_stock + $2,
		    total_stock     = total_stock + $2,
		    status = CASE WHEN status = 'OUT_OF_STOCK' THEN 'ACTIVE' ELSE status END,
		    updated_at = now()
		WHERE id = $1`,
		productID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
