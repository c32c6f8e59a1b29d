package inventory

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lintangstore/go-storefront/internal/catalog"
)

type Repo struct{ DB *pgxpool.Pool }

// InsertReservation records a hold inside the caller's transaction,
// alongside the stock decrement it mirrors.
func InsertReservation(ctx context.Context, q catalog.Querier, r Reservation) error {
	_, err := q.Exec(ctx, `
		INSERT INTO reservations(order_id, product_id, qty, status, expires_at, created_at, updated_at)
		VALUES ($1,$2,$3,'RESERVED',$4,now(),now())
		ON CONFLICT (order_id, product_id) DO NOTHING`,
		r.OrderID, r.ProductID, r.Qty, r.ExpiresAt)
	return err
}

// ReleaseForOrder returns every still-reserved unit of an order to
// available stock and marks the rows RELEASED, all in one transaction.
func (r *Repo) ReleaseForOrder(ctx context.Context, orderID string) error {
	return r.settleForOrder(ctx, orderID, ReservationReleased)
}

// ConfirmForOrder moves every still-reserved unit of an order to sold and
// marks the rows CONFIRMED.
func (r *Repo) ConfirmForOrder(ctx context.Context, orderID string) error {
	return r.settleForOrder(ctx, orderID, ReservationConfirmed)
}

func (r *Repo) settleForOrder(ctx context.Context, orderID string, target ReservationStatus) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT product_id, qty FROM reservations
		WHERE order_id=$1 AND status='RESERVED'
		FOR UPDATE`, orderID)
	if err != nil {
		return err
	}

	type line struct {
		productID string
		qty       int
	}
	var lines []line
	for rows.Next() {
		var l line
		if err := rows.Scan(&l.productID, &l.qty); err != nil {
			rows.Close()
			return err
		}
		lines = append(lines, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, l := range lines {
		var stockErr error
		if target == ReservationConfirmed {
			stockErr = catalog.ConfirmStock(ctx, tx, l.productID, l.qty)
		} else {
			stockErr = catalog.ReleaseStock(ctx, tx, l.productID, l.qty)
		}
		if stockErr != nil {
			return stockErr
		}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE reservations SET status=$2, updated_at=now()
		WHERE order_id=$1 AND status='RESERVED'`, orderID, string(target)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ExtendForOrder pushes the expiry of an order's active holds out, used
// once payment lands so the sweeper leaves the stock alone until shipping.
func (r *Repo) ExtendForOrder(ctx context.Context, orderID string, until time.Time) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE reservations SET expires_at=$2, updated_at=now()
		WHERE order_id=$1 AND status='RESERVED'`, orderID, until)
	return err
}

// ListExpiredOrders returns order ids that still hold RESERVED rows past
// their expiry. The redis TTL key is only a hint; this table decides.
func (r *Repo) ListExpiredOrders(ctx context.Context, now time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.Query(ctx, `
		SELECT DISTINCT order_id FROM reservations
		WHERE status='RESERVED' AND expires_at < $1
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ListForOrder reports the reservations of one order, newest first.
func (r *Repo) ListForOrder(ctx context.Context, orderID string) ([]Reservation, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT order_id, product_id, qty, status, expires_at, created_at, updated_at
		FROM reservations WHERE order_id=$1 ORDER BY created_at DESC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Reservation
	for rows.Next() {
		var res Reservation
		if err := rows.Scan(&res.OrderID, &res.ProductID, &res.Qty, &res.Status,
			&res.ExpiresAt, &res.CreatedAt, &res.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
