package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Repo struct{ DB *pgxpool.Pool }

const paymentColumns = `id, order_id, provider, intent_id, amount::text,
	fee_amount::text, refunded_amount::text, status, failure_reason,
	created_at, updated_at, paid_at, refunded_at`

func (r *Repo) Create(ctx context.Context, p *Payment) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO payments(id, order_id, provider, intent_id, amount,
			fee_amount, refunded_amount, status, failure_reason, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		p.ID, p.OrderID, p.Provider, p.IntentID, p.Amount.String(),
		p.FeeAmount.String(), p.RefundedAmount.String(), p.Status,
		p.FailureReason, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r *Repo) Get(ctx context.Context, id string) (*Payment, error) {
	return r.scanOne(r.DB.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id=$1`, id))
}

func (r *Repo) GetByIntentID(ctx context.Context, intentID string) (*Payment, error) {
	return r.scanOne(r.DB.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE intent_id=$1`, intentID))
}

// GetActiveByOrderID returns the newest non-failed payment for an order.
func (r *Repo) GetActiveByOrderID(ctx context.Context, orderID string) (*Payment, error) {
	return r.scanOne(r.DB.QueryRow(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE order_id=$1 AND status <> 'FAILED'
		ORDER BY created_at DESC LIMIT 1`, orderID))
}

func (r *Repo) Update(ctx context.Context, p *Payment) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE payments SET status=$2, failure_reason=$3, refunded_amount=$4,
			updated_at=$5, paid_at=$6, refunded_at=$7
		WHERE id=$1`,
		p.ID, p.Status, p.FailureReason, p.RefundedAmount.String(),
		p.UpdatedAt, p.PaidAt, p.RefundedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) scanOne(row pgx.Row) (*Payment, error) {
	var p Payment
	var amount, fee, refunded string
	err := row.Scan(&p.ID, &p.OrderID, &p.Provider, &p.IntentID, &amount,
		&fee, &refunded, &p.Status, &p.FailureReason,
		&p.CreatedAt, &p.UpdatedAt, &p.PaidAt, &p.RefundedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	if p.FeeAmount, err = decimal.NewFromString(fee); err != nil {
		return nil, fmt.Errorf("parse fee_amount: %w", err)
	}
	if p.RefundedAmount, err = decimal.NewFromString(refunded); err != nil {
		return nil, fmt.Errorf("parse refunded_amount: %w", err)
	}
	return &p, nil
}
