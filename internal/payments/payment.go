package payments

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound       = errors.New("payment not found")
	ErrAlreadySettled = errors.New("payment already settled")
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentSucceeded PaymentStatus = "SUCCEEDED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
)

// Payment reconciles one order against the gateway. One active payment per
// order: a failed attempt is superseded by creating a fresh record.
type Payment struct {
	ID             string
	OrderID        string
	Provider       string
	IntentID       string
	Amount         decimal.Decimal
	FeeAmount      decimal.Decimal
	RefundedAmount decimal.Decimal
	Status         PaymentStatus
	FailureReason  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	PaidAt         *time.Time
	RefundedAt     *time.Time
}

func (p *Payment) Settled() bool {
	return p.Status == PaymentSucceeded || p.Status == PaymentRefunded
}
