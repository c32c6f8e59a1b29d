package orders

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrCheckoutLocked    = errors.New("checkout already in progress, try again")
	ErrPriceChanged      = errors.New("product price changed")
	ErrProductNotSellable = errors.New("product not available for sale")
	ErrAmountMismatch    = errors.New("payment amount does not match order amount")
	ErrInvalidRequest    = errors.New("invalid checkout request")
	ErrAlreadyExists     = errors.New("order already exists")
)

// Order is the aggregate root; it exclusively owns its items. Orders are
// soft-deleted only, the row never disappears.
type Order struct {
	ID             string
	OrderNo        string
	ExternalID     string
	UserID         string
	Status         Status
	ShippingStatus ShippingStatus

	TotalAmount    decimal.Decimal
	ShippingFee    decimal.Decimal
	DiscountAmount decimal.Decimal
	ActualAmount   decimal.Decimal
	PaidAmount     decimal.Decimal

	CancelReason string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	PaidAt      *time.Time
	ShippedAt   *time.Time
	DeliveredAt *time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time
	DeletedAt   *time.Time

	Items []OrderItem
}

// OrderItem snapshots the product at checkout time so later catalog edits
// never alter historical orders.
type OrderItem struct {
	ID           string
	OrderID      string
	ProductID    string
	SKU          string
	Name         string
	ImageURL     string
	UnitPrice    decimal.Decimal
	Qty          int
	ReturnedQty  int
	RefundAmount decimal.Decimal
	Subtotal     decimal.Decimal
}

// RecalculateSubtotal derives Subtotal from unit price and quantity; it is
// re-run on every persist so the stored value can never drift.
func (i *OrderItem) RecalculateSubtotal() {
	i.Subtotal = i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Qty)))
}

// RecalculateAmounts rebuilds the monetary fields from the items:
// total = sum of subtotals, actual = max(0, total + shipping - discount).
func (o *Order) RecalculateAmounts() {
	total := decimal.Zero
	for idx := range o.Items {
		o.Items[idx].RecalculateSubtotal()
		total = total.Add(o.Items[idx].Subtotal)
	}
	o.TotalAmount = total

	actual := total.Add(o.ShippingFee).Sub(o.DiscountAmount)
	if actual.IsNegative() {
		actual = decimal.Zero
	}
	o.ActualAmount = actual
}

// ApplyTransition moves the order to the target status if the transition
// table allows it, stamping the matching milestone. Cancelling a paid order
// is additionally gated on it not having shipped yet.
func (o *Order) ApplyTransition(to Status, now time.Time) error {
	if !CanTransition(o.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
	}
	if to == StatusCancelled && o.Status == StatusPaid && o.ShippingStatus != ShippingNotShipped {
		return fmt.Errorf("%w: cannot cancel after shipping", ErrInvalidTransition)
	}

	now = now.UTC()
	switch to {
	case StatusPaid:
		o.PaidAt = &now
		o.PaidAmount = o.ActualAmount
	case StatusShipped:
		o.ShippedAt = &now
		o.ShippingStatus = ShippingShipped
	case StatusDelivered:
		o.DeliveredAt = &now
		o.ShippingStatus = ShippingDelivered
	case StatusCompleted:
		o.CompletedAt = &now
	case StatusCancelled:
		o.CancelledAt = &now
	}
	o.Status = to
	o.UpdatedAt = now
	return nil
}

// CanCancel allows cancelling a paid order only before it ships.
func (o *Order) CanCancel() bool {
	if !CanTransition(o.Status, StatusCancelled) {
		return false
	}
	return o.Status != StatusPaid || o.ShippingStatus == ShippingNotShipped
}

func (o *Order) CanShip() bool     { return CanTransition(o.Status, StatusShipped) }
func (o *Order) CanComplete() bool { return CanTransition(o.Status, StatusCompleted) }
func (o *Order) CanReturn() bool   { return CanTransition(o.Status, StatusReturned) }
func (o *Order) CanRefund() bool   { return CanTransition(o.Status, StatusRefunded) }

// CanReview allows reviews once the goods arrived.
func (o *Order) CanReview() bool {
	return o.Status == StatusDelivered || o.Status == StatusCompleted
}

// RefundableAmount is the sum of per-item refunds recorded by a return.
func (o *Order) RefundableAmount() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range o.Items {
		sum = sum.Add(it.RefundAmount)
	}
	return sum
}
