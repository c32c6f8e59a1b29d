package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lintangstore/go-storefront/internal/catalog"
	"github.com/lintangstore/go-storefront/internal/events"
	"github.com/lintangstore/go-storefront/internal/kafka"
)

// Store is the order persistence contract.
type Store interface {
	Create(ctx context.Context, o *Order, reservedUntil time.Time) error
	Get(ctx context.Context, id string) (*Order, error)
	GetByExternalID(ctx context.Context, externalID string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	UpdateStatus(ctx context.Context, o *Order) error
	UpdateItemReturns(ctx context.Context, orderID string, items []OrderItem) error
	SoftDelete(ctx context.Context, id string) error
}

// ProductStore batch-fetches the products a checkout references.
type ProductStore interface {
	GetProducts(ctx context.Context, ids []string) (map[string]*catalog.Product, error)
}

// ReservationStore settles the durable holds created at checkout.
type ReservationStore interface {
	ConfirmForOrder(ctx context.Context, orderID string) error
	ReleaseForOrder(ctx context.Context, orderID string) error
	ExtendForOrder(ctx context.Context, orderID string, until time.Time) error
	ListExpiredOrders(ctx context.Context, now time.Time, limit int) ([]string, error)
}

// PaymentSession is what the payment gateway hands back for the client to
// complete payment with.
type PaymentSession struct {
	PaymentID   string
	Provider    string
	RedirectURL string
	ClientID    string
}

// PaymentGateway starts and reverses payments; implemented by the payments
// service on top of the configured provider.
type PaymentGateway interface {
	InitiateCheckout(ctx context.Context, o *Order) (PaymentSession, error)
	Refund(ctx context.Context, orderID string, amount decimal.Decimal) error
}

// Locker serialises checkouts per user. Release must be safe to call even
// when the lock has already expired.
type Locker interface {
	Acquire(ctx context.Context, userID string) (release func(context.Context) error, err error)
}

// ReservationTimer is the redis fast-path hint mirroring the durable
// expires_at column.
type ReservationTimer interface {
	Set(ctx context.Context, orderID string, ttl time.Duration) error
	Clear(ctx context.Context, orderID string) error
}

// EventBus publishes lifecycle events keyed by order id.
type EventBus interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header)
}

type Service struct {
	Orders       Store
	Products     ProductStore
	Reservations ReservationStore
	Payments     PaymentGateway
	Locker       Locker
	Timer        ReservationTimer
	Numbers      *NumberGenerator
	Bus          EventBus
	Log          *zap.Logger

	ServiceName    string
	ReservationTTL time.Duration

	clock func() time.Time
	newID func() string
}

func NewService(s Service) *Service {
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.Log == nil {
		s.Log = zap.NewNop()
	}
	if s.ReservationTTL <= 0 {
		s.ReservationTTL = 30 * time.Minute
	}
	return &s
}

// WithClock fixes the service clock; used by tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

type CheckoutItem struct {
	ProductID string
	Qty       int
	// Price the client saw; a mismatch with the catalog aborts checkout.
	QuotedPrice decimal.Decimal
}

type CheckoutRequest struct {
	ExternalID  string
	UserID      string
	Items       []CheckoutItem
	ShippingFee decimal.Decimal
	Discount    decimal.Decimal
	TraceID     string
}

type CheckoutResult struct {
	Order      *Order
	Payment    PaymentSession
	Idempotent bool
}

// Checkout runs the whole order-creation sequence: per-user lock,
// validation, snapshot, atomic reserve-and-persist, payment initiation,
// event publication. Any failure before the transaction commits leaves the
// catalog untouched.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if err := validateCheckout(req); err != nil {
		return nil, err
	}

	release, err := s.Locker.Acquire(ctx, req.UserID)
	if err != nil {
		return nil, ErrCheckoutLocked
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.Log.Warn("release checkout lock failed", zap.String("user_id", req.UserID), zap.Error(err))
		}
	}()

	// idempotency: same external id returns the original order
	if existing, err := s.Orders.GetByExternalID(ctx, req.ExternalID); err == nil {
		return &CheckoutResult{Order: existing, Idempotent: true}, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	ids := make([]string, 0, len(req.Items))
	for _, it := range req.Items {
		ids = append(ids, it.ProductID)
	}
	products, err := s.Products.GetProducts(ctx, ids)
	if err != nil {
		return nil, err
	}

	now := s.clock().UTC()
	order := &Order{
		ID:             s.newID(),
		ExternalID:     req.ExternalID,
		UserID:         req.UserID,
		Status:         StatusPendingPayment,
		ShippingStatus: ShippingNotShipped,
		ShippingFee:    req.ShippingFee,
		DiscountAmount: req.Discount,
		PaidAmount:     decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	for _, line := range req.Items {
		p, ok := products[line.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: product %s", catalog.ErrNotFound, line.ProductID)
		}
		if !p.Sellable() {
			return nil, fmt.Errorf("%w: %s", ErrProductNotSellable, p.SKU)
		}
		if !p.Price.Equal(line.QuotedPrice) {
			return nil, fmt.Errorf("%w: %s is now %s", ErrPriceChanged, p.SKU, p.Price)
		}
		order.Items = append(order.Items, OrderItem{
			ID:           s.newID(),
			OrderID:      order.ID,
			ProductID:    p.ID,
			SKU:          p.SKU,
			Name:         p.Name,
			ImageURL:     p.ImageURL,
			UnitPrice:    p.Price,
			Qty:          line.Qty,
			RefundAmount: decimal.Zero,
		})
	}
	order.RecalculateAmounts()

	reservedUntil := now.Add(s.ReservationTTL)
	if err := s.createWithFreshNumber(ctx, order, reservedUntil); err != nil {
		return nil, err
	}

	if err := s.Timer.Set(ctx, order.ID, s.ReservationTTL); err != nil {
		// hint only; the sweeper works off expires_at
		s.Log.Warn("set reservation timer failed", zap.String("order_id", order.ID), zap.Error(err))
	}

	result := &CheckoutResult{Order: order}
	if s.Payments != nil {
		session, err := s.Payments.InitiateCheckout(ctx, order)
		if err != nil {
			// the order stands; payment can be retried against it
			s.Log.Warn("initiate payment failed", zap.String("order_id", order.ID), zap.Error(err))
		} else {
			result.Payment = session
		}
	}

	s.publish(events.TopicOrderCreated, events.EventOrderCreated, order.ID, req.TraceID,
		events.OrderCreatedPayload{
			OrderID:     order.ID,
			OrderNo:     order.OrderNo,
			UserID:      order.UserID,
			Items:       itemQtys(order.Items),
			TotalAmount: order.ActualAmount.String(),
		})

	return result, nil
}

func (s *Service) createWithFreshNumber(ctx context.Context, order *Order, reservedUntil time.Time) error {
	for attempt := 0; attempt < 2; attempt++ {
		no, err := s.Numbers.Generate(ctx)
		if err != nil {
			return err
		}
		order.OrderNo = no
		err = s.Orders.Create(ctx, order, reservedUntil)
		if errors.Is(err, ErrOrderNoConflict) {
			continue
		}
		return err
	}
	return ErrOrderNoConflict
}

func validateCheckout(req CheckoutRequest) error {
	if req.ExternalID == "" || req.UserID == "" || len(req.Items) == 0 {
		return fmt.Errorf("%w: external id, user id and items are required", ErrInvalidRequest)
	}
	if req.ShippingFee.IsNegative() || req.Discount.IsNegative() {
		return fmt.Errorf("%w: shipping fee and discount must be non-negative", ErrInvalidRequest)
	}
	seen := make(map[string]bool, len(req.Items))
	for _, it := range req.Items {
		if it.Qty <= 0 {
			return fmt.Errorf("%w: invalid qty for product %s", ErrInvalidRequest, it.ProductID)
		}
		if seen[it.ProductID] {
			return fmt.Errorf("%w: duplicate product %s", ErrInvalidRequest, it.ProductID)
		}
		seen[it.ProductID] = true
	}
	return nil
}

// Cancel releases the order's stock and moves it to CANCELLED when the
// transition table allows it.
func (s *Service) Cancel(ctx context.Context, orderID, reason string) error {
	o, err := s.Orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if err := o.ApplyTransition(StatusCancelled, s.clock()); err != nil {
		return err
	}
	o.CancelReason = reason
	if err := s.Orders.UpdateStatus(ctx, o); err != nil {
		return err
	}
	if err := s.Reservations.ReleaseForOrder(ctx, orderID); err != nil {
		return fmt.Errorf("release reservations for order %s: %w", orderID, err)
	}
	_ = s.Timer.Clear(ctx, orderID)

	s.publish(events.TopicOrderCancelled, events.EventOrderCancelled, orderID, "",
		events.OrderCancelledPayload{OrderID: orderID, Reason: reason, Items: itemQtys(o.Items)})
	return nil
}

// MarkPaid is driven by the payment webhook. The reported amount must match
// the order's actual amount exactly.
func (s *Service) MarkPaid(ctx context.Context, orderID, paymentID string, amount decimal.Decimal) error {
	o, err := s.Orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if !amount.Equal(o.ActualAmount) {
		return fmt.Errorf("%w: got %s, order %s expects %s",
			ErrAmountMismatch, amount, o.OrderNo, o.ActualAmount)
	}
	if err := o.ApplyTransition(StatusPaid, s.clock()); err != nil {
		return err
	}
	if err := s.Orders.UpdateStatus(ctx, o); err != nil {
		return err
	}

	// the hold now lasts until shipping confirms it
	if err := s.Reservations.ExtendForOrder(ctx, orderID, s.clock().UTC().Add(30*24*time.Hour)); err != nil {
		s.Log.Warn("extend reservations failed", zap.String("order_id", orderID), zap.Error(err))
	}
	_ = s.Timer.Clear(ctx, orderID)

	s.publish(events.TopicOrderPaid, events.EventOrderPaid, orderID, "",
		events.OrderPaidPayload{OrderID: orderID, PaymentID: paymentID, Amount: amount.String()})
	return nil
}

// Ship confirms the reserved stock (reserved -> sold) and marks the order
// shipped.
func (s *Service) Ship(ctx context.Context, orderID string) error {
	o, err := s.Orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if err := o.ApplyTransition(StatusShipped, s.clock()); err != nil {
		return err
	}
	if err := s.Orders.UpdateStatus(ctx, o); err != nil {
		return err
	}
	if err := s.Reservations.ConfirmForOrder(ctx, orderID); err != nil {
		return fmt.Errorf("confirm reservations for order %s: %w", orderID, err)
	}

	s.publish(events.TopicOrderShipped, events.EventOrderShipped, orderID, "",
		events.OrderShippedPayload{OrderID: orderID, Items: itemQtys(o.Items)})
	return nil
}

func (s *Service) Deliver(ctx context.Context, orderID string) error {
	return s.simpleTransition(ctx, orderID, StatusDelivered, "", nil)
}

func (s *Service) Complete(ctx context.Context, orderID string) error {
	return s.simpleTransition(ctx, orderID, StatusCompleted, events.TopicOrderCompleted,
		func(o *Order) (string, any) {
			return events.EventOrderCompleted, events.OrderCompletedPayload{OrderID: o.ID}
		})
}

func (s *Service) simpleTransition(ctx context.Context, orderID string, to Status,
	topic string, payload func(*Order) (string, any)) error {
	o, err := s.Orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if err := o.ApplyTransition(to, s.clock()); err != nil {
		return err
	}
	if err := s.Orders.UpdateStatus(ctx, o); err != nil {
		return err
	}
	if topic != "" && payload != nil {
		eventType, p := payload(o)
		s.publish(topic, eventType, orderID, "", p)
	}
	return nil
}

// ReturnLine names how much of one order item comes back.
type ReturnLine struct {
	ItemID string
	Qty    int
}

// Return accepts returned goods on a delivered order and records the
// per-line refund amounts the later refund will pay out.
func (s *Service) Return(ctx context.Context, orderID string, lines []ReturnLine) error {
	if len(lines) == 0 {
		return fmt.Errorf("%w: no return lines", ErrInvalidRequest)
	}
	o, err := s.Orders.Get(ctx, orderID)
	if err != nil {
		return err
	}

	byID := make(map[string]*OrderItem, len(o.Items))
	for idx := range o.Items {
		byID[o.Items[idx].ID] = &o.Items[idx]
	}
	for _, line := range lines {
		it, ok := byID[line.ItemID]
		if !ok {
			return fmt.Errorf("%w: unknown order item %s", ErrInvalidRequest, line.ItemID)
		}
		if line.Qty <= 0 || it.ReturnedQty+line.Qty > it.Qty {
			return fmt.Errorf("%w: return qty %d exceeds purchased qty for %s",
				ErrInvalidRequest, line.Qty, it.SKU)
		}
		it.ReturnedQty += line.Qty
		it.RefundAmount = it.UnitPrice.Mul(decimal.NewFromInt(int64(it.ReturnedQty)))
	}

	if err := o.ApplyTransition(StatusReturned, s.clock()); err != nil {
		return err
	}
	if err := s.Orders.UpdateStatus(ctx, o); err != nil {
		return err
	}
	return s.Orders.UpdateItemReturns(ctx, orderID, o.Items)
}

// Refund pays back the recorded return amounts through the gateway and
// closes the order.
func (s *Service) Refund(ctx context.Context, orderID string) error {
	o, err := s.Orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	amount := o.RefundableAmount()
	if amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: nothing to refund", ErrInvalidRequest)
	}
	if err := o.ApplyTransition(StatusRefunded, s.clock()); err != nil {
		return err
	}
	if s.Payments != nil {
		if err := s.Payments.Refund(ctx, orderID, amount); err != nil {
			return fmt.Errorf("refund order %s: %w", orderID, err)
		}
	}
	if err := s.Orders.UpdateStatus(ctx, o); err != nil {
		return err
	}

	s.publish(events.TopicOrderRefunded, events.EventOrderRefunded, orderID, "",
		events.OrderRefundedPayload{OrderID: orderID, Amount: amount.String()})
	return nil
}

// ExpireStale is the sweeper pass: every unpaid order whose durable
// reservation expiry has passed gets cancelled and its stock released.
// Orders that got paid in the meantime keep their hold; holds stranded on
// already-closed orders are released.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	orderIDs, err := s.Reservations.ListExpiredOrders(ctx, s.clock().UTC(), 100)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, id := range orderIDs {
		o, err := s.Orders.Get(ctx, id)
		if err != nil {
			s.Log.Warn("load expired order failed", zap.String("order_id", id), zap.Error(err))
			continue
		}
		if o.Status.Terminal() {
			// a crash between the status write and the release during
			// Cancel can leave RESERVED rows behind a closed order
			if err := s.Reservations.ReleaseForOrder(ctx, id); err != nil {
				s.Log.Warn("release stranded reservations failed", zap.String("order_id", id), zap.Error(err))
			}
			continue
		}
		if o.Status != StatusPendingPayment {
			// paid and in flight; keep the hold alive for shipping
			if err := s.Reservations.ExtendForOrder(ctx, id, s.clock().UTC().Add(30*24*time.Hour)); err != nil {
				s.Log.Warn("extend reservations failed", zap.String("order_id", id), zap.Error(err))
			}
			continue
		}
		if err := s.Cancel(ctx, id, events.CancelReasonExpired); err != nil {
			s.Log.Warn("expire order failed", zap.String("order_id", id), zap.Error(err))
			continue
		}
		expired++
	}
	return expired, nil
}

func (s *Service) Get(ctx context.Context, orderID string) (*Order, error) {
	return s.Orders.Get(ctx, orderID)
}

// Delete hides a settled order from the user's history. Only terminal
// orders may go; anything still in flight keeps its row visible.
func (s *Service) Delete(ctx context.Context, orderID string) error {
	o, err := s.Orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if !o.Status.Terminal() {
		return fmt.Errorf("%w: order %s is still %s", ErrInvalidTransition, o.OrderNo, o.Status)
	}
	return s.Orders.SoftDelete(ctx, orderID)
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	return s.Orders.ListByUser(ctx, userID)
}

func (s *Service) publish(topic, eventType, orderID, traceID string, payload any) {
	if s.Bus == nil {
		return
	}
	env := events.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    s.clock().UTC(),
		Producer:      s.ServiceName,
		TraceID:       traceID,
		CorrelationID: orderID,
		Payload:       kafka.MustMarshal(payload),
	}
	s.Bus.Publish(topic, events.PartitionKey(orderID), kafka.MustMarshal(env),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func itemQtys(items []OrderItem) []events.ItemQty {
	out := make([]events.ItemQty, 0, len(items))
	for _, it := range items {
		out = append(out, events.ItemQty{ProductID: it.ProductID, Qty: it.Qty})
	}
	return out
}
