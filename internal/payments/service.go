package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lintangstore/go-storefront/internal/events"
	"github.com/lintangstore/go-storefront/internal/kafka"
	"github.com/lintangstore/go-storefront/internal/orders"
)

// Store is the payment persistence contract.
type Store interface {
	Create(ctx context.Context, p *Payment) error
	Get(ctx context.Context, id string) (*Payment, error)
	GetByIntentID(ctx context.Context, intentID string) (*Payment, error)
	GetActiveByOrderID(ctx context.Context, orderID string) (*Payment, error)
	Update(ctx context.Context, p *Payment) error
}

// OrderTransitions is the slice of the order service the webhook needs.
type OrderTransitions interface {
	MarkPaid(ctx context.Context, orderID, paymentID string, amount decimal.Decimal) error
	Cancel(ctx context.Context, orderID, reason string) error
}

// EventBus publishes payment outcome events.
type EventBus interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header)
}

type Service struct {
	Store    Store
	Provider Provider
	Orders   OrderTransitions
	Bus      EventBus
	Log      *zap.Logger

	ServiceName string
	Currency    string

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
	if s.Currency == "" {
		s.Currency = "usd"
	}
	return &s
}

// WithClock fixes the service clock; used by tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// InitiateCheckout satisfies orders.PaymentGateway: it opens a PENDING
// payment record and a gateway session for the order's actual amount.
func (s *Service) InitiateCheckout(ctx context.Context, o *orders.Order) (orders.PaymentSession, error) {
	now := s.clock().UTC()
	p := &Payment{
		ID:             s.newID(),
		OrderID:        o.ID,
		Provider:       s.Provider.Name(),
		Amount:         o.ActualAmount,
		FeeAmount:      decimal.Zero,
		RefundedAmount: decimal.Zero,
		Status:         PaymentPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	session, err := s.Provider.CreateSession(ctx, SessionRequest{
		OrderID:        o.ID,
		OrderNo:        o.OrderNo,
		UserID:         o.UserID,
		Amount:         o.ActualAmount,
		Currency:       s.Currency,
		IdempotencyKey: o.ExternalID,
	})
	if err != nil {
		return orders.PaymentSession{}, err
	}
	p.IntentID = session.IntentID

	if err := s.Store.Create(ctx, p); err != nil {
		return orders.PaymentSession{}, err
	}

	return orders.PaymentSession{
		PaymentID:   p.ID,
		Provider:    p.Provider,
		RedirectURL: session.RedirectURL,
		ClientID:    session.ClientID,
	}, nil
}

// Refund satisfies orders.PaymentGateway. It pays the amount back through
// the gateway and closes out the payment record.
func (s *Service) Refund(ctx context.Context, orderID string, amount decimal.Decimal) error {
	p, err := s.Store.GetActiveByOrderID(ctx, orderID)
	if err != nil {
		return err
	}
	if p.Status != PaymentSucceeded {
		return fmt.Errorf("%w: payment %s is %s", ErrAlreadySettled, p.ID, p.Status)
	}

	if _, err := s.Provider.Refund(ctx, RefundRequest{
		IntentID: p.IntentID,
		Amount:   amount,
		Currency: s.Currency,
	}); err != nil {
		return err
	}

	now := s.clock().UTC()
	p.Status = PaymentRefunded
	p.RefundedAmount = p.RefundedAmount.Add(amount)
	p.RefundedAt = &now
	p.UpdatedAt = now
	return s.Store.Update(ctx, p)
}

// Callback is the normalised gateway notification handed in by the webhook
// handler (which has already deduplicated by event id).
type Callback struct {
	EventID   string
	IntentID  string
	Succeeded bool
	Amount    decimal.Decimal
	Reason    string
}

// HandleCallback advances the payment and its order from a gateway
// notification. A success whose amount disagrees with the order is treated
// as a failed payment, never silently accepted.
func (s *Service) HandleCallback(ctx context.Context, cb Callback) error {
	p, err := s.Store.GetByIntentID(ctx, cb.IntentID)
	if err != nil {
		return err
	}
	if p.Settled() {
		return nil // duplicate delivery
	}

	now := s.clock().UTC()

	if !cb.Succeeded {
		return s.fail(ctx, p, cb.Reason, now)
	}

	if err := s.Orders.MarkPaid(ctx, p.OrderID, p.ID, cb.Amount); err != nil {
		if errors.Is(err, orders.ErrAmountMismatch) {
			return s.fail(ctx, p, err.Error(), now)
		}
		return err
	}

	p.Status = PaymentSucceeded
	p.PaidAt = &now
	p.UpdatedAt = now
	return s.Store.Update(ctx, p)
}

func (s *Service) fail(ctx context.Context, p *Payment, reason string, now time.Time) error {
	p.Status = PaymentFailed
	p.FailureReason = reason
	p.UpdatedAt = now
	if err := s.Store.Update(ctx, p); err != nil {
		return err
	}

	if err := s.Orders.Cancel(ctx, p.OrderID, events.CancelReasonPaymentFailed); err != nil {
		// the sweeper releases the stock later if cancel raced something
		s.Log.Warn("cancel order after failed payment",
			zap.String("order_id", p.OrderID), zap.Error(err))
	}

	s.publishFailed(p, reason)
	return nil
}

func (s *Service) publishFailed(p *Payment, reason string) {
	if s.Bus == nil {
		return
	}
	env := events.Envelope{
		EventID:       uuid.NewString(),
		EventType:     events.EventPaymentFailed,
		EventVersion:  1,
		OccurredAt:    s.clock().UTC(),
		Producer:      s.ServiceName,
		CorrelationID: p.OrderID,
		Payload: kafka.MustMarshal(events.PaymentFailedPayload{
			OrderID:   p.OrderID,
			PaymentID: p.ID,
			Reason:    reason,
		}),
	}
	s.Bus.Publish(events.TopicPaymentFailed, events.PartitionKey(p.OrderID), kafka.MustMarshal(env),
		kafkago.Header{Key: "x-event-type", Value: []byte(events.EventPaymentFailed)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
