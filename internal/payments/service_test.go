package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lintangstore/go-storefront/internal/orders"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type stubPaymentStore struct {
	byID     map[string]*Payment
	byIntent map[string]*Payment
}

func newStubPaymentStore() *stubPaymentStore {
	return &stubPaymentStore{byID: map[string]*Payment{}, byIntent: map[string]*Payment{}}
}

func (s *stubPaymentStore) Create(_ context.Context, p *Payment) error {
	cp := *p
	s.byID[p.ID] = &cp
	s.byIntent[p.IntentID] = &cp
	return nil
}

func (s *stubPaymentStore) Get(_ context.Context, id string) (*Payment, error) {
	p, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *stubPaymentStore) GetByIntentID(_ context.Context, intentID string) (*Payment, error) {
	p, ok := s.byIntent[intentID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *stubPaymentStore) GetActiveByOrderID(_ context.Context, orderID string) (*Payment, error) {
	for _, p := range s.byID {
		if p.OrderID == orderID && p.Status != PaymentFailed {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *stubPaymentStore) Update(_ context.Context, p *Payment) error {
	if _, ok := s.byID[p.ID]; !ok {
		return ErrNotFound
	}
	cp := *p
	s.byID[p.ID] = &cp
	s.byIntent[p.IntentID] = &cp
	return nil
}

type stubProvider struct {
	sessionErr error
	refundErr  error
	refunded   []decimal.Decimal
}

func (p *stubProvider) Name() string { return "stubpay" }

func (p *stubProvider) CreateSession(_ context.Context, req SessionRequest) (Session, error) {
	if p.sessionErr != nil {
		return Session{}, p.sessionErr
	}
	return Session{IntentID: "pi_" + req.OrderID, RedirectURL: "https://pay.test/" + req.OrderID}, nil
}

func (p *stubProvider) Refund(_ context.Context, req RefundRequest) (string, error) {
	if p.refundErr != nil {
		return "", p.refundErr
	}
	p.refunded = append(p.refunded, req.Amount)
	return "re_1", nil
}

type stubOrderTransitions struct {
	paidAmounts map[string]decimal.Decimal
	markPaidErr error
	cancelled   map[string]string
}

func newStubOrderTransitions() *stubOrderTransitions {
	return &stubOrderTransitions{paidAmounts: map[string]decimal.Decimal{}, cancelled: map[string]string{}}
}

func (o *stubOrderTransitions) MarkPaid(_ context.Context, orderID, _ string, amount decimal.Decimal) error {
	if o.markPaidErr != nil {
		return o.markPaidErr
	}
	o.paidAmounts[orderID] = amount
	return nil
}

func (o *stubOrderTransitions) Cancel(_ context.Context, orderID, reason string) error {
	o.cancelled[orderID] = reason
	return nil
}

func testOrder() *orders.Order {
	return &orders.Order{
		ID:           "ord-1",
		OrderNo:      "ORD-20260830-000001",
		ExternalID:   "ext-1",
		UserID:       "u1",
		ActualAmount: dec("42.48"),
	}
}

func newTestPayments(store Store, provider Provider, transitions OrderTransitions) *Service {
	return NewService(Service{
		Store:       store,
		Provider:    provider,
		Orders:      transitions,
		ServiceName: "payments-test",
	})
}

func TestInitiateCheckoutCreatesPendingPayment(t *testing.T) {
	store := newStubPaymentStore()
	svc := newTestPayments(store, &stubProvider{}, newStubOrderTransitions())

	session, err := svc.InitiateCheckout(context.Background(), testOrder())
	require.NoError(t, err)
	assert.Equal(t, "stubpay", session.Provider)
	assert.Equal(t, "https://pay.test/ord-1", session.RedirectURL)

	p, err := store.Get(context.Background(), session.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, PaymentPending, p.Status)
	assert.Equal(t, "pi_ord-1", p.IntentID)
	assert.True(t, p.Amount.Equal(dec("42.48")))
}

func TestInitiateCheckoutPropagatesGatewayError(t *testing.T) {
	store := newStubPaymentStore()
	svc := newTestPayments(store, &stubProvider{sessionErr: errors.New("gateway down")}, newStubOrderTransitions())

	_, err := svc.InitiateCheckout(context.Background(), testOrder())
	require.Error(t, err)
	assert.Empty(t, store.byID, "no payment record without a session")
}

func TestCallbackSuccessMarksOrderPaid(t *testing.T) {
	store := newStubPaymentStore()
	transitions := newStubOrderTransitions()
	svc := newTestPayments(store, &stubProvider{}, transitions)

	session, err := svc.InitiateCheckout(context.Background(), testOrder())
	require.NoError(t, err)

	err = svc.HandleCallback(context.Background(), Callback{
		EventID:   "evt-1",
		IntentID:  "pi_ord-1",
		Succeeded: true,
		Amount:    dec("42.48"),
	})
	require.NoError(t, err)

	assert.True(t, transitions.paidAmounts["ord-1"].Equal(dec("42.48")))
	p, _ := store.Get(context.Background(), session.PaymentID)
	assert.Equal(t, PaymentSucceeded, p.Status)
	assert.NotNil(t, p.PaidAt)
}

func TestCallbackDuplicateDeliveryIsNoop(t *testing.T) {
	store := newStubPaymentStore()
	transitions := newStubOrderTransitions()
	svc := newTestPayments(store, &stubProvider{}, transitions)

	_, err := svc.InitiateCheckout(context.Background(), testOrder())
	require.NoError(t, err)

	cb := Callback{EventID: "evt-1", IntentID: "pi_ord-1", Succeeded: true, Amount: dec("42.48")}
	require.NoError(t, svc.HandleCallback(context.Background(), cb))

	transitions.markPaidErr = errors.New("must not be called again")
	assert.NoError(t, svc.HandleCallback(context.Background(), cb))
}

func TestCallbackAmountMismatchFailsPaymentAndCancelsOrder(t *testing.T) {
	store := newStubPaymentStore()
	transitions := newStubOrderTransitions()
	transitions.markPaidErr = orders.ErrAmountMismatch
	svc := newTestPayments(store, &stubProvider{}, transitions)

	session, err := svc.InitiateCheckout(context.Background(), testOrder())
	require.NoError(t, err)

	err = svc.HandleCallback(context.Background(), Callback{
		EventID:   "evt-1",
		IntentID:  "pi_ord-1",
		Succeeded: true,
		Amount:    dec("1.00"),
	})
	require.NoError(t, err, "a mismatched amount is handled, not bubbled")

	p, _ := store.Get(context.Background(), session.PaymentID)
	assert.Equal(t, PaymentFailed, p.Status)
	assert.Equal(t, "PAYMENT_FAILED", transitions.cancelled["ord-1"])
}

func TestCallbackFailureCancelsOrder(t *testing.T) {
	store := newStubPaymentStore()
	transitions := newStubOrderTransitions()
	svc := newTestPayments(store, &stubProvider{}, transitions)

	session, err := svc.InitiateCheckout(context.Background(), testOrder())
	require.NoError(t, err)

	err = svc.HandleCallback(context.Background(), Callback{
		EventID:  "evt-1",
		IntentID: "pi_ord-1",
		Reason:   "card_declined",
	})
	require.NoError(t, err)

	p, _ := store.Get(context.Background(), session.PaymentID)
	assert.Equal(t, PaymentFailed, p.Status)
	assert.Equal(t, "card_declined", p.FailureReason)
	assert.Equal(t, "PAYMENT_FAILED", transitions.cancelled["ord-1"])
}

func TestRefundSucceededPayment(t *testing.T) {
	store := newStubPaymentStore()
	provider := &stubProvider{}
	transitions := newStubOrderTransitions()
	svc := newTestPayments(store, provider, transitions)

	session, err := svc.InitiateCheckout(context.Background(), testOrder())
	require.NoError(t, err)
	require.NoError(t, svc.HandleCallback(context.Background(),
		Callback{EventID: "evt-1", IntentID: "pi_ord-1", Succeeded: true, Amount: dec("42.48")}))

	require.NoError(t, svc.Refund(context.Background(), "ord-1", dec("20.00")))

	require.Len(t, provider.refunded, 1)
	assert.True(t, provider.refunded[0].Equal(dec("20.00")))

	p, _ := store.Get(context.Background(), session.PaymentID)
	assert.Equal(t, PaymentRefunded, p.Status)
	assert.True(t, p.RefundedAmount.Equal(dec("20.00")))
	assert.NotNil(t, p.RefundedAt)
}

func TestRefundRejectsUnsettledPayment(t *testing.T) {
	store := newStubPaymentStore()
	svc := newTestPayments(store, &stubProvider{}, newStubOrderTransitions())

	_, err := svc.InitiateCheckout(context.Background(), testOrder())
	require.NoError(t, err)

	err = svc.Refund(context.Background(), "ord-1", dec("10.00"))
	assert.ErrorIs(t, err, ErrAlreadySettled)
}

func TestMinorUnits(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"42.48", 4248},
		{"0.99", 99},
		{"10", 1000},
		{"19.995", 2000},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, minorUnits(dec(c.in)), "minorUnits(%s)", c.in)
	}
}
