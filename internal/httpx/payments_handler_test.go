package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lintangstore/go-storefront/internal/payments"
)

type memDedup struct {
	seen map[string]bool
}

func (d *memDedup) Seen(_ context.Context, id string) (bool, error) {
	if d.seen[id] {
		return true, nil
	}
	d.seen[id] = true
	return false, nil
}

func (d *memDedup) Forget(_ context.Context, id string) error {
	delete(d.seen, id)
	return nil
}

type flakyPaymentStore struct {
	payment   *payments.Payment
	failures  int
	getCalls  int
	lastState payments.PaymentStatus
}

func (s *flakyPaymentStore) Create(context.Context, *payments.Payment) error { return nil }

func (s *flakyPaymentStore) Get(_ context.Context, id string) (*payments.Payment, error) {
	cp := *s.payment
	return &cp, nil
}

func (s *flakyPaymentStore) GetByIntentID(_ context.Context, intentID string) (*payments.Payment, error) {
	s.getCalls++
	if s.failures > 0 {
		s.failures--
		return nil, errors.New("connection reset")
	}
	cp := *s.payment
	return &cp, nil
}

func (s *flakyPaymentStore) GetActiveByOrderID(_ context.Context, orderID string) (*payments.Payment, error) {
	cp := *s.payment
	return &cp, nil
}

func (s *flakyPaymentStore) Update(_ context.Context, p *payments.Payment) error {
	s.lastState = p.Status
	cp := *p
	s.payment = &cp
	return nil
}

type recordingOrders struct {
	paid      []string
	cancelled []string
}

func (o *recordingOrders) MarkPaid(_ context.Context, orderID, _ string, _ decimal.Decimal) error {
	o.paid = append(o.paid, orderID)
	return nil
}

func (o *recordingOrders) Cancel(_ context.Context, orderID, _ string) error {
	o.cancelled = append(o.cancelled, orderID)
	return nil
}

func newWebhookHandler(store payments.Store, orders payments.OrderTransitions, dedup EventDedup) *PaymentsHandler {
	return &PaymentsHandler{
		Service: payments.NewService(payments.Service{
			Store:  store,
			Orders: orders,
			Log:    zap.NewNop(),
		}),
		Dedup: dedup,
		Log:   zap.NewNop(),
	}
}

func postWebhook(t *testing.T, h *PaymentsHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/payments/webhook", strings.NewReader(body))
	h.webhook(rec, req)
	return rec
}

const succeededEvent = `{"event_id":"evt-1","intent_id":"pi_1","status":"succeeded","amount":"30.00"}`

// A transient store failure must not consume the event id: the gateway
// retries with the same id and the retry has to go through.
func TestWebhookRetryAfterTransientFailure(t *testing.T) {
	store := &flakyPaymentStore{
		payment:  &payments.Payment{ID: "pay-1", OrderID: "o1", IntentID: "pi_1", Status: payments.PaymentPending},
		failures: 1,
	}
	ord := &recordingOrders{}
	h := newWebhookHandler(store, ord, &memDedup{seen: map[string]bool{}})

	rec := postWebhook(t, h, succeededEvent)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, ord.paid)

	rec = postWebhook(t, h, succeededEvent)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"o1"}, ord.paid)
	assert.Equal(t, payments.PaymentSucceeded, store.lastState)
}

func TestWebhookDuplicateEventShortCircuits(t *testing.T) {
	store := &flakyPaymentStore{
		payment: &payments.Payment{ID: "pay-1", OrderID: "o1", IntentID: "pi_1", Status: payments.PaymentPending},
	}
	ord := &recordingOrders{}
	h := newWebhookHandler(store, ord, &memDedup{seen: map[string]bool{}})

	rec := postWebhook(t, h, succeededEvent)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postWebhook(t, h, succeededEvent)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, store.getCalls, "replay must not reach the store")
	assert.Len(t, ord.paid, 1)
}

func TestWebhookRejectsMissingIDs(t *testing.T) {
	h := newWebhookHandler(&flakyPaymentStore{payment: &payments.Payment{}}, &recordingOrders{}, nil)

	rec := postWebhook(t, h, `{"status":"succeeded"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
