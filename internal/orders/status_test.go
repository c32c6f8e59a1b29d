package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransitionTable(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusPendingPayment, StatusPaid},
		{StatusPendingPayment, StatusCancelled},
		{StatusPaid, StatusShipped},
		{StatusPaid, StatusCancelled},
		{StatusShipped, StatusDelivered},
		{StatusDelivered, StatusCompleted},
		{StatusDelivered, StatusReturned},
		{StatusReturned, StatusRefunded},
	}
	for _, c := range allowed {
		assert.True(t, CanTransition(c.from, c.to), "%s -> %s should be allowed", c.from, c.to)
	}

	denied := []struct{ from, to Status }{
		{StatusPendingPayment, StatusShipped},
		{StatusPendingPayment, StatusDelivered},
		{StatusPaid, StatusDelivered},
		{StatusPaid, StatusCompleted},
		{StatusShipped, StatusCancelled},
		{StatusDelivered, StatusCancelled},
		{StatusCancelled, StatusPaid},
		{StatusCompleted, StatusReturned},
		{StatusRefunded, StatusPendingPayment},
	}
	for _, c := range denied {
		assert.False(t, CanTransition(c.from, c.to), "%s -> %s should be denied", c.from, c.to)
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusCancelled, StatusRefunded} {
		assert.True(t, s.Terminal(), "%s should be terminal", s)
	}
	for _, s := range []Status{StatusPendingPayment, StatusPaid, StatusShipped, StatusDelivered, StatusReturned} {
		assert.False(t, s.Terminal(), "%s should not be terminal", s)
	}
}

func TestPredicatesAgreeWithTable(t *testing.T) {
	o := &Order{Status: StatusPendingPayment, ShippingStatus: ShippingNotShipped}
	assert.True(t, o.CanCancel())
	assert.False(t, o.CanShip())

	o.Status = StatusPaid
	assert.True(t, o.CanCancel())
	assert.True(t, o.CanShip())

	// once shipped the paid order is no longer cancellable
	o.ShippingStatus = ShippingShipped
	assert.False(t, o.CanCancel())

	o.Status = StatusDelivered
	assert.True(t, o.CanReturn())
	assert.True(t, o.CanComplete())
	assert.True(t, o.CanReview())

	o.Status = StatusReturned
	assert.True(t, o.CanRefund())
	assert.False(t, o.CanReview())
}
