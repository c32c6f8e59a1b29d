package events

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated   = "OrderCreated"
	EventOrderPaid      = "OrderPaid"
	EventPaymentFailed  = "PaymentFailed"
	EventOrderCancelled = "OrderCancelled"
	EventOrderShipped   = "OrderShipped"
	EventOrderCompleted = "OrderCompleted"
	EventOrderRefunded  = "OrderRefunded"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

type ItemQty struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type OrderCreatedPayload struct {
	OrderID     string    `json:"order_id"`
	OrderNo     string    `json:"order_no"`
	UserID      string    `json:"user_id"`
	Items       []ItemQty `json:"items"`
	TotalAmount string    `json:"total_amount"`
}

type OrderPaidPayload struct {
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
	Amount    string `json:"amount"`
}

type PaymentFailedPayload struct {
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
	Reason    string `json:"reason"`
}

// Cancel reasons carried in OrderCancelledPayload.
const (
	CancelReasonUser          = "USER_REQUEST"
	CancelReasonExpired       = "RESERVATION_EXPIRED"
	CancelReasonPaymentFailed = "PAYMENT_FAILED"
)

type OrderCancelledPayload struct {
	OrderID string    `json:"order_id"`
	Reason  string    `json:"reason"`
	Items   []ItemQty `json:"items,omitempty"`
}

type OrderShippedPayload struct {
	OrderID string    `json:"order_id"`
	Items   []ItemQty `json:"items"`
}

type OrderCompletedPayload struct {
	OrderID string `json:"order_id"`
}

type OrderRefundedPayload struct {
	OrderID string `json:"order_id"`
	Amount  string `json:"amount"`
}
