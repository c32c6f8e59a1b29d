package payments

import (
	"context"

	"github.com/shopspring/decimal"
)

// Session is what the gateway hands back for the client to complete
// payment with.
type Session struct {
	IntentID    string
	RedirectURL string
	ClientID    string
}

type SessionRequest struct {
	OrderID        string
	OrderNo        string
	UserID         string
	Amount         decimal.Decimal
	Currency       string
	IdempotencyKey string
}

type RefundRequest struct {
	IntentID string
	Amount   decimal.Decimal
	Currency string
}

// Provider abstracts the payment gateway. The Stripe implementation is the
// production one; tests plug in a fake.
type Provider interface {
	Name() string
	CreateSession(ctx context.Context, req SessionRequest) (Session, error)
	Refund(ctx context.Context, req RefundRequest) (string, error)
}
