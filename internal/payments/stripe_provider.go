package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type stripeRefundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

// StripeProvider implements Provider on the Stripe API.
type StripeProvider struct {
	sessions   stripeSessionAPI
	refunds    stripeRefundAPI
	successURL string
	cancelURL  string
}

type StripeConfig struct {
	APIKey     string
	SuccessURL string
	CancelURL  string

	// test seam; when set, APIKey may be empty
	Sessions stripeSessionAPI
	Refunds  stripeRefundAPI
}

func NewStripeProvider(cfg StripeConfig) (*StripeProvider, error) {
	p := &StripeProvider{
		sessions:   cfg.Sessions,
		refunds:    cfg.Refunds,
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
	}
	if p.sessions == nil || p.refunds == nil {
		apiKey := strings.TrimSpace(cfg.APIKey)
		if apiKey == "" {
			return nil, errors.New("stripe: api key is required")
		}
		sc := client.New(apiKey, nil)
		p.sessions = sc.CheckoutSessions
		p.refunds = sc.Refunds
	}
	return p, nil
}

func (p *StripeProvider) Name() string { return "stripe" }

func (p *StripeProvider) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	currency := strings.ToLower(req.Currency)
	if currency == "" {
		currency = "usd"
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(p.successURL),
		CancelURL:  stripe.String(p.cancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(currency),
				UnitAmount: stripe.Int64(minorUnits(req.Amount)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String("Order " + req.OrderNo),
				},
			},
		}},
		Metadata: map[string]string{
			"order_id": req.OrderID,
			"order_no": req.OrderNo,
			"user_id":  req.UserID,
		},
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}

	sess, err := p.sessions.New(params)
	if err != nil {
		return Session{}, fmt.Errorf("stripe create session: %w", err)
	}

	out := Session{
		IntentID:    sess.ID,
		RedirectURL: sess.URL,
	}
	if sess.PaymentIntent != nil {
		out.IntentID = sess.PaymentIntent.ID
		out.ClientID = sess.PaymentIntent.ClientSecret
	}
	return out, nil
}

func (p *StripeProvider) Refund(ctx context.Context, req RefundRequest) (string, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.IntentID),
		Amount:        stripe.Int64(minorUnits(req.Amount)),
	}
	params.Context = ctx

	refund, err := p.refunds.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe refund: %w", err)
	}
	return refund.ID, nil
}

// minorUnits converts a decimal amount to the gateway's integer cents.
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
