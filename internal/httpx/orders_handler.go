package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/lintangstore/go-storefront/internal/inventory"
	"github.com/lintangstore/go-storefront/internal/orders"
	"github.com/lintangstore/go-storefront/internal/redisx"
)

// ReservationReader exposes an order's stock holds for support tooling.
type ReservationReader interface {
	ListForOrder(ctx context.Context, orderID string) ([]inventory.Reservation, error)
}

type OrdersHandler struct {
	Service      *orders.Service
	Reservations ReservationReader
	Redis        *redis.Client
}

type checkoutItemReq struct {
	ProductID   string          `json:"product_id"`
	Qty         int             `json:"qty"`
	QuotedPrice decimal.Decimal `json:"quoted_price"`
}

type checkoutReq struct {
	ExternalID  string            `json:"external_id"`
	UserID      string            `json:"user_id"`
	Items       []checkoutItemReq `json:"items"`
	ShippingFee decimal.Decimal   `json:"shipping_fee"`
	Discount    decimal.Decimal   `json:"discount"`
}

type checkoutResp struct {
	Order      orderResp `json:"order"`
	Idempotent bool      `json:"idempotent"`

	PaymentID   string `json:"payment_id,omitempty"`
	Provider    string `json:"payment_provider,omitempty"`
	RedirectURL string `json:"payment_redirect_url,omitempty"`
}

type orderItemResp struct {
	ID           string          `json:"id"`
	ProductID    string          `json:"product_id"`
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Qty          int             `json:"qty"`
	ReturnedQty  int             `json:"returned_qty"`
	RefundAmount decimal.Decimal `json:"refund_amount"`
	Subtotal     decimal.Decimal `json:"subtotal"`
}

type orderResp struct {
	ID             string          `json:"id"`
	OrderNo        string          `json:"order_no"`
	UserID         string          `json:"user_id"`
	Status         string          `json:"status"`
	ShippingStatus string          `json:"shipping_status"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	ShippingFee    decimal.Decimal `json:"shipping_fee"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	ActualAmount   decimal.Decimal `json:"actual_amount"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	CancelReason   string          `json:"cancel_reason,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	Items          []orderItemResp `json:"items,omitempty"`
}

func toOrderResp(o *orders.Order) orderResp {
	resp := orderResp{
		ID:             o.ID,
		OrderNo:        o.OrderNo,
		UserID:         o.UserID,
		Status:         string(o.Status),
		ShippingStatus: string(o.ShippingStatus),
		TotalAmount:    o.TotalAmount,
		ShippingFee:    o.ShippingFee,
		DiscountAmount: o.DiscountAmount,
		ActualAmount:   o.ActualAmount,
		PaidAmount:     o.PaidAmount,
		CancelReason:   o.CancelReason,
		CreatedAt:      o.CreatedAt,
	}
	for _, it := range o.Items {
		resp.Items = append(resp.Items, orderItemResp{
			ID:           it.ID,
			ProductID:    it.ProductID,
			SKU:          it.SKU,
			Name:         it.Name,
			UnitPrice:    it.UnitPrice,
			Qty:          it.Qty,
			ReturnedQty:  it.ReturnedQty,
			RefundAmount: it.RefundAmount,
			Subtotal:     it.Subtotal,
		})
	}
	return resp
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/checkout", h.checkout)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getStatus)
	r.Get("/orders/{id}/reservations", h.listReservations)
	r.Get("/users/{id}/orders", h.listUserOrders)
	r.Post("/orders/{id}/cancel", h.cancel)
	r.Post("/orders/{id}/ship", h.transition((*orders.Service).Ship))
	r.Post("/orders/{id}/deliver", h.transition((*orders.Service).Deliver))
	r.Post("/orders/{id}/complete", h.transition((*orders.Service).Complete))
	r.Post("/orders/{id}/return", h.returnItems)
	r.Delete("/orders/{id}", h.transition((*orders.Service).Delete))
	r.Post("/orders/{id}/refund", h.transition((*orders.Service).Refund))
}

func (h *OrdersHandler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	items := make([]orders.CheckoutItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, orders.CheckoutItem{
			ProductID:   it.ProductID,
			Qty:         it.Qty,
			QuotedPrice: it.QuotedPrice,
		})
	}

	result, err := h.Service.Checkout(ctx, orders.CheckoutRequest{
		ExternalID:  req.ExternalID,
		UserID:      req.UserID,
		Items:       items,
		ShippingFee: req.ShippingFee,
		Discount:    req.Discount,
		TraceID:     r.Header.Get("X-Request-Id"),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	h.cacheStatus(ctx, result.Order)

	writeJSON(w, http.StatusCreated, checkoutResp{
		Order:       toOrderResp(result.Order),
		Idempotent:  result.Idempotent,
		PaymentID:   result.Payment.PaymentID,
		Provider:    result.Payment.Provider,
		RedirectURL: result.Payment.RedirectURL,
	})
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Service.Get(ctx, orderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusOK, toOrderResp(o))
}

// getStatus serves the cached status line without touching the database
// when the cache is warm.
func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
		writeJSON(w, http.StatusOK, json.RawMessage(s))
		return
	}

	o, err := h.Service.Get(ctx, orderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusOK, map[string]any{"status": o.Status, "order_no": o.OrderNo})
}

func (h *OrdersHandler) listUserOrders(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	list, err := h.Service.ListByUser(ctx, userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]orderResp, 0, len(list))
	for i := range list {
		out = append(out, toOrderResp(&list[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

type reservationResp struct {
	ProductID string    `json:"product_id"`
	Qty       int       `json:"qty"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *OrdersHandler) listReservations(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if _, err := h.Service.Get(ctx, orderID); err != nil {
		writeDomainError(w, err)
		return
	}
	list, err := h.Reservations.ListForOrder(ctx, orderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]reservationResp, 0, len(list))
	for _, res := range list {
		out = append(out, reservationResp{
			ProductID: res.ProductID,
			Qty:       res.Qty,
			Status:    string(res.Status),
			ExpiresAt: res.ExpiresAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type cancelReq struct {
	Reason string `json:"reason"`
}

func (h *OrdersHandler) cancel(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	var req cancelReq
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Reason == "" {
		req.Reason = "USER_REQUEST"
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Service.Cancel(ctx, orderID, req.Reason); err != nil {
		writeDomainError(w, err)
		return
	}
	h.invalidateStatus(ctx, orderID)
	w.WriteHeader(http.StatusNoContent)
}

type returnReq struct {
	Lines []struct {
		ItemID string `json:"item_id"`
		Qty    int    `json:"qty"`
	} `json:"lines"`
}

func (h *OrdersHandler) returnItems(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	var req returnReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid json")
		return
	}
	lines := make([]orders.ReturnLine, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, orders.ReturnLine{ItemID: l.ItemID, Qty: l.Qty})
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Service.Return(ctx, orderID, lines); err != nil {
		writeDomainError(w, err)
		return
	}
	h.invalidateStatus(ctx, orderID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrdersHandler) transition(op func(*orders.Service, context.Context, string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID := chi.URLParam(r, "id")

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := op(h.Service, ctx, orderID); err != nil {
			writeDomainError(w, err)
			return
		}
		h.invalidateStatus(ctx, orderID)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *OrdersHandler) cacheStatus(ctx context.Context, o *orders.Order) {
	if h.Redis == nil {
		return
	}
	body, _ := json.Marshal(map[string]any{"status": o.Status, "order_no": o.OrderNo})
	key := fmt.Sprintf(redisx.KeyOrderStatus, o.ID)
	_ = h.Redis.Set(ctx, key, body, redisx.TTLStatusCache).Err()
}

func (h *OrdersHandler) invalidateStatus(ctx context.Context, orderID string) {
	if h.Redis == nil {
		return
	}
	_ = h.Redis.Del(ctx, fmt.Sprintf(redisx.KeyOrderStatus, orderID)).Err()
}
