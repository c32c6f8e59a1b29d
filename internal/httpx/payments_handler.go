package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lintangstore/go-storefront/internal/payments"
)

// EventDedup tracks gateway event ids; redisx.Dedup in production.
type EventDedup interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

type PaymentsHandler struct {
	Service *payments.Service
	Dedup   EventDedup
	Log     *zap.Logger
}

// webhookReq is the normalised gateway notification. Providers that sign
// their payloads are verified upstream at the edge.
type webhookReq struct {
	EventID  string          `json:"event_id"`
	IntentID string          `json:"intent_id"`
	Status   string          `json:"status"`
	Amount   decimal.Decimal `json:"amount"`
	Reason   string          `json:"reason"`
}

func (h *PaymentsHandler) Register(r *chi.Mux) {
	r.Post("/payments/webhook", h.webhook)
	r.Get("/payments/{id}", h.get)
}

// webhook is idempotent per gateway event id: replays are acknowledged
// without touching the payment again.
func (h *PaymentsHandler) webhook(w http.ResponseWriter, r *http.Request) {
	var req webhookReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid json")
		return
	}
	if req.EventID == "" || req.IntentID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "event_id and intent_id required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if h.Dedup != nil {
		seen, err := h.Dedup.Seen(ctx, req.EventID)
		if err == nil && seen {
			h.Log.Info("duplicate webhook event ignored", zap.String("event_id", req.EventID))
			w.WriteHeader(http.StatusOK)
			return
		}
	}

	err := h.Service.HandleCallback(ctx, payments.Callback{
		EventID:   req.EventID,
		IntentID:  req.IntentID,
		Succeeded: req.Status == "succeeded",
		Amount:    req.Amount,
		Reason:    req.Reason,
	})
	if err != nil {
		// drop the dedup mark so the provider's retry gets processed
		if h.Dedup != nil {
			if ferr := h.Dedup.Forget(ctx, req.EventID); ferr != nil {
				h.Log.Warn("forget webhook event failed", zap.String("event_id", req.EventID), zap.Error(ferr))
			}
		}
		h.Log.Error("webhook handling failed",
			zap.String("event_id", req.EventID),
			zap.String("intent_id", req.IntentID),
			zap.Error(err))
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type paymentResp struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"order_id"`
	Provider  string          `json:"provider"`
	IntentID  string          `json:"intent_id"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"`
	Reason    string          `json:"failure_reason,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func (h *PaymentsHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.Service.Store.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, paymentResp{
		ID:        p.ID,
		OrderID:   p.OrderID,
		Provider:  p.Provider,
		IntentID:  p.IntentID,
		Amount:    p.Amount,
		Status:    string(p.Status),
		Reason:    p.FailureReason,
		CreatedAt: p.CreatedAt,
	})
}
