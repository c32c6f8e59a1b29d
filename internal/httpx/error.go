package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lintangstore/go-storefront/internal/catalog"
	"github.com/lintangstore/go-storefront/internal/orders"
	"github.com/lintangstore/go-storefront/internal/payments"
	"github.com/lintangstore/go-storefront/internal/users"
)

// errorBody is the JSON error envelope. The code field is machine-readable
// so clients can branch on it instead of parsing message strings.
type errorBody struct {
	Code    string         `json:"error"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Code: code, Message: message})
}

// writeDomainError maps domain sentinel errors onto status + code. Unknown
// errors become an opaque 500 so internals never leak to clients.
func writeDomainError(w http.ResponseWriter, err error) {
	var shortfall *catalog.ShortfallError
	if errors.As(err, &shortfall) {
		writeJSON(w, http.StatusConflict, errorBody{
			Code:    "INSUFFICIENT_STOCK",
			Message: err.Error(),
			Details: map[string]any{
				"product_id": shortfall.Shortfall.ProductID,
				"required":   shortfall.Shortfall.Required,
				"available":  shortfall.Shortfall.Available,
			},
		})
		return
	}

	switch {
	case errors.Is(err, catalog.ErrInsufficientStock):
		writeError(w, http.StatusConflict, "INSUFFICIENT_STOCK", err.Error())
	case errors.Is(err, orders.ErrPriceChanged):
		writeError(w, http.StatusConflict, "PRICE_CHANGED", err.Error())
	case errors.Is(err, orders.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "INVALID_TRANSITION", err.Error())
	case errors.Is(err, orders.ErrCheckoutLocked):
		writeError(w, http.StatusConflict, "CHECKOUT_LOCKED", err.Error())
	case errors.Is(err, orders.ErrAmountMismatch):
		writeError(w, http.StatusConflict, "AMOUNT_MISMATCH", err.Error())
	case errors.Is(err, orders.ErrProductNotSellable):
		writeError(w, http.StatusConflict, "PRODUCT_UNAVAILABLE", err.Error())
	case errors.Is(err, orders.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "ORDER_EXISTS", err.Error())
	case errors.Is(err, payments.ErrAlreadySettled):
		writeError(w, http.StatusConflict, "ALREADY_SETTLED", err.Error())
	case errors.Is(err, users.ErrEmailTaken):
		writeError(w, http.StatusConflict, "EMAIL_TAKEN", err.Error())
	case errors.Is(err, users.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", err.Error())
	case errors.Is(err, orders.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case errors.Is(err, orders.ErrNotFound),
		errors.Is(err, users.ErrNotFound),
		errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, catalog.ErrCategoryNotFound),
		errors.Is(err, payments.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}
