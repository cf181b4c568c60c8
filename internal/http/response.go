package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/fjod/go_storefront/internal/cart"
	"github.com/fjod/go_storefront/internal/catalog"
	"github.com/fjod/go_storefront/internal/checkout"
	"github.com/fjod/go_storefront/internal/client"
	"github.com/fjod/go_storefront/pkg/circuitbreaker"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxBodySize = 1 << 20 // 1MB

func init() {
	// prices and totals reach the browser as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true
}

type ErrorResponse struct {
	Error   string                `json:"error"`
	Code    string                `json:"code,omitempty"`
	Details string                `json:"details,omitempty"`
	Fields  []checkout.FieldError `json:"fields,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleError converts errors of the cart, catalog, checkout and client
// packages to an HTTP answer. Messages of backend errors are passed through.
func handleError(w http.ResponseWriter, err error) {
	var (
		validationErr *checkout.ValidationError
		apiErr        *client.APIError
		transportErr  *client.TransportError
	)

	switch {
	case errors.As(err, &validationErr):
		respondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:  validationErr.Error(),
			Code:   "validation_failed",
			Fields: validationErr.Fields,
		})
	case errors.Is(err, checkout.ErrEmptyCart):
		respondError(w, http.StatusBadRequest, "empty_cart", err.Error())
	case errors.Is(err, checkout.ErrCheckoutInProgress):
		respondError(w, http.StatusConflict, "checkout_in_progress", err.Error())
	case errors.Is(err, cart.ErrInvalidQuantity), errors.Is(err, cart.ErrInvalidVariant):
		respondError(w, http.StatusBadRequest, "invalid_item", err.Error())
	case errors.Is(err, catalog.ErrProductNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, circuitbreaker.ErrOpen):
		respondError(w, http.StatusServiceUnavailable, "service_unavailable", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout", err.Error())
	case errors.As(err, &apiErr):
		respondError(w, http.StatusBadGateway, "upstream_rejected", apiErr.Error())
	case errors.As(err, &transportErr):
		respondError(w, http.StatusBadGateway, "upstream_unavailable", transportErr.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(dst)
}
