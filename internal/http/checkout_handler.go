package http

import (
	"errors"
	"net/http"

	"github.com/fjod/go_storefront/domain"
	"github.com/fjod/go_storefront/internal/checkout"
	"github.com/fjod/go_storefront/pkg/logger"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type CheckoutHandler struct {
	sessions SessionStore
	logger   *zap.Logger
}

func NewCheckoutHandler(sessions SessionStore, l *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		sessions: sessions,
		logger:   l,
	}
}

type CheckoutRequestDTO struct {
	CardNumber string `json:"cardNumber"`
	CardHolder string `json:"cardHolder"`
	ExpiryDate string `json:"expiryDate"`
	CVV        string `json:"cvv"`
	Email      string `json:"email"`
	Address    string `json:"address"`
}

func (d CheckoutRequestDTO) form() domain.CheckoutForm {
	return domain.CheckoutForm{
		Payment: domain.PaymentDetails{
			CardNumber: d.CardNumber,
			CardHolder: d.CardHolder,
			ExpiryDate: d.ExpiryDate,
			CVV:        d.CVV,
		},
		Shipping: domain.ShippingDetails{
			Email:   d.Email,
			Address: d.Address,
		},
	}
}

type CheckoutResponseDTO struct {
	Status     string           `json:"status"`
	CheckoutID string           `json:"checkoutId,omitempty"`
	OrderID    string           `json:"orderId,omitempty"`
	Total      *decimal.Decimal `json:"total,omitempty"`
	Message    string           `json:"message,omitempty"`
	Error      string           `json:"error,omitempty"`
}

func newCheckoutResponse(state checkout.State) CheckoutResponseDTO {
	resp := CheckoutResponseDTO{
		Status: state.Status.String(),
		Error:  state.Error,
	}
	if res := state.Result; res != nil {
		total := res.Total
		resp.CheckoutID = res.CheckoutID
		resp.OrderID = res.OrderID
		resp.Total = &total
		resp.Message = res.Message
	}
	return resp
}

// POST /api/v1/checkout
func (h *CheckoutHandler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, ok := SessionFromContext(ctx)
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}

	var req CheckoutRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	orchestrator, err := h.sessions.Orchestrator(ctx, session.ID)
	if err != nil {
		handleError(w, err)
		return
	}

	result, err := orchestrator.Submit(ctx, session, req.form())
	if err != nil {
		var stepErr *checkout.StepError
		if errors.As(err, &stepErr) {
			respondJSON(w, http.StatusBadGateway, ErrorResponse{
				Error:   stepErr.Error(),
				Code:    "checkout_failed",
				Details: string(stepErr.Step),
			})
			return
		}
		handleError(w, err)
		return
	}

	// the cart was cleared on success
	if err := h.sessions.Save(ctx, session.ID); err != nil {
		logger.FromContext(ctx, h.logger).Warn("failed to save cart snapshot", zap.String("session_id", session.ID), zap.Error(err))
	}

	respondJSON(w, http.StatusCreated, newCheckoutResponse(checkout.State{
		Status: domain.CheckoutStatusSucceeded,
		Result: result,
	}))
}

// GET /api/v1/checkout
func (h *CheckoutHandler) Status(w http.ResponseWriter, r *http.Request) {
	orchestrator, ok := h.orchestrator(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, newCheckoutResponse(orchestrator.Status()))
}

// POST /api/v1/checkout/dismiss
func (h *CheckoutHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	orchestrator, ok := h.orchestrator(w, r)
	if !ok {
		return
	}
	if err := orchestrator.Dismiss(); err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newCheckoutResponse(orchestrator.Status()))
}

func (h *CheckoutHandler) orchestrator(w http.ResponseWriter, r *http.Request) (*checkout.Orchestrator, bool) {
	session, ok := SessionFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return nil, false
	}
	orchestrator, err := h.sessions.Orchestrator(r.Context(), session.ID)
	if err != nil {
		handleError(w, err)
		return nil, false
	}
	return orchestrator, true
}
