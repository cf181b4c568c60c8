package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_storefront/domain"
	"github.com/fjod/go_storefront/internal/journal"
	"github.com/shopspring/decimal"
)

type OrdersService interface {
	UserOrders(ctx context.Context, userID string) ([]domain.Order, error)
}

// AttemptLister reads the checkout journal of a session.
type AttemptLister interface {
	ListAttempts(ctx context.Context, sessionID string) ([]*journal.Attempt, error)
}

type OrdersHandler struct {
	orders   OrdersService
	attempts AttemptLister
	timeout  time.Duration
}

func NewOrdersHandler(orders OrdersService, attempts AttemptLister, timeout time.Duration) *OrdersHandler {
	return &OrdersHandler{
		orders:   orders,
		attempts: attempts,
		timeout:  timeout,
	}
}

type AttemptResponseDTO struct {
	ID           string           `json:"id"`
	Status       string           `json:"status"`
	Step         string           `json:"step"`
	OrderID      string           `json:"orderId,omitempty"`
	ItemCount    int              `json:"itemCount"`
	LocalTotal   decimal.Decimal  `json:"localTotal"`
	ChargedTotal *decimal.Decimal `json:"chargedTotal,omitempty"`
	Error        string           `json:"error,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

// GET /api/v1/orders
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	session, ok := SessionFromContext(r.Context())
	if !ok || session.IsGuest() {
		respondError(w, http.StatusUnauthorized, "unauthorized", "log in to see your orders")
		return
	}

	orders, err := h.orders.UserOrders(ctx, session.UserID)
	if err != nil {
		handleError(w, err)
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	respondJSON(w, http.StatusOK, orders)
}

// GET /api/v1/checkout/history
func (h *OrdersHandler) ListAttempts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	session, ok := SessionFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}
	if h.attempts == nil {
		respondJSON(w, http.StatusOK, []AttemptResponseDTO{})
		return
	}

	attempts, err := h.attempts.ListAttempts(ctx, session.ID)
	if err != nil {
		handleError(w, err)
		return
	}

	dtos := make([]AttemptResponseDTO, 0, len(attempts))
	for _, a := range attempts {
		dtos = append(dtos, convertAttempt(a))
	}
	respondJSON(w, http.StatusOK, dtos)
}

func convertAttempt(a *journal.Attempt) AttemptResponseDTO {
	dto := AttemptResponseDTO{
		ID:         a.ID,
		Status:     a.Status.String(),
		Step:       a.Step,
		OrderID:    a.OrderID,
		ItemCount:  a.ItemCount,
		LocalTotal: a.LocalTotal,
		Error:      a.ErrorMessage,
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
	if a.ChargedTotal.Valid {
		charged := a.ChargedTotal.Decimal
		dto.ChargedTotal = &charged
	}
	return dto
}
