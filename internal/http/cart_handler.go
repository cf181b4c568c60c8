package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_storefront/domain"
	"github.com/fjod/go_storefront/internal/cart"
	"github.com/fjod/go_storefront/internal/catalog"
	"github.com/fjod/go_storefront/internal/checkout"
	"github.com/fjod/go_storefront/pkg/logger"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SessionStore resolves the per-session cart and checkout state.
type SessionStore interface {
	Cart(ctx context.Context, sessionID string) (*cart.Store, error)
	Orchestrator(ctx context.Context, sessionID string) (*checkout.Orchestrator, error)
	Save(ctx context.Context, sessionID string) error
}

type CartHandler struct {
	sessions SessionStore
	catalog  *catalog.Catalog
	timeout  time.Duration
	logger   *zap.Logger
}

func NewCartHandler(sessions SessionStore, c *catalog.Catalog, timeout time.Duration, l *zap.Logger) *CartHandler {
	return &CartHandler{
		sessions: sessions,
		catalog:  c,
		timeout:  timeout,
		logger:   l,
	}
}

type AddItemRequestDTO struct {
	ProductID string `json:"productId"`
	Quantity  *int   `json:"quantity"`
	Size      string `json:"size"`
	Color     string `json:"color"`
}

type UpdateQuantityRequestDTO struct {
	ProductID string `json:"productId"`
	Size      string `json:"size"`
	Color     string `json:"color"`
	Quantity  int    `json:"quantity"`
}

type RemoveItemRequestDTO struct {
	ProductID string `json:"productId"`
	Size      string `json:"size"`
	Color     string `json:"color"`
}

type CartResponseDTO struct {
	Items      []domain.LineItem `json:"items"`
	TotalPrice decimal.Decimal   `json:"totalPrice"`
	TotalItems int               `json:"totalItems"`
}

func newCartResponse(store *cart.Store) CartResponseDTO {
	return CartResponseDTO{
		Items:      store.Items(),
		TotalPrice: store.TotalPrice(),
		TotalItems: store.TotalItemCount(),
	}
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	store, ok := h.cart(ctx, w)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, newCartResponse(store))
}

// POST /api/v1/cart/items
// Size and color default to the first option the product offers, quantity to 1.
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "productId is required")
		return
	}

	product, err := h.catalog.Product(req.ProductID)
	if err != nil {
		handleError(w, err)
		return
	}

	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}
	size := req.Size
	if size == "" {
		size = product.DefaultSize()
	}
	color := req.Color
	if color == "" {
		color = product.DefaultColor()
	}

	store, ok := h.cart(ctx, w)
	if !ok {
		return
	}
	if err := store.AddItem(product, quantity, size, color); err != nil {
		handleError(w, err)
		return
	}
	h.save(ctx)

	respondJSON(w, http.StatusCreated, newCartResponse(store))
}

// PUT /api/v1/cart/items
// A quantity of zero or less removes the entry.
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req UpdateQuantityRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	store, ok := h.cart(ctx, w)
	if !ok {
		return
	}
	store.UpdateQuantity(req.ProductID, req.Size, req.Color, req.Quantity)
	h.save(ctx)

	respondJSON(w, http.StatusOK, newCartResponse(store))
}

// DELETE /api/v1/cart/items
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req RemoveItemRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	store, ok := h.cart(ctx, w)
	if !ok {
		return
	}
	store.RemoveItem(req.ProductID, req.Size, req.Color)
	h.save(ctx)

	respondJSON(w, http.StatusOK, newCartResponse(store))
}

// DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	store, ok := h.cart(ctx, w)
	if !ok {
		return
	}
	store.Clear()
	h.save(ctx)

	respondJSON(w, http.StatusOK, newCartResponse(store))
}

func (h *CartHandler) cart(ctx context.Context, w http.ResponseWriter) (*cart.Store, bool) {
	session, ok := SessionFromContext(ctx)
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return nil, false
	}
	store, err := h.sessions.Cart(ctx, session.ID)
	if err != nil {
		h.logger.Error("failed to load cart", zap.String("session_id", session.ID), zap.Error(err))
		handleError(w, err)
		return nil, false
	}
	return store, true
}

// save persists the cart snapshot. The in-memory cart stays authoritative, so
// a cache failure is only logged.
func (h *CartHandler) save(ctx context.Context) {
	session, _ := SessionFromContext(ctx)
	if err := h.sessions.Save(ctx, session.ID); err != nil {
		logger.FromContext(ctx, h.logger).Warn("failed to save cart snapshot", zap.String("session_id", session.ID), zap.Error(err))
	}
}
