package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/fjod/go_storefront/domain"
	"github.com/shopspring/decimal"
)

// CartClient calls the cart/order service.
type CartClient struct {
	base *baseClient
}

func NewCartClient(baseURL string, opts ...Option) *CartClient {
	return &CartClient{base: newBaseClient("cart-service", baseURL, opts...)}
}

type createCartRequest struct {
	UserID string `json:"userId"`
}

type CartResponse struct {
	ID     string          `json:"id"`
	UserID string          `json:"userId"`
	Total  decimal.Decimal `json:"total"`
}

type addItemRequest struct {
	ProductID     string  `json:"productId"`
	ProductName   string  `json:"productName"`
	Price         float64 `json:"price"`
	Quantity      int     `json:"quantity"`
	SelectedSize  string  `json:"selectedSize"`
	SelectedColor string  `json:"selectedColor"`
}

type OrderResponse struct {
	ID     string          `json:"id"`
	UserID string          `json:"userId"`
	Total  decimal.Decimal `json:"total"`
	Status string          `json:"status"`
}

// CreateCart opens a remote cart owned by userID.
func (c *CartClient) CreateCart(ctx context.Context, userID string) (*CartResponse, error) {
	var resp CartResponse
	err := c.base.do(ctx, opCreateCart, http.MethodPost, "/api/carts", createCartRequest{UserID: userID}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// AddItem submits one line item to the remote cart. The response body is
// not used.
func (c *CartClient) AddItem(ctx context.Context, cartID string, item domain.LineItem) error {
	req := addItemRequest{
		ProductID:     item.Product.ID,
		ProductName:   item.Product.Name,
		Price:         item.Product.Price.InexactFloat64(),
		Quantity:      item.Quantity,
		SelectedSize:  item.SelectedSize,
		SelectedColor: item.SelectedColor,
	}
	path := fmt.Sprintf("/api/carts/%s/items", url.PathEscape(cartID))
	return c.base.do(ctx, opAddItem, http.MethodPost, path, req, nil)
}

// CreateOrder turns the remote cart into an order. The returned total is
// the authoritative amount to charge.
func (c *CartClient) CreateOrder(ctx context.Context, cartID string) (*OrderResponse, error) {
	var resp OrderResponse
	path := fmt.Sprintf("/api/carts/%s/orders", url.PathEscape(cartID))
	if err := c.base.do(ctx, opCreateOrder, http.MethodPost, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UserOrders lists the orders placed by userID.
func (c *CartClient) UserOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	var orders []domain.Order
	path := fmt.Sprintf("/api/users/%s/orders", url.PathEscape(userID))
	if err := c.base.do(ctx, opUserOrders, http.MethodGet, path, nil, &orders); err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	return orders, nil
}
