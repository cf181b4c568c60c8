package domain

import "github.com/shopspring/decimal"

// User is the account object returned by the auth service.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	CreatedAt string `json:"createdAt,omitempty"`
}

type OrderItem struct {
	ProductID     string          `json:"productId"`
	ProductName   string          `json:"productName"`
	Price         decimal.Decimal `json:"price"`
	Quantity      int             `json:"quantity"`
	SelectedSize  string          `json:"selectedSize"`
	SelectedColor string          `json:"selectedColor"`
}

// Order is owned by the cart/order service; the gateway only reads it.
type Order struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	Items     []OrderItem     `json:"items"`
	Total     decimal.Decimal `json:"total"`
	Status    string          `json:"status"`
	CreatedAt string          `json:"createdAt"`
}
