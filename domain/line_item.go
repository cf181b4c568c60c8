package domain

import "github.com/shopspring/decimal"

// LineItemKey identifies a line item inside a cart.
type LineItemKey struct {
	ProductID string
	Size      string
	Color     string
}

// LineItem is one (product, size, color) combination with its quantity.
// The product is carried as a snapshot so totals do not depend on the catalog.
type LineItem struct {
	Product       Product `json:"product"`
	Quantity      int     `json:"quantity"`
	SelectedSize  string  `json:"selectedSize"`
	SelectedColor string  `json:"selectedColor"`
}

func (i LineItem) Key() LineItemKey {
	return LineItemKey{
		ProductID: i.Product.ID,
		Size:      i.SelectedSize,
		Color:     i.SelectedColor,
	}
}

// Subtotal is unit price times quantity.
func (i LineItem) Subtotal() decimal.Decimal {
	return i.Product.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
