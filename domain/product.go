package domain

import (
	"slices"

	"github.com/shopspring/decimal"
)

// Product is an immutable catalog entry.
type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Image       string          `json:"image"`
	Description string          `json:"description"`
	Rating      float64         `json:"rating"`
	Reviews     int             `json:"reviews"`
	Sizes       []string        `json:"sizes"`
	Colors      []string        `json:"colors"`
	InStock     bool            `json:"inStock"`
}

// HasSize reports whether size is offered. A product without sizes only
// accepts the empty size.
func (p Product) HasSize(size string) bool {
	if len(p.Sizes) == 0 {
		return size == ""
	}
	return slices.Contains(p.Sizes, size)
}

// HasColor reports whether color is offered. A product without colors only
// accepts the empty color.
func (p Product) HasColor(color string) bool {
	if len(p.Colors) == 0 {
		return color == ""
	}
	return slices.Contains(p.Colors, color)
}

// DefaultSize returns the first offered size, or "" when there is none.
func (p Product) DefaultSize() string {
	if len(p.Sizes) == 0 {
		return ""
	}
	return p.Sizes[0]
}

// DefaultColor returns the first offered color, or "" when there is none.
func (p Product) DefaultColor() string {
	if len(p.Colors) == 0 {
		return ""
	}
	return p.Colors[0]
}
