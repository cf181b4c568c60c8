package catalog

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/fjod/go_storefront/domain"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrEmptyCatalog    = errors.New("product source returned no products")
)

//go:embed products.json
var seed []byte

// Source is a remote product list, usually the product service.
type Source interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
}

// Catalog holds the static product list the storefront browses.
type Catalog struct {
	mu       sync.RWMutex
	products []domain.Product
	byID     map[string]int
}

// Load builds a catalog from the embedded seed list.
func Load() (*Catalog, error) {
	var products []domain.Product
	if err := json.Unmarshal(seed, &products); err != nil {
		return nil, fmt.Errorf("decode product seed: %w", err)
	}
	return New(products), nil
}

func New(products []domain.Product) *Catalog {
	c := &Catalog{}
	c.replace(products)
	return c
}

// Products returns a copy of the full list in catalog order.
func (c *Catalog) Products() []domain.Product {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]domain.Product, len(c.products))
	copy(out, c.products)
	return out
}

func (c *Catalog) Product(id string) (domain.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i, ok := c.byID[id]
	if !ok {
		return domain.Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, id)
	}
	return c.products[i], nil
}

func (c *Catalog) Search(category *string, search string) []domain.Product {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Filter(c.products, category, search)
}

func (c *Catalog) Categories() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Categories(c.products)
}

// Refresh replaces the list with the one from src. On error, or when src
// returns nothing, the current list is kept.
func (c *Catalog) Refresh(ctx context.Context, src Source) error {
	products, err := src.ListProducts(ctx)
	if err != nil {
		return fmt.Errorf("refresh catalog: %w", err)
	}
	if len(products) == 0 {
		return ErrEmptyCatalog
	}
	c.replace(products)
	return nil
}

func (c *Catalog) replace(products []domain.Product) {
	byID := make(map[string]int, len(products))
	for i, p := range products {
		if _, dup := byID[p.ID]; !dup {
			byID[p.ID] = i
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.products = products
	c.byID = byID
}
