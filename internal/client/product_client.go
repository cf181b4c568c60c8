package client

import (
	"context"
	"net/http"

	"github.com/fjod/go_storefront/domain"
)

type ProductClient struct {
	base *baseClient
}

func NewProductClient(baseURL string, opts ...Option) *ProductClient {
	return &ProductClient{base: newBaseClient("product-service", baseURL, opts...)}
}

// ListProducts fetches the full catalog from the product service.
func (c *ProductClient) ListProducts(ctx context.Context) ([]domain.Product, error) {
	var products []domain.Product
	if err := c.base.do(ctx, opListProducts, http.MethodGet, "/api/products", nil, &products); err != nil {
		return nil, err
	}
	return products, nil
}
