package http

import (
	"net/http"

	"github.com/fjod/go_storefront/internal/catalog"
	"github.com/go-chi/chi/v5"
)

type ProductHandler struct {
	catalog *catalog.Catalog
}

func NewProductHandler(c *catalog.Catalog) *ProductHandler {
	return &ProductHandler{catalog: c}
}

// GET /api/v1/products?category=&search=
func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var category *string
	if c := q.Get("category"); c != "" {
		category = &c
	}

	respondJSON(w, http.StatusOK, h.catalog.Search(category, q.Get("search")))
}

// GET /api/v1/products/{id}
func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.catalog.Product(chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, product)
}

// GET /api/v1/categories
func (h *ProductHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.catalog.Categories())
}
