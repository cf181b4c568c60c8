package catalog

import (
	"strings"

	"github.com/fjod/go_storefront/domain"
)

// Filter returns the products whose category equals *category (any category
// when nil) and whose name contains search, ignoring case. Source order is
// kept and the result is never nil.
func Filter(products []domain.Product, category *string, search string) []domain.Product {
	needle := strings.ToLower(search)

	out := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if category != nil && p.Category != *category {
			continue
		}
		if !strings.Contains(strings.ToLower(p.Name), needle) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Categories lists distinct categories in order of first appearance.
func Categories(products []domain.Product) []string {
	seen := make(map[string]struct{}, len(products))
	out := make([]string, 0)
	for _, p := range products {
		if _, ok := seen[p.Category]; ok {
			continue
		}
		seen[p.Category] = struct{}{}
		out = append(out, p.Category)
	}
	return out
}
