package cart

import (
	"errors"
	"fmt"
	"sync"

	"github.com/fjod/go_storefront/domain"
	"github.com/shopspring/decimal"
)

// Common errors returned by the store
var (
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrInvalidVariant  = errors.New("size or color is not offered for this product")
)

// Store is the in-memory cart of one session. Entries are unique by
// (productID, size, color), keep insertion order and always hold a
// quantity of at least 1.
type Store struct {
	mu    sync.RWMutex
	items []domain.LineItem
}

func NewStore() *Store {
	return &Store{}
}

// AddItem merges quantity into the entry with the same key, or appends a new
// entry. quantity < 1 and unknown variants are rejected and leave the cart
// unchanged.
func (s *Store) AddItem(product domain.Product, quantity int, size, color string) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	if !product.HasSize(size) || !product.HasColor(color) {
		return fmt.Errorf("%w: product %s size %q color %q", ErrInvalidVariant, product.ID, size, color)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := domain.LineItemKey{ProductID: product.ID, Size: size, Color: color}
	if i := s.indexOf(key); i >= 0 {
		s.items[i].Quantity += quantity
		return nil
	}

	s.items = append(s.items, domain.LineItem{
		Product:       product,
		Quantity:      quantity,
		SelectedSize:  size,
		SelectedColor: color,
	})
	return nil
}

// UpdateQuantity sets the absolute quantity of an entry. quantity <= 0
// removes it. Unknown keys are ignored.
func (s *Store) UpdateQuantity(productID, size, color string, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(domain.LineItemKey{ProductID: productID, Size: size, Color: color})
	if i < 0 {
		return
	}
	if quantity <= 0 {
		s.removeAt(i)
		return
	}
	s.items[i].Quantity = quantity
}

func (s *Store) RemoveItem(productID, size, color string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(domain.LineItemKey{ProductID: productID, Size: size, Color: color}); i >= 0 {
		s.removeAt(i)
	}
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
}

// RemoveSubmitted subtracts the quantities of a checked-out snapshot. Entries
// added or raised after the snapshot keep the difference.
func (s *Store) RemoveSubmitted(items []domain.LineItem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range items {
		i := s.indexOf(item.Key())
		if i < 0 {
			continue
		}
		if s.items[i].Quantity <= item.Quantity {
			s.removeAt(i)
			continue
		}
		s.items[i].Quantity -= item.Quantity
	}
}

// Items returns a copy of the entries in cart order.
func (s *Store) Items() []domain.LineItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.LineItem, len(s.items))
	copy(out, s.items)
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// TotalPrice is the sum of unit price times quantity over all entries.
func (s *Store) TotalPrice() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, item := range s.items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// TotalItemCount is the sum of quantities, not the number of entries.
func (s *Store) TotalItemCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, item := range s.items {
		count += item.Quantity
	}
	return count
}

// Restore replaces the content with items, applying the same rules as
// AddItem. Entries that break them are skipped and reported together.
func (s *Store) Restore(items []domain.LineItem) error {
	s.Clear()

	var errs []error
	for _, item := range items {
		if err := s.AddItem(item.Product, item.Quantity, item.SelectedSize, item.SelectedColor); err != nil {
			errs = append(errs, fmt.Errorf("restore %s: %w", item.Product.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Store) indexOf(key domain.LineItemKey) int {
	for i := range s.items {
		if s.items[i].Key() == key {
			return i
		}
	}
	return -1
}

func (s *Store) removeAt(i int) {
	s.items = append(s.items[:i], s.items[i+1:]...)
}
