package http

import (
	"context"
	"sync"

	"github.com/fjod/go_storefront/domain"
	"github.com/fjod/go_storefront/internal/client"
	"github.com/fjod/go_storefront/internal/journal"
	"github.com/shopspring/decimal"
)

// MockBackend stands in for the cart/order, payment and auth services.
type MockBackend struct {
	mu sync.Mutex

	OrderTotal     decimal.Decimal
	CreateOrderErr error
	PaymentErr     error
	Orders         []domain.Order
	OrdersErr      error
	User           *domain.User
	AuthErr        error

	// blockOrder holds CreateOrder until closed
	blockOrder chan struct{}

	CartUser   string
	AddedItems []domain.LineItem
	Charged    decimal.Decimal
	OrdersFor  string
}

func (m *MockBackend) CreateCart(_ context.Context, userID string) (*client.CartResponse, error) {
	m.mu.Lock()
	m.CartUser = userID
	m.mu.Unlock()
	return &client.CartResponse{ID: "remote-cart-1", UserID: userID}, nil
}

func (m *MockBackend) cartUser() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CartUser
}

func (m *MockBackend) AddItem(_ context.Context, _ string, item domain.LineItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AddedItems = append(m.AddedItems, item)
	return nil
}

func (m *MockBackend) CreateOrder(ctx context.Context, cartID string) (*client.OrderResponse, error) {
	if m.blockOrder != nil {
		select {
		case <-m.blockOrder:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.CreateOrderErr != nil {
		return nil, m.CreateOrderErr
	}
	return &client.OrderResponse{ID: "order-42", Total: m.OrderTotal, Status: "pending"}, nil
}

func (m *MockBackend) ProcessPayment(_ context.Context, _ domain.PaymentDetails, amount decimal.Decimal, _ string) (*client.PaymentResponse, error) {
	if m.PaymentErr != nil {
		return nil, m.PaymentErr
	}
	m.mu.Lock()
	m.Charged = amount
	m.mu.Unlock()
	return &client.PaymentResponse{Success: true, Message: "Payment approved"}, nil
}

func (m *MockBackend) UserOrders(_ context.Context, userID string) ([]domain.Order, error) {
	m.mu.Lock()
	m.OrdersFor = userID
	m.mu.Unlock()
	return m.Orders, m.OrdersErr
}

func (m *MockBackend) Signup(_ context.Context, name, email, _ string) (*domain.User, error) {
	if m.AuthErr != nil {
		return nil, m.AuthErr
	}
	return &domain.User{ID: "u-new", Name: name, Email: email}, nil
}

func (m *MockBackend) Login(context.Context, string, string) (*domain.User, error) {
	if m.AuthErr != nil {
		return nil, m.AuthErr
	}
	return m.User, nil
}

type MockAttempts struct {
	Attempts  []*journal.Attempt
	Err       error
	SessionID string
}

func (m *MockAttempts) ListAttempts(_ context.Context, sessionID string) ([]*journal.Attempt, error) {
	m.SessionID = sessionID
	return m.Attempts, m.Err
}
