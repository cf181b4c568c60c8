package checkout

import (
	"context"
	"sync"

	"github.com/fjod/go_storefront/domain"
	"github.com/fjod/go_storefront/internal/client"
	"github.com/fjod/go_storefront/internal/journal"
	"github.com/shopspring/decimal"
)

// MockCartService implements CartService for testing
type MockCartService struct {
	mu sync.Mutex

	CartID         string
	CreateCartErr  error
	AddItemErr     error
	FailAddItemAt  int // 1-based index of the failing AddItem call, 0 = every call
	Order          *client.OrderResponse
	CreateOrderErr error
	// Block, when set, holds CreateCart until it is closed or ctx ends
	Block chan struct{}

	Calls       []string
	UserID      string
	AddedItems  []domain.LineItem
	OrderCartID string
}

func (m *MockCartService) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, call)
}

func (m *MockCartService) calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Calls...)
}

func (m *MockCartService) CreateCart(ctx context.Context, userID string) (*client.CartResponse, error) {
	m.record("CreateCart")
	if m.Block != nil {
		select {
		case <-m.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	m.mu.Lock()
	m.UserID = userID
	m.mu.Unlock()
	if m.CreateCartErr != nil {
		return nil, m.CreateCartErr
	}
	return &client.CartResponse{ID: m.CartID, UserID: userID}, nil
}

func (m *MockCartService) AddItem(_ context.Context, _ string, item domain.LineItem) error {
	m.record("AddItem")
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AddItemErr != nil && (m.FailAddItemAt == 0 || m.FailAddItemAt == len(m.AddedItems)+1) {
		return m.AddItemErr
	}
	m.AddedItems = append(m.AddedItems, item)
	return nil
}

func (m *MockCartService) CreateOrder(_ context.Context, cartID string) (*client.OrderResponse, error) {
	m.record("CreateOrder")
	m.mu.Lock()
	m.OrderCartID = cartID
	m.mu.Unlock()
	if m.CreateOrderErr != nil {
		return nil, m.CreateOrderErr
	}
	return m.Order, nil
}

// MockPaymentService implements PaymentService for testing
type MockPaymentService struct {
	mu sync.Mutex

	Response *client.PaymentResponse
	Err      error

	CallCount int
	Amount    decimal.Decimal
	OrderID   string
	Details   domain.PaymentDetails
}

func (m *MockPaymentService) ProcessPayment(_ context.Context, details domain.PaymentDetails, amount decimal.Decimal, orderID string) (*client.PaymentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCount++
	m.Amount = amount
	m.OrderID = orderID
	m.Details = details
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Response, nil
}

func (m *MockPaymentService) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// MockJournal implements Journal for testing
type MockJournal struct {
	mu sync.Mutex

	CreateErr   error
	CompleteErr error

	Created   []*journal.Attempt
	Steps     []string
	Touched   int
	Completed []*journal.Attempt
	Events    []*journal.OutboxEvent
}

func (m *MockJournal) CreateAttempt(_ context.Context, a *journal.Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *a
	m.Created = append(m.Created, &copied)
	return m.CreateErr
}

func (m *MockJournal) UpdateAttempt(_ context.Context, _, step, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Steps = append(m.Steps, step)
	return nil
}

func (m *MockJournal) TouchAttempt(context.Context, string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Touched++
	return nil
}

func (m *MockJournal) CompleteAttempt(_ context.Context, a *journal.Attempt, event *journal.OutboxEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *a
	m.Completed = append(m.Completed, &copied)
	m.Events = append(m.Events, event)
	return m.CompleteErr
}
