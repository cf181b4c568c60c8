package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/fjod/go_storefront/domain"
	"github.com/fjod/go_storefront/internal/cart"
	"github.com/fjod/go_storefront/internal/client"
	"github.com/fjod/go_storefront/internal/journal"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

var (
	shirt = domain.Product{
		ID:     "p1",
		Name:   "Medusa Silk Shirt",
		Price:  decimal.NewFromInt(100),
		Sizes:  []string{"S", "M"},
		Colors: []string{"Black"},
	}
	belt = domain.Product{
		ID:     "p2",
		Name:   "La Greca Leather Belt",
		Price:  decimal.RequireFromString("49.50"),
		Sizes:  []string{"90"},
		Colors: []string{"Brown"},
	}
)

func validForm() domain.CheckoutForm {
	return domain.CheckoutForm{
		Payment: domain.PaymentDetails{
			CardNumber: "4242 4242 4242 4242",
			CardHolder: "Ada Lovelace",
			ExpiryDate: "12/30",
			CVV:        "123",
		},
		Shipping: domain.ShippingDetails{
			Email:   "ada@example.com",
			Address: "1 Analytical Way",
		},
	}
}

func filledCart(t *testing.T) *cart.Store {
	t.Helper()
	s := cart.NewStore()
	require.NoError(t, s.AddItem(shirt, 2, "M", "Black"))
	require.NoError(t, s.AddItem(belt, 1, "90", "Brown"))
	return s
}

func happyCartService() *MockCartService {
	return &MockCartService{
		CartID: "cart-1",
		Order:  &client.OrderResponse{ID: "order-1", Total: decimal.RequireFromString("255.00")},
	}
}

func happyPayment() *MockPaymentService {
	return &MockPaymentService{Response: &client.PaymentResponse{Success: true, Message: "Payment processed successfully"}}
}

func guest() domain.Session {
	return domain.Session{ID: "sess-1"}
}

func TestSubmit_Success(t *testing.T) {
	local := filledCart(t)
	cartSvc := happyCartService()
	payment := happyPayment()
	j := &MockJournal{}
	o := New(local, cartSvc, payment, WithJournal(j))

	result, err := o.Submit(context.Background(), guest(), validForm())

	require.NoError(t, err)
	assert.Equal(t, "order-1", result.OrderID)
	assert.Equal(t, "255", result.Total.String())
	assert.Equal(t, "Payment processed successfully", result.Message)
	assert.NotEmpty(t, result.CheckoutID)

	assert.Equal(t, []string{"CreateCart", "AddItem", "AddItem", "CreateOrder"}, cartSvc.calls())
	assert.Equal(t, domain.GuestUserID, cartSvc.UserID)
	assert.Equal(t, "cart-1", cartSvc.OrderCartID)
	require.Len(t, cartSvc.AddedItems, 2)
	assert.Equal(t, "p1", cartSvc.AddedItems[0].Product.ID)
	assert.Equal(t, "p2", cartSvc.AddedItems[1].Product.ID)

	// the backend total is charged, not the local 249.50
	assert.Equal(t, 1, payment.CallCount)
	assert.Equal(t, "255", payment.Amount.String())
	assert.Equal(t, "order-1", payment.OrderID)
	assert.Equal(t, "123", payment.Details.CVV)

	assert.Equal(t, 0, local.Len())
	state := o.Status()
	assert.Equal(t, domain.CheckoutStatusSucceeded, state.Status)
	assert.Equal(t, result, state.Result)
	assert.Empty(t, state.Error)

	require.Len(t, j.Created, 1)
	assert.Equal(t, "249.5", j.Created[0].LocalTotal.String())
	assert.Equal(t, []string{"create_cart", "add_items", "create_order", "process_payment"}, j.Steps)
	require.Len(t, j.Completed, 1)
	assert.Equal(t, domain.CheckoutStatusSucceeded, j.Completed[0].Status)
	assert.Equal(t, "order-1", j.Completed[0].OrderID)
	require.Len(t, j.Events, 1)
	assert.Equal(t, EventCheckoutSucceeded, j.Events[0].EventType)
	assert.Equal(t, result.CheckoutID, j.Events[0].AggregateID)
}

func TestSubmit_LoggedInUserOwnsRemoteCart(t *testing.T) {
	cartSvc := happyCartService()
	o := New(filledCart(t), cartSvc, happyPayment())

	_, err := o.Submit(context.Background(), domain.Session{ID: "sess-1", UserID: "user_42"}, validForm())

	require.NoError(t, err)
	assert.Equal(t, "user_42", cartSvc.UserID)
}

func TestSubmit_EmptyCart_NoNetworkCalls(t *testing.T) {
	cartSvc := happyCartService()
	payment := happyPayment()
	j := &MockJournal{}
	o := New(cart.NewStore(), cartSvc, payment, WithJournal(j))

	result, err := o.Submit(context.Background(), guest(), validForm())

	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Empty(t, cartSvc.calls())
	assert.Equal(t, 0, payment.CallCount)
	assert.Empty(t, j.Created)
	assert.Equal(t, domain.CheckoutStatusIdle, o.Status().Status)
}

func TestSubmit_InvalidForm_NoNetworkCalls(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *domain.CheckoutForm)
		fields []string
	}{
		{
			name:   "missing card holder",
			mutate: func(f *domain.CheckoutForm) { f.Payment.CardHolder = "" },
			fields: []string{"cardHolder"},
		},
		{
			name:   "blank address",
			mutate: func(f *domain.CheckoutForm) { f.Shipping.Address = "   " },
			fields: []string{"address"},
		},
		{
			name:   "bad email",
			mutate: func(f *domain.CheckoutForm) { f.Shipping.Email = "not-an-email" },
			fields: []string{"email"},
		},
		{
			name:   "cvv too long",
			mutate: func(f *domain.CheckoutForm) { f.Payment.CVV = "12345" },
			fields: []string{"cvv"},
		},
		{
			name:   "everything missing",
			mutate: func(f *domain.CheckoutForm) { *f = domain.CheckoutForm{} },
			fields: []string{"cardNumber", "cardHolder", "expiryDate", "cvv", "email", "address"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cartSvc := happyCartService()
			o := New(filledCart(t), cartSvc, happyPayment())
			form := validForm()
			tt.mutate(&form)

			_, err := o.Submit(context.Background(), guest(), form)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			var got []string
			for _, f := range verr.Fields {
				got = append(got, f.Field)
			}
			assert.Equal(t, tt.fields, got)
			assert.Empty(t, cartSvc.calls())
			assert.Equal(t, domain.CheckoutStatusIdle, o.Status().Status)
		})
	}
}

func TestSubmit_CreateOrderFails_NoPaymentAndCartKept(t *testing.T) {
	local := filledCart(t)
	cartSvc := happyCartService()
	cartSvc.CreateOrderErr = &client.APIError{Op: "create order", StatusCode: 500, Message: "Failed to create order"}
	payment := happyPayment()
	j := &MockJournal{}
	o := New(local, cartSvc, payment, WithJournal(j))

	result, err := o.Submit(context.Background(), guest(), validForm())

	assert.Nil(t, result)
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StepCreateOrder, stepErr.Step)
	assert.Equal(t, "Failed to create order", err.Error())

	assert.Equal(t, 0, payment.CallCount)
	assert.Equal(t, 2, local.Len())
	assert.Equal(t, "249.5", local.TotalPrice().String())

	state := o.Status()
	assert.Equal(t, domain.CheckoutStatusFailed, state.Status)
	assert.Nil(t, state.Result)
	assert.Equal(t, "Failed to create order", state.Error)

	require.Len(t, j.Completed, 1)
	assert.Equal(t, domain.CheckoutStatusFailed, j.Completed[0].Status)
	assert.Equal(t, "cart-1", j.Completed[0].RemoteCartID)
	assert.Equal(t, "Failed to create order", j.Completed[0].ErrorMessage)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(j.Events[0].Payload, &payload))
	assert.Equal(t, EventCheckoutFailed, j.Events[0].EventType)
	assert.Equal(t, "cart-1", payload["remote_cart_id"])
	assert.Equal(t, "create_order", payload["step"])
	assert.Equal(t, "Failed to create order", payload["error"])
}

func TestSubmit_AddItemFails_StopsAtFirstFailure(t *testing.T) {
	local := filledCart(t)
	cartSvc := happyCartService()
	cartSvc.AddItemErr = &client.APIError{StatusCode: 400, Message: "Invalid product"}
	cartSvc.FailAddItemAt = 2
	payment := happyPayment()
	o := New(local, cartSvc, payment)

	_, err := o.Submit(context.Background(), guest(), validForm())

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StepAddItems, stepErr.Step)
	assert.Equal(t, "Invalid product", err.Error())
	assert.Equal(t, []string{"CreateCart", "AddItem", "AddItem"}, cartSvc.calls())
	assert.Equal(t, 0, payment.CallCount)
	assert.Equal(t, 2, local.Len())
}

func TestSubmit_TransportErrorSurfacedVerbatim(t *testing.T) {
	cartSvc := happyCartService()
	cartSvc.CreateCartErr = &client.TransportError{Op: "create cart", Err: errors.New("dial tcp 127.0.0.1:8002: connect: connection refused")}
	o := New(filledCart(t), cartSvc, happyPayment())

	_, err := o.Submit(context.Background(), guest(), validForm())

	require.Error(t, err)
	assert.Equal(t, "dial tcp 127.0.0.1:8002: connect: connection refused", err.Error())
	assert.Equal(t, []string{"CreateCart"}, cartSvc.calls())
	assert.Equal(t, domain.CheckoutStatusFailed, o.Status().Status)
}

func TestSubmit_PaymentDeclined(t *testing.T) {
	local := filledCart(t)
	payment := &MockPaymentService{Err: &client.APIError{StatusCode: 200, Message: "Card declined"}}
	o := New(local, happyCartService(), payment)

	_, err := o.Submit(context.Background(), guest(), validForm())

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StepProcessPayment, stepErr.Step)
	assert.Equal(t, "Card declined", err.Error())
	assert.Equal(t, 2, local.Len())
}

func TestSubmit_RetryAfterFailure(t *testing.T) {
	local := filledCart(t)
	cartSvc := happyCartService()
	cartSvc.CreateOrderErr = errors.New("boom")
	payment := happyPayment()
	o := New(local, cartSvc, payment)

	_, err := o.Submit(context.Background(), guest(), validForm())
	require.Error(t, err)
	require.Equal(t, domain.CheckoutStatusFailed, o.Status().Status)

	cartSvc.CreateOrderErr = nil
	result, err := o.Submit(context.Background(), guest(), validForm())

	require.NoError(t, err)
	assert.Equal(t, "order-1", result.OrderID)
	assert.Equal(t, 1, payment.CallCount)
	assert.Equal(t, 0, local.Len())
	assert.Equal(t, domain.CheckoutStatusSucceeded, o.Status().Status)
}

func TestSubmit_RejectsConcurrentSubmission(t *testing.T) {
	cartSvc := happyCartService()
	cartSvc.Block = make(chan struct{})
	payment := happyPayment()
	o := New(filledCart(t), cartSvc, payment)

	done := make(chan error, 1)
	go func() {
		_, err := o.Submit(context.Background(), guest(), validForm())
		done <- err
	}()

	require.Eventually(t, func() bool {
		return o.Status().Status == domain.CheckoutStatusSubmitting && len(cartSvc.calls()) == 1
	}, time.Second, 5*time.Millisecond)

	_, err := o.Submit(context.Background(), guest(), validForm())
	assert.ErrorIs(t, err, ErrCheckoutInProgress)
	assert.ErrorIs(t, o.Dismiss(), ErrCheckoutInProgress)

	close(cartSvc.Block)
	require.NoError(t, <-done)
	assert.Equal(t, 1, payment.calls())
	assert.Equal(t, domain.CheckoutStatusSucceeded, o.Status().Status)
}

func TestSubmit_ItemsAddedDuringCheckoutStayInCart(t *testing.T) {
	local := filledCart(t)
	cartSvc := happyCartService()
	cartSvc.Block = make(chan struct{})
	o := New(local, cartSvc, happyPayment())

	done := make(chan error, 1)
	go func() {
		_, err := o.Submit(context.Background(), guest(), validForm())
		done <- err
	}()
	require.Eventually(t, func() bool {
		return o.Status().Status == domain.CheckoutStatusSubmitting && len(cartSvc.calls()) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, local.AddItem(belt, 3, "90", "Brown"))
	close(cartSvc.Block)
	require.NoError(t, <-done)

	// the snapshot taken at submit is what was bought
	require.Len(t, cartSvc.AddedItems, 2)
	assert.Equal(t, 1, cartSvc.AddedItems[1].Quantity)

	items := local.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "p2", items[0].Product.ID)
	assert.Equal(t, 3, items[0].Quantity)
}

func TestSubmit_TouchesAttemptPerItem(t *testing.T) {
	j := &MockJournal{}
	o := New(filledCart(t), happyCartService(), happyPayment(), WithJournal(j))

	_, err := o.Submit(context.Background(), guest(), validForm())

	require.NoError(t, err)
	assert.Equal(t, 2, j.Touched)
}

func TestSubmit_OutcomeAfterRecoveryKeepsResult(t *testing.T) {
	j := &MockJournal{CompleteErr: journal.ErrAttemptCompleted}
	payment := happyPayment()
	o := New(filledCart(t), happyCartService(), payment, WithJournal(j))

	result, err := o.Submit(context.Background(), guest(), validForm())

	require.NoError(t, err)
	assert.Equal(t, "order-1", result.OrderID)
	assert.Equal(t, 1, payment.calls())
	assert.Equal(t, domain.CheckoutStatusSucceeded, o.Status().Status)
}

func TestSubmit_OverallTimeout(t *testing.T) {
	local := filledCart(t)
	cartSvc := happyCartService()
	cartSvc.Block = make(chan struct{})
	o := New(local, cartSvc, happyPayment(), WithStepTimeout(time.Minute), WithTimeout(20*time.Millisecond))

	_, err := o.Submit(context.Background(), guest(), validForm())

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, local.Len())
	assert.Equal(t, domain.CheckoutStatusFailed, o.Status().Status)
}

func TestSubmit_StepTimeout(t *testing.T) {
	local := filledCart(t)
	cartSvc := happyCartService()
	cartSvc.Block = make(chan struct{})
	o := New(local, cartSvc, happyPayment(), WithStepTimeout(20*time.Millisecond))

	_, err := o.Submit(context.Background(), guest(), validForm())

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StepCreateCart, stepErr.Step)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, local.Len())
}

func TestSubmit_CancelledContextStillJournaled(t *testing.T) {
	cartSvc := happyCartService()
	cartSvc.Block = make(chan struct{})
	j := &MockJournal{}
	o := New(filledCart(t), cartSvc, happyPayment(), WithJournal(j))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := o.Submit(ctx, guest(), validForm())

	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, j.Completed, 1)
	assert.Equal(t, domain.CheckoutStatusFailed, j.Completed[0].Status)
}

func TestSubmit_JournalErrorsDoNotFailCheckout(t *testing.T) {
	j := &MockJournal{CreateErr: errors.New("db down"), CompleteErr: errors.New("db down")}
	o := New(filledCart(t), happyCartService(), happyPayment(), WithJournal(j))

	_, err := o.Submit(context.Background(), guest(), validForm())

	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutStatusSucceeded, o.Status().Status)
}

func TestDismiss(t *testing.T) {
	o := New(filledCart(t), happyCartService(), happyPayment())
	_, err := o.Submit(context.Background(), guest(), validForm())
	require.NoError(t, err)

	require.NoError(t, o.Dismiss())

	state := o.Status()
	assert.Equal(t, domain.CheckoutStatusIdle, state.Status)
	assert.Nil(t, state.Result)

	// idle dismiss is a no-op
	require.NoError(t, o.Dismiss())
}

func TestAutoDismiss(t *testing.T) {
	o := New(filledCart(t), happyCartService(), happyPayment(), WithAutoDismiss(20*time.Millisecond))

	_, err := o.Submit(context.Background(), guest(), validForm())
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutStatusSucceeded, o.Status().Status)

	require.Eventually(t, func() bool {
		return o.Status().Status == domain.CheckoutStatusIdle
	}, time.Second, 5*time.Millisecond)
}

func TestAutoDismiss_DoesNotApplyToFailure(t *testing.T) {
	cartSvc := happyCartService()
	cartSvc.CreateCartErr = errors.New("down")
	o := New(filledCart(t), cartSvc, happyPayment(), WithAutoDismiss(10*time.Millisecond))

	_, err := o.Submit(context.Background(), guest(), validForm())
	require.Error(t, err)

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, domain.CheckoutStatusFailed, o.Status().Status)
}

func TestSubmit_RecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	cartSvc := happyCartService()
	cartSvc.CreateOrderErr = &client.APIError{StatusCode: 502, Message: "Bad gateway"}
	o := New(filledCart(t), cartSvc, happyPayment(), WithTracer(provider.Tracer("test")))

	_, err := o.Submit(context.Background(), guest(), validForm())
	require.Error(t, err)

	spans := recorder.Ended()
	var names []string
	for _, s := range spans {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{
		"checkout.create_cart",
		"checkout.add_items",
		"checkout.create_order",
		"checkout.submit",
	}, names)

	root := spans[len(spans)-1]
	for _, s := range spans[:len(spans)-1] {
		assert.Equal(t, root.SpanContext().TraceID(), s.SpanContext().TraceID())
		assert.Equal(t, root.SpanContext().SpanID(), s.Parent().SpanID())
	}
	assert.Equal(t, "Error", spans[2].Status().Code.String())
}
