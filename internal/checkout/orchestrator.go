// Package checkout turns a session's local cart into a paid remote order.
package checkout

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fjod/go_storefront/domain"
	"github.com/fjod/go_storefront/internal/client"
	"github.com/fjod/go_storefront/internal/journal"
	"github.com/fjod/go_storefront/pkg/logger"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/fjod/go_storefront/internal/checkout"

// DefaultTimeout bounds a whole checkout, however many items it carries.
const DefaultTimeout = 90 * time.Second

type Step string

const (
	StepCreateCart     Step = "create_cart"
	StepAddItems       Step = "add_items"
	StepCreateOrder    Step = "create_order"
	StepProcessPayment Step = "process_payment"
)

type CartService interface {
	CreateCart(ctx context.Context, userID string) (*client.CartResponse, error)
	AddItem(ctx context.Context, cartID string, item domain.LineItem) error
	CreateOrder(ctx context.Context, cartID string) (*client.OrderResponse, error)
}

type PaymentService interface {
	ProcessPayment(ctx context.Context, details domain.PaymentDetails, amount decimal.Decimal, orderID string) (*client.PaymentResponse, error)
}

type Journal interface {
	CreateAttempt(ctx context.Context, a *journal.Attempt) error
	UpdateAttempt(ctx context.Context, id, step, remoteCartID, orderID string) error
	TouchAttempt(ctx context.Context, id string) error
	CompleteAttempt(ctx context.Context, a *journal.Attempt, event *journal.OutboxEvent) error
}

// LocalCart is the part of the cart store checkout reads and releases.
type LocalCart interface {
	Items() []domain.LineItem
	RemoveSubmitted(items []domain.LineItem)
}

// State is what the caller sees of the orchestrator between submissions.
type State struct {
	Status domain.CheckoutStatus
	Result *domain.CheckoutResult
	Error  string
}

type Option func(*Orchestrator)

func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

func WithJournal(j Journal) Option {
	return func(o *Orchestrator) { o.journal = j }
}

// WithStepTimeout bounds every remote call of the sequence.
func WithStepTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.stepTimeout = d }
}

// WithTimeout bounds the whole sequence. Zero leaves only the step timeouts.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

// WithAutoDismiss returns a succeeded checkout to IDLE after d. Zero keeps the
// result until Dismiss is called.
func WithAutoDismiss(d time.Duration) Option {
	return func(o *Orchestrator) { o.autoDismiss = d }
}

// Orchestrator runs at most one checkout at a time for one local cart.
type Orchestrator struct {
	local       LocalCart
	cart        CartService
	payment     PaymentService
	journal     Journal
	validate    *validator.Validate
	tracer      trace.Tracer
	logger      *zap.Logger
	stepTimeout time.Duration
	timeout     time.Duration
	autoDismiss time.Duration

	mu     sync.Mutex
	status domain.CheckoutStatus
	result *domain.CheckoutResult
	errMsg string
	// generation invalidates pending auto-dismiss timers
	generation uint64
	timer      *time.Timer
}

func New(local LocalCart, cart CartService, payment PaymentService, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		local:       local,
		cart:        cart,
		payment:     payment,
		journal:     noopJournal{},
		logger:      zap.NewNop(),
		stepTimeout: 15 * time.Second,
		timeout:     DefaultTimeout,
		status:      domain.CheckoutStatusIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.validate = newValidator()
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}
	return o
}

// Submit validates the form and runs the checkout sequence against the
// backend services. On success only the submitted items leave the local cart;
// on failure it is left untouched.
func (o *Orchestrator) Submit(ctx context.Context, session domain.Session, form domain.CheckoutForm) (*domain.CheckoutResult, error) {
	items := o.local.Items()
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}
	if err := o.validateForm(form); err != nil {
		return nil, err
	}
	if err := o.begin(); err != nil {
		return nil, err
	}

	attempt := &journal.Attempt{
		ID:         uuid.NewString(),
		SessionID:  session.ID,
		UserID:     session.UserIdentity(),
		Status:     domain.CheckoutStatusSubmitting,
		ItemCount:  len(items),
		LocalTotal: totalOf(items),
	}
	log := logger.FromContext(ctx, o.logger).With(
		zap.String("checkout_id", attempt.ID),
		zap.String("session_id", session.ID),
	)

	ctx, span := o.tracer.Start(ctx, "checkout.submit", trace.WithAttributes(
		attribute.String("checkout.id", attempt.ID),
		attribute.Int("checkout.items", len(items)),
		attribute.Bool("checkout.guest", session.IsGuest()),
	))
	defer span.End()

	if err := o.journal.CreateAttempt(ctx, attempt); err != nil {
		log.Warn("failed to journal checkout attempt", zap.Error(err))
	}
	log.Info("checkout started", zap.Int("items", len(items)), zap.String("local_total", attempt.LocalTotal.String()))

	runCtx, cancel := o.runContext(ctx)
	result, err := o.run(runCtx, attempt, session, items, form.Payment)
	cancel()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.fail(ctx, log, attempt, err)
		return nil, err
	}

	o.local.RemoveSubmitted(items)
	o.succeed(ctx, log, attempt, result)
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, attempt *journal.Attempt, session domain.Session, items []domain.LineItem, payment domain.PaymentDetails) (*domain.CheckoutResult, error) {
	cartID, err := o.createRemoteCart(ctx, attempt, session.UserIdentity())
	if err != nil {
		return nil, err
	}
	if err := o.addItems(ctx, attempt, cartID, items); err != nil {
		return nil, err
	}
	order, err := o.createOrder(ctx, attempt, cartID)
	if err != nil {
		return nil, err
	}
	message, err := o.processPayment(ctx, attempt, payment, order)
	if err != nil {
		return nil, err
	}
	return &domain.CheckoutResult{
		CheckoutID: attempt.ID,
		OrderID:    order.ID,
		Total:      order.Total,
		Message:    message,
	}, nil
}

// Status returns the current state of the checkout.
func (o *Orchestrator) Status() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return State{Status: o.status, Result: o.result, Error: o.errMsg}
}

// Dismiss acknowledges a finished checkout and returns to IDLE.
func (o *Orchestrator) Dismiss() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.status == domain.CheckoutStatusSubmitting {
		return ErrCheckoutInProgress
	}
	o.resetLocked()
	return nil
}

func (o *Orchestrator) begin() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !domain.CanTransitionTo(o.status, domain.CheckoutStatusSubmitting) {
		return ErrCheckoutInProgress
	}
	o.stopTimerLocked()
	o.generation++
	o.status = domain.CheckoutStatusSubmitting
	o.result = nil
	o.errMsg = ""
	return nil
}

func (o *Orchestrator) succeed(ctx context.Context, log *zap.Logger, attempt *journal.Attempt, result *domain.CheckoutResult) {
	attempt.Status = domain.CheckoutStatusSucceeded
	attempt.ChargedTotal = decimal.NewNullDecimal(result.Total)
	o.complete(ctx, log, attempt, EventCheckoutSucceeded)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.status = domain.CheckoutStatusSucceeded
	o.result = result
	if o.autoDismiss > 0 {
		gen := o.generation
		o.timer = time.AfterFunc(o.autoDismiss, func() { o.expire(gen) })
	}
	log.Info("checkout succeeded", zap.String("order_id", result.OrderID), zap.String("total", result.Total.String()))
}

func (o *Orchestrator) fail(ctx context.Context, log *zap.Logger, attempt *journal.Attempt, err error) {
	attempt.Status = domain.CheckoutStatusFailed
	attempt.ErrorMessage = err.Error()
	o.complete(ctx, log, attempt, EventCheckoutFailed)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.status = domain.CheckoutStatusFailed
	o.errMsg = err.Error()

	fields := []zap.Field{zap.Error(err), zap.String("step", attempt.Step)}
	if attempt.RemoteCartID != "" {
		// remote cart and order are not rolled back
		fields = append(fields, zap.String("remote_cart_id", attempt.RemoteCartID), zap.String("order_id", attempt.OrderID))
	}
	log.Warn("checkout failed", fields...)
}

// complete journals the outcome even when the caller's context is gone.
func (o *Orchestrator) complete(ctx context.Context, log *zap.Logger, attempt *journal.Attempt, eventType string) {
	ctx = context.WithoutCancel(ctx)
	event, err := NewOutboxEvent(attempt, eventType)
	if err != nil {
		log.Error("failed to build checkout event", zap.Error(err))
		return
	}
	err = o.journal.CompleteAttempt(ctx, attempt, event)
	switch {
	case errors.Is(err, journal.ErrAttemptCompleted):
		// recovered as interrupted while still running
		log.Warn("checkout outcome arrived after recovery", zap.String("status", string(attempt.Status)))
	case err != nil:
		log.Error("failed to journal checkout outcome", zap.Error(err))
	}
}

func (o *Orchestrator) expire(gen uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.generation != gen || o.status != domain.CheckoutStatusSucceeded {
		return
	}
	o.resetLocked()
}

func (o *Orchestrator) resetLocked() {
	o.stopTimerLocked()
	o.generation++
	o.status = domain.CheckoutStatusIdle
	o.result = nil
	o.errMsg = ""
}

func (o *Orchestrator) stopTimerLocked() {
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
}

func (o *Orchestrator) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.timeout)
}

// stepContext applies the per-step timeout.
func (o *Orchestrator) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.stepTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.stepTimeout)
}

func (o *Orchestrator) startStep(ctx context.Context, attempt *journal.Attempt, step Step) (context.Context, trace.Span) {
	attempt.Step = string(step)
	if err := o.journal.UpdateAttempt(ctx, attempt.ID, attempt.Step, attempt.RemoteCartID, attempt.OrderID); err != nil {
		o.logger.Warn("failed to journal checkout step", zap.String("checkout_id", attempt.ID), zap.String("step", attempt.Step), zap.Error(err))
	}
	return o.tracer.Start(ctx, "checkout."+string(step))
}

func endStep(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		var apiErr *client.APIError
		if errors.As(err, &apiErr) {
			span.SetAttributes(attribute.Int("http.status_code", apiErr.StatusCode))
		}
	}
	span.End()
}

type noopJournal struct{}

func (noopJournal) CreateAttempt(context.Context, *journal.Attempt) error { return nil }

func (noopJournal) UpdateAttempt(context.Context, string, string, string, string) error {
	return nil
}

func (noopJournal) TouchAttempt(context.Context, string) error { return nil }

func (noopJournal) CompleteAttempt(context.Context, *journal.Attempt, *journal.OutboxEvent) error {
	return nil
}

func totalOf(items []domain.LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}
