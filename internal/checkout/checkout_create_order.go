package checkout

import (
	"context"

	"github.com/fjod/go_storefront/internal/client"
	"github.com/fjod/go_storefront/internal/journal"
	"go.opentelemetry.io/otel/attribute"
)

// createOrder converts the remote cart. The order total returned by the
// service is what gets charged.
func (o *Orchestrator) createOrder(ctx context.Context, attempt *journal.Attempt, cartID string) (*client.OrderResponse, error) {
	ctx, span := o.startStep(ctx, attempt, StepCreateOrder)
	var err error
	defer func() { endStep(span, err) }()

	stepCtx, cancel := o.stepContext(ctx)
	defer cancel()
	order, err := o.cart.CreateOrder(stepCtx, cartID)
	if err != nil {
		err = &StepError{Step: StepCreateOrder, Err: err}
		return nil, err
	}

	attempt.OrderID = order.ID
	span.SetAttributes(
		attribute.String("order.id", order.ID),
		attribute.String("order.total", order.Total.String()),
	)
	return order, nil
}
