package checkout

import (
	"context"

	"github.com/fjod/go_storefront/domain"
	"github.com/fjod/go_storefront/internal/journal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// addItems submits line items one call at a time, in cart order, and stops at
// the first failure.
func (o *Orchestrator) addItems(ctx context.Context, attempt *journal.Attempt, cartID string, items []domain.LineItem) error {
	ctx, span := o.startStep(ctx, attempt, StepAddItems)
	var err error
	defer func() { endStep(span, err) }()
	span.SetAttributes(attribute.String("cart.id", cartID), attribute.Int("cart.items", len(items)))

	for i, item := range items {
		if err = o.addItem(ctx, cartID, item); err != nil {
			span.SetAttributes(attribute.Int("cart.items_added", i))
			err = &StepError{Step: StepAddItems, Err: err}
			return err
		}
		span.AddEvent("item added", trace.WithAttributes(
			attribute.String("product.id", item.Product.ID),
			attribute.Int("quantity", item.Quantity),
		))
		// long carts must not look abandoned to stale-attempt recovery
		if jerr := o.journal.TouchAttempt(ctx, attempt.ID); jerr != nil {
			o.logger.Warn("failed to touch checkout attempt", zap.String("checkout_id", attempt.ID), zap.Error(jerr))
		}
	}
	return nil
}

func (o *Orchestrator) addItem(ctx context.Context, cartID string, item domain.LineItem) error {
	stepCtx, cancel := o.stepContext(ctx)
	defer cancel()
	return o.cart.AddItem(stepCtx, cartID, item)
}
