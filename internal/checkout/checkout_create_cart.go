package checkout

import (
	"context"

	"github.com/fjod/go_storefront/internal/journal"
	"go.opentelemetry.io/otel/attribute"
)

func (o *Orchestrator) createRemoteCart(ctx context.Context, attempt *journal.Attempt, userID string) (string, error) {
	ctx, span := o.startStep(ctx, attempt, StepCreateCart)
	var err error
	defer func() { endStep(span, err) }()

	stepCtx, cancel := o.stepContext(ctx)
	defer cancel()
	cart, err := o.cart.CreateCart(stepCtx, userID)
	if err != nil {
		err = &StepError{Step: StepCreateCart, Err: err}
		return "", err
	}

	attempt.RemoteCartID = cart.ID
	span.SetAttributes(attribute.String("cart.id", cart.ID))
	return cart.ID, nil
}
