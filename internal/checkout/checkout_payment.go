package checkout

import (
	"context"

	"github.com/fjod/go_storefront/domain"
	"github.com/fjod/go_storefront/internal/client"
	"github.com/fjod/go_storefront/internal/journal"
	"go.opentelemetry.io/otel/attribute"
)

const defaultPaymentMessage = "Payment processed successfully"

func (o *Orchestrator) processPayment(ctx context.Context, attempt *journal.Attempt, details domain.PaymentDetails, order *client.OrderResponse) (string, error) {
	ctx, span := o.startStep(ctx, attempt, StepProcessPayment)
	var err error
	defer func() { endStep(span, err) }()
	span.SetAttributes(
		attribute.String("order.id", order.ID),
		attribute.String("payment.amount", order.Total.String()),
		attribute.String("payment.currency", domain.Currency),
	)

	stepCtx, cancel := o.stepContext(ctx)
	defer cancel()
	resp, err := o.payment.ProcessPayment(stepCtx, details, order.Total, order.ID)
	if err != nil {
		err = &StepError{Step: StepProcessPayment, Err: err}
		return "", err
	}

	if resp.Message == "" {
		return defaultPaymentMessage, nil
	}
	return resp.Message, nil
}
