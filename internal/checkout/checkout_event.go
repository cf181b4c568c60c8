package checkout

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fjod/go_storefront/domain"
	"github.com/fjod/go_storefront/internal/journal"
)

const (
	EventCheckoutSucceeded = "checkout.succeeded"
	EventCheckoutFailed    = "checkout.failed"
)

// NewOutboxEvent builds the event of a finished attempt. It carries the remote
// identifiers so carts and orders left behind by a failed checkout can be
// found downstream.
func NewOutboxEvent(attempt *journal.Attempt, eventType string) (*journal.OutboxEvent, error) {
	payload := map[string]interface{}{
		"checkout_id":    attempt.ID,
		"session_id":     attempt.SessionID,
		"user_id":        attempt.UserID,
		"status":         attempt.Status,
		"step":           attempt.Step,
		"remote_cart_id": attempt.RemoteCartID,
		"order_id":       attempt.OrderID,
		"item_count":     attempt.ItemCount,
		"local_total":    attempt.LocalTotal,
		"currency":       domain.Currency,
		"completed_at":   time.Now().UTC(),
	}
	if attempt.ChargedTotal.Valid {
		payload["charged_total"] = attempt.ChargedTotal.Decimal
	}
	if attempt.ErrorMessage != "" {
		payload["error"] = attempt.ErrorMessage
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checkout payload: %w", err)
	}
	return &journal.OutboxEvent{
		AggregateID: attempt.ID,
		EventType:   eventType,
		Payload:     payloadJSON,
	}, nil
}
