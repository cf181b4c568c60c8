package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fjod/go_storefront/internal/checkout"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Sessions is the in-memory session state of this gateway instance.
type Sessions interface {
	Invalidate(sessionID, checkoutID string) bool
}

type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// NewKafkaReader reads topic in its own consumer group, so every gateway
// instance sees every checkout event.
func NewKafkaReader(topic, groupID string, brokers ...string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		StartOffset: kafka.LastOffset,
		MaxBytes:    10e6, // 10MB
	})
}

// SessionInvalidator drops sessions checked out on another instance, whose
// in-memory cart would otherwise still show the purchased items.
type SessionInvalidator struct {
	reader   MessageReader
	sessions Sessions
	backoff  time.Duration
	logger   *zap.Logger
}

func NewSessionInvalidator(reader MessageReader, sessions Sessions, logger *zap.Logger) *SessionInvalidator {
	return &SessionInvalidator{
		reader:   reader,
		sessions: sessions,
		backoff:  time.Second,
		logger:   logger.Named("invalidator"),
	}
}

func (s *SessionInvalidator) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := s.consume(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("error reading message", zap.Error(err))
			select {
			case <-time.After(s.backoff):
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *SessionInvalidator) Close() error {
	return s.reader.Close()
}

type checkoutEvent struct {
	CheckoutID string `json:"checkout_id"`
	SessionID  string `json:"session_id"`
}

// consume handles one message. Undecodable messages are logged and skipped.
func (s *SessionInvalidator) consume(ctx context.Context) error {
	m, err := s.reader.ReadMessage(ctx)
	if err != nil {
		return err
	}
	if eventType(m) != checkout.EventCheckoutSucceeded {
		return nil
	}

	var event checkoutEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		s.logger.Error("error parsing message", zap.Error(err))
		return nil
	}
	if event.SessionID == "" {
		s.logger.Error("missing or invalid session_id", zap.String("checkout_id", event.CheckoutID))
		return nil
	}

	if s.sessions.Invalidate(event.SessionID, event.CheckoutID) {
		s.logger.Debug("session invalidated", zap.String("session_id", event.SessionID), zap.String("checkout_id", event.CheckoutID))
	}
	return nil
}

func eventType(m kafka.Message) string {
	for _, h := range m.Headers {
		if h.Key == "event_type" {
			return string(h.Value)
		}
	}
	return ""
}
