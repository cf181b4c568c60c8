// Package publisher forwards the checkout outbox to Kafka.
package publisher

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/go_storefront/domain"
	"github.com/fjod/go_storefront/internal/checkout"
	"github.com/fjod/go_storefront/internal/journal"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	DefaultTopic = "storefront-checkout"
	batchSize    = 100
)

type Repository interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*journal.OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
	GetStaleAttempts(ctx context.Context, cutoff time.Time, limit int) ([]*journal.Attempt, error)
	CompleteAttempt(ctx context.Context, a *journal.Attempt, event *journal.OutboxEvent) error
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type OutboxPoller struct {
	timeout      time.Duration
	eventTick    time.Duration
	recoveryTick time.Duration
	staleAfter   time.Duration
	repo         Repository
	writer       MessageWriter
	logger       *zap.Logger
}

func NewKafkaWriter(topic string, brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
}

type PollerOption func(*OutboxPoller)

// WithStaleAfter sets how long an attempt may stay SUBMITTING without progress
// before it is recovered as interrupted. Keep it above the checkout timeout.
func WithStaleAfter(d time.Duration) PollerOption {
	return func(p *OutboxPoller) { p.staleAfter = d }
}

func NewOutboxPoller(repo Repository, writer MessageWriter, logger *zap.Logger, opts ...PollerOption) *OutboxPoller {
	p := &OutboxPoller{
		timeout:      5 * time.Second,
		eventTick:    time.Second,
		recoveryTick: 30 * time.Second,
		staleAfter:   2 * time.Minute,
		repo:         repo,
		writer:       writer,
		logger:       logger.Named("outbox"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	recoveryTicker := time.NewTicker(p.recoveryTick)
	defer eventTicker.Stop()
	defer recoveryTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-recoveryTicker.C:
			p.recoverStaleAttempts(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) Close() error {
	return p.writer.Close()
}

func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) {
	events, err := p.repo.GetUnprocessedEvents(ctx, batchSize)
	if err != nil {
		p.logger.Error("failed to fetch events", zap.Error(err))
		return
	}

	for _, event := range events {
		if err := p.publish(ctx, event); err != nil {
			// stop here so events keep their order per checkout
			p.logger.Warn("failed to publish event", zap.Int64("event_id", event.ID), zap.Error(err))
			return
		}

		if err := p.repo.MarkEventAsProcessed(ctx, event.ID); err != nil {
			p.logger.Error("failed to mark event as processed", zap.Int64("event_id", event.ID), zap.Error(err))
			continue
		}
	}
}

// recoverStaleAttempts fails attempts left SUBMITTING by a process that died
// mid-checkout, so their outcome still reaches the outbox.
func (p *OutboxPoller) recoverStaleAttempts(ctx context.Context) {
	attempts, err := p.repo.GetStaleAttempts(ctx, time.Now().Add(-p.staleAfter), batchSize)
	if err != nil {
		p.logger.Error("failed to get stale attempts", zap.Error(err))
		return
	}
	for _, attempt := range attempts {
		attempt.Status = domain.CheckoutStatusFailed
		attempt.ErrorMessage = "checkout interrupted"

		event, err := checkout.NewOutboxEvent(attempt, checkout.EventCheckoutFailed)
		if err != nil {
			p.logger.Error("failed to build event for stale attempt", zap.String("checkout_id", attempt.ID), zap.Error(err))
			continue
		}
		err = p.repo.CompleteAttempt(ctx, attempt, event)
		if errors.Is(err, journal.ErrAttemptCompleted) {
			p.logger.Debug("stale attempt finished before recovery", zap.String("checkout_id", attempt.ID))
			continue
		}
		if err != nil {
			p.logger.Error("failed to complete stale attempt", zap.String("checkout_id", attempt.ID), zap.Error(err))
			continue
		}
		p.logger.Info("stale checkout attempt recovered", zap.String("checkout_id", attempt.ID), zap.String("step", attempt.Step))
	}
}

func (p *OutboxPoller) publish(ctx context.Context, event *journal.OutboxEvent) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(event.AggregateID), // checkout_id for ordering
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
		Time: event.CreatedAt,
	}
	return p.writer.WriteMessages(ctx, msg)
}
