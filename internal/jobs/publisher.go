package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/palantiri/internal/metrics"
)

// Broker publishes raw messages
type Broker interface {
	Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error
}

// Outgoing is a follow-on job returned by a handler
type Outgoing struct {
	Name    string
	Payload any
}

// New builds an Outgoing job
func New(name string, payload any) Outgoing {
	return Outgoing{Name: name, Payload: payload}
}

// Publisher validates jobs against the catalogue and publishes them
type Publisher struct {
	broker Broker
	logger *slog.Logger
	now    func() time.Time
}

// NewPublisher creates a new Publisher
func NewPublisher(broker Broker, logger *slog.Logger) *Publisher {
	return &Publisher{
		broker: broker,
		logger: logger,
		now:    time.Now,
	}
}

// Publish validates and publishes one job. An empty correlationID gets a fresh one.
func (p *Publisher) Publish(ctx context.Context, correlationID string, job Outgoing) error {
	if err := Validate(job.Name, job.Payload); err != nil {
		return err
	}
	return p.send(ctx, correlationID, job)
}

// PublishAll validates every job before publishing any of them
func (p *Publisher) PublishAll(ctx context.Context, correlationID string, outgoing []Outgoing) error {
	for _, job := range outgoing {
		if err := Validate(job.Name, job.Payload); err != nil {
			return err
		}
	}

	for _, job := range outgoing {
		if err := p.send(ctx, correlationID, job); err != nil {
			return err
		}
	}
	return nil
}

// PublishRaw decodes body against the schema for name and publishes it
func (p *Publisher) PublishRaw(ctx context.Context, name string, body []byte) (string, error) {
	payload, err := Decode(name, body)
	if err != nil {
		return "", err
	}

	correlationID := uuid.NewString()
	if err := p.send(ctx, correlationID, New(name, payload)); err != nil {
		return "", err
	}
	return correlationID, nil
}

func (p *Publisher) send(ctx context.Context, correlationID string, job Outgoing) error {
	def := MustLookup(job.Name)

	body, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", job.Name, err)
	}

	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	exchange, routingKey := def.Route()
	msg := amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     uuid.NewString(),
		CorrelationId: correlationID,
		Type:          job.Name,
		Timestamp:     p.now(),
		Body:          body,
	}

	if err := p.broker.Publish(ctx, exchange, routingKey, msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", job.Name, err)
	}

	metrics.JobsPublished.WithLabelValues(job.Name).Inc()
	p.logger.Debug("Published job",
		slog.String("job", job.Name),
		slog.String("kind", string(def.Kind)),
		slog.String("correlation_id", correlationID),
	)
	return nil
}
