package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/palantiri/internal/jobs"
)

// consumer owns the subscription to one job queue
type consumer struct {
	w         *Worker
	job       string
	queue     string
	tag       string
	reconnect <-chan struct{}
	logger    *slog.Logger
}

func (w *Worker) newConsumer(job string) *consumer {
	queue := jobs.QueueName(w.service, job)
	return &consumer{
		w:         w,
		job:       job,
		queue:     queue,
		tag:       fmt.Sprintf("%s.%s", queue, uuid.NewString()[:8]),
		reconnect: w.broker.NotifyReconnect(),
		logger:    w.logger.With(slog.String("queue", queue)),
	}
}

// run consumes until ctx is canceled, resubscribing after connection loss
func (c *consumer) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		ch, deliveries, err := c.setup()
		if err != nil {
			c.logger.Error("Failed to start consumer", slog.Any("error", err))
			if !c.wait(ctx) {
				return
			}
			continue
		}

		c.dispatch(ctx, deliveries)
		_ = ch.Close()

		if ctx.Err() != nil {
			c.logger.Info("Consumer stopped")
			return
		}

		c.logger.Warn("RabbitMQ delivery channel closed, waiting to resubscribe")
		if !c.wait(ctx) {
			return
		}
	}
}

// setup sets up the channel with QoS and returns the delivery channel
func (c *consumer) setup() (*amqp.Channel, <-chan amqp.Delivery, error) {
	ch, err := c.w.broker.Channel()
	if err != nil {
		return nil, nil, err
	}

	// per-consumer prefetch bounds in-flight jobs per queue
	if err := ch.Qos(c.w.prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := ch.Consume(
		c.queue,
		c.tag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return nil, nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("RabbitMQ consumer started",
		slog.String("consumer_tag", c.tag),
		slog.Int("prefetch", c.w.prefetch),
	)
	return ch, deliveries, nil
}

// wait blocks until the client reconnects or the fallback delay passes
func (c *consumer) wait(ctx context.Context) bool {
	timer := time.NewTimer(c.w.reconnectDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-c.reconnect:
		return true
	case <-timer.C:
		return true
	}
}
