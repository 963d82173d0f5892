package rabbitmq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange declares a durable exchange
type Exchange struct {
	Name string
	Kind string // fanout, direct, topic
}

// Queue declares a durable queue
type Queue struct {
	Name string
	Args amqp.Table
}

// Binding binds a queue to an exchange
type Binding struct {
	Queue      string
	Exchange   string
	RoutingKey string
}

// Topology is the set of broker objects a service needs
type Topology struct {
	Exchanges []Exchange
	Queues    []Queue
	Bindings  []Binding
}

// Declarer is the subset of *amqp.Channel used to declare a topology
type Declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// Declare declares exchanges, then queues, then bindings. Declarations are idempotent.
func (t Topology) Declare(ch Declarer) error {
	for _, ex := range t.Exchanges {
		if err := ch.ExchangeDeclare(ex.Name, ex.Kind, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare exchange %s: %w", ex.Name, err)
		}
	}

	for _, q := range t.Queues {
		if _, err := ch.QueueDeclare(q.Name, true, false, false, false, q.Args); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", q.Name, err)
		}
	}

	for _, b := range t.Bindings {
		if err := ch.QueueBind(b.Queue, b.RoutingKey, b.Exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %s to %s: %w", b.Queue, b.Exchange, err)
		}
	}

	return nil
}

// DeclareTopology declares t on a short-lived channel
func (c *Client) DeclareTopology(ctx context.Context, t Topology) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ch, err := c.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := t.Declare(ch); err != nil {
		return err
	}

	c.logger.Info("Declared RabbitMQ topology",
		"exchanges", len(t.Exchanges),
		"queues", len(t.Queues),
		"bindings", len(t.Bindings),
	)
	return nil
}

// RetryCount returns how many times a delivery was rejected from queue,
// read from the x-death header the broker maintains on dead-lettering.
func RetryCount(headers amqp.Table, queue string) int {
	raw, ok := headers["x-death"]
	if !ok {
		return 0
	}

	deaths, ok := raw.([]interface{})
	if !ok {
		return 0
	}

	for _, d := range deaths {
		death, ok := d.(amqp.Table)
		if !ok {
			continue
		}
		if death["queue"] != queue || death["reason"] != "rejected" {
			continue
		}
		switch count := death["count"].(type) {
		case int64:
			return int(count)
		case int32:
			return int(count)
		case int:
			return count
		}
	}
	return 0
}
