package jobs

import (
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/palantiri/shared/rabbitmq"
)

const retrySuffix = ".retry"

// QueueName returns the queue a service consumes job name from. Tasks share
// one queue per name; every service gets its own queue per event.
func QueueName(service, name string) string {
	if MustLookup(name).Kind == KindEvent {
		return service + "." + name
	}
	return name
}

// RetryQueueName returns the holding queue for rejected deliveries of queue
func RetryQueueName(queue string) string {
	return queue + retrySuffix
}

// Topology builds the broker objects for the whole catalogue. Every task gets
// its queue and every event its fanout exchange; events in subscribed also
// get a service queue. Each consumed queue dead-letters rejected messages to
// a retry queue whose TTL is the job's retry interval and which dead-letters
// back to the consumed queue.
func Topology(service string, subscribed []string, retryInterval func(name string) time.Duration) rabbitmq.Topology {
	subs := make(map[string]bool, len(subscribed))
	for _, name := range subscribed {
		subs[name] = true
	}

	var t rabbitmq.Topology
	for _, def := range Catalogue() {
		if def.Kind == KindEvent {
			t.Exchanges = append(t.Exchanges, rabbitmq.Exchange{Name: def.Name, Kind: amqp.ExchangeFanout})
			if !subs[def.Name] {
				continue
			}
		}

		queue := QueueName(service, def.Name)
		t.Queues = append(t.Queues, retryingQueues(queue, retryInterval(def.Name))...)
		if def.Kind == KindEvent {
			t.Bindings = append(t.Bindings, rabbitmq.Binding{Queue: queue, Exchange: def.Name})
		}
	}
	return t
}

func retryingQueues(queue string, interval time.Duration) []rabbitmq.Queue {
	retryQueue := RetryQueueName(queue)
	return []rabbitmq.Queue{
		{
			Name: queue,
			Args: amqp.Table{
				"x-dead-letter-exchange":    "",
				"x-dead-letter-routing-key": retryQueue,
			},
		},
		{
			Name: retryQueue,
			Args: amqp.Table{
				"x-message-ttl":             interval.Milliseconds(),
				"x-dead-letter-exchange":    "",
				"x-dead-letter-routing-key": queue,
			},
		},
	}
}
