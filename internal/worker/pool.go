package worker

import (
	"context"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// dispatch spawns prefetch goroutines that drain deliveries, and returns
// when the delivery channel closes or ctx is canceled.
func (c *consumer) dispatch(ctx context.Context, deliveries <-chan amqp.Delivery) {
	var wg sync.WaitGroup
	for i := 0; i < c.w.prefetch; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			c.loop(ctx, deliveries, n)
		}(i)
	}
	wg.Wait()
}

func (c *consumer) loop(ctx context.Context, deliveries <-chan amqp.Delivery, n int) {
	log := c.logger.With(slog.Int("slot", n))

	for {
		select {
		case <-ctx.Done():
			return

		case delivery, ok := <-deliveries:
			if !ok {
				return
			}

			decision := c.w.process(ctx, c.job, c.queue, messageOf(delivery))
			settle(delivery, decision, log)
		}
	}
}
