package worker

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/palantiri/internal/errtrack"
	"github.com/cuongbtq/palantiri/internal/jobs"
	"github.com/cuongbtq/palantiri/internal/worker/handler"
	"github.com/cuongbtq/palantiri/shared/rabbitmq"
)

// Broker is the part of the RabbitMQ client the worker consumes through
type Broker interface {
	Channel() (*amqp.Channel, error)
	NotifyReconnect() <-chan struct{}
	DeclareTopology(ctx context.Context, t rabbitmq.Topology) error
}

// Publisher publishes follow-on and escalation jobs
type Publisher interface {
	Publish(ctx context.Context, correlationID string, job jobs.Outgoing) error
	PublishAll(ctx context.Context, correlationID string, outgoing []jobs.Outgoing) error
}

// Budget is the retry budget of one job
type Budget struct {
	MaxAttempts   int
	RetryInterval time.Duration
}

// Config holds worker configuration
type Config struct {
	Logger         *slog.Logger
	Broker         Broker
	Publisher      Publisher
	Reporter       errtrack.Reporter
	Handlers       map[string]handler.Handler
	Budget         func(name string) Budget
	Service        string
	Prefetch       int
	JobTimeout     time.Duration
	ReconnectDelay time.Duration
}

// Worker consumes one queue per handled job and runs its handler
type Worker struct {
	logger         *slog.Logger
	broker         Broker
	publisher      Publisher
	reporter       errtrack.Reporter
	handlers       map[string]handler.Handler
	budget         func(name string) Budget
	service        string
	prefetch       int
	jobTimeout     time.Duration
	reconnectDelay time.Duration

	wg     sync.WaitGroup
	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewWorker creates a new worker instance. It panics when a handler is
// registered for a job name the catalogue does not know.
func NewWorker(cfg *Config) *Worker {
	for name := range cfg.Handlers {
		jobs.MustLookup(name)
	}

	w := &Worker{
		logger:         cfg.Logger,
		broker:         cfg.Broker,
		publisher:      cfg.Publisher,
		reporter:       cfg.Reporter,
		handlers:       cfg.Handlers,
		budget:         cfg.Budget,
		service:        cfg.Service,
		prefetch:       cfg.Prefetch,
		jobTimeout:     cfg.JobTimeout,
		reconnectDelay: cfg.ReconnectDelay,
	}

	if w.reporter == nil {
		w.reporter = errtrack.NewLogReporter(w.logger)
	}
	if w.budget == nil {
		w.budget = func(string) Budget { return Budget{MaxAttempts: 5, RetryInterval: 15 * time.Second} }
	}
	if w.prefetch <= 0 {
		w.prefetch = 1
	}
	if w.jobTimeout <= 0 {
		w.jobTimeout = 5 * time.Minute
	}
	if w.reconnectDelay <= 0 {
		w.reconnectDelay = 5 * time.Second
	}
	return w
}

// Jobs returns the names of the handled jobs in sorted order
func (w *Worker) Jobs() []string {
	names := make([]string, 0, len(w.handlers))
	for name := range w.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Topology returns the broker objects the worker needs
func (w *Worker) Topology() rabbitmq.Topology {
	var subscribed []string
	for _, name := range w.Jobs() {
		if jobs.MustLookup(name).Kind == jobs.KindEvent {
			subscribed = append(subscribed, name)
		}
	}

	return jobs.Topology(w.service, subscribed, func(name string) time.Duration {
		return w.budget(name).RetryInterval
	})
}

// Start declares the topology and starts one consumer per job.
// It returns once the consumers are running.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return errors.New("worker already started")
	}

	if err := w.broker.DeclareTopology(ctx, w.Topology()); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	reconnected := w.broker.NotifyReconnect()
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.redeclare(ctx, reconnected)
	}()

	for _, name := range w.Jobs() {
		c := w.newConsumer(name)
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			c.run(ctx)
		}()
	}

	w.logger.Info("Worker started",
		slog.String("service", w.service),
		slog.Int("jobs", len(w.handlers)),
		slog.Int("prefetch", w.prefetch),
		slog.Duration("job_timeout", w.jobTimeout),
	)
	return nil
}

// redeclare restores the topology after every reconnect, in case the
// broker lost it
func (w *Worker) redeclare(ctx context.Context, reconnected <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-reconnected:
			if err := w.broker.DeclareTopology(ctx, w.Topology()); err != nil {
				w.logger.Error("Failed to redeclare topology", slog.Any("error", err))
			}
		}
	}
}

// Stop cancels consumption and waits for in-flight jobs to finish
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()

	if cancel == nil {
		return
	}

	w.logger.Info("Stopping worker...")
	cancel()
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
