package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/palantiri/internal/errtrack"
	"github.com/cuongbtq/palantiri/internal/jobs"
	"github.com/cuongbtq/palantiri/internal/metrics"
	"github.com/cuongbtq/palantiri/internal/worker/domain"
	"github.com/cuongbtq/palantiri/shared/rabbitmq"
)

// Message is the part of a delivery the processor reads
type Message struct {
	Body          []byte
	Headers       amqp.Table
	CorrelationID string
	DeliveryTag   uint64
}

// Acknowledger settles a delivery
type Acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func messageOf(d amqp.Delivery) Message {
	return Message{
		Body:          d.Body,
		Headers:       d.Headers,
		CorrelationID: d.CorrelationId,
		DeliveryTag:   d.DeliveryTag,
	}
}

// process runs the job in msg and decides how to settle it
func (w *Worker) process(ctx context.Context, name, queue string, msg Message) Decision {
	timer := metrics.NewTimer()
	budget := w.budget(name)

	job := domain.Job{
		Name:          name,
		CorrelationID: msg.CorrelationID,
		Attempt:       rabbitmq.RetryCount(msg.Headers, queue) + 1,
		MaxAttempts:   budget.MaxAttempts,
		DeliveryTag:   msg.DeliveryTag,
	}

	log := w.logger.With(
		slog.String("job", job.Name),
		slog.String("correlation_id", job.CorrelationID),
		slog.Int("attempt", job.Attempt),
		slog.Uint64("delivery_tag", job.DeliveryTag),
	)

	payload, err := jobs.Decode(name, msg.Body)
	if err == nil {
		job.Payload = payload
		log.Debug("Processing job")
		err = w.execute(ctx, job)
	}

	decision := Classify(err, job.Attempt, job.MaxAttempts)
	w.conclude(ctx, job, err, decision, log)

	metrics.JobsProcessed.WithLabelValues(name, decision.Outcome()).Inc()
	timer.ObserveDuration(metrics.JobDuration.WithLabelValues(name))
	return decision
}

// execute runs the handler under a recover guard and publishes its follow-ons
func (w *Worker) execute(ctx context.Context, job domain.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()

	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.jobTimeout)
	defer cancel()

	outgoing, err := w.handlers[job.Name].Handle(jobCtx, job)
	if err != nil {
		return err
	}

	if err := w.publisher.PublishAll(jobCtx, job.CorrelationID, outgoing); err != nil {
		var validationErr *domain.ValidationError
		if errors.As(err, &validationErr) {
			return err
		}
		return domain.NewTransientError(fmt.Errorf("failed to publish follow-on jobs: %w", err))
	}
	return nil
}

// conclude logs the decision, reports failures and escalates critical ones
func (w *Worker) conclude(ctx context.Context, job domain.Job, err error, decision Decision, log *slog.Logger) {
	switch decision {
	case DecisionAck:
		if err != nil {
			log.Info("Job stopped", slog.Any("reason", err))
			return
		}
		log.Debug("Job completed")

	case DecisionRetry:
		log.Warn("Job failed, retrying",
			slog.Int("max_attempts", job.MaxAttempts),
			slog.Any("error", err),
		)

	case DecisionDrop:
		log.Error("Job dropped",
			slog.Int("max_attempts", job.MaxAttempts),
			slog.Any("error", err),
		)
		w.report(ctx, job, err, "", decision)

	case DecisionEscalate:
		host := criticalHost(err, job.Payload)
		log.Error("Critical job failure",
			slog.String("docker_host", host),
			slog.Any("error", err),
		)
		if host != "" {
			unhealthy := jobs.New(jobs.OnDockUnhealthy, &jobs.DockPayload{Host: dockURI(host)})
			if pubErr := w.publisher.Publish(context.WithoutCancel(ctx), job.CorrelationID, unhealthy); pubErr != nil {
				log.Error("Failed to publish dock unhealthy",
					slog.String("docker_host", host),
					slog.Any("error", pubErr),
				)
			}
		}
		w.report(ctx, job, err, host, decision)
	}
}

func (w *Worker) report(ctx context.Context, job domain.Job, err error, host string, decision Decision) {
	if host == "" {
		if scoped, ok := job.Payload.(jobs.DockScoped); ok {
			host = scoped.DockHost()
		}
	}

	rc := errtrack.Context{
		Job:           job.Name,
		CorrelationID: job.CorrelationID,
		Host:          host,
		Class:         errorClass(err),
		Attempt:       job.Attempt,
		Extra:         map[string]any{"decision": decision.String()},
	}

	var panicErr *PanicError
	if errors.As(err, &panicErr) {
		rc.Extra["stack"] = string(panicErr.Stack)
	}

	w.reporter.Report(context.WithoutCancel(ctx), err, rc)
}

// criticalHost returns the dock a critical error concerns
func criticalHost(err error, payload any) string {
	if host, _ := domain.IsCritical(err); host != "" {
		return host
	}
	if scoped, ok := payload.(jobs.DockScoped); ok {
		return scoped.DockHost()
	}
	return ""
}

// dockURI turns a plain host:port into the http URI form docks are addressed by
func dockURI(host string) string {
	if strings.Contains(host, "://") {
		return host
	}
	return "http://" + host
}

// settle acks or rejects a delivery according to decision
func settle(ack Acknowledger, decision Decision, log *slog.Logger) {
	var err error
	if decision == DecisionRetry {
		err = ack.Nack(false, false)
	} else {
		err = ack.Ack(false)
	}

	if err != nil {
		log.Error("Failed to settle delivery",
			slog.String("decision", decision.String()),
			slog.Any("error", err),
		)
	}
}
