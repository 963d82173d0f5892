package worker

import (
	"errors"
	"fmt"

	"github.com/cuongbtq/palantiri/internal/worker/domain"
)

// Decision is what happens to a delivery after its job ran
type Decision int

const (
	// DecisionAck acknowledges a job that succeeded or stopped
	DecisionAck Decision = iota
	// DecisionRetry rejects the delivery so the broker redelivers it after the retry interval
	DecisionRetry
	// DecisionDrop acknowledges a job that failed for good and reports it
	DecisionDrop
	// DecisionEscalate acknowledges the job, marks its dock unhealthy and reports it
	DecisionEscalate
)

func (d Decision) String() string {
	switch d {
	case DecisionAck:
		return "ack"
	case DecisionRetry:
		return "retry"
	case DecisionDrop:
		return "drop"
	case DecisionEscalate:
		return "escalate"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Outcome returns the metrics label for d
func (d Decision) Outcome() string {
	switch d {
	case DecisionRetry:
		return domain.OutcomeRetried
	case DecisionDrop:
		return domain.OutcomeDropped
	case DecisionEscalate:
		return domain.OutcomeEscalated
	default:
		return domain.OutcomeAcked
	}
}

// PanicError is a recovered handler panic
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%v: %v", domain.ErrHandlerPanic, e.Value)
}

func (e *PanicError) Unwrap() error {
	return domain.ErrHandlerPanic
}

// Classify maps a job result to a Decision. attempt is 1-based.
// Errors outside the taxonomy are treated as transient.
func Classify(err error, attempt, maxAttempts int) Decision {
	if err == nil {
		return DecisionAck
	}

	var panicErr *PanicError
	if errors.As(err, &panicErr) {
		return DecisionDrop
	}

	if _, critical := domain.IsCritical(err); critical {
		return DecisionEscalate
	}

	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) || errors.Is(err, domain.ErrUnknownJob) {
		return DecisionDrop
	}

	var stopErr *domain.StopError
	if errors.As(err, &stopErr) {
		return DecisionAck
	}

	if attempt < maxAttempts {
		return DecisionRetry
	}
	return DecisionDrop
}

// errorClass names the taxonomy class of err for reports
func errorClass(err error) string {
	var (
		panicErr      *PanicError
		validationErr *domain.ValidationError
		stopErr       *domain.StopError
	)
	switch {
	case errors.As(err, &panicErr):
		return domain.ClassPanic
	case isCritical(err):
		return domain.ClassCritical
	case errors.As(err, &validationErr):
		return domain.ClassValidation
	case errors.As(err, &stopErr):
		return domain.ClassStop
	default:
		return domain.ClassTransient
	}
}

func isCritical(err error) bool {
	_, critical := domain.IsCritical(err)
	return critical
}
