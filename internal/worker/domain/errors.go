package domain

import (
	"errors"
	"strings"
)

var (
	// ErrUnknownJob is returned when a job name has no registered definition
	ErrUnknownJob = errors.New("unknown job")

	// ErrDockNotFound is returned when a dock is no longer a cluster member
	ErrDockNotFound = errors.New("dock does not exist")

	// ErrDockStillExists is returned while a dock is still a cluster member
	ErrDockStillExists = errors.New("dock still exists")

	// ErrInvalidDiagnostics is returned when the diagnostic container output cannot be parsed
	ErrInvalidDiagnostics = errors.New("invalid diagnostic output")

	// ErrNotReady is returned when a check is attempted before its delay has elapsed
	ErrNotReady = errors.New("not ready yet")

	// ErrNoDocks is returned when an organization has no docks in the cluster
	ErrNoDocks = errors.New("organization has no docks")

	// ErrHandlerPanic is reported when a handler panics
	ErrHandlerPanic = errors.New("handler panicked")
)

// outOfMemoryPatterns are matched case-insensitively against error text.
var outOfMemoryPatterns = []string{
	"cannot allocate memory",
	"out of memory",
}

// ValidationError is a payload that does not match its job schema. Never retried.
type ValidationError struct {
	Job string
	Err error
}

func (e *ValidationError) Error() string {
	return "validation failed for " + e.Job + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new validation error
func NewValidationError(job string, err error) error {
	return &ValidationError{Job: job, Err: err}
}

// TransientError wraps failures that should be retried by the broker
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "transient error: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError creates a new transient error
func NewTransientError(err error) error {
	return &TransientError{Err: err}
}

// CriticalError means the dock at Host is in a state that needs remediation.
type CriticalError struct {
	Host string
	Err  error
}

func (e *CriticalError) Error() string {
	if e.Host == "" {
		return "critical error: " + e.Err.Error()
	}
	return "critical error on " + e.Host + ": " + e.Err.Error()
}

func (e *CriticalError) Unwrap() error {
	return e.Err
}

// NewCriticalError creates a new critical error
func NewCriticalError(host string, err error) error {
	return &CriticalError{Host: host, Err: err}
}

// StopError ends a job without retry. The outcome counts as handled.
type StopError struct {
	Err error
}

func (e *StopError) Error() string {
	return "stopped: " + e.Err.Error()
}

func (e *StopError) Unwrap() error {
	return e.Err
}

// NewStopError creates a new stop error
func NewStopError(err error) error {
	return &StopError{Err: err}
}

// IsOutOfMemory reports whether the error text describes memory exhaustion.
func IsOutOfMemory(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range outOfMemoryPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// IsCritical reports whether err is a CriticalError or reads like memory
// exhaustion. The returned host is empty when it is not known from the error.
func IsCritical(err error) (string, bool) {
	var critical *CriticalError
	if errors.As(err, &critical) {
		return critical.Host, true
	}
	if IsOutOfMemory(err) {
		return "", true
	}
	return "", false
}
