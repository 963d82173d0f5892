package domain

// Job outcome labels used in logs, metrics and error reports
const (
	OutcomeAcked     = "acked"
	OutcomeRetried   = "retried"
	OutcomeDropped   = "dropped"
	OutcomeEscalated = "escalated"
)

// Error classes recorded with error reports
const (
	ClassValidation = "validation"
	ClassTransient  = "transient"
	ClassCritical   = "critical"
	ClassStop       = "stop"
	ClassPanic      = "panic"
)
