package domain

// Job is the immutable context of one job execution
type Job struct {
	Name          string
	Payload       any // typed payload from the jobs catalogue
	CorrelationID string
	Attempt       int // 1-based
	MaxAttempts   int
	DeliveryTag   uint64
}

// LastAttempt reports whether a failure now exhausts the retry budget
func (j Job) LastAttempt() bool {
	return j.Attempt >= j.MaxAttempts
}
