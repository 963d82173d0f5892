package errtrack

import (
	"context"
	"log/slog"
)

// Reporter records errors that ended or escalated a job. Implementations
// must not fail the caller.
type Reporter interface {
	Report(ctx context.Context, err error, rc Context)
}

// LogReporter logs reports at error level
type LogReporter struct {
	logger *slog.Logger
}

// NewLogReporter creates a new LogReporter
func NewLogReporter(logger *slog.Logger) *LogReporter {
	return &LogReporter{logger: logger}
}

// Report implements Reporter
func (r *LogReporter) Report(ctx context.Context, err error, rc Context) {
	attrs := []any{
		slog.String("job", rc.Job),
		slog.String("correlation_id", rc.CorrelationID),
		slog.String("class", rc.Class),
		slog.Int("attempt", rc.Attempt),
		slog.Any("error", err),
	}
	if rc.Host != "" {
		attrs = append(attrs, slog.String("docker_host", rc.Host))
	}
	for k, v := range rc.Extra {
		attrs = append(attrs, slog.Any(k, v))
	}
	r.logger.ErrorContext(ctx, "Job error reported", attrs...)
}

// MultiReporter fans a report out to every reporter
type MultiReporter []Reporter

// Report implements Reporter
func (m MultiReporter) Report(ctx context.Context, err error, rc Context) {
	for _, r := range m {
		r.Report(ctx, err, rc)
	}
}
