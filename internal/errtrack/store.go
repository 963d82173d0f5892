package errtrack

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const schema = `
CREATE TABLE IF NOT EXISTS error_reports (
	report_id      UUID PRIMARY KEY,
	job_name       TEXT NOT NULL,
	correlation_id TEXT NOT NULL DEFAULT '',
	dock_host      TEXT NOT NULL DEFAULT '',
	class          TEXT NOT NULL,
	message        TEXT NOT NULL,
	context        JSONB NOT NULL DEFAULT '{}',
	created_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS error_reports_created_idx ON error_reports (created_at DESC, report_id DESC);
`

// DB is the part of *sqlx.DB the store uses
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

// Store persists error reports in PostgreSQL
type Store struct {
	db  DB
	now func() time.Time
}

// NewStore creates a new Store
func NewStore(db DB) *Store {
	return &Store{db: db, now: time.Now}
}

// EnsureSchema creates the error_reports table when missing
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create error_reports table: %w", err)
	}
	return nil
}

// Insert stores one report
func (s *Store) Insert(ctx context.Context, err error, rc Context) (*Report, error) {
	extra := map[string]any{"attempt": rc.Attempt}
	for k, v := range rc.Extra {
		extra[k] = v
	}
	raw, jsonErr := json.Marshal(extra)
	if jsonErr != nil {
		return nil, fmt.Errorf("failed to marshal report context: %w", jsonErr)
	}

	report := &Report{
		ReportID:      uuid.NewString(),
		JobName:       rc.Job,
		CorrelationID: rc.CorrelationID,
		DockHost:      rc.Host,
		Class:         rc.Class,
		Message:       err.Error(),
		Context:       raw,
		CreatedAt:     s.now().UTC(),
	}

	query := `
		INSERT INTO error_reports (
			report_id, job_name, correlation_id, dock_host,
			class, message, context, created_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8
		)
	`

	_, execErr := s.db.ExecContext(ctx, query,
		report.ReportID,
		report.JobName,
		report.CorrelationID,
		report.DockHost,
		report.Class,
		report.Message,
		string(report.Context),
		report.CreatedAt,
	)
	if execErr != nil {
		return nil, fmt.Errorf("failed to insert error report: %w", execErr)
	}
	return report, nil
}

// Filter selects reports for List
type Filter struct {
	JobName  string
	Class    string
	DockHost string
	PageSize int
	Cursor   *Cursor
}

// Cursor is the position after the last report of a page
type Cursor struct {
	CreatedAt time.Time
	ReportID  string
}

// List returns reports newest first. It fetches PageSize+1 rows so the
// caller can tell whether another page exists.
func (s *Store) List(ctx context.Context, filter Filter) ([]Report, error) {
	query := `
		SELECT
			report_id, job_name, correlation_id, dock_host,
			class, message, context, created_at
		FROM error_reports
		WHERE 1=1
	`
	args := []any{}
	argIdx := 1

	if filter.JobName != "" {
		query += fmt.Sprintf(" AND job_name = $%d", argIdx)
		args = append(args, filter.JobName)
		argIdx++
	}

	if filter.Class != "" {
		query += fmt.Sprintf(" AND class = $%d", argIdx)
		args = append(args, filter.Class)
		argIdx++
	}

	if filter.DockHost != "" {
		query += fmt.Sprintf(" AND dock_host = $%d", argIdx)
		args = append(args, filter.DockHost)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, report_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.ReportID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, report_id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var reports []Report
	if err := s.db.SelectContext(ctx, &reports, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list error reports: %w", err)
	}
	return reports, nil
}

// PostgresReporter stores every report and logs when storing fails
type PostgresReporter struct {
	store  *Store
	logger *slog.Logger
}

// NewPostgresReporter creates a new PostgresReporter
func NewPostgresReporter(store *Store, logger *slog.Logger) *PostgresReporter {
	return &PostgresReporter{store: store, logger: logger}
}

// Report implements Reporter
func (r *PostgresReporter) Report(ctx context.Context, err error, rc Context) {
	if _, storeErr := r.store.Insert(context.WithoutCancel(ctx), err, rc); storeErr != nil {
		r.logger.Error("Failed to store error report",
			slog.String("job", rc.Job),
			slog.String("correlation_id", rc.CorrelationID),
			slog.Any("error", storeErr),
		)
	}
}
