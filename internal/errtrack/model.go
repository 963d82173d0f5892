package errtrack

import (
	"time"
)

// Context describes the job an error came from
type Context struct {
	Job           string
	CorrelationID string
	Host          string
	Class         string
	Attempt       int
	Extra         map[string]any
}

// Report is a stored error report
type Report struct {
	ReportID      string    `db:"report_id" json:"report_id"`
	JobName       string    `db:"job_name" json:"job_name"`
	CorrelationID string    `db:"correlation_id" json:"correlation_id"`
	DockHost      string    `db:"dock_host" json:"dock_host,omitempty"`
	Class         string    `db:"class" json:"class"`
	Message       string    `db:"message" json:"message"`
	Context       []byte    `db:"context" json:"-"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}
