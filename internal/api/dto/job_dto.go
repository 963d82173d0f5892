package dto

import (
	"encoding/json"
	"time"
)

type JobDTO struct {
	Name          string `json:"name"`
	Kind          string `json:"kind"`
	MaxAttempts   int    `json:"max_attempts"`
	RetryInterval string `json:"retry_interval"`
}

type ListJobsResponse struct {
	Jobs []JobDTO `json:"jobs"`
}

type PublishJobResponse struct {
	Job           string `json:"job"`
	CorrelationID string `json:"correlation_id"`
}

type ListReportsRequest struct {
	JobName  string `form:"job"`
	Class    string `form:"class"`
	DockHost string `form:"dock_host"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ReportDTO struct {
	ReportID      string          `json:"report_id"`
	JobName       string          `json:"job_name"`
	CorrelationID string          `json:"correlation_id"`
	DockHost      string          `json:"dock_host,omitempty"`
	Class         string          `json:"class"`
	Message       string          `json:"message"`
	Context       json.RawMessage `json:"context,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

type ListReportsResponse struct {
	Reports    []ReportDTO `json:"reports"`
	NextCursor string      `json:"next_cursor,omitempty"`
}
