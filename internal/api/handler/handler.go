package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/palantiri/internal/config"
	"github.com/cuongbtq/palantiri/internal/errtrack"
)

// Publisher validates and publishes a raw job payload
type Publisher interface {
	PublishRaw(ctx context.Context, name string, body []byte) (string, error)
}

// ReportLister pages through stored error reports
type ReportLister interface {
	List(ctx context.Context, filter errtrack.Filter) ([]errtrack.Report, error)
}

// BrokerStatus reports whether the broker connection is up
type BrokerStatus interface {
	IsConnected() bool
}

// DatabaseStatus pings the database
type DatabaseStatus interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers. Reports and
// Database are nil when error reports are not stored.
type Dependencies struct {
	Logger    *slog.Logger
	Service   string
	Publisher Publisher
	Reports   ReportLister
	Broker    BrokerStatus
	Database  DatabaseStatus
	Budget    func(name string) config.RetryBudget
}

// JobHandler handles job catalogue and publish requests
type JobHandler struct {
	logger    *slog.Logger
	publisher Publisher
	budget    func(name string) config.RetryBudget
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:    deps.Logger,
		publisher: deps.Publisher,
		budget:    deps.Budget,
	}
}

// ReportHandler handles error report queries
type ReportHandler struct {
	logger  *slog.Logger
	reports ReportLister
}

// NewReportHandler creates a new ReportHandler instance
func NewReportHandler(deps *Dependencies) *ReportHandler {
	return &ReportHandler{
		logger:  deps.Logger,
		reports: deps.Reports,
	}
}

// HealthHandler reports connectivity of the service's dependencies
type HealthHandler struct {
	service  string
	broker   BrokerStatus
	database DatabaseStatus
}

// NewHealthHandler creates a new HealthHandler instance
func NewHealthHandler(deps *Dependencies) *HealthHandler {
	return &HealthHandler{
		service:  deps.Service,
		broker:   deps.Broker,
		database: deps.Database,
	}
}
