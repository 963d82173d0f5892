package handler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/palantiri/internal/jobs"
	"github.com/cuongbtq/palantiri/internal/metrics"
	"github.com/cuongbtq/palantiri/internal/worker/domain"
	"github.com/cuongbtq/palantiri/shared/docker"
	"github.com/cuongbtq/palantiri/shared/swarm"
)

// Handler executes one job and returns the follow-on jobs to publish.
// Follow-ons are published only when Handle returns a nil error.
type Handler interface {
	Handle(ctx context.Context, job domain.Job) ([]jobs.Outgoing, error)
}

// Func adapts a function to Handler
type Func func(ctx context.Context, job domain.Job) ([]jobs.Outgoing, error)

// Handle implements Handler
func (f Func) Handle(ctx context.Context, job domain.Job) ([]jobs.Outgoing, error) {
	return f(ctx, job)
}

// DockerClient is the docker engine API of one dock
type DockerClient interface {
	PullImage(ctx context.Context, ref string) error
	CreateContainer(ctx context.Context, spec docker.ContainerSpec) (string, error)
	StartContainer(ctx context.Context, id string) error
	ContainerLogs(ctx context.Context, id string) (string, error)
	RemoveContainer(ctx context.Context, id string) error
	KillContainer(ctx context.Context, name string) error
	PushImage(ctx context.Context, tag string) error
	RemoveImage(ctx context.Context, tag string) error
	RemoveVolume(ctx context.Context, name string) error
	ListImages(ctx context.Context) ([]docker.Image, error)
	ListDanglingVolumes(ctx context.Context) ([]docker.Volume, error)
	Close() error
}

// DockerFactory returns a client for the dock at host
type DockerFactory func(host string) (DockerClient, error)

// Cluster reads cluster membership
type Cluster interface {
	ListMembers(ctx context.Context) ([]swarm.Member, error)
	MemberExists(ctx context.Context, host string) (bool, error)
}

// Metrics records dock samples and workflow counters
type Metrics interface {
	Gauge(name string, value float64, tags map[string]string)
	ForgetDock(host string)
	ASGCreateFailed(org string, reason string)
	ObserveImagePush(t *metrics.Timer)
}

// Settings tune the handlers
type Settings struct {
	InfoImage           string        // diagnostic image run by docker-health-check
	RSSLimit            int64         // VmRSS at or above this marks a dock unhealthy
	UserRegistry        string        // tags containing this are pushed before removal
	ASGCreatedDelay     time.Duration // wait before checking an organization got docks
	SwarmAgentContainer string        // container killed on a dock being confirmed gone
	CleanupTimeout      time.Duration // deadline for removing the diagnostic container
}

// Deps are the collaborators shared by all handlers
type Deps struct {
	Docker   DockerFactory
	Cluster  Cluster
	Metrics  Metrics
	Logger   *slog.Logger
	Settings Settings
	Now      func() time.Time
}

// Registry returns a handler for every job the worker consumes
func Registry(deps Deps) map[string]Handler {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Settings.SwarmAgentContainer == "" {
		deps.Settings.SwarmAgentContainer = "swarm"
	}
	if deps.Settings.CleanupTimeout <= 0 {
		deps.Settings.CleanupTimeout = time.Minute
	}

	return map[string]Handler{
		jobs.HealthCheck:                    &healthCheck{deps: deps},
		jobs.DockerHealthCheck:              &dockerHealthCheck{deps: deps},
		jobs.OnDockUnhealthy:                Func(forwardToExistsCheck),
		jobs.DockLost:                       Func(forwardToExistsCheck),
		jobs.DockerEventsStreamDisconnected: Func(eventsStreamDisconnected),
		jobs.DockExistsCheck:                &dockExistsCheck{deps: deps},
		jobs.DockDiskFilled:                 &dockCleanup{deps: deps, mode: cleanupDiskFilled},
		jobs.DockImagesRemove:               &dockCleanup{deps: deps, mode: cleanupImages},
		jobs.DockVolumesRemove:              &dockCleanup{deps: deps, mode: cleanupVolumes},
		jobs.ImagePush:                      &imagePush{deps: deps, removeJob: jobs.ImageRemove},
		jobs.DockImagePush:                  &imagePush{deps: deps, removeJob: jobs.DockImageRemove},
		jobs.ImageRemove:                    &imageRemove{deps: deps},
		jobs.DockImageRemove:                &imageRemove{deps: deps},
		jobs.VolumeRemove:                   &volumeRemove{deps: deps},
		jobs.DockVolumeRemove:               &volumeRemove{deps: deps},
		jobs.ASGCheckCreated:                &asgCheckCreated{deps: deps},
		jobs.OrganizationCreated:            Func(organizationCreated),
	}
}

// payloadAs returns the job payload as *T
func payloadAs[T any](job domain.Job) (*T, error) {
	p, ok := job.Payload.(*T)
	if !ok || p == nil {
		return nil, domain.NewValidationError(job.Name, fmt.Errorf("unexpected payload type %T", job.Payload))
	}
	return p, nil
}

func (d Deps) logger(job domain.Job, host string) *slog.Logger {
	return d.Logger.With(
		slog.String("job", job.Name),
		slog.String("correlation_id", job.CorrelationID),
		slog.String("docker_host", host),
	)
}
