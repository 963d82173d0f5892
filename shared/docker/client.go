package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/cuongbtq/palantiri/internal/metrics"
	"github.com/cuongbtq/palantiri/shared/retry"
)

var (
	// ErrNotFound is returned when the docker API answers 404
	ErrNotFound = errors.New("docker resource not found")

	// ErrConflict is returned when the docker API answers 409
	ErrConflict = errors.New("docker resource conflict")

	// ErrStderr is returned when a container wrote to stderr
	ErrStderr = errors.New("container wrote to stderr")
)

// Config holds docker engine client configuration
type Config struct {
	APIVersion    string // empty negotiates with the daemon
	TLSCertPath   string // directory with ca.pem, cert.pem and key.pem
	RegistryAuth  string // base64 encoded auth config for pushes
	RetryAttempts int
	RetryInterval time.Duration
	CallTimeout   time.Duration
}

// ContainerSpec describes a container to create
type ContainerSpec struct {
	Image      string
	Env        []string
	Labels     map[string]string
	Privileged bool
	PidMode    string
}

// Image is an image present on a dock
type Image struct {
	ID       string
	RepoTags []string
}

// Volume is a volume present on a dock
type Volume struct {
	Name string
}

// Client talks to the docker engine of one dock. Every call is retried up
// to RetryAttempts times and each attempt gets its own CallTimeout.
type Client struct {
	host   string
	api    client.APIClient
	config Config
	logger *slog.Logger
}

// NewClient creates a client for the dock at host
func NewClient(host string, config Config, logger *slog.Logger) (*Client, error) {
	opts := []client.Opt{client.WithHost(EngineHost(host))}
	if config.APIVersion != "" {
		opts = append(opts, client.WithVersion(config.APIVersion))
	} else {
		opts = append(opts, client.WithAPIVersionNegotiation())
	}
	if config.TLSCertPath != "" {
		opts = append(opts, client.WithTLSClientConfig(
			filepath.Join(config.TLSCertPath, "ca.pem"),
			filepath.Join(config.TLSCertPath, "cert.pem"),
			filepath.Join(config.TLSCertPath, "key.pem"),
		))
	}

	api, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client for %s: %w", host, err)
	}

	return newClient(host, api, config, logger), nil
}

func newClient(host string, api client.APIClient, config Config, logger *slog.Logger) *Client {
	if config.RetryAttempts <= 0 {
		config.RetryAttempts = 1
	}
	return &Client{
		host:   host,
		api:    api,
		config: config,
		logger: logger.With(slog.String("docker_host", host)),
	}
}

// EngineHost converts a dock URI such as http://10.0.0.1:4242 to the
// tcp://10.0.0.1:4242 form the docker client expects.
func EngineHost(host string) string {
	for _, scheme := range []string{"http://", "https://"} {
		if strings.HasPrefix(host, scheme) {
			return "tcp://" + strings.TrimSuffix(strings.TrimPrefix(host, scheme), "/")
		}
	}
	if !strings.Contains(host, "://") {
		return "tcp://" + host
	}
	return host
}

// Host returns the dock this client talks to
func (c *Client) Host() string {
	return c.host
}

// Close releases the underlying transport
func (c *Client) Close() error {
	return c.api.Close()
}

// call runs fn with retries. 404 and 409 answers are final.
func call[T any](ctx context.Context, c *Client, operation string, fn func(ctx context.Context) (T, error)) (T, error) {
	attempt := 0
	return retry.DoValue(ctx, c.config.RetryAttempts, c.config.RetryInterval, func(ctx context.Context) (T, error) {
		attempt++
		callCtx := ctx
		if c.config.CallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.config.CallTimeout)
			defer cancel()
		}

		result, err := fn(callCtx)
		if err == nil {
			return result, nil
		}

		metrics.RemoteCallFailures.WithLabelValues(operation).Inc()
		err = translate(err)
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
			return result, retry.Stop(fmt.Errorf("failed to %s: %w", operation, err))
		}

		c.logger.Warn("Docker call failed",
			slog.String("operation", operation),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", c.config.RetryAttempts),
			slog.Any("error", err),
		)
		return result, fmt.Errorf("failed to %s: %w", operation, err)
	})
}

func translate(err error) error {
	switch {
	case errdefs.IsNotFound(err):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errdefs.IsConflict(err):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	default:
		return err
	}
}

func do(ctx context.Context, c *Client, operation string, fn func(ctx context.Context) error) error {
	_, err := call(ctx, c, operation, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// drain reads a JSON progress stream and returns the first error it reports
func drain(rc io.ReadCloser) error {
	defer rc.Close()
	return jsonmessage.DisplayJSONMessagesStream(rc, io.Discard, 0, false, nil)
}

// PullImage pulls ref onto the dock
func (c *Client) PullImage(ctx context.Context, ref string) error {
	return do(ctx, c, "pull image", func(ctx context.Context) error {
		rc, err := c.api.ImagePull(ctx, ref, image.PullOptions{})
		if err != nil {
			return err
		}
		return drain(rc)
	})
}

// CreateContainer creates an anonymous container and returns its id
func (c *Client) CreateContainer(ctx context.Context, spec ContainerSpec) (string, error) {
	return call(ctx, c, "create container", func(ctx context.Context) (string, error) {
		resp, err := c.api.ContainerCreate(ctx,
			&container.Config{
				Image:  spec.Image,
				Env:    spec.Env,
				Labels: spec.Labels,
			},
			&container.HostConfig{
				Privileged: spec.Privileged,
				PidMode:    container.PidMode(spec.PidMode),
			},
			nil, nil, "",
		)
		if err != nil {
			return "", err
		}
		return resp.ID, nil
	})
}

// StartContainer starts the container with id
func (c *Client) StartContainer(ctx context.Context, id string) error {
	return do(ctx, c, "start container", func(ctx context.Context) error {
		return c.api.ContainerStart(ctx, id, container.StartOptions{})
	})
}

// ContainerLogs follows the container output until it exits and returns
// stdout. Any stderr output is an error.
func (c *Client) ContainerLogs(ctx context.Context, id string) (string, error) {
	return call(ctx, c, "read container logs", func(ctx context.Context) (string, error) {
		rc, err := c.api.ContainerLogs(ctx, id, container.LogsOptions{
			ShowStdout: true,
			ShowStderr: true,
			Follow:     true,
		})
		if err != nil {
			return "", err
		}
		defer rc.Close()

		var stdout, stderr bytes.Buffer
		if _, err := stdcopy.StdCopy(&stdout, &stderr, rc); err != nil {
			return "", fmt.Errorf("failed to read log stream: %w", err)
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%w: %s", ErrStderr, msg)
		}
		return stdout.String(), nil
	})
}

// RemoveContainer force-removes the container with id
func (c *Client) RemoveContainer(ctx context.Context, id string) error {
	return do(ctx, c, "remove container", func(ctx context.Context) error {
		return c.api.ContainerRemove(ctx, id, container.RemoveOptions{Force: true, RemoveVolumes: true})
	})
}

// KillContainer sends SIGKILL to the named container
func (c *Client) KillContainer(ctx context.Context, name string) error {
	return do(ctx, c, "kill container", func(ctx context.Context) error {
		return c.api.ContainerKill(ctx, name, "KILL")
	})
}

// PushImage pushes tag to its registry
func (c *Client) PushImage(ctx context.Context, tag string) error {
	return do(ctx, c, "push image", func(ctx context.Context) error {
		rc, err := c.api.ImagePush(ctx, tag, image.PushOptions{RegistryAuth: c.config.RegistryAuth})
		if err != nil {
			return err
		}
		return drain(rc)
	})
}

// RemoveImage removes the image with the given tag or id
func (c *Client) RemoveImage(ctx context.Context, tag string) error {
	return do(ctx, c, "remove image", func(ctx context.Context) error {
		_, err := c.api.ImageRemove(ctx, tag, image.RemoveOptions{PruneChildren: true})
		return err
	})
}

// RemoveVolume removes the named volume
func (c *Client) RemoveVolume(ctx context.Context, name string) error {
	return do(ctx, c, "remove volume", func(ctx context.Context) error {
		return c.api.VolumeRemove(ctx, name, false)
	})
}

// ListImages lists every image on the dock
func (c *Client) ListImages(ctx context.Context) ([]Image, error) {
	return call(ctx, c, "list images", func(ctx context.Context) ([]Image, error) {
		summaries, err := c.api.ImageList(ctx, image.ListOptions{})
		if err != nil {
			return nil, err
		}

		images := make([]Image, 0, len(summaries))
		for _, s := range summaries {
			images = append(images, Image{ID: s.ID, RepoTags: s.RepoTags})
		}
		return images, nil
	})
}

// ListDanglingVolumes lists volumes not referenced by any container
func (c *Client) ListDanglingVolumes(ctx context.Context) ([]Volume, error) {
	return call(ctx, c, "list volumes", func(ctx context.Context) ([]Volume, error) {
		resp, err := c.api.VolumeList(ctx, volume.ListOptions{
			Filters: filters.NewArgs(filters.Arg("dangling", "true")),
		})
		if err != nil {
			return nil, err
		}

		volumes := make([]Volume, 0, len(resp.Volumes))
		for _, v := range resp.Volumes {
			if v == nil {
				continue
			}
			volumes = append(volumes, Volume{Name: v.Name})
		}
		return volumes, nil
	})
}
