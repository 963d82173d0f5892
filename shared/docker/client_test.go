package docker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI implements the calls the client makes; anything else panics
type fakeAPI struct {
	client.APIClient

	logs        func() (io.ReadCloser, error)
	removeCalls int
	removeErr   error
	images      []image.Summary
	volumes     []*volume.Volume
	created     *container.Config
	hostConfig  *container.HostConfig
	pull        string
}

func (f *fakeAPI) ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error) {
	f.pull = ref
	return io.NopCloser(strings.NewReader(`{"status":"Pulling"}` + "\n")), nil
}

func (f *fakeAPI) ImagePush(ctx context.Context, ref string, options image.PushOptions) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(`{"errorDetail":{"message":"denied"},"error":"denied"}` + "\n")), nil
}

func (f *fakeAPI) ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, name string) (container.CreateResponse, error) {
	f.created = config
	f.hostConfig = hostConfig
	return container.CreateResponse{ID: "c1"}, nil
}

func (f *fakeAPI) ContainerLogs(ctx context.Context, id string, options container.LogsOptions) (io.ReadCloser, error) {
	return f.logs()
}

func (f *fakeAPI) ImageRemove(ctx context.Context, id string, options image.RemoveOptions) ([]image.DeleteResponse, error) {
	f.removeCalls++
	return nil, f.removeErr
}

func (f *fakeAPI) ImageList(ctx context.Context, options image.ListOptions) ([]image.Summary, error) {
	return f.images, nil
}

func (f *fakeAPI) VolumeList(ctx context.Context, options volume.ListOptions) (volume.ListResponse, error) {
	return volume.ListResponse{Volumes: f.volumes}, nil
}

func testClient(api client.APIClient, attempts int) *Client {
	return newClient("http://10.0.0.1:4242", api, Config{
		RetryAttempts: attempts,
		RetryInterval: time.Millisecond,
		CallTimeout:   time.Second,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func multiplexed(t *testing.T, stdout, stderr string) io.ReadCloser {
	t.Helper()
	var buf bytes.Buffer
	if stdout != "" {
		_, err := stdcopy.NewStdWriter(&buf, stdcopy.Stdout).Write([]byte(stdout))
		require.NoError(t, err)
	}
	if stderr != "" {
		_, err := stdcopy.NewStdWriter(&buf, stdcopy.Stderr).Write([]byte(stderr))
		require.NoError(t, err)
	}
	return io.NopCloser(&buf)
}

func TestEngineHost(t *testing.T) {
	assert.Equal(t, "tcp://10.0.0.1:4242", EngineHost("http://10.0.0.1:4242"))
	assert.Equal(t, "tcp://10.0.0.1:4242", EngineHost("https://10.0.0.1:4242/"))
	assert.Equal(t, "tcp://10.0.0.1:4242", EngineHost("10.0.0.1:4242"))
	assert.Equal(t, "unix:///var/run/docker.sock", EngineHost("unix:///var/run/docker.sock"))
}

func TestContainerLogs(t *testing.T) {
	api := &fakeAPI{logs: func() (io.ReadCloser, error) { return multiplexed(t, `{"info":{}}`, ""), nil }}

	out, err := testClient(api, 3).ContainerLogs(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, `{"info":{}}`, out)
}

func TestContainerLogs_StderrIsRetriedThenFails(t *testing.T) {
	calls := 0
	api := &fakeAPI{logs: func() (io.ReadCloser, error) {
		calls++
		return multiplexed(t, "", "fork: cannot allocate memory\n"), nil
	}}

	_, err := testClient(api, 3).ContainerLogs(context.Background(), "c1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStderr)
	assert.Contains(t, err.Error(), "cannot allocate memory")
	assert.Equal(t, 3, calls)
}

func TestRemoveImage_NotFoundIsFinal(t *testing.T) {
	api := &fakeAPI{removeErr: errdefs.NotFound(errors.New("No such image"))}

	err := testClient(api, 5).RemoveImage(context.Background(), "sha256:abc")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, api.removeCalls)
}

func TestRemoveImage_ConflictIsFinal(t *testing.T) {
	api := &fakeAPI{removeErr: errdefs.Conflict(errors.New("image is being used"))}

	err := testClient(api, 5).RemoveImage(context.Background(), "sha256:abc")
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 1, api.removeCalls)
}

func TestRemoveImage_TransientIsRetried(t *testing.T) {
	api := &fakeAPI{removeErr: errors.New("connection reset")}

	err := testClient(api, 2).RemoveImage(context.Background(), "sha256:abc")
	require.Error(t, err)
	assert.Equal(t, 2, api.removeCalls)
}

func TestPushImage_StreamError(t *testing.T) {
	err := testClient(&fakeAPI{}, 1).PushImage(context.Background(), "registry.example.com/app:latest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "denied")
}

func TestCreateContainer(t *testing.T) {
	api := &fakeAPI{}
	id, err := testClient(api, 1).CreateContainer(context.Background(), ContainerSpec{
		Image:      "info:latest",
		Env:        []string{"LOOKUP_CMD=/docker"},
		Labels:     map[string]string{"type": "docker-health-check"},
		Privileged: true,
		PidMode:    "host",
	})

	require.NoError(t, err)
	assert.Equal(t, "c1", id)
	assert.Equal(t, "info:latest", api.created.Image)
	assert.True(t, api.hostConfig.Privileged)
	assert.True(t, api.hostConfig.PidMode.IsHost())
}

func TestListing(t *testing.T) {
	api := &fakeAPI{
		images:  []image.Summary{{ID: "sha256:1", RepoTags: []string{"a:latest"}}},
		volumes: []*volume.Volume{{Name: "v1"}, nil},
	}
	c := testClient(api, 1)

	images, err := c.ListImages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Image{{ID: "sha256:1", RepoTags: []string{"a:latest"}}}, images)

	volumes, err := c.ListDanglingVolumes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Volume{{Name: "v1"}}, volumes)

	require.NoError(t, c.PullImage(context.Background(), "info:latest"))
	assert.Equal(t, "info:latest", api.pull)
}
