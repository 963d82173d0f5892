package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/palantiri/internal/metrics"
	"github.com/cuongbtq/palantiri/internal/worker/domain"
	"github.com/cuongbtq/palantiri/shared/docker"
	"github.com/cuongbtq/palantiri/shared/swarm"
)

type fakeDocker struct {
	mu sync.Mutex

	pullErr   error
	createErr error
	startErr  error
	logs      string
	logsErr   error
	removeErr error
	killErr   error
	pushErr   error
	rmiErr    error
	rmvErr    error
	images    []docker.Image
	volumes   []docker.Volume

	calls   []string
	spec    docker.ContainerSpec
	removed []string
	closed  int
}

func (f *fakeDocker) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeDocker) PullImage(ctx context.Context, ref string) error {
	f.record("pull " + ref)
	return f.pullErr
}

func (f *fakeDocker) CreateContainer(ctx context.Context, spec docker.ContainerSpec) (string, error) {
	f.record("create")
	f.spec = spec
	if f.createErr != nil {
		return "", f.createErr
	}
	return "c1", nil
}

func (f *fakeDocker) StartContainer(ctx context.Context, id string) error {
	f.record("start " + id)
	return f.startErr
}

func (f *fakeDocker) ContainerLogs(ctx context.Context, id string) (string, error) {
	f.record("logs " + id)
	return f.logs, f.logsErr
}

func (f *fakeDocker) RemoveContainer(ctx context.Context, id string) error {
	f.record("rm " + id)
	f.removed = append(f.removed, id)
	return f.removeErr
}

func (f *fakeDocker) KillContainer(ctx context.Context, name string) error {
	f.record("kill " + name)
	return f.killErr
}

func (f *fakeDocker) PushImage(ctx context.Context, tag string) error {
	f.record("push " + tag)
	return f.pushErr
}

func (f *fakeDocker) RemoveImage(ctx context.Context, tag string) error {
	f.record("rmi " + tag)
	return f.rmiErr
}

func (f *fakeDocker) RemoveVolume(ctx context.Context, name string) error {
	f.record("rmv " + name)
	return f.rmvErr
}

func (f *fakeDocker) ListImages(ctx context.Context) ([]docker.Image, error) {
	f.record("images")
	return f.images, nil
}

func (f *fakeDocker) ListDanglingVolumes(ctx context.Context) ([]docker.Volume, error) {
	f.record("volumes")
	return f.volumes, nil
}

func (f *fakeDocker) Close() error {
	f.closed++
	return nil
}

type fakeCluster struct {
	members   []swarm.Member
	exists    bool
	err       error
	checked   []string
	listCalls int
}

func (f *fakeCluster) ListMembers(ctx context.Context) ([]swarm.Member, error) {
	f.listCalls++
	return f.members, f.err
}

func (f *fakeCluster) MemberExists(ctx context.Context, host string) (bool, error) {
	f.checked = append(f.checked, host)
	return f.exists, f.err
}

type gauge struct {
	name  string
	value float64
	host  string
}

type fakeMetrics struct {
	gauges     []gauge
	asgFailed  []string
	forgotten  []string
	pushTimers int
}

func (f *fakeMetrics) ForgetDock(host string) {
	f.forgotten = append(f.forgotten, host)
}

func (f *fakeMetrics) Gauge(name string, value float64, tags map[string]string) {
	f.gauges = append(f.gauges, gauge{name: name, value: value, host: tags["docker_host"]})
}

func (f *fakeMetrics) ASGCreateFailed(org string, reason string) {
	f.asgFailed = append(f.asgFailed, org)
}

func (f *fakeMetrics) ObserveImagePush(t *metrics.Timer) {
	f.pushTimers++
}

type testEnv struct {
	docker  *fakeDocker
	cluster *fakeCluster
	metrics *fakeMetrics
	hosts   []string
	handler map[string]Handler
}

func newTestEnv(now time.Time) *testEnv {
	env := &testEnv{
		docker:  &fakeDocker{},
		cluster: &fakeCluster{exists: true},
		metrics: &fakeMetrics{},
	}
	env.handler = Registry(Deps{
		Docker: func(host string) (DockerClient, error) {
			env.hosts = append(env.hosts, host)
			if host == "http://unreachable:4242" {
				return nil, errors.New("bad host")
			}
			return env.docker, nil
		},
		Cluster: env.cluster,
		Metrics: env.metrics,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Settings: Settings{
			InfoImage:       "registry.example.com/docker-info:latest",
			RSSLimit:        100000,
			UserRegistry:    "registry.example.com",
			ASGCreatedDelay: 10 * time.Minute,
		},
		Now: func() time.Time { return now },
	})
	return env
}

func (e *testEnv) run(name string, payload any) ([]jobOut, error) {
	out, err := e.handler[name].Handle(context.Background(), domain.Job{
		Name:          name,
		Payload:       payload,
		CorrelationID: "corr-1",
		Attempt:       1,
		MaxAttempts:   5,
	})
	result := make([]jobOut, 0, len(out))
	for _, o := range out {
		result = append(result, jobOut{name: o.Name, payload: o.Payload})
	}
	return result, err
}

type jobOut struct {
	name    string
	payload any
}
