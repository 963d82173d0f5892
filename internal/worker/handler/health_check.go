package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/cuongbtq/palantiri/internal/jobs"
	"github.com/cuongbtq/palantiri/internal/worker/domain"
	"github.com/cuongbtq/palantiri/shared/docker"
)

const rssMetric = "VmRSS"

// healthCheck fans out one docker-health-check per cluster member
type healthCheck struct {
	deps Deps
}

func (h *healthCheck) Handle(ctx context.Context, job domain.Job) ([]jobs.Outgoing, error) {
	members, err := h.deps.Cluster.ListMembers(ctx)
	if err != nil {
		return nil, domain.NewTransientError(err)
	}

	out := make([]jobs.Outgoing, 0, len(members))
	for _, m := range members {
		payload := &jobs.DockerHealthCheckPayload{DockerHost: m.Host}
		if org, err := strconv.ParseInt(m.Org, 10, 64); err == nil {
			payload.GithubOrgID = &org
		}
		out = append(out, jobs.New(jobs.DockerHealthCheck, payload))
	}

	h.deps.Logger.Info("Scheduled dock health checks",
		slog.String("correlation_id", job.CorrelationID),
		slog.Int("docks", len(out)),
	)
	return out, nil
}

// dockerHealthCheck runs the diagnostic container on one dock
type dockerHealthCheck struct {
	deps Deps
}

type diagnosticReport struct {
	Info  map[string]json.RawMessage `json:"info"`
	Error string                     `json:"error"`
}

func (h *dockerHealthCheck) Handle(ctx context.Context, job domain.Job) (out []jobs.Outgoing, err error) {
	p, err := payloadAs[jobs.DockerHealthCheckPayload](job)
	if err != nil {
		return nil, err
	}
	host := p.DockerHost
	log := h.deps.logger(job, host)

	client, err := h.deps.dockerClient(host)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	image := h.deps.Settings.InfoImage
	if err := client.PullImage(ctx, image); err != nil {
		return nil, domain.NewTransientError(err)
	}

	id, err := client.CreateContainer(ctx, docker.ContainerSpec{
		Image:      image,
		Env:        []string{"LOOKUP_CMD=/docker", "LOOKUP_ARGS=-d"},
		Labels:     map[string]string{"type": jobs.DockerHealthCheck},
		Privileged: true,
		PidMode:    "host",
	})
	if err != nil {
		return nil, domain.NewTransientError(err)
	}

	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.deps.Settings.CleanupTimeout)
		defer cancel()

		if rmErr := client.RemoveContainer(cleanupCtx, id); rmErr != nil {
			log.Warn("Failed to remove diagnostic container",
				slog.String("container_id", id),
				slog.Any("error", rmErr),
			)
			if err == nil {
				out = nil
				err = domain.NewTransientError(fmt.Errorf("failed to remove diagnostic container: %w", rmErr))
			}
		}
	}()

	if err := client.StartContainer(ctx, id); err != nil {
		return nil, domain.NewTransientError(err)
	}

	logs, err := client.ContainerLogs(ctx, id)
	if err != nil {
		return nil, domain.NewTransientError(err)
	}

	var report diagnosticReport
	if jsonErr := json.Unmarshal([]byte(strings.TrimSpace(logs)), &report); jsonErr != nil {
		return nil, domain.NewStopError(fmt.Errorf("%w: %v", domain.ErrInvalidDiagnostics, jsonErr))
	}

	if report.Error != "" {
		reportErr := errors.New(report.Error)
		if domain.IsOutOfMemory(reportErr) {
			return nil, domain.NewCriticalError(host, reportErr)
		}
		return nil, domain.NewTransientError(fmt.Errorf("diagnostic container reported: %w", reportErr))
	}

	if len(report.Info) == 0 {
		return nil, nil
	}

	sample := parseSample(report.Info)
	keys := make([]string, 0, len(sample))
	for k := range sample {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.deps.Metrics.Gauge(k, float64(sample[k]), map[string]string{"docker_host": host})
	}

	limit := h.deps.Settings.RSSLimit
	if rss, ok := sample[rssMetric]; ok && limit > 0 && rss >= limit {
		log.Warn("Dock memory above limit",
			slog.Int64("vm_rss", rss),
			slog.Int64("rss_limit", limit),
		)
		return []jobs.Outgoing{jobs.New(jobs.OnDockUnhealthy, &jobs.DockPayload{Host: host})}, nil
	}
	return nil, nil
}

// parseSample reads every info value as a base 10 integer prefix, the
// way "1234 kB" reads as 1234. Values without a numeric prefix are skipped.
func parseSample(info map[string]json.RawMessage) map[string]int64 {
	sample := make(map[string]int64, len(info))
	for k, raw := range info {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			s = string(raw)
		}
		if v, ok := leadingInt(strings.TrimSpace(s)); ok {
			sample[k] = v
		}
	}
	return sample
}

func leadingInt(s string) (int64, bool) {
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	v, err := strconv.ParseInt(s[:end], 10, 64)
	return v, err == nil
}
