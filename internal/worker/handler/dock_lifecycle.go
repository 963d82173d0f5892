package handler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/palantiri/internal/jobs"
	"github.com/cuongbtq/palantiri/internal/worker/domain"
)

// forwardToExistsCheck starts removal confirmation for an unhealthy or lost dock
func forwardToExistsCheck(ctx context.Context, job domain.Job) ([]jobs.Outgoing, error) {
	p, err := payloadAs[jobs.DockPayload](job)
	if err != nil {
		return nil, err
	}
	return []jobs.Outgoing{
		jobs.New(jobs.DockExistsCheck, &jobs.DockPayload{Host: p.Host, GithubOrgID: p.GithubOrgID}),
	}, nil
}

// eventsStreamDisconnected treats a lost docker event stream as a lost dock
func eventsStreamDisconnected(ctx context.Context, job domain.Job) ([]jobs.Outgoing, error) {
	p, err := payloadAs[jobs.DisconnectedPayload](job)
	if err != nil {
		return nil, err
	}

	org, err := p.Org.Int64()
	if err != nil {
		return nil, domain.NewValidationError(job.Name, fmt.Errorf("org must be an integer: %w", err))
	}
	return []jobs.Outgoing{
		jobs.New(jobs.DockLost, &jobs.DockPayload{Host: p.Host, GithubOrgID: &org}),
	}, nil
}

// dockExistsCheck confirms a dock has left the cluster
type dockExistsCheck struct {
	deps Deps
}

func (h *dockExistsCheck) Handle(ctx context.Context, job domain.Job) ([]jobs.Outgoing, error) {
	p, err := payloadAs[jobs.DockPayload](job)
	if err != nil {
		return nil, err
	}
	log := h.deps.logger(job, p.Host)

	// Killing the agent makes the manager drop the node sooner.
	if client, err := h.deps.Docker(p.Host); err == nil {
		if killErr := client.KillContainer(ctx, h.deps.Settings.SwarmAgentContainer); killErr != nil {
			log.Debug("Failed to kill swarm agent", slog.Any("error", killErr))
		}
		client.Close()
	} else {
		log.Debug("Failed to create docker client", slog.Any("error", err))
	}

	exists, err := h.deps.Cluster.MemberExists(ctx, p.Host)
	if err != nil {
		return nil, domain.NewTransientError(err)
	}
	if exists {
		return nil, domain.NewTransientError(fmt.Errorf("%w: %s", domain.ErrDockStillExists, p.Host))
	}

	log.Info("Dock removed from cluster", slog.Int("attempt", job.Attempt))
	h.deps.Metrics.ForgetDock(p.Host)
	return []jobs.Outgoing{
		jobs.New(jobs.DockRemoved, &jobs.DockPayload{Host: p.Host, GithubOrgID: p.GithubOrgID}),
	}, nil
}
