package handler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cuongbtq/palantiri/internal/jobs"
	"github.com/cuongbtq/palantiri/internal/worker/domain"
)

// organizationCreated schedules the dock check for non-personal organizations
func organizationCreated(ctx context.Context, job domain.Job) ([]jobs.Outgoing, error) {
	p, err := payloadAs[jobs.OrganizationPayload](job)
	if err != nil {
		return nil, err
	}
	if p.Organization.IsPersonalAccount {
		return nil, nil
	}

	next := *p
	return []jobs.Outgoing{jobs.New(jobs.ASGCheckCreated, &next)}, nil
}

// asgCheckCreated verifies that a new organization got at least one dock
type asgCheckCreated struct {
	deps Deps
}

func (h *asgCheckCreated) Handle(ctx context.Context, job domain.Job) ([]jobs.Outgoing, error) {
	p, err := payloadAs[jobs.OrganizationPayload](job)
	if err != nil {
		return nil, err
	}

	readyAt := p.CreatedAt.Time().Add(h.deps.Settings.ASGCreatedDelay)
	if wait := readyAt.Sub(h.deps.Now()); wait >= 0 {
		return nil, domain.NewTransientError(fmt.Errorf("%w: organization %d needs to wait %s",
			domain.ErrNotReady, p.Organization.GithubID, wait.Round(time.Second)))
	}

	members, err := h.deps.Cluster.ListMembers(ctx)
	if err != nil {
		return nil, domain.NewTransientError(err)
	}

	githubID := strconv.FormatInt(p.Organization.GithubID, 10)
	for _, m := range members {
		if m.Org == githubID {
			h.deps.Logger.Info("Organization has docks",
				slog.String("org", p.Organization.Name),
				slog.String("github_id", githubID),
			)
			return nil, nil
		}
	}

	h.deps.Metrics.ASGCreateFailed(p.Organization.Name,
		fmt.Sprintf("no docks for github org %s created by %s", githubID, p.Creator.GithubUsername))
	return nil, domain.NewStopError(fmt.Errorf("%w: %s (%s)", domain.ErrNoDocks, p.Organization.Name, githubID))
}
