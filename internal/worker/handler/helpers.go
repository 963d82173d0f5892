package handler

import (
	"context"
	"errors"
	"fmt"

	"github.com/cuongbtq/palantiri/internal/worker/domain"
	"github.com/cuongbtq/palantiri/shared/docker"
)

// ensureDockExists stops the job when host has left the cluster
func (d Deps) ensureDockExists(ctx context.Context, host string) error {
	exists, err := d.Cluster.MemberExists(ctx, host)
	if err != nil {
		return domain.NewTransientError(fmt.Errorf("failed to check dock membership: %w", err))
	}
	if !exists {
		return domain.NewStopError(fmt.Errorf("%w: %s", domain.ErrDockNotFound, host))
	}
	return nil
}

// dockerClient opens a client for host
func (d Deps) dockerClient(host string) (DockerClient, error) {
	client, err := d.Docker(host)
	if err != nil {
		return nil, domain.NewTransientError(err)
	}
	return client, nil
}

// dockerFailure classifies a docker API error. Missing or conflicting
// resources will not change on retry.
func dockerFailure(err error) error {
	if errors.Is(err, docker.ErrNotFound) || errors.Is(err, docker.ErrConflict) {
		return domain.NewStopError(err)
	}
	return domain.NewTransientError(err)
}
