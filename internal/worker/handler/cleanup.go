package handler

import (
	"context"
	"log/slog"
	"strings"

	"github.com/cuongbtq/palantiri/internal/jobs"
	"github.com/cuongbtq/palantiri/internal/worker/domain"
	"github.com/cuongbtq/palantiri/shared/docker"
)

const untaggedMarker = "<none>"

type cleanupMode int

const (
	// cleanupDiskFilled pushes registry images, removes untagged ones and dangling volumes
	cleanupDiskFilled cleanupMode = iota
	// cleanupImages pushes registry images and removes every other image
	cleanupImages
	// cleanupVolumes removes dangling volumes
	cleanupVolumes
)

// dockCleanup lists a dock's images and volumes and emits one job per target
type dockCleanup struct {
	deps Deps
	mode cleanupMode
}

func (h *dockCleanup) Handle(ctx context.Context, job domain.Job) ([]jobs.Outgoing, error) {
	p, err := payloadAs[jobs.HostPayload](job)
	if err != nil {
		return nil, err
	}
	log := h.deps.logger(job, p.Host)

	if err := h.deps.ensureDockExists(ctx, p.Host); err != nil {
		return nil, err
	}

	client, err := h.deps.dockerClient(p.Host)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	var out []jobs.Outgoing
	if h.mode != cleanupVolumes {
		images, err := client.ListImages(ctx)
		if err != nil {
			return nil, domain.NewTransientError(err)
		}
		for _, image := range images {
			if next, ok := h.imageJob(image, p.Host); ok {
				out = append(out, next)
			}
		}
		log.Debug("Listed images", slog.Int("images", len(images)))
	}

	if h.mode != cleanupImages {
		volumes, err := client.ListDanglingVolumes(ctx)
		if err != nil {
			return nil, domain.NewTransientError(err)
		}
		name := jobs.VolumeRemove
		if h.mode == cleanupVolumes {
			name = jobs.DockVolumeRemove
		}
		for _, v := range volumes {
			out = append(out, jobs.New(name, &jobs.VolumePayload{Host: p.Host, Volume: jobs.Volume{Name: v.Name}}))
		}
		log.Debug("Listed dangling volumes", slog.Int("volumes", len(volumes)))
	}

	log.Info("Scheduled dock cleanup", slog.Int("jobs", len(out)))
	return out, nil
}

func (h *dockCleanup) imageJob(image docker.Image, host string) (jobs.Outgoing, bool) {
	pushJob, removeJob := jobs.ImagePush, jobs.ImageRemove
	if h.mode == cleanupImages {
		pushJob, removeJob = jobs.DockImagePush, jobs.DockImageRemove
	}

	if tag, ok := registryTag(image.RepoTags, h.deps.Settings.UserRegistry); ok {
		return jobs.New(pushJob, &jobs.ImagePayload{ImageTag: tag, Host: host}), true
	}
	if h.mode == cleanupImages || untagged(image.RepoTags) {
		return jobs.New(removeJob, &jobs.ImagePayload{ImageTag: image.ID, Host: host}), true
	}
	return jobs.Outgoing{}, false
}

// registryTag returns the first tag that belongs to registry
func registryTag(tags []string, registry string) (string, bool) {
	if registry == "" {
		return "", false
	}
	for _, tag := range tags {
		if strings.Contains(tag, registry) {
			return tag, true
		}
	}
	return "", false
}

// untagged reports whether an image carries no usable tag. Newer engines
// report dangling images with no tags instead of <none>:<none>.
func untagged(tags []string) bool {
	if len(tags) == 0 {
		return true
	}
	for _, tag := range tags {
		if strings.Contains(tag, untaggedMarker) {
			return true
		}
	}
	return false
}
