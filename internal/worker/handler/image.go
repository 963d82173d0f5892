package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/palantiri/internal/jobs"
	"github.com/cuongbtq/palantiri/internal/metrics"
	"github.com/cuongbtq/palantiri/internal/worker/domain"
)

// imagePush saves an image to the user registry, then schedules its removal
type imagePush struct {
	deps      Deps
	removeJob string
}

func (h *imagePush) Handle(ctx context.Context, job domain.Job) ([]jobs.Outgoing, error) {
	p, err := payloadAs[jobs.ImagePayload](job)
	if err != nil {
		return nil, err
	}

	if err := h.deps.ensureDockExists(ctx, p.Host); err != nil {
		return nil, err
	}

	client, err := h.deps.dockerClient(p.Host)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	timer := metrics.NewTimer()
	if err := client.PushImage(ctx, p.ImageTag); err != nil {
		return nil, dockerFailure(err)
	}
	h.deps.Metrics.ObserveImagePush(timer)

	h.deps.logger(job, p.Host).Info("Pushed image",
		slog.String("image_tag", p.ImageTag),
		slog.Duration("duration", timer.Duration()),
	)
	return []jobs.Outgoing{
		jobs.New(h.removeJob, &jobs.ImagePayload{ImageTag: p.ImageTag, Host: p.Host}),
	}, nil
}

// imageRemove deletes an image by tag or id
type imageRemove struct {
	deps Deps
}

func (h *imageRemove) Handle(ctx context.Context, job domain.Job) ([]jobs.Outgoing, error) {
	p, err := payloadAs[jobs.ImagePayload](job)
	if err != nil {
		return nil, err
	}

	if err := h.deps.ensureDockExists(ctx, p.Host); err != nil {
		return nil, err
	}

	client, err := h.deps.dockerClient(p.Host)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	if err := client.RemoveImage(ctx, p.ImageTag); err != nil {
		return nil, dockerFailure(err)
	}

	h.deps.logger(job, p.Host).Info("Removed image", slog.String("image_tag", p.ImageTag))
	return nil, nil
}

// volumeRemove deletes a dangling volume
type volumeRemove struct {
	deps Deps
}

func (h *volumeRemove) Handle(ctx context.Context, job domain.Job) ([]jobs.Outgoing, error) {
	p, err := payloadAs[jobs.VolumePayload](job)
	if err != nil {
		return nil, err
	}

	if err := h.deps.ensureDockExists(ctx, p.Host); err != nil {
		return nil, err
	}

	client, err := h.deps.dockerClient(p.Host)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	if err := client.RemoveVolume(ctx, p.Volume.Name); err != nil {
		return nil, dockerFailure(err)
	}

	h.deps.logger(job, p.Host).Info("Removed volume", slog.String("volume", p.Volume.Name))
	return nil, nil
}
