package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/palantiri/internal/api/dto"
	"github.com/cuongbtq/palantiri/internal/jobs"
	"github.com/cuongbtq/palantiri/internal/worker/domain"
)

// ListJobs handles GET /api/v1/jobs
// Lists the job catalogue with each job's retry budget
func (h *JobHandler) ListJobs(c *gin.Context) {
	catalogue := jobs.Catalogue()

	out := make([]dto.JobDTO, len(catalogue))
	for i, def := range catalogue {
		budget := h.budget(def.Name)
		out[i] = dto.JobDTO{
			Name:          def.Name,
			Kind:          string(def.Kind),
			MaxAttempts:   budget.MaxAttempts,
			RetryInterval: budget.RetryInterval.String(),
		}
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{Jobs: out})
}

// PublishJob handles POST /api/v1/jobs/:name
// Validates the JSON body against the job's payload schema and publishes it
func (h *JobHandler) PublishJob(c *gin.Context) {
	name := c.Param("name")

	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	correlationID, err := h.publisher.PublishRaw(c.Request.Context(), name, body)
	if err != nil {
		var validationErr *domain.ValidationError
		switch {
		case errors.Is(err, domain.ErrUnknownJob):
			c.JSON(http.StatusNotFound, gin.H{"error": "Unknown job", "job": name})
		case errors.As(err, &validationErr):
			c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error(), "job": name})
		default:
			h.logger.Error("Failed to publish job",
				slog.String("job", name),
				slog.Any("error", err),
			)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to publish job"})
		}
		return
	}

	h.logger.Info("Job published via API",
		slog.String("job", name),
		slog.String("correlation_id", correlationID),
	)

	c.JSON(http.StatusAccepted, dto.PublishJobResponse{
		Job:           name,
		CorrelationID: correlationID,
	})
}
