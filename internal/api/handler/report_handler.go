package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/palantiri/internal/api/dto"
	"github.com/cuongbtq/palantiri/internal/errtrack"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ListReports handles GET /api/v1/error-reports
// Lists error reports newest first with cursor pagination
func (h *ReportHandler) ListReports(c *gin.Context) {
	if h.reports == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Error reports are not stored"})
		return
	}

	var req dto.ListReportsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters"})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	cursor, err := DecodeReportCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cursor"})
		return
	}

	reports, err := h.reports.List(c.Request.Context(), errtrack.Filter{
		JobName:  req.JobName,
		Class:    req.Class,
		DockHost: req.DockHost,
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list error reports", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list error reports"})
		return
	}

	hasMore := len(reports) > req.PageSize
	if hasMore {
		reports = reports[:req.PageSize]
	}

	out := make([]dto.ReportDTO, len(reports))
	for i, r := range reports {
		out[i] = dto.ReportDTO{
			ReportID:      r.ReportID,
			JobName:       r.JobName,
			CorrelationID: r.CorrelationID,
			DockHost:      r.DockHost,
			Class:         r.Class,
			Message:       r.Message,
			Context:       r.Context,
			CreatedAt:     r.CreatedAt,
		}
	}

	var nextCursor string
	if hasMore {
		last := reports[len(reports)-1]
		nextCursor = EncodeReportCursor(&errtrack.Cursor{
			CreatedAt: last.CreatedAt,
			ReportID:  last.ReportID,
		})
	}

	c.JSON(http.StatusOK, dto.ListReportsResponse{
		Reports:    out,
		NextCursor: nextCursor,
	})
}
