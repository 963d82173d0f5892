package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	status := http.StatusOK
	checks := gin.H{}

	if h.broker != nil {
		if h.broker.IsConnected() {
			checks["rabbitmq"] = "up"
		} else {
			checks["rabbitmq"] = "down"
			status = http.StatusServiceUnavailable
		}
	}

	if h.database != nil {
		if err := h.database.HealthCheck(c.Request.Context()); err != nil {
			checks["postgresql"] = "down"
			status = http.StatusServiceUnavailable
		} else {
			checks["postgresql"] = "up"
		}
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "unhealthy"
	}

	c.JSON(status, gin.H{
		"status":  overall,
		"service": h.service,
		"checks":  checks,
	})
}
