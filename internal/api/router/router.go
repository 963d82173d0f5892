package router

import (
	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/palantiri/internal/api/handler"
	"github.com/cuongbtq/palantiri/internal/metrics"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))

	r.GET("/health", handler.NewHealthHandler(deps).Health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	jobHandler := handler.NewJobHandler(deps)
	reportHandler := handler.NewReportHandler(deps)

	v1 := r.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		{
			// GET /api/v1/jobs - List the job catalogue
			jobs.GET("", jobHandler.ListJobs)

			// POST /api/v1/jobs/:name - Validate and publish a job
			jobs.POST("/:name", jobHandler.PublishJob)
		}

		// GET /api/v1/error-reports - List error reports
		v1.GET("/error-reports", reportHandler.ListReports)
	}

	return r
}
