package router

import (
	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/docharvest/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", handler.NewHealthHandler(deps).Health)

	jobHandler := handler.NewJobHandler(deps)

	v1 := r.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		{
			// POST /api/v1/jobs - Queue a URL
			jobs.POST("", jobHandler.CreateJob)

			// GET /api/v1/jobs/next - Take the oldest job
			jobs.GET("/next", jobHandler.NextJob)

			// GET /api/v1/jobs/count - Number of waiting jobs
			jobs.GET("/count", jobHandler.CountJobs)
		}
	}

	return r
}
