package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/docharvest/internal/jobqueue"
)

// JobQueue is the queue API the handlers serve
type JobQueue interface {
	AddJob(ctx context.Context, url string) (jobqueue.Job, error)
	GetJob(ctx context.Context) (jobqueue.Job, error)
	NumJobs(ctx context.Context) (int64, error)
}

// HealthChecker reports whether the shared stores are reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger  *slog.Logger
	Queue   JobQueue
	Health  HealthChecker // optional
	Service string
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger *slog.Logger
	queue  JobQueue
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger: deps.Logger,
		queue:  deps.Queue,
	}
}

// HealthHandler serves GET /health
type HealthHandler struct {
	health  HealthChecker
	service string
}

// NewHealthHandler creates a new HealthHandler instance
func NewHealthHandler(deps *Dependencies) *HealthHandler {
	return &HealthHandler{
		health:  deps.Health,
		service: deps.Service,
	}
}

// Health reports 200 when the stores answer and 503 otherwise
func (h *HealthHandler) Health(c *gin.Context) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := h.health.HealthCheck(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unhealthy",
				"service": h.service,
				"error":   err.Error(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": h.service,
	})
}
