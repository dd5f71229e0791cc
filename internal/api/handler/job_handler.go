package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/docharvest/internal/api/dto"
	"github.com/cuongbtq/docharvest/internal/jobqueue"
)

// CreateJob handles POST /api/v1/jobs
// Queues a URL for harvesting and returns the issued job
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:     "url is required and must be a valid URL",
			RequestID: RequestID(c),
		})
		return
	}

	job, err := h.queue.AddJob(c.Request.Context(), req.URL)
	if err != nil {
		h.logger.Error("Failed to add job",
			slog.String("url", req.URL),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:     "Failed to add job",
			RequestID: RequestID(c),
		})
		return
	}

	h.logger.Info("Job queued",
		slog.Int64("job_id", job.JobID),
		slog.String("url", job.URL),
	)

	c.JSON(http.StatusCreated, dto.FromJob(job))
}

// NextJob handles GET /api/v1/jobs/next
// Removes and returns the oldest job; 404 when the queue is empty
func (h *JobHandler) NextJob(c *gin.Context) {
	job, err := h.queue.GetJob(c.Request.Context())
	if err != nil {
		if errors.Is(err, jobqueue.ErrEmptyQueue) {
			c.JSON(http.StatusNotFound, dto.ErrorResponse{
				Error:     "no job waiting",
				RequestID: RequestID(c),
			})
			return
		}

		h.logger.Error("Failed to get job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:     "Failed to get job",
			RequestID: RequestID(c),
		})
		return
	}

	c.JSON(http.StatusOK, dto.FromJob(job))
}

// CountJobs handles GET /api/v1/jobs/count
func (h *JobHandler) CountJobs(c *gin.Context) {
	n, err := h.queue.NumJobs(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to count jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:     "Failed to count jobs",
			RequestID: RequestID(c),
		})
		return
	}

	c.JSON(http.StatusOK, dto.NumJobsResponse{NumJobs: n})
}
