package dto

import "github.com/cuongbtq/docharvest/internal/jobqueue"

type CreateJobRequest struct {
	URL string `json:"url" binding:"required,url"`
}

type JobDTO struct {
	JobID int64  `json:"job_id"`
	URL   string `json:"url"`
}

type NumJobsResponse struct {
	NumJobs int64 `json:"num_jobs"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func FromJob(job jobqueue.Job) JobDTO {
	return JobDTO{JobID: job.JobID, URL: job.URL}
}
