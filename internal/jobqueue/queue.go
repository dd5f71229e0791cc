// Package jobqueue hands out harvest jobs from a shared FIFO list.
//
// Job ids come from an atomic counter in the shared store and the list is
// mutated only through the store's own push and pop primitives, so any number
// of producer and consumer processes can share one queue. The package does no
// locking of its own; correctness rests on the atomicity of Counter.Incr and
// List.Pop.
package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

const (
	// DefaultCounterKey names the shared job id counter
	DefaultCounterKey = "last_job_id"
	// DefaultQueueKey names the shared list of waiting jobs
	DefaultQueueKey = "jobs_waiting_queue"
)

var (
	// ErrEmptyQueue is returned by GetJob when no job is waiting
	ErrEmptyQueue = errors.New("job queue is empty")

	// ErrEmptyList is returned by List.Pop when the list has no items
	ErrEmptyList = errors.New("list is empty")
)

// Job is a unit of harvest work
type Job struct {
	JobID int64  `json:"job_id"`
	URL   string `json:"url"`
}

// Counter is an atomic shared integer. Incr must add one and return the new
// value as a single atomic step; the first call for a key returns 1.
type Counter interface {
	Incr(ctx context.Context, key string) (int64, error)
}

// List is a shared FIFO list. Pop must remove and return the head atomically
// and return ErrEmptyList when there is nothing to remove.
type List interface {
	Push(ctx context.Context, key string, value []byte) error
	Pop(ctx context.Context, key string) ([]byte, error)
	Len(ctx context.Context, key string) (int64, error)
}

// Config holds queue configuration
type Config struct {
	Logger     *slog.Logger
	Counter    Counter
	List       List
	CounterKey string
	QueueKey   string
}

// Queue is the shared job queue
type Queue struct {
	logger     *slog.Logger
	counter    Counter
	list       List
	counterKey string
	queueKey   string
}

// New creates a new Queue instance
func New(cfg *Config) (*Queue, error) {
	if cfg.Counter == nil {
		return nil, fmt.Errorf("job queue counter is required")
	}
	if cfg.List == nil {
		return nil, fmt.Errorf("job queue list is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	counterKey := cfg.CounterKey
	if counterKey == "" {
		counterKey = DefaultCounterKey
	}
	queueKey := cfg.QueueKey
	if queueKey == "" {
		queueKey = DefaultQueueKey
	}

	return &Queue{
		logger:     logger,
		counter:    cfg.Counter,
		list:       cfg.List,
		counterKey: counterKey,
		queueKey:   queueKey,
	}, nil
}

// AddJob assigns the next job id and appends the job to the tail of the queue.
// Duplicate URLs are queued as separate jobs.
func (q *Queue) AddJob(ctx context.Context, url string) (Job, error) {
	id, err := q.counter.Incr(ctx, q.counterKey)
	if err != nil {
		return Job{}, fmt.Errorf("failed to issue job id: %w", err)
	}

	job := Job{JobID: id, URL: url}
	body, err := json.Marshal(job)
	if err != nil {
		return Job{}, fmt.Errorf("failed to encode job: %w", err)
	}

	if err := q.list.Push(ctx, q.queueKey, body); err != nil {
		return Job{}, fmt.Errorf("failed to enqueue job %d: %w", id, err)
	}

	q.logger.Debug("Job added",
		slog.Int64("job_id", id),
		slog.String("url", url),
	)

	return job, nil
}

// GetJob removes and returns the oldest job. A popped job is consumed even
// when it cannot be decoded.
func (q *Queue) GetJob(ctx context.Context) (Job, error) {
	body, err := q.list.Pop(ctx, q.queueKey)
	if err != nil {
		if errors.Is(err, ErrEmptyList) {
			return Job{}, ErrEmptyQueue
		}
		return Job{}, fmt.Errorf("failed to pop job: %w", err)
	}

	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		q.logger.Error("Discarding malformed job",
			slog.String("body", string(body)),
			slog.String("error", err.Error()),
		)
		return Job{}, fmt.Errorf("failed to decode job: %w", err)
	}

	q.logger.Debug("Job taken",
		slog.Int64("job_id", job.JobID),
		slog.String("url", job.URL),
	)

	return job, nil
}

// NumJobs returns the current queue length. The value is advisory and may be
// stale as soon as it is returned.
func (q *Queue) NumJobs(ctx context.Context) (int64, error) {
	n, err := q.list.Len(ctx, q.queueKey)
	if err != nil {
		return 0, fmt.Errorf("failed to get queue length: %w", err)
	}
	return n, nil
}
