package harvester

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cuongbtq/docharvest/internal/jobqueue"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (h *Harvester) spawnWorkerPool(ctx context.Context) {
	for i := 0; i < h.concurrency; i++ {
		h.wg.Add(1)
		go h.workerLoop(ctx, i)
	}

	h.logger.Info("Worker pool spawned",
		slog.Int("worker_count", h.concurrency),
	)
}

// workerLoop takes jobs until stopped. An empty queue or a queue error
// backs off for one poll interval.
func (h *Harvester) workerLoop(ctx context.Context, workerNum int) {
	defer h.wg.Done()

	logger := h.logger.With(slog.Int("worker_num", workerNum))
	logger.Debug("Worker goroutine started")

	for {
		if h.stopping(ctx) {
			logger.Debug("Worker goroutine stopping")
			return
		}

		job, err := h.queue.GetJob(ctx)
		if err != nil {
			if !errors.Is(err, jobqueue.ErrEmptyQueue) && ctx.Err() == nil {
				logger.Error("Failed to get job",
					slog.String("error", err.Error()),
				)
			}
			if !h.wait(ctx, h.pollInterval) {
				logger.Debug("Worker goroutine stopping")
				return
			}
			continue
		}

		if err := h.processJob(ctx, job); err != nil {
			logger.Error("Job failed",
				slog.Int64("job_id", job.JobID),
				slog.String("url", job.URL),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (h *Harvester) stopping(ctx context.Context) bool {
	select {
	case <-h.stopChan:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// wait sleeps for d and reports false if stopped first
func (h *Harvester) wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-h.stopChan:
		return false
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
