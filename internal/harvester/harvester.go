// Package harvester runs a pool of workers that take jobs from the shared
// queue, download each URL and hand the document to the saver.
package harvester

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/cuongbtq/docharvest/internal/jobqueue"
	"github.com/cuongbtq/docharvest/internal/saver"
)

// JobSource hands out jobs; GetJob returns jobqueue.ErrEmptyQueue when idle
type JobSource interface {
	GetJob(ctx context.Context) (jobqueue.Job, error)
}

// ArtifactSaver persists downloaded documents
type ArtifactSaver interface {
	SaveJSON(ctx context.Context, name string, envelope map[string]any) ([]saver.Result, error)
	SaveBinary(ctx context.Context, name string, data []byte) ([]saver.Result, error)
	Save(ctx context.Context, name string, content saver.Content) ([]saver.Result, error)
}

// Config holds harvester configuration
type Config struct {
	Logger       *slog.Logger
	Queue        JobSource
	Saver        ArtifactSaver
	Fetcher      Fetcher
	Concurrency  int
	PollInterval time.Duration
	FetchTimeout time.Duration
	// RateLimit caps fetches per second across all workers; 0 disables it
	RateLimit float64
	Burst     int
}

// Harvester represents the harvest worker pool
type Harvester struct {
	logger       *slog.Logger
	queue        JobSource
	saver        ArtifactSaver
	fetcher      Fetcher
	limiter      *rate.Limiter
	instanceID   string
	concurrency  int
	pollInterval time.Duration
	fetchTimeout time.Duration

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// New creates a new harvester instance
func New(cfg *Config) (*Harvester, error) {
	if cfg.Queue == nil {
		return nil, fmt.Errorf("harvester queue is required")
	}
	if cfg.Saver == nil {
		return nil, fmt.Errorf("harvester saver is required")
	}
	if cfg.Concurrency <= 0 {
		return nil, fmt.Errorf("harvester concurrency must be greater than 0")
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("harvester poll interval must be greater than 0")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	fetcher := cfg.Fetcher
	if fetcher == nil {
		fetcher = NewHTTPFetcher(nil, 0)
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	id := uuid.NewString()
	return &Harvester{
		logger:       logger.With(slog.String("harvester_id", id)),
		queue:        cfg.Queue,
		saver:        cfg.Saver,
		fetcher:      fetcher,
		limiter:      limiter,
		instanceID:   id,
		concurrency:  cfg.Concurrency,
		pollInterval: cfg.PollInterval,
		fetchTimeout: cfg.FetchTimeout,
		stopChan:     make(chan struct{}),
	}, nil
}

// ID returns the instance id used to tell harvesters apart in logs
func (h *Harvester) ID() string {
	return h.instanceID
}

// Start spawns the worker pool and blocks until ctx is canceled or Stop is called
func (h *Harvester) Start(ctx context.Context) error {
	h.logger.Info("Starting harvester",
		slog.Int("concurrency", h.concurrency),
		slog.Duration("poll_interval", h.pollInterval),
		slog.Duration("fetch_timeout", h.fetchTimeout),
	)

	h.spawnWorkerPool(ctx)

	select {
	case <-ctx.Done():
		h.logger.Info("Harvester context canceled, stopping...")
	case <-h.stopChan:
	}

	return nil
}

// Stop signals the workers and waits for in-flight jobs to finish
func (h *Harvester) Stop() {
	h.logger.Info("Stopping harvester...")
	h.stopOnce.Do(func() { close(h.stopChan) })
	h.wg.Wait()
	h.logger.Info("Harvester stopped")
}
