package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/docharvest/internal/config"
	"github.com/cuongbtq/docharvest/internal/jobqueue"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewQueue_Memory(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{
		Queue: config.QueueConfig{
			CounterBackend: config.BackendMemory,
			ListBackend:    config.BackendMemory,
		},
	}
	res := NewResources(cfg, discardLogger())
	defer res.Close()

	q, err := res.NewQueue(ctx)
	require.NoError(t, err)

	job, err := q.AddJob(ctx, "http://a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), job.JobID)

	got, err := q.GetJob(ctx)
	require.NoError(t, err)
	assert.Equal(t, job, got)
	assert.NoError(t, res.HealthCheck(ctx))
}

func TestNewQueue_RedisSharedAcrossQueues(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	cfg := &config.Config{
		Redis: config.RedisConfig{Addr: mr.Addr()},
		Queue: config.QueueConfig{
			CounterBackend: config.BackendRedis,
			ListBackend:    config.BackendRedis,
			CounterKey:     "ids",
			QueueKey:       "waiting",
		},
	}
	res := NewResources(cfg, discardLogger())
	defer res.Close()

	producer, err := res.NewQueue(ctx)
	require.NoError(t, err)
	consumer, err := res.NewQueue(ctx)
	require.NoError(t, err)

	_, err = producer.AddJob(ctx, "http://a")
	require.NoError(t, err)

	job, err := consumer.GetJob(ctx)
	require.NoError(t, err)
	assert.Equal(t, jobqueue.Job{JobID: 1, URL: "http://a"}, job)

	v, err := mr.Get("ids")
	require.NoError(t, err)
	assert.Equal(t, "1", v)
	assert.NoError(t, res.HealthCheck(ctx))
}

func TestNewQueue_RedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := &config.Config{
		Redis: config.RedisConfig{Addr: addr},
		Queue: config.QueueConfig{
			CounterBackend: config.BackendRedis,
			ListBackend:    config.BackendRedis,
		},
	}
	res := NewResources(cfg, discardLogger())
	defer res.Close()

	_, err := res.NewQueue(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize Redis")
}

func TestNewQueue_UnknownBackend(t *testing.T) {
	cfg := &config.Config{
		Queue: config.QueueConfig{CounterBackend: "etcd", ListBackend: config.BackendMemory},
	}
	res := NewResources(cfg, discardLogger())

	_, err := res.NewQueue(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported counter backend")
}

func TestNewSaver_Disk(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	cfg := &config.Config{
		Storage: config.StorageConfig{
			Disk: config.DiskConfig{Enabled: true, Root: root},
		},
	}
	res := NewResources(cfg, discardLogger())
	defer res.Close()

	s, err := res.NewSaver(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"disk"}, s.Backends())

	_, err = s.SaveJSON(ctx, "/USTR/file.json", map[string]any{"results": "Hello world"})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, "USTR", "file.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `"Hello world"`, string(data))
}

func TestNewSaver_NoBackends(t *testing.T) {
	res := NewResources(&config.Config{}, discardLogger())

	_, err := res.NewSaver(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one backend")
}

func TestNewLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")

	l, err := NewLogger(&config.LoggingConfig{Format: "json", Output: path}, "work-server")
	require.NoError(t, err)
	l.Info("Starting")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"service":"work-server"`)
}
