// Package bootstrap builds the job queue and the saver from configuration
// and owns the clients they open.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/docharvest/internal/config"
	"github.com/cuongbtq/docharvest/internal/jobqueue"
	"github.com/cuongbtq/docharvest/internal/jobqueue/amqpstore"
	"github.com/cuongbtq/docharvest/internal/jobqueue/memstore"
	"github.com/cuongbtq/docharvest/internal/jobqueue/pgstore"
	"github.com/cuongbtq/docharvest/internal/jobqueue/redisstore"
	"github.com/cuongbtq/docharvest/internal/saver"
	"github.com/cuongbtq/docharvest/internal/saver/diskstore"
	"github.com/cuongbtq/docharvest/internal/saver/objectstore"
	"github.com/cuongbtq/docharvest/shared/logger"
	"github.com/cuongbtq/docharvest/shared/postgresql"
	"github.com/cuongbtq/docharvest/shared/rabbitmq"
	"github.com/cuongbtq/docharvest/shared/redisdb"
)

// NewLogger initializes the application logger
func NewLogger(cfg *config.LoggingConfig, service string) (*logger.Logger, error) {
	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339
	}

	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableSource,
		TimeFormat:   timeFormat,
		Service:      service,
	})
}

// Resources opens each shared client at most once and closes them in
// reverse order of creation.
type Resources struct {
	cfg    *config.Config
	logger *slog.Logger

	redis   *redisdb.Client
	db      *postgresql.Client
	pgStore *pgstore.Store
	rabbit  *rabbitmq.Client
	mem     *memstore.Store

	closers []func() error
}

// NewResources creates an empty Resources for cfg
func NewResources(cfg *config.Config, logger *slog.Logger) *Resources {
	return &Resources{
		cfg:    cfg,
		logger: logger,
	}
}

// Close closes every opened client
func (r *Resources) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			r.logger.Error("Failed to close resource",
				slog.Any("error", err),
			)
		}
	}
	r.closers = nil
}

// HealthCheck checks the shared clients opened so far
func (r *Resources) HealthCheck(ctx context.Context) error {
	if r.redis != nil {
		if err := r.redis.HealthCheck(ctx); err != nil {
			return err
		}
	}
	if r.db != nil {
		if err := r.db.HealthCheck(ctx); err != nil {
			return err
		}
	}
	if r.rabbit != nil && !r.rabbit.IsConnected() {
		return fmt.Errorf("rabbitmq is not connected")
	}
	return nil
}

// NewQueue builds the job queue from the queue section
func (r *Resources) NewQueue(ctx context.Context) (*jobqueue.Queue, error) {
	qc := r.cfg.Queue

	counter, err := r.counter(ctx, qc.CounterBackend)
	if err != nil {
		return nil, err
	}
	list, err := r.list(ctx, qc.ListBackend)
	if err != nil {
		return nil, err
	}

	r.logger.Info("Job queue initialized",
		slog.String("counter_backend", qc.CounterBackend),
		slog.String("list_backend", qc.ListBackend),
	)

	return jobqueue.New(&jobqueue.Config{
		Logger:     r.logger,
		Counter:    counter,
		List:       list,
		CounterKey: qc.CounterKey,
		QueueKey:   qc.QueueKey,
	})
}

func (r *Resources) counter(ctx context.Context, backend string) (jobqueue.Counter, error) {
	switch backend {
	case config.BackendMemory:
		return r.memory(), nil
	case config.BackendRedis:
		client, err := r.redisClient()
		if err != nil {
			return nil, err
		}
		return redisstore.New(client.Redis()), nil
	case config.BackendPostgres:
		return r.postgresStore(ctx)
	default:
		return nil, fmt.Errorf("unsupported counter backend: %q", backend)
	}
}

func (r *Resources) list(ctx context.Context, backend string) (jobqueue.List, error) {
	switch backend {
	case config.BackendMemory:
		return r.memory(), nil
	case config.BackendRedis:
		client, err := r.redisClient()
		if err != nil {
			return nil, err
		}
		return redisstore.New(client.Redis()), nil
	case config.BackendPostgres:
		return r.postgresStore(ctx)
	case config.BackendRabbitMQ:
		client, err := r.rabbitClient()
		if err != nil {
			return nil, err
		}
		return amqpstore.New(client), nil
	default:
		return nil, fmt.Errorf("unsupported list backend: %q", backend)
	}
}

func (r *Resources) memory() *memstore.Store {
	if r.mem == nil {
		r.mem = memstore.New()
	}
	return r.mem
}

func (r *Resources) redisClient() (*redisdb.Client, error) {
	if r.redis != nil {
		return r.redis, nil
	}

	rc := r.cfg.Redis
	client, err := redisdb.NewClient(&redisdb.Config{
		Addr:         rc.Addr,
		Password:     rc.Password,
		DB:           rc.DB,
		PoolSize:     rc.PoolSize,
		MinIdleConns: rc.MinIdleConns,
		DialTimeout:  rc.DialTimeout,
		ReadTimeout:  rc.ReadTimeout,
		WriteTimeout: rc.WriteTimeout,
	}, r.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Redis: %w", err)
	}

	r.redis = client
	r.closers = append(r.closers, client.Close)
	return client, nil
}

func (r *Resources) postgresStore(ctx context.Context) (*pgstore.Store, error) {
	if r.pgStore != nil {
		return r.pgStore, nil
	}

	dc := r.cfg.Database
	client, err := postgresql.NewClient(&postgresql.Config{
		Host:            dc.Host,
		Port:            dc.Port,
		User:            dc.User,
		Password:        dc.Password,
		Database:        dc.Database,
		SSLMode:         dc.SSLMode,
		MaxOpenConns:    dc.MaxOpenConns,
		MaxIdleConns:    dc.MaxIdleConns,
		ConnMaxLifetime: dc.ConnMaxLifetime,
		ConnMaxIdleTime: dc.ConnMaxIdleTime,
		ConnectTimeout:  dc.ConnectTimeout,
	}, r.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	r.db = client
	r.closers = append(r.closers, client.Close)

	store := pgstore.New(client.GetDB(), r.logger)
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	r.pgStore = store
	return store, nil
}

func (r *Resources) rabbitClient() (*rabbitmq.Client, error) {
	if r.rabbit != nil {
		return r.rabbit, nil
	}

	rc := r.cfg.RabbitMQ
	client, err := rabbitmq.NewClient(&rabbitmq.Config{
		Host:               rc.Host,
		Port:               rc.Port,
		User:               rc.User,
		Password:           rc.Password,
		VHost:              rc.VHost,
		ExchangeName:       rc.Exchange.Name,
		ExchangeType:       rc.Exchange.Type,
		ExchangeDurable:    rc.Exchange.Durable,
		ExchangeAutoDelete: rc.Exchange.AutoDelete,
		QueueDurable:       rc.Queue.Durable,
		QueueAutoDelete:    rc.Queue.AutoDelete,
		RetryAttempts:      rc.Connection.RetryAttempts,
		RetryInterval:      rc.Connection.RetryInterval,
		Heartbeat:          rc.Connection.Heartbeat,
		ConnectionTimeout:  rc.Connection.ConnectionTimeout,
		PublishRetries:     rc.Publish.RetryAttempts,
		PublishRetryDelay:  rc.Publish.RetryInterval,
		PublishBackoffMult: rc.Publish.BackoffMultiplier,
	}, r.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}

	r.rabbit = client
	r.closers = append(r.closers, client.Close)
	return client, nil
}

// NewSaver builds the saver from the storage section. Backends are saved in
// the order disk, gcs.
func (r *Resources) NewSaver(ctx context.Context) (*saver.Saver, error) {
	sc := r.cfg.Storage

	var backends []saver.Backend
	if sc.Disk.Enabled {
		store, err := diskstore.New(&diskstore.Options{Root: sc.Disk.Root})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize disk store: %w", err)
		}
		backends = append(backends, store)
	}

	if sc.GCS.Enabled {
		store, err := objectstore.New(ctx, &objectstore.Options{
			Bucket:                sc.GCS.Bucket,
			Endpoint:              sc.GCS.Endpoint,
			WithoutAuthentication: sc.GCS.WithoutAuthentication,
		}, r.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize object store: %w", err)
		}
		r.closers = append(r.closers, store.Close)
		backends = append(backends, store)
	}

	s, err := saver.NewSaver(&saver.Config{
		Logger:       r.logger,
		Backends:     backends,
		PayloadField: sc.PayloadField,
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("Saver initialized",
		slog.Any("backends", s.Backends()),
	)
	return s, nil
}
