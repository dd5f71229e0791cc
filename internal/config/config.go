package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Queue store kinds
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendRabbitMQ = "rabbitmq"
)

// Config represents the complete application configuration
type Config struct {
	App       AppConfig       `yaml:"app"`
	Logging   LoggingConfig   `yaml:"logging"`
	Server    ServerConfig    `yaml:"server"`
	Redis     RedisConfig     `yaml:"redis"`
	Database  DatabaseConfig  `yaml:"database"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Queue     QueueConfig     `yaml:"queue"`
	Storage   StorageConfig   `yaml:"storage"`
	Harvester HarvesterConfig `yaml:"harvester"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableSource bool   `yaml:"enable_source"`
	TimeFormat   string `yaml:"time_format"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      AMQPQueueConfig  `yaml:"queue"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
}

// ExchangeConfig holds RabbitMQ exchange configuration. An empty name
// publishes through the default exchange.
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// AMQPQueueConfig holds settings applied to every declared RabbitMQ queue
type AMQPQueueConfig struct {
	Durable    bool `yaml:"durable"`
	AutoDelete bool `yaml:"auto_delete"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// QueueConfig selects the stores behind the job queue
type QueueConfig struct {
	CounterBackend string `yaml:"counter_backend"`
	ListBackend    string `yaml:"list_backend"`
	CounterKey     string `yaml:"counter_key"`
	QueueKey       string `yaml:"queue_key"`
}

// StorageConfig selects the artifact backends, in save order
type StorageConfig struct {
	PayloadField string     `yaml:"payload_field"`
	Disk         DiskConfig `yaml:"disk"`
	GCS          GCSConfig  `yaml:"gcs"`
}

// DiskConfig holds local directory backend settings
type DiskConfig struct {
	Enabled bool   `yaml:"enabled"`
	Root    string `yaml:"root"`
}

// GCSConfig holds Cloud Storage backend settings
type GCSConfig struct {
	Enabled               bool   `yaml:"enabled"`
	Bucket                string `yaml:"bucket"`
	Endpoint              string `yaml:"endpoint"`
	WithoutAuthentication bool   `yaml:"without_authentication"`
}

// HarvesterConfig holds harvester worker pool configuration
type HarvesterConfig struct {
	Concurrency     int           `yaml:"concurrency"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	FetchTimeout    time.Duration `yaml:"fetch_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	RateLimit       float64       `yaml:"rate_limit"` // fetches per second, 0 is unlimited
	Burst           int           `yaml:"burst"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Load reads and parses the configuration file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// Validate checks the queue section and the connection settings it depends on
func (c *Config) Validate() error {
	switch c.Queue.CounterBackend {
	case BackendMemory, BackendRedis, BackendPostgres:
	default:
		return fmt.Errorf("invalid queue counter_backend: %q (must be memory, redis or postgres)", c.Queue.CounterBackend)
	}

	switch c.Queue.ListBackend {
	case BackendMemory, BackendRedis, BackendPostgres, BackendRabbitMQ:
	default:
		return fmt.Errorf("invalid queue list_backend: %q (must be memory, redis, postgres or rabbitmq)", c.Queue.ListBackend)
	}

	if (c.Queue.CounterBackend == BackendMemory) != (c.Queue.ListBackend == BackendMemory) {
		return fmt.Errorf("memory queue backend cannot be mixed with shared backends")
	}

	if c.uses(BackendRedis) && c.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required")
	}

	if c.uses(BackendPostgres) {
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.Port < MinPort || c.Database.Port > MaxPort {
			return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	if c.uses(BackendRabbitMQ) {
		if c.RabbitMQ.Host == "" {
			return fmt.Errorf("rabbitmq host is required")
		}
		if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
			return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
		}
	}

	return nil
}

func (c *Config) uses(backend string) bool {
	return c.Queue.CounterBackend == backend || c.Queue.ListBackend == backend
}

// ValidateServerConfig checks the work server configuration
func (c *Config) ValidateServerConfig() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	return nil
}

// ValidateHarvesterConfig checks the harvester configuration
func (c *Config) ValidateHarvesterConfig() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.Harvester.Concurrency <= 0 {
		return fmt.Errorf("harvester concurrency must be greater than 0")
	}

	if c.Harvester.PollInterval <= 0 {
		return fmt.Errorf("harvester poll_interval must be greater than 0")
	}

	if c.Harvester.FetchTimeout <= 0 {
		return fmt.Errorf("harvester fetch_timeout must be greater than 0")
	}

	if c.Harvester.RateLimit < 0 {
		return fmt.Errorf("harvester rate_limit cannot be negative")
	}

	if !c.Storage.Disk.Enabled && !c.Storage.GCS.Enabled {
		return fmt.Errorf("at least one storage backend must be enabled")
	}

	if c.Storage.Disk.Enabled && c.Storage.Disk.Root == "" {
		return fmt.Errorf("storage disk root is required")
	}

	if c.Storage.GCS.Enabled && c.Storage.GCS.Bucket == "" {
		return fmt.Errorf("storage gcs bucket is required")
	}

	return nil
}
