// Package config loads process configuration from .env, an optional YAML file
// and environment variables, in increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/domainhooks/hooks/go/internal/dbconfig"
	"github.com/domainhooks/hooks/go/internal/models"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	TaskQueueMemory    = "memory"
	TaskQueueJetStream = "jetstream"
)

type Config struct {
	Port        string          `yaml:"port"`
	Environment string          `yaml:"environment"`
	Store       string          `yaml:"store"`
	TaskQueue   string          `yaml:"task_queue"`
	NATSURL     string          `yaml:"nats_url"`
	CORSOrigins []string        `yaml:"cors_allowed_origins"`
	Log         LogConfig       `yaml:"log"`
	Database    dbconfig.Config `yaml:"database"`
	Worker      WorkerConfig    `yaml:"worker"`
	Sweep       SweepConfig     `yaml:"sweep"`
	Retry       RetryConfig     `yaml:"retry"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

// WorkerConfig controls the delivery worker.
type WorkerConfig struct {
	Queues      []string      `yaml:"queues"`
	Concurrency int           `yaml:"concurrency"`
	AckWait     time.Duration `yaml:"ack_wait"`
	HealthPort  string        `yaml:"health_port"`
}

// SweepConfig controls the periodic pickup of due events.
type SweepConfig struct {
	Interval      time.Duration `yaml:"interval"`
	NotifyChannel string        `yaml:"notify_channel"`
	Listen        bool          `yaml:"listen"`
}

// RetryConfig is the task queue backoff policy.
type RetryConfig struct {
	BackoffBase time.Duration `yaml:"backoff_base"`
	BackoffMax  time.Duration `yaml:"backoff_max"`
	Jitter      bool          `yaml:"jitter"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Port:        "8080",
		Environment: "development",
		Store:       StorePostgres,
		TaskQueue:   TaskQueueJetStream,
		NATSURL:     "nats://127.0.0.1:4222",
		CORSOrigins: []string{"*"},
		Log:         LogConfig{Level: "info", Format: "console"},
		Database:    dbconfig.NewConfigFromEnv(),
		Worker: WorkerConfig{
			Queues:      []string{models.DefaultQueueName},
			Concurrency: 4,
			AckWait:     30 * time.Second,
			HealthPort:  "8082",
		},
		Sweep: SweepConfig{
			Interval:      10 * time.Second,
			NotifyChannel: "hook_events_pending",
			Listen:        true,
		},
		Retry: RetryConfig{
			BackoffBase: 30 * time.Second,
			BackoffMax:  10 * time.Minute,
			Jitter:      true,
		},
	}
}

// Load reads .env, then CONFIG_FILE if set, then environment overrides.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)
	cfg.Store = getEnv("STORE", cfg.Store)
	cfg.TaskQueue = getEnv("TASK_QUEUE", cfg.TaskQueue)
	cfg.NATSURL = getEnv("NATS_URL", cfg.NATSURL)
	cfg.CORSOrigins = getEnvAsList("CORS_ALLOWED_ORIGINS", cfg.CORSOrigins)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)

	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnvAsInt("DB_PORT", cfg.Database.Port)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.Database = getEnv("DB_NAME", cfg.Database.Database)
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", cfg.Database.SSLMode)

	cfg.Worker.Queues = getEnvAsList("WORKER_QUEUES", cfg.Worker.Queues)
	cfg.Worker.Concurrency = getEnvAsInt("WORKER_CONCURRENCY", cfg.Worker.Concurrency)
	cfg.Worker.AckWait = getEnvAsDuration("ACK_WAIT", cfg.Worker.AckWait)
	cfg.Worker.HealthPort = getEnv("WORKER_HEALTH_PORT", cfg.Worker.HealthPort)

	cfg.Sweep.Interval = getEnvAsDuration("SWEEP_INTERVAL", cfg.Sweep.Interval)
	cfg.Sweep.Listen = getEnvAsBool("SWEEP_LISTEN", cfg.Sweep.Listen)

	cfg.Retry.BackoffBase = getEnvAsDuration("RETRY_BACKOFF_BASE", cfg.Retry.BackoffBase)
	cfg.Retry.BackoffMax = getEnvAsDuration("RETRY_BACKOFF_MAX", cfg.Retry.BackoffMax)
	cfg.Retry.Jitter = getEnvAsBool("RETRY_JITTER", cfg.Retry.Jitter)
}

// Validate rejects settings the services cannot start with.
func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory, StorePostgres:
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	switch c.TaskQueue {
	case TaskQueueMemory, TaskQueueJetStream:
	default:
		return fmt.Errorf("unknown task queue %q", c.TaskQueue)
	}
	if c.TaskQueue == TaskQueueJetStream && c.Store == StoreMemory {
		return fmt.Errorf("task queue %q needs a shared store, got %q", c.TaskQueue, c.Store)
	}
	if len(c.Worker.Queues) == 0 {
		return fmt.Errorf("at least one worker queue is required")
	}
	for _, q := range c.Worker.Queues {
		if !models.ValidQueueName(q) {
			return fmt.Errorf("invalid worker queue name %q", q)
		}
	}
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("worker concurrency must be positive, got %d", c.Worker.Concurrency)
	}
	if c.Sweep.Interval <= 0 {
		return fmt.Errorf("sweep interval must be positive")
	}
	if c.Retry.BackoffBase <= 0 || c.Retry.BackoffMax < c.Retry.BackoffBase {
		return fmt.Errorf("invalid retry backoff %s..%s", c.Retry.BackoffBase, c.Retry.BackoffMax)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		log.Warn().Str("key", key).Str("value", value).Msg("ignoring non-integer env value")
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
		log.Warn().Str("key", key).Str("value", value).Msg("ignoring non-boolean env value")
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Warn().Str("key", key).Str("value", value).Msg("ignoring invalid duration env value")
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
