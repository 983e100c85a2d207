package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hooks.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StorePostgres, cfg.Store)
	assert.Equal(t, TaskQueueJetStream, cfg.TaskQueue)
	assert.Equal(t, []string{"default"}, cfg.Worker.Queues)
	assert.Equal(t, 10*time.Second, cfg.Sweep.Interval)
	assert.Equal(t, 30*time.Second, cfg.Retry.BackoffBase)
	assert.Equal(t, 10*time.Minute, cfg.Retry.BackoffMax)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeConfigFile(t, `
port: "9000"
store: memory
task_queue: memory
worker:
  queues: [default, billing]
  concurrency: 8
sweep:
  interval: 2s
retry:
  backoff_base: 1s
  backoff_max: 1m
`)
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("WORKER_CONCURRENCY", "2")
	t.Setenv("RETRY_BACKOFF_MAX", "5m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, []string{"default", "billing"}, cfg.Worker.Queues)
	assert.Equal(t, 2, cfg.Worker.Concurrency)
	assert.Equal(t, 2*time.Second, cfg.Sweep.Interval)
	assert.Equal(t, time.Second, cfg.Retry.BackoffBase)
	assert.Equal(t, 5*time.Minute, cfg.Retry.BackoffMax)
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown store", func(c *Config) { c.Store = "mongo" }},
		{"unknown task queue", func(c *Config) { c.TaskQueue = "celery" }},
		{"jetstream with memory store", func(c *Config) { c.Store = StoreMemory }},
		{"bad queue name", func(c *Config) { c.Worker.Queues = []string{"bad.queue"} }},
		{"no queues", func(c *Config) { c.Worker.Queues = nil }},
		{"zero concurrency", func(c *Config) { c.Worker.Concurrency = 0 }},
		{"backoff max below base", func(c *Config) { c.Retry.BackoffMax = time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestGetEnvAsList(t *testing.T) {
	t.Setenv("WORKER_QUEUES", " default , billing,,")
	assert.Equal(t, []string{"default", "billing"}, getEnvAsList("WORKER_QUEUES", nil))
}
