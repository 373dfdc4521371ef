package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Storage.Type)
	assert.Equal(t, "./data", cfg.Storage.RootPath)
	assert.Equal(t, "coinbase", cfg.Exchange.Name)
	assert.Equal(t, 10.0, cfg.Exchange.RateLimitPerSec)
	assert.Equal(t, 30*time.Second, cfg.Exchange.Timeout)
	assert.Equal(t, 1000, cfg.Collector.ChunkSize)
	assert.Equal(t, 24*time.Hour, cfg.Collector.LatestWindow)
	assert.Equal(t, 30*24*time.Hour, cfg.Collector.Lookback)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
storage:
  type: memory
exchange:
  name: binance
  base_url: https://api.binance.test
  rate_limit_per_sec: 5
collector:
  chunk_size: 250
logging:
  level: debug
  format: text
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, "binance", cfg.Exchange.Name)
	assert.Equal(t, "https://api.binance.test", cfg.Exchange.BaseURL)
	assert.Equal(t, 5.0, cfg.Exchange.RateLimitPerSec)
	assert.Equal(t, 250, cfg.Collector.ChunkSize)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)

	// Untouched sections keep their defaults.
	assert.Equal(t, 24*time.Hour, cfg.Collector.LatestWindow)
	assert.Equal(t, "stdout", cfg.Logging.Output)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func validConfig() *Config {
	return &Config{
		Storage:   StorageConfig{Type: "memory"},
		Exchange:  ExchangeConfig{Name: "binance", RateLimitPerSec: 10},
		Collector: CollectorConfig{ChunkSize: 100, LatestWindow: time.Hour},
		Logging:   LoggingConfig{Output: "stdout"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid memory", func(c *Config) {}, false},
		{"local without root path", func(c *Config) {
			c.Storage.Type = "local"
		}, true},
		{"unknown storage type", func(c *Config) {
			c.Storage.Type = "s3"
		}, true},
		{"azure without container", func(c *Config) {
			c.Storage.Type = "azure"
			c.Storage.Azure.ConnectionString = "cs"
		}, true},
		{"azure without credentials", func(c *Config) {
			c.Storage.Type = "azure"
			c.Storage.Azure.ContainerName = "ohlcv"
		}, true},
		{"azure with connection string", func(c *Config) {
			c.Storage.Type = "azure"
			c.Storage.Azure.ContainerName = "ohlcv"
			c.Storage.Azure.ConnectionString = "cs"
		}, false},
		{"azure with managed identity", func(c *Config) {
			c.Storage.Type = "azure"
			c.Storage.Azure.ContainerName = "ohlcv"
			c.Storage.Azure.UseManagedIdentity = true
			c.Storage.Azure.AccountName = "acct"
		}, false},
		{"zero chunk size", func(c *Config) {
			c.Collector.ChunkSize = 0
		}, true},
		{"zero rate limit", func(c *Config) {
			c.Exchange.RateLimitPerSec = 0
		}, true},
		{"file logging without path", func(c *Config) {
			c.Logging.Output = "file"
		}, true},
		{"file logging with path", func(c *Config) {
			c.Logging.Output = "file"
			c.Logging.FilePath = "/tmp/mdstore.log"
		}, false},
		{"unknown logging output", func(c *Config) {
			c.Logging.Output = "syslog"
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
