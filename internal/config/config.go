// Package config loads and validates service configuration from a YAML file
// and MDSTORE_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for the service.
type Config struct {
	Storage   StorageConfig   `mapstructure:"storage"`
	Exchange  ExchangeConfig  `mapstructure:"exchange"`
	Collector CollectorConfig `mapstructure:"collector"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// StorageConfig selects and parameterizes the storage backend.
type StorageConfig struct {
	// Type is "local", "azure" or "memory".
	Type     string      `mapstructure:"type"`
	RootPath string      `mapstructure:"root_path"`
	Azure    AzureConfig `mapstructure:"azure"`
}

// AzureConfig holds Azure Blob credentials. Either a connection string or an
// account name with managed identity must be provided.
type AzureConfig struct {
	AccountName        string `mapstructure:"account_name"`
	ContainerName      string `mapstructure:"container_name"`
	ConnectionString   string `mapstructure:"connection_string"`
	UseManagedIdentity bool   `mapstructure:"use_managed_identity"`
}

// ExchangeConfig parameterizes the exchange HTTP client.
type ExchangeConfig struct {
	Name            string        `mapstructure:"name"`
	BaseURL         string        `mapstructure:"base_url"`
	RateLimitPerSec float64       `mapstructure:"rate_limit_per_sec"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// CollectorConfig parameterizes the collection loop.
type CollectorConfig struct {
	Lookback     time.Duration `mapstructure:"lookback"`
	ChunkSize    int           `mapstructure:"chunk_size"`
	LatestWindow time.Duration `mapstructure:"latest_window"`
}

// LoggingConfig parameterizes the structured logger.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // "json" or "text"
	Output     string `mapstructure:"output"` // "stdout", "stderr" or "file"
	FilePath   string `mapstructure:"file_path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Load reads configuration from the given file (optional) and the
// environment, applies defaults and validates the result.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MDSTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.root_path", "./data")
	v.SetDefault("exchange.name", "coinbase")
	v.SetDefault("exchange.base_url", "https://api.exchange.coinbase.com")
	v.SetDefault("exchange.rate_limit_per_sec", 10.0)
	v.SetDefault("exchange.timeout", 30*time.Second)
	v.SetDefault("collector.lookback", 30*24*time.Hour)
	v.SetDefault("collector.chunk_size", 1000)
	v.SetDefault("collector.latest_window", 24*time.Hour)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)
}

// Validate checks the configuration for inconsistencies before any backend
// is constructed.
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case "local":
		if c.Storage.RootPath == "" {
			return fmt.Errorf("storage.root_path is required for the local backend")
		}
	case "azure":
		a := c.Storage.Azure
		if a.ContainerName == "" {
			return fmt.Errorf("storage.azure.container_name is required for the azure backend")
		}
		if a.ConnectionString == "" && !(a.UseManagedIdentity && a.AccountName != "") {
			return fmt.Errorf("azure backend requires a connection string, or an account name with managed identity")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage type %q", c.Storage.Type)
	}
	if c.Collector.ChunkSize <= 0 {
		return fmt.Errorf("collector.chunk_size must be positive")
	}
	if c.Collector.LatestWindow <= 0 {
		return fmt.Errorf("collector.latest_window must be positive")
	}
	if c.Exchange.RateLimitPerSec <= 0 {
		return fmt.Errorf("exchange.rate_limit_per_sec must be positive")
	}
	switch c.Logging.Output {
	case "stdout", "stderr":
	case "file":
		if c.Logging.FilePath == "" {
			return fmt.Errorf("logging.file_path is required for file output")
		}
	default:
		return fmt.Errorf("unknown logging output %q", c.Logging.Output)
	}
	return nil
}
