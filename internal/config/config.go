// Package config provides unified configuration loading for the service.
// Supports YAML files, environment variables, and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the service.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Upload        UploadConfig        `yaml:"upload"`
	Extraction    ExtractionConfig    `yaml:"extraction"`
	Tasks         TasksConfig         `yaml:"tasks"`
	Callback      CallbackConfig      `yaml:"callback"`
	Database      DatabaseConfig      `yaml:"database"`
	Auth          AuthConfig          `yaml:"auth"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

// UploadConfig holds model upload settings.
type UploadConfig struct {
	MaxBytes      int64         `yaml:"max_bytes"`
	TempDir       string        `yaml:"temp_dir"`
	JanitorSweep  time.Duration `yaml:"janitor_sweep"`
	JanitorMaxAge time.Duration `yaml:"janitor_max_age"`
}

// ExtractionConfig holds extraction defaults.
type ExtractionConfig struct {
	DefaultPageSize int `yaml:"default_page_size"`
}

// TasksConfig holds the background worker pool settings.
type TasksConfig struct {
	Workers       int           `yaml:"workers"`
	QueueSize     int           `yaml:"queue_size"`
	Retention     time.Duration `yaml:"retention"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// CallbackConfig holds webhook delivery settings.
type CallbackConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	BaseDelay      time.Duration `yaml:"base_delay"`
	MaxDelay       time.Duration `yaml:"max_delay"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
}

// DatabaseConfig holds task store settings.
type DatabaseConfig struct {
	Driver string       `yaml:"driver"` // memory or sqlite
	SQLite SQLiteConfig `yaml:"sqlite"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds API key authentication settings.
type AuthConfig struct {
	Enabled      bool          `yaml:"enabled"`
	APIKeys      []string      `yaml:"api_keys"`
	MaxAttempts  int           `yaml:"max_attempts"`
	AttemptReset time.Duration `yaml:"attempt_reset"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	ServiceName string `yaml:"service_name"`
}

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeout:      60 * time.Second,
			WriteTimeout:     300 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 10 * time.Second,
		},
		Upload: UploadConfig{
			MaxBytes:      50 * 1024 * 1024,
			TempDir:       os.TempDir(),
			JanitorSweep:  time.Hour,
			JanitorMaxAge: 24 * time.Hour,
		},
		Extraction: ExtractionConfig{
			DefaultPageSize: 50,
		},
		Tasks: TasksConfig{
			Workers:       2,
			QueueSize:     64,
			Retention:     time.Hour,
			SweepInterval: 5 * time.Minute,
		},
		Callback: CallbackConfig{
			MaxAttempts:    4,
			BaseDelay:      500 * time.Millisecond,
			MaxDelay:       10 * time.Second,
			AttemptTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "memory",
			SQLite: SQLiteConfig{
				Path: "/tmp/openbim-tasks.db",
			},
		},
		Auth: AuthConfig{
			Enabled:      false,
			MaxAttempts:  10,
			AttemptReset: time.Minute,
		},
		Observability: ObservabilityConfig{
			LogLevel:    "debug",
			LogFormat:   "json",
			ServiceName: "openbim-service",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Upload.MaxBytes < 1 {
		return fmt.Errorf("upload max_bytes must be positive")
	}

	if c.Extraction.DefaultPageSize < 1 || c.Extraction.DefaultPageSize > 10000 {
		return fmt.Errorf("default_page_size must be between 1 and 10000")
	}

	if c.Tasks.Workers < 1 {
		return fmt.Errorf("tasks workers must be >= 1")
	}

	if c.Callback.MaxAttempts < 1 {
		return fmt.Errorf("callback max_attempts must be >= 1")
	}

	if c.Database.Driver != "memory" && c.Database.Driver != "sqlite" {
		return fmt.Errorf("invalid database driver: %s", c.Database.Driver)
	}

	if c.Auth.Enabled && len(c.APIKeys()) == 0 {
		return fmt.Errorf("auth enabled but no api keys configured")
	}

	return nil
}

// APIKeys returns the configured keys with blanks removed.
func (c *Config) APIKeys() []string {
	var keys []string
	for _, k := range c.Auth.APIKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Upload.MaxBytes = n
		}
	}

	if v := os.Getenv("UPLOAD_TEMP_DIR"); v != "" {
		cfg.Upload.TempDir = v
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		if strings.HasPrefix(v, "sqlite:") {
			cfg.Database.Driver = "sqlite"
			cfg.Database.SQLite.Path = strings.TrimPrefix(v, "sqlite:")
		}
	}

	if v := os.Getenv("TASK_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Tasks.Workers = n
		}
	}

	if v := os.Getenv("API_KEYS"); v != "" {
		cfg.Auth.Enabled = true
		cfg.Auth.APIKeys = strings.Split(v, ",")
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}
