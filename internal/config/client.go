// Package config provides configuration management for the report service and its clients.
// This file contains the environment-driven configuration of the command-line tools.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adrg/xdg"

	"github.com/oscillometry-report-server/internal/domain"
)

// AppName names the per-user data directory.
const AppName = "oscillometry-report"

// ClientConfig configures the CLI and MCP tools that talk to the persistence service.
// It requires no config file and uses sensible defaults.
type ClientConfig struct {
	ServerURL string        // Base URL of the persistence service
	Timeout   time.Duration // Per-request timeout
	RateLimit float64       // Requests per second sent to the service
	DataDir   string        // Base directory for the raw-value cache and exports

	Precision int // Display precision of new sessions

	CacheBackend string // Raw-value cache: file (default), redis or memory
	RedisURL     string // Redis server of the redis cache backend

	LogLevel  string // Log level: debug, info, warn, error
	LogFormat string // Log format: json, text
}

// DataDir returns the XDG data directory of the tools.
// On Linux: ~/.local/share/oscillometry-report
func DataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// DefaultClientConfig returns a configuration with sensible defaults.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		ServerURL:    "http://localhost:8080",
		Timeout:      10 * time.Second,
		RateLimit:    10,
		DataDir:      DataDir(),
		Precision:    2,
		CacheBackend: domain.CacheFile,
		RedisURL:     "redis://localhost:6379",
		LogLevel:     "warn",
		LogFormat:    "text",
	}
}

// LoadClientConfig loads configuration from environment variables.
// Falls back to defaults if not set.
func LoadClientConfig() *ClientConfig {
	cfg := DefaultClientConfig()

	if v := os.Getenv(EnvPrefix + "_SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv(EnvPrefix + "_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Timeout = d
		}
	}
	if v := os.Getenv(EnvPrefix + "_RATE_LIMIT"); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil && n > 0 {
			cfg.RateLimit = n
		}
	}
	if v := os.Getenv(EnvPrefix + "_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv(EnvPrefix + "_PRECISION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= 10 {
			cfg.Precision = n
		}
	}
	if v := os.Getenv(EnvPrefix + "_CACHE_BACKEND"); v != "" {
		cfg.CacheBackend = v
	}
	if v := os.Getenv(EnvPrefix + "_REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv(EnvPrefix + "_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(EnvPrefix + "_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

// CachePath returns the path of the raw-value cache file.
func (c *ClientConfig) CachePath() string {
	return filepath.Join(c.DataDir, "raw-values.json")
}

// CacheConfig returns the raw-value cache settings of the editor. Redis keys are prefixed
// so several operators can share one server.
func (c *ClientConfig) CacheConfig() domain.CacheConfig {
	return domain.CacheConfig{
		Backend:    c.CacheBackend,
		FilePath:   c.CachePath(),
		RedisURL:   c.RedisURL,
		KeyPrefix:  AppName,
		MaxRetries: 3,
		PoolSize:   2,
	}
}

// ExportDir returns the directory for exported reports.
func (c *ClientConfig) ExportDir() string {
	return filepath.Join(c.DataDir, "exports")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *ClientConfig) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(c.ExportDir(), 0755)
}
