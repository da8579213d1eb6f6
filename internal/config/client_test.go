package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oscillometry-report-server/internal/domain"
)

func TestDefaultClientConfig(t *testing.T) {
	cfg := DefaultClientConfig()

	assert.Equal(t, "http://localhost:8080", cfg.ServerURL)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, 10.0, cfg.RateLimit)
	assert.Equal(t, DataDir(), cfg.DataDir)
	assert.Equal(t, 2, cfg.Precision)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, AppName, filepath.Base(cfg.DataDir))
}

func TestLoadClientConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("IOS_REPORT_SERVER_URL", "http://reports.local:9000")
	t.Setenv("IOS_REPORT_TIMEOUT", "3s")
	t.Setenv("IOS_REPORT_RATE_LIMIT", "2.5")
	t.Setenv("IOS_REPORT_DATA_DIR", "/tmp/ios-report")
	t.Setenv("IOS_REPORT_PRECISION", "0")
	t.Setenv("IOS_REPORT_LOG_LEVEL", "debug")

	cfg := LoadClientConfig()

	assert.Equal(t, "http://reports.local:9000", cfg.ServerURL)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
	assert.Equal(t, 2.5, cfg.RateLimit)
	assert.Equal(t, "/tmp/ios-report", cfg.DataDir)
	assert.Equal(t, 0, cfg.Precision)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadClientConfig_IgnoresInvalidValues(t *testing.T) {
	t.Setenv("IOS_REPORT_TIMEOUT", "soon")
	t.Setenv("IOS_REPORT_RATE_LIMIT", "-1")
	t.Setenv("IOS_REPORT_PRECISION", "42")

	cfg := LoadClientConfig()

	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, 10.0, cfg.RateLimit)
	assert.Equal(t, 2, cfg.Precision)
}

func TestClientConfig_Paths(t *testing.T) {
	cfg := &ClientConfig{DataDir: "/home/user/.local/share/oscillometry-report"}

	assert.Equal(t, "/home/user/.local/share/oscillometry-report/raw-values.json", cfg.CachePath())
	assert.Equal(t, "/home/user/.local/share/oscillometry-report/exports", cfg.ExportDir())
}

func TestClientConfig_CacheConfig(t *testing.T) {
	cfg := DefaultClientConfig()
	cfg.DataDir = "/data"

	cc := cfg.CacheConfig()
	assert.Equal(t, domain.CacheFile, cc.Backend)
	assert.Equal(t, "/data/raw-values.json", cc.FilePath)
	assert.Equal(t, AppName, cc.KeyPrefix)

	t.Setenv("IOS_REPORT_CACHE_BACKEND", domain.CacheRedis)
	t.Setenv("IOS_REPORT_REDIS_URL", "redis://cache:6379/1")
	cc = LoadClientConfig().CacheConfig()
	assert.Equal(t, domain.CacheRedis, cc.Backend)
	assert.Equal(t, "redis://cache:6379/1", cc.RedisURL)
}

func TestClientConfig_EnsureDataDir(t *testing.T) {
	cfg := &ClientConfig{DataDir: filepath.Join(t.TempDir(), "report")}

	require.NoError(t, cfg.EnsureDataDir())

	_, err := os.Stat(cfg.DataDir)
	assert.NoError(t, err)
	_, err = os.Stat(cfg.ExportDir())
	assert.NoError(t, err)
}
