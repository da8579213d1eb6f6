package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oscillometry-report-server/internal/domain"
)

func TestNewLogger(t *testing.T) {
	logger, closer, err := NewLogger(domain.LoggingConfig{Level: "debug", Format: "text", Output: "stderr"})
	require.NoError(t, err)
	defer closer()

	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)
	assert.Equal(t, os.Stderr, logger.Out)
}

func TestNewLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "server.log")
	logger, closer, err := NewLogger(domain.LoggingConfig{Output: path})
	require.NoError(t, err)

	logger.WithField("patient_id", "p1").Info("Saved patient")
	require.NoError(t, closer())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"patient_id":"p1"`)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	_, _, err := NewLogger(domain.LoggingConfig{Level: "loud"})
	assert.Error(t, err)
}
