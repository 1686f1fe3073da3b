package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaignflow/internal/config"
)

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")

	logger, closer, err := New(config.LoggingConfig{Level: "debug", OutputFile: path})
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	logger.WithField("phone", "919876543210").Info("message sent")
	require.NoError(t, closer())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "message sent")
	assert.Contains(t, string(data), "phone=919876543210")
}

func TestNewWithoutFile(t *testing.T) {
	logger, closer, err := New(config.LoggingConfig{Level: "warn"})
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())
	assert.NoError(t, closer())
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, _, err := New(config.LoggingConfig{Level: "chatty"})
	assert.Error(t, err)
}
