package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	profile := filepath.Join(t.TempDir(), "profile")
	path := writeConfig(t, "browser:\n  profile_dir: "+profile+"\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, profile, cfg.Browser.ProfileDir)
	assert.Equal(t, 9222, cfg.Browser.DebugPort)
	assert.Equal(t, 60, cfg.Browser.LoginTimeoutSeconds)
	assert.Equal(t, 10, cfg.Sending.TypingMinMillis)
	assert.Equal(t, 50, cfg.Sending.TypingMaxMillis)
	assert.Equal(t, 5, cfg.Sending.PacingMinSeconds)
	assert.Equal(t, 15, cfg.Sending.PacingMaxSeconds)
	assert.Equal(t, 30, cfg.Sending.ComposerTimeoutSeconds)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFileValues(t *testing.T) {
	path := writeConfig(t, `
browser:
  headless: true
  profile_dir: ./relative-profile
  login_timeout_seconds: 90
sending:
  pacing_min_seconds: 2
  pacing_max_seconds: 4
logging:
  level: DEBUG
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Browser.Headless)
	assert.True(t, filepath.IsAbs(cfg.Browser.ProfileDir))
	assert.Equal(t, 90, cfg.Browser.LoginTimeoutSeconds)
	assert.Equal(t, 2, cfg.Sending.PacingMinSeconds)
	assert.Equal(t, 4, cfg.Sending.PacingMaxSeconds)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "server:\n  listen: 127.0.0.1:9000\n")
	t.Setenv("CAMPAIGNFLOW_LISTEN", "0.0.0.0:7000")
	t.Setenv("CAMPAIGNFLOW_HEADLESS", "true")
	t.Setenv("CAMPAIGNFLOW_PACING_MIN_SECONDS", "1")
	t.Setenv("CAMPAIGNFLOW_PACING_MAX_SECONDS", "3")
	t.Setenv("CAMPAIGNFLOW_PROFILE_DIR", t.TempDir())

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:7000", cfg.Server.Listen)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 1, cfg.Sending.PacingMinSeconds)
	assert.Equal(t, 3, cfg.Sending.PacingMaxSeconds)
}

func TestLoadBadEnvNumber(t *testing.T) {
	t.Setenv("CAMPAIGNFLOW_DEBUG_PORT", "nine")
	_, err := Load(writeConfig(t, ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CAMPAIGNFLOW_DEBUG_PORT")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "browser: [unterminated"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestValidateRanges(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"pacing inverted", func(c *Config) { c.Sending.PacingMinSeconds, c.Sending.PacingMaxSeconds = 10, 2 }, "sending"},
		{"typing inverted", func(c *Config) { c.Sending.TypingMinMillis, c.Sending.TypingMaxMillis = 80, 20 }, "sending"},
		{"port out of range", func(c *Config) { c.Browser.DebugPort = 70000 }, "browser"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Browser.ProfileDir = t.TempDir()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestValidateDefaults(t *testing.T) {
	cfg := Default()
	cfg.Browser.ProfileDir = t.TempDir()
	assert.NoError(t, cfg.Validate())
}
