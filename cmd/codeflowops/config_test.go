package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Config Loading Tests
// =============================================================================

func TestLoadConfig_DefaultValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("CODEFLOWOPS_SECRETS_PASSPHRASE", "test-passphrase")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, "./data/codeflowops.db", cfg.Database.DSN)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	assert.Equal(t, 30*time.Second, cfg.Queue.RetryDelay)
	assert.Equal(t, 15*time.Minute, cfg.Queue.ProcessingTimeout)
	assert.Equal(t, 4, cfg.Workers.Count)
	assert.Equal(t, 20, cfg.Deploy.HealthAttempts)
	assert.Equal(t, 15*time.Second, cfg.Deploy.HealthInterval)
	assert.Equal(t, 5*time.Minute, cfg.Deploy.LockTTL)
}

func TestLoadConfig_RequiresPassphrase(t *testing.T) {
	clearEnv(t)

	_, err := LoadConfig("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "secrets.passphrase")
}

func TestLoadConfig_FromFile(t *testing.T) {
	clearEnv(t)

	configContent := `
server:
  host: "127.0.0.1"
  port: 9000
  read_timeout: 60s

database:
  dsn: "/tmp/test.db"

log:
  level: "debug"
  format: "text"

workers:
  count: 8
  job_timeout: 1h

deploy:
  health_attempts: 5
  health_interval: 2s

secrets:
  passphrase: "file-passphrase"
`
	tmpFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte(configContent), 0644))

	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "/tmp/test.db", cfg.Database.DSN)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 8, cfg.Workers.Count)
	assert.Equal(t, time.Hour, cfg.Workers.JobTimeout)
	assert.Equal(t, 5, cfg.Deploy.HealthAttempts)
	assert.Equal(t, 2*time.Second, cfg.Deploy.HealthInterval)
	assert.Equal(t, "file-passphrase", cfg.Secrets.Passphrase)
}

func TestLoadConfig_EnvironmentOverride(t *testing.T) {
	clearEnv(t)

	t.Setenv("CODEFLOWOPS_SERVER_HOST", "192.168.1.1")
	t.Setenv("CODEFLOWOPS_SERVER_PORT", "3000")
	t.Setenv("CODEFLOWOPS_DATABASE_DSN", "/custom/path.db")
	t.Setenv("CODEFLOWOPS_LOG_LEVEL", "warn")
	t.Setenv("CODEFLOWOPS_WORKERS_COUNT", "2")
	t.Setenv("CODEFLOWOPS_SECRETS_PASSPHRASE", "env-passphrase")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "192.168.1.1", cfg.Server.Host)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "/custom/path.db", cfg.Database.DSN)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 2, cfg.Workers.Count)
	assert.Equal(t, "env-passphrase", cfg.Secrets.Passphrase)
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CODEFLOWOPS_SECRETS_PASSPHRASE", "test-passphrase")

	tmpFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte("server: [not: valid"), 0644))

	_, err := LoadConfig(tmpFile)
	assert.Error(t, err)
}

// =============================================================================
// Logger Setup Tests
// =============================================================================

func TestSetupLogger_Levels(t *testing.T) {
	tests := []struct {
		level string
	}{
		{"debug"}, {"info"}, {"warn"}, {"error"}, {"bogus"},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := &Config{Log: LogConfig{Level: tt.level, Format: "text"}}
			logger := SetupLogger(cfg)
			assert.NotNil(t, logger)
		})
	}
}

// clearEnv removes CODEFLOWOPS_ variables for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "CODEFLOWOPS_") {
			key := strings.SplitN(kv, "=", 2)[0]
			t.Setenv(key, "")
			os.Unsetenv(key)
		}
	}
}
