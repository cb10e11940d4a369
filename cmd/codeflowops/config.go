package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Docker   DockerConfig   `mapstructure:"docker"`
	Log      LogConfig      `mapstructure:"log"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Workers  WorkersConfig  `mapstructure:"workers"`
	Deploy   DeployConfig   `mapstructure:"deploy"`
	Quota    QuotaConfig    `mapstructure:"quota"`
	Secrets  SecretsConfig  `mapstructure:"secrets"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// DockerConfig holds Docker client configuration for the image builder.
type DockerConfig struct {
	Host string `mapstructure:"host"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// QueueConfig holds job queue configuration.
type QueueConfig struct {
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	ProcessingTimeout time.Duration `mapstructure:"processing_timeout"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`
}

// WorkersConfig holds worker pool configuration.
type WorkersConfig struct {
	Count        int           `mapstructure:"count"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	JobTimeout   time.Duration `mapstructure:"job_timeout"`
}

// DeployConfig holds rollout configuration.
type DeployConfig struct {
	// HealthAttempts and HealthInterval bound the post-rollout health gate.
	HealthAttempts int           `mapstructure:"health_attempts"`
	HealthInterval time.Duration `mapstructure:"health_interval"`

	// LockTTL is the deployment lock lease duration.
	LockTTL time.Duration `mapstructure:"lock_ttl"`
}

// QuotaConfig holds per-tenant deployment limits. Zero disables a bound.
type QuotaConfig struct {
	MaxActiveDeployments int `mapstructure:"max_active_deployments"`
	MaxTotalDeployments  int `mapstructure:"max_total_deployments"`
	MaxMemoryMB          int `mapstructure:"max_memory_mb"`
}

// Enabled reports whether any bound is set.
func (c QuotaConfig) Enabled() bool {
	return c.MaxActiveDeployments > 0 || c.MaxTotalDeployments > 0 || c.MaxMemoryMB > 0
}

// SecretsConfig holds the key material for sealing credentials.
type SecretsConfig struct {
	// Passphrase derives the key that seals job-payload credentials and
	// stored database passwords. Set via CODEFLOWOPS_SECRETS_PASSPHRASE.
	Passphrase string `mapstructure:"passphrase"`
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("database.dsn", "./data/codeflowops.db")
	v.SetDefault("docker.host", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("queue.retry_delay", "30s")
	v.SetDefault("queue.processing_timeout", "15m")
	v.SetDefault("queue.sweep_interval", "30s")

	v.SetDefault("workers.count", 4)
	v.SetDefault("workers.poll_interval", "2s")
	v.SetDefault("workers.job_timeout", "45m")

	v.SetDefault("deploy.health_attempts", 20)
	v.SetDefault("deploy.health_interval", "15s")
	v.SetDefault("deploy.lock_ttl", "5m")

	v.SetDefault("quota.max_active_deployments", 0)
	v.SetDefault("quota.max_total_deployments", 0)
	v.SetDefault("quota.max_memory_mb", 0)

	v.SetDefault("secrets.passphrase", "")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			// File not found is OK, we'll use defaults
		}
	}

	v.SetEnvPrefix("CODEFLOWOPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Secrets.Passphrase == "" {
		return nil, fmt.Errorf("secrets.passphrase is required (set CODEFLOWOPS_SECRETS_PASSPHRASE)")
	}

	return &cfg, nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
func SetupLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
