package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config struct for environment variables.
type Config struct {
	UserAgent  string `envconfig:"USER_AGENT" default:"packport/1.0"`
	ArchiveDir string `envconfig:"ARCHIVE_DIR" required:"true"`
	TempDir    string `envconfig:"TEMP_DIR"`
	DBPath     string `envconfig:"DB_PATH" default:"packport.db"`

	CancelPollInterval time.Duration `envconfig:"CANCEL_POLL_INTERVAL" default:"200ms"`
	KeepArchivesFor    time.Duration `envconfig:"KEEP_ARCHIVES_FOR" default:"720h"`
	CleanupInterval    time.Duration `envconfig:"CLEANUP_INTERVAL" default:"1h"`

	LogLevel        string `envconfig:"LOG_LEVEL" default:"INFO"`
	AlertWebhookURL string `envconfig:"ALERT_WEBHOOK_URL"`

	Telemetry struct {
		Enabled bool `split_words:"true" default:"true"`
	}

	Web struct {
		BindAddress     string        `split_words:"true" default:"127.0.0.1:8091"`
		Username        string        `split_words:"true"`
		Password        string        `split_words:"true"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"30s"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("PACKPORT", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	return &cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
