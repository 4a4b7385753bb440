package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "bilidown"

// Config struct for environment variables. Every variable is prefixed with BILIDOWN_.
type Config struct {
	LogLevel  string `envconfig:"LOG_LEVEL" default:"INFO"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	FFmpegPath        string        `envconfig:"FFMPEG_PATH" default:"ffmpeg"`
	TempDir           string        `envconfig:"TEMP_DIR"`
	ConcurrentStreams bool          `envconfig:"CONCURRENT_STREAMS" default:"false"`
	PageTimeout       time.Duration `envconfig:"PAGE_TIMEOUT" default:"30s"`
	RunTimeout        time.Duration `envconfig:"RUN_TIMEOUT" default:"0s"`
	MuxTimeout        time.Duration `envconfig:"MUX_TIMEOUT" default:"0s"`
	StaleTempAge      time.Duration `envconfig:"STALE_TEMP_AGE" default:"24h"`
	ProgressBar       bool          `envconfig:"PROGRESS_BAR" default:"true"`

	HistoryEnabled bool   `envconfig:"HISTORY_ENABLED" default:"true"`
	HistoryDBPath  string `envconfig:"HISTORY_DB_PATH"`

	DiscordWebhookURL string `envconfig:"DISCORD_WEBHOOK_URL"`

	Telemetry struct {
		Enabled     bool   `split_words:"true" default:"false"`
		ServiceName string `split_words:"true" default:"bilidown"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	switch strings.ToLower(cfg.LogFormat) {
	case "text", "json":
	default:
		return nil, fmt.Errorf("invalid log format %q: must be text or json", cfg.LogFormat)
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

// JSONLogs reports whether logs should be emitted as JSON instead of text.
func (c *Config) JSONLogs() bool {
	return strings.EqualFold(c.LogFormat, "json")
}
