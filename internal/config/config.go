// Package config loads and exposes application configuration (TOML).
package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Default configuration values used when a field is missing in TOML.
const (
	DefaultConfigPath       = "config.toml"
	DefaultAPIBaseURL       = "https://platform-api.max.ru/v1"
	DefaultHTTPAddr         = ":8080"
	DefaultDownloadDir      = "downloads"
	DefaultRetention        = time.Hour
	DefaultPollTimeout      = 90
	DefaultSendRatePerSec   = 1.0
	DefaultSendBurst        = 3
	DefaultYTDLPBinary      = "yt-dlp"
	DefaultDescriptionLimit = 4000
)

// Config is the root application configuration loaded from TOML.
type Config struct {
	Log       LogConfig       `toml:"log"`
	Bot       BotConfig       `toml:"bot"`
	Server    ServerConfig    `toml:"server"`
	Downloads DownloadsConfig `toml:"downloads"`
	Delivery  DeliveryConfig  `toml:"delivery"`
	Fallback  FallbackConfig  `toml:"fallback"`
}

// LogConfig holds logging level and format (e.g. level=info, format=text).
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// BotConfig holds the platform token, API base URL, and update transport.
// Token falls back to the BOT_TOKEN environment variable when empty.
type BotConfig struct {
	Token              string `toml:"token"`
	APIBaseURL         string `toml:"api_base_url"`
	PollTimeoutSeconds int    `toml:"poll_timeout_seconds"`
	WebhookSecret      string `toml:"webhook_secret"`
	YTDLPBinary        string `toml:"ytdlp_binary"`
}

// ServerConfig holds the webhook HTTP server listen address. The server only
// starts when a webhook secret is configured; the default transport is
// long polling.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// DownloadsConfig holds the managed download directory and the retention
// window for the periodic sweep.
type DownloadsConfig struct {
	Dir              string `toml:"dir"`
	RetentionMinutes int    `toml:"retention_minutes"`
}

// DeliveryConfig holds outbound tuning: the not-ready retry schedule and the
// send rate limit.
type DeliveryConfig struct {
	RetryScheduleSeconds []int   `toml:"retry_schedule_seconds"`
	SendRatePerSecond    float64 `toml:"send_rate_per_second"`
	SendBurst            int     `toml:"send_burst"`
}

// FallbackConfig enables secondary delivery backends. A backend participates
// in the fallback chain only when its section is filled in.
type FallbackConfig struct {
	Disk     DiskConfig     `toml:"disk"`
	GCS      GCSConfig      `toml:"gcs"`
	AnonHost AnonHostConfig `toml:"anonhost"`
}

// DiskConfig holds the cloud-drive REST backend (base URL, OAuth token, and
// the remote folder that receives relayed files).
type DiskConfig struct {
	BaseURL string `toml:"base_url"`
	Token   string `toml:"token"`
	Folder  string `toml:"folder"`
}

// GCSConfig holds the Google Cloud Storage backend bucket.
type GCSConfig struct {
	Bucket string `toml:"bucket"`
}

// AnonHostConfig holds the anonymous file host API base URL.
type AnonHostConfig struct {
	BaseURL string `toml:"base_url"`
}

// Retention returns the sweep retention window.
func (c DownloadsConfig) Retention() time.Duration {
	if c.RetentionMinutes <= 0 {
		return DefaultRetention
	}
	return time.Duration(c.RetentionMinutes) * time.Minute
}

// RetrySchedule returns the configured not-ready delays, or the default
// escalating schedule of 2s, 5s, 10s, 20s.
func (c DeliveryConfig) RetrySchedule() []time.Duration {
	if len(c.RetryScheduleSeconds) == 0 {
		return []time.Duration{2 * time.Second, 5 * time.Second, 10 * time.Second, 20 * time.Second}
	}
	schedule := make([]time.Duration, 0, len(c.RetryScheduleSeconds))
	for _, s := range c.RetryScheduleSeconds {
		if s > 0 {
			schedule = append(schedule, time.Duration(s)*time.Second)
		}
	}
	return schedule
}

// Load reads and parses the TOML config file at path and applies default
// values for missing fields. A missing file is not an error: defaults plus
// environment variables are enough to run.
func Load(path string) (Config, error) {
	cfg := Config{}
	if path == "" {
		path = DefaultConfigPath
	}
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Bot.Token == "" {
		cfg.Bot.Token = os.Getenv("BOT_TOKEN")
	}
	if cfg.Bot.APIBaseURL == "" {
		cfg.Bot.APIBaseURL = DefaultAPIBaseURL
	}
	if cfg.Bot.PollTimeoutSeconds <= 0 {
		cfg.Bot.PollTimeoutSeconds = DefaultPollTimeout
	}
	if cfg.Bot.YTDLPBinary == "" {
		cfg.Bot.YTDLPBinary = DefaultYTDLPBinary
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = DefaultHTTPAddr
	}
	if cfg.Downloads.Dir == "" {
		cfg.Downloads.Dir = DefaultDownloadDir
	}
	if cfg.Delivery.SendRatePerSecond <= 0 {
		cfg.Delivery.SendRatePerSecond = DefaultSendRatePerSec
	}
	if cfg.Delivery.SendBurst <= 0 {
		cfg.Delivery.SendBurst = DefaultSendBurst
	}
}
