// Package config loads newsctl's configuration: a TOML file for tunables
// that rarely change, overlaid with environment variables for the
// deployment-boundary secrets and connection parameters.
package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
)

// Config holds all application configuration.
type Config struct {
	Version   int             `toml:"version"`
	Scraping  ScrapingConfig  `toml:"scraping"`
	Forum     ForumConfig     `toml:"forum"`
	Analysis  AnalysisConfig  `toml:"analysis"`
	Database  DatabaseConfig  `toml:"database"`
	Backfill  BackfillConfig  `toml:"backfill"`
	Monitor   MonitorConfig   `toml:"monitor"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

type ScrapingConfig struct {
	BaseURL            string  `toml:"base_url"`
	Headless           bool    `toml:"headless"`
	MinRequestDelaySec  float64 `toml:"min_request_delay_seconds"`
	MaxRequestDelaySec  float64 `toml:"max_request_delay_seconds"`
	MaxRetries         int     `toml:"max_retries"`
}

type ForumConfig struct {
	ClientID       string   `toml:"-"`
	ClientSecret   string   `toml:"-"`
	UserAgent      string   `toml:"user_agent"`
	DefaultChannels []string `toml:"default_channels"`
	RequestsPerMinute int    `toml:"requests_per_minute"`
}

type AnalysisConfig struct {
	APIKey     string `toml:"-"`
	Provider   string `toml:"provider"`
	Model      string `toml:"model"`
	BatchSize  int    `toml:"batch_size"`
	MaxRetries int    `toml:"max_retries"`
	ImageTimeoutSec int `toml:"image_timeout_seconds"`
}

type DatabaseConfig struct {
	Host        string `toml:"-"`
	Port        int    `toml:"-"`
	Name        string `toml:"-"`
	User        string `toml:"-"`
	Password    string `toml:"-"`
	PoolSize    int    `toml:"pool_size"`
	MaxOverflow int    `toml:"max_overflow"`
}

type BackfillConfig struct {
	CheckpointPath   string  `toml:"checkpoint_path"`
	MaxWeekRetries   int     `toml:"max_week_retries"`
	InterWeekJitterSec float64 `toml:"inter_week_jitter_seconds"`
}

type MonitorConfig struct {
	IntervalMinutes int `toml:"interval_minutes"`
}

type TelemetryConfig struct {
	LogLevel        string `toml:"log_level"`
	PrettyLogs      bool   `toml:"pretty_logs"`
	TracingEnabled  bool   `toml:"tracing_enabled"`
}

const (
	ProviderAnthropic = "anthropic"
)

// DefaultChannels mirrors spec.md's default channel list exactly.
var DefaultChannels = []string{
	"wallstreetbets", "stocks", "investing", "options", "Economics", "finance",
}

// SupportedPairs is the fixed set of currency pairs the aggregator knows.
var SupportedPairs = []string{
	"EURUSD", "GBPUSD", "USDJPY", "USDCHF", "AUDUSD",
	"USDCAD", "NZDUSD", "EURGBP", "EURJPY", "GBPJPY",
}

// Default returns a Config with sensible built-in defaults.
func Default() *Config {
	return &Config{
		Version: 1,
		Scraping: ScrapingConfig{
			BaseURL:            "https://www.forexfactory.com/calendar",
			Headless:           true,
			MinRequestDelaySec: 1.5,
			MaxRequestDelaySec: 2.0,
			MaxRetries:         3,
		},
		Forum: ForumConfig{
			UserAgent:         "newsctl/1.0",
			DefaultChannels:   DefaultChannels,
			RequestsPerMinute: 60,
		},
		Analysis: AnalysisConfig{
			Provider:        ProviderAnthropic,
			Model:           "claude-sonnet-4-20250514",
			BatchSize:       4,
			MaxRetries:      3,
			ImageTimeoutSec: 10,
		},
		Database: DatabaseConfig{
			PoolSize:    5,
			MaxOverflow: 10,
		},
		Backfill: BackfillConfig{
			MaxWeekRetries:     3,
			InterWeekJitterSec: 1.0,
		},
		Monitor: MonitorConfig{
			IntervalMinutes: 30,
		},
		Telemetry: TelemetryConfig{
			LogLevel:   "info",
			PrettyLogs: true,
		},
	}
}

// ConfigDir returns the platform-appropriate config directory.
func ConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "newsctl"), nil
}

// ConfigPath returns the full path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// CacheDir returns the platform-appropriate cache directory, used for the
// default backfill checkpoint file. Resolved
// via xdg so it follows the same OS conventions as ConfigDir without
// hard-coding per-platform paths.
func CacheDir() (string, error) {
	return xdg.CacheFile("newsctl")
}

// Load reads the TOML config file at path, overlaying it on Default().
// A missing file is not an error: Default()'s values are used as-is.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		var err error
		path, err = ConfigPath()
		if err != nil {
			return nil, err
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to disk as TOML.
func (c *Config) Save(path string) error {
	if path == "" {
		var err error
		path, err = ConfigPath()
		if err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(c)
}

// LoadEnv overlays spec.md §6's environment variables onto cfg. Env vars
// are the deployment-boundary contract and always win over the TOML file.
func (c *Config) LoadEnv() {
	c.Analysis.APIKey = envOr("LLM_API_KEY", c.Analysis.APIKey)
	c.Forum.ClientID = envOr("FORUM_CLIENT_ID", c.Forum.ClientID)
	c.Forum.ClientSecret = envOr("FORUM_CLIENT_SECRET", c.Forum.ClientSecret)

	c.Database.Host = envOr("DB_HOST", c.Database.Host)
	c.Database.Name = envOr("DB_NAME", c.Database.Name)
	c.Database.User = envOr("DB_USER", c.Database.User)
	c.Database.Password = envOr("DB_PASSWORD", c.Database.Password)
	c.Database.Port = envIntOr("DB_PORT", c.Database.Port)
	c.Database.PoolSize = envIntOr("DB_POOL_SIZE", c.Database.PoolSize)
	c.Database.MaxOverflow = envIntOr("DB_MAX_OVERFLOW", c.Database.MaxOverflow)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
