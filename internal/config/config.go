package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Remote   RemoteConfig   `yaml:"remote"`
	Country  string         `yaml:"country"`
	Search   SearchConfig   `yaml:"search"`
	Refresh  RefreshConfig  `yaml:"refresh"`
	Charts   ChartsConfig   `yaml:"charts"`
	Server   ServerConfig   `yaml:"server"`
}

// DatabaseConfig configures the local SQLite store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RemoteConfig configures the cross-device store. Backend is "file" (a
// cloud-synced directory) or "postgres" (a shared database).
type RemoteConfig struct {
	Backend    string `yaml:"backend"`
	Dir        string `yaml:"dir"`
	DSN        string `yaml:"dsn"`
	QuotaBytes int64  `yaml:"quota_bytes"`
}

// SearchConfig controls rank lookups.
type SearchConfig struct {
	Limit int `yaml:"limit"`
}

// RefreshConfig controls the background sweep cadence and the politeness
// delay between rank lookups.
type RefreshConfig struct {
	Interval     string `yaml:"interval"`
	RequestDelay string `yaml:"request_delay"`
}

// ParseInterval returns the refresh interval as time.Duration.
func (r RefreshConfig) ParseInterval() time.Duration {
	d, err := time.ParseDuration(r.Interval)
	if err != nil {
		return 6 * time.Hour
	}
	return d
}

// ParseRequestDelay returns the inter-request delay as time.Duration.
func (r RefreshConfig) ParseRequestDelay() time.Duration {
	d, err := time.ParseDuration(r.RequestDelay)
	if err != nil {
		return 400 * time.Millisecond
	}
	return d
}

// ChartsConfig configures the top-charts discovery feed.
type ChartsConfig struct {
	Genre int `yaml:"genre"`
	Limit int `yaml:"limit"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "./rankradar.db"},
		Remote: RemoteConfig{
			Backend: "file",
			Dir:     "./rankradar-sync",
		},
		Country: "us",
		Search:  SearchConfig{Limit: 200},
		Refresh: RefreshConfig{
			Interval:     "6h",
			RequestDelay: "400ms",
		},
		Charts: ChartsConfig{Limit: 50},
		Server: ServerConfig{Port: 8080},
	}
}

// Load reads configuration from a YAML file and applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RANKRADAR_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("RANKRADAR_REMOTE_DIR"); v != "" {
		cfg.Remote.Backend = "file"
		cfg.Remote.Dir = v
	}
	if v := os.Getenv("RANKRADAR_REMOTE_DSN"); v != "" {
		cfg.Remote.Backend = "postgres"
		cfg.Remote.DSN = v
	}
	if v := os.Getenv("RANKRADAR_COUNTRY"); v != "" {
		cfg.Country = v
	}
}
