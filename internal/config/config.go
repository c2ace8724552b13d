// Package config loads runtime configuration from environment variables and
// an optional config file.
package config

import "time"

// Config is the full runtime configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Spotify  SpotifyConfig  `mapstructure:"spotify"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	Crawl    CrawlConfig    `mapstructure:"crawl"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// SpotifyConfig holds upstream credentials and endpoints.
type SpotifyConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`

	// BearerToken, when set, bypasses the token endpoint entirely.
	BearerToken string `mapstructure:"bearer_token"`

	BaseURL string `mapstructure:"base_url"`
	AuthURL string `mapstructure:"auth_url"`
}

// RedisConfig locates the shared coordination store.
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

// DatabaseConfig locates Postgres.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// CrawlConfig tunes the coordination core.
type CrawlConfig struct {
	// MaxWorkers is hard-capped at 10 to match the upstream budget.
	MaxWorkers int `mapstructure:"max_workers"`

	RateLimitWindow time.Duration `mapstructure:"rate_limit_window"`
	RateLimitMax    int           `mapstructure:"rate_limit_max"`

	// SearchTimeout is the registry stale-eviction threshold.
	SearchTimeout time.Duration `mapstructure:"search_timeout"`

	TickInterval time.Duration `mapstructure:"tick_interval"`
	MaxRetries   int           `mapstructure:"max_retries"`
}
