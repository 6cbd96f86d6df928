package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Emulator  EmulatorConfig
	Remote    RemoteConfig
	Metrics   MetricsConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// EmulatorConfig holds settings of the emulator daemon.
type EmulatorConfig struct {
	Listen      string `envconfig:"SRVGATE_LISTEN" default:"127.0.0.1:7340"`
	MaxSessions int    `envconfig:"SRVGATE_MAX_SESSIONS" default:"64"`
	Manifest    string `envconfig:"SRVGATE_MANIFEST"`
}

// RemoteConfig holds settings of clients that reach the emulator over gRPC.
type RemoteConfig struct {
	Address string        `envconfig:"SRVGATE_ADDR" default:"127.0.0.1:7340"`
	Timeout time.Duration `envconfig:"SRVGATE_TIMEOUT" default:"5s"`
}

// MetricsConfig holds the Prometheus endpoint configuration.
type MetricsConfig struct {
	Listen  string `envconfig:"SRVGATE_METRICS_ADDR" default:"127.0.0.1:9340"`
	Enabled bool   `envconfig:"SRVGATE_METRICS_ENABLED" default:"true"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"SRVGATE_LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"SRVGATE_LOG_DEV" default:"false"`
}

// RateLimitConfig holds the limit applied to remote kernel calls.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"SRVGATE_RATE_LIMIT_RPS" default:"1000"`
	Burst             int  `envconfig:"SRVGATE_RATE_LIMIT_BURST" default:"2000"`
	Enabled           bool `envconfig:"SRVGATE_RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate rejects settings the emulator cannot run with.
func (c *Config) Validate() error {
	if c.Emulator.MaxSessions <= 0 {
		return fmt.Errorf("SRVGATE_MAX_SESSIONS must be positive, got %d", c.Emulator.MaxSessions)
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate limit needs positive rps and burst, got %d/%d",
			c.RateLimit.RequestsPerSecond, c.RateLimit.Burst)
	}
	if c.Remote.Timeout <= 0 {
		return fmt.Errorf("SRVGATE_TIMEOUT must be positive, got %s", c.Remote.Timeout)
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Emulator: EmulatorConfig{
			Listen:      "127.0.0.1:7340",
			MaxSessions: 64,
		},
		Remote: RemoteConfig{
			Address: "127.0.0.1:7340",
			Timeout: 5 * time.Second,
		},
		Metrics: MetricsConfig{
			Listen:  "127.0.0.1:9340",
			Enabled: true,
		},
		Logging: LogConfig{
			Level: "info",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 1000,
			Burst:             2000,
			Enabled:           true,
		},
	}
}
