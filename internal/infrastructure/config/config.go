package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all host process configuration.
type Config struct {
	Server    ServerConfig
	Logging   LogConfig
	Loader    LoaderConfig
	Sandbox   SandboxConfig
	Host      HostConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds admin HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// LoaderConfig controls how application resources are fetched.
type LoaderConfig struct {
	Timeout   time.Duration `envconfig:"FETCH_TIMEOUT" default:"30s"`
	Retries   int           `envconfig:"FETCH_RETRIES" default:"3"`
	RPS       float64       `envconfig:"FETCH_RPS" default:"0"`
	UserAgent string        `envconfig:"FETCH_USER_AGENT" default:"AgentOS-AppHost/1.0"`
}

// SandboxConfig controls the isolation engine.
type SandboxConfig struct {
	MaxCallStack     int           `envconfig:"SANDBOX_MAX_CALL_STACK" default:"1024"`
	ExecTimeout      time.Duration `envconfig:"SANDBOX_EXEC_TIMEOUT" default:"5s"`
	SnapshotFallback bool          `envconfig:"SANDBOX_SNAPSHOT_FALLBACK" default:"true"`
}

// HostConfig holds orchestrator defaults.
type HostConfig struct {
	Basename       string  `envconfig:"APPHOST_BASENAME" default:"/"`
	DisablePreload bool    `envconfig:"APPHOST_DISABLE_PRELOAD" default:"false"`
	PreloadRPS     float64 `envconfig:"APPHOST_PRELOAD_RPS" default:"2"`
}

// RateLimitConfig holds admin API rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
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

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		Loader: LoaderConfig{
			Timeout:   30 * time.Second,
			Retries:   3,
			UserAgent: "AgentOS-AppHost/1.0",
		},
		Sandbox: SandboxConfig{
			MaxCallStack:     1024,
			ExecTimeout:      5 * time.Second,
			SnapshotFallback: true,
		},
		Host: HostConfig{
			Basename:   "/",
			PreloadRPS: 2,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
