// Package server provides configuration helpers that define runtime defaults
// and rate-limiting parameters for the realtime gateway.
package server

import (
	"time"

	"github.com/Tyrowin/nexus-realtime/internal/config"
)

const (
	defaultPort           = ":8080"
	defaultMaxMessageSize = 4096
	defaultBurst          = 20
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the socket and HTTP settings of the gateway.
type Config struct {
	Port           string
	AllowedOrigins []string
	MaxMessageSize int64
	RateLimit      RateLimitConfig
	// HookToken guards the internal message hook; empty disables the route.
	HookToken string
}

func defaultConfig() Config {
	return Config{
		Port: defaultPort,
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: defaultMaxMessageSize,
		RateLimit: RateLimitConfig{
			Burst:          defaultBurst,
			RefillInterval: time.Second,
		},
	}
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// ConfigFrom maps the process configuration onto the gateway settings.
func ConfigFrom(app *config.Config) Config {
	return sanitizeConfig(Config{
		Port:           app.Port,
		AllowedOrigins: app.Origins(),
		MaxMessageSize: app.MaxMessageSize,
		RateLimit: RateLimitConfig{
			Burst:          app.RateLimitBurst,
			RefillInterval: app.RefillInterval(),
		},
		HookToken: app.InternalHookToken,
	})
}

func sanitizeConfig(cfg Config) Config {
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = defaultBurst
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = time.Second
	}

	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}
