// Package config loads and validates process configuration from the
// environment and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DriverBadger   = "badger"
	DriverPostgres = "postgres"
)

// Config holds application configuration.
type Config struct {
	// Port is the HTTP listen address (e.g. ":8080").
	Port string `mapstructure:"SERVER_PORT"`
	// AllowedOrigins is a comma-separated WebSocket origin allow-list; "*" allows all.
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`
	// MaxMessageSize is the largest inbound frame in bytes.
	MaxMessageSize int64 `mapstructure:"MAX_MESSAGE_SIZE"`
	// RateLimitBurst is the per-connection token bucket size.
	RateLimitBurst int `mapstructure:"RATE_LIMIT_BURST"`
	// RateLimitRefillSeconds is the time to refill a full bucket.
	RateLimitRefillSeconds int `mapstructure:"RATE_LIMIT_REFILL_INTERVAL"`

	// JWTSecret verifies handshake tokens (HS256).
	JWTSecret string `mapstructure:"JWT_SECRET"`
	// JWTIssuer, when set, is required in the iss claim.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`

	// StorageDriver selects "badger" (embedded) or "postgres".
	StorageDriver string `mapstructure:"STORAGE_DRIVER"`
	DatabaseURL   string `mapstructure:"DATABASE_URL"`
	BadgerPath    string `mapstructure:"BADGER_PATH"`
	// BadgerSeedFile optionally seeds the embedded directory at startup.
	BadgerSeedFile string `mapstructure:"BADGER_SEED_FILE"`

	// KafkaBrokers is a comma-separated broker list; empty disables the consumer.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic   string `mapstructure:"KAFKA_TOPIC"`
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`

	// InternalHookToken guards POST /internal/messages; empty disables the route.
	InternalHookToken string `mapstructure:"INTERNAL_HOOK_TOKEN"`

	LogLevel     string `mapstructure:"LOG_LEVEL"`
	LogFormat    string `mapstructure:"LOG_FORMAT"`
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	ShutdownTimeout string `mapstructure:"SHUTDOWN_TIMEOUT"`
}

var defaults = map[string]any{
	"SERVER_PORT":                 ":8080",
	"ALLOWED_ORIGINS":             "http://localhost:8080",
	"MAX_MESSAGE_SIZE":            4096,
	"RATE_LIMIT_BURST":            20,
	"RATE_LIMIT_REFILL_INTERVAL":  1,
	"JWT_SECRET":                  "",
	"JWT_ISSUER":                  "",
	"STORAGE_DRIVER":              DriverBadger,
	"DATABASE_URL":                "",
	"BADGER_PATH":                 "./data/badger",
	"BADGER_SEED_FILE":            "",
	"KAFKA_BROKERS":               "",
	"KAFKA_TOPIC":                 "message.created",
	"KAFKA_GROUP_ID":              "nexus-realtime",
	"INTERNAL_HOOK_TOKEN":         "",
	"LOG_LEVEL":                   "info",
	"LOG_FORMAT":                  "text",
	"OTEL_EXPORTER_OTLP_ENDPOINT": "",
	"SHUTDOWN_TIMEOUT":            "10s",
}

// Load reads .env (if present), then the environment, and validates the
// result. Environment variables override .env.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit dotenv path. A missing file is ignored.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil && !isMissingFile(err) {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func isMissingFile(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("config: JWT_SECRET must be set")
	}
	switch c.StorageDriver {
	case DriverBadger:
		if c.BadgerPath == "" {
			return errors.New("config: BADGER_PATH must be set for the badger driver")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL must be set for the postgres driver")
		}
	default:
		return fmt.Errorf("config: unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.KafkaBrokers != "" && c.KafkaTopic == "" {
		return errors.New("config: KAFKA_TOPIC must be set when KAFKA_BROKERS is set")
	}
	return nil
}

// Origins returns the configured origin allow-list.
func (c *Config) Origins() []string {
	return splitList(c.AllowedOrigins)
}

// KafkaBrokerList returns the broker addresses; nil disables the consumer.
func (c *Config) KafkaBrokerList() []string {
	return splitList(c.KafkaBrokers)
}

// RefillInterval returns the rate limit refill interval.
func (c *Config) RefillInterval() time.Duration {
	if c.RateLimitRefillSeconds <= 0 {
		return time.Second
	}
	return time.Duration(c.RateLimitRefillSeconds) * time.Second
}

// Shutdown returns the graceful shutdown timeout. Returns 10s if unset or invalid.
func (c *Config) Shutdown() time.Duration {
	d, err := time.ParseDuration(c.ShutdownTimeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
