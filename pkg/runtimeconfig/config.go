// Package runtimeconfig loads eventcore's runtime configuration from a
// YAML file: env var expansion, defaults merging, and struct-tag
// validation, kept separate from the domain packages (message,
// eventstore, bus, ...) which take their dependencies as explicit
// constructor arguments rather than reading global config.
package runtimeconfig

import (
	"fmt"
	"os"
	"time"

	"dario.cat/mergo"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the top-level runtime configuration for a deployed
// eventcore process (e.g. cmd/eventcoredemo), covering the adapters
// and cross-cutting policies left to the operator.
type Config struct {
	Postgres      PostgresConfig      `yaml:"postgres"`
	Retry         RetryConfig         `yaml:"retry" validate:"required"`
	Bus           BusConfig           `yaml:"bus" validate:"required"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// PostgresConfig configures the adapters/postgres event store.
type PostgresConfig struct {
	DSN            string        `yaml:"dsn" validate:"required"`
	MaxConns       int32         `yaml:"max_conns" validate:"min=1"`
	MigrationsPath string        `yaml:"migrations_path"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// RetryConfig selects and parameterizes the pkg/retry policy used by
// default across the runtime (individual callers may override).
type RetryConfig struct {
	Strategy        string        `yaml:"strategy" validate:"required,oneof=none fixed linear exponential"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	Increment       time.Duration `yaml:"increment"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	MaxAttempts     int           `yaml:"max_attempts" validate:"min=0"`
	Jitter          bool          `yaml:"jitter"`
}

// BusConfig selects the pkg/bus dispatch variant.
type BusConfig struct {
	Mode string `yaml:"mode" validate:"required,oneof=cooperative blocking"`
}

// ObservabilityConfig controls whether the otel-backed
// pkg/observability providers are wired in, versus the no-op defaults.
type ObservabilityConfig struct {
	Enabled      bool   `yaml:"enabled"`
	ServiceName  string `yaml:"service_name"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// Defaults returns the built-in configuration applied beneath any
// user-provided YAML, using a built-in-then-override merge strategy.
func Defaults() *Config {
	return &Config{
		Postgres: PostgresConfig{
			MaxConns:       10,
			MigrationsPath: "file://adapters/postgres/migrations",
			ConnectTimeout: 5 * time.Second,
		},
		Retry: RetryConfig{
			Strategy:        "exponential",
			InitialInterval: 100 * time.Millisecond,
			Increment:       100 * time.Millisecond,
			MaxInterval:     10 * time.Second,
			MaxAttempts:     5,
			Jitter:          false,
		},
		Bus: BusConfig{Mode: "cooperative"},
		Observability: ObservabilityConfig{
			Enabled:     false,
			ServiceName: "eventcore",
		},
	}
}

// Load reads path, expands ${VAR}/$VAR environment references via
// os.ExpandEnv, merges the result onto Defaults(), and validates the
// merged configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))

	var loaded Config
	if err := yaml.Unmarshal([]byte(expanded), &loaded); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}

	cfg := Defaults()
	if err := mergo.Merge(cfg, loaded, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("merge config %q onto defaults: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate runs struct-tag validation over cfg in a single pass rather
// than hand-written per-field checks.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}
