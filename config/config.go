// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	App      AppConfig      `yaml:"app"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host            string        `yaml:"host"             env:"CALM_SERVER_HOST"`
	Port            int           `yaml:"port"             env:"CALM_SERVER_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"CALM_SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"CALM_SERVER_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"CALM_SERVER_SHUTDOWN_TIMEOUT"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// AppConfig configures the resource surface.
type AppConfig struct {
	// Environment is "development" or "production". Development mode
	// exposes stack traces in error responses.
	Environment string `yaml:"environment" env:"CALM_ENV"`

	// Prefix is the path prefix shared by every resource, e.g. "/api/v1".
	Prefix string `yaml:"prefix" env:"CALM_API_PREFIX"`

	// ModulesDir holds one directory per resource.
	ModulesDir string `yaml:"modules_dir" env:"CALM_MODULES_DIR"`

	// DefaultLimit is the page size when a list request gives none.
	DefaultLimit int `yaml:"default_limit" env:"CALM_DEFAULT_LIMIT"`
}

// IsDevelopment reports whether the app runs in development mode.
func (a AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// DatabaseConfig configures the database.
type DatabaseConfig struct {
	Driver string `yaml:"driver" env:"CALM_DATABASE_DRIVER"` // "sqlite" or "memory"
	DSN    string `yaml:"dsn"    env:"CALM_DATABASE_DSN"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"  env:"CALM_LOG_LEVEL"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format" env:"CALM_LOG_FORMAT"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"CALM_METRICS_ENABLED"` // Enable /metrics endpoint
	Path    string `yaml:"path"    env:"CALM_METRICS_PATH"`    // Custom path (default: /metrics)
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	cfg := newConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return finish(cfg)
}

// LoadFromEnv creates configuration entirely from environment variables.
//
// Environment variables:
//
//	CALM_SERVER_HOST      - Server host (default: 0.0.0.0)
//	CALM_SERVER_PORT      - Server port (default: 8080)
//	CALM_ENV              - development or production (default: production)
//	CALM_API_PREFIX       - Path prefix for every resource, "/" for none (default: /api/v1)
//	CALM_MODULES_DIR      - Module tree (default: modules)
//	CALM_DEFAULT_LIMIT    - Default page size (default: 10)
//	CALM_DATABASE_DRIVER  - sqlite or memory (default: sqlite)
//	CALM_DATABASE_DSN     - Database path (default: calm.db)
//	CALM_LOG_LEVEL        - Log level: debug, info, warn, error (default: info)
//	CALM_LOG_FORMAT       - Log format: json or console (default: json)
//	CALM_METRICS_ENABLED  - Enable /metrics endpoint
func LoadFromEnv() (*Config, error) {
	return finish(newConfig())
}

// DefaultPrefix is used when app.prefix is absent. An explicit empty prefix
// (or "/") mounts resources at the root.
const DefaultPrefix = "/api/v1"

// newConfig returns the starting point for decoding. Defaults that have a
// meaningful zero value are set here, before decoding, so an explicit zero
// value survives.
func newConfig() *Config {
	return &Config{App: AppConfig{Prefix: DefaultPrefix}}
}

// LoadWithFallback loads path when it exists and the environment otherwise.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

// finish applies environment overrides and defaults, then validates.
func finish(cfg *Config) (*Config, error) {
	// Environment variables always override file-based configuration.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	setDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.App.Environment == "" {
		cfg.App.Environment = "production"
	}
	if cfg.App.ModulesDir == "" {
		cfg.App.ModulesDir = "modules"
	}
	if cfg.App.DefaultLimit == 0 {
		cfg.App.DefaultLimit = 10
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "calm.db"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535, got %d", cfg.Server.Port)
	}

	validEnvironments := map[string]bool{"development": true, "production": true, "test": true}
	if !validEnvironments[cfg.App.Environment] {
		return fmt.Errorf("app.environment must be one of: development, production, test")
	}
	if cfg.App.Prefix != "" && !strings.HasPrefix(cfg.App.Prefix, "/") {
		return fmt.Errorf("app.prefix must be empty or start with '/', got %q", cfg.App.Prefix)
	}
	if cfg.App.DefaultLimit < 1 {
		return fmt.Errorf("app.default_limit must be positive, got %d", cfg.App.DefaultLimit)
	}

	validDrivers := map[string]bool{"sqlite": true, "memory": true}
	if !validDrivers[cfg.Database.Driver] {
		return fmt.Errorf("database.driver must be 'sqlite' or 'memory', got %q", cfg.Database.Driver)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/', got %q", cfg.Metrics.Path)
	}

	return nil
}
