package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pario-ai/meter/pkg/estimate"
	"github.com/pario-ai/meter/pkg/upstream"
)

// Config holds all meter configuration.
type Config struct {
	Listen   string         `yaml:"listen"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Usage    UsageConfig    `yaml:"usage"`
	Cache    CacheConfig    `yaml:"cache"`
	Log      LogConfig      `yaml:"log"`
	CORS     CORSConfig     `yaml:"cors"`
}

// UpstreamConfig points at the billing service.
type UpstreamConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// UsageConfig controls usage computation.
type UsageConfig struct {
	// Rate is credits per 100 tokens for text-costed messages.
	Rate float64 `yaml:"rate"`
	// Concurrency bounds parallel report lookups; 1 is sequential.
	Concurrency int `yaml:"concurrency"`
	// Deadline bounds a whole computation; 0 disables it.
	Deadline time.Duration `yaml:"deadline"`
}

// CacheConfig controls the report cache.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	DBPath  string        `yaml:"db_path"`
	TTL     time.Duration `yaml:"ttl"`
}

// LogConfig controls logging output.
// Format is "json" (default) or "console".
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// CORSConfig controls cross-origin access to the HTTP API.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		Upstream: UpstreamConfig{
			BaseURL: upstream.DefaultBaseURL,
			Timeout: upstream.DefaultTimeout,
		},
		Usage: UsageConfig{
			Rate:        estimate.BaseModelRate,
			Concurrency: 1,
		},
		Cache: CacheConfig{
			Enabled: false,
			DBPath:  "meter.db",
			TTL:     time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads path, falling back to defaults when the file does not
// exist and required is false.
func LoadOrDefault(path string, required bool) (*Config, error) {
	cfg, err := Load(path)
	if err != nil && !required && errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	if c.Upstream.BaseURL == "" {
		return errors.New("invalid config: upstream.base_url is required")
	}
	if c.Upstream.Timeout < 0 {
		return errors.New("invalid config: upstream.timeout must not be negative")
	}
	if c.Usage.Rate <= 0 {
		return fmt.Errorf("invalid config: usage.rate must be positive, got %v", c.Usage.Rate)
	}
	if c.Usage.Concurrency < 0 {
		return fmt.Errorf("invalid config: usage.concurrency must not be negative, got %d", c.Usage.Concurrency)
	}
	if c.Usage.Deadline < 0 {
		return errors.New("invalid config: usage.deadline must not be negative")
	}
	if c.Cache.Enabled && c.Cache.DBPath == "" {
		return errors.New("invalid config: cache.db_path is required when the cache is enabled")
	}
	return nil
}
