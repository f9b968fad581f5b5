// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds settings for the resolution pipeline and its collaborators.
type Config struct {
	ServiceName string `yaml:"service_name"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`

	GraphMaxDFSIterations int           `yaml:"graph_max_dfs_iterations"`
	VerifyCheckTimeout    time.Duration `yaml:"verify_check_timeout"`
	StrictOverlayOrdering bool          `yaml:"strict_overlay_ordering"`

	// LedgerDriver is sqlite, postgres or none.
	LedgerDriver string `yaml:"ledger_driver"`
	LedgerDSN    string `yaml:"ledger_dsn"`
	// RedisAddr enables the shared plan cache when set.
	RedisAddr string `yaml:"redis_addr"`

	OTelEnabled  bool   `yaml:"otel_enabled"`
	OTelEndpoint string `yaml:"otel_endpoint"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		ServiceName:           "omnibase-core",
		LogLevel:              "INFO",
		LogFormat:             "text",
		GraphMaxDFSIterations: 10000,
		VerifyCheckTimeout:    5 * time.Second,
		LedgerDriver:          "none",
		OTelEndpoint:          "localhost:4317",
	}
}

// Load reads configuration from environment variables on top of Defaults.
func Load() (*Config, error) {
	cfg := Defaults()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads a YAML configuration file. Environment variables still
// take precedence over values from the file.
func LoadFile(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	str("SERVICE_NAME", &c.ServiceName)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	str("LEDGER_DRIVER", &c.LedgerDriver)
	str("LEDGER_DSN", &c.LedgerDSN)
	str("REDIS_ADDR", &c.RedisAddr)
	str("OTEL_EXPORTER_OTLP_ENDPOINT", &c.OTelEndpoint)

	if v := os.Getenv("GRAPH_MAX_DFS_ITERATIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("GRAPH_MAX_DFS_ITERATIONS must be a positive integer, got %q", v)
		}
		c.GraphMaxDFSIterations = n
	}
	if v := os.Getenv("VERIFY_CHECK_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return fmt.Errorf("VERIFY_CHECK_TIMEOUT must be a positive duration, got %q", v)
		}
		c.VerifyCheckTimeout = d
	}
	c.StrictOverlayOrdering = c.StrictOverlayOrdering || os.Getenv("VERIFY_STRICT_OVERLAY_ORDERING") == "true"
	c.OTelEnabled = c.OTelEnabled || os.Getenv("OTEL_ENABLED") == "true"

	switch c.LedgerDriver {
	case "none", "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported ledger driver: %s", c.LedgerDriver)
	}
	return nil
}

// Level maps LogLevel to a slog level. Unknown values mean INFO.
func (c *Config) Level() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds a logger writing to w in the configured format.
func NewLogger(c *Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.Level()}
	var h slog.Handler
	if strings.EqualFold(c.LogFormat, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h).With("service", c.ServiceName)
}
