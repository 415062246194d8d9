// Package config provides centralized configuration management for the
// report pipeline. It loads configuration from environment variables with
// sensible defaults and validates all settings on startup to fail fast on
// misconfiguration.
package config

import (
	"strconv"
	"strings"
	"time"

	"ruptura/internal/category"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server  ServerConfig
	Athena  AthenaConfig
	Cache   CacheConfig
	Report  ReportConfig
	Workers WorkerConfig
	Logging LoggingConfig
}

// ServerConfig holds HTTP host settings (cmd/server only).
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading a request (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing a response
	// (default: 0, which keeps SSE streams open)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful
	// shutdown, including draining active report runs (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// AthenaConfig holds the four credential fields of the remote analytical
// query service. They come from the host's credential store; product-report
// runs require all four, rupture runs need none.
type AthenaConfig struct {
	// S3StagingDir is the query-result staging location
	S3StagingDir string `env:"ATHENA_S3_STAGING_DIR"`

	// AccessKeyID is the AWS access key id
	AccessKeyID string `env:"AWS_ACCESS_KEY_ID"`

	// SecretAccessKey is the AWS secret access key
	SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`

	// Region is the AWS region identifier
	Region string `env:"AWS_REGION"`
}

// Credentials returns the fields as a category.Credentials value.
func (a AthenaConfig) Credentials() category.Credentials {
	return category.Credentials{
		S3StagingDir:    a.S3StagingDir,
		AccessKeyID:     a.AccessKeyID,
		SecretAccessKey: a.SecretAccessKey,
		Region:          a.Region,
	}
}

// CacheConfig holds category-cache settings.
type CacheConfig struct {
	// Path is the location of the category cache artifact (default: categ.parquet)
	Path string `env:"CATEG_CACHE_PATH" default:"categ.parquet"`
}

// ReportConfig holds batch-run settings.
type ReportConfig struct {
	// OutputDir is where consolidated report files are written (default: .)
	OutputDir string `env:"REPORT_OUTPUT_DIR" default:"."`

	// ScanExt is the store-file extension matched by directory scans
	// (default: .db)
	ScanExt string `env:"REPORT_SCAN_EXT" default:".db"`
}

// WorkerConfig holds worker pool settings.
type WorkerConfig struct {
	// MaxConcurrent is the maximum number of simultaneous report runs (default: 2)
	MaxConcurrent int `env:"WORKER_MAX_CONCURRENT" default:"2"`

	// MaxWait is how long to wait for a worker slot before rejecting (default: 5s)
	MaxWait time.Duration `env:"WORKER_MAX_WAIT" default:"5s"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`

	// File is the append-only run log that per-file failures are written to
	// (default: logs.txt)
	File string `env:"LOG_FILE" default:"logs.txt"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, "SERVER_PORT must be 1-65535")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	if c.Cache.Path == "" {
		errs = append(errs, "CATEG_CACHE_PATH must not be empty")
	}
	if c.Report.OutputDir == "" {
		errs = append(errs, "REPORT_OUTPUT_DIR must not be empty")
	}
	if !strings.HasPrefix(c.Report.ScanExt, ".") {
		errs = append(errs, "REPORT_SCAN_EXT must start with a dot")
	}

	if c.Workers.MaxConcurrent <= 0 {
		errs = append(errs, "WORKER_MAX_CONCURRENT must be positive")
	}
	if c.Workers.MaxWait <= 0 {
		errs = append(errs, "WORKER_MAX_WAIT must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, "LOG_LEVEL must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, "LOG_FORMAT must be one of: text, json")
	}
	if c.Logging.File == "" {
		errs = append(errs, "LOG_FILE must not be empty")
	}

	if len(errs) > 0 {
		return &ValidationError{Problems: errs}
	}
	return nil
}

// ValidationError aggregates every configuration problem found, so a single
// startup failure reports all of them.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation failed:\n  - " + strings.Join(e.Problems, "\n  - ")
}
