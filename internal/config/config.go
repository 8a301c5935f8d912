// Package config provides configuration management for portrisk.
// Configuration is read from a YAML (or JSON) file on top of built-in defaults.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/anstrom/portrisk/internal/errors"
	"github.com/anstrom/portrisk/internal/logging"
	"github.com/anstrom/portrisk/internal/scanning"
)

const (
	configDirPerm  = 0750
	configFilePerm = 0600
)

// Config represents the complete application configuration
type Config struct {
	// Scanning configuration
	Scanning ScanningConfig `yaml:"scanning" json:"scanning"`

	// Job pool configuration
	Workers WorkersConfig `yaml:"workers" json:"workers"`

	// API configuration
	API APIConfig `yaml:"api" json:"api"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// Metrics configuration
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`

	// Recurring scans
	Schedules []ScheduleConfig `yaml:"schedules" json:"schedules"`
}

// ScanningConfig holds scanning-related settings
type ScanningConfig struct {
	// Concurrency cap used when a request does not set one
	DefaultConcurrency int `yaml:"default_concurrency" json:"default_concurrency"`

	// Upper bound on the concurrency cap a request may ask for
	MaxConcurrency int `yaml:"max_concurrency" json:"max_concurrency"`

	// Timeout for a single connection attempt
	ProbeTimeout time.Duration `yaml:"probe_timeout" json:"probe_timeout"`

	// Timeout for a whole scan, zero for none
	ScanTimeout time.Duration `yaml:"scan_timeout" json:"scan_timeout"`

	// Port range used when a request does not set one
	DefaultPorts string `yaml:"default_ports" json:"default_ports"`
}

// WorkersConfig holds job pool settings
type WorkersConfig struct {
	// Number of scan jobs run at once
	PoolSize int `yaml:"pool_size" json:"pool_size"`

	// Number of jobs that may wait for a worker
	QueueSize int `yaml:"queue_size" json:"queue_size"`

	// How long shutdown waits for running jobs
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`

	// Number of finished jobs kept in memory
	MaxJobHistory int `yaml:"max_job_history" json:"max_job_history"`
}

// APIConfig holds API server settings
type APIConfig struct {
	// Enable API server
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Listen address
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`

	// Listen port
	Port int `yaml:"port" json:"port"`

	// Server timeouts
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`

	// Maximum request body size in bytes
	MaxRequestSize int64 `yaml:"max_request_size" json:"max_request_size"`

	// Combined Log Format access log file, empty to disable
	AccessLog string `yaml:"access_log" json:"access_log"`

	// CORS settings
	CORS CORSConfig `yaml:"cors" json:"cors"`
}

// CORSConfig holds CORS settings
type CORSConfig struct {
	// Enable CORS
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Allowed origins
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`

	// Allowed methods
	AllowedMethods []string `yaml:"allowed_methods" json:"allowed_methods"`

	// Allowed headers
	AllowedHeaders []string `yaml:"allowed_headers" json:"allowed_headers"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `yaml:"level" json:"level"`

	// Log format (text, json)
	Format string `yaml:"format" json:"format"`

	// Log output (stdout, stderr, file path)
	Output string `yaml:"output" json:"output"`

	// Include source locations
	AddSource bool `yaml:"add_source" json:"add_source"`

	// Enable request logging for API
	RequestLogging bool `yaml:"request_logging" json:"request_logging"`
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	// Expose /metrics on the API server
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Path of the metrics endpoint
	Path string `yaml:"path" json:"path"`

	// How often system gauges are refreshed
	UpdateInterval time.Duration `yaml:"update_interval" json:"update_interval"`
}

// ScheduleConfig describes a recurring scan
type ScheduleConfig struct {
	Name        string `yaml:"name" json:"name"`
	Cron        string `yaml:"cron" json:"cron"`
	Target      string `yaml:"target" json:"target"`
	Ports       string `yaml:"ports" json:"ports"`
	Concurrency int    `yaml:"concurrency" json:"concurrency"`
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Scanning: ScanningConfig{
			DefaultConcurrency: scanning.DefaultMaxConcurrent,
			MaxConcurrency:     5000,
			ProbeTimeout:       scanning.DefaultProbeTimeout,
			ScanTimeout:        0,
			DefaultPorts:       "1-1000",
		},
		Workers: WorkersConfig{
			PoolSize:        4,
			QueueSize:       100,
			ShutdownTimeout: 30 * time.Second,
			MaxJobHistory:   1000,
		},
		API: APIConfig{
			Enabled:        true,
			ListenAddr:     "127.0.0.1",
			Port:           8080,
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   10 * time.Second,
			IdleTimeout:    60 * time.Second,
			MaxRequestSize: 1024 * 1024, // 1MB
			CORS: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
			},
		},
		Logging: LoggingConfig{
			Level:          "info",
			Format:         "text",
			Output:         "stderr",
			RequestLogging: true,
		},
		Metrics: MetricsConfig{
			Enabled:        true,
			Path:           "/metrics",
			UpdateInterval: 15 * time.Second,
		},
	}
}

// Load loads configuration from a file. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	config := Default()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapConfigError(errors.CodeConfiguration, "failed to read config file", err)
	}

	// YAML is a superset of JSON, so both extensions go through yaml.v3.
	switch filepath.Ext(path) {
	case ".json":
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, errors.WrapConfigError(errors.CodeConfiguration, "failed to parse JSON config", err)
		}
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, errors.WrapConfigError(errors.CodeConfiguration, "failed to parse YAML config", err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Save saves configuration to a file
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), configDirPerm); err != nil {
		return errors.WrapConfigError(errors.CodeConfiguration, "failed to create config directory", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.WrapConfigError(errors.CodeConfiguration, "failed to marshal config", err)
	}

	if err := os.WriteFile(path, data, configFilePerm); err != nil {
		return errors.WrapConfigError(errors.CodeConfiguration, "failed to write config file", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.validateScanning(); err != nil {
		return err
	}
	if err := c.validateWorkers(); err != nil {
		return err
	}
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return c.validateSchedules()
}

func (c *Config) validateScanning() error {
	s := c.Scanning
	if s.DefaultConcurrency <= 0 {
		return errors.ErrConfigInvalid("scanning.default_concurrency", s.DefaultConcurrency)
	}
	if s.MaxConcurrency < s.DefaultConcurrency {
		return errors.ErrConfigInvalid("scanning.max_concurrency", s.MaxConcurrency)
	}
	if s.ProbeTimeout <= 0 {
		return errors.ErrConfigInvalid("scanning.probe_timeout", s.ProbeTimeout)
	}
	if s.ScanTimeout < 0 {
		return errors.ErrConfigInvalid("scanning.scan_timeout", s.ScanTimeout)
	}
	if _, _, err := scanning.ParsePortRange(s.DefaultPorts); err != nil {
		return errors.ErrConfigInvalid("scanning.default_ports", s.DefaultPorts)
	}
	return nil
}

func (c *Config) validateWorkers() error {
	w := c.Workers
	if w.PoolSize <= 0 {
		return errors.ErrConfigInvalid("workers.pool_size", w.PoolSize)
	}
	if w.QueueSize <= 0 {
		return errors.ErrConfigInvalid("workers.queue_size", w.QueueSize)
	}
	if w.MaxJobHistory < 0 {
		return errors.ErrConfigInvalid("workers.max_job_history", w.MaxJobHistory)
	}
	return nil
}

func (c *Config) validateAPI() error {
	if !c.API.Enabled {
		return nil
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return errors.ErrConfigInvalid("api.port", c.API.Port)
	}
	if c.API.ListenAddr == "" {
		return errors.ErrConfigMissing("api.listen_addr")
	}
	if c.Metrics.Enabled && (c.Metrics.Path == "" || c.Metrics.Path[0] != '/') {
		return errors.ErrConfigInvalid("metrics.path", c.Metrics.Path)
	}
	return nil
}

func (c *Config) validateLogging() error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return errors.ErrConfigInvalid("logging.level", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return errors.ErrConfigInvalid("logging.format", c.Logging.Format)
	}
	return nil
}

func (c *Config) validateSchedules() error {
	names := make(map[string]bool, len(c.Schedules))
	for i, s := range c.Schedules {
		field := fmt.Sprintf("schedules[%d]", i)
		if s.Name == "" {
			return errors.ErrConfigMissing(field + ".name")
		}
		if names[s.Name] {
			return errors.ErrConfigInvalid(field+".name", s.Name)
		}
		names[s.Name] = true

		if _, err := cron.ParseStandard(s.Cron); err != nil {
			return errors.ErrConfigInvalid(field+".cron", s.Cron)
		}
		if s.Target == "" {
			return errors.ErrConfigMissing(field + ".target")
		}
		if s.Ports != "" {
			if _, _, err := scanning.ParsePortRange(s.Ports); err != nil {
				return errors.ErrConfigInvalid(field+".ports", s.Ports)
			}
		}
		if s.Concurrency < 0 || s.Concurrency > c.Scanning.MaxConcurrency {
			return errors.ErrConfigInvalid(field+".concurrency", s.Concurrency)
		}
	}
	return nil
}

// ScannerConfig returns the scan engine settings
func (c *Config) ScannerConfig() scanning.Config {
	return scanning.Config{
		ProbeTimeout:       c.Scanning.ProbeTimeout,
		DefaultConcurrency: c.Scanning.DefaultConcurrency,
		MaxConcurrency:     c.Scanning.MaxConcurrency,
		ScanTimeout:        c.Scanning.ScanTimeout,
	}
}

// LoggerConfig returns the logger settings
func (c *Config) LoggerConfig() logging.Config {
	return logging.Config{
		Level:     logging.LogLevel(c.Logging.Level),
		Format:    logging.LogFormat(c.Logging.Format),
		Output:    c.Logging.Output,
		AddSource: c.Logging.AddSource,
	}
}

// GetAPIAddress returns the full API address
func (c *Config) GetAPIAddress() string {
	return net.JoinHostPort(c.API.ListenAddr, strconv.Itoa(c.API.Port))
}

// IsAPIEnabled returns true if API server is enabled
func (c *Config) IsAPIEnabled() bool {
	return c.API.Enabled
}
