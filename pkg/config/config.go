// Package config loads configuration for the keyed-jobs binaries.
//
// Values are resolved in three layers: built-in defaults, an optional YAML
// file, then KEYED_JOBS_* environment variables. Command-line flags are
// applied by the binaries on top of the result.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jdziat/keyed-jobs/pkg/schedule"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "KEYED_JOBS_"

// Config is the configuration for the server and the simulator.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Database  DatabaseConfig   `yaml:"database"`
	Jobs      JobsConfig       `yaml:"jobs"`
	Log       LogConfig        `yaml:"log"`
	Schedules []ScheduleConfig `yaml:"schedules"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	// Addr is the listen address.
	// Default: :8080
	Addr string `yaml:"addr"`

	// SubmitRate is the sustained number of submissions per second the API
	// accepts. Zero disables limiting.
	// Default: 50
	SubmitRate float64 `yaml:"submit_rate"`

	// SubmitBurst is the submission burst size.
	// Default: 100
	SubmitBurst int `yaml:"submit_burst"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 10s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig selects and tunes the storage backend.
type DatabaseConfig struct {
	// Driver is one of memory, sqlite or postgres.
	// Default: sqlite
	Driver string `yaml:"driver"`

	// DSN is the driver's data source name. Ignored for memory.
	// Default: keyed-jobs.db?_busy_timeout=5000
	DSN string `yaml:"dsn"`

	// MaxOpenConns and MaxIdleConns override the pool defaults when positive.
	MaxOpenConns int `yaml:"max_open_conns"`
	MaxIdleConns int `yaml:"max_idle_conns"`
}

// JobsConfig tunes job execution and monitoring.
type JobsConfig struct {
	// Latency is the simulated work each order job does before allocating.
	// Default: 100ms
	Latency time.Duration `yaml:"latency"`

	// AdmissionTimeout bounds the gate wait of order jobs. Zero waits forever.
	AdmissionTimeout time.Duration `yaml:"admission_timeout"`

	// StuckAfter is how long a job may stay unfinished before it is reported.
	// Default: 30s
	StuckAfter time.Duration `yaml:"stuck_after"`

	// MonitorInterval is how often unfinished jobs are scanned.
	// Default: 10s
	MonitorInterval time.Duration `yaml:"monitor_interval"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is debug, info, warn or error.
	// Default: info
	Level string `yaml:"level"`

	// Format is text or json.
	// Default: text
	Format string `yaml:"format"`
}

// ScheduleConfig describes a recurring submission.
type ScheduleConfig struct {
	Job      string         `yaml:"job"`
	Key      string         `yaml:"key"`
	Schedule string         `yaml:"schedule"`
	Args     map[string]any `yaml:"args,omitempty"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			SubmitRate:      50,
			SubmitBurst:     100,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "keyed-jobs.db?_busy_timeout=5000",
		},
		Jobs: JobsConfig{
			Latency:         100 * time.Millisecond,
			StuckAfter:      30 * time.Second,
			MonitorInterval: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Schedules: []ScheduleConfig{
			{Job: "order-report", Key: "reports", Schedule: "0 * * * *"},
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path (if path is
// not empty) and then with environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv applies KEYED_JOBS_* overrides using lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error

	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	float := func(name string, dst *float64) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = f
		}
	}
	duration := func(name string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}

	str("ADDR", &c.Server.Addr)
	float("SUBMIT_RATE", &c.Server.SubmitRate)
	integer("SUBMIT_BURST", &c.Server.SubmitBurst)
	duration("SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout)
	str("DB_DRIVER", &c.Database.Driver)
	str("DB_DSN", &c.Database.DSN)
	integer("DB_MAX_OPEN_CONNS", &c.Database.MaxOpenConns)
	integer("DB_MAX_IDLE_CONNS", &c.Database.MaxIdleConns)
	duration("LATENCY", &c.Jobs.Latency)
	duration("ADMISSION_TIMEOUT", &c.Jobs.AdmissionTimeout)
	duration("STUCK_AFTER", &c.Jobs.StuckAfter)
	duration("MONITOR_INTERVAL", &c.Jobs.MonitorInterval)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	return errors.Join(errs...)
}

// Validate checks the configuration for unusable values.
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case "memory", "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("database.driver: unsupported driver %q", c.Database.Driver))
	}
	if c.Database.Driver != "memory" && c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn: required"))
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr: required"))
	}
	if c.Server.SubmitRate < 0 {
		errs = append(errs, errors.New("server.submit_rate: must not be negative"))
	}
	if c.Server.SubmitRate > 0 && c.Server.SubmitBurst < 1 {
		errs = append(errs, errors.New("server.submit_burst: must be at least 1 when rate limiting"))
	}
	if c.Jobs.Latency < 0 {
		errs = append(errs, errors.New("jobs.latency: must not be negative"))
	}
	if c.Jobs.AdmissionTimeout < 0 {
		errs = append(errs, errors.New("jobs.admission_timeout: must not be negative"))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format: unsupported format %q", c.Log.Format))
	}
	for i, s := range c.Schedules {
		if s.Job == "" || s.Key == "" {
			errs = append(errs, fmt.Errorf("schedules[%d]: job and key are required", i))
		}
		if _, err := schedule.Parse(s.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("schedules[%d]: %w", i, err))
		}
	}

	return errors.Join(errs...)
}

// NewLogger builds the process logger described by c.Log, writing to w.
func (c *Config) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch c.Log.Format {
	case "json":
		h = slog.NewJSONHandler(w, opts)
	case "text", "":
		h = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("log.format: unsupported format %q", c.Log.Format)
	}
	return slog.New(h), nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
