package worker

import (
	"log/slog"
	"time"
)

// WorkerOption configures a Worker.
type WorkerOption interface {
	ApplyWorker(*WorkerConfig)
}

type workerOptionFunc func(*WorkerConfig)

func (f workerOptionFunc) ApplyWorker(c *WorkerConfig) { f(c) }

// WorkerConfig holds worker configuration.
type WorkerConfig struct {
	WorkerID        string
	EnableScheduler bool
	SchedulerTick   time.Duration
	EnableMonitor   bool
	MonitorInterval time.Duration
	StuckAfter      time.Duration
	Logger          *slog.Logger
}

// Default values.
var (
	DefaultSchedulerTick   = time.Second
	DefaultMonitorInterval = 10 * time.Second
	DefaultStuckAfter      = 30 * time.Second
)

// WithScheduler enables the scheduler in the worker.
func WithScheduler(enabled bool) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.EnableScheduler = enabled
	})
}

// SchedulerTick sets how often the scheduler checks for due submissions.
func SchedulerTick(d time.Duration) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		if d > 0 {
			c.SchedulerTick = d
		}
	})
}

// WithMonitor enables or disables the stuck-job monitor. It is enabled by default.
func WithMonitor(enabled bool) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.EnableMonitor = enabled
	})
}

// MonitorInterval sets how often the monitor scans for stuck jobs.
func MonitorInterval(d time.Duration) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		if d > 0 {
			c.MonitorInterval = d
		}
	})
}

// StuckAfter sets how long a job may stay unfinished before the monitor reports it.
func StuckAfter(d time.Duration) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		if d > 0 {
			c.StuckAfter = d
		}
	})
}

// WithLogger sets the worker's logger. Defaults to the queue's logger.
func WithLogger(l *slog.Logger) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.Logger = l
	})
}

// WithWorkerID sets the id reported in the worker's log lines.
func WithWorkerID(id string) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		if id != "" {
			c.WorkerID = id
		}
	})
}
