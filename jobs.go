// Package jobs runs jobs concurrently while serializing every job that
// shares a key.
//
// This is the main package users should import. It re-exports the public
// types from the pkg/ packages for a clean API surface.
//
// Basic usage:
//
//	store := jobs.NewMemoryStorage()
//	queue := jobs.New(store)
//
//	// Register a handler that must never overlap for one vendor
//	queue.Register("create-order", func(ctx context.Context, vendorID string) (int64, error) {
//	    return store.AllocateNext(ctx, vendorID)
//	}, jobs.Serialized())
//
//	// Submit returns immediately; poll Status or Wait for the outcome
//	id, _ := queue.Submit(ctx, "create-order", "vendor-123", "vendor-123")
//	queue.Wait(ctx)
//	view, _ := queue.Status(ctx, id)
package jobs

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/jdziat/keyed-jobs/pkg/core"
	"github.com/jdziat/keyed-jobs/pkg/gate"
	"github.com/jdziat/keyed-jobs/pkg/jobctx"
	"github.com/jdziat/keyed-jobs/pkg/queue"
	"github.com/jdziat/keyed-jobs/pkg/schedule"
	"github.com/jdziat/keyed-jobs/pkg/security"
	"github.com/jdziat/keyed-jobs/pkg/storage"
	"github.com/jdziat/keyed-jobs/pkg/worker"
)

type (
	// JobRecord is the observable state of one submitted job.
	JobRecord = core.JobRecord

	// JobStatus represents the current state of a job.
	JobStatus = core.JobStatus

	// Mode selects whether a job runs behind the per-key gate.
	Mode = core.Mode

	// Order is one allocated sequence value bound to its request.
	Order = core.Order

	// Storage is the persistence contract of the bundled backends.
	Storage = core.Storage

	// RecordStore holds one status record per job.
	RecordStore = core.RecordStore

	// SequenceStore hands out per-key sequence values.
	SequenceStore = core.SequenceStore

	// Event is the interface for all queue events.
	Event = core.Event

	JobSubmitted = core.JobSubmitted
	JobAdmitted  = core.JobAdmitted
	JobStarted   = core.JobStarted
	JobCompleted = core.JobCompleted
	JobFailed    = core.JobFailed

	// Gate serializes holders per key in FIFO order.
	Gate = gate.Gate

	// Queue registers handlers and runs submitted jobs.
	Queue = queue.Queue

	// Option modifies Options.
	Option = queue.Option

	// Options holds per-job execution settings.
	Options = queue.Options

	// QueueOption configures a Queue.
	QueueOption = queue.QueueOption

	// StatusView is the polling view of a job.
	StatusView = queue.StatusView

	// ScheduledJob holds configuration for a recurring submission.
	ScheduledJob = queue.ScheduledJob

	// Worker runs the scheduler and the stuck job monitor.
	Worker = worker.Worker

	// WorkerOption configures a Worker.
	WorkerOption = worker.WorkerOption

	// WorkerConfig holds worker configuration.
	WorkerConfig = worker.WorkerConfig

	// StuckJob is an unfinished job older than the monitor threshold.
	StuckJob = worker.StuckJob

	// Schedule defines when a job should run next.
	Schedule = schedule.Schedule

	// GormStorage implements Storage using GORM.
	GormStorage = storage.GormStorage

	// MemoryStorage implements Storage in process memory.
	MemoryStorage = storage.MemoryStorage
)

// Status constants
const (
	StatusPending   = core.StatusPending
	StatusRunning   = core.StatusRunning
	StatusCompleted = core.StatusCompleted
	StatusFailed    = core.StatusFailed
)

// Mode constants
const (
	ModeSerialized = core.ModeSerialized
	ModeUnsafe     = core.ModeUnsafe
)

// Security limits
const (
	MaxJobTypeNameLength  = security.MaxJobTypeNameLength
	MaxJobArgsSize        = security.MaxJobArgsSize
	MaxErrorMessageLength = security.MaxErrorMessageLength
	MaxKeyLength          = security.MaxKeyLength
	MaxJobIDLength        = security.MaxJobIDLength
)

// New creates a new Queue with the given storage backend.
func New(s Storage, opts ...QueueOption) *Queue {
	return queue.New(s, opts...)
}

// NewGate creates an empty Gate.
func NewGate() *Gate {
	return gate.New()
}

// NewGormStorage creates a new GORM-backed storage.
func NewGormStorage(db *gorm.DB) *GormStorage {
	return storage.NewGormStorage(db)
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return storage.NewMemoryStorage()
}

// NewOptions creates Options with defaults.
func NewOptions() *Options {
	return queue.NewOptions()
}

// NewWorker creates a new worker for the given queue.
func NewWorker(q *Queue, opts ...WorkerOption) *Worker {
	return worker.NewWorker(q, opts...)
}

// Job option functions

// Serialized runs the job behind its key's gate. This is the default.
func Serialized() Option {
	return queue.Serialized()
}

// Unsafe runs the job without the gate.
func Unsafe() Option {
	return queue.Unsafe()
}

// Latency delays the job by d before it asks for its key.
func Latency(d time.Duration) Option {
	return queue.Latency(d)
}

// AdmissionTimeout bounds how long a serialized job waits for its key.
func AdmissionTimeout(d time.Duration) Option {
	return queue.AdmissionTimeout(d)
}

// JobID sets a caller-chosen job id.
func JobID(id string) Option {
	return queue.JobID(id)
}

// Queue option functions

// WithGate shares g between queues.
func WithGate(g *Gate) QueueOption {
	return queue.WithGate(g)
}

// WithRetryAttempts sets how many times a storage write is tried.
func WithRetryAttempts(n int) QueueOption {
	return queue.WithRetryAttempts(n)
}

// DisableRetry makes every storage write a single attempt.
func DisableRetry() QueueOption {
	return queue.DisableRetry()
}

// Worker option functions

// WithScheduler enables the scheduler in the worker.
func WithScheduler(enabled bool) WorkerOption {
	return worker.WithScheduler(enabled)
}

// SchedulerTick sets how often the scheduler checks for due jobs.
func SchedulerTick(d time.Duration) WorkerOption {
	return worker.SchedulerTick(d)
}

// WithMonitor enables the stuck job monitor in the worker.
func WithMonitor(enabled bool) WorkerOption {
	return worker.WithMonitor(enabled)
}

// StuckAfter sets the age at which an unfinished job is reported.
func StuckAfter(d time.Duration) WorkerOption {
	return worker.StuckAfter(d)
}

// Schedule functions

// Every creates a schedule that runs at fixed intervals.
func Every(d time.Duration) Schedule {
	return schedule.Every(d)
}

// Daily creates a schedule that runs at a specific time each day.
func Daily(hour, minute int) Schedule {
	return schedule.Daily(hour, minute)
}

// Weekly creates a schedule that runs at a specific day and time each week.
func Weekly(day time.Weekday, hour, minute int) Schedule {
	return schedule.Weekly(day, hour, minute)
}

// Cron creates a schedule from a cron expression.
func Cron(expr string) Schedule {
	return schedule.Cron(expr)
}

// ParseSchedule parses "@every 5m", a cron descriptor or a 5-field cron expression.
func ParseSchedule(spec string) (Schedule, error) {
	return schedule.Parse(spec)
}

// ValidateJobTypeName validates a job type name.
func ValidateJobTypeName(name string) error {
	return security.ValidateJobTypeName(name)
}

// ValidateKey validates a partition key.
func ValidateKey(key string) error {
	return security.ValidateKey(key)
}

// SanitizeErrorMessage truncates and sanitizes error messages for storage.
func SanitizeErrorMessage(msg string) string {
	return security.SanitizeErrorMessage(msg)
}

// JobFromContext returns the current job from context, or nil if not in a job handler.
func JobFromContext(ctx context.Context) *JobRecord {
	return jobctx.JobFromContext(ctx)
}

// JobIDFromContext returns the current job ID from context, or empty string if not in a job handler.
func JobIDFromContext(ctx context.Context) string {
	return jobctx.JobIDFromContext(ctx)
}

// KeyFromContext returns the current job's key, or empty string if not in a job handler.
func KeyFromContext(ctx context.Context) string {
	return jobctx.KeyFromContext(ctx)
}
