package queue

import (
	"log/slog"
	"time"

	"github.com/jdziat/keyed-jobs/pkg/core"
	"github.com/jdziat/keyed-jobs/pkg/gate"
	"github.com/jdziat/keyed-jobs/pkg/internal/retry"
)

// Options holds configuration for job registration and submission.
// Submission options are applied on top of the handler's registered options.
type Options struct {
	Mode             core.Mode
	Latency          time.Duration
	AdmissionTimeout time.Duration
	JobID            string
}

// NewOptions creates Options with defaults.
func NewOptions() *Options {
	return &Options{
		Mode: core.ModeSerialized,
	}
}

// Option modifies Options.
type Option interface {
	Apply(*Options)
}

type optionFunc func(*Options)

func (f optionFunc) Apply(o *Options) { f(o) }

// Serialized runs the job only while it holds its key at the gate. This is the default.
func Serialized() Option {
	return optionFunc(func(o *Options) {
		o.Mode = core.ModeSerialized
	})
}

// Unsafe runs the job without admission control. Jobs sharing a key may
// overlap. It exists to demonstrate what the gate prevents.
func Unsafe() Option {
	return optionFunc(func(o *Options) {
		o.Mode = core.ModeUnsafe
	})
}

// Latency delays the job by d before it requests admission.
func Latency(d time.Duration) Option {
	return optionFunc(func(o *Options) {
		if d > 0 {
			o.Latency = d
		}
	})
}

// AdmissionTimeout bounds how long a serialized job may wait for its key.
// A job that times out is recorded failed with ErrAdmissionTimeout.
// Zero means wait indefinitely.
func AdmissionTimeout(d time.Duration) Option {
	return optionFunc(func(o *Options) {
		if d > 0 {
			o.AdmissionTimeout = d
		}
	})
}

// JobID sets a caller-supplied job id instead of a generated one.
func JobID(id string) Option {
	return optionFunc(func(o *Options) {
		o.JobID = id
	})
}

// QueueOption configures a Queue.
type QueueOption interface {
	ApplyQueue(*Queue)
}

type queueOptionFunc func(*Queue)

func (f queueOptionFunc) ApplyQueue(q *Queue) { f(q) }

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) QueueOption {
	return queueOptionFunc(func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	})
}

// WithGate shares an existing gate instead of creating one.
func WithGate(g *gate.Gate) QueueOption {
	return queueOptionFunc(func(q *Queue) {
		if g != nil {
			q.gate = g
		}
	})
}

// WithStorageRetry sets the retry policy for job state writes.
func WithStorageRetry(cfg retry.Config) QueueOption {
	return queueOptionFunc(func(q *Queue) {
		q.retry = cfg
	})
}

// WithRetryAttempts sets the number of attempts for job state writes,
// keeping the default backoff.
func WithRetryAttempts(n int) QueueOption {
	return queueOptionFunc(func(q *Queue) {
		cfg := retry.DefaultConfig()
		cfg.MaxAttempts = n
		q.retry = cfg
	})
}

// DisableRetry makes job state writes single-attempt.
func DisableRetry() QueueOption {
	return queueOptionFunc(func(q *Queue) {
		q.retry = retry.Disabled()
	})
}
