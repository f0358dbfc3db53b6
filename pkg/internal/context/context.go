// Package context provides context helpers for the jobs package.
package context

import (
	"context"
	"time"

	"github.com/jdziat/keyed-jobs/pkg/core"
)

// JobContextKey is the key for storing job context in context.Context.
type JobContextKey struct{}

// JobContext holds the current job and the storage it is recorded in.
type JobContext struct {
	Job     *core.JobRecord
	Storage core.Storage
	// Waited is how long the job queued at the gate before admission.
	// Zero for unsafe jobs.
	Waited time.Duration
}

// GetJobContext retrieves the job context from a context.Context.
func GetJobContext(ctx context.Context) *JobContext {
	if jc, ok := ctx.Value(JobContextKey{}).(*JobContext); ok {
		return jc
	}
	return nil
}

// WithJobContext adds job context to a context.Context.
func WithJobContext(ctx context.Context, jc *JobContext) context.Context {
	return context.WithValue(ctx, JobContextKey{}, jc)
}
