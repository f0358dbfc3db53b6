package core

import (
	"context"
)

// RecordStore holds one status record per job id. It is the only way
// callers outside the queue observe a job's outcome.
type RecordStore interface {
	// CreateJob stores a new record in pending state.
	// Returns ErrDuplicateJob if the id is taken.
	CreateJob(ctx context.Context, job *JobRecord) error

	// MarkRunning moves a pending job to running.
	MarkRunning(ctx context.Context, jobID string) error

	// MarkCompleted and MarkFailed move a job to a terminal state.
	// Both return ErrJobTerminal if the job already finished and
	// ErrJobNotFound if the id is unknown.
	MarkCompleted(ctx context.Context, jobID string, result []byte) error
	MarkFailed(ctx context.Context, jobID string, errMsg string) error

	// GetJob returns nil, nil when the id is unknown.
	GetJob(ctx context.Context, jobID string) (*JobRecord, error)
	GetJobsByStatus(ctx context.Context, status JobStatus, limit int) ([]*JobRecord, error)
}

// SequenceStore hands out per-key sequence values.
//
// AllocateNext is a plain read, increment, write. It is not atomic for
// concurrent callers on the same key; callers must serialize per key.
type SequenceStore interface {
	AllocateNext(ctx context.Context, key string) (int64, error)

	// Reset clears all counters and the order log.
	Reset(ctx context.Context) error
}

// OrderLog is the append-only log of allocated records.
type OrderLog interface {
	AppendOrder(ctx context.Context, order *Order) error
	ListOrders(ctx context.Context) ([]*Order, error)
	OrdersByVendor(ctx context.Context, vendorID string) ([]*Order, error)
}

// Storage is the full persistence contract implemented by the bundled backends.
type Storage interface {
	// Migrate creates the necessary tables. In-memory backends return nil.
	Migrate(ctx context.Context) error

	RecordStore
	SequenceStore
	OrderLog
}
