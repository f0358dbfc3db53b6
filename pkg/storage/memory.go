package storage

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jdziat/keyed-jobs/pkg/core"
	"github.com/jdziat/keyed-jobs/pkg/security"
)

// MemoryStorage implements core.Storage in process memory.
//
// The mutex protects the maps themselves so concurrent access from many
// goroutines is safe. AllocateNext takes it separately for the read and
// for the write, so two callers on one key can still observe the same value.
type MemoryStorage struct {
	mu       sync.RWMutex
	jobs     map[string]*core.JobRecord
	counters map[string]int64
	orders   []*core.Order

	interleave func(key string)
}

// MemoryOption configures a MemoryStorage.
type MemoryOption interface {
	applyMemory(*MemoryStorage)
}

type memoryOptionFunc func(*MemoryStorage)

func (f memoryOptionFunc) applyMemory(s *MemoryStorage) { f(s) }

// WithInterleave sets the function AllocateNext calls between reading the
// current value and writing the next one. Tests use it to force
// interleavings. The default yields the processor.
func WithInterleave(fn func(key string)) MemoryOption {
	return memoryOptionFunc(func(s *MemoryStorage) {
		s.interleave = fn
	})
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage(opts ...MemoryOption) *MemoryStorage {
	s := &MemoryStorage{
		jobs:       make(map[string]*core.JobRecord),
		counters:   make(map[string]int64),
		interleave: func(string) { runtime.Gosched() },
	}
	for _, opt := range opts {
		opt.applyMemory(s)
	}
	return s
}

// Migrate is a no-op.
func (s *MemoryStorage) Migrate(ctx context.Context) error {
	return nil
}

// CreateJob stores a new pending job record.
func (s *MemoryStorage) CreateJob(ctx context.Context, job *core.JobRecord) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = core.StatusPending
	}
	if job.Mode == "" {
		job.Mode = core.ModeSerialized
	}
	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return core.ErrDuplicateJob
	}
	stored := *job
	s.jobs[job.ID] = &stored
	return nil
}

// MarkRunning moves a pending job to running.
func (s *MemoryStorage) MarkRunning(ctx context.Context, jobID string) error {
	return s.transition(jobID, func(job *core.JobRecord, now time.Time) bool {
		if job.Status != core.StatusPending {
			return false
		}
		job.Status = core.StatusRunning
		job.StartedAt = &now
		return true
	})
}

// MarkCompleted records a successful result. Terminal jobs are left untouched.
func (s *MemoryStorage) MarkCompleted(ctx context.Context, jobID string, result []byte) error {
	return s.transition(jobID, func(job *core.JobRecord, now time.Time) bool {
		job.Status = core.StatusCompleted
		job.Result = result
		job.CompletedAt = &now
		return true
	})
}

// MarkFailed records a failure. Error messages are sanitized before storage.
func (s *MemoryStorage) MarkFailed(ctx context.Context, jobID string, errMsg string) error {
	msg := security.SanitizeErrorMessage(errMsg)
	return s.transition(jobID, func(job *core.JobRecord, now time.Time) bool {
		job.Status = core.StatusFailed
		job.Error = msg
		job.CompletedAt = &now
		return true
	})
}

// transition applies fn to a non-terminal job under the write lock.
func (s *MemoryStorage) transition(jobID string, fn func(*core.JobRecord, time.Time) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrJobNotFound, jobID)
	}
	if job.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", core.ErrJobTerminal, jobID, job.Status)
	}
	now := time.Now()
	if fn(job, now) {
		job.UpdatedAt = now
	}
	return nil
}

// GetJob returns a copy of the job, or nil if the id is unknown.
func (s *MemoryStorage) GetJob(ctx context.Context, jobID string) (*core.JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, nil
	}
	cp := *job
	return &cp, nil
}

// GetJobsByStatus returns copies of matching jobs, oldest first.
func (s *MemoryStorage) GetJobsByStatus(ctx context.Context, status core.JobStatus, limit int) ([]*core.JobRecord, error) {
	s.mu.RLock()
	var out []*core.JobRecord
	for _, job := range s.jobs {
		if job.Status == status {
			cp := *job
			out = append(out, &cp)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// AllocateNext reads the counter for key, calls the interleave hook, then
// writes back the next value.
func (s *MemoryStorage) AllocateNext(ctx context.Context, key string) (int64, error) {
	s.mu.RLock()
	current := s.counters[key]
	s.mu.RUnlock()

	if s.interleave != nil {
		s.interleave(key)
	}

	next := current + 1
	s.mu.Lock()
	s.counters[key] = next
	s.mu.Unlock()
	return next, nil
}

// Reset clears all counters and the order log. Job records are kept.
func (s *MemoryStorage) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters = make(map[string]int64)
	s.orders = nil
	return nil
}

// AppendOrder adds an order to the log.
func (s *MemoryStorage) AppendOrder(ctx context.Context, order *core.Order) error {
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}
	cp := *order

	s.mu.Lock()
	s.orders = append(s.orders, &cp)
	s.mu.Unlock()
	return nil
}

// ListOrders returns copies of every order in append order.
func (s *MemoryStorage) ListOrders(ctx context.Context) ([]*core.Order, error) {
	return s.filterOrders(func(*core.Order) bool { return true }), nil
}

// OrdersByVendor returns copies of one vendor's orders in append order.
func (s *MemoryStorage) OrdersByVendor(ctx context.Context, vendorID string) ([]*core.Order, error) {
	return s.filterOrders(func(o *core.Order) bool { return o.VendorID == vendorID }), nil
}

func (s *MemoryStorage) filterOrders(keep func(*core.Order) bool) []*core.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*core.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if keep(o) {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out
}
