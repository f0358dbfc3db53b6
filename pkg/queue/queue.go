package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jdziat/keyed-jobs/pkg/core"
	"github.com/jdziat/keyed-jobs/pkg/gate"
	intctx "github.com/jdziat/keyed-jobs/pkg/internal/context"
	"github.com/jdziat/keyed-jobs/pkg/internal/handler"
	"github.com/jdziat/keyed-jobs/pkg/internal/retry"
	"github.com/jdziat/keyed-jobs/pkg/schedule"
	"github.com/jdziat/keyed-jobs/pkg/security"
)

// Queue manages job registration, submission, and execution.
type Queue struct {
	storage       core.Storage
	gate          *gate.Gate
	logger        *slog.Logger
	retry         retry.Config
	handlers      map[string]*registration
	scheduledJobs map[string]*ScheduledJob
	mu            sync.RWMutex

	// Hooks
	onStart    []func(context.Context, *core.JobRecord)
	onComplete []func(context.Context, *core.JobRecord)
	onFail     []func(context.Context, *core.JobRecord, error)

	// Event stream
	eventSubs []chan core.Event

	inflight tracker
}

type registration struct {
	handler *handler.Handler
	opts    []Option
}

// ScheduledJob holds configuration for a recurring submission.
type ScheduledJob struct {
	Name     string
	Key      string
	Schedule schedule.Schedule
	Args     any
	Options  []Option
}

// New creates a new Queue with the given storage backend.
func New(s core.Storage, opts ...QueueOption) *Queue {
	q := &Queue{
		storage:  s,
		gate:     gate.New(),
		logger:   slog.Default(),
		retry:    retry.DefaultConfig(),
		handlers: make(map[string]*registration),
	}
	for _, opt := range opts {
		opt.ApplyQueue(q)
	}
	return q
}

// Register registers a job handler function.
// The function must have signature: func(ctx context.Context, args T) error
// or func(ctx context.Context, args T) (R, error). Options given here are the
// defaults for every submission of this job type.
// Job type names must be alphanumeric (starting with a letter), max 255 chars.
func (q *Queue) Register(name string, fn any, opts ...Option) {
	if err := security.ValidateJobTypeName(name); err != nil {
		panic(fmt.Sprintf("jobs: invalid handler name %q: %v", name, err))
	}

	h, err := handler.NewHandler(fn)
	if err != nil {
		panic(fmt.Sprintf("jobs: handler for %q: %v", name, err))
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[name] = &registration{handler: h, opts: opts}
}

// HasHandler checks if a handler is registered.
func (q *Queue) HasHandler(name string) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	_, ok := q.handlers[name]
	return ok
}

// Submit records a pending job and starts it in the background. It returns
// as soon as the record is stored; use Status or Get to follow the job.
//
// The job runs on a context detached from ctx's cancellation, so abandoning
// the returned id never cancels the job.
func (q *Queue) Submit(ctx context.Context, name, key string, args any, opts ...Option) (string, error) {
	q.mu.RLock()
	reg, ok := q.handlers[name]
	q.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("%w for %q", core.ErrNoHandler, name)
	}

	if err := security.ValidateKey(key); err != nil {
		return "", err
	}

	options := NewOptions()
	for _, opt := range reg.opts {
		opt.Apply(options)
	}
	for _, opt := range opts {
		opt.Apply(options)
	}

	id := options.JobID
	if id == "" {
		id = uuid.New().String()
	} else if err := security.ValidateJobID(id); err != nil {
		return "", err
	}

	argsBytes, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("jobs: failed to marshal args: %w", err)
	}

	if len(argsBytes) > security.MaxJobArgsSize {
		return "", core.ErrJobArgsTooLarge
	}

	job := &core.JobRecord{
		ID:     id,
		Type:   name,
		Key:    key,
		Mode:   options.Mode,
		Args:   argsBytes,
		Status: core.StatusPending,
	}

	err = retry.Do(ctx, q.retry, func() error {
		return q.storage.CreateJob(ctx, job)
	})
	if err != nil {
		if errors.Is(err, core.ErrDuplicateJob) {
			return "", err
		}
		return "", fmt.Errorf("jobs: failed to submit: %w", err)
	}

	q.Emit(&core.JobSubmitted{Job: snapshot(job), Timestamp: time.Now()})

	q.inflight.add()
	go q.run(context.WithoutCancel(ctx), job, reg.handler, options)

	return job.ID, nil
}

// run drives one job through latency, admission, execution and recording.
func (q *Queue) run(ctx context.Context, job *core.JobRecord, h *handler.Handler, opts *Options) {
	defer q.inflight.done()

	if opts.Latency > 0 {
		timer := time.NewTimer(opts.Latency)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			q.fail(ctx, job, ctx.Err())
			return
		}
	}

	var waited time.Duration
	if opts.Mode == core.ModeSerialized {
		requested := time.Now()
		if err := q.acquire(ctx, job, opts.AdmissionTimeout); err != nil {
			q.fail(ctx, job, err)
			return
		}
		defer q.gate.Release(job.Key)

		waited = time.Since(requested)
		q.logger.Debug("job admitted", "job_id", job.ID, "key", job.Key, "waited", waited)
		q.Emit(&core.JobAdmitted{Job: snapshot(job), Waited: waited, Timestamp: time.Now()})
	}

	q.execute(ctx, job, h, waited)
}

func (q *Queue) acquire(ctx context.Context, job *core.JobRecord, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return q.gate.Acquire(ctx, job.Key, job.ID)
}

func (q *Queue) execute(ctx context.Context, job *core.JobRecord, h *handler.Handler, waited time.Duration) {
	start := time.Now()

	err := retry.Do(ctx, q.retry, func() error {
		return q.storage.MarkRunning(ctx, job.ID)
	})
	if err != nil {
		q.logger.Error("failed to mark job running", "job_id", job.ID, "error", err)
	}
	job.Status = core.StatusRunning
	job.StartedAt = &start

	q.Emit(&core.JobStarted{Job: snapshot(job), Timestamp: start})
	q.CallStartHooks(ctx, job)

	result, err := q.invoke(ctx, job, h, waited)
	if err != nil {
		q.fail(ctx, job, err)
		return
	}

	err = retry.Do(ctx, q.retry, func() error {
		return q.storage.MarkCompleted(ctx, job.ID, result)
	})
	if err != nil {
		q.logger.Error("failed to complete job after retries", "job_id", job.ID, "error", err)
		q.fail(ctx, job, fmt.Errorf("record result: %w", err))
		return
	}

	now := time.Now()
	job.Status = core.StatusCompleted
	job.Result = result
	job.CompletedAt = &now

	q.logger.Debug("job completed", "job_id", job.ID, "key", job.Key, "type", job.Type, "duration", now.Sub(start))
	q.Emit(&core.JobCompleted{Job: snapshot(job), Duration: now.Sub(start), Timestamp: now})
	q.CallCompleteHooks(ctx, job)
}

func (q *Queue) invoke(ctx context.Context, job *core.JobRecord, h *handler.Handler, waited time.Duration) (result []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("job handler panicked", "job_id", job.ID, "type", job.Type, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	jc := &intctx.JobContext{
		Job:     snapshot(job),
		Storage: q.storage,
		Waited:  waited,
	}
	return h.Execute(intctx.WithJobContext(ctx, jc), job.Args)
}

// fail records err as the job's terminal failure.
func (q *Queue) fail(ctx context.Context, job *core.JobRecord, err error) {
	msg := err.Error()
	storeErr := retry.Do(ctx, q.retry, func() error {
		return q.storage.MarkFailed(ctx, job.ID, msg)
	})
	if storeErr != nil {
		q.logger.Error("failed to mark job as failed after retries", "job_id", job.ID, "error", storeErr)
	}

	now := time.Now()
	job.Status = core.StatusFailed
	job.Error = security.SanitizeErrorMessage(msg)
	job.CompletedAt = &now

	q.logger.Warn("job failed", "job_id", job.ID, "key", job.Key, "type", job.Type, "error", err)
	q.Emit(&core.JobFailed{Job: snapshot(job), Error: err, Timestamp: now})
	q.CallFailHooks(ctx, job, err)
}

// InterruptedMessage is the error recorded by FailInterrupted.
const InterruptedMessage = "interrupted by restart"

// FailInterrupted marks every pending or running record in storage as
// failed. Gate queues live in memory, so such records cannot resume after
// a restart. Call it at startup, before the first Submit.
func (q *Queue) FailInterrupted(ctx context.Context) (int, error) {
	var n int
	for _, status := range []core.JobStatus{core.StatusPending, core.StatusRunning} {
		jobs, err := q.storage.GetJobsByStatus(ctx, status, 0)
		if err != nil {
			return n, fmt.Errorf("list %s jobs: %w", status, err)
		}
		for _, job := range jobs {
			err := q.storage.MarkFailed(ctx, job.ID, InterruptedMessage)
			if errors.Is(err, core.ErrJobTerminal) {
				continue
			}
			if err != nil {
				return n, fmt.Errorf("fail job %s: %w", job.ID, err)
			}
			n++
			q.logger.Warn("failed interrupted job", "job_id", job.ID, "key", job.Key, "type", job.Type, "status", status)
		}
	}
	return n, nil
}

// Wait blocks until every submitted job has reached a terminal state or ctx
// is done.
func (q *Queue) Wait(ctx context.Context) error {
	return q.inflight.wait(ctx)
}

// Get returns the job record, or nil if the id is unknown.
func (q *Queue) Get(ctx context.Context, jobID string) (*core.JobRecord, error) {
	return q.storage.GetJob(ctx, jobID)
}

// Status values reported by Queue.Status.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusError     = "error"
	StatusNotFound  = "not_found"
)

// StatusView is the polling view of a job. Running jobs report pending.
type StatusView struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Status returns the polling view of a job. Unknown ids are reported as
// StatusNotFound rather than an error.
func (q *Queue) Status(ctx context.Context, jobID string) (StatusView, error) {
	job, err := q.storage.GetJob(ctx, jobID)
	if err != nil {
		return StatusView{}, err
	}
	if job == nil {
		return StatusView{Status: StatusNotFound}, nil
	}

	switch job.Status {
	case core.StatusCompleted:
		return StatusView{Status: StatusCompleted, Response: json.RawMessage(job.Result)}, nil
	case core.StatusFailed:
		return StatusView{Status: StatusError, Error: job.Error}, nil
	default:
		return StatusView{Status: StatusPending}, nil
	}
}

// Schedule registers a recurring submission of job name on key.
func (q *Queue) Schedule(name, key string, sched schedule.Schedule, args any, opts ...Option) {
	q.mu.Lock()
	if q.scheduledJobs == nil {
		q.scheduledJobs = make(map[string]*ScheduledJob)
	}
	q.scheduledJobs[name+"/"+key] = &ScheduledJob{
		Name:     name,
		Key:      key,
		Schedule: sched,
		Args:     args,
		Options:  opts,
	}
	q.mu.Unlock()
}

// GetScheduledJobs returns a copy of the scheduled jobs map (for the worker's scheduler).
func (q *Queue) GetScheduledJobs() map[string]*ScheduledJob {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make(map[string]*ScheduledJob, len(q.scheduledJobs))
	for k, v := range q.scheduledJobs {
		out[k] = v
	}
	return out
}

// Storage returns the underlying storage.
func (q *Queue) Storage() core.Storage {
	return q.storage
}

// Gate returns the admission gate serialized jobs pass through.
func (q *Queue) Gate() *gate.Gate {
	return q.gate
}

// Logger returns the queue's logger.
func (q *Queue) Logger() *slog.Logger {
	return q.logger
}

// OnJobStart registers a callback for when a job starts.
func (q *Queue) OnJobStart(fn func(context.Context, *core.JobRecord)) {
	q.mu.Lock()
	q.onStart = append(q.onStart, fn)
	q.mu.Unlock()
}

// OnJobComplete registers a callback for when a job completes successfully.
func (q *Queue) OnJobComplete(fn func(context.Context, *core.JobRecord)) {
	q.mu.Lock()
	q.onComplete = append(q.onComplete, fn)
	q.mu.Unlock()
}

// OnJobFail registers a callback for when a job fails.
func (q *Queue) OnJobFail(fn func(context.Context, *core.JobRecord, error)) {
	q.mu.Lock()
	q.onFail = append(q.onFail, fn)
	q.mu.Unlock()
}

// Events returns a channel for receiving queue events.
// The caller must call Unsubscribe when done to prevent resource leaks.
func (q *Queue) Events() <-chan core.Event {
	ch := make(chan core.Event, 100)
	q.mu.Lock()
	q.eventSubs = append(q.eventSubs, ch)
	q.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel created by Events().
// The channel is not closed; callers must stop reading before calling Unsubscribe.
// After Unsubscribe returns, no further events will be sent to the channel.
func (q *Queue) Unsubscribe(ch <-chan core.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, sub := range q.eventSubs {
		if sub == ch {
			q.eventSubs = append(q.eventSubs[:i], q.eventSubs[i+1:]...)
			return
		}
	}
}

// Emit emits an event to all subscribers.
func (q *Queue) Emit(e core.Event) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	for _, ch := range q.eventSubs {
		select {
		case ch <- e:
		default:
			// Drop if full - this prevents blocking on slow consumers
		}
	}
}

// CallStartHooks calls all registered start hooks.
func (q *Queue) CallStartHooks(ctx context.Context, job *core.JobRecord) {
	q.mu.RLock()
	hooks := make([]func(context.Context, *core.JobRecord), len(q.onStart))
	copy(hooks, q.onStart)
	q.mu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, snapshot(job))
	}
}

// CallCompleteHooks calls all registered complete hooks.
func (q *Queue) CallCompleteHooks(ctx context.Context, job *core.JobRecord) {
	q.mu.RLock()
	hooks := make([]func(context.Context, *core.JobRecord), len(q.onComplete))
	copy(hooks, q.onComplete)
	q.mu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, snapshot(job))
	}
}

// CallFailHooks calls all registered fail hooks.
func (q *Queue) CallFailHooks(ctx context.Context, job *core.JobRecord, err error) {
	q.mu.RLock()
	hooks := make([]func(context.Context, *core.JobRecord, error), len(q.onFail))
	copy(hooks, q.onFail)
	q.mu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, snapshot(job), err)
	}
}

// snapshot copies a job so subscribers never observe later mutations.
func snapshot(job *core.JobRecord) *core.JobRecord {
	cp := *job
	return &cp
}

// tracker counts jobs that have been submitted but not finished.
type tracker struct {
	mu   sync.Mutex
	n    int
	idle chan struct{}
}

func (t *tracker) add() {
	t.mu.Lock()
	if t.n == 0 {
		t.idle = make(chan struct{})
	}
	t.n++
	t.mu.Unlock()
}

func (t *tracker) done() {
	t.mu.Lock()
	t.n--
	if t.n == 0 {
		close(t.idle)
	}
	t.mu.Unlock()
}

func (t *tracker) wait(ctx context.Context) error {
	t.mu.Lock()
	if t.n == 0 {
		t.mu.Unlock()
		return nil
	}
	idle := t.idle
	t.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
