package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jdziat/keyed-jobs/pkg/core"
	"github.com/jdziat/keyed-jobs/pkg/queue"
)

// Worker runs the scheduler and the stuck-job monitor for a queue.
type Worker struct {
	queue  *queue.Queue
	config WorkerConfig
	logger *slog.Logger
}

// StuckJob describes a job that has not finished within the threshold.
type StuckJob struct {
	Job        *core.JobRecord
	Age        time.Duration
	KeyHolder  string // job currently holding the key, empty if none
	QueueDepth int    // jobs waiting behind the holder
}

// NewWorker creates a new worker for the given queue.
func NewWorker(q *queue.Queue, opts ...WorkerOption) *Worker {
	config := WorkerConfig{
		WorkerID:        uuid.New().String(),
		SchedulerTick:   DefaultSchedulerTick,
		EnableMonitor:   true,
		MonitorInterval: DefaultMonitorInterval,
		StuckAfter:      DefaultStuckAfter,
	}

	for _, opt := range opts {
		opt.ApplyWorker(&config)
	}

	logger := config.Logger
	if logger == nil {
		logger = q.Logger()
	}

	return &Worker{
		queue:  q,
		config: config,
		logger: logger.With("worker_id", config.WorkerID),
	}
}

// Config returns the worker's effective configuration.
func (w *Worker) Config() WorkerConfig {
	return w.config
}

// Start runs the enabled loops. Blocks until context is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if w.config.EnableScheduler {
		g.Go(func() error {
			w.runScheduler(ctx)
			return nil
		})
	}
	if w.config.EnableMonitor {
		g.Go(func() error {
			w.runMonitor(ctx)
			return nil
		})
	}

	w.logger.Info("worker started", "scheduler", w.config.EnableScheduler, "monitor", w.config.EnableMonitor)
	<-ctx.Done()
	_ = g.Wait()
	w.logger.Info("worker stopped")
	return ctx.Err()
}

func (w *Worker) runScheduler(ctx context.Context) {
	ticker := time.NewTicker(w.config.SchedulerTick)
	defer ticker.Stop()

	started := time.Now()
	lastRun := make(map[string]time.Time)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			for name, sj := range w.queue.GetScheduledJobs() {
				last, ok := lastRun[name]
				if !ok {
					last = started
				}
				nextRun := sj.Schedule.Next(last)
				if now.Before(nextRun) {
					continue
				}

				id, err := w.queue.Submit(ctx, sj.Name, sj.Key, sj.Args, sj.Options...)
				if err != nil {
					if !errors.Is(err, context.Canceled) {
						w.logger.Error("failed to submit scheduled job", "name", name, "error", err)
					}
					continue
				}
				w.logger.Info("submitted scheduled job", "name", sj.Name, "key", sj.Key, "job_id", id)
				lastRun[name] = now
			}
		}
	}
}

func (w *Worker) runMonitor(ctx context.Context) {
	ticker := time.NewTicker(w.config.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stuck, err := w.CheckStuck(ctx)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					w.logger.Error("stuck job scan failed", "error", err)
				}
				continue
			}
			for _, s := range stuck {
				w.logger.Warn("job unfinished past threshold",
					"job_id", s.Job.ID,
					"key", s.Job.Key,
					"type", s.Job.Type,
					"status", s.Job.Status,
					"age", s.Age,
					"key_holder", s.KeyHolder,
					"queue_depth", s.QueueDepth,
				)
			}
		}
	}
}

// CheckStuck returns pending and running jobs older than the StuckAfter
// threshold along with the gate state of their key. It only reports; it
// never fails a job or releases a key.
func (w *Worker) CheckStuck(ctx context.Context) ([]StuckJob, error) {
	const scanLimit = 100

	cutoff := time.Now().Add(-w.config.StuckAfter)
	g := w.queue.Gate()

	var stuck []StuckJob
	for _, status := range []core.JobStatus{core.StatusPending, core.StatusRunning} {
		jobs, err := w.queue.Storage().GetJobsByStatus(ctx, status, scanLimit)
		if err != nil {
			return nil, err
		}
		for _, job := range jobs {
			if !job.CreatedAt.Before(cutoff) {
				continue
			}
			holder, _ := g.Active(job.Key)
			stuck = append(stuck, StuckJob{
				Job:        job,
				Age:        time.Since(job.CreatedAt),
				KeyHolder:  holder,
				QueueDepth: len(g.Waiting(job.Key)),
			})
		}
	}
	return stuck, nil
}
