package worker

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/keyed-jobs/pkg/core"
	"github.com/jdziat/keyed-jobs/pkg/queue"
	"github.com/jdziat/keyed-jobs/pkg/schedule"
	"github.com/jdziat/keyed-jobs/pkg/storage"
)

type noArgs struct{}

func newTestQueue(t *testing.T) (*queue.Queue, *storage.MemoryStorage) {
	t.Helper()
	store := storage.NewMemoryStorage()
	q := queue.New(store, queue.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = q.Wait(ctx)
	})
	return q, store
}

func TestNewWorker_Defaults(t *testing.T) {
	q, _ := newTestQueue(t)
	w := NewWorker(q)
	cfg := w.Config()

	assert.NotEmpty(t, cfg.WorkerID)
	assert.False(t, cfg.EnableScheduler)
	assert.True(t, cfg.EnableMonitor)
	assert.Equal(t, DefaultSchedulerTick, cfg.SchedulerTick)
	assert.Equal(t, DefaultMonitorInterval, cfg.MonitorInterval)
	assert.Equal(t, DefaultStuckAfter, cfg.StuckAfter)
}

func TestWorkerOptions(t *testing.T) {
	q, _ := newTestQueue(t)
	w := NewWorker(q,
		WithScheduler(true),
		SchedulerTick(10*time.Millisecond),
		WithMonitor(false),
		MonitorInterval(time.Minute),
		StuckAfter(2*time.Minute),
		WithWorkerID("worker-1"),
	)
	cfg := w.Config()

	assert.True(t, cfg.EnableScheduler)
	assert.Equal(t, 10*time.Millisecond, cfg.SchedulerTick)
	assert.False(t, cfg.EnableMonitor)
	assert.Equal(t, time.Minute, cfg.MonitorInterval)
	assert.Equal(t, 2*time.Minute, cfg.StuckAfter)
	assert.Equal(t, "worker-1", cfg.WorkerID)
}

func TestWorkerOptions_IgnoreNonPositive(t *testing.T) {
	q, _ := newTestQueue(t)
	cfg := NewWorker(q, SchedulerTick(0), MonitorInterval(-1), StuckAfter(0), WithWorkerID("")).Config()

	assert.Equal(t, DefaultSchedulerTick, cfg.SchedulerTick)
	assert.Equal(t, DefaultMonitorInterval, cfg.MonitorInterval)
	assert.Equal(t, DefaultStuckAfter, cfg.StuckAfter)
	assert.NotEmpty(t, cfg.WorkerID)
}

func TestStart_ReturnsOnCancel(t *testing.T) {
	q, _ := newTestQueue(t)
	w := NewWorker(q, WithScheduler(true), SchedulerTick(5*time.Millisecond), MonitorInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestScheduler_SubmitsRecurringJobs(t *testing.T) {
	q, _ := newTestQueue(t)

	var runs atomic.Int32
	q.Register("hourly-report", func(ctx context.Context, _ noArgs) error {
		runs.Add(1)
		return nil
	})
	q.Schedule("hourly-report", "vendor-A", schedule.Every(20*time.Millisecond), nil)

	w := NewWorker(q, WithScheduler(true), SchedulerTick(5*time.Millisecond), WithMonitor(false))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Start(ctx) }()

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestScheduler_WaitsForFirstOccurrence(t *testing.T) {
	q, _ := newTestQueue(t)

	var runs atomic.Int32
	q.Register("daily", func(ctx context.Context, _ noArgs) error {
		runs.Add(1)
		return nil
	})
	q.Schedule("daily", "vendor-A", schedule.Every(time.Hour), nil)

	w := NewWorker(q, WithScheduler(true), SchedulerTick(5*time.Millisecond), WithMonitor(false))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_ = w.Start(ctx)

	assert.Equal(t, int32(0), runs.Load(), "nothing is due until the first interval elapses")
}

func TestCheckStuck_ReportsOldUnfinishedJobs(t *testing.T) {
	q, store := newTestQueue(t)
	ctx := context.Background()

	old := time.Now().Add(-time.Hour)
	require.NoError(t, store.CreateJob(ctx, &core.JobRecord{ID: "stale", Type: "t", Key: "vendor-A", CreatedAt: old}))
	require.NoError(t, store.CreateJob(ctx, &core.JobRecord{ID: "fresh", Type: "t", Key: "vendor-A"}))
	require.NoError(t, store.CreateJob(ctx, &core.JobRecord{ID: "done", Type: "t", Key: "vendor-A", CreatedAt: old}))
	require.NoError(t, store.MarkCompleted(ctx, "done", nil))

	require.True(t, q.Gate().TryAcquire("vendor-A", "holder"))
	defer q.Gate().Release("vendor-A")

	w := NewWorker(q, StuckAfter(time.Minute))
	stuck, err := w.CheckStuck(ctx)
	require.NoError(t, err)

	require.Len(t, stuck, 1)
	assert.Equal(t, "stale", stuck[0].Job.ID)
	assert.Equal(t, "holder", stuck[0].KeyHolder)
	assert.Equal(t, 0, stuck[0].QueueDepth)
	assert.GreaterOrEqual(t, stuck[0].Age, time.Hour)

	job, err := store.GetJob(ctx, "stale")
	require.NoError(t, err)
	assert.Equal(t, core.StatusPending, job.Status, "the monitor never changes job state")
}

func TestCheckStuck_IncludesRunningJobs(t *testing.T) {
	q, store := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, store.CreateJob(ctx, &core.JobRecord{ID: "long", Type: "t", Key: "k", CreatedAt: time.Now().Add(-time.Hour)}))
	require.NoError(t, store.MarkRunning(ctx, "long"))

	stuck, err := NewWorker(q, StuckAfter(time.Minute)).CheckStuck(ctx)
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, core.StatusRunning, stuck[0].Job.Status)
	assert.Empty(t, stuck[0].KeyHolder)
}
