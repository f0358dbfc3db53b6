package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/keyed-jobs/pkg/core"
)

// backends returns a constructor for every bundled storage implementation.
func backends() map[string]func(t *testing.T) core.Storage {
	return map[string]func(t *testing.T) core.Storage{
		"memory": func(t *testing.T) core.Storage { return NewMemoryStorage() },
		"gorm":   func(t *testing.T) core.Storage { return newTestGormStorage(t) },
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, s core.Storage)) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			fn(t, newStore(t))
		})
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Job records
// ──────────────────────────────────────────────────────────────────────────────

func TestCreateJob_DefaultsAndLookup(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s core.Storage) {
		ctx := context.Background()

		job := &core.JobRecord{Type: "create-order-safe", Key: "vendor-A", Args: []byte(`{"vendorId":"vendor-A"}`)}
		require.NoError(t, s.CreateJob(ctx, job))
		assert.NotEmpty(t, job.ID, "ID should be auto-generated")
		assert.Equal(t, core.StatusPending, job.Status)
		assert.Equal(t, core.ModeSerialized, job.Mode)

		got, err := s.GetJob(ctx, job.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "vendor-A", got.Key)
		assert.Equal(t, core.StatusPending, got.Status)
		assert.JSONEq(t, `{"vendorId":"vendor-A"}`, string(got.Args))
		assert.Nil(t, got.Result)
		assert.Empty(t, got.Error)
	})
}

func TestCreateJob_DuplicateID(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s core.Storage) {
		ctx := context.Background()
		require.NoError(t, s.CreateJob(ctx, &core.JobRecord{ID: "job-1", Type: "t", Key: "k"}))

		err := s.CreateJob(ctx, &core.JobRecord{ID: "job-1", Type: "t", Key: "other"})
		assert.ErrorIs(t, err, core.ErrDuplicateJob)

		got, err := s.GetJob(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, "k", got.Key, "original record must be untouched")
	})
}

func TestGetJob_Unknown(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s core.Storage) {
		got, err := s.GetJob(context.Background(), "missing")
		assert.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestJobLifecycle_Completed(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s core.Storage) {
		ctx := context.Background()
		job := &core.JobRecord{Type: "t", Key: "k"}
		require.NoError(t, s.CreateJob(ctx, job))

		require.NoError(t, s.MarkRunning(ctx, job.ID))
		got, _ := s.GetJob(ctx, job.ID)
		assert.Equal(t, core.StatusRunning, got.Status)
		assert.NotNil(t, got.StartedAt)

		require.NoError(t, s.MarkCompleted(ctx, job.ID, []byte(`{"vendorOrderId":1}`)))
		got, _ = s.GetJob(ctx, job.ID)
		assert.Equal(t, core.StatusCompleted, got.Status)
		assert.JSONEq(t, `{"vendorOrderId":1}`, string(got.Result))
		assert.Empty(t, got.Error)
		assert.NotNil(t, got.CompletedAt)
	})
}

func TestJobLifecycle_FailedSanitizesMessage(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s core.Storage) {
		ctx := context.Background()
		job := &core.JobRecord{Type: "t", Key: "k"}
		require.NoError(t, s.CreateJob(ctx, job))

		require.NoError(t, s.MarkFailed(ctx, job.ID, "model\x00 unavailable"))
		got, _ := s.GetJob(ctx, job.ID)
		assert.Equal(t, core.StatusFailed, got.Status)
		assert.Equal(t, "model unavailable", got.Error)
		assert.Nil(t, got.Result)
	})
}

func TestTerminalStatesAreFinal(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s core.Storage) {
		ctx := context.Background()
		job := &core.JobRecord{Type: "t", Key: "k"}
		require.NoError(t, s.CreateJob(ctx, job))
		require.NoError(t, s.MarkCompleted(ctx, job.ID, []byte(`"first"`)))
		before, _ := s.GetJob(ctx, job.ID)

		assert.ErrorIs(t, s.MarkCompleted(ctx, job.ID, []byte(`"second"`)), core.ErrJobTerminal)
		assert.ErrorIs(t, s.MarkFailed(ctx, job.ID, "late failure"), core.ErrJobTerminal)
		assert.ErrorIs(t, s.MarkRunning(ctx, job.ID), core.ErrJobTerminal)

		after, _ := s.GetJob(ctx, job.ID)
		assert.Equal(t, core.StatusCompleted, after.Status)
		assert.Equal(t, before.Result, after.Result)
		assert.Empty(t, after.Error)
	})
}

func TestTransitions_UnknownJob(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s core.Storage) {
		ctx := context.Background()
		assert.ErrorIs(t, s.MarkRunning(ctx, "missing"), core.ErrJobNotFound)
		assert.ErrorIs(t, s.MarkCompleted(ctx, "missing", nil), core.ErrJobNotFound)
		assert.ErrorIs(t, s.MarkFailed(ctx, "missing", "x"), core.ErrJobNotFound)
	})
}

func TestMarkRunning_Idempotent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s core.Storage) {
		ctx := context.Background()
		job := &core.JobRecord{Type: "t", Key: "k"}
		require.NoError(t, s.CreateJob(ctx, job))
		require.NoError(t, s.MarkRunning(ctx, job.ID))
		assert.NoError(t, s.MarkRunning(ctx, job.ID))
	})
}

func TestGetJobsByStatus(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s core.Storage) {
		ctx := context.Background()
		for i := 0; i < 3; i++ {
			job := &core.JobRecord{ID: fmt.Sprintf("job-%d", i), Type: "t", Key: "k"}
			require.NoError(t, s.CreateJob(ctx, job))
			time.Sleep(2 * time.Millisecond)
		}
		require.NoError(t, s.MarkCompleted(ctx, "job-1", nil))

		pending, err := s.GetJobsByStatus(ctx, core.StatusPending, 10)
		require.NoError(t, err)
		require.Len(t, pending, 2)
		assert.Equal(t, "job-0", pending[0].ID)
		assert.Equal(t, "job-2", pending[1].ID)

		limited, err := s.GetJobsByStatus(ctx, core.StatusPending, 1)
		require.NoError(t, err)
		assert.Len(t, limited, 1)

		unlimited, err := s.GetJobsByStatus(ctx, core.StatusPending, 0)
		require.NoError(t, err)
		assert.Len(t, unlimited, 2, "zero limit returns every match")
	})
}

// ──────────────────────────────────────────────────────────────────────────────
// Sequences and the order log
// ──────────────────────────────────────────────────────────────────────────────

func TestAllocateNext_SequentialIsContiguousPerKey(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s core.Storage) {
		ctx := context.Background()
		for want := int64(1); want <= 5; want++ {
			got, err := s.AllocateNext(ctx, "vendor-A")
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}

		got, err := s.AllocateNext(ctx, "vendor-B")
		require.NoError(t, err)
		assert.Equal(t, int64(1), got, "keys have independent counters")
	})
}

func TestAllocateNext_SerializedCallersNeverCollide(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s core.Storage) {
		ctx := context.Background()
		var (
			mu   sync.Mutex
			wg   sync.WaitGroup
			seen = make(map[int64]bool)
		)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				mu.Lock()
				defer mu.Unlock()
				n, err := s.AllocateNext(ctx, "vendor-A")
				assert.NoError(t, err)
				assert.False(t, seen[n], "value %d handed out twice", n)
				seen[n] = true
			}()
		}
		wg.Wait()
		for i := int64(1); i <= 20; i++ {
			assert.True(t, seen[i], "value %d missing", i)
		}
	})
}

func TestOrders_AppendListAndFilter(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s core.Storage) {
		ctx := context.Background()
		require.NoError(t, s.AppendOrder(ctx, &core.Order{ID: "req-1", VendorID: "vendor-A", VendorOrderID: 1}))
		require.NoError(t, s.AppendOrder(ctx, &core.Order{ID: "req-2", VendorID: "vendor-B", VendorOrderID: 1}))
		require.NoError(t, s.AppendOrder(ctx, &core.Order{ID: "req-3", VendorID: "vendor-A", VendorOrderID: 2}))

		all, err := s.ListOrders(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 3)
		for _, o := range all {
			assert.False(t, o.CreatedAt.IsZero())
		}

		a, err := s.OrdersByVendor(ctx, "vendor-A")
		require.NoError(t, err)
		require.Len(t, a, 2)
		assert.ElementsMatch(t, []int64{1, 2}, []int64{a[0].VendorOrderID, a[1].VendorOrderID})
	})
}

func TestReset_ClearsCountersAndOrders(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s core.Storage) {
		ctx := context.Background()
		job := &core.JobRecord{Type: "t", Key: "vendor-A"}
		require.NoError(t, s.CreateJob(ctx, job))
		_, err := s.AllocateNext(ctx, "vendor-A")
		require.NoError(t, err)
		require.NoError(t, s.AppendOrder(ctx, &core.Order{VendorID: "vendor-A", VendorOrderID: 1}))

		require.NoError(t, s.Reset(ctx))

		orders, err := s.ListOrders(ctx)
		require.NoError(t, err)
		assert.Empty(t, orders)

		n, err := s.AllocateNext(ctx, "vendor-A")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n, "counter should restart after reset")

		got, err := s.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.NotNil(t, got, "job records survive a reset")
	})
}
