package gate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/keyed-jobs/pkg/core"
)

func TestGate_GrantsIdleKeyImmediately(t *testing.T) {
	g := New()
	require.NoError(t, g.Acquire(context.Background(), "vendor-A", "job-1"))

	active, ok := g.Active("vendor-A")
	assert.True(t, ok)
	assert.Equal(t, "job-1", active)
	assert.Empty(t, g.Waiting("vendor-A"))

	g.Release("vendor-A")
	_, ok = g.Active("vendor-A")
	assert.False(t, ok)
	assert.Equal(t, 0, g.Len(), "idle keys should be dropped")
}

func TestGate_FIFOPerKey(t *testing.T) {
	g := New()
	ctx := context.Background()
	require.NoError(t, g.Acquire(ctx, "k", "holder"))

	granted := make(chan string, 5)
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("job-%d", i)
		go func() {
			if err := g.Acquire(ctx, "k", id); err == nil {
				granted <- id
			}
		}()
		require.Eventually(t, func() bool { return len(g.Waiting("k")) == i+1 },
			time.Second, time.Millisecond, "waiter %d should be queued", i)
	}
	assert.Equal(t, []string{"job-0", "job-1", "job-2", "job-3", "job-4"}, g.Waiting("k"))

	for i := 0; i < 5; i++ {
		g.Release("k")
		select {
		case id := <-granted:
			assert.Equal(t, fmt.Sprintf("job-%d", i), id)
			active, _ := g.Active("k")
			assert.Equal(t, id, active)
		case <-time.After(time.Second):
			t.Fatalf("job-%d was not granted", i)
		}
	}

	g.Release("k")
	assert.Equal(t, 0, g.Len())
}

func TestGate_WaiterBlocksUntilRelease(t *testing.T) {
	g := New()
	ctx := context.Background()
	require.NoError(t, g.Acquire(ctx, "k", "first"))

	done := make(chan struct{})
	go func() {
		_ = g.Acquire(ctx, "k", "second")
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second acquire must wait for release")
	case <-time.After(50 * time.Millisecond):
	}

	g.Release("k")
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second acquire was not granted after release")
	}
	g.Release("k")
}

func TestGate_KeysAreIndependent(t *testing.T) {
	g := New()
	ctx := context.Background()
	require.NoError(t, g.Acquire(ctx, "vendor-A", "a-1"))

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, g.Acquire(ctx, "vendor-B", "b-1"), "holding A must not block B")
	assert.Equal(t, 2, g.Len())

	g.Release("vendor-B")
	g.Release("vendor-A")
}

func TestGate_MutualExclusionUnderLoad(t *testing.T) {
	g := New()
	ctx := context.Background()
	keys := []string{"vendor-A", "vendor-B", "vendor-C", "vendor-D"}

	inside := make(map[string]*atomic.Int32, len(keys))
	maxInside := make(map[string]*atomic.Int32, len(keys))
	for _, k := range keys {
		inside[k] = &atomic.Int32{}
		maxInside[k] = &atomic.Int32{}
	}

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		key := keys[i%len(keys)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := g.Do(ctx, key, fmt.Sprintf("job-%d", i), func() error {
				n := inside[key].Add(1)
				for {
					m := maxInside[key].Load()
					if n <= m || maxInside[key].CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(100 * time.Microsecond)
				inside[key].Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	for _, k := range keys {
		assert.Equal(t, int32(1), maxInside[k].Load(), "key %s had overlapping holders", k)
	}
	assert.Equal(t, 0, g.Len())
}

func TestGate_CancelledWaiterLeavesQueue(t *testing.T) {
	g := New()
	require.NoError(t, g.Acquire(context.Background(), "k", "holder"))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- g.Acquire(ctx, "k", "quitter") }()
	require.Eventually(t, func() bool { return len(g.Waiting("k")) == 1 }, time.Second, time.Millisecond)

	cancel()
	err := <-errCh
	assert.ErrorIs(t, err, core.ErrAdmissionTimeout)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, g.Waiting("k"))

	g.Release("k")
	assert.Equal(t, 0, g.Len(), "cancelled waiter must not inherit the key")
}

func TestGate_AdmissionDeadline(t *testing.T) {
	g := New()
	require.NoError(t, g.Acquire(context.Background(), "k", "holder"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := g.Acquire(ctx, "k", "late")
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.ErrorIs(t, err, core.ErrAdmissionTimeout)

	g.Release("k")
}

func TestGate_CancelRacingGrantNeverLeaksKey(t *testing.T) {
	for i := 0; i < 200; i++ {
		g := New()
		require.NoError(t, g.Acquire(context.Background(), "k", "holder"))

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() { errCh <- g.Acquire(ctx, "k", "racer") }()
		require.Eventually(t, func() bool { return len(g.Waiting("k")) == 1 }, time.Second, time.Microsecond)

		go cancel()
		g.Release("k")

		if err := <-errCh; err == nil {
			g.Release("k")
		}
		assert.Equal(t, 0, g.Len(), "iteration %d leaked the key", i)
	}
}

func TestGate_DoReleasesOnError(t *testing.T) {
	g := New()
	boom := errors.New("boom")

	err := g.Do(context.Background(), "k", "job-1", func() error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, g.Len())
}

func TestGate_DoReleasesOnPanic(t *testing.T) {
	g := New()

	assert.Panics(t, func() {
		_ = g.Do(context.Background(), "k", "job-1", func() error { panic("handler blew up") })
	})
	assert.Equal(t, 0, g.Len())
	assert.True(t, g.TryAcquire("k", "job-2"), "key should be free after the panic")
}

func TestGate_TryAcquire(t *testing.T) {
	g := New()
	assert.True(t, g.TryAcquire("k", "job-1"))
	assert.False(t, g.TryAcquire("k", "job-2"))
	g.Release("k")
	assert.True(t, g.TryAcquire("k", "job-3"))
	g.Release("k")
}

func TestGate_ReleaseUnheldPanics(t *testing.T) {
	g := New()
	assert.Panics(t, func() { g.Release("never-held") })
}
