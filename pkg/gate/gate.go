package gate

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"github.com/jdziat/keyed-jobs/pkg/core"
)

// Gate serializes holders per key.
type Gate struct {
	// mu guards keys. It is held only for map and list bookkeeping, never
	// while a caller waits for admission or while a holder runs.
	mu   sync.Mutex
	keys map[string]*keyState
}

// keyState exists only while the key is held.
type keyState struct {
	active  string
	waiting *list.List // of *waiter
}

type waiter struct {
	jobID string
	ready chan struct{}
	elem  *list.Element
}

// New creates an empty Gate.
func New() *Gate {
	return &Gate{keys: make(map[string]*keyState)}
}

// Acquire blocks until jobID holds key. If the key is idle it is granted
// immediately; otherwise the caller joins the back of the key's queue.
//
// If ctx ends before admission, the caller leaves the queue and an error
// wrapping core.ErrAdmissionTimeout and ctx.Err() is returned. The caller
// does not hold the key in that case.
func (g *Gate) Acquire(ctx context.Context, key, jobID string) error {
	g.mu.Lock()
	ks, ok := g.keys[key]
	if !ok {
		g.keys[key] = &keyState{active: jobID, waiting: list.New()}
		g.mu.Unlock()
		return nil
	}
	w := &waiter{jobID: jobID, ready: make(chan struct{})}
	w.elem = ks.waiting.PushBack(w)
	g.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
	}

	g.mu.Lock()
	select {
	case <-w.ready:
		// Granted while we were giving up. Pass the key on.
		g.mu.Unlock()
		g.Release(key)
	default:
		// Still queued, so the key state cannot have been dropped.
		ks.waiting.Remove(w.elem)
		g.mu.Unlock()
	}
	return fmt.Errorf("%w: key %q: %w", core.ErrAdmissionTimeout, key, ctx.Err())
}

// TryAcquire grants key to jobID only if the key is idle.
func (g *Gate) TryAcquire(key, jobID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.keys[key]; ok {
		return false
	}
	g.keys[key] = &keyState{active: jobID, waiting: list.New()}
	return true
}

// Release hands key to the longest waiting caller, or marks it idle when
// nobody is waiting. Releasing a key that is not held panics.
func (g *Gate) Release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ks, ok := g.keys[key]
	if !ok {
		panic(fmt.Sprintf("gate: release of unheld key %q", key))
	}

	front := ks.waiting.Front()
	if front == nil {
		delete(g.keys, key)
		return
	}
	w := ks.waiting.Remove(front).(*waiter)
	ks.active = w.jobID
	close(w.ready)
}

// Do runs fn while holding key. The key is released on every exit path,
// including a panic in fn.
func (g *Gate) Do(ctx context.Context, key, jobID string, fn func() error) error {
	if err := g.Acquire(ctx, key, jobID); err != nil {
		return err
	}
	defer g.Release(key)
	return fn()
}

// Active returns the job currently holding key.
func (g *Gate) Active(key string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if ks, ok := g.keys[key]; ok {
		return ks.active, true
	}
	return "", false
}

// Waiting returns the job ids queued behind the holder of key, oldest first.
func (g *Gate) Waiting(key string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	ks, ok := g.keys[key]
	if !ok {
		return nil
	}
	ids := make([]string, 0, ks.waiting.Len())
	for e := ks.waiting.Front(); e != nil; e = e.Next() {
		ids = append(ids, e.Value.(*waiter).jobID)
	}
	return ids
}

// Len returns the number of keys currently held.
func (g *Gate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.keys)
}
