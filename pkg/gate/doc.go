// Package gate provides per-key mutual exclusion with FIFO admission.
//
// A Gate admits at most one holder per key. Further callers for the same
// key queue in arrival order and are handed the key one at a time as each
// holder releases it. Keys are independent: waiting on one key never
// delays another.
//
//	g := gate.New()
//	if err := g.Acquire(ctx, "vendor-A", jobID); err != nil {
//	    return err
//	}
//	defer g.Release("vendor-A")
//
// Most users should not use this package directly; the queue acquires and
// releases the gate around every serialized job.
package gate
