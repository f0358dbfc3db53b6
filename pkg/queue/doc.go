// Package queue provides the Queue type that runs keyed jobs.
//
// This package includes:
//   - Queue: registers handlers, accepts submissions and runs each job on its own goroutine
//   - Option: registration and submission options (Serialized, Unsafe, Latency, AdmissionTimeout, JobID)
//   - Hook registration for job lifecycle events
//   - Event subscription for monitoring
//
// Serialized jobs hold their key at a gate.Gate for the duration of the
// handler, so at most one job per key runs at a time and waiting jobs are
// admitted in the order they asked.
//
// Most users should import the root package github.com/jdziat/keyed-jobs
// which re-exports Queue and all option functions.
package queue
