// Package worker provides the Worker type that runs a queue's background loops.
//
// This package includes:
//   - Scheduler: submits recurring jobs registered with Queue.Schedule
//   - Monitor: reports jobs that stay unfinished past a threshold, with the
//     gate state of their key
//   - WorkerOption: Configuration options for workers
//
// Jobs themselves run on their own goroutines as soon as they are submitted;
// the worker never executes handlers.
package worker
