package core

import "time"

// Event is the interface for all queue events.
type Event interface {
	eventMarker()
}

// JobSubmitted is emitted once a job's pending record has been stored.
type JobSubmitted struct {
	Job       *JobRecord
	Timestamp time.Time
}

func (*JobSubmitted) eventMarker() {}

// JobAdmitted is emitted when the gate grants a serialized job its key.
// Waited is the time spent in the key's queue.
type JobAdmitted struct {
	Job       *JobRecord
	Waited    time.Duration
	Timestamp time.Time
}

func (*JobAdmitted) eventMarker() {}

// JobStarted is emitted when a job's handler begins executing.
type JobStarted struct {
	Job       *JobRecord
	Timestamp time.Time
}

func (*JobStarted) eventMarker() {}

// JobCompleted is emitted when a job completes successfully.
type JobCompleted struct {
	Job       *JobRecord
	Duration  time.Duration
	Timestamp time.Time
}

func (*JobCompleted) eventMarker() {}

// JobFailed is emitted when a job fails.
type JobFailed struct {
	Job       *JobRecord
	Error     error
	Timestamp time.Time
}

func (*JobFailed) eventMarker() {}
