package core

import (
	"time"
)

// JobStatus represents the current state of a job.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed from s.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Mode selects whether a job body runs behind the per-key gate.
type Mode string

const (
	// ModeSerialized admits at most one job per key at a time.
	ModeSerialized Mode = "serialized"
	// ModeUnsafe skips the gate entirely. Jobs for the same key may overlap.
	ModeUnsafe Mode = "unsafe"
)

// JobRecord is the externally observable state of one submitted job.
// Result is set iff Status is completed; Error is set iff Status is failed.
type JobRecord struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	Type        string     `gorm:"index;size:255;not null" json:"type"`
	Key         string     `gorm:"index;size:255;not null" json:"key"`
	Mode        Mode       `gorm:"size:20;default:'serialized'" json:"mode"`
	Args        []byte     `gorm:"type:bytes" json:"-"`
	Status      JobStatus  `gorm:"index;size:20;default:'pending'" json:"status"`
	Result      []byte     `gorm:"type:bytes" json:"-"`
	Error       string     `gorm:"type:text" json:"error,omitempty"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

// SequenceCounter holds the last value handed out for a key.
type SequenceCounter struct {
	Key       string    `gorm:"primaryKey;size:255"`
	Value     int64     `gorm:"not null;default:0"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// Order is an allocated record: one sequence value bound to the request
// that received it. Orders are append-only.
type Order struct {
	ID            string    `gorm:"primaryKey;size:64" json:"id"`
	VendorID      string    `gorm:"index;size:255;not null" json:"vendorId"`
	VendorOrderID int64     `gorm:"index;not null" json:"vendorOrderId"`
	CreatedAt     time.Time `json:"createdAt"`
}
