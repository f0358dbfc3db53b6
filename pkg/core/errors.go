package core

import (
	"errors"
)

// Validation errors
var (
	ErrInvalidJobTypeName = errors.New("jobs: invalid job type name (must be alphanumeric, start with letter)")
	ErrJobTypeNameTooLong = errors.New("jobs: job type name too long")
	ErrInvalidKey         = errors.New("jobs: invalid partition key")
	ErrKeyTooLong         = errors.New("jobs: partition key too long")
	ErrInvalidJobID       = errors.New("jobs: invalid job id")
	ErrJobArgsTooLarge    = errors.New("jobs: job arguments exceed size limit")
)

// Lifecycle errors
var (
	ErrNoHandler        = errors.New("jobs: no handler registered")
	ErrDuplicateJob     = errors.New("jobs: duplicate job id")
	ErrJobNotFound      = errors.New("jobs: job not found")
	ErrJobTerminal      = errors.New("jobs: job already in a terminal state")
	ErrAdmissionTimeout = errors.New("jobs: admission wait exceeded")
)
