package jobs

import "github.com/jdziat/keyed-jobs/pkg/core"

// Validation errors
var (
	ErrInvalidJobTypeName = core.ErrInvalidJobTypeName
	ErrJobTypeNameTooLong = core.ErrJobTypeNameTooLong
	ErrInvalidKey         = core.ErrInvalidKey
	ErrKeyTooLong         = core.ErrKeyTooLong
	ErrInvalidJobID       = core.ErrInvalidJobID
	ErrJobArgsTooLarge    = core.ErrJobArgsTooLarge
)

// Lifecycle errors
var (
	ErrNoHandler        = core.ErrNoHandler
	ErrDuplicateJob     = core.ErrDuplicateJob
	ErrJobNotFound      = core.ErrJobNotFound
	ErrJobTerminal      = core.ErrJobTerminal
	ErrAdmissionTimeout = core.ErrAdmissionTimeout
)
