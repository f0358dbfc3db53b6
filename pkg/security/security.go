package security

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jdziat/keyed-jobs/pkg/core"
)

// Security limits and configuration
const (
	// MaxJobTypeNameLength is the maximum length for job type names
	MaxJobTypeNameLength = 255

	// MaxJobArgsSize is the maximum size in bytes for job arguments (1MB)
	MaxJobArgsSize = 1 << 20

	// MaxErrorMessageLength is the maximum length for stored error messages
	MaxErrorMessageLength = 4096

	// MaxKeyLength is the maximum length for partition keys
	MaxKeyLength = 255

	// MaxJobIDLength is the maximum length for caller-supplied job ids
	MaxJobIDLength = 36
)

// validJobTypeName matches alphanumeric, hyphens, underscores, and dots
var validJobTypeName = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_\-\.]*$`)

// validJobID matches the characters found in uuids and typical event ids
var validJobID = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_\-]*$`)

// ValidateJobTypeName validates a job type name
func ValidateJobTypeName(name string) error {
	if name == "" {
		return core.ErrInvalidJobTypeName
	}
	if len(name) > MaxJobTypeNameLength {
		return core.ErrJobTypeNameTooLong
	}
	if !validJobTypeName.MatchString(name) {
		return core.ErrInvalidJobTypeName
	}
	return nil
}

// ValidateKey validates a partition key. Keys are opaque but must be
// non-blank printable text.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return core.ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return core.ErrKeyTooLong
	}
	if !utf8.ValidString(key) {
		return core.ErrInvalidKey
	}
	for _, r := range key {
		if unicode.IsControl(r) {
			return core.ErrInvalidKey
		}
	}
	return nil
}

// ValidateJobID validates a caller-supplied job id
func ValidateJobID(id string) error {
	if id == "" || len(id) > MaxJobIDLength || !validJobID.MatchString(id) {
		return core.ErrInvalidJobID
	}
	return nil
}

// SanitizeErrorMessage truncates and sanitizes error messages for storage
func SanitizeErrorMessage(msg string) string {
	if msg == "" {
		return ""
	}

	// Remove any null bytes or control characters (except newlines)
	var sanitized strings.Builder
	sanitized.Grow(len(msg))

	for _, r := range msg {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			sanitized.WriteRune(r)
		}
	}

	result := sanitized.String()

	if utf8.RuneCountInString(result) > MaxErrorMessageLength {
		runes := []rune(result)
		result = string(runes[:MaxErrorMessageLength-3]) + "..."
	}

	return result
}
