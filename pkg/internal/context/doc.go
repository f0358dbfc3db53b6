// Package context provides internal context helpers for job execution.
//
// This package is internal and should not be imported directly.
// It carries the running job record and its storage into handler calls.
package context
