// Package security provides validation, sanitization, and limits for the jobs package.
//
// This package includes:
//   - Input validation for job type names, partition keys and job ids
//   - Error message sanitization to prevent sensitive data leakage
//   - Security-related constants defining maximum sizes
//
// Most users should import the root package github.com/jdziat/keyed-jobs
// which re-exports these functions.
package security
