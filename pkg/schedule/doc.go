// Package schedule provides scheduling implementations for recurring jobs.
//
// This package includes:
//   - Schedule interface for defining job schedules
//   - Every() for fixed-interval schedules
//   - Daily() and Weekly() for wall-clock schedules in UTC
//   - Cron() for cron expression-based schedules
//   - Parse() for schedules read from configuration
//
// Most users should import the root package github.com/jdziat/keyed-jobs
// which re-exports these functions.
package schedule
