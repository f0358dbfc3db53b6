// Package core provides the fundamental types and interfaces for the jobs package.
//
// This package contains:
//   - JobRecord, SequenceCounter and Order data models with GORM annotations
//   - RecordStore, SequenceStore and OrderLog storage contracts
//   - Event types for queue monitoring
//   - Sentinel errors shared by the queue, gate and storage layers
//
// Most users should import the root package github.com/jdziat/keyed-jobs
// instead of this package directly.
package core
