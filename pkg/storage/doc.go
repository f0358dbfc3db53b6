// Package storage provides storage implementations for job records, sequence
// counters and the order log.
//
// This package includes:
//   - GormStorage: a GORM-based implementation for SQLite and PostgreSQL
//   - MemoryStorage: a process-local implementation
//
// The Storage interface is defined in pkg/core and must be implemented
// by any custom storage backend.
//
// Neither backend makes AllocateNext atomic for concurrent callers on the
// same key. The queue's gate is what keeps sequence values unique.
package storage
