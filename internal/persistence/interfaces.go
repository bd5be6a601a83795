// Package persistence provides the PostgreSQL implementation of the takeaway cache
package persistence

import (
	"context"
	"time"

	"safesight/internal/core"
)

// TakeawayRepository handles takeaway persistence operations
type TakeawayRepository interface {
	// FindFresh returns the newest record for subject expiring after now, or nil
	FindFresh(ctx context.Context, subject core.Subject, now time.Time) (*core.Takeaway, error)

	// Insert appends a record; rows are never updated
	Insert(ctx context.Context, takeaway *core.Takeaway) error

	// PruneExpired deletes rows that expired before cutoff
	PruneExpired(ctx context.Context, cutoff time.Time) (int64, error)

	// Stats returns per-table row counts
	Stats(ctx context.Context) (*core.CacheStats, error)
}

// Database provides access to all repositories
type Database interface {
	Takeaways() TakeawayRepository

	// Close closes the database connection
	Close() error

	// Ping checks database connectivity
	Ping(ctx context.Context) error

	// BeginTx starts a new transaction
	BeginTx(ctx context.Context) (Transaction, error)
}

// Transaction represents a database transaction
type Transaction interface {
	Commit() error
	Rollback() error
	Takeaways() TakeawayRepository
}
