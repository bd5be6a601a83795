package store

import (
	"context"
	"fmt"
	"time"

	"safesight/internal/core"
	"safesight/internal/persistence"
)

// Backend is a takeaway cache implementation. Store (SQLite), persistence.PostgresDB
// and MemoryCache satisfy it.
type Backend interface {
	FindFresh(ctx context.Context, subject core.Subject, now time.Time) (*core.Takeaway, error)
	Insert(ctx context.Context, takeaway *core.Takeaway) error
	PruneExpired(ctx context.Context, cutoff time.Time) (int64, error)
	Stats(ctx context.Context) (*core.CacheStats, error)
	Ping(ctx context.Context) error
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Driver      string // "sqlite" or "postgres"
	Directory   string // SQLite data directory
	PostgresURL string
	// MemoryEntries enables the in-process front cache when positive.
	MemoryEntries int
}

// Open creates the configured backend, running migrations for Postgres.
func Open(ctx context.Context, opts Options) (Backend, error) {
	var backend Backend

	switch opts.Driver {
	case "", "sqlite":
		s, err := NewStore(opts.Directory)
		if err != nil {
			return nil, err
		}
		backend = s
	case "postgres":
		if opts.PostgresURL == "" {
			return nil, fmt.Errorf("postgres driver requires a connection URL (cache.postgres_url or DATABASE_URL)")
		}
		db, err := persistence.NewPostgresDB(opts.PostgresURL)
		if err != nil {
			return nil, err
		}
		if _, err := persistence.NewMigrationManager(db).Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		backend = db
	default:
		return nil, fmt.Errorf("unknown cache driver %q", opts.Driver)
	}

	if opts.MemoryEntries > 0 {
		backend = NewMemoryCache(backend, opts.MemoryEntries)
	}
	return backend, nil
}

var (
	_ Backend = (*Store)(nil)
	_ Backend = (*persistence.PostgresDB)(nil)
	_ Backend = (*MemoryCache)(nil)
)
