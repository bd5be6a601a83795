package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // Postgres driver

	"safesight/internal/core"
)

// PostgresDB implements the Database interface for PostgreSQL
type PostgresDB struct {
	db        *sql.DB
	takeaways TakeawayRepository
}

// NewPostgresDB creates a new PostgreSQL database connection
func NewPostgresDB(connectionString string) (*PostgresDB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresDB{
		db:        db,
		takeaways: &postgresTakeawayRepo{db: db},
	}, nil
}

func (p *PostgresDB) Takeaways() TakeawayRepository { return p.takeaways }

func (p *PostgresDB) Close() error {
	return p.db.Close()
}

func (p *PostgresDB) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PostgresDB) BeginTx(ctx context.Context) (Transaction, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &postgresTx{
		tx:        tx,
		takeaways: &postgresTakeawayRepo{db: p.db, tx: tx},
	}, nil
}

// FindFresh delegates to the takeaway repository so *PostgresDB can back the
// orchestrator directly.
func (p *PostgresDB) FindFresh(ctx context.Context, subject core.Subject, now time.Time) (*core.Takeaway, error) {
	return p.takeaways.FindFresh(ctx, subject, now)
}

// Insert delegates to the takeaway repository.
func (p *PostgresDB) Insert(ctx context.Context, takeaway *core.Takeaway) error {
	return p.takeaways.Insert(ctx, takeaway)
}

// PruneExpired delegates to the takeaway repository.
func (p *PostgresDB) PruneExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	return p.takeaways.PruneExpired(ctx, cutoff)
}

// Stats delegates to the takeaway repository.
func (p *PostgresDB) Stats(ctx context.Context) (*core.CacheStats, error) {
	return p.takeaways.Stats(ctx)
}

// postgresTx implements Transaction interface
type postgresTx struct {
	tx        *sql.Tx
	takeaways TakeawayRepository
}

func (t *postgresTx) Commit() error                 { return t.tx.Commit() }
func (t *postgresTx) Rollback() error               { return t.tx.Rollback() }
func (t *postgresTx) Takeaways() TakeawayRepository { return t.takeaways }
