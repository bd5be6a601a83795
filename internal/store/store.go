package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"safesight/internal/core"
)

// Table names, one per subject variant.
const (
	LocationTable = "location_takeaways"
	ListingTable  = "listing_takeaways"
	VideoTable    = "video_takeaways"
)

// Store represents the SQLite-based takeaway cache
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new store instance with SQLite database
func NewStore(dataDir string) (*Store, error) {
	// Ensure data directory exists
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "safesight.db")
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{
		db:   db,
		path: dbPath,
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return store, nil
}

// initialize creates the necessary tables
func (s *Store) initialize() error {
	// Location takeaways carry no summary
	locationTable := `
	CREATE TABLE IF NOT EXISTS location_takeaways (
		id TEXT PRIMARY KEY,
		latitude REAL NOT NULL,
		longitude REAL NOT NULL,
		radius REAL NOT NULL,
		positive_takeaway TEXT,
		negative_takeaway TEXT,
		outcome TEXT NOT NULL,
		model_used TEXT,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL
	);`

	listingTable := `
	CREATE TABLE IF NOT EXISTS listing_takeaways (
		id TEXT PRIMARY KEY,
		listing_id TEXT NOT NULL,
		positive_takeaway TEXT,
		negative_takeaway TEXT,
		summary_takeaway TEXT,
		outcome TEXT NOT NULL,
		model_used TEXT,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL
	);`

	videoTable := `
	CREATE TABLE IF NOT EXISTS video_takeaways (
		id TEXT PRIMARY KEY,
		video_id TEXT NOT NULL,
		positive_takeaway TEXT,
		negative_takeaway TEXT,
		summary_takeaway TEXT,
		outcome TEXT NOT NULL,
		model_used TEXT,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL
	);`

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_location_takeaways_lookup ON location_takeaways (latitude, longitude, radius, expires_at);`,
		`CREATE INDEX IF NOT EXISTS idx_listing_takeaways_lookup ON listing_takeaways (listing_id, expires_at);`,
		`CREATE INDEX IF NOT EXISTS idx_video_takeaways_lookup ON video_takeaways (video_id, expires_at);`,
	}

	statements := append([]string{locationTable, listingTable, videoTable}, indexes...)
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// FindFresh returns the most recent record for subject that expires after now.
// A miss returns nil, nil.
func (s *Store) FindFresh(ctx context.Context, subject core.Subject, now time.Time) (*core.Takeaway, error) {
	kind, err := subject.Kind()
	if err != nil {
		return nil, err
	}

	var row *sql.Row
	switch kind {
	case core.SubjectLocation:
		row = s.db.QueryRowContext(ctx, `
		SELECT id, positive_takeaway, negative_takeaway, NULL, outcome, model_used, created_at, expires_at
		FROM location_takeaways
		WHERE latitude = ? AND longitude = ? AND radius = ? AND expires_at > ?
		ORDER BY created_at DESC
		LIMIT 1`,
			subject.Location.Latitude, subject.Location.Longitude, subject.Location.Radius, now.UTC())
	case core.SubjectListing:
		row = s.db.QueryRowContext(ctx, `
		SELECT id, positive_takeaway, negative_takeaway, summary_takeaway, outcome, model_used, created_at, expires_at
		FROM listing_takeaways
		WHERE listing_id = ? AND expires_at > ?
		ORDER BY created_at DESC
		LIMIT 1`, subject.ListingID, now.UTC())
	case core.SubjectVideo:
		row = s.db.QueryRowContext(ctx, `
		SELECT id, positive_takeaway, negative_takeaway, summary_takeaway, outcome, model_used, created_at, expires_at
		FROM video_takeaways
		WHERE video_id = ? AND expires_at > ?
		ORDER BY created_at DESC
		LIMIT 1`, subject.VideoID, now.UTC())
	}

	t := core.Takeaway{Subject: subject}
	var positive, negative, summary, modelUsed sql.NullString
	var outcome string

	err = row.Scan(&t.ID, &positive, &negative, &summary, &outcome, &modelUsed, &t.CreatedAt, &t.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Cache miss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s takeaway: %w", kind, err)
	}

	t.PositiveText = nullString(positive)
	t.NegativeText = nullString(negative)
	t.SummaryText = nullString(summary)
	t.Outcome = core.Outcome(outcome)
	t.ModelUsed = modelUsed.String
	t.CreatedAt = t.CreatedAt.UTC()
	t.ExpiresAt = t.ExpiresAt.UTC()

	return &t, nil
}

// Insert appends a record. Existing rows are never updated.
func (s *Store) Insert(ctx context.Context, t *core.Takeaway) error {
	kind, err := t.Subject.Kind()
	if err != nil {
		return err
	}

	switch kind {
	case core.SubjectLocation:
		_, err = s.db.ExecContext(ctx, `
		INSERT INTO location_takeaways
		(id, latitude, longitude, radius, positive_takeaway, negative_takeaway, outcome, model_used, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID,
			t.Subject.Location.Latitude,
			t.Subject.Location.Longitude,
			t.Subject.Location.Radius,
			t.PositiveText,
			t.NegativeText,
			string(t.Outcome),
			t.ModelUsed,
			t.CreatedAt.UTC(),
			t.ExpiresAt.UTC(),
		)
	case core.SubjectListing:
		_, err = s.db.ExecContext(ctx, `
		INSERT INTO listing_takeaways
		(id, listing_id, positive_takeaway, negative_takeaway, summary_takeaway, outcome, model_used, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.Subject.ListingID, t.PositiveText, t.NegativeText, t.SummaryText,
			string(t.Outcome), t.ModelUsed, t.CreatedAt.UTC(), t.ExpiresAt.UTC())
	case core.SubjectVideo:
		_, err = s.db.ExecContext(ctx, `
		INSERT INTO video_takeaways
		(id, video_id, positive_takeaway, negative_takeaway, summary_takeaway, outcome, model_used, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.Subject.VideoID, t.PositiveText, t.NegativeText, t.SummaryText,
			string(t.Outcome), t.ModelUsed, t.CreatedAt.UTC(), t.ExpiresAt.UTC())
	}
	if err != nil {
		return fmt.Errorf("failed to insert %s takeaway: %w", kind, err)
	}
	return nil
}

// PruneExpired deletes rows that expired before cutoff and returns how many were removed
func (s *Store) PruneExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	for _, table := range []string{LocationTable, ListingTable, VideoTable} {
		res, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE expires_at < ?", table), cutoff.UTC())
		if err != nil {
			return total, fmt.Errorf("failed to prune %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// Stats returns per-table counts and the database file size
func (s *Store) Stats(ctx context.Context) (*core.CacheStats, error) {
	stats := &core.CacheStats{Driver: "sqlite"}
	now := time.Now().UTC()

	for _, table := range []string{LocationTable, ListingTable, VideoTable} {
		ts := core.TableStats{Table: table}
		query := fmt.Sprintf("SELECT COUNT(*), COALESCE(SUM(CASE WHEN expires_at > ? THEN 1 ELSE 0 END), 0) FROM %s", table)
		if err := s.db.QueryRowContext(ctx, query, now).Scan(&ts.Rows, &ts.Fresh); err != nil {
			return nil, fmt.Errorf("failed to get count: %w", err)
		}
		stats.Tables = append(stats.Tables, ts)
	}

	// Get cache size (file size)
	if fileInfo, err := os.Stat(s.path); err == nil {
		stats.SizeBytes = fileInfo.Size()
	}

	return stats, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
