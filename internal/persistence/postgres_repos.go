package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"safesight/internal/core"
)

// takeawayTables lists the per-variant tables in a fixed order
var takeawayTables = []string{"location_takeaways", "listing_takeaways", "video_takeaways"}

// postgresTakeawayRepo implements TakeawayRepository for PostgreSQL
type postgresTakeawayRepo struct {
	db *sql.DB
	tx *sql.Tx
}

func (r *postgresTakeawayRepo) query() interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
} {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func (r *postgresTakeawayRepo) FindFresh(ctx context.Context, subject core.Subject, now time.Time) (*core.Takeaway, error) {
	kind, err := subject.Kind()
	if err != nil {
		return nil, err
	}

	var row *sql.Row
	switch kind {
	case core.SubjectLocation:
		row = r.query().QueryRowContext(ctx, `
			SELECT id, positive_takeaway, negative_takeaway, NULL::TEXT, outcome, model_used, created_at, expires_at
			FROM location_takeaways
			WHERE latitude = $1 AND longitude = $2 AND radius = $3 AND expires_at > $4
			ORDER BY created_at DESC
			LIMIT 1
		`, subject.Location.Latitude, subject.Location.Longitude, subject.Location.Radius, now.UTC())
	case core.SubjectListing:
		row = r.query().QueryRowContext(ctx, `
			SELECT id, positive_takeaway, negative_takeaway, summary_takeaway, outcome, model_used, created_at, expires_at
			FROM listing_takeaways
			WHERE listing_id = $1 AND expires_at > $2
			ORDER BY created_at DESC
			LIMIT 1
		`, subject.ListingID, now.UTC())
	case core.SubjectVideo:
		row = r.query().QueryRowContext(ctx, `
			SELECT id, positive_takeaway, negative_takeaway, summary_takeaway, outcome, model_used, created_at, expires_at
			FROM video_takeaways
			WHERE video_id = $1 AND expires_at > $2
			ORDER BY created_at DESC
			LIMIT 1
		`, subject.VideoID, now.UTC())
	}

	takeaway := core.Takeaway{Subject: subject}
	var positive, negative, summary, modelUsed sql.NullString
	var outcome string

	err = row.Scan(&takeaway.ID, &positive, &negative, &summary, &outcome, &modelUsed, &takeaway.CreatedAt, &takeaway.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s takeaway: %w", kind, err)
	}

	takeaway.PositiveText = nullableString(positive)
	takeaway.NegativeText = nullableString(negative)
	takeaway.SummaryText = nullableString(summary)
	takeaway.Outcome = core.Outcome(outcome)
	takeaway.ModelUsed = modelUsed.String
	takeaway.CreatedAt = takeaway.CreatedAt.UTC()
	takeaway.ExpiresAt = takeaway.ExpiresAt.UTC()

	return &takeaway, nil
}

func (r *postgresTakeawayRepo) Insert(ctx context.Context, takeaway *core.Takeaway) error {
	kind, err := takeaway.Subject.Kind()
	if err != nil {
		return err
	}

	switch kind {
	case core.SubjectLocation:
		loc := takeaway.Subject.Location
		_, err = r.query().ExecContext(ctx, `
			INSERT INTO location_takeaways (
				id, latitude, longitude, radius, positive_takeaway, negative_takeaway,
				outcome, model_used, created_at, expires_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, takeaway.ID, loc.Latitude, loc.Longitude, loc.Radius,
			takeaway.PositiveText, takeaway.NegativeText,
			string(takeaway.Outcome), takeaway.ModelUsed, takeaway.CreatedAt.UTC(), takeaway.ExpiresAt.UTC())
	case core.SubjectListing:
		_, err = r.query().ExecContext(ctx, `
			INSERT INTO listing_takeaways (
				id, listing_id, positive_takeaway, negative_takeaway, summary_takeaway,
				outcome, model_used, created_at, expires_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, takeaway.ID, takeaway.Subject.ListingID,
			takeaway.PositiveText, takeaway.NegativeText, takeaway.SummaryText,
			string(takeaway.Outcome), takeaway.ModelUsed, takeaway.CreatedAt.UTC(), takeaway.ExpiresAt.UTC())
	case core.SubjectVideo:
		_, err = r.query().ExecContext(ctx, `
			INSERT INTO video_takeaways (
				id, video_id, positive_takeaway, negative_takeaway, summary_takeaway,
				outcome, model_used, created_at, expires_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, takeaway.ID, takeaway.Subject.VideoID,
			takeaway.PositiveText, takeaway.NegativeText, takeaway.SummaryText,
			string(takeaway.Outcome), takeaway.ModelUsed, takeaway.CreatedAt.UTC(), takeaway.ExpiresAt.UTC())
	}

	if err != nil {
		return fmt.Errorf("failed to insert %s takeaway: %w", kind, err)
	}
	return nil
}

func (r *postgresTakeawayRepo) PruneExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	for _, table := range takeawayTables {
		result, err := r.query().ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE expires_at < $1`, table), cutoff.UTC())
		if err != nil {
			return total, fmt.Errorf("failed to prune %s: %w", table, err)
		}
		n, _ := result.RowsAffected()
		total += n
	}
	return total, nil
}

func (r *postgresTakeawayRepo) Stats(ctx context.Context) (*core.CacheStats, error) {
	stats := &core.CacheStats{Driver: "postgres"}
	now := time.Now().UTC()

	for _, table := range takeawayTables {
		ts := core.TableStats{Table: table}
		query := fmt.Sprintf(`SELECT COUNT(*), COUNT(*) FILTER (WHERE expires_at > $1) FROM %s`, table)
		if err := r.query().QueryRowContext(ctx, query, now).Scan(&ts.Rows, &ts.Fresh); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		stats.Tables = append(stats.Tables, ts)
	}

	if err := r.query().QueryRowContext(ctx, `SELECT pg_database_size(current_database())`).Scan(&stats.SizeBytes); err != nil {
		return nil, fmt.Errorf("failed to get database size: %w", err)
	}

	return stats, nil
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
