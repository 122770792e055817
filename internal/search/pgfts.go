package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
// The tsvector is computed per query; the board is small enough that an
// indexed fts column is not worth a migration.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true — if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

const pgftsVector = `to_tsvector('english', c.title || ' ' || c.description || ' ' || c.author_name)`

// Search executes a ranked full-text query over live concerns using
// plainto_tsquery and ts_rank, with ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	where := pgftsVector + ` @@ plainto_tsquery('english', $1) AND NOT c.is_deleted`

	ctx := context.Background()

	var total int
	countSQL := `SELECT count(*) FROM concerns c WHERE ` + where
	if err := p.db.QueryRowContext(ctx, countSQL, q.Text).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT c.id, c.title,
			ts_headline('english', c.description, plainto_tsquery('english', $1), 'MaxFragments=1,MaxWords=30') AS snippet,
			c.author_name, c.apartment_number, c.upvotes
		FROM concerns c
		WHERE %s
		ORDER BY ts_rank(%s, plainto_tsquery('english', $1)) DESC
		LIMIT %d OFFSET %d`, where, pgftsVector, limit, offset)

	rows, err := p.db.QueryContext(ctx, dataSQL, q.Text)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet, &r.AuthorName, &r.Apartment, &r.Upvotes); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns every live concern for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]ConcernRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, title, description, author_name, apartment_number, upvotes
		FROM concerns
		WHERE NOT is_deleted
	`)
	if err != nil {
		return nil, fmt.Errorf("load concerns: %w", err)
	}
	defer rows.Close()

	records := make([]ConcernRecord, 0)
	for rows.Next() {
		var rec ConcernRecord
		if err := rows.Scan(&rec.ID, &rec.Title, &rec.Description, &rec.AuthorName, &rec.Apartment, &rec.Upvotes); err != nil {
			return nil, fmt.Errorf("scan concern: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate concerns: %w", err)
	}
	return records, nil
}
