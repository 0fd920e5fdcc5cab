package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback
// when Meilisearch is unavailable. It reads from a `document_index` table
// that the engine's indexing hook keeps current — a derived projection, not
// additional persisted state for the engine itself (spec §6: "no auxiliary
// database" describes the engine's own state, not this supplemental index).
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

// Search executes a plainto_tsquery/ts_rank query against document_index.
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

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}
	argN := 2

	where := "fts @@ " + tsQuery
	if q.ProjectID != "" {
		where += fmt.Sprintf(" AND project_id = $%d", argN)
		args = append(args, q.ProjectID)
		argN++
	}
	if q.FileType != "" {
		where += fmt.Sprintf(" AND file_type = $%d", argN)
		args = append(args, q.FileType)
		argN++
	}

	countSQL := fmt.Sprintf(`SELECT count(*) FROM document_index WHERE %s`, where)
	dataSQL := fmt.Sprintf(`
		SELECT project_id, relative_path, name, file_type,
			ts_headline('english', coalesce(content, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
			ts_rank(fts, %s) AS rank
		FROM document_index
		WHERE %s
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`, tsQuery, tsQuery, where, limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var rank float64
		if err := rows.Scan(&r.ProjectID, &r.RelativePath, &r.Title, &r.FileType, &r.Snippet, &rank); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns every indexed document, for full reindexing into
// Meilisearch (ReindexAll).
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]DocumentRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT project_id, relative_path, name, file_type, content
		FROM document_index
	`)
	if err != nil {
		return nil, fmt.Errorf("load document index: %w", err)
	}
	defer rows.Close()

	documents := make([]DocumentRecord, 0)
	for rows.Next() {
		var d DocumentRecord
		if err := rows.Scan(&d.ProjectID, &d.RelativePath, &d.Name, &d.FileType, &d.Content); err != nil {
			return nil, fmt.Errorf("scan document index row: %w", err)
		}
		d.ID = RecordID(d.ProjectID, d.RelativePath)
		documents = append(documents, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document index: %w", err)
	}
	return documents, nil
}

// Upsert writes one document's indexed projection, recomputing its tsvector.
func (p *PgFTS) Upsert(ctx context.Context, doc DocumentRecord) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO document_index (project_id, relative_path, name, file_type, content, fts)
		VALUES ($1, $2, $3, $4, $5, to_tsvector('english', $3 || ' ' || $5))
		ON CONFLICT (project_id, relative_path) DO UPDATE SET
			name = EXCLUDED.name,
			file_type = EXCLUDED.file_type,
			content = EXCLUDED.content,
			fts = EXCLUDED.fts
	`, doc.ProjectID, doc.RelativePath, doc.Name, doc.FileType, doc.Content)
	if err != nil {
		return fmt.Errorf("upsert document index: %w", err)
	}
	return nil
}

// Delete removes one document's indexed projection.
func (p *PgFTS) Delete(ctx context.Context, projectID, relativePath string) error {
	_, err := p.db.ExecContext(ctx, `
		DELETE FROM document_index WHERE project_id = $1 AND relative_path = $2
	`, projectID, relativePath)
	if err != nil {
		return fmt.Errorf("delete document index row: %w", err)
	}
	return nil
}
