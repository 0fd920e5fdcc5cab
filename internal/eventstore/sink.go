package eventstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"docrepo/internal/docengine"
)

// Sink persists docengine.Event records to Postgres. It implements
// docengine.Sink.
type Sink struct {
	db *sql.DB
}

// NewSink wraps an already-migrated database handle.
func NewSink(db *sql.DB) *Sink {
	return &Sink{db: db}
}

// Append inserts one event row. An insert failure is returned without a
// retry; the event log logs it and treats it as non-fatal to the operation
// being recorded.
func (s *Sink) Append(e docengine.Event) error {
	id := e.ID
	if id == "" {
		id = uuid.NewString()
	}
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO document_events (id, project_id, operation, path, outcome, error_kind, duration_ms, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, id, e.ProjectID, string(e.Operation), e.Path, e.Outcome, string(e.ErrorKind), e.Duration.Milliseconds(), at)
	if err != nil {
		return fmt.Errorf("insert document event: %w", err)
	}
	return nil
}

// Recent returns the most recent events for a project, newest first, for
// out-of-band consumers (spec §4.8: "consumers subscribe out-of-band").
func (s *Sink) Recent(ctx context.Context, projectID string, limit int) ([]docengine.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, operation, path, outcome, error_kind, duration_ms, occurred_at
		FROM document_events
		WHERE project_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("query document events: %w", err)
	}
	defer rows.Close()

	var events []docengine.Event
	for rows.Next() {
		var (
			e          docengine.Event
			operation  string
			errorKind  string
			durationMs int64
		)
		if err := rows.Scan(&e.ID, &e.ProjectID, &operation, &e.Path, &e.Outcome, &errorKind, &durationMs, &e.At); err != nil {
			return nil, fmt.Errorf("scan document event: %w", err)
		}
		e.Operation = docengine.Operation(operation)
		e.ErrorKind = docengine.Kind(errorKind)
		e.Duration = time.Duration(durationMs) * time.Millisecond
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document events: %w", err)
	}
	return events, nil
}
