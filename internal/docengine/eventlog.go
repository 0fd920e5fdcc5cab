package docengine

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Operation names the engine action an Event records.
type Operation string

const (
	OperationList         Operation = "list_documents"
	OperationGet          Operation = "get_document"
	OperationUpdate       Operation = "update_document"
	OperationCreateFile   Operation = "create_file"
	OperationListBranches Operation = "list_branches"
	OperationSwitchBranch Operation = "switch_branch"
	OperationSyncStatus   Operation = "sync_status"
	OperationSync         Operation = "sync"
	OperationPropagate    Operation = "propagate_to_worktree"
)

// Event is a single durable record of an engine operation (spec §4.8). It is
// append-only: the engine never edits or deletes a previously logged event.
type Event struct {
	ID        string
	ProjectID string
	Operation Operation
	Path      string
	Outcome   string
	ErrorKind Kind
	Duration  time.Duration
	At        time.Time
}

// Sink persists Events durably. internal/eventstore provides a Postgres-
// backed implementation; a nil Sink is valid and simply forgoes durability.
type Sink interface {
	Append(Event) error
}

// EventLog records engine operations, always to structured logs and
// optionally to a durable Sink.
type EventLog struct {
	sink Sink
}

// NewEventLog constructs an EventLog. sink may be nil.
func NewEventLog(sink Sink) *EventLog {
	return &EventLog{sink: sink}
}

// Record emits an Event to structured logs and, if configured, the durable
// sink. Sink failures are logged but never propagated — the event log must
// never be able to fail the operation it is merely observing.
func (l *EventLog) Record(e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}

	entry := log.Info()
	if e.Outcome == "error" {
		entry = log.Error()
	}
	entry.
		Str("event_id", e.ID).
		Str("project_id", e.ProjectID).
		Str("operation", string(e.Operation)).
		Str("path", e.Path).
		Str("outcome", e.Outcome).
		Dur("duration", e.Duration).
		Time("at", e.At)
	if e.ErrorKind != "" {
		entry = entry.Str("error_kind", string(e.ErrorKind))
	}
	entry.Msg("docengine event")

	if l.sink == nil {
		return
	}
	if err := l.sink.Append(e); err != nil {
		log.Warn().Err(err).Str("event_id", e.ID).Msg("failed to persist event to durable sink")
	}
}

// timed is a small helper mirroring the teacher's request-completion
// middleware: callers start it before an operation and call the returned
// func afterwards to produce a Duration for Record.
func timed() func() time.Duration {
	start := time.Now()
	return func() time.Duration { return time.Since(start) }
}
