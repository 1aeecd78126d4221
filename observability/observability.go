// Package observability records the editor service's business events
// (uploads, compositions, failures) in a dedicated SQLite database, kept
// separate from the document registry to avoid write contention.
//
// Event writes are best-effort: a failing observability store logs through
// slog but never blocks or fails the request that produced the event.
package observability

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/kamiladigital/pdf-editor/idgen"
)

// Schema is the DDL for the observability database. Init applies it.
const Schema = `
CREATE TABLE IF NOT EXISTS business_event_logs (
    event_id     TEXT PRIMARY KEY,
    event_type   TEXT NOT NULL,
    service_name TEXT NOT NULL,
    entity_type  TEXT,
    entity_id    TEXT,
    action       TEXT,
    details      TEXT,
    success      INTEGER NOT NULL,
    created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_type_time
    ON business_event_logs(event_type, created_at DESC);
`

// Init applies the observability schema.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}

// Event is a domain-level occurrence to record.
type Event struct {
	Type       string // e.g. "document_uploaded", "document_composed"
	EntityType string // e.g. "document"
	EntityID   string
	Action     string
	Details    string // optional JSON
	Success    bool
}

// EventLogger writes business events.
type EventLogger struct {
	db      *sql.DB
	service string
	newID   idgen.Generator
}

// Option configures an EventLogger.
type Option func(*EventLogger)

// WithIDGenerator sets a custom ID generator for event IDs.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(l *EventLogger) { l.newID = gen }
}

// NewEventLogger creates a logger writing events for the named service.
func NewEventLogger(db *sql.DB, service string, opts ...Option) *EventLogger {
	l := &EventLogger{
		db:      db,
		service: service,
		newID:   idgen.Prefixed("evt_", idgen.Default),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Log records an event. Errors are logged via slog and swallowed.
func (l *EventLogger) Log(ctx context.Context, ev Event) {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO business_event_logs (
			event_id, event_type, service_name, entity_type, entity_id,
			action, details, success, created_at
		) VALUES (?,?,?,?,?,?,?,?,?)`,
		l.newID(), ev.Type, l.service, ev.EntityType, ev.EntityID,
		ev.Action, ev.Details, ev.Success, time.Now().Unix())
	if err != nil {
		slog.Error("observability event log failed", "error", err, "event_type", ev.Type)
	}
}

// Recent returns the newest events of the given type, most recent first.
// Backs the debug events endpoint.
func (l *EventLogger) Recent(ctx context.Context, eventType string, limit int) ([]Event, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT event_type, entity_type, entity_id, action, details, success
		FROM business_event_logs
		WHERE event_type = ?
		ORDER BY created_at DESC
		LIMIT ?`, eventType, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		var success int
		if err := rows.Scan(&ev.Type, &ev.EntityType, &ev.EntityID, &ev.Action, &ev.Details, &success); err != nil {
			return nil, err
		}
		ev.Success = success != 0
		out = append(out, ev)
	}
	return out, rows.Err()
}
