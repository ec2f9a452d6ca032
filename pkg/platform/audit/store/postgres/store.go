package postgres

import (
	"context"
	"database/sql"
	"fmt"

	audit "digisafe/pkg/platform/audit"

	"github.com/google/uuid"
)

// Schema creates the audit table when it does not exist.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id        UUID PRIMARY KEY,
	category  TEXT NOT NULL,
	timestamp TIMESTAMPTZ NOT NULL,
	subject   TEXT NOT NULL,
	action    TEXT NOT NULL,
	reason    TEXT NOT NULL DEFAULT ''
)`

// Store implements audit.Store on PostgreSQL.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate applies Schema.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate audit events: %w", err)
	}
	return nil
}

// Append inserts an audit event. Inserts are idempotent on the event ID.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID, err := uuid.Parse(event.ID)
	if err != nil {
		eventID = uuid.New()
	}

	// Always derive category from action - eventCategories map is the source of truth
	category := audit.AuditEvent(event.Action).Category()

	query := `
		INSERT INTO audit_events (id, category, timestamp, subject, action, reason)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = s.db.ExecContext(ctx, query,
		eventID,
		string(category),
		event.Timestamp,
		event.Subject,
		event.Action,
		event.Reason,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListAll returns all audit events, newest first.
func (s *Store) ListAll(ctx context.Context) ([]audit.Event, error) {
	query := `
		SELECT id, category, timestamp, subject, action, reason
		FROM audit_events
		ORDER BY timestamp DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			event    audit.Event
			category string
		)
		if err := rows.Scan(&event.ID, &category, &event.Timestamp, &event.Subject, &event.Action, &event.Reason); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Category = audit.EventCategory(category)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
