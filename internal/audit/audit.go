// Package audit persists job-lifecycle events into Postgres, batching
// writes the same way the teacher batches metric writes.
package audit

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// DB wraps the audit log connection.
type DB struct {
	*sql.DB
}

// Connect opens and pings the audit database.
func Connect(connectionString string) (*DB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("audit: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("audit: ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return &DB{db}, nil
}

// EnsureSchema creates the job_events table if it doesn't already exist.
// There is exactly one migration here, so a file-based migrations runner
// (as the teacher has for its multi-file weather schema) would be
// overkill; the audit log has one shape and one table.
func (db *DB) EnsureSchema() error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS job_events (
			event_id   TEXT PRIMARY KEY,
			client_id  BIGINT NOT NULL,
			item_id    TEXT NOT NULL,
			state      TEXT NOT NULL,
			error      TEXT NOT NULL DEFAULT '',
			occurred_at TIMESTAMPTZ NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`
	if _, err := db.Exec(ddl); err != nil {
		return fmt.Errorf("audit: ensure schema: %w", err)
	}
	return nil
}

// Record is one job_events row.
type Record struct {
	EventID string
	Client  uint64
	Item    string
	State   string
	Error   string
}

// InsertEvent records r. EventID is the primary key, so a replayed event
// (the consumer re-delivering after a crash before its offset commit) is
// ignored instead of duplicating the existing row.
func (db *DB) InsertEvent(r Record, occurredAt time.Time) error {
	const query = `
		INSERT INTO job_events (event_id, client_id, item_id, state, error, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_id) DO NOTHING
	`
	_, err := db.Exec(query, r.EventID, r.Client, r.Item, r.State, r.Error, occurredAt)
	if err != nil {
		return fmt.Errorf("audit: insert event %s: %w", r.EventID, err)
	}
	return nil
}

// CountByState returns how many events recorded a transition into state
// within the last sinceHours hours.
func (db *DB) CountByState(state string, sinceHours int) (int, error) {
	const query = `
		SELECT COUNT(*) FROM job_events
		WHERE state = $1 AND occurred_at >= now() - ($2 || ' hours')::interval
	`
	var count int
	err := db.QueryRow(query, state, sinceHours).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("audit: count by state %s: %w", state, err)
	}
	return count, nil
}
